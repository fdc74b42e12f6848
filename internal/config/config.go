// Package config loads the dry-run layer configuration from a YAML or CUE
// file and the environment.
package config

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"gopkg.in/yaml.v3"

	"github.com/hashgraph/guardian-sub011/internal/store"
)

//go:embed schema.cue
var schemaSource string

// Environment variables that override file settings.
const (
	EnvChunkSize    = "DOCUMENTS_HANDLING_CHUNK_SIZE"
	EnvDatabasePath = "DRYRUN_DB_PATH"
	EnvLogLevel     = "LOG_LEVEL"
)

// Defaults.
const (
	DefaultDatabasePath = "dryrun.db"
	DefaultLogLevel     = "info"
)

// Config holds the settings of the dry-run layer.
type Config struct {
	// DatabasePath is the SQLite file holding virtual records.
	DatabasePath string `json:"database_path" yaml:"database_path"`

	// ChunkSize bounds batch writes and savepoint pages.
	ChunkSize int `json:"chunk_size" yaml:"chunk_size"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `json:"log_level" yaml:"log_level"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		DatabasePath: DefaultDatabasePath,
		ChunkSize:    store.DefaultChunkSize,
		LogLevel:     DefaultLogLevel,
	}
}

// fileConfig distinguishes absent fields from zero values.
type fileConfig struct {
	DatabasePath *string `json:"database_path" yaml:"database_path"`
	ChunkSize    *int    `json:"chunk_size" yaml:"chunk_size"`
	LogLevel     *string `json:"log_level" yaml:"log_level"`
}

func (f fileConfig) apply(cfg *Config) {
	if f.DatabasePath != nil {
		cfg.DatabasePath = *f.DatabasePath
	}
	if f.ChunkSize != nil {
		cfg.ChunkSize = *f.ChunkSize
	}
	if f.LogLevel != nil {
		cfg.LogLevel = *f.LogLevel
	}
}

// Load builds the configuration from defaults, the file at path (skipped
// when path is empty) and the process environment, in that order.
func Load(path string) (Config, error) {
	return LoadWithEnv(path, os.LookupEnv)
}

// LoadWithEnv is Load with a custom environment lookup.
func LoadWithEnv(path string, lookup func(string) (string, bool)) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		fc, err := parseFile(path, data)
		if err != nil {
			return Config{}, err
		}
		fc.apply(&cfg)
	}
	if err := applyEnv(&cfg, lookup); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func parseFile(path string, data []byte) (fileConfig, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		return parseYAML(data)
	case ".cue":
		return parseCUE(path, data)
	default:
		return fileConfig{}, fmt.Errorf("config %s: unsupported extension %q (want .yaml, .yml or .cue)", path, ext)
	}
}

func parseYAML(data []byte) (fileConfig, error) {
	var fc fileConfig
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&fc); err != nil && !errors.Is(err, io.EOF) {
		return fileConfig{}, fmt.Errorf("parse config YAML: %w", err)
	}
	return fc, nil
}

func parseCUE(path string, data []byte) (fileConfig, error) {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fileConfig{}, fmt.Errorf("compile config schema: %w", err)
	}

	value := ctx.CompileBytes(data, cue.Filename(path))
	if err := value.Err(); err != nil {
		return fileConfig{}, fmt.Errorf("parse config CUE: %w", err)
	}
	value = schema.LookupPath(cue.ParsePath("#Config")).Unify(value)
	if err := value.Validate(cue.Concrete(true)); err != nil {
		return fileConfig{}, fmt.Errorf("validate config CUE: %w", err)
	}

	var fc fileConfig
	if err := value.Decode(&fc); err != nil {
		return fileConfig{}, fmt.Errorf("decode config CUE: %w", err)
	}
	return fc, nil
}

func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	if v, ok := lookup(EnvChunkSize); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvChunkSize, err)
		}
		cfg.ChunkSize = n
	}
	if v, ok := lookup(EnvDatabasePath); ok && v != "" {
		cfg.DatabasePath = v
	}
	if v, ok := lookup(EnvLogLevel); ok && v != "" {
		cfg.LogLevel = strings.ToLower(v)
	}
	return nil
}

// Validate checks every field.
func (c Config) Validate() error {
	if c.DatabasePath == "" {
		return errors.New("config: database_path is empty")
	}
	if c.ChunkSize <= 0 {
		return fmt.Errorf("config: chunk_size must be positive, got %d", c.ChunkSize)
	}
	if _, err := parseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// SlogLevel returns the log level. Invalid levels map to Info.
func (c Config) SlogLevel() slog.Level {
	l, err := parseLevel(c.LogLevel)
	if err != nil {
		return slog.LevelInfo
	}
	return l
}

func parseLevel(s string) (slog.Level, error) {
	switch s {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("config: unknown log_level %q", s)
	}
}

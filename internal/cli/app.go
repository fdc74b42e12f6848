package cli

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"github.com/spf13/cobra"

	"github.com/hashgraph/guardian-sub011/internal/config"
	"github.com/hashgraph/guardian-sub011/internal/ledger"
	"github.com/hashgraph/guardian-sub011/internal/messaging"
	"github.com/hashgraph/guardian-sub011/internal/metrics"
	"github.com/hashgraph/guardian-sub011/internal/router"
	"github.com/hashgraph/guardian-sub011/internal/savepoint"
	"github.com/hashgraph/guardian-sub011/internal/store"
)

// app wires the dry-run components over one database for a single
// command invocation.
type app struct {
	cfg       config.Config
	logger    *slog.Logger
	registry  *prometheus.Registry
	metrics   *metrics.Metrics
	store     *store.Store
	router    *router.Router
	savepoint *savepoint.Manager
	ledger    *ledger.Emulator
	messaging *messaging.Emulator
}

// openApp loads the configuration, configures logging and opens the
// database. The caller must close the returned app.
func openApp(opts *RootOptions, cmd *cobra.Command) (*app, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load configuration", err)
	}
	if opts.Database != "" {
		cfg.DatabasePath = opts.Database
	}

	level := cfg.SlogLevel()
	if opts.Verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{
		Level: level,
	}))

	logger.Debug("opening database", "path", cfg.DatabasePath, "chunk_size", cfg.ChunkSize)
	st, err := store.Open(cfg.DatabasePath,
		store.WithChunkSize(cfg.ChunkSize),
		store.WithLogger(logger))
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	r := router.New(st, router.NewStoreBackend(st),
		router.WithMetrics(m),
		router.WithLogger(logger))

	return &app{
		cfg:      cfg,
		logger:   logger,
		registry: reg,
		metrics:  m,
		store:    st,
		router:   r,
		savepoint: savepoint.NewManager(st,
			savepoint.WithMetrics(m),
			savepoint.WithLogger(logger)),
		ledger: ledger.New(r,
			ledger.WithMetrics(m),
			ledger.WithLogger(logger)),
		messaging: messaging.New(r, messaging.WithLogger(logger)),
	}, nil
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		a.logger.Error("error closing database", "error", err)
	}
}

// withApp runs fn against an opened app and renders failures.
func withApp(opts *RootOptions, cmd *cobra.Command, fn func(*app, *OutputFormatter) error) error {
	f := opts.formatter(cmd)
	a, err := openApp(opts, cmd)
	if err != nil {
		var exitErr *ExitError
		if errors.As(err, &exitErr) {
			_ = f.Error("E_COMMAND", exitErr.Error(), nil)
			return exitErr
		}
		return f.Fail("failed to start", err)
	}
	defer a.Close()

	err = fn(a, f)
	if opts.Metrics {
		if werr := a.writeMetrics(cmd.ErrOrStderr()); werr != nil {
			a.logger.Error("failed to write metrics", "error", werr)
		}
	}
	return err
}

// writeMetrics prints the invocation's metrics in the text exposition
// format.
func (a *app) writeMetrics(w io.Writer) error {
	families, err := a.registry.Gather()
	if err != nil {
		return err
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return err
		}
	}
	return nil
}

// requireRunID rejects blank run ids before any store access.
func requireRunID(id string) error {
	if id == "" {
		return NewExitError(ExitCommandError, "run id must not be empty")
	}
	return nil
}

// plural renders n with a singular or plural noun.
func plural(n int, noun string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, noun)
	}
	return fmt.Sprintf("%d %ss", n, noun)
}

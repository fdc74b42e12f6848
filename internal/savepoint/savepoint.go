// Package savepoint snapshots and rolls back the virtual records of one
// dry run.
//
// Every operation walks the run's records in pages of the configured chunk
// size through a Cursor. Pages are processed strictly in sequence, and each
// page is committed in its own transaction before the next is fetched, so
// an interrupted operation leaves a fully processed prefix and an untouched
// suffix. Because processed records stop qualifying for the operation,
// running it again resumes where it stopped.
package savepoint

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hashgraph/guardian-sub011/internal/dryrun"
	"github.com/hashgraph/guardian-sub011/internal/metrics"
	"github.com/hashgraph/guardian-sub011/internal/store"
)

// Operation names, used in logs and as metric labels.
const (
	OpCreate     = "create"
	OpRestore    = "restore"
	OpClear      = "clear"
	OpSystemMode = "system_mode"
)

// Manager runs savepoint operations against a store.
type Manager struct {
	store     *store.Store
	chunkSize int
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// Option configures a Manager.
type Option func(*Manager)

// WithChunkSize overrides the page size. Defaults to the store's chunk size.
func WithChunkSize(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.chunkSize = n
		}
	}
}

// WithMetrics records page counts and durations.
func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Manager) { m.metrics = mt }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// NewManager creates a Manager over s.
func NewManager(s *store.Store, opts ...Option) *Manager {
	m := &Manager{
		store:     s,
		chunkSize: s.ChunkSize(),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Result summarizes a finished operation.
type Result struct {
	Pages   int `json:"pages"`
	Records int `json:"records"`
	Files   int `json:"files,omitempty"`
}

// CreateSavepoint marks every record of the run as protected.
// Records changed since an earlier savepoint get a fresh snapshot, and
// records removed since then are purged for good.
func (m *Manager) CreateSavepoint(ctx context.Context, runID string) (Result, error) {
	return m.run(ctx, OpCreate, m.Cursor(store.PageMark, runID))
}

// RestoreSavepoint deletes every record of the run created since the last
// savepoint and reverts protected records to their snapshot. Side files no
// remaining file record references are purged with them. Restoring twice
// in a row is a no-op the second time.
func (m *Manager) RestoreSavepoint(ctx context.Context, runID string) (Result, error) {
	res, err := m.run(ctx, OpRestore, m.Cursor(store.PageRestore, runID))
	if err != nil {
		return res, err
	}

	files, err := m.store.PruneRunFiles(ctx, runID, dryrun.MustTagFor(dryrun.VirtualFile))
	if err != nil {
		return res, fmt.Errorf("restore %s: %w", runID, err)
	}
	res.Files = files
	return res, nil
}

// ClearDryRun deletes the records of the run. Unless includeSystem is set,
// records created in system mode are kept. The run's binary side files are
// always purged.
func (m *Manager) ClearDryRun(ctx context.Context, runID string, includeSystem bool) (Result, error) {
	kind := store.PageClearUser
	if includeSystem {
		kind = store.PageClearAll
	}
	res, err := m.run(ctx, OpClear, m.Cursor(kind, runID))
	if err != nil {
		return res, err
	}

	files, err := m.store.DeleteRunFiles(ctx, runID)
	if err != nil {
		return res, fmt.Errorf("clear %s: %w", runID, err)
	}
	res.Files = files
	return res, nil
}

// SetSystemMode sets or clears the system flag on every record of the run.
func (m *Manager) SetSystemMode(ctx context.Context, runID string, flag bool) (Result, error) {
	kind := store.PageSystemOff
	if flag {
		kind = store.PageSystemOn
	}
	return m.run(ctx, OpSystemMode, m.Cursor(kind, runID))
}

func (m *Manager) run(ctx context.Context, op string, c *Cursor) (Result, error) {
	start := time.Now()
	err := c.Drain(ctx)
	m.metrics.ObserveSavepointDuration(op, time.Since(start))

	res := Result{Pages: c.Pages(), Records: c.Records()}
	if err != nil {
		m.logger.Error("savepoint operation aborted",
			"op", op, "run_id", c.RunID(), "pages", res.Pages, "error", err)
		return res, fmt.Errorf("%s %s: %w", op, c.RunID(), err)
	}
	m.logger.Info("savepoint operation complete",
		"op", op, "run_id", c.RunID(), "pages", res.Pages, "records", res.Records)
	return res, nil
}

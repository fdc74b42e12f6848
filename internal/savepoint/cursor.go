package savepoint

import (
	"context"

	"github.com/hashgraph/guardian-sub011/internal/store"
)

// Cursor walks the unprocessed records of one run, one page at a time.
//
// A Cursor holds no position: each Next asks the store for the first page
// of records that still need processing. After an error the same Cursor,
// or a new one, can simply be advanced again to resume.
type Cursor struct {
	m     *Manager
	kind  store.PageKind
	runID string

	pages   int
	records int
	done    bool
}

// Cursor returns a cursor for kind over the records of runID.
func (m *Manager) Cursor(kind store.PageKind, runID string) *Cursor {
	return &Cursor{m: m, kind: kind, runID: runID}
}

// Next fetches and processes one page. It returns false once no
// unprocessed records remain.
func (c *Cursor) Next(ctx context.Context) (bool, error) {
	if c.done {
		return false, nil
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}

	seqs, err := c.m.store.PendingPage(ctx, c.kind, c.runID, c.m.chunkSize)
	if err != nil {
		return false, err
	}
	if len(seqs) == 0 {
		c.done = true
		return false, nil
	}

	if err := c.m.store.ApplyPage(ctx, c.kind, seqs); err != nil {
		return false, err
	}

	c.pages++
	c.records += len(seqs)
	c.m.metrics.IncrementSavepointPage(c.op())
	c.m.logger.Debug("processed savepoint page",
		"op", c.kind.String(), "run_id", c.runID, "page", c.pages, "records", len(seqs))
	return true, nil
}

// Drain advances the cursor until no unprocessed records remain.
func (c *Cursor) Drain(ctx context.Context) error {
	for {
		more, err := c.Next(ctx)
		if err != nil || !more {
			return err
		}
	}
}

// Pages returns the number of pages processed so far.
func (c *Cursor) Pages() int { return c.pages }

// Records returns the number of records processed so far.
func (c *Cursor) Records() int { return c.records }

// Done reports whether the cursor found nothing left to process.
func (c *Cursor) Done() bool { return c.done }

// RunID returns the run the cursor walks.
func (c *Cursor) RunID() string { return c.runID }

func (c *Cursor) op() string {
	switch c.kind {
	case store.PageMark:
		return OpCreate
	case store.PageRestore:
		return OpRestore
	case store.PageClearUser, store.PageClearAll:
		return OpClear
	default:
		return OpSystemMode
	}
}

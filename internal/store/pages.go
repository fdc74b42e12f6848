package store

import (
	"context"
	"fmt"
)

// PageKind selects which records of a run a savepoint page operation
// visits and what it does to them.
type PageKind int

const (
	// PageMark snapshots unmarked or dirty records and purges tombstones.
	PageMark PageKind = iota
	// PageRestore deletes unmarked records and reverts dirty or
	// tombstoned records to their snapshot.
	PageRestore
	// PageClearUser deletes records whose system flag is not set.
	PageClearUser
	// PageClearAll deletes every record of the run.
	PageClearAll
	// PageSystemOn sets the system flag on live records.
	PageSystemOn
	// PageSystemOff clears the system flag on live records.
	PageSystemOff
)

func (k PageKind) String() string {
	switch k {
	case PageMark:
		return "mark"
	case PageRestore:
		return "restore"
	case PageClearUser:
		return "clear_user"
	case PageClearAll:
		return "clear_all"
	case PageSystemOn:
		return "system_on"
	case PageSystemOff:
		return "system_off"
	default:
		return fmt.Sprintf("PageKind(%d)", int(k))
	}
}

// pendingCondition is the WHERE fragment selecting records that still
// need processing. After a page is applied none of its records match
// again, which is what makes the page sequence restartable.
func (k PageKind) pendingCondition() (string, error) {
	switch k {
	case PageMark:
		return "(savepoint IS NULL OR dirty = 1 OR deleted = 1)", nil
	case PageRestore:
		return "(savepoint IS NULL OR dirty = 1 OR deleted = 1)", nil
	case PageClearUser:
		return "system_mode = 0", nil
	case PageClearAll:
		return "1 = 1", nil
	case PageSystemOn:
		return "deleted = 0 AND system_mode = 0", nil
	case PageSystemOff:
		return "deleted = 0 AND system_mode = 1", nil
	default:
		return "", fmt.Errorf("unknown page kind %d", int(k))
	}
}

// pageStatements are applied in order to the seqs of one page.
func (k PageKind) pageStatements() []string {
	switch k {
	case PageMark:
		return []string{
			"DELETE FROM records WHERE deleted = 1 AND seq IN ",
			`UPDATE records
			 SET savepoint = 1, dirty = 0, snapshot_payload = payload, snapshot_system_mode = system_mode
			 WHERE seq IN `,
		}
	case PageRestore:
		return []string{
			"DELETE FROM records WHERE savepoint IS NULL AND seq IN ",
			`UPDATE records
			 SET payload = snapshot_payload, system_mode = snapshot_system_mode, dirty = 0, deleted = 0
			 WHERE seq IN `,
		}
	case PageClearUser, PageClearAll:
		return []string{"DELETE FROM records WHERE seq IN "}
	case PageSystemOn:
		return []string{"UPDATE records SET system_mode = 1 WHERE seq IN "}
	case PageSystemOff:
		return []string{"UPDATE records SET system_mode = 0 WHERE seq IN "}
	default:
		return nil
	}
}

// PendingPage returns the seqs of at most limit records of runID that the
// page operation has not processed yet, in insertion order.
func (s *Store) PendingPage(ctx context.Context, kind PageKind, runID string, limit int) ([]int64, error) {
	cond, err := kind.pendingCondition()
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = s.chunkSize
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT seq FROM records WHERE run_id = ? AND "+cond+" ORDER BY seq ASC LIMIT ?",
		runID, limit)
	if err != nil {
		return nil, wrapErr("pending page", err)
	}
	defer rows.Close()

	seqs := []int64{}
	for rows.Next() {
		var seq int64
		if err := rows.Scan(&seq); err != nil {
			return nil, wrapErr("scan page", err)
		}
		seqs = append(seqs, seq)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr("iterate page", err)
	}
	return seqs, nil
}

// ApplyPage processes one page in a single transaction. Either every
// record of the page is processed or none is.
func (s *Store) ApplyPage(ctx context.Context, kind PageKind, seqs []int64) error {
	if len(seqs) == 0 {
		return nil
	}
	stmts := kind.pageStatements()
	if stmts == nil {
		return fmt.Errorf("unknown page kind %d", int(kind))
	}

	in, arg, err := jsonList(seqs)
	if err != nil {
		return fmt.Errorf("apply %s page: %w", kind, err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return wrapErr("apply page: begin tx", err)
	}
	defer tx.Rollback()

	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt+in, arg); err != nil {
			return wrapErr("apply "+kind.String()+" page", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return wrapErr("apply page: commit", err)
	}
	return nil
}

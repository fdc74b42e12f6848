package store

import (
	"context"
	"database/sql"

	"github.com/hashgraph/guardian-sub011/internal/doc"
)

// PutRunFile stores a binary artifact for a run and returns its content
// digest. Storing identical content twice is a no-op.
func (s *Store) PutRunFile(ctx context.Context, runID string, content []byte) (string, error) {
	digest := doc.FileDigest(content)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO run_files (run_id, digest, content)
		VALUES (?, ?, ?)
		ON CONFLICT(run_id, digest) DO NOTHING
	`, runID, digest, content)
	if err != nil {
		return "", wrapErr("put run file", err)
	}
	return digest, nil
}

// GetRunFile returns a stored artifact.
func (s *Store) GetRunFile(ctx context.Context, runID, digest string) ([]byte, bool, error) {
	var content []byte
	err := s.db.QueryRowContext(ctx,
		"SELECT content FROM run_files WHERE run_id = ? AND digest = ?", runID, digest).Scan(&content)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, wrapErr("get run file", err)
	}
	return content, true, nil
}

// DeleteRunFiles removes every artifact of a run.
func (s *Store) DeleteRunFiles(ctx context.Context, runID string) (int, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM run_files WHERE run_id = ?", runID)
	if err != nil {
		return 0, wrapErr("delete run files", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, wrapErr("delete run files", err)
	}
	return int(n), nil
}

// FileDigestField is the payload field through which a file record
// references its artifact.
const FileDigestField = "digest"

// PruneRunFiles removes the artifacts of a run that no live record tagged
// fileTag references any more.
func (s *Store) PruneRunFiles(ctx context.Context, runID, fileTag string) (int, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM run_files
		WHERE run_id = ? AND digest NOT IN (
			SELECT json_extract(payload, '$.`+FileDigestField+`')
			FROM records
			WHERE run_id = ? AND entity_tag = ? AND deleted = 0
			  AND json_extract(payload, '$.`+FileDigestField+`') IS NOT NULL
		)
	`, runID, runID, fileTag)
	if err != nil {
		return 0, wrapErr("prune run files", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, wrapErr("prune run files", err)
	}
	return int(n), nil
}

// RunIDs returns the distinct run ids present in the record store.
func (s *Store) RunIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT DISTINCT run_id FROM records WHERE run_id IS NOT NULL ORDER BY run_id ASC")
	if err != nil {
		return nil, wrapErr("list runs", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, wrapErr("scan run id", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr("iterate runs", err)
	}
	return ids, nil
}

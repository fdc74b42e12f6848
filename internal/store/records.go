package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/hashgraph/guardian-sub011/internal/doc"
	"github.com/hashgraph/guardian-sub011/internal/queryir"
	"github.com/hashgraph/guardian-sub011/internal/querysql"
)

// VirtualRecord is one tagged record of the virtual record store.
//
// RunID is empty for records that belong to no run. Savepoint reports
// whether the record is protected by the last savepoint of its run.
type VirtualRecord struct {
	Seq        int64
	ID         string
	RunID      string
	EntityTag  string
	SystemMode bool
	Savepoint  bool
	Payload    doc.Object
}

// Document returns the record as a single object: the payload plus the
// record attributes under their filter names.
func (r VirtualRecord) Document() doc.Object {
	out := r.Payload.Clone()
	if out == nil {
		out = doc.Object{}
	}
	out[queryir.FieldID] = doc.String(r.ID)
	if r.RunID != "" {
		out[queryir.FieldRunID] = doc.String(r.RunID)
	}
	out[queryir.FieldEntityTag] = doc.String(r.EntityTag)
	out[queryir.FieldSystemMode] = doc.Bool(r.SystemMode)
	if r.Savepoint {
		out[queryir.FieldSavepoint] = doc.Bool(true)
	}
	return out
}

var recordCompiler = querysql.NewSQLCompiler(querysql.RecordsTable)

// Insert writes one record. An empty ID is assigned from the generator.
// Record attribute names are stripped from the payload.
func (s *Store) Insert(ctx context.Context, rec VirtualRecord) (VirtualRecord, error) {
	out, err := s.insertBatch(ctx, []VirtualRecord{rec})
	if err != nil {
		return VirtualRecord{}, err
	}
	return out[0], nil
}

// InsertMany writes records in chunks of the configured chunk size. Each
// chunk is committed as an independent transaction, so a failure leaves
// earlier chunks persisted and returns the error unchanged.
func (s *Store) InsertMany(ctx context.Context, recs []VirtualRecord) ([]VirtualRecord, error) {
	out := make([]VirtualRecord, 0, len(recs))
	for i, bounds := range splitChunks(len(recs), s.chunkSize) {
		written, err := s.insertBatch(ctx, recs[bounds[0]:bounds[1]])
		if err != nil {
			return out, err
		}
		s.logger.Debug("inserted record chunk", "chunk", i, "records", len(written))
		out = append(out, written...)
	}
	return out, nil
}

// ChunkCount returns how many batches InsertMany uses for n records.
func (s *Store) ChunkCount(n int) int {
	return len(splitChunks(n, s.chunkSize))
}

func (s *Store) insertBatch(ctx context.Context, recs []VirtualRecord) ([]VirtualRecord, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, wrapErr("insert: begin tx", err)
	}
	defer tx.Rollback()

	out := make([]VirtualRecord, len(recs))
	for i, rec := range recs {
		written, err := s.insertTx(ctx, tx, rec)
		if err != nil {
			return nil, err
		}
		out[i] = written
	}

	if err := tx.Commit(); err != nil {
		return nil, wrapErr("insert: commit", err)
	}
	return out, nil
}

func (s *Store) insertTx(ctx context.Context, tx *sql.Tx, rec VirtualRecord) (VirtualRecord, error) {
	if rec.ID == "" {
		rec.ID = s.ids.Generate()
	}
	rec.Payload = stripRecordFields(rec.Payload)
	payload, err := doc.MarshalCanonical(rec.Payload)
	if err != nil {
		return VirtualRecord{}, fmt.Errorf("insert %s: marshal payload: %w", rec.ID, err)
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO records (id, run_id, entity_tag, system_mode, savepoint, payload)
		VALUES (?, ?, ?, ?, NULL, ?)
	`, rec.ID, nullString(rec.RunID), rec.EntityTag, boolInt(rec.SystemMode), string(payload))
	if err != nil {
		return VirtualRecord{}, wrapErr("insert record", err)
	}
	seq, err := res.LastInsertId()
	if err != nil {
		return VirtualRecord{}, wrapErr("insert record: last id", err)
	}
	rec.Seq = seq
	rec.Savepoint = false
	return rec, nil
}

// Save replaces records by id, inserting those that do not exist yet. A
// record is only replaced by a record of the same run and tag; reusing an
// id from elsewhere fails on the unique id constraint.
// Replacing a savepoint-protected record marks it dirty so a restore can
// bring its snapshot back. Batches follow the chunk size.
func (s *Store) Save(ctx context.Context, recs []VirtualRecord) ([]VirtualRecord, error) {
	out := make([]VirtualRecord, 0, len(recs))
	for _, bounds := range splitChunks(len(recs), s.chunkSize) {
		written, err := s.saveBatch(ctx, recs[bounds[0]:bounds[1]])
		if err != nil {
			return out, err
		}
		out = append(out, written...)
	}
	return out, nil
}

func (s *Store) saveBatch(ctx context.Context, recs []VirtualRecord) ([]VirtualRecord, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, wrapErr("save: begin tx", err)
	}
	defer tx.Rollback()

	out := make([]VirtualRecord, len(recs))
	for i, rec := range recs {
		if rec.ID == "" {
			written, err := s.insertTx(ctx, tx, rec)
			if err != nil {
				return nil, err
			}
			out[i] = written
			continue
		}

		rec.Payload = stripRecordFields(rec.Payload)
		payload, err := doc.MarshalCanonical(rec.Payload)
		if err != nil {
			return nil, fmt.Errorf("save %s: marshal payload: %w", rec.ID, err)
		}

		var seq int64
		var savepoint sql.NullInt64
		err = tx.QueryRowContext(ctx, `
			UPDATE records
			SET payload = ?, system_mode = ?, deleted = 0,
			    dirty = CASE WHEN savepoint IS NULL THEN 0 ELSE 1 END
			WHERE id = ? AND run_id IS ? AND entity_tag = ?
			RETURNING seq, savepoint
		`, string(payload), boolInt(rec.SystemMode), rec.ID, nullString(rec.RunID), rec.EntityTag).Scan(&seq, &savepoint)
		if err == sql.ErrNoRows {
			written, err := s.insertTx(ctx, tx, rec)
			if err != nil {
				return nil, err
			}
			out[i] = written
			continue
		}
		if err != nil {
			return nil, wrapErr("save record", err)
		}
		rec.Seq = seq
		rec.Savepoint = savepoint.Valid
		out[i] = rec
	}

	if err := tx.Commit(); err != nil {
		return nil, wrapErr("save: commit", err)
	}
	return out, nil
}

// Find returns the records matching filter in deterministic order.
// Options.Fields projects the payload; record attributes are always set.
func (s *Store) Find(ctx context.Context, filter queryir.Predicate, opts queryir.Options) ([]VirtualRecord, error) {
	query, params, err := recordCompiler.Select(filter, opts)
	if err != nil {
		return nil, fmt.Errorf("find: %w", err)
	}
	return s.queryRecords(ctx, s.db, query, params, opts.Fields)
}

// FindOne returns the first matching record.
func (s *Store) FindOne(ctx context.Context, filter queryir.Predicate) (VirtualRecord, bool, error) {
	recs, err := s.Find(ctx, filter, queryir.Options{Limit: 1})
	if err != nil || len(recs) == 0 {
		return VirtualRecord{}, false, err
	}
	return recs[0], true, nil
}

// FindByID returns the live record with the given id, regardless of run.
func (s *Store) FindByID(ctx context.Context, id string) (VirtualRecord, bool, error) {
	return s.FindOne(ctx, queryir.Eq(queryir.FieldID, doc.String(id)))
}

// FindAndCount returns one page of matches plus the total match count.
func (s *Store) FindAndCount(ctx context.Context, filter queryir.Predicate, opts queryir.Options) ([]VirtualRecord, int, error) {
	recs, err := s.Find(ctx, filter, opts)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.Count(ctx, filter)
	if err != nil {
		return nil, 0, err
	}
	return recs, total, nil
}

// Count returns the number of live records matching filter.
func (s *Store) Count(ctx context.Context, filter queryir.Predicate) (int, error) {
	query, params, err := recordCompiler.Count(filter)
	if err != nil {
		return 0, fmt.Errorf("count: %w", err)
	}
	var n int
	if err := s.db.QueryRowContext(ctx, query, params...).Scan(&n); err != nil {
		return 0, wrapErr("count records", err)
	}
	return n, nil
}

// Update applies patch to every record matching filter and returns the
// number of records changed.
//
// Patch keys are dotted payload paths, except systemMode which sets the
// record flag. The other record attributes cannot be patched.
func (s *Store) Update(ctx context.Context, filter queryir.Predicate, patch doc.Object) (int, error) {
	if err := validatePatch(patch); err != nil {
		return 0, err
	}
	query, params, err := recordCompiler.Select(filter, queryir.Options{})
	if err != nil {
		return 0, fmt.Errorf("update: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, wrapErr("update: begin tx", err)
	}
	defer tx.Rollback()

	recs, err := s.queryRecords(ctx, tx, query, params, nil)
	if err != nil {
		return 0, err
	}

	for _, rec := range recs {
		applyPatch(&rec, patch)
		payload, err := doc.MarshalCanonical(rec.Payload)
		if err != nil {
			return 0, fmt.Errorf("update %s: marshal payload: %w", rec.ID, err)
		}
		_, err = tx.ExecContext(ctx, `
			UPDATE records
			SET payload = ?, system_mode = ?,
			    dirty = CASE WHEN savepoint IS NULL THEN 0 ELSE 1 END
			WHERE seq = ?
		`, string(payload), boolInt(rec.SystemMode), rec.Seq)
		if err != nil {
			return 0, wrapErr("update record", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, wrapErr("update: commit", err)
	}
	return len(recs), nil
}

// Remove deletes records by id. A savepoint-protected record is only
// tombstoned so that restoring the savepoint can bring it back.
func (s *Store) Remove(ctx context.Context, ids []string) (int, error) {
	return s.remove(ctx, "1 = 1", nil, ids)
}

// RemoveInRun is Remove restricted to records of one run and entity tag.
// Ids that belong elsewhere are ignored.
func (s *Store) RemoveInRun(ctx context.Context, runID, entityTag string, ids []string) (int, error) {
	return s.remove(ctx, "run_id = ? AND entity_tag = ?", []any{runID, entityTag}, ids)
}

func (s *Store) remove(ctx context.Context, scope string, scopeArgs []any, ids []string) (int, error) {
	removed := 0
	for _, bounds := range splitChunks(len(ids), s.chunkSize) {
		n, err := s.removeBatch(ctx, scope, scopeArgs, ids[bounds[0]:bounds[1]])
		removed += n
		if err != nil {
			return removed, err
		}
	}
	return removed, nil
}

func (s *Store) removeBatch(ctx context.Context, scope string, scopeArgs []any, ids []string) (int, error) {
	in, arg, err := jsonList(ids)
	if err != nil {
		return 0, fmt.Errorf("remove: %w", err)
	}
	args := append(append([]any{}, scopeArgs...), arg)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, wrapErr("remove: begin tx", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		"DELETE FROM records WHERE deleted = 0 AND savepoint IS NULL AND "+scope+" AND id IN "+in, args...)
	if err != nil {
		return 0, wrapErr("remove records", err)
	}
	deleted, _ := res.RowsAffected()

	res, err = tx.ExecContext(ctx,
		"UPDATE records SET deleted = 1 WHERE deleted = 0 AND savepoint IS NOT NULL AND "+scope+" AND id IN "+in, args...)
	if err != nil {
		return 0, wrapErr("tombstone records", err)
	}
	tombstoned, _ := res.RowsAffected()

	if err := tx.Commit(); err != nil {
		return 0, wrapErr("remove: commit", err)
	}
	return int(deleted + tombstoned), nil
}

// Aggregate runs a pipeline over the live records. Ungrouped pipelines
// return record documents (see VirtualRecord.Document); grouped pipelines
// return one object per group.
func (s *Store) Aggregate(ctx context.Context, pipeline queryir.Pipeline) ([]doc.Object, error) {
	q, err := recordCompiler.Aggregate(pipeline)
	if err != nil {
		return nil, fmt.Errorf("aggregate: %w", err)
	}
	if !q.Grouped {
		recs, err := s.queryRecords(ctx, s.db, q.SQL, q.Params, nil)
		if err != nil {
			return nil, err
		}
		out := make([]doc.Object, len(recs))
		for i, rec := range recs {
			out[i] = rec.Document()
		}
		return out, nil
	}
	return queryGroups(ctx, s.db, q)
}

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (s *Store) queryRecords(ctx context.Context, q querier, query string, params []any, fields []string) ([]VirtualRecord, error) {
	rows, err := q.QueryContext(ctx, query, params...)
	if err != nil {
		return nil, wrapErr("query records", err)
	}
	defer rows.Close()

	recs := []VirtualRecord{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		if len(fields) > 0 {
			rec.Payload = rec.Payload.Project(fields)
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr("iterate records", err)
	}
	return recs, nil
}

func scanRecord(rows *sql.Rows) (VirtualRecord, error) {
	var (
		rec        VirtualRecord
		runID      sql.NullString
		systemMode int64
		savepoint  sql.NullInt64
		payload    string
	)
	if err := rows.Scan(&rec.Seq, &rec.ID, &runID, &rec.EntityTag, &systemMode, &savepoint, &payload); err != nil {
		return VirtualRecord{}, wrapErr("scan record", err)
	}
	obj, err := doc.ParseObject([]byte(payload))
	if err != nil {
		return VirtualRecord{}, fmt.Errorf("record %s: %w", rec.ID, err)
	}
	rec.RunID = runID.String
	rec.SystemMode = systemMode != 0
	rec.Savepoint = savepoint.Valid
	rec.Payload = obj
	return rec, nil
}

func queryGroups(ctx context.Context, q querier, agg querysql.AggregateQuery) ([]doc.Object, error) {
	rows, err := q.QueryContext(ctx, agg.SQL, agg.Params...)
	if err != nil {
		return nil, wrapErr("aggregate", err)
	}
	defer rows.Close()

	out := []doc.Object{}
	for rows.Next() {
		vals := make([]any, len(agg.Outputs))
		ptrs := make([]any, len(vals))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, wrapErr("scan group", err)
		}
		obj := make(doc.Object, len(vals))
		for i, name := range agg.Outputs {
			v, err := sqlValue(vals[i])
			if err != nil {
				return nil, fmt.Errorf("group output %q: %w", name, err)
			}
			obj[name] = v
		}
		out = append(out, obj)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr("iterate groups", err)
	}
	return out, nil
}

// sqlValue converts a value scanned from an expression column.
func sqlValue(v any) (doc.Value, error) {
	switch val := v.(type) {
	case []byte:
		return doc.String(string(val)), nil
	default:
		return doc.FromAny(v)
	}
}

// validatePatch rejects attempts to rewrite immutable record attributes.
func validatePatch(patch doc.Object) error {
	for key, v := range patch {
		switch key {
		case queryir.FieldSystemMode:
			if _, ok := v.(doc.Bool); !ok {
				return fmt.Errorf("update: systemMode must be a bool, got %T", v)
			}
		case queryir.FieldID, queryir.FieldRunID, queryir.FieldEntityTag, queryir.FieldSavepoint:
			return fmt.Errorf("update: field %q cannot be changed", key)
		default:
			if err := queryir.ValidateField(key); err != nil {
				return fmt.Errorf("update: %w", err)
			}
		}
	}
	return nil
}

func applyPatch(rec *VirtualRecord, patch doc.Object) {
	if rec.Payload == nil {
		rec.Payload = doc.Object{}
	}
	for _, key := range patch.SortedKeys() {
		v := patch[key]
		if key == queryir.FieldSystemMode {
			rec.SystemMode = bool(v.(doc.Bool))
			continue
		}
		rec.Payload.Set(key, v)
	}
}

// stripRecordFields returns a copy of payload without record attribute keys.
func stripRecordFields(payload doc.Object) doc.Object {
	out := payload.Clone()
	if out == nil {
		return doc.Object{}
	}
	for key := range out {
		if queryir.IsRecordField(key) {
			delete(out, key)
		}
	}
	return out
}

// splitChunks returns the [start, end) bounds of consecutive chunks of at
// most size elements. n = 0 yields no chunks.
func splitChunks(n, size int) [][2]int {
	if size <= 0 {
		size = DefaultChunkSize
	}
	var chunks [][2]int
	for start := 0; start < n; start += size {
		chunks = append(chunks, [2]int{start, min(start+size, n)})
	}
	return chunks
}

// jsonList binds vals as one JSON array parameter. The statement uses a
// single SQL variable however many values a chunk holds.
func jsonList[T any](vals []T) (string, any, error) {
	data, err := json.Marshal(vals)
	if err != nil {
		return "", nil, err
	}
	return "(SELECT value FROM json_each(?))", string(data), nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func boolInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

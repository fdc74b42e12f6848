package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hashgraph/guardian-sub011/internal/doc"
	"github.com/hashgraph/guardian-sub011/internal/queryir"
	"github.com/hashgraph/guardian-sub011/internal/querysql"
)

// Document is one entry of a real-store collection. The id is kept both
// in the ID field and under "id" in Data.
type Document struct {
	Seq  int64
	ID   string
	Data doc.Object
}

// InsertDocuments writes documents to a collection in chunks.
func (s *Store) InsertDocuments(ctx context.Context, collection string, docs []doc.Object) ([]Document, error) {
	out := make([]Document, 0, len(docs))
	for _, bounds := range splitChunks(len(docs), s.chunkSize) {
		written, err := s.writeDocuments(ctx, collection, docs[bounds[0]:bounds[1]])
		if err != nil {
			return out, err
		}
		out = append(out, written...)
	}
	return out, nil
}

// SaveDocuments replaces documents by id and inserts the rest. An id held
// by a document of another collection fails with ErrIDInUse.
func (s *Store) SaveDocuments(ctx context.Context, collection string, docs []doc.Object) ([]Document, error) {
	return s.InsertDocuments(ctx, collection, docs)
}

func (s *Store) writeDocuments(ctx context.Context, collection string, docs []doc.Object) ([]Document, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, wrapErr("write documents: begin tx", err)
	}
	defer tx.Rollback()

	out := make([]Document, len(docs))
	for i, d := range docs {
		data := d.Clone()
		if data == nil {
			data = doc.Object{}
		}
		id := data.GetString(queryir.FieldID)
		if id == "" {
			id = s.ids.Generate()
		}
		data[queryir.FieldID] = doc.String(id)

		encoded, err := doc.MarshalCanonical(data)
		if err != nil {
			return nil, fmt.Errorf("write document %s: %w", id, err)
		}

		var seq int64
		err = tx.QueryRowContext(ctx, `
			INSERT INTO documents (id, collection, data)
			VALUES (?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET data = excluded.data
			WHERE documents.collection = excluded.collection
			RETURNING seq
		`, id, collection, string(encoded)).Scan(&seq)
		if err == sql.ErrNoRows {
			return nil, wrapErr("write document", fmt.Errorf("%s in %s: %w", id, collection, ErrIDInUse))
		}
		if err != nil {
			return nil, wrapErr("write document", err)
		}
		out[i] = Document{Seq: seq, ID: id, Data: data}
	}

	if err := tx.Commit(); err != nil {
		return nil, wrapErr("write documents: commit", err)
	}
	return out, nil
}

// FindDocuments returns the documents of a collection matching filter.
func (s *Store) FindDocuments(ctx context.Context, collection string, filter queryir.Predicate, opts queryir.Options) ([]Document, error) {
	c := querysql.NewSQLCompiler(querysql.DocumentsTable(collection))
	query, params, err := c.Select(filter, opts)
	if err != nil {
		return nil, fmt.Errorf("find documents: %w", err)
	}
	return queryDocuments(ctx, s.db, query, params, opts.Fields)
}

// CountDocuments counts the documents of a collection matching filter.
func (s *Store) CountDocuments(ctx context.Context, collection string, filter queryir.Predicate) (int, error) {
	c := querysql.NewSQLCompiler(querysql.DocumentsTable(collection))
	query, params, err := c.Count(filter)
	if err != nil {
		return 0, fmt.Errorf("count documents: %w", err)
	}
	var n int
	if err := s.db.QueryRowContext(ctx, query, params...).Scan(&n); err != nil {
		return 0, wrapErr("count documents", err)
	}
	return n, nil
}

// UpdateDocuments applies patch (dotted paths) to every matching document.
func (s *Store) UpdateDocuments(ctx context.Context, collection string, filter queryir.Predicate, patch doc.Object) (int, error) {
	if _, ok := patch[queryir.FieldID]; ok {
		return 0, fmt.Errorf("update documents: field %q cannot be changed", queryir.FieldID)
	}
	c := querysql.NewSQLCompiler(querysql.DocumentsTable(collection))
	query, params, err := c.Select(filter, queryir.Options{})
	if err != nil {
		return 0, fmt.Errorf("update documents: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, wrapErr("update documents: begin tx", err)
	}
	defer tx.Rollback()

	docs, err := queryDocuments(ctx, tx, query, params, nil)
	if err != nil {
		return 0, err
	}
	for _, d := range docs {
		for _, key := range patch.SortedKeys() {
			d.Data.Set(key, patch[key])
		}
		encoded, err := doc.MarshalCanonical(d.Data)
		if err != nil {
			return 0, fmt.Errorf("update document %s: %w", d.ID, err)
		}
		if _, err := tx.ExecContext(ctx, "UPDATE documents SET data = ? WHERE seq = ?", string(encoded), d.Seq); err != nil {
			return 0, wrapErr("update document", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, wrapErr("update documents: commit", err)
	}
	return len(docs), nil
}

// RemoveDocuments deletes documents of a collection by id.
func (s *Store) RemoveDocuments(ctx context.Context, collection string, ids []string) (int, error) {
	removed := 0
	for _, bounds := range splitChunks(len(ids), s.chunkSize) {
		in, arg, err := jsonList(ids[bounds[0]:bounds[1]])
		if err != nil {
			return removed, fmt.Errorf("remove documents: %w", err)
		}
		res, err := s.db.ExecContext(ctx,
			"DELETE FROM documents WHERE collection = ? AND id IN "+in, collection, arg)
		if err != nil {
			return removed, wrapErr("remove documents", err)
		}
		n, _ := res.RowsAffected()
		removed += int(n)
	}
	return removed, nil
}

// AggregateDocuments runs a pipeline over one collection.
func (s *Store) AggregateDocuments(ctx context.Context, collection string, pipeline queryir.Pipeline) ([]doc.Object, error) {
	c := querysql.NewSQLCompiler(querysql.DocumentsTable(collection))
	q, err := c.Aggregate(pipeline)
	if err != nil {
		return nil, fmt.Errorf("aggregate documents: %w", err)
	}
	if q.Grouped {
		return queryGroups(ctx, s.db, q)
	}
	docs, err := queryDocuments(ctx, s.db, q.SQL, q.Params, nil)
	if err != nil {
		return nil, err
	}
	out := make([]doc.Object, len(docs))
	for i, d := range docs {
		out[i] = d.Data
	}
	return out, nil
}

func queryDocuments(ctx context.Context, q querier, query string, params []any, fields []string) ([]Document, error) {
	rows, err := q.QueryContext(ctx, query, params...)
	if err != nil {
		return nil, wrapErr("query documents", err)
	}
	defer rows.Close()

	docs := []Document{}
	for rows.Next() {
		var (
			d    Document
			data string
		)
		if err := rows.Scan(&d.Seq, &d.ID, &data); err != nil {
			return nil, wrapErr("scan document", err)
		}
		obj, err := doc.ParseObject([]byte(data))
		if err != nil {
			return nil, fmt.Errorf("document %s: %w", d.ID, err)
		}
		if len(fields) > 0 {
			obj = obj.Project(append([]string{queryir.FieldID}, fields...))
		}
		d.Data = obj
		docs = append(docs, d)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr("iterate documents", err)
	}
	return docs, nil
}

// compile-time check that *sql.Tx satisfies querier
var _ querier = (*sql.Tx)(nil)

package router

import (
	"context"

	"github.com/hashgraph/guardian-sub011/internal/doc"
	"github.com/hashgraph/guardian-sub011/internal/queryir"
	"github.com/hashgraph/guardian-sub011/internal/store"
)

// Backend is the real persistence store the router passes operations to
// when no dry run is active. Collections are named after entity types.
// Every document carries its identifier under "id".
type Backend interface {
	Insert(ctx context.Context, collection string, docs []doc.Object) ([]doc.Object, error)
	Save(ctx context.Context, collection string, docs []doc.Object) ([]doc.Object, error)
	Find(ctx context.Context, collection string, filter queryir.Predicate, opts queryir.Options) ([]doc.Object, error)
	Count(ctx context.Context, collection string, filter queryir.Predicate) (int, error)
	Update(ctx context.Context, collection string, filter queryir.Predicate, patch doc.Object) (int, error)
	Remove(ctx context.Context, collection string, ids []string) (int, error)
	Aggregate(ctx context.Context, collection string, pipeline queryir.Pipeline) ([]doc.Object, error)
}

// StoreBackend serves the Backend interface from the documents table of a
// SQLite store.
type StoreBackend struct {
	s *store.Store
}

// NewStoreBackend wraps a store.
func NewStoreBackend(s *store.Store) *StoreBackend {
	return &StoreBackend{s: s}
}

var _ Backend = (*StoreBackend)(nil)

func (b *StoreBackend) Insert(ctx context.Context, collection string, docs []doc.Object) ([]doc.Object, error) {
	written, err := b.s.InsertDocuments(ctx, collection, docs)
	return documentData(written), err
}

func (b *StoreBackend) Save(ctx context.Context, collection string, docs []doc.Object) ([]doc.Object, error) {
	written, err := b.s.SaveDocuments(ctx, collection, docs)
	return documentData(written), err
}

func (b *StoreBackend) Find(ctx context.Context, collection string, filter queryir.Predicate, opts queryir.Options) ([]doc.Object, error) {
	found, err := b.s.FindDocuments(ctx, collection, filter, opts)
	return documentData(found), err
}

func (b *StoreBackend) Count(ctx context.Context, collection string, filter queryir.Predicate) (int, error) {
	return b.s.CountDocuments(ctx, collection, filter)
}

func (b *StoreBackend) Update(ctx context.Context, collection string, filter queryir.Predicate, patch doc.Object) (int, error) {
	return b.s.UpdateDocuments(ctx, collection, filter, patch)
}

func (b *StoreBackend) Remove(ctx context.Context, collection string, ids []string) (int, error) {
	return b.s.RemoveDocuments(ctx, collection, ids)
}

func (b *StoreBackend) Aggregate(ctx context.Context, collection string, pipeline queryir.Pipeline) ([]doc.Object, error) {
	return b.s.AggregateDocuments(ctx, collection, pipeline)
}

func documentData(docs []store.Document) []doc.Object {
	out := make([]doc.Object, len(docs))
	for i, d := range docs {
		out[i] = d.Data
	}
	return out
}

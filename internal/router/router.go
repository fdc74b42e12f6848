// Package router is the single CRUD surface the workflow engine calls
// instead of calling storage directly.
//
// A Session binds the router to one dryrun.Run. When the run is active,
// every operation is rewritten to target the virtual record store, scoped
// to the run id and the entity's tag; otherwise it passes through to the
// real Backend untouched.
package router

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hashgraph/guardian-sub011/internal/doc"
	"github.com/hashgraph/guardian-sub011/internal/dryrun"
	"github.com/hashgraph/guardian-sub011/internal/metrics"
	"github.com/hashgraph/guardian-sub011/internal/queryir"
	"github.com/hashgraph/guardian-sub011/internal/store"
)

// Routing paths, used as metric labels.
const (
	PathVirtual = "virtual"
	PathReal    = "real"
)

// Router routes operations to the virtual store or the real backend.
// It holds no per-run state and is safe for concurrent use.
type Router struct {
	virtual *store.Store
	real    Backend
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// Option configures a Router.
type Option func(*Router)

// WithMetrics records written-record counts.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Router) { r.metrics = m }
}

// WithLogger sets the router logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Router) {
		if l != nil {
			r.logger = l
		}
	}
}

// New creates a router over the virtual store and the real backend.
func New(virtual *store.Store, real Backend, opts ...Option) *Router {
	r := &Router{
		virtual: virtual,
		real:    real,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Store returns the virtual record store.
func (r *Router) Store() *store.Store {
	return r.virtual
}

// Session returns a handle bound to run.
func (r *Router) Session(run dryrun.Run) *Session {
	return &Session{router: r, run: run}
}

// Session is a per-request handle. It is cheap to create and carries the
// run context into every call.
type Session struct {
	router *Router
	run    dryrun.Run
}

// Run returns the session's run context.
func (s *Session) Run() dryrun.Run {
	return s.run
}

// scope returns the (runId, entityTag) conjunction for e.
func (s *Session) scope(e dryrun.EntityType) (queryir.And, string, error) {
	tag, err := dryrun.TagFor(e)
	if err != nil {
		return queryir.And{}, "", err
	}
	return queryir.AllOf(
		queryir.Eq(queryir.FieldRunID, doc.String(s.run.ID())),
		queryir.Eq(queryir.FieldEntityTag, doc.String(tag)),
	), tag, nil
}

func collection(e dryrun.EntityType) (string, error) {
	if !e.Valid() {
		_, err := dryrun.TagFor(e)
		return "", err
	}
	return e.String(), nil
}

// Create builds an unsaved entity. When a run is active the entity is
// stamped with the run id, the entity tag and the system flag right away,
// so an untagged copy can never reach the virtual store.
func (s *Session) Create(e dryrun.EntityType, data doc.Object) (doc.Object, error) {
	out := data.Clone()
	if out == nil {
		out = doc.Object{}
	}
	if !s.run.Active() {
		if _, err := collection(e); err != nil {
			return nil, err
		}
		return out, nil
	}

	tag, err := dryrun.TagFor(e)
	if err != nil {
		return nil, err
	}
	out[queryir.FieldRunID] = doc.String(s.run.ID())
	out[queryir.FieldEntityTag] = doc.String(tag)
	out[queryir.FieldSystemMode] = doc.Bool(s.run.SystemMode())
	return out, nil
}

// Save persists one entity: replaced by id when it exists, inserted
// otherwise.
func (s *Session) Save(ctx context.Context, e dryrun.EntityType, item doc.Object) (doc.Object, error) {
	out, err := s.SaveMany(ctx, e, []doc.Object{item})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

// SaveMany persists entities in batches of the store's chunk size. Inside a
// run every entity is retagged with the session's system flag.
func (s *Session) SaveMany(ctx context.Context, e dryrun.EntityType, items []doc.Object) ([]doc.Object, error) {
	return s.save(ctx, e, items, false)
}

// Rewrite persists complete entities like SaveMany, but each entity keeps
// the system flag it already carries. It serves bookkeeping writes, such
// as switching the active user, that must not change which records a
// partial clear keeps.
func (s *Session) Rewrite(ctx context.Context, e dryrun.EntityType, items []doc.Object) ([]doc.Object, error) {
	for i, item := range items {
		if item.GetString(queryir.FieldID) == "" {
			return nil, fmt.Errorf("rewrite %s: item %d has no id", e, i)
		}
	}
	return s.save(ctx, e, items, true)
}

func (s *Session) save(ctx context.Context, e dryrun.EntityType, items []doc.Object, keepFlags bool) ([]doc.Object, error) {
	if !s.run.Active() {
		coll, err := collection(e)
		if err != nil {
			return nil, err
		}
		out, err := s.router.real.Save(ctx, coll, items)
		if err != nil {
			return nil, fmt.Errorf("save %s: %w", coll, err)
		}
		s.router.metrics.AddRecordsWritten(PathReal, len(out))
		return out, nil
	}

	recs, err := s.records(e, items, keepFlags)
	if err != nil {
		return nil, err
	}
	saved, err := s.router.virtual.Save(ctx, recs)
	s.router.metrics.AddRecordsWritten(PathVirtual, len(saved))
	if err != nil {
		return nil, fmt.Errorf("save %s: %w", e, err)
	}
	return documents(saved), nil
}

// CreateMany persists amount copies of template, chunked by the store's
// chunk size. It returns the number of entities written.
func (s *Session) CreateMany(ctx context.Context, e dryrun.EntityType, template doc.Object, amount int) (int, error) {
	if amount <= 0 {
		return 0, nil
	}
	items := make([]doc.Object, amount)
	for i := range items {
		items[i] = template.Clone()
		if items[i] != nil {
			delete(items[i], queryir.FieldID)
		}
	}

	if !s.run.Active() {
		coll, err := collection(e)
		if err != nil {
			return 0, err
		}
		out, err := s.router.real.Insert(ctx, coll, items)
		s.router.metrics.AddRecordsWritten(PathReal, len(out))
		if err != nil {
			return len(out), fmt.Errorf("create many %s: %w", coll, err)
		}
		return len(out), nil
	}

	recs, err := s.records(e, items, false)
	if err != nil {
		return 0, err
	}
	written, err := s.router.virtual.InsertMany(ctx, recs)
	s.router.metrics.AddRecordsWritten(PathVirtual, len(written))
	if err != nil {
		return len(written), fmt.Errorf("create many %s: %w", e, err)
	}
	s.router.logger.Debug("created virtual records",
		"run_id", s.run.ID(), "entity", e.String(), "records", len(written),
		"chunks", s.router.virtual.ChunkCount(len(written)))
	return len(written), nil
}

// records converts entities into tagged virtual records for the session.
// The system flag comes from the session unless keepFlags is set and the
// entity carries one.
func (s *Session) records(e dryrun.EntityType, items []doc.Object, keepFlags bool) ([]store.VirtualRecord, error) {
	tag, err := dryrun.TagFor(e)
	if err != nil {
		return nil, err
	}
	recs := make([]store.VirtualRecord, len(items))
	for i, item := range items {
		systemMode := s.run.SystemMode()
		if v, ok := item[queryir.FieldSystemMode].(doc.Bool); ok && keepFlags {
			systemMode = bool(v)
		}
		recs[i] = store.VirtualRecord{
			ID:         item.GetString(queryir.FieldID),
			RunID:      s.run.ID(),
			EntityTag:  tag,
			SystemMode: systemMode,
			Payload:    item,
		}
	}
	return recs, nil
}

// Find returns the entities matching filter.
func (s *Session) Find(ctx context.Context, e dryrun.EntityType, filter queryir.Predicate, opts queryir.Options) ([]doc.Object, error) {
	if !s.run.Active() {
		coll, err := collection(e)
		if err != nil {
			return nil, err
		}
		return s.router.real.Find(ctx, coll, filter, opts)
	}

	scope, _, err := s.scope(e)
	if err != nil {
		return nil, err
	}
	recs, err := s.router.virtual.Find(ctx, queryir.AllOf(scope, filter), opts)
	if err != nil {
		return nil, err
	}
	return documents(recs), nil
}

// FindOne returns the first entity matching filter.
func (s *Session) FindOne(ctx context.Context, e dryrun.EntityType, filter queryir.Predicate) (doc.Object, bool, error) {
	found, err := s.Find(ctx, e, filter, queryir.Options{Limit: 1})
	if err != nil || len(found) == 0 {
		return nil, false, err
	}
	return found[0], true, nil
}

// FindByID looks an entity up by identifier. Inside a run the lookup uses
// the id alone: ids are unique across the virtual store.
func (s *Session) FindByID(ctx context.Context, e dryrun.EntityType, id string) (doc.Object, bool, error) {
	if !s.run.Active() {
		return s.FindOne(ctx, e, queryir.Eq(queryir.FieldID, doc.String(id)))
	}
	if _, err := dryrun.TagFor(e); err != nil {
		return nil, false, err
	}
	rec, ok, err := s.router.virtual.FindByID(ctx, id)
	if err != nil || !ok {
		return nil, false, err
	}
	return rec.Document(), true, nil
}

// FindAndCount returns one page of matches and the total match count.
func (s *Session) FindAndCount(ctx context.Context, e dryrun.EntityType, filter queryir.Predicate, opts queryir.Options) ([]doc.Object, int, error) {
	found, err := s.Find(ctx, e, filter, opts)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.Count(ctx, e, filter)
	if err != nil {
		return nil, 0, err
	}
	return found, total, nil
}

// Count returns the number of entities matching filter.
func (s *Session) Count(ctx context.Context, e dryrun.EntityType, filter queryir.Predicate) (int, error) {
	if !s.run.Active() {
		coll, err := collection(e)
		if err != nil {
			return 0, err
		}
		return s.router.real.Count(ctx, coll, filter)
	}

	scope, _, err := s.scope(e)
	if err != nil {
		return 0, err
	}
	return s.router.virtual.Count(ctx, queryir.AllOf(scope, filter))
}

// Update applies patch to every entity matching filter. Inside a run the
// matched records also take the session's system flag.
func (s *Session) Update(ctx context.Context, e dryrun.EntityType, filter queryir.Predicate, patch doc.Object) (int, error) {
	if !s.run.Active() {
		coll, err := collection(e)
		if err != nil {
			return 0, err
		}
		return s.router.real.Update(ctx, coll, filter, patch)
	}

	scope, _, err := s.scope(e)
	if err != nil {
		return 0, err
	}
	retagged := patch.Clone()
	if retagged == nil {
		retagged = doc.Object{}
	}
	retagged[queryir.FieldSystemMode] = doc.Bool(s.run.SystemMode())
	return s.router.virtual.Update(ctx, queryir.AllOf(scope, filter), retagged)
}

// UpdateMany replaces each entity by id. This is the bulk form of Update:
// every item is a complete entity rather than a patch.
func (s *Session) UpdateMany(ctx context.Context, e dryrun.EntityType, items []doc.Object) (int, error) {
	for i, item := range items {
		if item.GetString(queryir.FieldID) == "" {
			return 0, fmt.Errorf("update many %s: item %d has no id", e, i)
		}
	}
	saved, err := s.SaveMany(ctx, e, items)
	return len(saved), err
}

// Remove deletes entities by their ids.
func (s *Session) Remove(ctx context.Context, e dryrun.EntityType, items []doc.Object) (int, error) {
	ids := make([]string, 0, len(items))
	for _, item := range items {
		if id := item.GetString(queryir.FieldID); id != "" {
			ids = append(ids, id)
		}
	}

	if !s.run.Active() {
		coll, err := collection(e)
		if err != nil {
			return 0, err
		}
		return s.router.real.Remove(ctx, coll, ids)
	}

	tag, err := dryrun.TagFor(e)
	if err != nil {
		return 0, err
	}
	// Only ids that belong to this run and entity are removed.
	return s.router.virtual.RemoveInRun(ctx, s.run.ID(), tag, ids)
}

// Aggregate runs a pipeline. Inside a run the pipeline is prefixed with a
// match on the run id and the entity tag.
func (s *Session) Aggregate(ctx context.Context, e dryrun.EntityType, pipeline queryir.Pipeline) ([]doc.Object, error) {
	if !s.run.Active() {
		coll, err := collection(e)
		if err != nil {
			return nil, err
		}
		return s.router.real.Aggregate(ctx, coll, pipeline)
	}

	scope, _, err := s.scope(e)
	if err != nil {
		return nil, err
	}
	return s.router.virtual.Aggregate(ctx, pipeline.Prepend(scope))
}

func documents(recs []store.VirtualRecord) []doc.Object {
	out := make([]doc.Object, len(recs))
	for i, rec := range recs {
		out[i] = rec.Document()
	}
	return out
}

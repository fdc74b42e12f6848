package store

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hashgraph/guardian-sub011/internal/doc"
	"github.com/hashgraph/guardian-sub011/internal/queryir"
)

func runFilter(runID, tag string) queryir.And {
	return queryir.AllOf(
		queryir.Eq(queryir.FieldRunID, doc.String(runID)),
		queryir.Eq(queryir.FieldEntityTag, doc.String(tag)),
	)
}

func TestInsert_AssignsIDAndStripsRecordFields(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)

	rec, err := s.Insert(ctx, testRecord("run-1", "Message",
		doc.O("topicId", doc.String("0.0.1")),
		doc.O("runId", doc.String("spoofed")),
	))
	require.NoError(t, err)

	assert.Equal(t, "rec-0001", rec.ID)
	assert.Equal(t, int64(1), rec.Seq)
	assert.Equal(t, doc.NewObject(doc.O("topicId", doc.String("0.0.1"))), rec.Payload)

	got, ok, err := s.FindByID(ctx, rec.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, rec, got)
}

func TestInsertMany_ChunksAndPersistsEverything(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t, WithChunkSize(500))

	recs := make([]VirtualRecord, 1234)
	for i := range recs {
		recs[i] = testRecord("run-1", "MintTransaction", doc.O("n", doc.Int(i)))
	}

	written, err := s.InsertMany(ctx, recs)
	require.NoError(t, err)
	assert.Len(t, written, 1234)
	assert.Equal(t, 3, s.ChunkCount(len(recs)))

	n, err := s.Count(ctx, runFilter("run-1", "MintTransaction"))
	require.NoError(t, err)
	assert.Equal(t, 1234, n)
}

func TestInsertMany_FailedChunkKeepsEarlierChunks(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t, WithChunkSize(2))

	recs := []VirtualRecord{
		{ID: "a", RunID: "r", EntityTag: "T"},
		{ID: "b", RunID: "r", EntityTag: "T"},
		{ID: "c", RunID: "r", EntityTag: "T"},
		{ID: "a", RunID: "r", EntityTag: "T"},
	}
	written, err := s.InsertMany(ctx, recs)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrStorage))
	assert.Len(t, written, 2)

	n, err := s.Count(ctx, runFilter("r", "T"))
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestFind_FiltersOrdersAndProjects(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)

	_, err := s.InsertMany(ctx, []VirtualRecord{
		testRecord("run-1", "Transactions", doc.O("type", doc.String("mint")), doc.O("amount", doc.Int(5))),
		testRecord("run-1", "Transactions", doc.O("type", doc.String("burn")), doc.O("amount", doc.Int(7))),
		testRecord("run-1", "Transactions", doc.O("type", doc.String("mint")), doc.O("amount", doc.Int(1))),
		testRecord("run-2", "Transactions", doc.O("type", doc.String("mint")), doc.O("amount", doc.Int(9))),
	})
	require.NoError(t, err)

	recs, err := s.Find(ctx,
		queryir.AllOf(runFilter("run-1", "Transactions"), queryir.Eq("type", doc.String("mint"))),
		queryir.Options{OrderBy: []queryir.SortKey{{Field: "amount"}}, Fields: []string{"amount"}})
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, doc.NewObject(doc.O("amount", doc.Int(1))), recs[0].Payload)
	assert.Equal(t, doc.NewObject(doc.O("amount", doc.Int(5))), recs[1].Payload)
	assert.Equal(t, "run-1", recs[0].RunID)

	page, total, err := s.FindAndCount(ctx, runFilter("run-1", "Transactions"), queryir.Options{Limit: 1, Offset: 1})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, page, 1)
	assert.Equal(t, "burn", page[0].Payload.GetString("type"))

	_, ok, err := s.FindOne(ctx, runFilter("run-3", "Transactions"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestUpdate_PatchesPayloadPathsAndSystemMode(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)

	rec, err := s.Insert(ctx, testRecord("run-1", "HederaAccountInfo", doc.O("hederaAccountId", doc.String("0.0.7"))))
	require.NoError(t, err)

	n, err := s.Update(ctx, runFilter("run-1", "HederaAccountInfo"), doc.NewObject(
		doc.O("tokenMap.t1.frozen", doc.Bool(false)),
		doc.O("systemMode", doc.Bool(true)),
	))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, _, err := s.FindByID(ctx, rec.ID)
	require.NoError(t, err)
	assert.True(t, got.SystemMode)
	v, ok := got.Payload.Get("tokenMap.t1.frozen")
	require.True(t, ok)
	assert.Equal(t, doc.Bool(false), v)
}

func TestUpdate_RejectsImmutableFields(t *testing.T) {
	s := createTestStore(t)
	_, err := s.Update(context.Background(), nil, doc.NewObject(doc.O("runId", doc.String("x"))))
	assert.Error(t, err)
	_, err = s.Update(context.Background(), nil, doc.NewObject(doc.O("systemMode", doc.String("x"))))
	assert.Error(t, err)
}

func TestSave_ReplacesOrInserts(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)

	rec, err := s.Insert(ctx, testRecord("run-1", "Policy", doc.O("status", doc.String("DRAFT"))))
	require.NoError(t, err)

	rec.Payload = doc.NewObject(doc.O("status", doc.String("DRY-RUN")))
	saved, err := s.Save(ctx, []VirtualRecord{rec, testRecord("run-1", "Policy", doc.O("status", doc.String("NEW")))})
	require.NoError(t, err)
	require.Len(t, saved, 2)
	assert.Equal(t, rec.Seq, saved[0].Seq)

	got, _, err := s.FindByID(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, "DRY-RUN", got.Payload.GetString("status"))

	n, err := s.Count(ctx, runFilter("run-1", "Policy"))
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestRemove_DeletesUnmarkedAndTombstonesMarked(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)

	marked, err := s.Insert(ctx, testRecord("run-1", "Tag"))
	require.NoError(t, err)
	require.NoError(t, s.ApplyPage(ctx, PageMark, []int64{marked.Seq}))
	plain, err := s.Insert(ctx, testRecord("run-1", "Tag"))
	require.NoError(t, err)

	n, err := s.Remove(ctx, []string{marked.ID, plain.ID, "missing"})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	count, err := s.Count(ctx, runFilter("run-1", "Tag"))
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	var rows int
	require.NoError(t, s.DB().QueryRow("SELECT COUNT(*) FROM records WHERE deleted = 1").Scan(&rows))
	assert.Equal(t, 1, rows)
}

func TestAggregate_GroupAndDocuments(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)

	_, err := s.InsertMany(ctx, []VirtualRecord{
		testRecord("run-1", "Transactions", doc.O("type", doc.String("mint")), doc.O("amount", doc.Int(5))),
		testRecord("run-1", "Transactions", doc.O("type", doc.String("burn")), doc.O("amount", doc.Int(7))),
		testRecord("run-1", "Transactions", doc.O("type", doc.String("mint")), doc.O("amount", doc.Int(1))),
	})
	require.NoError(t, err)

	groups, err := s.Aggregate(ctx, queryir.Pipeline{
		queryir.GroupStage{By: "type", CountAs: "count", Sums: map[string]string{"total": "amount"}},
	}.Prepend(runFilter("run-1", "Transactions")))
	require.NoError(t, err)
	assert.Equal(t, []doc.Object{
		doc.NewObject(doc.O("_id", doc.String("burn")), doc.O("count", doc.Int(1)), doc.O("total", doc.Int(7))),
		doc.NewObject(doc.O("_id", doc.String("mint")), doc.O("count", doc.Int(2)), doc.O("total", doc.Int(6))),
	}, groups)

	docs, err := s.Aggregate(ctx, queryir.Pipeline{queryir.LimitStage{N: 1}}.Prepend(runFilter("run-1", "Transactions")))
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, doc.String("run-1"), docs[0]["runId"])
	assert.Equal(t, doc.String("Transactions"), docs[0]["entityTag"])
	assert.Equal(t, doc.Int(5), docs[0]["amount"])
}

func TestVirtualRecordDocument(t *testing.T) {
	rec := VirtualRecord{ID: "x", EntityTag: "T", Savepoint: true, Payload: doc.NewObject(doc.O("a", doc.Int(1)))}
	d := rec.Document()

	assert.Equal(t, doc.NewObject(
		doc.O("a", doc.Int(1)),
		doc.O("id", doc.String("x")),
		doc.O("entityTag", doc.String("T")),
		doc.O("systemMode", doc.Bool(false)),
		doc.O("savepoint", doc.Bool(true)),
	), d)
	assert.NotContains(t, rec.Payload, "id")
}

func TestRemoveInRun_IgnoresForeignIDs(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)

	own, err := s.Insert(ctx, testRecord("run-1", "Tag"))
	require.NoError(t, err)
	otherRun, err := s.Insert(ctx, testRecord("run-2", "Tag"))
	require.NoError(t, err)
	otherTag, err := s.Insert(ctx, testRecord("run-1", "Other"))
	require.NoError(t, err)

	n, err := s.RemoveInRun(ctx, "run-1", "Tag", []string{own.ID, otherRun.ID, otherTag.ID})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	for _, id := range []string{otherRun.ID, otherTag.ID} {
		_, ok, err := s.FindByID(ctx, id)
		require.NoError(t, err)
		assert.True(t, ok, id)
	}
}

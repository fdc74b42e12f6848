package store

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hashgraph/guardian-sub011/internal/doc"
	"github.com/hashgraph/guardian-sub011/internal/queryir"
	"github.com/hashgraph/guardian-sub011/internal/testutil"
)

// createTestStore creates a new temp-dir store with sequential ids.
func createTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	opts = append([]Option{WithIDGenerator(testutil.NewSequentialIDs("rec"))}, opts...)
	s, err := Open(path, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// testRecord builds a record for run/tag with a payload.
func testRecord(runID, tag string, pairs ...doc.Pair) VirtualRecord {
	return VirtualRecord{RunID: runID, EntityTag: tag, Payload: doc.NewObject(pairs...)}
}

var defaultOpts = queryir.Options{}

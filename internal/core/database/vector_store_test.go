package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/pgvector/pgvector-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markdave123-py/studybuddy/internal/core"
	"github.com/markdave123-py/studybuddy/internal/models"
)

type recordingExec struct {
	queries []string
	args    [][]any
	failOn  int // 1-based call that fails; 0 never
}

func (r *recordingExec) ExecContext(_ context.Context, query string, args ...any) (sql.Result, error) {
	r.queries = append(r.queries, query)
	r.args = append(r.args, args)
	if r.failOn == len(r.queries) {
		return nil, errors.New("payload too large")
	}
	return nil, nil
}

func records(hash string, n int) []models.VectorRecord {
	out := make([]models.VectorRecord, n)
	for i := range out {
		out[i] = models.VectorRecord{
			ID:       fmt.Sprintf("%s_%d", hash, i),
			Values:   []float32{float32(i), 1},
			Metadata: models.VectorMetadata{Hash: hash, ChunkIndex: i, ChunkText: "t"},
		}
	}
	return out
}

func TestVectorStore_UpsertBatches(t *testing.T) {
	exec := &recordingExec{}
	store := newVectorStore(exec, 50)

	n, err := store.Upsert(context.Background(), "dsa", records("A", 120))
	require.NoError(t, err)
	assert.Equal(t, 120, n)
	require.Len(t, exec.queries, 3)

	// 6 columns per row
	assert.Len(t, exec.args[0], 50*6)
	assert.Len(t, exec.args[1], 50*6)
	assert.Len(t, exec.args[2], 20*6)

	assert.Contains(t, exec.queries[0], "INSERT INTO lecture_vectors")
	assert.Contains(t, exec.queries[0], "ON CONFLICT (namespace, id) DO UPDATE")
	assert.Contains(t, exec.queries[2], "$120")

	first := exec.args[0]
	assert.Equal(t, "dsa", first[0])
	assert.Equal(t, "A_0", first[1])
	assert.Equal(t, "A", first[2])
	assert.IsType(t, pgvector.Vector{}, first[4])
	assert.Contains(t, first[5], `"chunkIndex":0`)
}

func TestVectorStore_StopsOnFirstFailedBatch(t *testing.T) {
	exec := &recordingExec{failOn: 2}
	store := newVectorStore(exec, 50)

	n, err := store.Upsert(context.Background(), "dsa", records("A", 150))
	require.ErrorIs(t, err, core.ErrUpsert)
	assert.Equal(t, 50, n)
	assert.Len(t, exec.queries, 2)
}

func TestVectorStore_Empty(t *testing.T) {
	exec := &recordingExec{}
	n, err := newVectorStore(exec, 0).Upsert(context.Background(), "dsa", nil)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, exec.queries)
}

func TestVectorStore_DeleteDocument(t *testing.T) {
	exec := &recordingExec{}
	require.NoError(t, newVectorStore(exec, 50).DeleteDocument(context.Background(), "dsa", "A"))

	require.Len(t, exec.queries, 1)
	assert.True(t, strings.HasPrefix(exec.queries[0], "DELETE FROM lecture_vectors WHERE"))
	assert.ElementsMatch(t, []any{"dsa", "A"}, exec.args[0])
}

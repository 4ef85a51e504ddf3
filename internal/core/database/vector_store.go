package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/pgvector/pgvector-go"

	"github.com/markdave123-py/studybuddy/internal/core"
	"github.com/markdave123-py/studybuddy/internal/models"
)

var _ core.VectorStore = (*VectorStore)(nil)

// DefaultVectorBatchSize keeps one INSERT well under the bind-parameter limit.
const DefaultVectorBatchSize = 50

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// VectorStore keeps chunk embeddings in the lecture_vectors pgvector table.
// The namespace column partitions vectors per subject.
type VectorStore struct {
	db        execer
	batchSize int
}

func NewVectorStore(db *sql.DB, batchSize int) *VectorStore {
	return newVectorStore(db, batchSize)
}

func newVectorStore(db execer, batchSize int) *VectorStore {
	if batchSize <= 0 {
		batchSize = DefaultVectorBatchSize
	}
	return &VectorStore{db: db, batchSize: batchSize}
}

// Upsert writes records in sequential batches. The first failing batch stops
// the loop; the returned count covers the batches already committed.
func (s *VectorStore) Upsert(ctx context.Context, namespace string, records []models.VectorRecord) (int, error) {
	total := 0
	for start := 0; start < len(records); start += s.batchSize {
		end := min(start+s.batchSize, len(records))

		query, args, err := upsertVectorsQuery(namespace, records[start:end])
		if err != nil {
			return total, fmt.Errorf("%w: build batch %d-%d: %v", core.ErrUpsert, start, end-1, err)
		}
		if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
			return total, fmt.Errorf("%w: batch %d-%d: %v", core.ErrUpsert, start, end-1, err)
		}
		total += end - start
	}
	return total, nil
}

func upsertVectorsQuery(namespace string, batch []models.VectorRecord) (string, []any, error) {
	b := psql.Insert("lecture_vectors").
		Columns("namespace", "id", "doc_hash", "chunk_index", "embedding", "metadata")

	for _, r := range batch {
		meta, err := json.Marshal(r.Metadata)
		if err != nil {
			return "", nil, err
		}
		b = b.Values(namespace, r.ID, r.Metadata.Hash, r.Metadata.ChunkIndex, pgvector.NewVector(r.Values), string(meta))
	}

	return b.Suffix(`ON CONFLICT (namespace, id) DO UPDATE
		SET doc_hash = EXCLUDED.doc_hash,
		    chunk_index = EXCLUDED.chunk_index,
		    embedding = EXCLUDED.embedding,
		    metadata = EXCLUDED.metadata,
		    updated_at = now()`).
		ToSql()
}

// DeleteDocument removes every vector of one document in a namespace.
func (s *VectorStore) DeleteDocument(ctx context.Context, namespace, hash string) error {
	query, args, err := psql.Delete("lecture_vectors").
		Where(sq.Eq{"namespace": namespace, "doc_hash": hash}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build delete: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("delete vectors of %s: %w", hash, err)
	}
	return nil
}

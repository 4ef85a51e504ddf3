package core

import (
	"context"

	"github.com/markdave123-py/studybuddy/internal/models"
)

// ProcessedStore persists the ingestion idempotency records.
// It abstracts Postgres so higher layers never depend on a specific DB.
type ProcessedStore interface {
	// ProcessedHashes returns the subset of hashes that already have a record.
	ProcessedHashes(ctx context.Context, hashes []string) (map[string]bool, error)
	MarkProcessed(ctx context.Context, doc *models.ProcessedDocument) error
	ListProcessedBySubject(ctx context.Context, subjectID string) ([]models.ProcessedDocument, error)
	DistinctSubjects(ctx context.Context) ([]string, error)
	CountProcessed(ctx context.Context) (int, error)
	RecentProcessed(ctx context.Context, limit int) ([]models.ProcessedDocument, error)
}

// RecommendationStore persists cached recommendation sets, unique per topic key.
type RecommendationStore interface {
	ListRecommendations(ctx context.Context, subjectID string) ([]models.RecommendationCacheEntry, error)
	// UpsertRecommendation overwrites any existing entry with the same TopicKey.
	UpsertRecommendation(ctx context.Context, entry *models.RecommendationCacheEntry) error
}

// VectorStore writes chunk embeddings into a namespaced index.
type VectorStore interface {
	Upsert(ctx context.Context, namespace string, records []models.VectorRecord) (int, error)
	DeleteDocument(ctx context.Context, namespace, hash string) error
}

// LectureSource is the LMS side of ingestion.
type LectureSource interface {
	ListDocuments(ctx context.Context, courseID string) ([]models.ExternalDocument, error)
	DownloadAsset(ctx context.Context, url string) (data []byte, contentType string, err error)
}

// ObjectClient archives raw lecture assets in S3 or any object storage.
// GetFile returns ErrObjectNotFound for a missing key.
type ObjectClient interface {
	UploadFile(ctx context.Context, key string, data []byte, contentType string) (url string, err error)
	GetFile(ctx context.Context, key string) (data []byte, contentType string, err error)
}

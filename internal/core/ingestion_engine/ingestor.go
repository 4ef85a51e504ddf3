package ingestion_engine

import (
	"context"

	"github.com/markdave123-py/studybuddy/internal/models"
)

// Ingestor is what the HTTP layer and the CLI need from the ingestion engine.
type Ingestor interface {
	IngestCourse(ctx context.Context, courseID string) (*IngestionReport, error)
	IngestUpload(ctx context.Context, subjectID, filename, contentType string, data []byte) (DocumentResult, error)
	SyncStatus(ctx context.Context) (*models.SyncStatus, error)
}

var _ Ingestor = (*DocumentIngestor)(nil)

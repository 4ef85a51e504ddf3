package ingestion_engine

import (
	"log/slog"
	"time"

	"github.com/markdave123-py/studybuddy/internal/core"
)

// IngestConfig tunes the per-document pipeline.
//
// ChunkSize:      runes per chunk (1000).
// ChunkOverlap:   runes shared by consecutive chunks (200).
// EmbedBatchSize: how many chunks go to the embedding provider in one call.
type IngestConfig struct {
	ChunkSize      int
	ChunkOverlap   int
	EmbedBatchSize int
}

// SubjectResolver maps an LMS course to the subject namespace its vectors live in.
type SubjectResolver interface {
	SubjectFor(courseID string) string
}

// Deps are the collaborators of a DocumentIngestor. Archive may be nil.
type Deps struct {
	Source    core.LectureSource
	Store     core.ProcessedStore
	Vectors   core.VectorStore
	Embedder  core.EmbeddingProvider
	Extractor core.DocumentExtractor
	Archive   core.ObjectClient
	Subjects  SubjectResolver
	Logger    *slog.Logger
}

// DocumentIngestor runs discovery and the stage pipeline for each new document.
//
// Documents are processed one at a time; only OCR inside the extractor fans out.
type DocumentIngestor struct {
	Deps
	cfg         *IngestConfig
	logger      *slog.Logger
	now         func() time.Time
	countTokens func(string) int
}

// DocState is the terminal state of one document in a run.
type DocState string

const (
	StateSuccess          DocState = "SUCCESS"
	StateFailed           DocState = "FAILED"
	StateAlreadyProcessed DocState = "ALREADY_PROCESSED"
)

// DocumentResult is one line of an IngestionReport.
type DocumentResult struct {
	Hash        string   `json:"hash"`
	Title       string   `json:"title"`
	State       DocState `json:"state"`
	Stage       string   `json:"stage,omitempty"` // stage that failed
	VectorCount int      `json:"vectorCount"`
	Error       string   `json:"error,omitempty"`
}

// IngestionReport aggregates one course sync.
type IngestionReport struct {
	RunID            string           `json:"runId"`
	CourseID         string           `json:"courseId"`
	SubjectID        string           `json:"subjectId"`
	Total            int              `json:"total"`
	WithAsset        int              `json:"withAsset"`
	AlreadyProcessed int              `json:"alreadyProcessed"`
	NewlyProcessed   int              `json:"newlyProcessed"`
	Failed           int              `json:"failed"`
	Results          []DocumentResult `json:"results"`
	StartedAt        time.Time        `json:"startedAt"`
	FinishedAt       time.Time        `json:"finishedAt"`
}

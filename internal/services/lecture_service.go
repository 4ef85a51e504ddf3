package services

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/go-playground/validator/v10"

	ingestion "github.com/markdave123-py/studybuddy/internal/core/ingestion_engine"
	"github.com/markdave123-py/studybuddy/internal/models"
)

// ErrInvalidUpload is returned for a request the upload path cannot accept at all.
var ErrInvalidUpload = errors.New("invalid upload")

// LectureService is the entry point of the HTTP layer and the CLI into ingestion.
type LectureService struct {
	ingestor ingestion.Ingestor
	validate *validator.Validate
}

func NewLectureService(ingestor ingestion.Ingestor) *LectureService {
	return &LectureService{ingestor: ingestor, validate: validator.New()}
}

// UploadFile is one file of an upload request.
type UploadFile struct {
	Name        string `validate:"required"`
	ContentType string
	Data        []byte `validate:"required"`
}

type UploadRequest struct {
	SubjectID string       `validate:"required"`
	Files     []UploadFile `validate:"required,min=1,dive"`
}

// UploadResult is the outcome for one uploaded file.
type UploadResult struct {
	File        string             `json:"file"`
	Hash        string             `json:"hash,omitempty"`
	State       ingestion.DocState `json:"state"`
	VectorCount int                `json:"vectorCount"`
	Error       string             `json:"error,omitempty"`
}

func (s *LectureService) Sync(ctx context.Context, courseID string) (*ingestion.IngestionReport, error) {
	courseID = strings.TrimSpace(courseID)
	if courseID == "" {
		return nil, errors.New("course id is required")
	}
	return s.ingestor.IngestCourse(ctx, courseID)
}

func (s *LectureService) Status(ctx context.Context) (*models.SyncStatus, error) {
	return s.ingestor.SyncStatus(ctx)
}

// Upload ingests each file independently; one bad file never fails the others.
func (s *LectureService) Upload(ctx context.Context, req UploadRequest) ([]UploadResult, error) {
	req.SubjectID = strings.TrimSpace(req.SubjectID)
	if err := s.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidUpload, err)
	}

	results := make([]UploadResult, 0, len(req.Files))
	for _, f := range req.Files {
		name := cleanFilename(f.Name)
		res, err := s.ingestor.IngestUpload(ctx, req.SubjectID, name, f.ContentType, f.Data)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return results, ctxErr
			}
			results = append(results, UploadResult{File: name, State: ingestion.StateFailed, Error: err.Error()})
			continue
		}
		results = append(results, UploadResult{
			File:        name,
			Hash:        res.Hash,
			State:       res.State,
			VectorCount: res.VectorCount,
			Error:       res.Error,
		})
	}
	return results, nil
}

// cleanFilename drops any client-side directory part.
func cleanFilename(name string) string {
	name = strings.TrimSpace(strings.ReplaceAll(name, "\\", "/"))
	return path.Base(name)
}

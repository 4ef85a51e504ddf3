package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"

	"github.com/go-chi/chi/v5"

	ingestion "github.com/markdave123-py/studybuddy/internal/core/ingestion_engine"
	"github.com/markdave123-py/studybuddy/internal/logging"
	"github.com/markdave123-py/studybuddy/internal/models"
	"github.com/markdave123-py/studybuddy/internal/services"
)

// maxUploadMemory is how much of a multipart body is held in memory; the rest spills to disk.
const maxUploadMemory = 32 << 20

type LectureOps interface {
	Sync(ctx context.Context, courseID string) (*ingestion.IngestionReport, error)
	Status(ctx context.Context) (*models.SyncStatus, error)
	Upload(ctx context.Context, req services.UploadRequest) ([]services.UploadResult, error)
}

// DefaultMaxUploadBytes caps an upload request body when no limit is given.
const DefaultMaxUploadBytes = 200 << 20

type LectureHandler struct {
	lectures  LectureOps
	maxUpload int64
	logger    *slog.Logger
}

// NewLectureHandler rejects upload bodies larger than maxUploadBytes.
func NewLectureHandler(lectures LectureOps, maxUploadBytes int64, logger *slog.Logger) *LectureHandler {
	if maxUploadBytes <= 0 {
		maxUploadBytes = DefaultMaxUploadBytes
	}
	return &LectureHandler{
		lectures:  lectures,
		maxUpload: maxUploadBytes,
		logger:    logging.OrDefault(logger).With("component", "http"),
	}
}

type syncFailure struct {
	Error  string                     `json:"error"`
	Report *ingestion.IngestionReport `json:"report,omitempty"`
}

// Sync runs ingestion for one course and returns its report.
func (h *LectureHandler) Sync(w http.ResponseWriter, r *http.Request) {
	courseID := chi.URLParam(r, "courseId")

	report, err := h.lectures.Sync(r.Context(), courseID)
	if err != nil {
		h.logger.Error("sync failed", "course", courseID, "err", err)
		writeJSON(w, http.StatusInternalServerError, syncFailure{Error: err.Error(), Report: report})
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (h *LectureHandler) Status(w http.ResponseWriter, r *http.Request) {
	status, err := h.lectures.Status(r.Context())
	if err != nil {
		h.logger.Error("status failed", "err", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, status)
}

type uploadResponse struct {
	SubjectID string                  `json:"subjectId"`
	Results   []services.UploadResult `json:"results"`
}

// Upload ingests the multipart "files" (or "files[]") parts into the "subjectId" namespace.
func (h *LectureHandler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)
	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("upload exceeds %d bytes", tooLarge.Limit))
			return
		}
		writeError(w, http.StatusBadRequest, "expected multipart form")
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	req := services.UploadRequest{SubjectID: r.FormValue("subjectId")}
	parts := append(r.MultipartForm.File["files"], r.MultipartForm.File["files[]"]...)
	for _, fh := range parts {
		data, err := readPart(fh)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("read %s: %v", fh.Filename, err))
			return
		}
		req.Files = append(req.Files, services.UploadFile{
			Name:        fh.Filename,
			ContentType: fh.Header.Get("Content-Type"),
			Data:        data,
		})
	}

	results, err := h.lectures.Upload(r.Context(), req)
	if err != nil {
		if errors.Is(err, services.ErrInvalidUpload) {
			writeError(w, http.StatusBadRequest, "files and subjectId are required")
			return
		}
		h.logger.Error("upload failed", "subject", req.SubjectID, "err", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, uploadResponse{SubjectID: req.SubjectID, Results: results})
}

func readPart(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

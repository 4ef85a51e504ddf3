package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markdave123-py/studybuddy/internal/core"
	ingestion "github.com/markdave123-py/studybuddy/internal/core/ingestion_engine"
	"github.com/markdave123-py/studybuddy/internal/models"
	"github.com/markdave123-py/studybuddy/internal/services"
)

type lectureOpsFake struct {
	syncErr   error
	uploadReq services.UploadRequest
}

func (f *lectureOpsFake) Sync(_ context.Context, courseID string) (*ingestion.IngestionReport, error) {
	report := &ingestion.IngestionReport{CourseID: courseID, Total: 3, NewlyProcessed: 2}
	return report, f.syncErr
}

func (f *lectureOpsFake) Status(context.Context) (*models.SyncStatus, error) {
	return &models.SyncStatus{TotalProcessed: 4, RecentDocuments: []models.ProcessedDocument{{Hash: "A"}}}, nil
}

func (f *lectureOpsFake) Upload(_ context.Context, req services.UploadRequest) ([]services.UploadResult, error) {
	f.uploadReq = req
	if req.SubjectID == "" || len(req.Files) == 0 {
		return nil, services.ErrInvalidUpload
	}
	out := make([]services.UploadResult, len(req.Files))
	for i, file := range req.Files {
		out[i] = services.UploadResult{File: file.Name, State: ingestion.StateSuccess}
	}
	return out, nil
}

type recOpsFake struct {
	refreshed string
	err       error
}

func (f *recOpsFake) GetRecommendations(_ context.Context, subjectID string) ([]models.RecommendationCacheEntry, error) {
	return nil, f.err
}

func (f *recOpsFake) Refresh(_ context.Context, subjectID string) ([]models.RecommendationCacheEntry, error) {
	f.refreshed = subjectID
	return []models.RecommendationCacheEntry{{SubjectID: subjectID, TopicTitle: "Trees"}}, f.err
}

func router(l LectureOps, rec RecommendationOps) http.Handler {
	return routerWithLimit(l, rec, 1<<20)
}

func routerWithLimit(l LectureOps, rec RecommendationOps, maxUpload int64) http.Handler {
	lh := NewLectureHandler(l, maxUpload, nil)
	rh := NewRecommendationHandler(rec, nil)
	r := chi.NewRouter()
	r.Get("/health", Health)
	r.Post("/api/sync/{courseId}", lh.Sync)
	r.Get("/api/sync/status", lh.Status)
	r.Post("/api/upload", lh.Upload)
	r.Get("/api/recommendations/{subjectId}", rh.Get)
	r.Post("/api/recommendations/{subjectId}/refresh", rh.Refresh)
	return r
}

func do(t *testing.T, h http.Handler, req *http.Request) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return rec, body
}

func TestSync(t *testing.T) {
	h := router(&lectureOpsFake{}, &recOpsFake{})
	rec, body := do(t, h, httptest.NewRequest(http.MethodPost, "/api/sync/cs101", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "cs101", body["courseId"])
	assert.EqualValues(t, 2, body["newlyProcessed"])
}

func TestSync_FailureKeepsPartialReport(t *testing.T) {
	h := router(&lectureOpsFake{syncErr: fmt.Errorf("%w: login rejected", core.ErrCredential)}, &recOpsFake{})
	rec, body := do(t, h, httptest.NewRequest(http.MethodPost, "/api/sync/cs101", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, body["error"], "login rejected")
	assert.NotNil(t, body["report"])
}

func TestStatus(t *testing.T) {
	h := router(&lectureOpsFake{}, &recOpsFake{})
	rec, body := do(t, h, httptest.NewRequest(http.MethodGet, "/api/sync/status", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 4, body["totalProcessed"])
	assert.Len(t, body["recentDocuments"], 1)
}

func multipartRequest(t *testing.T, subjectID string, files map[string]string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if subjectID != "" {
		require.NoError(t, mw.WriteField("subjectId", subjectID))
	}
	for name, content := range files {
		fw, err := mw.CreateFormFile("files", name)
		require.NoError(t, err)
		_, err = fw.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestUpload(t *testing.T) {
	fake := &lectureOpsFake{}
	h := router(fake, &recOpsFake{})

	rec, body := do(t, h, multipartRequest(t, "dsa", map[string]string{"trees.pdf": "%PDF-1.4"}))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "dsa", body["subjectId"])
	assert.Len(t, body["results"], 1)

	require.Len(t, fake.uploadReq.Files, 1)
	assert.Equal(t, "trees.pdf", fake.uploadReq.Files[0].Name)
	assert.Equal(t, []byte("%PDF-1.4"), fake.uploadReq.Files[0].Data)
}

func TestUpload_BadRequests(t *testing.T) {
	h := router(&lectureOpsFake{}, &recOpsFake{})

	rec, _ := do(t, h, multipartRequest(t, "", map[string]string{"a.pdf": "x"}))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = do(t, h, multipartRequest(t, "dsa", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = do(t, h, httptest.NewRequest(http.MethodPost, "/api/upload", bytes.NewBufferString("{}")))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUpload_BodyOverLimit(t *testing.T) {
	fake := &lectureOpsFake{}
	h := routerWithLimit(fake, &recOpsFake{}, 1024)

	big := strings.Repeat("x", 4096)
	rec, body := do(t, h, multipartRequest(t, "dsa", map[string]string{"scan.pdf": big}))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Equal(t, "upload exceeds 1024 bytes", body["error"])
	assert.Empty(t, fake.uploadReq.Files)

	rec, _ = do(t, h, multipartRequest(t, "dsa", map[string]string{"notes.pdf": "%PDF-1.4"}))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRecommendations(t *testing.T) {
	recs := &recOpsFake{}
	h := router(&lectureOpsFake{}, recs)

	rec, body := do(t, h, httptest.NewRequest(http.MethodGet, "/api/recommendations/dsa", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []any{}, body["entries"])

	rec, body = do(t, h, httptest.NewRequest(http.MethodPost, "/api/recommendations/dsa/refresh", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "dsa", recs.refreshed)
	assert.Len(t, body["entries"], 1)

	recs.err = errors.New("db down")
	rec, body = do(t, h, httptest.NewRequest(http.MethodGet, "/api/recommendations/dsa", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "db down", body["error"])
}

func TestHealth(t *testing.T) {
	rec, body := do(t, router(&lectureOpsFake{}, &recOpsFake{}), httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", body["status"])
}

package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/markdave123-py/studybuddy/internal/logging"
	"github.com/markdave123-py/studybuddy/internal/models"
)

type RecommendationOps interface {
	GetRecommendations(ctx context.Context, subjectID string) ([]models.RecommendationCacheEntry, error)
	Refresh(ctx context.Context, subjectID string) ([]models.RecommendationCacheEntry, error)
}

type RecommendationHandler struct {
	recs   RecommendationOps
	logger *slog.Logger
}

func NewRecommendationHandler(recs RecommendationOps, logger *slog.Logger) *RecommendationHandler {
	return &RecommendationHandler{recs: recs, logger: logging.OrDefault(logger).With("component", "http")}
}

type recommendationsResponse struct {
	SubjectID string                            `json:"subjectId"`
	Entries   []models.RecommendationCacheEntry `json:"entries"`
}

func (h *RecommendationHandler) Get(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, h.recs.GetRecommendations)
}

func (h *RecommendationHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, h.recs.Refresh)
}

func (h *RecommendationHandler) serve(w http.ResponseWriter, r *http.Request, fetch func(context.Context, string) ([]models.RecommendationCacheEntry, error)) {
	subjectID := strings.TrimSpace(chi.URLParam(r, "subjectId"))
	if subjectID == "" {
		writeError(w, http.StatusBadRequest, "subjectId is required")
		return
	}

	entries, err := fetch(r.Context(), subjectID)
	if err != nil {
		h.logger.Error("recommendations failed", "subject", subjectID, "err", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if entries == nil {
		entries = []models.RecommendationCacheEntry{}
	}
	writeJSON(w, http.StatusOK, recommendationsResponse{SubjectID: subjectID, Entries: entries})
}

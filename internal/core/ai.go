package core

import (
	"context"

	"github.com/markdave123-py/studybuddy/internal/models"
)

// EmbeddingProvider turns texts into fixed-dimension vectors, one per input, in input order.
// A provider error fails the whole call.
type EmbeddingProvider interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
}

// Recommender asks the external recommendation service for videos about one topic.
type Recommender interface {
	Recommend(ctx context.Context, req RecommendRequest) ([]models.VideoRecommendation, error)
}

type RecommendRequest struct {
	Topic      string `json:"topic"`
	CourseName string `json:"courseName"`
	SubjectID  string `json:"subjectId"`
	TopK       int    `json:"topK"`
}

package models

import (
	"time"
)

// ExternalDocument is a lecture as listed by the LMS. It is never persisted as-is.
type ExternalDocument struct {
	Hash       string `json:"hash"`
	Title      string `json:"title"`
	CourseID   string `json:"courseId"`
	CourseName string `json:"courseName"`
	SubjectID  string `json:"subjectId"`
	AssetURL   string `json:"assetUrl,omitempty"` // whiteboard PDF or slide deck
}

// HasAsset reports whether the document exposes something we can ingest.
func (d ExternalDocument) HasAsset() bool {
	return d.AssetURL != ""
}

// ProcessedDocument is the idempotency record written once per hash after a successful ingest.
type ProcessedDocument struct {
	Hash        string    `db:"hash" json:"hash"`
	Title       string    `db:"title" json:"title"`
	CourseID    string    `db:"course_id" json:"courseId"`
	CourseName  string    `db:"course_name" json:"courseName"`
	SubjectID   string    `db:"subject_id" json:"subjectId"`
	AssetURL    string    `db:"asset_url" json:"assetUrl,omitempty"`
	VectorCount int       `db:"vector_count" json:"vectorCount"`
	ProcessedAt time.Time `db:"processed_at" json:"processedAt"`
}

// VectorRecord is one chunk embedding as stored in the vector index.
// ID is hash + "_" + chunk index so re-upserts overwrite.
type VectorRecord struct {
	ID       string         `json:"id"`
	Values   []float32      `json:"values"`
	Metadata VectorMetadata `json:"metadata"`
}

type VectorMetadata struct {
	Hash       string `json:"hash"`
	Title      string `json:"title"`
	Course     string `json:"course"`
	SubjectID  string `json:"subjectId"`
	ChunkText  string `json:"chunkText"`
	ChunkIndex int    `json:"chunkIndex"`
	TokenCount int    `json:"tokenCount"`
}

// TopicKey identifies one cached recommendation set.
type TopicKey struct {
	SubjectID  string
	TopicTitle string
}

// VideoRecommendation mirrors the recommender's response item.
type VideoRecommendation struct {
	VideoID         string   `json:"videoId"`
	Title           string   `json:"title"`
	Description     string   `json:"description"`
	ChannelTitle    string   `json:"channelTitle"`
	Thumbnail       string   `json:"thumbnail"`
	URL             string   `json:"url"`
	SimilarityScore float64  `json:"similarityScore"`
	SubtopicsUsed   []string `json:"subtopicsUsed"`
}

// RecommendationCacheEntry is unique per (SubjectID, TopicTitle).
// An empty Recommendations list records a failed lookup.
type RecommendationCacheEntry struct {
	SubjectID       string                `db:"subject_id" json:"subjectId"`
	TopicTitle      string                `db:"topic_title" json:"topicTitle"`
	CourseName      string                `db:"course_name" json:"courseName"`
	Recommendations []VideoRecommendation `db:"recommendations" json:"recommendations"`
	LastUpdated     time.Time             `db:"last_updated" json:"lastUpdated"`
}

func (e RecommendationCacheEntry) Key() TopicKey {
	return TopicKey{SubjectID: e.SubjectID, TopicTitle: e.TopicTitle}
}

// SyncStatus summarises ingestion bookkeeping.
type SyncStatus struct {
	TotalProcessed  int                 `json:"totalProcessed"`
	RecentDocuments []ProcessedDocument `json:"recentDocuments"`
}

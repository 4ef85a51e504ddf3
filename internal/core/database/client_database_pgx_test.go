package db

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markdave123-py/studybuddy/internal/models"
)

func TestBuildDSN(t *testing.T) {
	dsn, err := buildDSN("postgres://u:p@localhost:5432/sb", "")
	require.NoError(t, err)
	assert.Equal(t, "postgres://u:p@localhost:5432/sb", dsn)

	_, err = buildDSN("postgres://u:p@localhost:5432/sb", "/does/not/exist.pem")
	assert.Error(t, err)

	cert := filepath.Join(t.TempDir(), "ca.pem")
	require.NoError(t, os.WriteFile(cert, []byte("cert"), 0o600))
	dsn, err = buildDSN("postgres://u:p@localhost:5432/sb", cert)
	require.NoError(t, err)
	assert.Contains(t, dsn, "sslmode=verify-ca")
	assert.Contains(t, dsn, "sslrootcert=")
}

func TestMarkProcessedQuery(t *testing.T) {
	at := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	query, args, err := markProcessedQuery(&models.ProcessedDocument{
		Hash: "A", Title: "Trees", SubjectID: "dsa", VectorCount: 3, ProcessedAt: at,
	})
	require.NoError(t, err)
	assert.Contains(t, query, "INSERT INTO processed_documents")
	assert.Contains(t, query, "ON CONFLICT (hash) DO UPDATE")
	require.Len(t, args, len(processedColumns))
	assert.Equal(t, "A", args[0])
	assert.Equal(t, 3, args[6])
	assert.Equal(t, at, args[7])
}

func TestUpsertRecommendationQuery_EmptyListIsJSONArray(t *testing.T) {
	query, args, err := upsertRecommendationQuery(&models.RecommendationCacheEntry{
		SubjectID: "dsa", TopicTitle: "Graphs",
	})
	require.NoError(t, err)
	assert.Contains(t, query, "ON CONFLICT (subject_id, topic_title) DO UPDATE")
	assert.Equal(t, "[]", args[3])
}

func TestUpsertRecommendationQuery_EncodesCamelCase(t *testing.T) {
	_, args, err := upsertRecommendationQuery(&models.RecommendationCacheEntry{
		SubjectID:       "dsa",
		TopicTitle:      "Trees",
		Recommendations: []models.VideoRecommendation{{VideoID: "v1", SimilarityScore: 0.5}},
	})
	require.NoError(t, err)
	assert.Contains(t, args[3], `"videoId":"v1"`)
	assert.Contains(t, args[3], `"similarityScore":0.5`)
}

package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markdave123-py/studybuddy/internal/core"
	ingestion "github.com/markdave123-py/studybuddy/internal/core/ingestion_engine"
	"github.com/markdave123-py/studybuddy/internal/models"
	"github.com/markdave123-py/studybuddy/internal/services"
)

type mockBackend struct {
	syncErr   error
	refreshed []string
	all       bool
}

func (m *mockBackend) Sync(_ context.Context, courseID string) (*ingestion.IngestionReport, error) {
	return &ingestion.IngestionReport{
		CourseID: courseID,
		Total:    2,
		Results:  []ingestion.DocumentResult{{Title: "Trees", State: ingestion.StateSuccess, VectorCount: 4}},
	}, m.syncErr
}

func (m *mockBackend) Status(context.Context) (*models.SyncStatus, error) {
	return &models.SyncStatus{TotalProcessed: 9}, nil
}

func (m *mockBackend) GetRecommendations(_ context.Context, subjectID string) ([]models.RecommendationCacheEntry, error) {
	return []models.RecommendationCacheEntry{{
		SubjectID:       subjectID,
		TopicTitle:      "Graphs",
		Recommendations: []models.VideoRecommendation{{Title: "BFS explained", URL: "https://youtu.be/x", SimilarityScore: 0.91}},
	}}, nil
}

func (m *mockBackend) Refresh(_ context.Context, subjectID string) ([]models.RecommendationCacheEntry, error) {
	m.refreshed = append(m.refreshed, subjectID)
	return nil, nil
}

func (m *mockBackend) RefreshAll(context.Context) (services.RefreshSummary, error) {
	m.all = true
	return services.RefreshSummary{Subjects: 3, Failed: []string{"os"}}, nil
}

func run(t *testing.T, b Backend, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd(func(context.Context) (Backend, error) { return b, nil })
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return buf.String(), err
}

func TestSyncCommand(t *testing.T) {
	out, err := run(t, &mockBackend{}, "sync", "cs101")
	require.NoError(t, err)
	assert.Contains(t, out, "course=cs101")
	assert.Contains(t, out, "SUCCESS")
	assert.Contains(t, out, "Trees")
}

func TestSyncCommand_PrintsReportBeforeError(t *testing.T) {
	out, err := run(t, &mockBackend{syncErr: core.ErrCredential}, "sync", "cs101")
	require.ErrorIs(t, err, core.ErrCredential)
	assert.Contains(t, out, "total=2")
}

func TestSyncCommand_NeedsCourse(t *testing.T) {
	_, err := run(t, &mockBackend{}, "sync")
	assert.Error(t, err)
}

func TestStatusCommandJSON(t *testing.T) {
	out, err := run(t, &mockBackend{}, "status", "--json")
	require.NoError(t, err)

	var status models.SyncStatus
	require.NoError(t, json.Unmarshal([]byte(out), &status))
	assert.Equal(t, 9, status.TotalProcessed)
}

func TestRecommendationsCommand(t *testing.T) {
	out, err := run(t, &mockBackend{}, "recommendations", "dsa")
	require.NoError(t, err)
	assert.Contains(t, out, "Graphs (1)")
	assert.Contains(t, out, "0.91  BFS explained")
}

func TestRefreshCommand(t *testing.T) {
	b := &mockBackend{}

	out, err := run(t, b, "refresh", "dsa")
	require.NoError(t, err)
	assert.Equal(t, []string{"dsa"}, b.refreshed)
	assert.Contains(t, out, "No recommendations.")

	out, err = run(t, b, "refresh", "--all")
	require.NoError(t, err)
	assert.True(t, b.all)
	assert.Contains(t, out, "Refreshed 3 subjects, 1 failed")

	_, err = run(t, b, "refresh")
	assert.Error(t, err)
	_, err = run(t, b, "refresh", "dsa", "--all")
	assert.Error(t, err)
}

func TestBackendErrorSurfaces(t *testing.T) {
	cmd := NewRootCmd(func(context.Context) (Backend, error) { return nil, errors.New("no database") })
	cmd.SetOut(new(bytes.Buffer))
	cmd.SetArgs([]string{"status"})
	assert.EqualError(t, cmd.ExecuteContext(context.Background()), "no database")
}

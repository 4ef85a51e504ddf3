package services

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/markdave123-py/studybuddy/internal/core"
	"github.com/markdave123-py/studybuddy/internal/logging"
	"github.com/markdave123-py/studybuddy/internal/models"
)

// DefaultExcludedTopic is the course introduction lecture, which has no subject matter.
const DefaultExcludedTopic = "Course and Instructor Introduction"

// RecommendationConfig tunes the cache refresh.
//
// ExcludedTopic:   titles containing it never become topics.
// EmptyRetryAfter: age after which an empty (failed) entry is looked up again; 0 never retries.
type RecommendationConfig struct {
	ExcludedTopic   string
	EmptyRetryAfter time.Duration
}

// RecommendationService maintains the per-topic video recommendation cache.
type RecommendationService struct {
	processed   core.ProcessedStore
	cache       core.RecommendationStore
	recommender core.Recommender
	cfg         RecommendationConfig
	logger      *slog.Logger
	now         func() time.Time
}

func NewRecommendationService(processed core.ProcessedStore, cache core.RecommendationStore, rec core.Recommender, cfg RecommendationConfig, logger *slog.Logger) *RecommendationService {
	if cfg.ExcludedTopic == "" {
		cfg.ExcludedTopic = DefaultExcludedTopic
	}
	return &RecommendationService{
		processed:   processed,
		cache:       cache,
		recommender: rec,
		cfg:         cfg,
		logger:      logging.OrDefault(logger).With("component", "recommendations"),
		now:         time.Now,
	}
}

// topic is a lecture title worth recommending videos for.
type topic struct {
	title      string
	courseName string
}

// GetRecommendations serves the cache when it has any entry for the subject and
// falls through to a full refresh otherwise.
func (s *RecommendationService) GetRecommendations(ctx context.Context, subjectID string) ([]models.RecommendationCacheEntry, error) {
	cached, err := s.cache.ListRecommendations(ctx, subjectID)
	if err != nil {
		return nil, fmt.Errorf("list cache: %w", err)
	}
	if len(cached) > 0 {
		return sortEntries(cached), nil
	}
	s.logger.Info("cache empty, refreshing", "subject", subjectID)
	return s.Refresh(ctx, subjectID)
}

// Refresh looks up every topic of the subject that has no usable cache entry.
// A failed lookup is stored as an empty list and never fails the call.
func (s *RecommendationService) Refresh(ctx context.Context, subjectID string) ([]models.RecommendationCacheEntry, error) {
	docs, err := s.processed.ListProcessedBySubject(ctx, subjectID)
	if err != nil {
		return nil, fmt.Errorf("list processed: %w", err)
	}

	topics := deriveTopics(docs, s.cfg.ExcludedTopic)
	if len(topics) == 0 {
		s.logger.Info("no topics", "subject", subjectID)
		return []models.RecommendationCacheEntry{}, nil
	}

	cached, err := s.cache.ListRecommendations(ctx, subjectID)
	if err != nil {
		return nil, fmt.Errorf("list cache: %w", err)
	}

	uncached := s.uncachedTopics(topics, cached)
	if len(uncached) == 0 {
		return sortEntries(cached), nil
	}
	s.logger.Info("fetching recommendations", "subject", subjectID, "topics", len(uncached))

	for _, t := range uncached {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		s.lookup(ctx, subjectID, t)
	}

	all, err := s.cache.ListRecommendations(ctx, subjectID)
	if err != nil {
		return nil, fmt.Errorf("list cache: %w", err)
	}
	return sortEntries(all), nil
}

// lookup calls the recommender for one topic and stores the outcome.
func (s *RecommendationService) lookup(ctx context.Context, subjectID string, t topic) {
	recs, err := s.recommender.Recommend(ctx, core.RecommendRequest{
		Topic:      t.title,
		CourseName: t.courseName,
		SubjectID:  subjectID,
		TopK:       1,
	})
	if err != nil {
		s.logger.Warn("recommendation failed", "subject", subjectID, "topic", t.title, "err", err)
		recs = []models.VideoRecommendation{}
	}

	entry := &models.RecommendationCacheEntry{
		SubjectID:       subjectID,
		TopicTitle:      t.title,
		CourseName:      t.courseName,
		Recommendations: recs,
		LastUpdated:     s.now(),
	}
	if err := s.cache.UpsertRecommendation(ctx, entry); err != nil {
		s.logger.Error("cache write failed", "subject", subjectID, "topic", t.title, "err", err)
		return
	}
	s.logger.Info("cached", "subject", subjectID, "topic", t.title, "videos", len(recs))
}

// RefreshSummary reports one sweep over all subjects.
type RefreshSummary struct {
	Subjects int      `json:"subjects"`
	Failed   []string `json:"failed"`
}

// RefreshAll refreshes every subject that has processed documents, one at a time.
// A failing subject is logged and skipped.
func (s *RecommendationService) RefreshAll(ctx context.Context) (RefreshSummary, error) {
	subjects, err := s.processed.DistinctSubjects(ctx)
	if err != nil {
		return RefreshSummary{}, fmt.Errorf("list subjects: %w", err)
	}

	s.logger.Info("refresh sweep started", "subjects", len(subjects))
	summary := RefreshSummary{Subjects: len(subjects), Failed: []string{}}
	for _, subjectID := range subjects {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		if _, err := s.Refresh(ctx, subjectID); err != nil {
			s.logger.Error("subject refresh failed", "subject", subjectID, "err", err)
			summary.Failed = append(summary.Failed, subjectID)
		}
	}
	s.logger.Info("refresh sweep finished", "failed", len(summary.Failed))
	return summary, nil
}

// uncachedTopics keeps topics with no entry, plus those whose empty entry has
// outlived EmptyRetryAfter.
func (s *RecommendationService) uncachedTopics(topics []topic, cached []models.RecommendationCacheEntry) []topic {
	fresh := make(map[string]bool, len(cached))
	for _, e := range cached {
		if len(e.Recommendations) == 0 && s.cfg.EmptyRetryAfter > 0 && s.now().Sub(e.LastUpdated) >= s.cfg.EmptyRetryAfter {
			continue
		}
		fresh[e.TopicTitle] = true
	}

	var out []topic
	for _, t := range topics {
		if !fresh[t.title] {
			out = append(out, t)
		}
	}
	return out
}

// deriveTopics turns processed documents into unique topics ordered by title.
func deriveTopics(docs []models.ProcessedDocument, excluded string) []topic {
	seen := make(map[string]bool, len(docs))
	var out []topic
	for _, d := range docs {
		title := strings.TrimSpace(d.Title)
		if title == "" || seen[title] {
			continue
		}
		if excluded != "" && strings.Contains(title, excluded) {
			continue
		}
		seen[title] = true
		out = append(out, topic{title: title, courseName: d.CourseName})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].title < out[j].title })
	return out
}

func sortEntries(entries []models.RecommendationCacheEntry) []models.RecommendationCacheEntry {
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].TopicTitle < entries[j].TopicTitle })
	return entries
}

package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/markdave123-py/studybuddy/internal/config"
	"github.com/markdave123-py/studybuddy/internal/core"
	"github.com/markdave123-py/studybuddy/internal/models"
)

var (
	_ core.ProcessedStore      = (*DatabaseClient)(nil)
	_ core.RecommendationStore = (*DatabaseClient)(nil)
)

// psql builds Postgres-flavoured statements ($1, $2, ...).
var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

type DatabaseClient struct {
	db *sql.DB
}

func NewDatabaseClient(ctx context.Context, cfg *config.Config) (*DatabaseClient, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database client configuration is nil")
	}
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is empty")
	}

	dsn, err := buildDSN(cfg.DatabaseURL, cfg.SslCertPath)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetConnMaxIdleTime(10 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	if err := EnsureBootstrapped(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("bootstrap: %w", err)
	}

	return &DatabaseClient{db: db}, nil
}

// buildDSN pins the server CA when a certificate path is configured.
func buildDSN(databaseURL, sslCertPath string) (string, error) {
	if sslCertPath == "" {
		return databaseURL, nil
	}
	if _, err := os.Stat(sslCertPath); err != nil {
		return "", fmt.Errorf("ssl cert not accessible at %q: %w", sslCertPath, err)
	}
	u, err := url.Parse(databaseURL)
	if err != nil {
		return "", fmt.Errorf("invalid DATABASE_URL: %w", err)
	}
	q := u.Query()
	q.Set("sslmode", "verify-ca")
	q.Set("sslrootcert", sslCertPath)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (c *DatabaseClient) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// DB exposes the pool so the vector store shares connections.
func (c *DatabaseClient) DB() *sql.DB { return c.db }

// Processed documents

var processedColumns = []string{
	"hash", "title", "course_id", "course_name", "subject_id", "asset_url", "vector_count", "processed_at",
}

func (c *DatabaseClient) ProcessedHashes(ctx context.Context, hashes []string) (map[string]bool, error) {
	result := make(map[string]bool)
	if len(hashes) == 0 {
		return result, nil
	}

	query, args, err := psql.Select("hash").From("processed_documents").Where(sq.Eq{"hash": hashes}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query processed: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			return nil, fmt.Errorf("scan hash: %w", err)
		}
		result[h] = true
	}
	return result, rows.Err()
}

func (c *DatabaseClient) MarkProcessed(ctx context.Context, doc *models.ProcessedDocument) error {
	if doc == nil {
		return errors.New("nil document")
	}
	query, args, err := markProcessedQuery(doc)
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}
	if _, err := c.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert processed: %w", err)
	}
	return nil
}

func markProcessedQuery(doc *models.ProcessedDocument) (string, []any, error) {
	processedAt := doc.ProcessedAt
	if processedAt.IsZero() {
		processedAt = time.Now()
	}
	return psql.Insert("processed_documents").
		Columns(processedColumns...).
		Values(doc.Hash, doc.Title, doc.CourseID, doc.CourseName, doc.SubjectID, doc.AssetURL, doc.VectorCount, processedAt).
		Suffix(`ON CONFLICT (hash) DO UPDATE
			SET title = EXCLUDED.title,
			    course_name = EXCLUDED.course_name,
			    subject_id = EXCLUDED.subject_id,
			    vector_count = EXCLUDED.vector_count,
			    processed_at = EXCLUDED.processed_at`).
		ToSql()
}

func (c *DatabaseClient) ListProcessedBySubject(ctx context.Context, subjectID string) ([]models.ProcessedDocument, error) {
	return c.queryProcessed(ctx, psql.Select(processedColumns...).
		From("processed_documents").
		Where(sq.Eq{"subject_id": subjectID}).
		OrderBy("title ASC"))
}

func (c *DatabaseClient) RecentProcessed(ctx context.Context, limit int) ([]models.ProcessedDocument, error) {
	if limit <= 0 {
		limit = 5
	}
	return c.queryProcessed(ctx, psql.Select(processedColumns...).
		From("processed_documents").
		OrderBy("processed_at DESC").
		Limit(uint64(limit)))
}

func (c *DatabaseClient) queryProcessed(ctx context.Context, b sq.SelectBuilder) ([]models.ProcessedDocument, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.ProcessedDocument
	for rows.Next() {
		var d models.ProcessedDocument
		if err := rows.Scan(
			&d.Hash, &d.Title, &d.CourseID, &d.CourseName, &d.SubjectID, &d.AssetURL, &d.VectorCount, &d.ProcessedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (c *DatabaseClient) DistinctSubjects(ctx context.Context) ([]string, error) {
	query, args, err := psql.Select("DISTINCT subject_id").
		From("processed_documents").
		Where(sq.NotEq{"subject_id": ""}).
		OrderBy("subject_id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (c *DatabaseClient) CountProcessed(ctx context.Context) (int, error) {
	var n int
	if err := c.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM processed_documents`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count processed: %w", err)
	}
	return n, nil
}

// Recommendation cache

func (c *DatabaseClient) ListRecommendations(ctx context.Context, subjectID string) ([]models.RecommendationCacheEntry, error) {
	query, args, err := psql.Select("subject_id", "topic_title", "course_name", "recommendations", "last_updated").
		From("video_recommendations").
		Where(sq.Eq{"subject_id": subjectID}).
		OrderBy("topic_title ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.RecommendationCacheEntry
	for rows.Next() {
		var (
			e   models.RecommendationCacheEntry
			raw []byte
		)
		if err := rows.Scan(&e.SubjectID, &e.TopicTitle, &e.CourseName, &raw, &e.LastUpdated); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(raw, &e.Recommendations); err != nil {
			return nil, fmt.Errorf("decode recommendations for %q: %w", e.TopicTitle, err)
		}
		if e.Recommendations == nil {
			e.Recommendations = []models.VideoRecommendation{}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (c *DatabaseClient) UpsertRecommendation(ctx context.Context, entry *models.RecommendationCacheEntry) error {
	if entry == nil {
		return errors.New("nil recommendation entry")
	}
	query, args, err := upsertRecommendationQuery(entry)
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}
	if _, err := c.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert recommendation: %w", err)
	}
	return nil
}

func upsertRecommendationQuery(entry *models.RecommendationCacheEntry) (string, []any, error) {
	recs := entry.Recommendations
	if recs == nil {
		recs = []models.VideoRecommendation{}
	}
	payload, err := json.Marshal(recs)
	if err != nil {
		return "", nil, err
	}
	return psql.Insert("video_recommendations").
		Columns("subject_id", "topic_title", "course_name", "recommendations", "last_updated").
		Values(entry.SubjectID, entry.TopicTitle, entry.CourseName, string(payload), entry.LastUpdated).
		Suffix(`ON CONFLICT (subject_id, topic_title) DO UPDATE
			SET course_name = EXCLUDED.course_name,
			    recommendations = EXCLUDED.recommendations,
			    last_updated = EXCLUDED.last_updated`).
		ToSql()
}

// internal/app/app.go
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/markdave123-py/studybuddy/internal/config"
	"github.com/markdave123-py/studybuddy/internal/core"
	db "github.com/markdave123-py/studybuddy/internal/core/database"
	ingestion "github.com/markdave123-py/studybuddy/internal/core/ingestion_engine"
	"github.com/markdave123-py/studybuddy/internal/core/llm"
	"github.com/markdave123-py/studybuddy/internal/core/lms"
	objectclient "github.com/markdave123-py/studybuddy/internal/core/object-client"
	"github.com/markdave123-py/studybuddy/internal/core/ocr"
	"github.com/markdave123-py/studybuddy/internal/core/recommender"
	"github.com/markdave123-py/studybuddy/internal/logging"
	"github.com/markdave123-py/studybuddy/internal/scheduler"
	"github.com/markdave123-py/studybuddy/internal/services"
)

// App owns every long-lived collaborator. Close releases them in reverse order.
type App struct {
	Config          *config.Config
	Logger          *slog.Logger
	DBClient        *db.DatabaseClient
	Tokens          *lms.TokenCache
	Lectures        *services.LectureService
	Recommendations *services.RecommendationService
	Scheduler       *scheduler.Scheduler

	closers []func() error
}

func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	appCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	logger := logging.New(cfg.LogLevel)
	a := &App{Config: cfg, Logger: logger}

	dbClient, err := db.NewDatabaseClient(appCtx, cfg)
	if err != nil {
		return nil, err
	}
	a.DBClient = dbClient
	a.closers = append(a.closers, dbClient.Close)
	logger.Info("database initialized and ready")

	var archive core.ObjectClient
	s3, err := objectclient.NewS3Client(appCtx, cfg)
	if err != nil {
		a.Close()
		return nil, err
	}
	if s3 != nil {
		archive = s3
		logger.Info("object client initialized and ready", "bucket", cfg.BucketName)
	} else {
		logger.Info("no bucket configured, asset archive disabled")
	}

	embedder, err := newEmbedder(appCtx, cfg)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("couldn't initialize the embedder, %w", err)
	}
	if c, ok := embedder.(interface{ Close() error }); ok {
		a.closers = append(a.closers, c.Close)
	}

	pool, err := ocr.NewPool(cfg.OCRWorkers, cfg.OCRLanguage)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("couldn't initialize ocr, %w", err)
	}
	a.closers = append(a.closers, func() error { pool.Close(); return nil })

	catalog, err := config.LoadCatalog(cfg.CatalogPath)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.Tokens = lms.NewTokenCache(lms.Credentials{
		LoginURL:     cfg.LMSLoginURL,
		Email:        cfg.LMSEmail,
		Password:     cfg.LMSPassword,
		ClientID:     cfg.LMSClientID,
		ClientSecret: cfg.LMSClientSecret,
	}, logger.With("component", "lms-token"))
	source := lms.NewClient(cfg.LMSBaseURL, cfg.LMSClientID, cfg.LMSClientSecret, a.Tokens, logger).
		WithMaxAssetBytes(cfg.MaxAssetBytes)

	extractor := ingestion.NewLectureExtractor(ingestion.NewPDFPages(), pool, cfg.OCRDensityThreshold, cfg.OCRWorkers, logger)

	ingestor := ingestion.NewDocumentIngestor(ingestion.Deps{
		Source:    source,
		Store:     dbClient,
		Vectors:   db.NewVectorStore(dbClient.DB(), cfg.VectorBatchSize),
		Embedder:  embedder,
		Extractor: extractor,
		Archive:   archive,
		Subjects:  catalog,
		Logger:    logger,
	}, &ingestion.IngestConfig{
		ChunkSize:      cfg.ChunkSize,
		ChunkOverlap:   cfg.ChunkOverlap,
		EmbedBatchSize: cfg.EmbedBatchSize,
	})
	a.Lectures = services.NewLectureService(ingestor)

	rec := recommender.NewClient(cfg.RecommenderURL, cfg.RecommenderTimeout, cfg.RecommenderRPS)
	a.Recommendations = services.NewRecommendationService(dbClient, dbClient, rec, services.RecommendationConfig{
		ExcludedTopic:   cfg.ExcludedTopic,
		EmptyRetryAfter: cfg.EmptyRetryAfter,
	}, logger)

	a.Scheduler, err = a.newScheduler()
	if err != nil {
		a.Close()
		return nil, err
	}

	return a, nil
}

// newEmbedder picks the provider named by EMBED_PROVIDER.
func newEmbedder(ctx context.Context, cfg *config.Config) (core.EmbeddingProvider, error) {
	switch cfg.EmbedProvider {
	case "gemini":
		return llm.NewGeminiEmbedder(ctx, cfg.GeminiAPIKey, cfg.EmbedModel, cfg.EmbedDim)
	default:
		return llm.NewOpenAIEmbedder(cfg.EmbedBaseURL, cfg.OpenAIAPIKey, cfg.EmbedModel, cfg.EmbedDim)
	}
}

// newScheduler registers the background jobs: a recommendation sweep shortly
// after startup, then daily sweeps and a daily LMS token refresh.
func (a *App) newScheduler() (*scheduler.Scheduler, error) {
	loc := a.Config.Location()
	recsAt, err := scheduler.ParseClock(a.Config.RecsRefreshAt, loc)
	if err != nil {
		return nil, fmt.Errorf("RECS_REFRESH_AT: %w", err)
	}
	tokenAt, err := scheduler.ParseClock(a.Config.TokenRefreshAt, loc)
	if err != nil {
		return nil, fmt.Errorf("TOKEN_REFRESH_AT: %w", err)
	}

	s := scheduler.New(a.Logger)
	sweep := func(ctx context.Context) {
		if _, err := a.Recommendations.RefreshAll(ctx); err != nil {
			a.Logger.Error("recommendation sweep failed", "err", err)
		}
	}
	s.After("startup-recommendations", a.Config.StartupRefreshDelay, sweep)
	s.Every("daily-recommendations", recsAt, sweep)
	s.Every("lms-token-refresh", tokenAt, func(ctx context.Context) {
		if err := a.Tokens.Refresh(ctx); err != nil {
			a.Logger.Error("token refresh failed", "err", err)
		}
	})
	return s, nil
}

func (a *App) Close() {
	if a.Scheduler != nil {
		a.Scheduler.Stop()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.Logger.Warn("close failed", "err", err)
		}
	}
	a.closers = nil
}

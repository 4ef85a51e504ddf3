package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/markdave123-py/studybuddy/internal/api/handlers"
	appMiddleware "github.com/markdave123-py/studybuddy/internal/api/middlewares"
	"github.com/markdave123-py/studybuddy/internal/logging"
)

// Server wraps the HTTP server instance and its handlers.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer builds and wires all routes.
func NewServer(port, jwtSecret string, maxUploadBytes int64, lectures handlers.LectureOps, recs handlers.RecommendationOps, logger *slog.Logger) *Server {
	logger = logging.OrDefault(logger)
	return &Server{
		httpServer: &http.Server{
			Addr:              ":" + port,
			Handler:           NewRouter(jwtSecret, maxUploadBytes, lectures, recs, logger),
			ReadHeaderTimeout: 10 * time.Second,
		},
		logger: logger,
	}
}

// NewRouter builds the route table.
func NewRouter(jwtSecret string, maxUploadBytes int64, lectures handlers.LectureOps, recs handlers.RecommendationOps, logger *slog.Logger) http.Handler {
	lectureHandler := handlers.NewLectureHandler(lectures, maxUploadBytes, logger)
	recHandler := handlers.NewRecommendationHandler(recs, logger)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:3000"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Get("/health", handlers.Health)

	r.Route("/api", func(api chi.Router) {
		api.Get("/sync/status", lectureHandler.Status)
		api.Get("/recommendations/{subjectId}", recHandler.Get)

		// mutating endpoints; sync and upload can run for minutes
		api.Group(func(protected chi.Router) {
			protected.Use(appMiddleware.AdminJWT(jwtSecret))
			protected.Use(middleware.Timeout(30 * time.Minute))
			protected.Post("/sync/{courseId}", lectureHandler.Sync)
			protected.Post("/upload", lectureHandler.Upload)
			protected.Post("/recommendations/{subjectId}/refresh", recHandler.Refresh)
		})
	})

	return r
}

// Start runs the HTTP server until Shutdown.
func (s *Server) Start() error {
	s.logger.Info("HTTP server listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

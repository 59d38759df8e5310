package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/codearena-oj/apiserver/config"
	"github.com/codearena-oj/apiserver/internal/db"
	"github.com/codearena-oj/apiserver/internal/events"
	"github.com/codearena-oj/apiserver/internal/handlers"
	"github.com/codearena-oj/apiserver/internal/judge"
	"github.com/codearena-oj/apiserver/internal/services"
	"github.com/codearena-oj/apiserver/internal/storage"
	"github.com/codearena-oj/apiserver/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Server wraps the HTTP server, router and shared resources.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	db         *sql.DB
	publisher  events.Publisher
}

// New constructs a fully wired Server: database, repositories, the
// remote judge client, the optional broker and object storage backends,
// services and routes.
func New(ctx context.Context, cfg config.Config) (*Server, error) {
	jwtSecret := strings.TrimSpace(cfg.JWTSecret)
	if jwtSecret == "" {
		return nil, errors.New("JWT_SECRET is required")
	}

	dbConn, err := db.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}

	publisher, err := newPublisher(ctx, cfg.Events)
	if err != nil {
		_ = dbConn.Close()
		return nil, err
	}

	archives, err := newArchiveStore(ctx, cfg.Storage)
	if err != nil {
		_ = publisher.Close()
		_ = dbConn.Close()
		return nil, err
	}

	problemRepo := store.NewProblemRepository(dbConn)
	userRepo := store.NewUserRepository(dbConn)
	submissionRepo := store.NewSubmissionRepository(dbConn)

	executor := judge.NewClient(cfg.Judge)

	problemService := services.NewProblemService(problemRepo, archives)
	userService := services.NewUserService(userRepo)
	submissionService := services.NewSubmissionService(submissionRepo, problemRepo, userRepo, executor, publisher)

	authMiddleware := handlers.RequireAuth(jwtSecret)

	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Recoverer,
		middleware.Logger,
		middleware.Timeout(60*time.Second),
	)
	router.Get("/healthz", handlers.Healthz)
	router.Route("/problems", func(r chi.Router) {
		handlers.ProblemRouter(r, problemService, userService, authMiddleware)
	})
	router.Route("/submissions", func(r chi.Router) {
		handlers.SubmissionRouter(r, submissionService, authMiddleware)
	})
	router.Route("/auth", func(r chi.Router) {
		handlers.AuthRouter(r, userService, jwtSecret)
	})
	router.Route("/users", func(r chi.Router) {
		handlers.UserRouter(r, userService)
	})

	port := cfg.ServerPort
	if port == 0 {
		port = 8080
	}

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: httpServer,
		router:     router,
		db:         dbConn,
		publisher:  publisher,
	}, nil
}

func newPublisher(ctx context.Context, cfg config.EventsConfig) (events.Publisher, error) {
	if cfg.Backend == "" || cfg.Backend == "none" {
		return events.NopPublisher{}, nil
	}
	backend, err := events.NewBackend(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return events.NewPublisher(backend), nil
}

func newArchiveStore(ctx context.Context, cfg config.StorageConfig) (*storage.ArchiveStore, error) {
	var backend storage.ObjectStore
	switch cfg.Backend {
	case "", "none":
		return nil, nil
	case "minio":
		minioStore, err := storage.NewMinioStore(cfg.Minio)
		if err != nil {
			return nil, fmt.Errorf("minio: %w", err)
		}
		backend = minioStore
	case "gcs":
		gcsStore, err := storage.NewGCSStore(ctx, cfg.GCS)
		if err != nil {
			return nil, fmt.Errorf("gcs: %w", err)
		}
		backend = gcsStore
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}

	if err := backend.EnsureBucket(ctx); err != nil {
		return nil, fmt.Errorf("storage bucket: %w", err)
	}
	return storage.NewArchiveStore(backend), nil
}

// Router exposes the chi router for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Start runs the HTTP server.
func (s *Server) Start() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown attempts a graceful shutdown.
func (s *Server) Shutdown() error {
	if s.publisher != nil {
		_ = s.publisher.Close()
	}
	if s.db != nil {
		_ = s.db.Close()
	}
	return s.httpServer.Close()
}

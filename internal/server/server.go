// Package server provides the HTTP server and routing for the market data
// service.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/quantara/marketd/internal/boardgraph"
	"github.com/quantara/marketd/internal/cachestore"
	"github.com/quantara/marketd/internal/config"
	"github.com/quantara/marketd/internal/database"
	"github.com/quantara/marketd/internal/resolver"
	"github.com/quantara/marketd/internal/scheduler"
)

// Config holds server configuration
type Config struct {
	Log      zerolog.Logger
	Config   *config.Config
	Resolver *resolver.Resolver
	Graph    *boardgraph.Manager
	Cache    *cachestore.Store
	Sched    *scheduler.Scheduler
	StoreDB  *database.DB
}

// Server represents the HTTP server
type Server struct {
	router         *chi.Mux
	server         *http.Server
	log            zerolog.Logger
	cfg            *config.Config
	handlers       *Handlers
	systemHandlers *SystemHandlers
}

// New creates a new HTTP server
func New(cfg Config) *Server {
	s := &Server{
		router:         chi.NewRouter(),
		log:            cfg.Log.With().Str("component", "server").Logger(),
		cfg:            cfg.Config,
		handlers:       NewHandlers(cfg.Resolver, cfg.Graph, cfg.Cache, cfg.Sched, cfg.Log),
		systemHandlers: NewSystemHandlers(cfg.Log, cfg.Config.DataDir, cfg.StoreDB, cfg.Graph, cfg.Cache),
	}

	s.setupMiddleware(cfg.Config.DevMode)
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Config.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// setupMiddleware configures middleware
func (s *Server) setupMiddleware(devMode bool) {
	// Recovery from panics
	s.router.Use(middleware.Recoverer)

	// Request ID
	s.router.Use(middleware.RequestID)

	// Real IP
	s.router.Use(middleware.RealIP)

	// Logging
	s.router.Use(s.loggingMiddleware)

	// Timeout
	s.router.Use(middleware.Timeout(60 * time.Second))

	// CORS
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-API-Key"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Compress responses
	if !devMode {
		s.router.Use(middleware.Compress(5))
	}
}

// setupRoutes configures all routes
func (s *Server) setupRoutes() {
	// Health check stays unauthenticated for probes
	s.router.Get("/health", s.systemHandlers.HandleHealth)

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Use(apiKeyMiddleware(s.cfg.APIKey))

		r.Route("/series", func(r chi.Router) {
			r.Post("/resolve", s.handlers.HandleResolveSeries)
			r.Get("/{code}", s.handlers.HandleGetSeries)
		})

		r.Route("/boards", func(r chi.Router) {
			r.Get("/{name}/stocks", s.handlers.HandleBoardStocks)
			r.Get("/{name}/relations", s.handlers.HandleBoardRelations)
			r.Get("/{name}/industry", s.handlers.HandleBoardIndustry)
		})

		r.Get("/stocks/{code}/boards", s.handlers.HandleStockBoards)

		r.Route("/calendar", func(r chi.Router) {
			r.Get("/latest", s.handlers.HandleCalendarLatest)
			r.Get("/check", s.handlers.HandleCalendarCheck)
		})

		r.Post("/graph/refresh", s.handlers.HandleGraphRefresh)
		r.Get("/graph/stats", s.handlers.HandleGraphStats)

		r.Delete("/cache", s.handlers.HandleCacheClear)

		r.Route("/jobs", func(r chi.Router) {
			r.Get("/", s.handlers.HandleJobList)
			r.Post("/{name}/run", s.handlers.HandleJobRun)
		})

		r.Get("/system/status", s.systemHandlers.HandleSystemStatus)
	})
}

// apiKeyMiddleware rejects requests without the configured key. An empty
// key disables the check entirely.
func apiKeyMiddleware(key string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if key != "" && r.Header.Get("X-API-Key") != key {
				writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid or missing API key"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.log.Info().Int("port", s.cfg.Port).Msg("Starting HTTP server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

// Router exposes the mux for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration_ms", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("HTTP request")
	})
}

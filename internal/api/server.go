// Package api provides the HTTP API server and handlers for the letters service.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/armyletters/letters-server/internal/ratelimit"
	"github.com/armyletters/letters-server/internal/sse"
	"github.com/armyletters/letters-server/internal/store"
)

// Options tunes the HTTP surface.
type Options struct {
	CORSOrigins  []string
	WriteLimiter *ratelimit.KeyedRateLimiter // letter creation and likes
	SongLimiter  *ratelimit.KeyedRateLimiter // song search proxy
	// RequestTimeout bounds every request except the live stream. Zero disables it.
	RequestTimeout time.Duration
}

// Server holds dependencies for HTTP handlers.
type Server struct {
	store        store.LetterStore
	services     *Services
	sseManager   *sse.Manager
	sseHandler   *sse.Handler
	router       *chi.Mux
	api          huma.API
	writeLimiter *ratelimit.KeyedRateLimiter
	songLimiter  *ratelimit.KeyedRateLimiter
	logger       *slog.Logger
}

// NewServer creates a new HTTP server with all routes configured.
func NewServer(st store.LetterStore, services *Services, sseManager *sse.Manager, opts Options, logger *slog.Logger) *Server {
	if opts.WriteLimiter == nil {
		opts.WriteLimiter = ratelimit.New(1, 5)
	}
	if opts.SongLimiter == nil {
		opts.SongLimiter = ratelimit.New(3, 10)
	}

	s := &Server{
		store:        st,
		services:     services,
		sseManager:   sseManager,
		router:       chi.NewRouter(),
		writeLimiter: opts.WriteLimiter,
		songLimiter:  opts.SongLimiter,
		logger:       logger,
	}
	if sseManager != nil && services != nil && services.Letters != nil {
		s.sseHandler = sse.NewHandler(sseManager, services.Letters, logger)
	}

	s.setupMiddleware(opts.CORSOrigins, opts.RequestTimeout)

	humaConfig := huma.DefaultConfig("Letters API", "1.0.0")
	humaConfig.Info.Description = "Fan letters feed with live updates, likes and song attachments."
	s.api = humachi.New(s.router, humaConfig)
	RegisterErrorHandler()

	s.setupRoutes()

	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// API exposes the huma API, mostly for tests and OpenAPI export.
func (s *Server) API() huma.API {
	return s.api
}

// Close releases the rate limiters.
func (s *Server) Close() {
	s.writeLimiter.Stop()
	s.songLimiter.Stop()
}

// setupMiddleware configures middleware stack.
func (s *Server) setupMiddleware(origins []string, timeout time.Duration) {
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(requestLogger(s.logger))
	s.router.Use(middleware.Recoverer)
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "If-None-Match", "Last-Event-ID"},
		ExposedHeaders: []string{"ETag"},
		MaxAge:         300,
	}))
	s.router.Use(middleware.Compress(5))
	if timeout > 0 {
		s.router.Use(requestTimeout(timeout))
	}
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	s.registerHealthRoutes()
	s.registerMemberRoutes()
	s.registerLetterRoutes()
	s.registerSongRoutes()
	s.registerProfanityRoutes()
	s.registerLetterPageRoutes()

	// SSE is a long-lived stream, served outside huma.
	if s.sseHandler != nil {
		s.router.Get(streamPath, s.sseHandler.ServeHTTP)
	}
}

const streamPath = "/api/v1/letters/stream"

// requestTimeout puts a deadline on the request context. The live stream
// is exempt.
func requestTimeout(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == streamPath {
				next.ServeHTTP(w, r)
				return
			}
			ctx, cancel := context.WithTimeout(r.Context(), d)
			defer cancel()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// requestLogger logs one line per request through slog.
func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()

			next.ServeHTTP(ww, r)

			logger.Debug("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
				"request_id", middleware.GetReqID(r.Context()),
			)
		})
	}
}

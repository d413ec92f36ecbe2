// Package web exposes the import service over HTTP: start an import from an
// uploaded file or JSON records, follow its progress, pause, resume or cancel
// it, and download the rows that did not make it in.
package web

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dirlisting/importer/internal/config"
	"github.com/dirlisting/importer/internal/core"
	"github.com/dirlisting/importer/internal/web/middleware"
)

const defaultRequestTimeout = 60 * time.Second

// Server is the import API.
type Server struct {
	service  *core.Service
	cfg      *config.Config
	gatherer prometheus.Gatherer
	router   *chi.Mux
	http     *http.Server
}

// NewServer wires the router. gatherer may be nil, which disables /metrics.
func NewServer(service *core.Service, cfg *config.Config, gatherer prometheus.Gatherer) *Server {
	s := &Server{
		service:  service,
		cfg:      cfg,
		gatherer: gatherer,
		router:   chi.NewRouter(),
	}
	s.routes()
	s.http = &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      s.router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
	return s
}

func (s *Server) routes() {
	r := s.router

	r.Use(chimw.RequestID)
	if len(s.cfg.Security.TrustedProxies) > 0 {
		r.Use(middleware.TrustedRealIP(s.cfg.Security.TrustedProxies))
	}
	r.Use(middleware.Logger)
	r.Use(chimw.Recoverer)
	r.Use(securityHeaders)

	// Probes and scrapes stay outside auth and rate limiting.
	r.Get("/healthz", s.handleHealth)
	if s.cfg.Metrics.Enabled && s.gatherer != nil {
		r.Handle(s.cfg.Metrics.Path, promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{
			ErrorLog: slog.NewLogLogger(slog.Default().Handler(), slog.LevelError),
		}))
	}

	r.Route("/api", func(api chi.Router) {
		api.Use(chimw.Timeout(s.requestTimeout()))
		api.Use(middleware.APIKeyAuth(&s.cfg.Security))
		if s.cfg.Security.RateLimit > 0 {
			api.Use(newRateLimiter(s.cfg.Security.RateLimit, s.cfg.Security.RateWindow).middleware)
		}

		api.Route("/imports", func(imports chi.Router) {
			imports.Post("/", s.handleStartImport)
			imports.Get("/", s.handleListImports)
			imports.Get("/template", s.handleDownloadTemplate)

			imports.Get("/{id}", s.handleGetImport)
			imports.Get("/{id}/errors.csv", s.handleExportAudit)
			imports.Post("/{id}/{action}", s.handleControlImport)
		})
	})
}

func (s *Server) requestTimeout() time.Duration {
	if s.cfg.Server.RequestTimeout > 0 {
		return s.cfg.Server.RequestTimeout
	}
	return defaultRequestTimeout
}

// Start listens until Shutdown is called; it then returns http.ErrServerClosed.
// Calling Shutdown first makes Start return immediately.
func (s *Server) Start() error {
	slog.Info("import api listening", "addr", s.http.Addr)
	return s.http.ListenAndServe()
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

// Router returns the handler, for tests and embedding.
func (s *Server) Router() http.Handler {
	return s.router
}

// securityHeaders marks every response as non-embeddable data.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		h.Set("Referrer-Policy", "no-referrer")
		h.Set("Cache-Control", "no-store")
		next.ServeHTTP(w, r)
	})
}

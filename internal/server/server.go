package server

import (
	"context"
	"net/http"
	"time"

	"chaintrack-provenance-go/internal/api"
	"chaintrack-provenance-go/internal/models"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
)

const requestTimeout = 30 * time.Second

// Server exposes the ledger over HTTP.
type Server struct {
	httpServer *http.Server
}

// NewRouter wires every route onto a chi router.
func NewRouter(svc *api.LedgerService, cfg models.ServerConfig) chi.Router {
	h := &handlers{svc: svc}
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(requestTimeout))
	r.Use(WithMetrics)

	if cfg.RateLimit > 0 {
		r.Use(httprate.LimitByIP(cfg.RateLimit, time.Minute))
	}

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: originsIfSet(cfg.AllowedOrigins),
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "X-Request-Id"},
		MaxAge:         300,
	}))

	r.Get("/healthz", h.health)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Get("/stats", h.stats)
		r.Get("/owners/{address}/devices", h.devicesByOwner)

		r.Route("/devices", func(r chi.Router) {
			r.Post("/", h.mint)
			r.Get("/", h.listRecent)
			r.Get("/{imei}", h.lookup)
			r.Get("/{imei}/history", h.history)
			r.Post("/{imei}/transfer", h.transfer)
			r.Post("/{imei}/status", h.advance)
		})
	})

	return r
}

// New builds the HTTP server. Cleartext HTTP/2 is accepted alongside HTTP/1.1.
func New(svc *api.LedgerService, cfg models.ServerConfig) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:              cfg.Addr,
			Handler:           h2c.NewHandler(NewRouter(svc, cfg), &http2.Server{}),
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

// ListenAndServe blocks until the server stops. A clean Shutdown is not an error.
func (s *Server) ListenAndServe() error {
	zap.L().Info("HTTP server listening", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	zap.L().Info("Shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

func originsIfSet(in []string) []string {
	if len(in) == 0 {
		return []string{"*"}
	}
	return in
}

// Package monitor serves the read-only HTTP API over the shared status
// file and history database. It runs as its own process so a dashboard
// stays responsive while the trainer owns the learning loop.
package monitor

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"DeepTrader/internal/collector"
	"DeepTrader/internal/config"
	"DeepTrader/internal/recorder"
)

// WalletFetcher is the slice of the exchange client the wallet endpoint
// needs. HasCredentials gates the endpoint so an unconfigured deployment
// answers 503 instead of leaking a signing error.
type WalletFetcher interface {
	HasCredentials() bool
	FetchWalletBalance(ctx context.Context, accountType string) (*collector.WalletBalance, error)
}

// Server is the monitoring HTTP server.
type Server struct {
	router *chi.Mux
	server *http.Server
	log    zerolog.Logger

	cfg       *config.Config
	reader    recorder.Reader
	wallet    WalletFetcher
	startedAt time.Time
}

// New assembles the router. wallet may be nil when the deployment has no
// exchange account.
func New(cfg *config.Config, reader recorder.Reader, wallet WalletFetcher, log zerolog.Logger) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		log:       log.With().Str("component", "monitor").Logger(),
		cfg:       cfg,
		reader:    reader,
		wallet:    wallet,
		startedAt: time.Now(),
	}

	s.setupMiddleware()
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         cfg.Server.ListenAddr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(middleware.Timeout(30 * time.Second))

	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.cfg.Server.CORSOrigins,
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))
}

func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)

	s.router.Route("/api", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.Get("/episodes", s.handleEpisodes)
		r.Get("/trades", s.handleTrades)
		r.Get("/performance", s.handlePerformance)
		r.Get("/indicators", s.handleIndicators)
		r.Get("/profit-loss", s.handleProfitLoss)
		r.Get("/wallet", s.handleWallet)
	})
}

// Handler exposes the router, primarily for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start blocks serving HTTP until Shutdown is called.
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.server.Addr).Msg("Starting monitor server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("Shutting down monitor server")
	return s.server.Shutdown(ctx)
}

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

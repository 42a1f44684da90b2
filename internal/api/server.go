// Package api exposes the reconstructed presale history over HTTP.
//
// Routes:
//
//	GET  /health        liveness check
//	GET  /api/history   current records with loading and error state
//	GET  /api/stats     aggregate statistics over the current records
//	GET  /api/config    on-chain presale configuration
//	POST /api/refresh   start a fetch cycle in the background
//	GET  /api/ws        websocket stream of snapshots, ?buyers=a,b narrows it
package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/S3MTFoundationv0/s3mt.xyz/internal/model"
	"github.com/S3MTFoundationv0/s3mt.xyz/internal/service"
	"github.com/gagliardetto/solana-go"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// HistoryReader is the read side of the history reconstructor.
type HistoryReader interface {
	Records() []model.PurchaseRecord
	IsLoading() bool
	ErrorMessage() string
	Stats() model.Stats
	Fetch(ctx context.Context)
}

// AccountReader reads raw account data from the chain.
type AccountReader interface {
	AccountData(ctx context.Context, address solana.PublicKey) ([]byte, error)
}

// Streamer streams snapshots to a client until it disconnects.
type Streamer interface {
	Stream(ctx context.Context, buyers []string, send service.SendFunc) error
}

// Options configures the API server.
type Options struct {
	ProgramID      solana.PublicKey
	PresaleEndDate time.Time // zero when unknown
	MaxBuyers      int       // buyer filter limit for /api/ws
	WriteTimeout   time.Duration

	// AllowedOrigins lists the browser origins admitted on /api/ws; "*"
	// matches any. Empty admits every origin: the stream is read-only.
	AllowedOrigins []string
}

// Server represents an HTTP server with all routes configured
type Server struct {
	opts     Options
	history  HistoryReader
	accounts AccountReader
	streamer Streamer
	router   chi.Router
	upgrader websocket.Upgrader
	server   *http.Server
}

// NewServer creates a new HTTP server with configured routes
func NewServer(addr string, opts Options, history HistoryReader, accounts AccountReader, streamer Streamer) *Server {
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 10 * time.Second
	}

	s := &Server{
		opts:     opts,
		history:  history,
		accounts: accounts,
		streamer: streamer,
		router:   chi.NewRouter(),
	}
	s.upgrader = websocket.Upgrader{CheckOrigin: s.checkOrigin}
	s.registerRoutes()

	// No WriteTimeout: it would cut long lived websocket streams.
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

func (s *Server) registerRoutes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(requestLogger)
	s.router.Use(middleware.Recoverer)

	s.router.Get("/health", s.handleHealth)
	s.router.Route("/api", func(r chi.Router) {
		r.Get("/history", s.handleHistory)
		r.Get("/stats", s.handleStats)
		r.Get("/config", s.handleConfig)
		r.Post("/refresh", s.handleRefresh)
		r.Get("/ws", s.handleWebsocket)
	})
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start begins listening for HTTP requests. It returns nil after Shutdown.
func (s *Server) Start() error {
	log.Info().Str("addr", s.server.Addr).Msg("HTTP server listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// checkOrigin admits requests without an Origin header, which come from
// non-browser clients, and origins listed in AllowedOrigins.
func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(s.opts.AllowedOrigins) == 0 {
		return true
	}
	for _, allowed := range s.opts.AllowedOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	log.Warn().Str("component", "api").Str("origin", origin).Msg("websocket origin rejected")
	return false
}

// requestLogger logs one line per request with zerolog.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		next.ServeHTTP(ww, r)

		log.Debug().
			Str("component", "api").
			Str("requestId", middleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("took", time.Since(start)).
			Msg("request served")
	})
}

package api

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"smash-arena/internal/anticheat"
	"smash-arena/internal/config"
	"smash-arena/internal/session"
)

// Server is the HTTP API with the websocket transport mounted.
type Server struct {
	router      *chi.Mux
	hub         *Hub
	rateLimiter *IPRateLimiter
	http        *http.Server
}

// NewServer wires the router and hub to a registry. The hub is attached to
// the registry as a dispatcher, so construct the server before creating
// sessions.
//
// Nothing listens until Start is called.
func NewServer(cfg config.ServerConfig, reg *session.Registry, bans anticheat.BanStore) *Server {
	hubCfg := DefaultHubConfig()
	hubCfg.AllowedOrigins = cfg.AllowedOrigins
	hubCfg.MessageRate = cfg.WSMessageRate
	hubCfg.MessageBurst = cfg.WSMessageBurst
	hub := NewHub(reg, hubCfg)
	reg.AddDispatcher(hub)

	s := &Server{
		hub: hub,
		rateLimiter: NewIPRateLimiter(RateLimitConfig{
			RequestsPerSecond: cfg.RequestsPerSec,
			Burst:             cfg.RequestBurst,
		}),
	}
	s.router = NewRouter(RouterConfig{
		Sessions:    reg,
		Bans:        bans,
		Hub:         hub,
		Auth:        NewMatchmakerAuth(cfg.MatchmakerKey),
		RateLimiter: s.rateLimiter,
		CORSOrigins: cfg.AllowedOrigins,
	})
	s.http = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Start serves HTTP until Shutdown. It blocks.
func (s *Server) Start() error {
	log.Printf("🌐 API server starting on %s", s.http.Addr)
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Router returns the HTTP handler for use with httptest.
func (s *Server) Router() http.Handler { return s.router }

// Hub returns the websocket hub.
func (s *Server) Hub() *Hub { return s.hub }

// Shutdown stops accepting requests, closes websocket clients and stops the
// limiter's cleanup goroutine.
func (s *Server) Shutdown(ctx context.Context) error {
	s.hub.Close()
	s.rateLimiter.Stop()
	return s.http.Shutdown(ctx)
}

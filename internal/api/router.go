package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"smash-arena/internal/anticheat"
	"smash-arena/internal/game"
	"smash-arena/internal/session"
)

// SessionService is the registry surface the API calls. Keep this minimal so
// tests can substitute a fake.
type SessionService interface {
	Create(players []session.PlayerEntry, cfg session.MatchConfig) (*session.Session, error)
	Get(id string) (*session.Session, error)
	List() []session.Summary
	End(id, reason string) (*game.Result, error)
}

// RouterConfig contains all dependencies needed to construct the HTTP router.
type RouterConfig struct {
	// Sessions is the session registry (required)
	Sessions SessionService

	// Bans backs GET /api/bans; nil serves an empty list
	Bans anticheat.BanStore

	// Hub serves /ws/sessions/{id}; nil leaves the route out
	Hub *Hub

	// Auth guards session create and end; nil allows everyone
	Auth *MatchmakerAuth

	// RateLimiter is an optional pre-configured rate limiter.
	// If nil, a new one is created from RateLimitConfig.
	RateLimiter *IPRateLimiter

	// RateLimitConfig is only used when RateLimiter is nil. If both are nil,
	// DefaultRateLimitConfig applies.
	RateLimitConfig *RateLimitConfig

	// CORSOrigins lists allowed CORS origins; nil allows any origin
	CORSOrigins []string

	// DisableLogging disables the request logger middleware (useful for benchmarks)
	DisableLogging bool
}

// routerHandlers holds the dependencies shared by handler methods.
type routerHandlers struct {
	sessions SessionService
	bans     anticheat.BanStore
}

// NewRouter constructs the HTTP router with all middleware and routes.
//
// NewRouter starts no session goroutines and opens no listeners, so it is
// safe to use with httptest.NewServer.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	// Middleware - order matters
	if !cfg.DisableLogging {
		r.Use(middleware.Logger)
	}
	r.Use(middleware.Recoverer)
	r.Use(requestMetrics)

	// Rate limiting before CORS to reject early
	rateLimiter := cfg.RateLimiter
	if rateLimiter == nil {
		rateLimitCfg := DefaultRateLimitConfig()
		if cfg.RateLimitConfig != nil {
			rateLimitCfg = *cfg.RateLimitConfig
		}
		rateLimiter = NewIPRateLimiter(rateLimitCfg)
	}
	r.Use(rateLimiter.Middleware)

	corsOrigins := cfg.CORSOrigins
	if corsOrigins == nil {
		corsOrigins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: corsOrigins,
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", PlayerHeader},
		MaxAge:         300,
	}))

	auth := cfg.Auth
	if auth == nil {
		auth = NewMatchmakerAuth("")
	}

	h := &routerHandlers{
		sessions: cfg.Sessions,
		bans:     cfg.Bans,
	}

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/catalog", h.handleCatalog)
		r.Get("/bans", h.handleListBans)

		r.Route("/sessions", func(r chi.Router) {
			r.Get("/", h.handleListSessions)
			r.With(auth.Middleware).Post("/", h.handleCreateSession)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.handleGetSession)
				r.Get("/snapshot", h.handleGetSnapshot)
				r.Get("/violations/{player}", h.handleGetViolations)
				r.With(auth.Middleware).Delete("/", h.handleEndSession)
			})
		})
	})

	if cfg.Hub != nil {
		r.Get("/ws/sessions/{id}", cfg.Hub.ServeWS)
	}

	return r
}

// Package gateway exposes the wrapper engine over HTTP: public supply and
// basket queries, mint/burn submission, and JWT-scoped administration.
package gateway

import (
	"log/slog"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"

	"github.com/auroca-io/Asset-Referenced-Token/core/events"
	"github.com/auroca-io/Asset-Referenced-Token/gateway/middleware"
	"github.com/auroca-io/Asset-Referenced-Token/native/basket"
	"github.com/auroca-io/Asset-Referenced-Token/native/pricing"
)

// Config assembles the middleware wiring for the HTTP surface.
type Config struct {
	Auth          middleware.AuthConfig
	RateLimits    map[string]middleware.RateLimit
	Observability middleware.ObservabilityConfig
	CORS          middleware.CORSConfig
}

// Server bridges HTTP requests onto the engine.
type Server struct {
	engine   *basket.Engine
	prices   *pricing.Adapter
	guard    *pricing.Guard
	recorder *events.Recorder
	logger   *slog.Logger

	// opMu serializes mint/burn submissions from concurrent clients. The
	// engine's in-flight guard stays reserved for genuine reentrancy, so
	// parallel HTTP callers queue here instead of being rejected.
	opMu sync.Mutex
}

// NewServer constructs a server over the supplied collaborators. The recorder
// may be nil, in which case the events endpoint serves an empty list.
func NewServer(engine *basket.Engine, prices *pricing.Adapter, guard *pricing.Guard, recorder *events.Recorder, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		engine:   engine,
		prices:   prices,
		guard:    guard,
		recorder: recorder,
		logger:   logger,
	}
}

// Router assembles the chi handler tree.
func (s *Server) Router(cfg Config) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.CORS(cfg.CORS))

	obs := middleware.NewObservability(cfg.Observability, s.logger)
	limiter := middleware.NewRateLimiter(cfg.RateLimits, s.logger)
	auth := middleware.NewAuthenticator(cfg.Auth, s.logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", obs.MetricsHandler())

	r.Route("/v1", func(v1 chi.Router) {
		v1.With(obs.Middleware("basket")).Get("/basket", s.handleBasket)
		v1.With(obs.Middleware("preview")).Get("/basket/preview", s.handlePreview)
		v1.With(obs.Middleware("supply")).Get("/supply", s.handleSupply)
		v1.With(obs.Middleware("supply")).Get("/supply/{address}", s.handleBalance)
		v1.With(obs.Middleware("dust")).Get("/dust", s.handleDust)
		v1.With(obs.Middleware("events")).Get("/events", s.handleEvents)

		v1.With(limiter.Middleware("mint"), obs.Middleware("mint")).Post("/mint", s.handleMint)
		v1.With(limiter.Middleware("burn"), obs.Middleware("burn")).Post("/burn", s.handleBurn)

		v1.Route("/admin", func(admin chi.Router) {
			admin.Use(auth.Middleware(middleware.ScopeAdmin))
			admin.Use(obs.Middleware("admin"))
			admin.Post("/basket", s.handleConfigureBasket)
			admin.Post("/feeds", s.handleBindFeed)
			admin.Post("/tolerance", s.handleSetTolerance)
			admin.Post("/pause", s.handlePause)
			admin.Post("/unpause", s.handleUnpause)
			admin.Post("/recover", s.handleRecover)
		})
	})

	return r
}

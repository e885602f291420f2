// Package httpapi is the dashboard's HTTP surface (SPEC_FULL §D): CRUD over
// BotConfig, lifecycle control, strategies list, tokens passthrough,
// credential probe/scan, health, and a WebSocket fan-out of eventbus.Bus.
// It holds no strategy business logic; every handler calls straight into
// configstore.Store, supervisor.Supervisor, orderservice.Service, the
// exchange client, or the strategy factory.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"github.com/nyx-quant/perpsup/internal/adapter/gateway"
	"github.com/nyx-quant/perpsup/internal/domain/service"
	"github.com/nyx-quant/perpsup/internal/infrastructure/logger"
	"github.com/nyx-quant/perpsup/internal/usecase/configstore"
	"github.com/nyx-quant/perpsup/internal/usecase/eventbus"
	"github.com/nyx-quant/perpsup/internal/usecase/orderservice"
	"github.com/nyx-quant/perpsup/internal/usecase/supervisor"
)

// Config controls the HTTP server's listen address and CORS policy.
type Config struct {
	ListenAddr    string
	FrontendOrigin string
}

// Server wires the dashboard's REST and WebSocket surface over an
// *http.Server. New does not start listening; call Start.
type Server struct {
	cfg    Config
	http   *http.Server
	hub    *hub
	log    *logger.Logger

	configs    *configstore.Store
	supervisor *supervisor.Supervisor
	orders     *orderservice.Service
	exchange   gateway.ExchangeClient
	strategies service.StrategyFactory
	events     *eventbus.Bus
}

// New builds the dashboard server and registers all routes. It does not
// subscribe to events; Start does, and each WebSocket receives its own
// CONNECTION_ESTABLISHED when it connects.
func New(cfg Config, configs *configstore.Store, sup *supervisor.Supervisor, orders *orderservice.Service, exchange gateway.ExchangeClient, strategies service.StrategyFactory, events *eventbus.Bus, log *logger.Logger) *Server {
	if log == nil {
		log = logger.Default()
	}
	s := &Server{
		cfg:        cfg,
		log:        log.WithComponent("httpapi"),
		configs:    configs,
		supervisor: sup,
		orders:     orders,
		exchange:   exchange,
		strategies: strategies,
		events:     events,
	}
	s.hub = newHub(events, s.log)

	router := mux.NewRouter()
	s.registerRoutes(router)

	c := cors.New(cors.Options{
		AllowedOrigins:   []string{cfg.FrontendOrigin},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	})

	s.http = &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      c.Handler(router),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

func (s *Server) registerRoutes(r *mux.Router) {
	r.HandleFunc("/api/v1/bots", s.listBots).Methods(http.MethodGet)
	r.HandleFunc("/api/v1/bots", s.createBot).Methods(http.MethodPost)
	r.HandleFunc("/api/v1/bots/{id}", s.getBot).Methods(http.MethodGet)
	r.HandleFunc("/api/v1/bots/{id}", s.updateBot).Methods(http.MethodPut)
	r.HandleFunc("/api/v1/bots/{id}", s.deleteBot).Methods(http.MethodDelete)
	r.HandleFunc("/api/v1/bots/{id}/start", s.startBot).Methods(http.MethodPost)
	r.HandleFunc("/api/v1/bots/{id}/stop", s.stopBot).Methods(http.MethodPost)
	r.HandleFunc("/api/v1/bots/{id}/restart", s.restartBot).Methods(http.MethodPost)
	r.HandleFunc("/api/v1/bots/{id}/sync", s.forceSyncBot).Methods(http.MethodPost)
	r.HandleFunc("/api/v1/bots/{id}/validate-credentials", s.validateCredentials).Methods(http.MethodPost)

	r.HandleFunc("/api/v1/strategies", s.listStrategies).Methods(http.MethodGet)
	r.HandleFunc("/api/v1/tokens", s.listTokens).Methods(http.MethodGet)
	r.HandleFunc("/api/v1/credentials/duplicates", s.duplicateCredentials).Methods(http.MethodGet)
	r.HandleFunc("/api/v1/health", s.health).Methods(http.MethodGet)
	r.HandleFunc("/api/v1/ws", s.hub.serveWS).Methods(http.MethodGet)
}

// Start begins serving in a background goroutine.
func (s *Server) Start() {
	s.hub.start()
	go func() {
		s.log.Info("httpapi listening on %s", s.cfg.ListenAddr)
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.Error("httpapi: ListenAndServe: %v", err)
		}
	}()
}

// Shutdown gracefully closes the HTTP listener and stops the WS hub.
func (s *Server) Shutdown(ctx context.Context) error {
	s.hub.stop()
	return s.http.Shutdown(ctx)
}

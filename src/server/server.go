// Package server wires the dashboard read API of spec §6 onto a chi
// router and runs it with the teacher's graceful-shutdown idiom.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	logger "github.com/sirupsen/logrus"

	"perpagent/src/exchange"
	"perpagent/src/handler"
	"perpagent/src/health"
	"perpagent/src/repository"
)

// Dependencies collects everything the dashboard API reads from. It is
// built once at startup and handed to NewRouter, mirroring the
// init-order dependency graph described in the project's design notes:
// config -> store -> exchange adapter -> ... -> HTTP.
type Dependencies struct {
	Exchange           exchange.Exchange
	Positions          *repository.PositionRepository
	Trades             *repository.TradeRepository
	CloseEvents        *repository.CloseEventRepository
	AccountHistory     *repository.AccountHistoryRepository
	Decisions          *repository.AgentDecisionRepository
	PriceOrders        *repository.PriceOrderRepository
	Health             *health.Aggregator
}

func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.Logger)

	r.Get("/healthcheck", func(w http.ResponseWriter, r *http.Request) {
		if _, err := w.Write([]byte("OK")); err != nil {
			logger.WithError(err).Error("/healthcheck write error")
		}
	})

	r.Route("/api", func(api chi.Router) {
		api.Get("/account", handler.AccountHandler(deps.Exchange, deps.AccountHistory))
		api.Get("/positions", handler.PositionsHandler(deps.Positions))
		api.Get("/history", handler.HistoryHandler(deps.AccountHistory))
		api.Get("/trades", handler.TradesHandler(deps.Trades))
		api.Get("/completed-trades", handler.CompletedTradesHandler(deps.CloseEvents, deps.Trades))
		api.Get("/logs", handler.LogsHandler(deps.Decisions))
		api.Get("/stats", handler.StatsHandler(deps.CloseEvents))
		api.Get("/prices", handler.PricesHandler(deps.Exchange))
		api.Get("/price-orders", handler.PriceOrdersHandler(deps.PriceOrders))
		api.Get("/health", handler.HealthHandler(deps.Health))
	})

	return r
}

// Server wraps the stdlib http.Server for the graceful-shutdown
// convention grounded on the teacher's StartServer function.
type Server struct {
	httpServer *http.Server
}

func New(cfg Config, handler http.Handler) *Server {
	return &Server{httpServer: &http.Server{Addr: ":" + cfg.Port, Handler: handler}}
}

// Run blocks serving until ctx is cancelled, then drains in-flight
// requests for up to 5 seconds before returning.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Infof("dashboard API listening on %s", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		logger.Info("shutting down dashboard API")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			logger.WithError(err).Error("dashboard API shutdown error")
			return err
		}
		return nil
	}
}

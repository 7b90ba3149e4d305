package server

import (
	"context"
	"net/http"
	"time"

	"github.com/castlemarket/castle-market/internal/market/config"
	"github.com/castlemarket/castle-market/internal/market/handlers"
	"github.com/castlemarket/castle-market/internal/market/logger"
	appmw "github.com/castlemarket/castle-market/internal/market/middleware"
	"github.com/castlemarket/castle-market/internal/market/repository"
	"github.com/castlemarket/castle-market/internal/market/seed"
	"github.com/castlemarket/castle-market/internal/market/service"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// Server assembles the repository, services and HTTP surface.
type Server struct {
	cfg        *config.Config
	repo       *repository.PostgresRepository
	handler    *handlers.Handler
	httpServer *http.Server
}

// New creates a server from configuration.
func New(cfg *config.Config) *Server {
	return &Server{cfg: cfg}
}

// Run connects to the store, applies migrations and serves HTTP.
func (s *Server) Run() error {
	repo, err := repository.Open(s.cfg.DB.DSN)
	if err != nil {
		return err
	}
	s.repo = repo

	if err := repo.Migrate(); err != nil {
		return err
	}
	logger.Log.Info("database ready")

	if s.cfg.Seed.DemoData {
		if err := seed.Run(context.Background(), repo); err != nil {
			return err
		}
	}

	orders := service.NewOrders(repo, logger.Log)
	wallet := service.NewWallet(repo, logger.Log)
	s.handler = handlers.NewHandler(repo, orders, wallet, s.cfg.JWT.Secret, logger.Log)

	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Timeout(60 * time.Second))

	r.Route("/api", func(r chi.Router) {
		r.Post("/user/register", s.handler.Register)
		r.Post("/user/login", s.handler.Login)

		// Authenticated routes
		r.Group(func(r chi.Router) {
			r.Use(appmw.Auth(s.cfg.JWT.Secret))

			r.Get("/user/balance", s.handler.Balance)
			r.Get("/user/transactions", s.handler.Transactions)
			r.Get("/user/notifications", s.handler.Notifications)

			r.Post("/orders", s.handler.CreateOrder)
			r.Get("/orders", s.handler.ListOrders)
			r.Get("/orders/available", s.handler.AvailableOrders)
			r.Post("/orders/{id}/accept", s.handler.AcceptOrder)
			r.Post("/orders/{id}/complete", s.handler.CompleteOrder)
			r.Post("/orders/{id}/cancel", s.handler.CancelOrder)
			r.Post("/orders/{id}/dispute", s.handler.DisputeOrder)
			r.Post("/orders/{id}/resolve", s.handler.ResolveDispute)

			r.Post("/wallet/topup", s.handler.RequestTopUp)
			r.Post("/wallet/topup/{id}/review", s.handler.ReviewTopUp)
			r.Post("/wallet/withdraw", s.handler.RequestWithdrawal)
		})
	})

	s.httpServer = &http.Server{
		Addr:         s.cfg.Server.Address,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	logger.Log.Info("HTTP server listening", zap.String("addr", s.cfg.Server.Address))
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the HTTP server and closes the store.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			return err
		}
	}
	if s.repo != nil {
		if err := s.repo.Close(); err != nil {
			return err
		}
	}
	return nil
}

// Package server exposes the billing operations over HTTP: checkout
// rendering, the gateway callback endpoint, and trade status queries.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"membership-billing/internal/billing"
	"membership-billing/internal/common/config"
	"membership-billing/internal/common/logger"
	"membership-billing/internal/ecpay"
	"membership-billing/internal/store"
)

// billingService is the slice of the billing orchestration the handlers
// call.
type billingService interface {
	IssueUniqueLink(ctx context.Context, period store.Period, memberID string) (string, error)
	BuildCheckoutForOrder(ctx context.Context, orderID string) (*ecpay.CheckoutPayload, error)
	QueryTradeStatus(ctx context.Context, orderID string) (*ecpay.TradeInfo, error)
	ConfirmPayment(ctx context.Context, params map[string]string) (*billing.ConfirmResult, error)
}

type Server struct {
	httpServer *http.Server
	svc        billingService
	logger     logger.Logger
}

func New(cfg config.ServerConfig, svc billingService, log logger.Logger) *Server {
	s := &Server{
		svc:    svc,
		logger: log.WithFields(map[string]interface{}{"component": "server"}),
	}

	s.httpServer = &http.Server{
		Addr:         cfg.Address,
		Handler:      s.routes(),
		ReadTimeout:  time.Duration(cfg.ReadTimeout) * time.Millisecond,
		WriteTimeout: time.Duration(cfg.WriteTimeout) * time.Millisecond,
	}
	return s
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/payments", s.handleCreatePayment)
	mux.HandleFunc("POST /api/payments/callback", s.handleCallback)
	mux.HandleFunc("GET /api/payments/{orderID}", s.handleQueryTrade)
	mux.HandleFunc("GET /api/payments/{orderID}/checkout", s.handleCheckout)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())
	return mux
}

// Handler exposes the routed handler for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

func (s *Server) Start() error {
	s.logger.Info("http server starting", map[string]interface{}{
		"address": s.httpServer.Addr,
	})
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("http server shutting down", nil)
	return s.httpServer.Shutdown(ctx)
}

// Package server exposes the TradingView webhook and the agent's control API.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"trading-agent/internal/interfaces"
	"trading-agent/internal/logger"
)

type Options struct {
	Addr          string
	RatePerSecond float64
	Burst         int
	PlanTTL       time.Duration
	// Metrics serves GET /metrics when set.
	Metrics http.Handler
}

type Server struct {
	router  *gin.Engine
	engine  interfaces.Engine
	plans   *planStore
	metrics http.Handler
	httpSrv *http.Server
}

func New(eng interfaces.Engine, opts Options) *Server {
	if opts.RatePerSecond <= 0 {
		opts.RatePerSecond = 5
	}
	if opts.Burst <= 0 {
		opts.Burst = 10
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(RequestLogger())
	r.Use(RateLimitMiddleware(newIPLimiters(opts.RatePerSecond, opts.Burst)))

	s := &Server{
		router:  r,
		engine:  eng,
		plans:   newPlanStore(opts.PlanTTL),
		metrics: opts.Metrics,
	}
	s.routes()
	s.httpSrv = &http.Server{
		Addr:              opts.Addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) routes() {
	s.router.GET("/health", s.health)
	if s.metrics != nil {
		s.router.GET("/metrics", gin.WrapH(s.metrics))
	}

	s.router.POST("/webhook/tradingview", s.tradingViewWebhook)

	plans := s.router.Group("/plans")
	{
		plans.GET("/:id", s.getPlan)
		plans.POST("/:id/confirm", s.confirmPlan)
		plans.POST("/:id/reject", s.rejectPlan)
	}

	s.router.POST("/cycle", s.runCycle)
	s.router.POST("/rebalance", s.runRebalance)
}

// Handler is the router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Info(ctx, "HTTP server listening", "addr", s.httpSrv.Addr)
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	logger.Info(ctx, "HTTP server shutting down")
	return s.httpSrv.Shutdown(shutdownCtx)
}

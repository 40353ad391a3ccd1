// Package api serves the read-only status API: health, metrics, positions,
// trades and circuit breakers.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"solana-pool-trader/internal/domain"
	"solana-pool-trader/internal/observability"
	"solana-pool-trader/internal/storage"
)

// LivePositions lists positions currently tracked in memory.
type LivePositions interface {
	Active() []domain.PositionContext
}

// BreakerStates reports circuit breaker snapshots.
type BreakerStates interface {
	States() []domain.CircuitBreakerState
}

// Options wires the server's data sources. Nil sources answer 503.
type Options struct {
	Addr        string
	CORSOrigins []string
	Live        LivePositions
	Positions   storage.PositionStore
	Trades      storage.TradeStore
	Breakers    BreakerStates
	Logger      *zap.Logger
}

// Server is the status HTTP server.
type Server struct {
	opts   Options
	router *gin.Engine
	srv    *http.Server
	logger *zap.Logger
}

// NewServer builds the router. Call Run to serve.
func NewServer(opts Options) *Server {
	if opts.Addr == "" {
		opts.Addr = ":8080"
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	s := &Server{
		opts:   opts,
		router: router,
		logger: opts.Logger.Named("api"),
	}
	router.Use(gin.Recovery(), s.requestLogger())

	corsConfig := cors.DefaultConfig()
	if len(opts.CORSOrigins) == 0 || (len(opts.CORSOrigins) == 1 && opts.CORSOrigins[0] == "*") {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = opts.CORSOrigins
	}
	corsConfig.AllowMethods = []string{http.MethodGet, http.MethodOptions}
	router.Use(cors.New(corsConfig))

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	s.router.GET("/metrics", gin.WrapH(observability.Handler()))

	api := s.router.Group("/api")
	api.GET("/positions", s.listPositions)
	api.GET("/positions/:id", s.getPosition)
	api.GET("/trades", s.listTrades)
	api.GET("/trades/:id", s.getTrade)
	api.GET("/breakers", s.listBreakers)
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	s.srv = &http.Server{
		Addr:              s.opts.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("status api listening", zap.String("addr", s.opts.Addr))
		errCh <- s.srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("status api: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("status api shutdown: %w", err)
		}
		return nil
	}
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}

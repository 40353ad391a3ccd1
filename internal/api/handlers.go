package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"solana-pool-trader/internal/storage"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// listPositions returns live positions, or stored ones with ?source=store.
func (s *Server) listPositions(c *gin.Context) {
	if c.Query("source") == "store" {
		if s.opts.Positions == nil {
			unavailable(c, "position store")
			return
		}
		limit, ok := parseLimit(c)
		if !ok {
			return
		}
		positions, err := s.opts.Positions.List(c.Request.Context(), limit)
		if err != nil {
			s.internalError(c, "list positions", err)
			return
		}
		out := make([]positionView, 0, len(positions))
		for _, p := range positions {
			out = append(out, newPositionView(p))
		}
		c.JSON(http.StatusOK, gin.H{"positions": out})
		return
	}

	if s.opts.Live == nil {
		unavailable(c, "position registry")
		return
	}
	active := s.opts.Live.Active()
	out := make([]liveView, 0, len(active))
	for _, pc := range active {
		out = append(out, newLiveView(pc))
	}
	c.JSON(http.StatusOK, gin.H{"positions": out})
}

func (s *Server) getPosition(c *gin.Context) {
	if s.opts.Positions == nil {
		unavailable(c, "position store")
		return
	}
	p, err := s.opts.Positions.GetByID(c.Request.Context(), c.Param("id"))
	if errors.Is(err, storage.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "position not found"})
		return
	}
	if err != nil {
		s.internalError(c, "get position", err)
		return
	}
	c.JSON(http.StatusOK, newPositionView(p))
}

func (s *Server) listTrades(c *gin.Context) {
	if s.opts.Trades == nil {
		unavailable(c, "trade store")
		return
	}
	limit, ok := parseLimit(c)
	if !ok {
		return
	}
	trades, err := s.opts.Trades.List(c.Request.Context(), limit)
	if err != nil {
		s.internalError(c, "list trades", err)
		return
	}
	out := make([]tradeView, 0, len(trades))
	for _, t := range trades {
		out = append(out, newTradeView(t))
	}
	c.JSON(http.StatusOK, gin.H{"trades": out})
}

func (s *Server) getTrade(c *gin.Context) {
	if s.opts.Trades == nil {
		unavailable(c, "trade store")
		return
	}
	t, err := s.opts.Trades.GetByID(c.Request.Context(), c.Param("id"))
	if errors.Is(err, storage.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "trade not found"})
		return
	}
	if err != nil {
		s.internalError(c, "get trade", err)
		return
	}
	c.JSON(http.StatusOK, newTradeView(t))
}

func (s *Server) listBreakers(c *gin.Context) {
	if s.opts.Breakers == nil {
		unavailable(c, "breaker registry")
		return
	}
	states := s.opts.Breakers.States()
	out := make([]breakerView, 0, len(states))
	for _, st := range states {
		out = append(out, newBreakerView(st))
	}
	c.JSON(http.StatusOK, gin.H{"breakers": out})
}

// parseLimit reads ?limit, writing a 400 and returning false when invalid.
func parseLimit(c *gin.Context) (int, bool) {
	raw := c.Query("limit")
	if raw == "" {
		return defaultListLimit, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
		return 0, false
	}
	return min(n, maxListLimit), true
}

func unavailable(c *gin.Context, what string) {
	c.JSON(http.StatusServiceUnavailable, gin.H{"error": what + " not configured"})
}

func (s *Server) internalError(c *gin.Context, op string, err error) {
	s.logger.Error(op+" failed", zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": op + " failed"})
}

// Package api serves the bot's ops endpoints: probes, metrics and a
// read-only leaderboard.
package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"discord-economy-bot/internal/service"
)

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server is the ops HTTP server.
type Server struct {
	srv       *http.Server
	store     Pinger
	ranking   *service.RankingService
	startTime time.Time
}

// NewServer creates the ops server. A nil registry omits /metrics.
func NewServer(addr string, store Pinger, ranking *service.RankingService, registry *prometheus.Registry) *Server {
	s := &Server{store: store, ranking: ranking, startTime: time.Now()}
	s.srv = &http.Server{
		Addr:              addr,
		Handler:           s.routes(registry),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler returns the router, for tests.
func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}

func (s *Server) routes(registry *prometheus.Registry) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", s.liveness)
	r.GET("/readyz", s.readiness)
	if registry != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))
	}
	if s.ranking != nil {
		r.GET("/v1/top", s.top)
	}
	return r
}

func (s *Server) liveness(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) readiness(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	if err := s.store.Ping(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "unhealthy",
			"error":  "storage unavailable",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"uptime": time.Since(s.startTime).Round(time.Second).String(),
	})
}

func (s *Server) top(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "10"))
	if err != nil || limit < 1 || limit > 100 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be between 1 and 100"})
		return
	}

	entries, err := s.ranking.Top(c.Request.Context(), limit)
	if err != nil {
		log.Error().Err(err).Msg("Failed to load leaderboard")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "storage unavailable"})
		return
	}

	out := make([]gin.H, 0, len(entries))
	for _, e := range entries {
		out = append(out, gin.H{"rank": e.Rank, "user_id": e.UserID, "balance": e.Balance, "level": e.Level})
	}
	c.JSON(http.StatusOK, gin.H{"entries": out})
}

// Start serves until Shutdown. It blocks.
func (s *Server) Start() error {
	log.Info().Str("addr", s.srv.Addr).Msg("Ops server listening")
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

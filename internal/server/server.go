package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"marzban-tg-admin/internal/models"
)

const shutdownTimeout = 5 * time.Second

// StatsSource provides the numbers exposed over HTTP
type StatsSource interface {
	GetStats(ctx context.Context) (*models.Stats, error)
	GetActiveUsersCount(ctx context.Context) (int, error)
}

// StatsResponse is the body of GET /stats
type StatsResponse struct {
	*models.Stats
	ActiveUsers int `json:"active_users"`
}

// Server exposes health and statistics endpoints for monitoring
type Server struct {
	addr   string
	store  StatsSource
	engine *gin.Engine
	logger *logrus.Logger
}

// New creates a new HTTP server listening on addr
func New(addr string, store StatsSource, logger *logrus.Logger) *Server {
	s := &Server{
		addr:   addr,
		store:  store,
		engine: gin.New(),
		logger: logger,
	}

	s.engine.Use(gin.Recovery(), s.logRequests())
	s.engine.GET("/healthz", s.handleHealth)
	s.engine.GET("/stats", s.handleStats)
	return s
}

// Handler returns the HTTP handler of the server
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Start serves until ctx is cancelled
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Errorf("Failed to shut down HTTP server: %v", err)
		}
	}()

	s.logger.Infof("HTTP server listening on %s", s.addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) logRequests() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.WithFields(logrus.Fields{
			"method":   c.Request.Method,
			"path":     c.Request.URL.Path,
			"status":   c.Writer.Status(),
			"duration": time.Since(start),
		}).Debug("HTTP request")
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	if _, err := s.store.GetStats(c.Request.Context()); err != nil {
		s.logger.Warnf("Health check failed: %v", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "timestamp": time.Now()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "timestamp": time.Now()})
}

func (s *Server) handleStats(c *gin.Context) {
	ctx := c.Request.Context()

	stats, err := s.store.GetStats(ctx)
	if err != nil {
		s.logger.Errorf("Failed to get stats: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "stats unavailable"})
		return
	}
	active, err := s.store.GetActiveUsersCount(ctx)
	if err != nil {
		s.logger.Errorf("Failed to count active users: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "stats unavailable"})
		return
	}

	c.JSON(http.StatusOK, StatsResponse{Stats: stats, ActiveUsers: active})
}

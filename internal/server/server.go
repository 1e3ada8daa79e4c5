// Package server hosts the HTTP surface: webhook ingress, the admin JSON API,
// /metrics and /healthz.
package server

import (
	"context"
	"crypto/subtle"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"igdmbot/internal/metrics"
	"igdmbot/internal/monitor"
	"igdmbot/internal/webhook"
	"igdmbot/internal/worker"
	"igdmbot/pkg/auth"
	"igdmbot/pkg/config"
	"igdmbot/pkg/logger"
	"igdmbot/pkg/ratelimit"
	"igdmbot/pkg/storage"
)

const shutdownTimeout = 10 * time.Second

// AuthStatus reports the authenticator state.
type AuthStatus interface {
	Status() auth.Status
}

// GovernorStatus reports pacing state.
type GovernorStatus interface {
	Status() ratelimit.GovernorStatus
}

// CycleReporter exposes the last polling cycle.
type CycleReporter interface {
	LastReport() *monitor.Report
}

// JobSubmitter queues synthetic comments for the webhook test endpoint.
type JobSubmitter interface {
	TrySubmit(job worker.Job) error
	Stats() worker.Stats
}

// Deps are the components the server exposes. Optional ones may be nil.
type Deps struct {
	Config   *config.Holder
	Store    storage.Store
	Auth     AuthStatus
	Governor GovernorStatus
	Monitor  CycleReporter
	Webhook  *webhook.Handler
	Pool     JobSubmitter
	Metrics  *metrics.Collector
	Logger   logger.Logger
	Version  string
}

// Server wraps a gin engine and its http.Server.
type Server struct {
	deps    Deps
	engine  *gin.Engine
	http    *http.Server
	logger  logger.Logger
	started time.Time
}

// New builds the router. addr is the listen address used by Run.
func New(addr string, deps Deps) *Server {
	log := deps.Logger
	if log == nil {
		log = logger.GetLogger()
	}

	engine := gin.New()
	engine.Use(gin.Recovery(), deps.Metrics.Middleware(), requestLogger(log))

	s := &Server{
		deps:    deps,
		engine:  engine,
		logger:  log.WithField("component", "server"),
		started: time.Now(),
	}
	s.http = &http.Server{
		Addr:              addr,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	snap := s.deps.Config.Snapshot()

	s.engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	s.engine.GET("/metrics", s.deps.Metrics.Handler())

	if s.deps.Webhook != nil {
		s.deps.Webhook.Register(s.engine, snap.Webhook.Path)
	}

	if !snap.Admin.Enabled {
		return
	}
	api := s.engine.Group("/api")
	api.Use(bearerAuth(snap.Admin.Token))
	{
		api.GET("/config", s.getConfig)
		api.GET("/status", s.getStatus)
		api.GET("/stats", s.getStats)
		api.GET("/processed", s.getProcessed)
		api.GET("/processed/:id/messages", s.getSentMessages)
		api.POST("/keywords", s.updateKeywords)
		api.POST("/strategy", s.updateStrategy)
		api.POST("/monitoring", s.updateMonitoring)
		api.POST("/messages", s.updateMessages)

		hook := api.Group("/webhook")
		hook.GET("/stats", s.webhookStats)
		hook.POST("/activate", s.activateWebhook)
		hook.POST("/deactivate", s.deactivateWebhook)
		hook.POST("/test", s.testWebhook)
	}
}

// Handler returns the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.engine }

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.http.Addr)
	if err != nil {
		return err
	}
	logger.LogComponentStart("server", map[string]interface{}{"addr": ln.Addr().String()})

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.http.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	err = s.http.Shutdown(shutdownCtx)
	logger.LogComponentStop("server", "context cancelled")
	return err
}

// bearerAuth requires "Authorization: Bearer <token>" when token is set.
func bearerAuth(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token == "" {
			c.Next()
			return
		}
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authorization header required"})
			return
		}
		got, ok := strings.CutPrefix(authHeader, "Bearer ")
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authorization header format must be Bearer <token>"})
			return
		}
		if subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
			return
		}
		c.Next()
	}
}

func requestLogger(log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.DebugWithFields("HTTP request", map[string]interface{}{
			"method":   c.Request.Method,
			"path":     c.Request.URL.Path,
			"status":   c.Writer.Status(),
			"duration": time.Since(start),
			"ip":       c.ClientIP(),
		})
	}
}

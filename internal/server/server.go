// Package server exposes the generation orchestrator over HTTP: scenario
// submission, seed uploads, a streamed generation endpoint, status polling,
// and validation.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/xdotli/agentic-rl/internal/config"
	"github.com/xdotli/agentic-rl/internal/orchestrator"
	"github.com/xdotli/agentic-rl/internal/seeds"
	"github.com/xdotli/agentic-rl/internal/validator"
)

// Server wires the HTTP API to the orchestrator and its collaborators.
type Server struct {
	cfg    *config.Config
	orch   *orchestrator.Orchestrator
	seeds  *seeds.Store
	engine *validator.Engine
	logger *slog.Logger

	mu       sync.RWMutex
	scenario string

	http *http.Server
}

// New creates the HTTP server. The validation engine may be nil when no
// rater model is enabled; the validate endpoint then reports the
// misconfiguration instead of running.
func New(
	cfg *config.Config,
	orch *orchestrator.Orchestrator,
	seedStore *seeds.Store,
	engine *validator.Engine,
	logger *slog.Logger,
) *Server {
	s := &Server{
		cfg:    cfg,
		orch:   orch,
		seeds:  seedStore,
		engine: engine,
		logger: logger.With("component", "server"),
	}
	s.http = &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           s.router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(s.requestLogger())
	r.Use(s.cors())

	api := r.Group("/api")
	{
		api.POST("/submit-scenario", s.handleSubmitScenario)
		api.POST("/upload-seed-tasks", s.handleUploadSeedTasks)
		api.GET("/generate-tasks-stream", s.handleGenerateStream)
		api.GET("/status", s.handleStatus)
		api.POST("/validate", s.handleValidate)
		api.GET("/artifacts/download", s.handleDownloadArtifacts)
	}
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	return r
}

// ListenAndServe blocks until the context is cancelled or the listener
// fails, then drains in-flight requests.
func (s *Server) ListenAndServe(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP server listening", "addr", s.http.Addr)
		errCh <- s.http.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.http.Shutdown(shutdownCtx)
	}
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler { return s.http.Handler }

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("HTTP request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start))
	}
}

func (s *Server) cors() gin.HandlerFunc {
	allowed := make(map[string]bool, len(s.cfg.Server.AllowOrigins))
	allowAll := false
	for _, o := range s.cfg.Server.AllowOrigins {
		if o == "*" {
			allowAll = true
		}
		allowed[o] = true
	}
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin != "" && (allowAll || allowed[origin]) {
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			c.Header("Access-Control-Allow-Headers", "Content-Type")
		}
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func (s *Server) setScenario(scenario string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scenario = scenario
}

func (s *Server) currentScenario() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.scenario
}

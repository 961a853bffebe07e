// Package server exposes collect over HTTP: node CRUD, imported content,
// the staging area, interactive stage runs and Prometheus metrics.
package server

import (
	"context"
	"errors"
	"html/template"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pevans/collect/content"
	"github.com/pevans/collect/metrics"
	"github.com/pevans/collect/node"
	"github.com/pevans/collect/pipeline"
	"github.com/pevans/collect/staging"
	"go.uber.org/zap"
)

// DefaultRefreshDelay is how long a progress page waits before loading the
// next step.
const DefaultRefreshDelay = time.Second

// Options configures the HTTP server.
type Options struct {
	Addr         string        `yaml:"addr"`
	RefreshDelay time.Duration `yaml:"refresh_delay"`
}

// Deps holds what the server serves.
type Deps struct {
	Controller *pipeline.Controller
	Nodes      *node.Store
	Staging    *staging.Store
	Content    *content.Store // optional
	Metrics    *metrics.Metrics
	Logger     *zap.Logger
}

// Server is the collect HTTP server.
type Server struct {
	deps   Deps
	opts   Options
	router *gin.Engine
	logger *zap.Logger
}

// New creates a server and its routes.
func New(deps Deps, opts Options) *Server {
	if opts.RefreshDelay <= 0 {
		opts.RefreshDelay = DefaultRefreshDelay
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Server{
		deps:   deps,
		opts:   opts,
		logger: logger.Named("server"),
	}
	s.router = s.setupRouter()
	return s
}

// Handler returns the server's HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// setupRouter configures the Gin router with every route.
func (s *Server) setupRouter() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), s.deps.Metrics.GinMiddleware())

	// Add CORS middleware
	router.Use(func(ctx *gin.Context) {
		ctx.Header("Access-Control-Allow-Origin", "*")
		ctx.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		ctx.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if ctx.Request.Method == "OPTIONS" {
			ctx.AbortWithStatus(http.StatusOK)
			return
		}

		ctx.Next()
	})

	router.SetHTMLTemplate(template.Must(template.New("progress").Parse(progressTemplate)))

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if s.deps.Metrics != nil {
		router.GET("/metrics", gin.WrapH(s.deps.Metrics.Handler()))
	}

	router.GET("/collect/:stage", s.HandleProgressPage)

	api := router.Group("/api/v1")
	node.NewAPIServer(s.deps.Nodes, s.deps.Controller.Pipeline().DeleteNode).Register(api)
	if s.deps.Content != nil {
		content.NewAPIServer(s.deps.Content).Register(api)
	}
	api.POST("/collect/step", s.HandleStep)
	api.GET("/staging", s.HandleListStaging)
	api.GET("/staging/stats", s.HandleStagingStats)
	api.DELETE("/staging/:id", s.HandlePurgeItem)

	return router
}

// Run serves on opts.Addr until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.opts.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", zap.String("addr", s.opts.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// errorResponse creates a standardized error response.
func errorResponse(code, message string) gin.H {
	return node.ErrorResponse(code, message)
}

// handleError maps pipeline and store errors to HTTP responses.
func (s *Server) handleError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, node.ErrNodeNotFound), errors.Is(err, staging.ErrItemNotFound):
		c.JSON(http.StatusNotFound, errorResponse("not_found", err.Error()))
	case errors.Is(err, pipeline.ErrNodeBusy):
		c.JSON(http.StatusConflict, errorResponse("node_busy", err.Error()))
	case errors.Is(err, pipeline.ErrCursorOutOfRange):
		c.JSON(http.StatusBadRequest, errorResponse("bad_request", err.Error()))
	default:
		s.logger.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, errorResponse("internal_error", "Failed to process request"))
	}
}

package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/kikiluvv/framesift/internal/config"
	"github.com/kikiluvv/framesift/internal/pipeline"
	"github.com/kikiluvv/framesift/internal/provider"
)

// Analyzer is the part of the pipeline the HTTP API drives
type Analyzer interface {
	AnalyzeVideos(ctx context.Context, req pipeline.VideoRequest) (*pipeline.Result, error)
	AnalyzeStreams(ctx context.Context, req pipeline.StreamRequest) (*pipeline.Result, error)
	AnalyzeImages(ctx context.Context, req pipeline.ImageRequest) (*pipeline.Result, error)
}

// Server exposes the analyzers over HTTP
type Server struct {
	logger   zerolog.Logger
	config   *config.Config
	analyzer Analyzer
	provider provider.Provider
	router   *gin.Engine
}

// New creates a server. prov may be nil, in which case prompts are rejected.
func New(logger zerolog.Logger, cfg *config.Config, analyzer Analyzer, prov provider.Provider) *Server {
	s := &Server{
		logger:   logger.With().Str("component", "server").Logger(),
		config:   cfg,
		analyzer: analyzer,
		provider: prov,
		router:   gin.New(),
	}
	s.setupRoutes()
	return s
}

// Handler returns the root HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupRoutes() {
	s.router.Use(gin.Recovery(), s.requestLogger())

	s.router.GET("/healthz", s.handleHealth)
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// exposed key frames, when they are written locally
	if s.config.Expose.Dir != "" && s.config.Expose.MinIO.Endpoint == "" {
		s.router.Static("/frames", s.config.Expose.Dir)
	}

	api := s.router.Group("/api/v1")
	api.GET("/sources", s.handleSources)
	api.POST("/analyze/video", s.handleAnalyzeVideo)
	api.POST("/analyze/stream", s.handleAnalyzeStream)
	api.POST("/analyze/images", s.handleAnalyzeImages)
	api.GET("/providers/validate", s.handleValidateProvider)
}

// requestLogger logs each request through zerolog and tags it with an id
func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Header("X-Request-ID", id)

		start := time.Now()
		c.Next()

		s.logger.Info().
			Str("request_id", id).
			Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Int("status", c.Writer.Status()).
			Dur("took", time.Since(start)).
			Msg("request")
	}
}

// Run serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Run(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:              s.config.Server.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", s.config.Server.Addr).Msg("http server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("server failed: %w", err)
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info().Msg("shutting down http server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	return nil
}

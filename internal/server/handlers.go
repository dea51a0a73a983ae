package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kikiluvv/framesift/internal/frames"
	"github.com/kikiluvv/framesift/internal/pipeline"
	"github.com/kikiluvv/framesift/internal/provider"
	"github.com/kikiluvv/framesift/pkg/util"
)

type optionsBody struct {
	MaxFrames       int    `json:"max_frames"`
	TargetWidth     int    `json:"target_width"`
	IncludeFilename *bool  `json:"include_filename"`
	Expose          bool   `json:"expose"`
	Prompt          string `json:"prompt"`
}

type videoBody struct {
	Paths    []string `json:"paths"`
	EventIDs []string `json:"event_ids"`
	optionsBody
}

type streamBody struct {
	SourceIDs []string `json:"source_ids"`
	Duration  string   `json:"duration" binding:"required"`
	optionsBody
}

type imagesBody struct {
	SourceIDs []string `json:"source_ids"`
	Paths     []string `json:"paths"`
	optionsBody
}

type analyzeResponse struct {
	RequestID string            `json:"request_id"`
	Keyframes []frames.Keyframe `json:"keyframes"`
	KeyFrame  string            `json:"key_frame,omitempty"`
	Response  string            `json:"response,omitempty"`
}

type errorResponse struct {
	Error     string    `json:"error"`
	Message   string    `json:"message"`
	RequestID string    `json:"request_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type sourceInfo struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Kind string `json:"kind"`
}

func (s *Server) options(body optionsBody) pipeline.Options {
	include := s.config.Selection.IncludeFilename
	if body.IncludeFilename != nil {
		include = *body.IncludeFilename
	}
	return pipeline.Options{
		MaxFrames:       body.MaxFrames,
		TargetWidth:     body.TargetWidth,
		IncludeFilename: include,
		Expose:          body.Expose,
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now(),
	})
}

func (s *Server) handleSources(c *gin.Context) {
	sources := make([]sourceInfo, 0, len(s.config.Sources))
	for _, src := range s.config.Sources {
		sources = append(sources, sourceInfo{ID: src.ID, Name: src.Name, Kind: src.Kind})
	}
	c.JSON(http.StatusOK, gin.H{"sources": sources})
}

func (s *Server) handleAnalyzeVideo(c *gin.Context) {
	var body videoBody
	if err := c.ShouldBindJSON(&body); err != nil {
		s.fail(c, frames.BadInput("invalid request body: %v", err))
		return
	}

	result, err := s.analyzer.AnalyzeVideos(c.Request.Context(), pipeline.VideoRequest{
		Paths:    body.Paths,
		EventIDs: body.EventIDs,
		Options:  s.options(body.optionsBody),
	})
	s.finish(c, result, err, body.optionsBody)
}

func (s *Server) handleAnalyzeStream(c *gin.Context) {
	var body streamBody
	if err := c.ShouldBindJSON(&body); err != nil {
		s.fail(c, frames.BadInput("invalid request body: %v", err))
		return
	}
	duration, err := util.ParseTimestamp(body.Duration)
	if err != nil {
		s.fail(c, frames.BadInput("invalid duration %q", body.Duration))
		return
	}

	result, err := s.analyzer.AnalyzeStreams(c.Request.Context(), pipeline.StreamRequest{
		SourceIDs: body.SourceIDs,
		Duration:  duration,
		Options:   s.options(body.optionsBody),
	})
	s.finish(c, result, err, body.optionsBody)
}

func (s *Server) handleAnalyzeImages(c *gin.Context) {
	var body imagesBody
	if err := c.ShouldBindJSON(&body); err != nil {
		s.fail(c, frames.BadInput("invalid request body: %v", err))
		return
	}

	result, err := s.analyzer.AnalyzeImages(c.Request.Context(), pipeline.ImageRequest{
		SourceIDs: body.SourceIDs,
		Paths:     body.Paths,
		Options:   s.options(body.optionsBody),
	})
	s.finish(c, result, err, body.optionsBody)
}

func (s *Server) handleValidateProvider(c *gin.Context) {
	if s.provider == nil {
		c.JSON(http.StatusServiceUnavailable, s.errorBody(c, "no_provider", "no provider is configured"))
		return
	}
	if err := s.provider.Validate(c.Request.Context()); err != nil {
		c.JSON(http.StatusBadGateway, s.errorBody(c, "handshake_failed", err.Error()))
		return
	}
	c.JSON(http.StatusOK, gin.H{"provider": s.provider.Name(), "status": "ok"})
}

// finish answers an analyze call, forwarding the keyframes to the provider
// when a prompt was given
func (s *Server) finish(c *gin.Context, result *pipeline.Result, err error, body optionsBody) {
	if err != nil {
		s.fail(c, err)
		return
	}

	resp := analyzeResponse{
		RequestID: c.GetString("request_id"),
		Keyframes: result.Keyframes,
		KeyFrame:  result.KeyFrame,
	}

	if body.Prompt != "" {
		if s.provider == nil {
			c.JSON(http.StatusServiceUnavailable, s.errorBody(c, "no_provider", "no provider is configured"))
			return
		}
		answer, err := provider.Call(c.Request.Context(), s.logger, s.provider, provider.Request{
			Message:     body.Prompt,
			MaxTokens:   s.config.Provider.MaxTokens,
			Temperature: s.config.Provider.Temperature,
			Keyframes:   result.Keyframes,
		})
		if err != nil {
			if frames.IsValidation(err) {
				s.fail(c, err)
				return
			}
			c.JSON(http.StatusBadGateway, s.errorBody(c, "provider_error", err.Error()))
			return
		}
		resp.Response = answer
	}

	c.JSON(http.StatusOK, resp)
}

// fail maps a pipeline error onto a status code
func (s *Server) fail(c *gin.Context, err error) {
	status, code := http.StatusInternalServerError, "internal"
	if kind, ok := frames.KindOf(err); ok {
		switch kind {
		case frames.KindBadInput:
			status, code = http.StatusBadRequest, "bad_input"
		case frames.KindTransient:
			status, code = http.StatusBadGateway, "transient"
		}
	} else if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		status, code = http.StatusServiceUnavailable, "cancelled"
	}

	if status == http.StatusInternalServerError {
		s.logger.Error().Err(err).Str("path", c.FullPath()).Msg("request failed")
	}
	c.JSON(status, s.errorBody(c, code, err.Error()))
}

func (s *Server) errorBody(c *gin.Context, code, message string) errorResponse {
	return errorResponse{
		Error:     code,
		Message:   message,
		RequestID: c.GetString("request_id"),
		Timestamp: time.Now(),
	}
}

// Package server exposes the scheduler over HTTP.
//
// Information Hiding:
// - SSE framing and flushing hidden behind sseStreamer
// - Turn journaling delegated to storage.Recorder
// - Middleware order fixed in Router
// - Content pointers resolve against the same store the journal uses
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/zhfg/refly-sub011/internal/logging"
	"github.com/zhfg/refly-sub011/model"
	"github.com/zhfg/refly-sub011/scheduler"
	"github.com/zhfg/refly-sub011/storage"
)

// Server serves skill turns and their journal.
type Server struct {
	scheduler *scheduler.Scheduler
	store     *storage.Store
	recorder  *storage.Recorder
	filter    model.FilterConfig
	logger    logging.Logger
}

// New creates a server. store may be nil, in which case turns are not
// journaled and the replay and content endpoints are not registered. filter applies to
// requests that carry no rules of their own.
func New(s *scheduler.Scheduler, store *storage.Store, filter model.FilterConfig, logger logging.Logger) *Server {
	if logger == nil {
		logger = logging.Discard()
	}
	srv := &Server{scheduler: s, store: store, filter: filter, logger: logger}
	if store != nil {
		srv.recorder = storage.NewRecorder(store, logger)
	}
	return srv
}

// Router builds the gin engine with middleware and routes.
func (s *Server) Router() *gin.Engine {
	router := gin.New()
	router.Use(requestIDMiddleware())
	router.Use(loggingMiddleware(s.logger))
	router.Use(recoveryMiddleware(s.logger))

	router.GET("/healthz", s.handleHealth)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/v1")
	v1.GET("/skills", s.handleSkills)
	v1.POST("/skills/invoke", s.handleInvoke)
	if s.store != nil {
		v1.GET("/turns/:id", s.handleTurn)
		v1.GET("/turns/:id/events", s.handleTurnEvents)
		v1.GET("/turns/:id/usage", s.handleTurnUsage)

		v1.PUT("/documents/:id", s.handlePutDocument)
		v1.GET("/documents/:id", s.handleGetDocument)
		v1.PUT("/resources/:id", s.handlePutResource)
		v1.GET("/resources/:id", s.handleGetResource)
	}
	return router
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:        addr,
		Handler:     s.Router(),
		ReadTimeout: 30 * time.Second,
		IdleTimeout: 120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.WithField("addr", addr).Info("Starting HTTP server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	s.logger.Info("Server stopped")
	return nil
}

func (s *Server) handleHealth(c *gin.Context) {
	if s.store != nil {
		if err := s.store.Ping(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": "database unavailable"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

func (s *Server) handleSkills(c *gin.Context) {
	c.JSON(http.StatusOK, scheduler.Skills())
}

// handleInvoke runs one turn and streams its events as SSE. The turn is
// cancelled when the client goes away; the stream is still drained so the
// journal receives the final end event.
func (s *Server) handleInvoke(c *gin.Context) {
	var req scheduler.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request payload"})
		return
	}
	if strings.TrimSpace(req.Query.Text) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "query is required"})
		return
	}
	for _, item := range req.Items {
		if !item.Type.Valid() {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("unknown context item type %q", item.Type)})
			return
		}
	}
	if req.Filter == nil {
		req.Filter = s.filter
	}
	if req.TurnID == "" {
		req.TurnID = uuid.NewString()
	}
	c.Set("turn_id", req.TurnID)

	streamer, err := newSSEStreamer(c.Writer)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "streaming unavailable"})
		return
	}
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Header("X-Turn-ID", req.TurnID)
	c.Status(http.StatusOK)

	ctx := c.Request.Context()
	stream := s.scheduler.Run(ctx, req)
	if s.recorder != nil {
		stream = s.recorder.Record(ctx, req.TurnID, req.Query.Text, stream)
	}

	clientGone := false
	for ev := range stream {
		if clientGone {
			continue
		}
		if err := streamer.send(ev); err != nil {
			s.logger.WithError(err).WithField("turn_id", req.TurnID).Warn("client disconnected")
			clientGone = true
		}
	}
	if !clientGone {
		_ = streamer.done()
	}
}

func (s *Server) handleTurn(c *gin.Context) {
	turn, err := s.store.GetTurn(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.storageError(c, "turn", err)
		return
	}
	c.JSON(http.StatusOK, turn)
}

func (s *Server) handleTurnEvents(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")
	if _, err := s.store.GetTurn(ctx, id); err != nil {
		s.storageError(c, "turn", err)
		return
	}
	stream, err := s.store.LoadEvents(ctx, id)
	if err != nil {
		s.storageError(c, "turn", err)
		return
	}
	c.JSON(http.StatusOK, stream)
}

func (s *Server) handleTurnUsage(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")
	if _, err := s.store.GetTurn(ctx, id); err != nil {
		s.storageError(c, "turn", err)
		return
	}
	usage, err := s.store.LoadUsage(ctx, id)
	if err != nil {
		s.storageError(c, "turn", err)
		return
	}
	c.JSON(http.StatusOK, usage)
}

// contentBody is the payload of the content PUT endpoints. The id comes
// from the path.
type contentBody struct {
	Title   string `json:"title"`
	Content string `json:"content"`
	URL     string `json:"url,omitempty"`
}

func bindContent(c *gin.Context) (contentBody, bool) {
	var body contentBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request payload"})
		return body, false
	}
	if strings.TrimSpace(body.Content) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "content is required"})
		return body, false
	}
	return body, true
}

func (s *Server) handlePutDocument(c *gin.Context) {
	body, ok := bindContent(c)
	if !ok {
		return
	}
	doc := model.Document{ID: c.Param("id"), Title: body.Title, Content: body.Content}
	if err := s.store.PutDocument(c.Request.Context(), doc); err != nil {
		s.storageError(c, "document", err)
		return
	}
	c.JSON(http.StatusOK, doc)
}

func (s *Server) handleGetDocument(c *gin.Context) {
	doc, err := s.store.GetDocument(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.storageError(c, "document", err)
		return
	}
	c.JSON(http.StatusOK, doc)
}

func (s *Server) handlePutResource(c *gin.Context) {
	body, ok := bindContent(c)
	if !ok {
		return
	}
	res := model.Resource{ID: c.Param("id"), Title: body.Title, Content: body.Content, URL: body.URL}
	if err := s.store.PutResource(c.Request.Context(), res); err != nil {
		s.storageError(c, "resource", err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) handleGetResource(c *gin.Context) {
	res, err := s.store.GetResource(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.storageError(c, "resource", err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) storageError(c *gin.Context, subject string, err error) {
	if errors.Is(err, storage.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": subject + " not found"})
		return
	}
	s.logger.WithError(err).Error("storage failure")
	c.JSON(http.StatusInternalServerError, gin.H{"error": "storage failure"})
}

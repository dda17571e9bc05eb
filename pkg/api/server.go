// Package api provides the REST API server for drumgrid
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/james-see/drumgrid/pkg/emitter"
	"github.com/james-see/drumgrid/pkg/logging"
	"github.com/james-see/drumgrid/pkg/pattern"
	"github.com/james-see/drumgrid/pkg/serializer"
)

// @title Drumgrid API
// @version 1.0
// @description API for editing a drum step pattern and exporting it as MIDI
// @host localhost:8080
// @BasePath /api/v1

// Server serves one pattern store over HTTP.
type Server struct {
	store  *pattern.Store
	em     *emitter.Emitter
	logger *log.Logger
	router *gin.Engine

	mu        sync.Mutex
	clipboard *pattern.Snapshot
}

// NewServer builds the router around store. A nil logger discards output.
func NewServer(store *pattern.Store, em *emitter.Emitter, logger *log.Logger) *Server {
	if logger == nil {
		logger = logging.Discard()
	}
	s := &Server{store: store, em: em, logger: logger}

	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(logger))

	// CORS middleware
	r.Use(corsMiddleware())

	// Health check
	r.GET("/health", healthCheck)

	// API v1 routes
	v1 := r.Group("/api/v1")
	{
		v1.GET("/health", healthCheck)
		v1.GET("/pattern", s.getPattern)
		v1.PUT("/pattern", s.putPattern)
		v1.GET("/cells/:bar/:row/:step", s.getCell)
		v1.PUT("/cells", s.putCell)
		v1.POST("/resize", s.resize)
		v1.PUT("/tempo", s.putTempo)
		v1.PUT("/swing", s.putSwing)
		v1.PUT("/rows/:row", s.putRow)
		v1.POST("/bars/:bar/copy", s.copyBar)
		v1.POST("/bars/:bar/paste", s.pasteBar)
		v1.POST("/bars/:bar/clear", s.clearBar)
		v1.POST("/bars/:bar/randomize", s.randomizeBar)
		v1.POST("/bars/:bar/humanize", s.humanizeBar)
		v1.GET("/export", s.exportMIDI)
		v1.POST("/import", s.importMIDI)
		v1.GET("/timing", s.getTiming)
		v1.GET("/levels", s.listLevels)
	}

	// Swagger docs
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	s.router = r
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler { return s.router }

// Serve listens on port until ctx is done, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, port int) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	s.logger.Info("listening", "port", port)

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	s.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

func requestLogger(logger *log.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		logger.Debug("request", "method", c.Request.Method, "path", c.FullPath(), "status", c.Writer.Status())
	}
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, pattern.ErrOutOfRange),
		errors.Is(err, pattern.ErrInvalidResolution),
		errors.Is(err, serializer.ErrMalformedData):
		return http.StatusBadRequest
	case errors.Is(err, pattern.ErrShapeMismatch):
		return http.StatusConflict
	case errors.Is(err, serializer.ErrVersionUnsupported),
		errors.Is(err, serializer.ErrShapeInconsistent):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func abortWithError(c *gin.Context, err error) {
	c.JSON(statusFor(err), gin.H{"error": err.Error()})
}

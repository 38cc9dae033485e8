// Package server exposes the prediction pipeline over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"amrkg/predictor"
)

const shutdownTimeout = 5 * time.Second

// Options configures a Server.
type Options struct {
	Addr        string
	Fingerprint predictor.FingerprintKind
	Model       string
}

// Server serves predictions from a pipeline backed by an artifact cache.
type Server struct {
	pipeline *predictor.Pipeline
	cache    *predictor.ArtifactCache
	store    predictor.ArtifactStore
	opts     Options
	logger   *zap.Logger
	engine   *gin.Engine
	http     *http.Server
}

// New wires the routes. pipeline should use cache as its artifact source so
// reload and purge requests affect what predictions see.
func New(pipeline *predictor.Pipeline, cache *predictor.ArtifactCache, store predictor.ArtifactStore, opts Options, logger *zap.Logger) (*Server, error) {
	if pipeline == nil || cache == nil || store == nil {
		return nil, errors.New("server requires a pipeline, an artifact cache and a store")
	}
	if !opts.Fingerprint.Valid() {
		return nil, fmt.Errorf("%w: %s", predictor.ErrUnknownFingerprint, opts.Fingerprint)
	}
	if opts.Addr == "" {
		opts.Addr = ":8080"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		pipeline: pipeline,
		cache:    cache,
		store:    store,
		opts:     opts,
		logger:   logger,
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(s.requestLogger())
	RegisterHealthRoutes(r)
	s.RegisterModelRoutes(r)
	s.RegisterPredictRoutes(r)
	s.engine = r
	s.http = &http.Server{
		Addr:              opts.Addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s, nil
}

// Handler returns the gin engine.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Listen binds the configured address.
func (s *Server) Listen() (net.Listener, error) {
	ln, err := net.Listen("tcp", s.opts.Addr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", s.opts.Addr, err)
	}
	return ln, nil
}

// Serve handles requests on ln until ctx is done, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.http.Serve(ln)
	}()
	s.logger.Info("server listening", zap.String("addr", ln.Addr().String()))

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve: %w", err)
	}
	s.logger.Info("server stopped")
	return nil
}

// Run listens on the configured address and serves until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	ln, err := s.Listen()
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

const requestIDHeader = "X-Request-ID"

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Header(requestIDHeader, id)

		start := time.Now()
		c.Next()
		s.logger.Debug("request",
			zap.String("request_id", id),
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)))
	}
}

// statusFor maps pipeline errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, predictor.ErrArtifactNotFound):
		return http.StatusNotFound
	case errors.Is(err, predictor.ErrUnknownFingerprint):
		return http.StatusBadRequest
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package fakeregistry provides a local stand-in for the remote document registry.
// It accepts document creation requests, may enforce its own request rate limit
// and exposes Prometheus metrics. It's used by the demo harness and tests.
package fakeregistry

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/acronis/go-crptapi/internal/ratelimit"
	"github.com/acronis/go-crptapi/log"
	"github.com/acronis/go-crptapi/service"
)

// DocumentsCreatePath is the path of the document creation endpoint.
const DocumentsCreatePath = "/api/v3/lk/documents/create"

const defaultShutdownTimeout = 5 * time.Second

// Opts represents options for creating Server.
type Opts struct {
	// Address to listen on. "127.0.0.1:0" (random free port) is used if empty.
	Address string

	// Listener is a pre-configured listener to use instead of creating a new one.
	// Address is ignored then, and the port is known right after New.
	Listener net.Listener

	// Limit is enforced by the registry: requests above it are rejected with 429 status code.
	// Zero value means no limit.
	Limit ratelimit.Rate

	// ShutdownTimeout is the maximum time to wait for active requests on graceful stop.
	ShutdownTimeout time.Duration

	// MetricsNamespace is a namespace for the registry metrics.
	MetricsNamespace string
}

// Server is a fake document registry HTTP server.
// It implements service.Unit and service.MetricsRegisterer interfaces.
type Server struct {
	HTTPServer      *http.Server
	HTTPRouter      chi.Router
	Logger          log.FieldLogger
	ShutdownTimeout time.Duration

	registry       *registry
	metrics        *PrometheusMetrics
	listener       net.Listener
	preListener    net.Listener
	port           int32
	httpServerDone atomic.Value
}

var _ service.Unit = (*Server)(nil)
var _ service.MetricsRegisterer = (*Server)(nil)

// New creates a new fake registry server.
func New(logger log.FieldLogger, opts Opts) (*Server, error) {
	if logger == nil {
		logger = log.NewDisabledLogger()
	}
	if opts.Limit != (ratelimit.Rate{}) {
		if err := opts.Limit.Validate(); err != nil {
			return nil, fmt.Errorf("registry limit: %w", err)
		}
	}
	if opts.Address == "" {
		opts.Address = "127.0.0.1:0"
	}
	if opts.ShutdownTimeout == 0 {
		opts.ShutdownTimeout = defaultShutdownTimeout
	}

	metrics := NewPrometheusMetrics(opts.MetricsNamespace)
	reg := newRegistry(opts.Limit, metrics, logger)

	router := chi.NewRouter()
	router.Use(chimiddleware.Recoverer)
	router.Method(http.MethodGet, "/metrics", promhttp.Handler())
	router.Method(http.MethodGet, "/healthz", http.HandlerFunc(func(rw http.ResponseWriter, _ *http.Request) {
		rw.WriteHeader(http.StatusOK)
	}))
	router.Post(DocumentsCreatePath, reg.createDocument)

	srv := &Server{
		HTTPServer: &http.Server{
			Addr:              opts.Address,
			Handler:           router,
			ReadHeaderTimeout: 5 * time.Second,
		},
		HTTPRouter:      router,
		Logger:          logger,
		ShutdownTimeout: opts.ShutdownTimeout,
		registry:        reg,
		metrics:         metrics,
		listener:        opts.Listener,
		preListener:     opts.Listener,
	}
	if opts.Listener != nil {
		srv.HTTPServer.Addr = opts.Listener.Addr().String()
		if err := srv.storeListenerPort(); err != nil {
			return nil, err
		}
	}
	return srv, nil
}

// Start starts the server in a blocking way.
// It's supposed that this method will be called in a separate goroutine.
// If a fatal error occurs, it will be sent to the fatalError channel.
func (s *Server) Start(fatalError chan<- error) {
	done := make(chan struct{})
	defer close(done)
	s.httpServerDone.Store(done)

	logger := s.Logger.With(log.String("address", s.HTTPServer.Addr))
	logger.Info("starting fake registry HTTP server...")

	var err error
	if s.listener == nil {
		if s.listener, err = net.Listen("tcp", s.HTTPServer.Addr); err != nil {
			logger.Error("fake registry HTTP server error", log.Error(err))
			fatalError <- err
			return
		}
	}

	if err = s.storeListenerPort(); err != nil {
		fatalError <- err
		return
	}

	if err = s.HTTPServer.Serve(s.listener); err != nil {
		if errors.Is(err, http.ErrServerClosed) {
			logger.Info("fake registry HTTP server closed")
			return
		}
		logger.Error("fake registry HTTP server error", log.Error(err))
		fatalError <- err
	}
}

// Stop stops the server (gracefully or not).
func (s *Server) Stop(gracefully bool) error {
	if _, started := s.httpServerDone.Load().(chan struct{}); !started && s.preListener != nil {
		// Serve has never run, so the pre-configured listener isn't owned by the HTTP server yet.
		defer func() { _ = s.preListener.Close() }()
	}
	if !gracefully {
		if err := s.HTTPServer.Close(); err != nil {
			s.Logger.Error("fake registry HTTP server closing error", log.Error(err))
			return err
		}
		s.waitDone()
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.ShutdownTimeout)
	defer cancel()
	s.Logger.Info("shutting down fake registry HTTP server...", log.Duration("timeout", s.ShutdownTimeout))
	if err := s.HTTPServer.Shutdown(ctx); err != nil {
		s.Logger.Error("fake registry HTTP server shutting down error", log.Error(err))
		return err
	}
	s.waitDone()
	return nil
}

func (s *Server) storeListenerPort() error {
	_, portStr, err := net.SplitHostPort(s.listener.Addr().String())
	if err != nil {
		return fmt.Errorf("split listener address: %w", err)
	}
	port, err := strconv.ParseInt(portStr, 10, 32)
	if err != nil {
		return fmt.Errorf("parse listener port: %w", err)
	}
	atomic.StoreInt32(&s.port, int32(port))
	return nil
}

func (s *Server) waitDone() {
	if done, ok := s.httpServerDone.Load().(chan struct{}); ok && done != nil {
		<-done // Wait for the listener to be closed.
	}
}

// MustRegisterMetrics registers metrics in Prometheus client and panics if any error occurs.
func (s *Server) MustRegisterMetrics() {
	s.metrics.MustRegister()
}

// UnregisterMetrics unregisters metrics in Prometheus client.
func (s *Server) UnregisterMetrics() {
	s.metrics.Unregister()
}

// GetPort returns the port the server listens on.
// It's zero until the server is started unless a pre-configured listener was passed.
func (s *Server) GetPort() int {
	return int(atomic.LoadInt32(&s.port))
}

// Endpoint returns the URL of the document creation endpoint.
// The server must be started or created with a pre-configured listener.
func (s *Server) Endpoint() string {
	host, _, err := net.SplitHostPort(s.HTTPServer.Addr)
	if err != nil || host == "" {
		host = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(host, strconv.Itoa(s.GetPort())) + DocumentsCreatePath
}

// Documents returns all accepted submissions in order of acceptance.
func (s *Server) Documents() []AcceptedDocument {
	return s.registry.accepted()
}

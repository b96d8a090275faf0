package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/muurk/machinewatch/internal/logging"
	"github.com/muurk/machinewatch/internal/reconcile"
	"github.com/muurk/machinewatch/internal/store"
)

// DefaultMaxTimeout caps the discovery window a request may ask for
const DefaultMaxTimeout = 60 * time.Second

// Config holds the server configuration
type Config struct {
	Host string
	Port int
	// DefaultTimeout is the discovery window when a request gives none
	DefaultTimeout time.Duration
	// MaxTimeout caps the window a request may ask for. Zero means
	// DefaultMaxTimeout.
	MaxTimeout  time.Duration
	ReadTimeout time.Duration
}

// Server is the HTTP API
type Server struct {
	config   Config
	runner   reconcile.Runner
	store    store.Store
	hub      *Hub
	engine   *gin.Engine
	http     *http.Server
	listener net.Listener
	log      *zap.Logger
	stopped  chan struct{}
	serveErr error
}

// New builds the router. Call Start or ListenAndServe to accept requests.
func New(config Config, runner reconcile.Runner, st store.Store, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery(), requestLogger())

	s := &Server{
		config:  config,
		runner:  runner,
		store:   st,
		hub:     NewHub(log),
		engine:  engine,
		log:     log,
		stopped: make(chan struct{}),
	}
	s.routes()

	if config.MaxTimeout <= 0 {
		config.MaxTimeout = DefaultMaxTimeout
	}

	readTimeout := config.ReadTimeout
	if readTimeout <= 0 {
		readTimeout = 10 * time.Second
	}
	s.http = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", config.Host, config.Port),
		Handler:           engine,
		ReadHeaderTimeout: readTimeout,
	}
	return s
}

func (s *Server) routes() {
	s.engine.GET("/", s.handleRoot)

	api := s.engine.Group("/api")
	{
		api.GET("/db-check", s.handleDBCheck)
		api.GET("/discover-devices", s.handleDiscoverDevices)
		api.GET("/discovered-devices", s.handleListDevices)
		api.GET("/discovered-devices/:ip", s.handleGetDevice)
		api.GET("/discovery/stream", s.handleStream)
	}
}

// Handler returns the router, for tests and embedding
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Hub returns the websocket hub cycle results are broadcast through
func (s *Server) Hub() *Hub {
	return s.hub
}

// Start binds the listener and serves in the background
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.http.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.http.Addr, err)
	}
	s.listener = ln

	s.log.Info("HTTP API listening", zap.String("addr", ln.Addr().String()))
	go func() {
		defer close(s.stopped)
		if err := s.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("HTTP server stopped", zap.Error(err))
			s.serveErr = err
		}
	}()
	return nil
}

// ListenAndServe serves in the foreground until Shutdown
func (s *Server) ListenAndServe() error {
	if err := s.Start(); err != nil {
		return err
	}
	<-s.stopped
	return s.serveErr
}

// Addr returns the bound address once started
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.http.Addr
}

// Shutdown closes websocket clients and drains in-flight requests
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("Stopping HTTP API")
	s.hub.Close()
	return s.http.Shutdown(ctx)
}

// requestLogger logs every request through the package logger
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logging.LogHTTPRequest(c.ClientIP(), c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start))
	}
}

// Package server exposes interactive evaluation sessions over WebSocket.
//
// Routes:
//
//	GET /        fixed greeting
//	GET /health  liveness probe
//	GET /eval    WebSocket upgrade; one REPL session per connection
//
// Each connection gets its own session and its own goroutine. There is no
// registry of sessions; a session lives exactly as long as its connection.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/codefionn/ronkey/internal/config"
	"github.com/codefionn/ronkey/internal/interp"
	"github.com/codefionn/ronkey/internal/logger"
	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
)

// Server is the HTTP and WebSocket front of the evaluation service
type Server struct {
	cfg       *config.Config
	runtime   interp.Runtime
	processor *Processor
	router    *httprouter.Router
	upgrader  websocket.Upgrader
	log       *logger.Logger

	httpServer *http.Server
	listener   net.Listener

	// baseCtx is cancelled by Stop and closes every open connection
	baseCtx context.Context
	cancel  context.CancelFunc
	conns   sync.WaitGroup

	mu      sync.Mutex
	running bool
	closing bool
}

// Option customizes a Server
type Option func(*serverOptions)

type serverOptions struct {
	frontend interp.Frontend
	runtime  interp.Runtime
	log      *logger.Logger
}

// WithFrontend replaces the language frontend
func WithFrontend(f interp.Frontend) Option {
	return func(o *serverOptions) { o.frontend = f }
}

// WithRuntime replaces the language runtime
func WithRuntime(r interp.Runtime) Option {
	return func(o *serverOptions) { o.runtime = r }
}

// WithLogger sets the logger; the global logger is used otherwise
func WithLogger(l *logger.Logger) Option {
	return func(o *serverOptions) { o.log = l }
}

// NewServer creates a server for cfg. Without options it evaluates Monkey.
func NewServer(cfg *config.Config, opts ...Option) *Server {
	o := serverOptions{
		frontend: interp.Monkey{},
		runtime:  interp.Monkey{},
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.log == nil {
		o.log = logger.Global().WithPrefix("server")
	}

	ctx, cancel := context.WithCancel(context.Background())

	s := &Server{
		cfg:       cfg,
		runtime:   o.runtime,
		processor: NewProcessor(o.frontend, cfg.EvalTimeout(), o.log),
		router:    httprouter.New(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true // sessions carry no credentials
			},
		},
		log:     o.log,
		baseCtx: ctx,
		cancel:  cancel,
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.GET("/", s.handleIndex)
	s.router.GET("/health", s.handleHealth)
	s.router.GET("/eval", s.handleEval)
}

// Handler returns the HTTP handler serving all routes
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start listens on the configured address and serves in the background
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return errors.New("server is already running")
	}

	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.Addr, err)
	}
	s.listener = ln

	s.httpServer = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog:          logger.StdLogger(s.log, slog.LevelError),
		BaseContext: func(net.Listener) context.Context {
			return s.baseCtx
		},
	}
	s.running = true

	go func() {
		s.log.Info("Listening on %s", ln.Addr())
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("HTTP server error: %v", err)
		}
	}()

	return nil
}

// Addr returns the bound listen address, or nil before Start
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Stop closes every connection and shuts the HTTP server down
func (s *Server) Stop() error {
	s.log.Info("Stopping server...")
	s.cancel()

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout())
	defer cancel()

	s.mu.Lock()
	httpServer := s.httpServer
	s.running = false
	s.closing = true
	s.mu.Unlock()

	if httpServer != nil {
		if err := httpServer.Shutdown(ctx); err != nil {
			return fmt.Errorf("failed to shutdown HTTP server: %w", err)
		}
	}

	// Hijacked WebSocket connections are not tracked by Shutdown
	done := make(chan struct{})
	go func() {
		s.conns.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return fmt.Errorf("connections still open after shutdown: %w", ctx.Err())
	}

	s.log.Info("Server stopped")
	return nil
}

// acquireConn registers a new connection unless Stop has begun. Every
// successful call must be paired with releaseConn.
func (s *Server) acquireConn() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closing {
		return false
	}
	s.conns.Add(1)
	return true
}

func (s *Server) releaseConn() {
	s.conns.Done()
}

// Run starts the server and stops it when ctx is done
func (s *Server) Run(ctx context.Context) error {
	if err := s.Start(); err != nil {
		return err
	}
	<-ctx.Done()
	return s.Stop()
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if _, err := io.WriteString(w, s.cfg.Greeting); err != nil {
		s.log.Debug("Failed to write greeting: %v", err)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = io.WriteString(w, "ok\n")
}

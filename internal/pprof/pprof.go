// Package pprof exposes runtime profiles of a running server on a separate
// debug listener and optionally records a CPU profile for the process
// lifetime.
package pprof

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	netpprof "net/http/pprof"
	"os"
	"path/filepath"
	"runtime/pprof"
	"sync"
	"time"

	"github.com/codefionn/ronkey/internal/logger"
	"github.com/julienschmidt/httprouter"
)

// Config selects which profiling outputs are enabled. The zero value
// disables profiling.
type Config struct {
	HTTPAddr   string // debug listener, e.g. "127.0.0.1:6060"
	CPUProfile string // file receiving a CPU profile until Stop
}

// Enabled reports whether any output is configured
func (c Config) Enabled() bool {
	return c.HTTPAddr != "" || c.CPUProfile != ""
}

// Handler owns the debug listener and the CPU profile file
type Handler struct {
	config Config
	log    *logger.Logger

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener
	cpuFile  *os.File
	stopped  bool
}

// NewHandler creates a handler for config
func NewHandler(config Config, log *logger.Logger) *Handler {
	if log == nil {
		log = logger.Global().WithPrefix("pprof")
	}
	return &Handler{config: config, log: log}
}

// Router returns the routes served under /debug/pprof/
func Router() *httprouter.Router {
	router := httprouter.New()
	router.HandlerFunc(http.MethodGet, "/debug/pprof/", netpprof.Index)
	router.HandlerFunc(http.MethodGet, "/debug/pprof/cmdline", netpprof.Cmdline)
	router.HandlerFunc(http.MethodGet, "/debug/pprof/profile", netpprof.Profile)
	router.HandlerFunc(http.MethodGet, "/debug/pprof/symbol", netpprof.Symbol)
	router.HandlerFunc(http.MethodGet, "/debug/pprof/trace", netpprof.Trace)
	for _, name := range []string{"goroutine", "heap", "allocs", "block", "mutex", "threadcreate"} {
		router.Handler(http.MethodGet, "/debug/pprof/"+name, netpprof.Handler(name))
	}
	return router
}

// Start begins CPU profiling and serves the debug routes as configured
func (h *Handler) Start() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.config.CPUProfile != "" {
		if err := os.MkdirAll(filepath.Dir(h.config.CPUProfile), 0755); err != nil {
			return fmt.Errorf("failed to create directory for CPU profile: %w", err)
		}
		f, err := os.Create(h.config.CPUProfile)
		if err != nil {
			return fmt.Errorf("failed to create CPU profile file: %w", err)
		}
		if err := pprof.StartCPUProfile(f); err != nil {
			f.Close()
			return fmt.Errorf("failed to start CPU profiling: %w", err)
		}
		h.cpuFile = f
		h.log.Info("Writing CPU profile to %s", h.config.CPUProfile)
	}

	if h.config.HTTPAddr != "" {
		ln, err := net.Listen("tcp", h.config.HTTPAddr)
		if err != nil {
			h.stopCPU()
			return fmt.Errorf("failed to bind pprof listener: %w", err)
		}
		h.listener = ln
		h.server = &http.Server{
			Handler:           Router(),
			ReadHeaderTimeout: 10 * time.Second,
		}

		go func() {
			h.log.Info("Serving profiles on http://%s/debug/pprof/", ln.Addr())
			if err := h.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				h.log.Error("pprof server error: %v", err)
			}
		}()
	}

	return nil
}

// Addr returns the debug listener address, or nil if none is serving
func (h *Handler) Addr() net.Addr {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.listener == nil {
		return nil
	}
	return h.listener.Addr()
}

// Stop flushes the CPU profile and closes the debug listener
func (h *Handler) Stop() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.stopped {
		return nil
	}
	h.stopped = true

	var errs []error
	if err := h.stopCPU(); err != nil {
		errs = append(errs, err)
	}

	if h.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := h.server.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to shutdown pprof server: %w", err))
		}
		h.server = nil
		h.listener = nil
	}

	return errors.Join(errs...)
}

func (h *Handler) stopCPU() error {
	if h.cpuFile == nil {
		return nil
	}
	pprof.StopCPUProfile()
	err := h.cpuFile.Close()
	h.cpuFile = nil
	if err != nil {
		return fmt.Errorf("failed to close CPU profile: %w", err)
	}
	return nil
}

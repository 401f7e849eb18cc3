package metrics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/marmos91/cascview/internal/logger"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// DefaultPort is the port the server listens on when none is configured.
const DefaultPort = 9464

// Progress is the state of the running resolution pass, served as JSON at
// GET /progress.
type Progress struct {
	Running bool `json:"running"`
	Percent int  `json:"percent"`
}

// Server exposes the Prometheus registry and the progress of the running
// pass over HTTP while a command runs.
//
// Endpoints:
//   - GET /metrics: Prometheus text format (503 when collection is disabled)
//   - GET /progress: Progress as JSON
//
// Thread Safety:
// SetProgress may be called from the pass's progress callback while
// requests are served.
type Server struct {
	server *http.Server
	port   int

	mu       sync.Mutex
	progress Progress

	stopOnce sync.Once
}

// ServerConfig configures the metrics HTTP server.
type ServerConfig struct {
	// Port to listen on. Zero uses DefaultPort.
	Port int
}

// NewServer creates a stopped server. Call Start to serve.
func NewServer(config ServerConfig) *Server {
	if config.Port <= 0 {
		config.Port = DefaultPort
	}

	s := &Server{port: config.Port}

	mux := http.NewServeMux()
	mux.Handle("/metrics", metricsHandler())
	mux.HandleFunc("/progress", s.serveProgress)

	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", config.Port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      10 * time.Second,
	}
	return s
}

func metricsHandler() http.Handler {
	if registry := GetRegistry(); registry != nil {
		return promhttp.HandlerFor(registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "metrics collection is disabled", http.StatusServiceUnavailable)
	})
}

func (s *Server) serveProgress(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(s.Progress())
}

// SetProgress records the percentage reached by the running pass.
func (s *Server) SetProgress(percent int, running bool) {
	s.mu.Lock()
	s.progress = Progress{Running: running, Percent: percent}
	s.mu.Unlock()
}

// Progress returns the last recorded progress.
func (s *Server) Progress() Progress {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.progress
}

// Start binds the port and serves until ctx is cancelled.
//
// Returns:
//   - error: The bind failed, or the server stopped with an error
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return fmt.Errorf("metrics server: %w", err)
	}
	logger.Debug("Metrics server listening on port %d", s.port)

	errChan := make(chan error, 1)
	go func() {
		errChan <- s.server.Serve(ln)
	}()

	select {
	case <-ctx.Done():
		// ctx is already cancelled; give in-flight scrapes their own deadline
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.Stop(shutdownCtx)
	case err := <-errChan:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("metrics server failed: %w", err)
	}
}

// Stop shuts the server down. Only the first call has an effect.
func (s *Server) Stop(ctx context.Context) error {
	var err error
	s.stopOnce.Do(func() {
		if shutdownErr := s.server.Shutdown(ctx); shutdownErr != nil {
			err = fmt.Errorf("metrics server shutdown: %w", shutdownErr)
		}
	})
	return err
}

// Handler returns the server's request multiplexer.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Port returns the configured TCP port.
func (s *Server) Port() int {
	return s.port
}

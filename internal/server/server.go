// Package server runs the HTTP API with graceful shutdown.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/rootsense/rootsense/internal/config"
)

const maxRequestBody = 64 << 10

type Server struct {
	httpServer *http.Server
	httpLn     net.Listener
	logger     *slog.Logger
}

// New binds the listener immediately so callers learn about address
// problems before Run.
func New(cfg config.ServerConfig, handler http.Handler, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if cfg.APIKey == "" && !isLoopbackListenAddr(cfg.Addr) {
		return nil, fmt.Errorf("refusing to listen on %q without server.api_key (use 127.0.0.1/localhost or set a key)", cfg.Addr)
	}
	ln, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", cfg.Addr, err)
	}
	return &Server{
		httpServer: &http.Server{
			Handler:           withRequestBodyLimit(handler, maxRequestBody),
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       cfg.ReadTimeoutDuration(),
			WriteTimeout:      cfg.WriteTimeoutDuration(),
		},
		httpLn: ln,
		logger: logger,
	}, nil
}

// Addr is the bound address, useful when the configured port was 0.
func (s *Server) Addr() string { return s.httpLn.Addr().String() }

// Run serves until ctx ends, then shuts down within 10 seconds.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.Serve(s.httpLn); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	s.logger.Info("http server listening", "addr", s.Addr())

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return fmt.Errorf("server: %w", err)
	}
}

func (s *Server) Close() error { return s.httpServer.Close() }

func withRequestBodyLimit(next http.Handler, maxBytes int64) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Body != nil {
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
		}
		next.ServeHTTP(w, r)
	})
}

func isLoopbackListenAddr(addr string) bool {
	a := strings.TrimSpace(addr)
	// ":8080" binds on all interfaces.
	if a == "" || strings.HasPrefix(a, ":") {
		return false
	}
	host, _, err := net.SplitHostPort(a)
	if err != nil {
		host = a
	}
	host = strings.TrimSpace(host)
	if strings.EqualFold(host, "localhost") {
		return true
	}
	if ip := net.ParseIP(host); ip != nil {
		return ip.IsLoopback()
	}
	return false
}

// Package server exposes a small status surface while a crawl runs.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/samvad-hq/samvad-archive-crawler/internal/crawler"
	"github.com/samvad-hq/samvad-archive-crawler/internal/logger"
)

// ProgressSource reports live crawl counters.
type ProgressSource interface {
	Progress() crawler.Summary
}

// Server serves /healthz, /metrics and /progress.
type Server struct {
	router   chi.Router
	progress ProgressSource
	log      logger.Logger

	httpSrv  *http.Server
	listener net.Listener
	done     chan struct{}
}

// New builds the router. metrics may be nil, in which case /metrics is not mounted.
func New(progress ProgressSource, metrics http.Handler, log logger.Logger) *Server {
	s := &Server{progress: progress, log: logger.Ensure(log)}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(10 * time.Second))

	r.Get("/healthz", s.healthz)
	r.Get("/progress", s.progressHandler)
	if metrics != nil {
		r.Method(http.MethodGet, "/metrics", metrics)
	}

	s.router = r
	return s
}

// Handler returns the router for use with http.Server or httptest.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start listens on addr and serves in the background.
func (s *Server) Start(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	s.listener = ln
	s.httpSrv = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.done = make(chan struct{})

	go func() {
		defer close(s.done)
		if err := s.httpSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.ErrorObj("status server stopped", "server_error", err.Error())
		}
	}()
	s.log.InfoObj("status server listening", "server_addr", ln.Addr().String())
	return nil
}

// Addr returns the bound address once started.
func (s *Server) Addr() string {
	if s == nil || s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Shutdown stops the server, waiting for in-flight requests until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	if s == nil || s.httpSrv == nil {
		return nil
	}
	err := s.httpSrv.Shutdown(ctx)
	<-s.done
	return err
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) progressHandler(w http.ResponseWriter, _ *http.Request) {
	if s.progress == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "no crawl running"})
		return
	}
	writeJSON(w, http.StatusOK, s.progress.Progress())
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// SPDX-License-Identifier: MIT

// Package server is the receiver backend run by `pulse serve`. It accepts
// uploads on /frequency-data and hands out WAV clips on /audio for the
// fetcher to play.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"pulse/internal/config"
	applog "pulse/internal/log"
	"pulse/internal/observe"
)

// Server wires the backend routes together.
type Server struct {
	cfg     config.ServerConfig
	metrics *observe.Metrics
	clips   *ClipLibrary
	archive *Archive
	mux     *http.ServeMux
}

// defaultMaxBodyBytes applies when the configured limit is not positive.
const defaultMaxBodyBytes = 8 << 20

// New creates the clip library and, when configured, the upload archive.
func New(cfg config.ServerConfig, metrics *observe.Metrics) (*Server, error) {
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = defaultMaxBodyBytes
	}
	clips, err := NewClipLibrary(cfg.ClipDir, cfg.CacheSize)
	if err != nil {
		return nil, err
	}
	s := &Server{
		cfg:     cfg,
		metrics: metrics,
		clips:   clips,
		mux:     http.NewServeMux(),
	}
	if cfg.ArchiveDir != "" {
		if s.archive, err = NewArchive(cfg.ArchiveDir); err != nil {
			return nil, err
		}
	}
	s.routes()
	return s, nil
}

func (s *Server) routes() {
	s.mux.HandleFunc("POST /frequency-data", s.handleFrequencyData)
	s.mux.HandleFunc("OPTIONS /frequency-data", s.handlePreflight)
	s.mux.HandleFunc("GET /audio", s.handleAudio)
	s.mux.HandleFunc("POST /audio", s.handleAudio)
	s.mux.HandleFunc("GET /audio-array", s.handleAudioArray)
	s.mux.HandleFunc("GET /healthz", s.handleHealthz)
	s.mux.HandleFunc("GET /readyz", s.handleReadyz)
	s.mux.Handle("GET /metrics", observe.Handler())
}

// Handler returns the routes wrapped in the CORS middleware.
func (s *Server) Handler() http.Handler {
	return withCORS(s.mux)
}

// Run serves on cfg.Address until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Address,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		applog.Infof("Server: Listening on %s (clips: %s)", s.cfg.Address, s.cfg.ClipDir)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		applog.Info("Server: Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// withCORS allows any origin, matching a browser visualizer served from
// elsewhere.
func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Headers", "Content-Type, Content-Encoding, Authorization")
		h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handlePreflight(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// writeJSON encodes v with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		applog.Warnf("Server: Writing response: %v", err)
	}
}

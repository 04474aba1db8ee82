// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package gatewayhttp

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/inera-health/aggregator-gateway/signaling"
)

// Server wraps the gateway's HTTP server: journals, stream, and
// callback endpoints from this package, plus the signaling endpoints.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// ServerConfig configures a new Server.
type ServerConfig struct {
	Addr      string
	Handler   *Handler
	Signaling *signaling.Handler
	Logger    *slog.Logger
}

// NewServer builds the gateway's ServeMux and wraps it in an
// http.Server tuned for long-lived streaming connections.
func NewServer(config ServerConfig) (*Server, error) {
	if config.Handler == nil {
		return nil, fmt.Errorf("handler is required")
	}
	if config.Signaling == nil {
		return nil, fmt.Errorf("signaling handler is required")
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /aggregate/journals", config.Handler.HandleJournals)
	mux.HandleFunc("GET /aggregate/stream", config.Handler.HandleStream)
	mux.HandleFunc("POST /aggregate/callback", config.Handler.HandleCallback)
	mux.HandleFunc("POST /aggregate/webrtc/create", config.Signaling.HandleCreate)
	mux.HandleFunc("GET /aggregate/webrtc/{id}/stream", config.Signaling.HandleStream)
	mux.HandleFunc("POST /aggregate/webrtc/{id}/signal", config.Signaling.HandleSignal)
	mux.HandleFunc("GET /health", config.Handler.HandleHealth)

	return &Server{
		httpServer: &http.Server{
			Addr:         config.Addr,
			Handler:      mux,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 5 * time.Minute, // Long timeout for streaming.
		},
		logger: logger,
	}, nil
}

// Start binds the listener and begins serving in the background.
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.httpServer.Addr, err)
	}

	s.logger.Info("gateway listening", "addr", listener.Addr().String())
	go func() {
		if err := s.httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
			s.logger.Error("server exited", "error", err)
		}
	}()
	return nil
}

// Shutdown gracefully stops the server, waiting for in-flight requests
// (including open SSE streams) to finish or for ctx to expire.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// internal/server/server.go
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/den4ikerror/ai-crypto-indicator-bot/pkg/logger"
)

// Server exposes the liveness endpoint. The bot itself talks to Telegram by
// polling, so this is the only inbound HTTP surface.
type Server struct {
	server *http.Server
	logger *logger.Logger
}

func NewServer(port string, logger *logger.Logger) *Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	httpServer := &http.Server{
		Addr:         ":" + port,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return &Server{
		server: httpServer,
		logger: logger,
	}
}

func (s *Server) Start() error {
	s.logger.Infow("starting HTTP server", "addr", s.server.Addr)
	return s.server.ListenAndServe()
}

func (s *Server) Stop(ctx context.Context) error {
	s.logger.Infow("stopping HTTP server")
	return s.server.Shutdown(ctx)
}

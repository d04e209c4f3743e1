// Package server ties the websocket endpoints, the static controller UI and
// the read-only status surface into one HTTP server.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/padlink-dev/padlink/config"
	"github.com/padlink-dev/padlink/relay"
	"github.com/padlink-dev/padlink/websocket"
)

type Server struct {
	httpServer *http.Server
}

// statusResponse is the thin observability accessor over the registry and
// session store sizes. No mutation happens on this path.
type statusResponse struct {
	Connections int `json:"connections"`
	Sessions    int `json:"sessions"`
}

func New(cfg *config.ServerConfig, handler *websocket.Handler, router *relay.Router) *Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", handler.HandleController)
	mux.HandleFunc("/ws/engine", handler.HandleEngine)

	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		connections, sessions := router.Counts()
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(statusResponse{
			Connections: connections,
			Sessions:    sessions,
		})
	})

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	// The controller page is served at the root, like the UI the relay
	// replaces.
	mux.Handle("/", http.FileServer(http.Dir(cfg.StaticDir)))

	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      mux,
			ReadTimeout:  time.Duration(cfg.ReadTimeout) * time.Second,
			WriteTimeout: time.Duration(cfg.WriteTimeout) * time.Second,
		},
	}
}

// Start blocks serving until the server is shut down.
func (s *Server) Start() {
	log.Info().Str("addr", s.httpServer.Addr).Msg("HTTP server listening")
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("HTTP server failed")
	}
}

// Shutdown drains the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

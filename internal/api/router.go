// Package api serves the engine's read model to a local presentation layer.
package api

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"

	"alertsync/internal/alerts"
)

// Engine is the part of the orchestrator the API exposes.
type Engine interface {
	Current() alerts.Snapshot
	Status() alerts.Status
	Refresh(ctx context.Context, trigger alerts.Trigger) (bool, error)
	Subscribe() (<-chan alerts.Snapshot, func())
}

// Server holds the dependencies of the HTTP handlers.
type Server struct {
	engine   Engine
	sessions alerts.SessionStore
	history  alerts.HistoryStore
	logger   alerts.Logger
}

func NewServer(engine Engine, sessions alerts.SessionStore, history alerts.HistoryStore, logger alerts.Logger) *Server {
	return &Server{
		engine:   engine,
		sessions: sessions,
		history:  history,
		logger:   logger,
	}
}

// Router returns the routes of the local API.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	r.HandleFunc("/alerts", s.handleAlerts).Methods(http.MethodGet)
	r.HandleFunc("/alerts/stream", s.handleStream).Methods(http.MethodGet)
	r.HandleFunc("/refresh", s.handleRefresh).Methods(http.MethodPost)
	r.HandleFunc("/history", s.handleHistory).Methods(http.MethodGet)
	r.HandleFunc("/settings/{userId}", s.handleGetSettings).Methods(http.MethodGet)
	r.HandleFunc("/settings/{userId}", s.handlePutSettings).Methods(http.MethodPut)
	return r
}

package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"alertsync/internal/alerts"
)

type statusResponse struct {
	State     alerts.State `json:"state"`
	LastError string       `json:"last_error,omitempty"`
	LastSync  *time.Time   `json:"last_sync,omitempty"`
	Alerts    int          `json:"alerts"`
	LoggedOut bool         `json:"logged_out"`
	LoggedIn  bool         `json:"logged_in"`
}

type refreshResponse struct {
	Ran   bool   `json:"ran"`
	Error string `json:"error,omitempty"`
}

type errorResponse struct {
	Detail string `json:"detail"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st := s.engine.Status()
	resp := statusResponse{
		State:     st.State,
		Alerts:    st.Alerts,
		LoggedOut: st.LoggedOut,
	}
	if st.LastError != nil {
		resp.LastError = st.LastError.Error()
	}
	if !st.LastSync.IsZero() {
		resp.LastSync = &st.LastSync
	}

	sess, err := s.sessions.Get()
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "reading session failed")
		s.logger.Error("reading session", "error", err)
		return
	}
	resp.LoggedIn = sess != nil

	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	if !s.loggedIn(w) {
		return
	}
	snap := s.engine.Current()
	if snap.LoggedOut {
		s.writeError(w, http.StatusUnauthorized, "logged out")
		return
	}
	if snap.Alerts == nil {
		snap.Alerts = []alerts.Alert{}
	}
	s.writeJSON(w, http.StatusOK, snap)
}

// handleStream sends every published snapshot as a server-sent event until
// the client disconnects.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	snapshots, unsubscribe := s.engine.Subscribe()
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case snap, ok := <-snapshots:
			if !ok {
				return
			}
			if snap.Alerts == nil {
				snap.Alerts = []alerts.Alert{}
			}
			data, err := json.Marshal(snap)
			if err != nil {
				s.logger.Error("encoding snapshot", "error", err)
				return
			}
			if _, err := fmt.Fprintf(w, "event: snapshot\ndata: %s\n\n", data); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	ran, err := s.engine.Refresh(r.Context(), alerts.TriggerManual)
	if err != nil {
		s.writeJSON(w, refreshStatus(err), refreshResponse{Ran: ran, Error: err.Error()})
		return
	}
	s.writeJSON(w, http.StatusOK, refreshResponse{Ran: ran})
}

// refreshStatus maps a refresh failure to an HTTP status.
func refreshStatus(err error) int {
	switch {
	case errors.Is(err, alerts.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, alerts.ErrLocationUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, alerts.ErrNetwork), errors.Is(err, alerts.ErrServer), errors.Is(err, alerts.ErrDecode):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			s.writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	records, err := s.history.ListHistory(r.Context(), limit)
	if err != nil {
		s.logger.Error("listing history", "error", err)
		s.writeError(w, http.StatusInternalServerError, "listing history failed")
		return
	}
	if records == nil {
		records = []*alerts.AlertHistoryRecord{}
	}
	s.writeJSON(w, http.StatusOK, records)
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["userId"]

	settings, err := s.history.GetUserSettings(r.Context(), userID)
	if err != nil {
		s.logger.Error("reading settings", "user_id", userID, "error", err)
		s.writeError(w, http.StatusInternalServerError, "reading settings failed")
		return
	}
	if settings == nil {
		s.writeError(w, http.StatusNotFound, "no settings for user")
		return
	}
	s.writeJSON(w, http.StatusOK, settings)
}

func (s *Server) handlePutSettings(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["userId"]

	var change alerts.SettingsChange
	if err := json.NewDecoder(r.Body).Decode(&change); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	current, err := s.history.GetUserSettings(r.Context(), userID)
	if err != nil {
		s.logger.Error("reading settings", "user_id", userID, "error", err)
		s.writeError(w, http.StatusInternalServerError, "reading settings failed")
		return
	}
	settings, err := change.Apply(userID, current)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := s.history.UpsertUserSettings(r.Context(), settings); err != nil {
		if errors.Is(err, alerts.ErrValidation) {
			s.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.logger.Error("saving settings", "user_id", userID, "error", err)
		s.writeError(w, http.StatusInternalServerError, "saving settings failed")
		return
	}
	s.writeJSON(w, http.StatusOK, settings)
}

// loggedIn writes 401 and returns false when there is no session.
func (s *Server) loggedIn(w http.ResponseWriter) bool {
	sess, err := s.sessions.Get()
	if err != nil {
		s.logger.Error("reading session", "error", err)
		s.writeError(w, http.StatusInternalServerError, "reading session failed")
		return false
	}
	if sess == nil {
		s.writeError(w, http.StatusUnauthorized, "not logged in")
		return false
	}
	return true
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("writing response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, detail string) {
	s.writeJSON(w, status, errorResponse{Detail: detail})
}

package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/mux"

	"alertsync/internal/alerts"
)

// Route names used by FakeRemote.Calls.
const (
	RouteLogin       = "POST /auth/login"
	RouteRegister    = "POST /auth/register"
	RouteRefresh     = "POST /auth/refresh-token"
	RouteListAlerts  = "GET /alerts"
	RouteCreateAlert = "POST /alerts"
	RouteGetPrefs    = "GET /users/{id}/preferences"
	RoutePutPrefs    = "PUT /users/{id}/preferences"
	RouteResources   = "GET /resources/nearby"
)

type injectedFailure struct {
	status int
	body   string
}

// FakeRemote is an in-process alert service. It issues opaque tokens,
// enforces bearer auth on protected routes and counts calls per route.
// Exported fields may be changed between requests under Lock/Unlock.
type FakeRemote struct {
	server *httptest.Server

	mu sync.Mutex

	// Users maps email to password for login.
	Users map[string]string
	// UserIDs maps email to the user id returned on login.
	UserIDs map[string]string
	// Alerts is served by GET /alerts, in order.
	Alerts []alerts.Alert
	// Preferences by user id.
	Preferences map[string]json.RawMessage
	// Resources is served by GET /resources/nearby.
	Resources json.RawMessage
	// RejectAllTokens makes every protected route answer 401.
	RejectAllTokens bool
	// RejectRefresh makes the refresh route answer 401.
	RejectRefresh bool
	// ExpiresIn is returned with every token pair.
	ExpiresIn int64
	// RefreshDelay holds refresh responses to widen race windows.
	RefreshDelay time.Duration

	accessToken  string
	refreshToken string
	userID       string
	issued       int
	calls        map[string]int
	lastQuery    map[string]string
	failures     map[string][]injectedFailure
}

// NewFakeRemote starts a FakeRemote that is shut down with the test.
func NewFakeRemote(t *testing.T) *FakeRemote {
	t.Helper()

	f := &FakeRemote{
		Users:       map[string]string{},
		UserIDs:     map[string]string{},
		Preferences: map[string]json.RawMessage{},
		Resources:   json.RawMessage("[]"),
		ExpiresIn:   3600,
		calls:       map[string]int{},
		lastQuery:   map[string]string{},
		failures:    map[string][]injectedFailure{},
	}

	r := mux.NewRouter()
	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/auth/login", f.count(RouteLogin, f.handleLogin)).Methods(http.MethodPost)
	api.HandleFunc("/auth/register", f.count(RouteRegister, f.handleRegister)).Methods(http.MethodPost)
	api.HandleFunc("/auth/refresh-token", f.count(RouteRefresh, f.handleRefresh)).Methods(http.MethodPost)
	api.HandleFunc("/alerts", f.count(RouteListAlerts, f.protected(f.handleListAlerts))).Methods(http.MethodGet)
	api.HandleFunc("/alerts", f.count(RouteCreateAlert, f.protected(f.handleCreateAlert))).Methods(http.MethodPost)
	api.HandleFunc("/users/{id}/preferences", f.count(RouteGetPrefs, f.protected(f.handleGetPrefs))).Methods(http.MethodGet)
	api.HandleFunc("/users/{id}/preferences", f.count(RoutePutPrefs, f.protected(f.handlePutPrefs))).Methods(http.MethodPut)
	api.HandleFunc("/resources/nearby", f.count(RouteResources, f.protected(f.handleResources))).Methods(http.MethodGet)

	f.server = httptest.NewServer(r)
	t.Cleanup(f.server.Close)
	return f
}

// URL is the API base URL to configure clients with.
func (f *FakeRemote) URL() string { return f.server.URL + "/api" }

func (f *FakeRemote) Lock()   { f.mu.Lock() }
func (f *FakeRemote) Unlock() { f.mu.Unlock() }

// AddUser registers credentials that login accepts.
func (f *FakeRemote) AddUser(email, password, userID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Users[email] = password
	f.UserIDs[email] = userID
}

// SetAlerts replaces the alerts served by GET /alerts.
func (f *FakeRemote) SetAlerts(list ...alerts.Alert) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Alerts = list
}

// IssueTokens makes a fresh token pair current, as if the user had logged
// in, and returns it.
func (f *FakeRemote) IssueTokens(userID string) *alerts.Session {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.issueLocked(userID)
	return &alerts.Session{UserID: userID, AccessToken: f.accessToken, RefreshToken: f.refreshToken}
}

// RevokeAccessToken invalidates the current access token while keeping the
// refresh token valid.
func (f *FakeRemote) RevokeAccessToken() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.accessToken = fmt.Sprintf("revoked-%d", f.issued)
}

// AccessToken returns the currently valid access token.
func (f *FakeRemote) AccessToken() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.accessToken
}

// FailNext makes the next call to route answer status with body.
func (f *FakeRemote) FailNext(route string, status int, body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[route] = append(f.failures[route], injectedFailure{status: status, body: body})
}

// Calls returns how many requests route has received.
func (f *FakeRemote) Calls(route string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[route]
}

// LastQuery returns the raw query string of the last request to route.
func (f *FakeRemote) LastQuery(route string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastQuery[route]
}

func (f *FakeRemote) issueLocked(userID string) map[string]any {
	f.issued++
	f.accessToken = fmt.Sprintf("access-%d", f.issued)
	f.refreshToken = fmt.Sprintf("refresh-%d", f.issued)
	f.userID = userID
	return map[string]any{
		"user_id":       userID,
		"access_token":  f.accessToken,
		"refresh_token": f.refreshToken,
		"token_type":    "bearer",
		"expires_in":    f.ExpiresIn,
	}
}

func (f *FakeRemote) count(route string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.calls[route]++
		f.lastQuery[route] = r.URL.RawQuery
		var fail *injectedFailure
		if queued := f.failures[route]; len(queued) > 0 {
			fail = &queued[0]
			f.failures[route] = queued[1:]
		}
		f.mu.Unlock()

		if fail != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(fail.status)
			fmt.Fprint(w, fail.body)
			return
		}
		next(w, r)
	}
}

func (f *FakeRemote) protected(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		f.mu.Lock()
		ok := !f.RejectAllTokens && token != "" && token == f.accessToken
		f.mu.Unlock()
		if !ok {
			writeDetail(w, http.StatusUnauthorized, "Could not validate credentials")
			return
		}
		next(w, r)
	}
}

func (f *FakeRemote) handleLogin(w http.ResponseWriter, r *http.Request) {
	email := r.URL.Query().Get("email")
	password := r.URL.Query().Get("password")

	f.mu.Lock()
	want, ok := f.Users[email]
	if !ok || want != password {
		f.mu.Unlock()
		writeDetail(w, http.StatusUnauthorized, "Incorrect email or password")
		return
	}
	resp := f.issueLocked(f.UserIDs[email])
	f.mu.Unlock()

	writeJSON(w, http.StatusOK, resp)
}

func (f *FakeRemote) handleRegister(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email       string `json:"email"`
		Password    string `json:"password"`
		FullName    string `json:"full_name"`
		PhoneNumber string `json:"phone_number"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "invalid body")
		return
	}

	f.mu.Lock()
	if _, exists := f.Users[body.Email]; exists {
		f.mu.Unlock()
		writeDetail(w, http.StatusBadRequest, "Email already registered")
		return
	}
	userID := fmt.Sprintf("user-%d", len(f.Users)+1)
	f.Users[body.Email] = body.Password
	f.UserIDs[body.Email] = userID
	resp := f.issueLocked(userID)
	f.mu.Unlock()

	writeJSON(w, http.StatusOK, resp)
}

func (f *FakeRemote) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var body struct {
		RefreshToken string `json:"refreshToken"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "invalid body")
		return
	}

	f.mu.Lock()
	delay := f.RefreshDelay
	f.mu.Unlock()
	if delay > 0 {
		time.Sleep(delay)
	}

	f.mu.Lock()
	if f.RejectRefresh || body.RefreshToken == "" || body.RefreshToken != f.refreshToken {
		f.mu.Unlock()
		writeDetail(w, http.StatusUnauthorized, "Invalid refresh token")
		return
	}
	resp := f.issueLocked(f.userID)
	f.mu.Unlock()

	writeJSON(w, http.StatusOK, resp)
}

func (f *FakeRemote) handleListAlerts(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	list := append([]alerts.Alert{}, f.Alerts...)
	f.mu.Unlock()

	writeJSON(w, http.StatusOK, list)
}

func (f *FakeRemote) handleCreateAlert(w http.ResponseWriter, r *http.Request) {
	var body map[string]any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "invalid body")
		return
	}

	f.mu.Lock()
	body["id"] = fmt.Sprintf("alert-%d", len(f.Alerts)+1)
	body["timestamp"] = "2025-04-21T10:15:30.123456"
	body["verification_status"] = string(alerts.VerificationPending)
	body["is_active"] = true
	body["user_id"] = f.userID
	f.mu.Unlock()

	writeJSON(w, http.StatusOK, body)
}

func (f *FakeRemote) handleGetPrefs(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	f.mu.Lock()
	prefs, ok := f.Preferences[id]
	f.mu.Unlock()
	if !ok {
		writeDetail(w, http.StatusNotFound, "Preferences not found")
		return
	}
	writeJSON(w, http.StatusOK, prefs)
}

func (f *FakeRemote) handlePutPrefs(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var body map[string]any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "invalid body")
		return
	}
	body["user_id"] = id
	raw, _ := json.Marshal(body)

	f.mu.Lock()
	f.Preferences[id] = raw
	f.mu.Unlock()

	writeJSON(w, http.StatusOK, json.RawMessage(raw))
}

func (f *FakeRemote) handleResources(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	resources := f.Resources
	f.mu.Unlock()
	writeJSON(w, http.StatusOK, resources)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

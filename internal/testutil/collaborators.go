package testutil

import (
	"context"
	"errors"
	"sync"

	"alertsync/internal/alerts"
)

// Notification is one call recorded by RecordingNotifier.
type Notification struct {
	AlertID  string
	Priority alerts.Priority
}

// RecordingNotifier records every Notify call. Err, when set, is returned
// after recording.
type RecordingNotifier struct {
	mu    sync.Mutex
	calls []Notification
	Err   error
}

func (n *RecordingNotifier) Notify(_ context.Context, a alerts.Alert, p alerts.Priority) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, Notification{AlertID: a.ID, Priority: p})
	return n.Err
}

// Calls returns a copy of the recorded notifications.
func (n *RecordingNotifier) Calls() []Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]Notification(nil), n.calls...)
}

// StaticLocation always reports the same coordinate, or
// alerts.ErrLocationUnavailable when Unavailable is set.
type StaticLocation struct {
	mu          sync.Mutex
	loc         alerts.Location
	unavailable bool
}

func NewStaticLocation(lat, lon float64) *StaticLocation {
	return &StaticLocation{loc: alerts.Location{Latitude: lat, Longitude: lon}}
}

func (s *StaticLocation) SetUnavailable(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unavailable = v
}

func (s *StaticLocation) Current(context.Context) (alerts.Location, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.unavailable {
		return alerts.Location{}, alerts.ErrLocationUnavailable
	}
	return s.loc, nil
}

// ErrInjected is returned by FailingHistoryStore.
var ErrInjected = errors.New("injected failure")

// FailingHistoryStore wraps a HistoryStore and fails AppendHistory while
// SetFailAppends(true) is in effect.
type FailingHistoryStore struct {
	alerts.HistoryStore

	mu          sync.Mutex
	failAppends bool
}

func (f *FailingHistoryStore) SetFailAppends(v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failAppends = v
}

func (f *FailingHistoryStore) AppendHistory(ctx context.Context, list ...alerts.Alert) error {
	f.mu.Lock()
	fail := f.failAppends
	f.mu.Unlock()
	if fail {
		return ErrInjected
	}
	return f.HistoryStore.AppendHistory(ctx, list...)
}

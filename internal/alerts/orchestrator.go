package alerts

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

// DefaultRadiusMeters is the search radius used when none is configured.
const DefaultRadiusMeters = 5000

// State is the orchestrator's position in the refresh cycle.
type State string

const (
	StateIdle     State = "idle"
	StateFetching State = "fetching"
)

// Trigger identifies what started a refresh.
type Trigger string

const (
	TriggerManual   Trigger = "manual"
	TriggerPeriodic Trigger = "periodic"
)

// Snapshot is the read model published to observers: either the current
// alert set or a logged-out signal.
type Snapshot struct {
	Alerts    []Alert   `json:"alerts"`
	LoggedOut bool      `json:"logged_out"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Status describes the orchestrator for display.
type Status struct {
	State     State
	LastError error
	LastSync  time.Time
	Alerts    int
	LoggedOut bool
}

// Orchestrator owns the refresh cycle: it fetches alerts for the current
// location, selects a notification, records new alerts and republishes the
// observed set. At most one refresh runs at a time; triggers that arrive
// while one is running are dropped.
type Orchestrator struct {
	fetcher  AlertFetcher
	sessions SessionStore
	history  HistoryStore
	location LocationProvider
	notifier Notifier
	logger   Logger
	clock    Clock
	radius   float64

	inflight *semaphore.Weighted

	mu        sync.RWMutex
	state     State
	lastErr   error
	lastSync  time.Time
	observed  map[string]Alert
	current   []Alert
	loggedOut bool
	logouts   uint64 // bumped by every logout

	subMu  sync.Mutex
	nextID int
	subs   map[int]chan Snapshot
}

// NewOrchestrator creates an Orchestrator. radiusMeters <= 0 selects
// DefaultRadiusMeters.
func NewOrchestrator(fetcher AlertFetcher, sessions SessionStore, history HistoryStore, location LocationProvider, notifier Notifier, logger Logger, clock Clock, radiusMeters float64) *Orchestrator {
	if radiusMeters <= 0 {
		radiusMeters = DefaultRadiusMeters
	}
	return &Orchestrator{
		fetcher:  fetcher,
		sessions: sessions,
		history:  history,
		location: location,
		notifier: notifier,
		logger:   logger,
		clock:    clock,
		radius:   radiusMeters,
		inflight: semaphore.NewWeighted(1),
		state:    StateIdle,
		observed: map[string]Alert{},
		subs:     map[int]chan Snapshot{},
	}
}

// Refresh runs one refresh cycle. It reports false without doing anything
// if a cycle is already in flight. The returned error is also retained and
// available from Status until the next cycle completes.
func (o *Orchestrator) Refresh(ctx context.Context, trigger Trigger) (bool, error) {
	if !o.inflight.TryAcquire(1) {
		o.logger.Debug("refresh already in flight, trigger ignored", "trigger", string(trigger))
		return false, nil
	}
	defer o.inflight.Release(1)

	o.mu.Lock()
	o.state = StateFetching
	o.mu.Unlock()

	o.logger.Debug("refresh started", "trigger", string(trigger))
	err := o.cycle(ctx)

	o.mu.Lock()
	o.state = StateIdle
	o.lastErr = err
	o.mu.Unlock()

	if err != nil {
		o.logger.Warn("refresh failed", "trigger", string(trigger), "error", err)
	}
	return true, err
}

func (o *Orchestrator) cycle(ctx context.Context) error {
	// previous is only replaced by this cycle, which holds the in-flight
	// slot, or by a logout, which bumps logouts.
	o.mu.RLock()
	previous := o.observed
	epoch := o.logouts
	o.mu.RUnlock()

	loc, err := o.location.Current(ctx)
	if err != nil {
		if !errors.Is(err, ErrLocationUnavailable) {
			err = fmt.Errorf("%w: %v", ErrLocationUnavailable, err)
		}
		return err
	}

	fetched, err := o.fetcher.FetchAlerts(ctx, loc.Latitude, loc.Longitude, o.radius)
	if err != nil {
		if errors.Is(err, ErrUnauthorized) {
			if clearErr := o.forceLogout(); clearErr != nil {
				return errors.Join(err, clearErr)
			}
		}
		return fmt.Errorf("fetching alerts: %w", err)
	}

	if o.loggedOutSince(epoch) {
		o.logger.Debug("logout during refresh, fetched alerts discarded")
		return nil
	}

	sel := Select(previous, fetched)

	if sel.Notification != nil && o.notificationsEnabled(ctx) {
		n := sel.Notification
		if err := o.notifier.Notify(ctx, n.Alert, n.Priority); err != nil {
			o.logger.Warn("notification dispatch failed", "alert_id", n.Alert.ID, "error", err)
		}
	}

	if len(sel.NewAlerts) > 0 {
		if err := o.history.AppendHistory(ctx, sel.NewAlerts...); err != nil {
			return fmt.Errorf("recording alert history: %w", err)
		}
	}

	now := o.clock.Now()
	o.mu.Lock()
	if o.logouts != epoch {
		o.mu.Unlock()
		o.logger.Debug("logout during refresh, fetched alerts discarded")
		return nil
	}
	o.observed = IndexByID(fetched)
	o.current = fetched
	o.lastSync = now
	o.loggedOut = false
	o.mu.Unlock()

	o.logger.Info("alerts refreshed", "total", len(fetched), "new", len(sel.NewAlerts))
	o.publish(Snapshot{Alerts: fetched, UpdatedAt: now})
	return nil
}

func (o *Orchestrator) loggedOutSince(epoch uint64) bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.logouts != epoch
}

// notificationsEnabled consults the logged-in user's local settings.
// Users without a settings record get notifications.
func (o *Orchestrator) notificationsEnabled(ctx context.Context) bool {
	sess, err := o.sessions.Get()
	if err != nil || sess == nil || sess.UserID == "" {
		return true
	}
	settings, err := o.history.GetUserSettings(ctx, sess.UserID)
	if err != nil {
		o.logger.Warn("loading user settings", "user_id", sess.UserID, "error", err)
		return true
	}
	return settings == nil || settings.NotificationsEnabled
}

// Logout clears the session and publishes the logged-out state.
func (o *Orchestrator) Logout() error {
	return o.forceLogout()
}

func (o *Orchestrator) forceLogout() error {
	err := o.sessions.Clear()
	if err != nil {
		err = fmt.Errorf("clearing session: %w", err)
	}

	now := o.clock.Now()
	o.mu.Lock()
	o.observed = map[string]Alert{}
	o.current = nil
	o.loggedOut = true
	o.logouts++
	o.mu.Unlock()

	o.logger.Info("session cleared, re-authentication required")
	o.publish(Snapshot{LoggedOut: true, UpdatedAt: now})
	return err
}

// Current returns the latest published read model.
func (o *Orchestrator) Current() Snapshot {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return Snapshot{
		Alerts:    append([]Alert(nil), o.current...),
		LoggedOut: o.loggedOut,
		UpdatedAt: o.lastSync,
	}
}

// Status returns the current state and the last refresh error, if any.
func (o *Orchestrator) Status() Status {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return Status{
		State:     o.state,
		LastError: o.lastErr,
		LastSync:  o.lastSync,
		Alerts:    len(o.current),
		LoggedOut: o.loggedOut,
	}
}

// Subscribe returns a channel that receives the current snapshot and then
// every subsequent one. Slow receivers only see the latest snapshot.
// Call the returned function to unsubscribe.
func (o *Orchestrator) Subscribe() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 1)

	o.subMu.Lock()
	ch <- o.Current()
	id := o.nextID
	o.nextID++
	o.subs[id] = ch
	o.subMu.Unlock()

	return ch, func() {
		o.subMu.Lock()
		defer o.subMu.Unlock()
		if _, ok := o.subs[id]; ok {
			delete(o.subs, id)
			close(ch)
		}
	}
}

func (o *Orchestrator) publish(snap Snapshot) {
	o.subMu.Lock()
	defer o.subMu.Unlock()
	for _, ch := range o.subs {
		s := snap
		s.Alerts = append([]Alert(nil), snap.Alerts...)
		// Drop a stale unread snapshot so the send never blocks.
		select {
		case <-ch:
		default:
		}
		ch <- s
	}
}

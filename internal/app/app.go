package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"alertsync/internal/alerts"
	"alertsync/internal/api"
	"alertsync/internal/archive"
	"alertsync/internal/config"
	"alertsync/internal/database"
	"alertsync/internal/encryption"
	"alertsync/internal/location"
	"alertsync/internal/notify"
	"alertsync/internal/remote"
	"alertsync/internal/scheduler"
	"alertsync/internal/session"
)

// ErrNotLoggedIn is returned by operations that need a session when there is none.
var ErrNotLoggedIn = fmt.Errorf("%w: not logged in", alerts.ErrUnauthorized)

// Options tunes how an AlertApp is constructed.
type Options struct {
	// Verbose sends Info records to stderr as well as the log file.
	Verbose bool
	// HTTPClient overrides the client used for the remote service.
	HTTPClient *http.Client
	// Clock overrides the real clock.
	Clock alerts.Clock
}

// AlertApp is the application layer between the CLI and the engine.
// It constructs all dependencies from config, exposes the high-level
// operations and archives the history database on Close.
type AlertApp struct {
	cfg      *config.Config
	clock    alerts.Clock
	db       *database.SQLiteDatabase
	sessions alerts.SessionStore
	remote   *remote.Client
	location alerts.LocationProvider
	engine   *alerts.Orchestrator
	archives []archive.Archive
	logger   alerts.Logger
	run      *Run
	logFile  *os.File
}

// NewAlertApp creates a fully wired AlertApp from the given config.
// command identifies the CLI command being run (e.g. "watch", "login").
// The caller must call Close when done.
func NewAlertApp(ctx context.Context, cfg *config.Config, command string, opts Options) (*AlertApp, error) {
	clock := opts.Clock
	if clock == nil {
		clock = alerts.RealClock{}
	}
	startedAt := clock.Now()

	stderrLevel := slog.LevelWarn
	if opts.Verbose {
		stderrLevel = slog.LevelInfo
	}
	runID := startedAt.UTC().Format("20060102T150405Z")
	sl, logFile, err := newLogger(cfg.LogDir, runID, stderrLevel)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	logger := &slogAdapter{l: sl.With("command", command)}

	a := &AlertApp{cfg: cfg, clock: clock, logger: logger, logFile: logFile}
	if err := a.wire(ctx, opts); err != nil {
		a.closeResources()
		return nil, err
	}

	startSeq, err := a.db.MaxHistorySeq(ctx)
	if err != nil {
		a.closeResources()
		return nil, fmt.Errorf("checking local history version: %w", err)
	}
	if err := a.checkArchiveVersions(ctx, startSeq); err != nil {
		a.closeResources()
		return nil, err
	}

	a.run = NewRun(command, startSeq, startedAt)
	logger.Debug("run started", "history_seq", startSeq)
	return a, nil
}

func (a *AlertApp) wire(ctx context.Context, opts Options) error {
	cfg := a.cfg

	for _, ac := range cfg.Archives {
		arc, err := archive.NewArchiveFromConfig(ctx, ac)
		if err != nil {
			return fmt.Errorf("creating archive %q: %w", ac.Name, err)
		}
		a.archives = append(a.archives, arc)
	}

	var sealer session.Sealer
	if cfg.Session.Type == "file" || cfg.Session.Type == "" {
		s, err := encryption.NewSealerFromConfig(cfg.Session)
		if err != nil {
			return fmt.Errorf("creating session sealer: %w", err)
		}
		sealer = s
	}
	sessions, err := session.NewStoreFromConfig(cfg.Session, sealer)
	if err != nil {
		return fmt.Errorf("creating session store: %w", err)
	}
	a.sessions = sessions

	db, err := database.NewDatabaseFromConfig(cfg.Database, cfg.DeviceID, a.clock)
	if err != nil {
		return fmt.Errorf("creating database: %w", err)
	}
	a.db = db

	if err := db.CheckMigrations(); err != nil {
		return fmt.Errorf("database schema out of date: %w", err)
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	client, err := remote.NewClient(cfg.Server, httpClient, sessions, a.clock, a.logger)
	if err != nil {
		return fmt.Errorf("creating remote client: %w", err)
	}
	a.remote = client

	loc, err := location.NewProviderFromConfig(cfg.Location)
	if err != nil {
		return fmt.Errorf("creating location provider: %w", err)
	}
	a.location = loc

	notifier, err := notify.NewNotifierFromConfig(cfg.Notifier, a.logger)
	if err != nil {
		return fmt.Errorf("creating notifier: %w", err)
	}

	a.engine = alerts.NewOrchestrator(client.Alerts, sessions, db, loc, notifier, a.logger, a.clock, cfg.Sync.RadiusMeters)
	return nil
}

// checkArchiveVersions refuses to run when an archive holds history newer
// than the local database.
func (a *AlertApp) checkArchiveVersions(ctx context.Context, localSeq int64) error {
	for _, arc := range a.archives {
		remoteSeq, err := arc.SnapshotVersion(ctx, a.cfg.DeviceID)
		if err != nil {
			return fmt.Errorf("checking archive %s version: %w", arc.Name(), err)
		}
		if remoteSeq > localSeq {
			return fmt.Errorf("local history is behind archive %s (local=%d, archive=%d): run 'alertsync history restore'", arc.Name(), localSeq, remoteSeq)
		}
	}
	return nil
}

// Login authenticates and stores the new session.
func (a *AlertApp) Login(ctx context.Context, email, password string) (*alerts.Session, error) {
	return a.remote.Auth.Login(ctx, email, password)
}

// Register creates an account and stores the new session.
func (a *AlertApp) Register(ctx context.Context, reg remote.Registration) (*alerts.Session, error) {
	return a.remote.Auth.Register(ctx, reg)
}

// Logout clears the session. History and settings are kept.
func (a *AlertApp) Logout() error {
	return a.engine.Logout()
}

// CurrentUser returns the logged-in user's ID.
func (a *AlertApp) CurrentUser() (string, error) {
	sess, err := a.sessions.Get()
	if err != nil {
		return "", fmt.Errorf("reading session: %w", err)
	}
	if sess == nil {
		return "", ErrNotLoggedIn
	}
	return sess.UserID, nil
}

// Refresh runs one manual refresh cycle and returns the resulting snapshot.
func (a *AlertApp) Refresh(ctx context.Context) (alerts.Snapshot, error) {
	if _, err := a.engine.Refresh(ctx, alerts.TriggerManual); err != nil {
		return a.engine.Current(), err
	}
	return a.engine.Current(), nil
}

// Status returns the engine status.
func (a *AlertApp) Status() alerts.Status {
	return a.engine.Status()
}

// Watch refreshes immediately and then on the configured schedule, calling
// onSnapshot with every published snapshot until ctx is done.
func (a *AlertApp) Watch(ctx context.Context, onSnapshot func(alerts.Snapshot)) error {
	sched, err := a.newScheduler()
	if err != nil {
		return err
	}

	snapshots, unsubscribe := a.engine.Subscribe()
	defer unsubscribe()
	// Drop the initial empty snapshot.
	<-snapshots

	if err := sched.Start(ctx); err != nil {
		return err
	}
	defer sched.Stop()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		sched.Tick(ctx)
	}()
	defer wg.Wait()

	for {
		select {
		case <-ctx.Done():
			return nil
		case snap, ok := <-snapshots:
			if !ok {
				return nil
			}
			onSnapshot(snap)
		}
	}
}

func (a *AlertApp) newScheduler() (*scheduler.Scheduler, error) {
	spec, err := scheduler.SpecFromConfig(a.cfg.Sync)
	if err != nil {
		return nil, err
	}
	return scheduler.New(a.engine, spec, a.logger)
}

// Report submits a new alert. A zero location is replaced with the
// device's current location.
func (a *AlertApp) Report(ctx context.Context, na remote.NewAlert) (*alerts.Alert, error) {
	if na.Location == (alerts.Location{}) {
		loc, err := a.location.Current(ctx)
		if err != nil {
			return nil, err
		}
		na.Location = loc
	}
	if na.RadiusMeters <= 0 {
		na.RadiusMeters = a.radius()
	}
	created, err := a.remote.Alerts.SubmitAlert(ctx, na)
	if err != nil {
		return nil, err
	}
	a.logger.Info("alert reported", "alert_id", created.ID, "category", created.Category)
	return created, nil
}

// History returns the newest limit history records; limit <= 0 returns all.
func (a *AlertApp) History(ctx context.Context, limit int) ([]*alerts.AlertHistoryRecord, error) {
	return a.db.ListHistory(ctx, limit)
}

// Settings returns the local settings for userID, or the logged-in user
// when userID is empty. Users without stored settings get the defaults.
func (a *AlertApp) Settings(ctx context.Context, userID string) (alerts.UserSettingsRecord, error) {
	userID, err := a.resolveUser(userID)
	if err != nil {
		return alerts.UserSettingsRecord{}, err
	}
	stored, err := a.db.GetUserSettings(ctx, userID)
	if err != nil {
		return alerts.UserSettingsRecord{}, err
	}
	if stored == nil {
		return alerts.DefaultUserSettings(userID), nil
	}
	return *stored, nil
}

// UpdateSettings applies change to the settings for userID (or the
// logged-in user) and stores the result.
func (a *AlertApp) UpdateSettings(ctx context.Context, userID string, change alerts.SettingsChange) (alerts.UserSettingsRecord, error) {
	userID, err := a.resolveUser(userID)
	if err != nil {
		return alerts.UserSettingsRecord{}, err
	}
	current, err := a.db.GetUserSettings(ctx, userID)
	if err != nil {
		return alerts.UserSettingsRecord{}, err
	}
	settings, err := change.Apply(userID, current)
	if err != nil {
		return alerts.UserSettingsRecord{}, err
	}
	if err := a.db.UpsertUserSettings(ctx, settings); err != nil {
		return alerts.UserSettingsRecord{}, err
	}
	return settings, nil
}

// Preferences fetches the logged-in user's server-side preferences.
func (a *AlertApp) Preferences(ctx context.Context) (*remote.Preferences, error) {
	userID, err := a.CurrentUser()
	if err != nil {
		return nil, err
	}
	return a.remote.Preferences.Get(ctx, userID)
}

// UpdatePreferences replaces the logged-in user's server-side preferences.
func (a *AlertApp) UpdatePreferences(ctx context.Context, prefs remote.Preferences) (*remote.Preferences, error) {
	userID, err := a.CurrentUser()
	if err != nil {
		return nil, err
	}
	return a.remote.Preferences.Update(ctx, userID, prefs)
}

// Resources lists emergency resources around the current location.
// radius <= 0 uses the sync radius.
func (a *AlertApp) Resources(ctx context.Context, radius float64) ([]remote.Resource, error) {
	loc, err := a.location.Current(ctx)
	if err != nil {
		return nil, err
	}
	if radius <= 0 {
		radius = a.radius()
	}
	return a.remote.Resources.Nearby(ctx, loc.Latitude, loc.Longitude, radius)
}

// Handler returns the local API handler.
func (a *AlertApp) Handler() http.Handler {
	return api.NewServer(a.engine, a.sessions, a.db, a.logger).Router()
}

// Serve runs the local API on the configured address together with the
// periodic refresh until ctx is done.
func (a *AlertApp) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.cfg.API.Listen)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", a.cfg.API.Listen, err)
	}
	return a.ServeListener(ctx, ln)
}

// ServeListener is Serve on an existing listener.
func (a *AlertApp) ServeListener(ctx context.Context, ln net.Listener) error {
	sched, err := a.newScheduler()
	if err != nil {
		ln.Close()
		return err
	}
	if err := sched.Start(ctx); err != nil {
		ln.Close()
		return err
	}
	defer sched.Stop()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		sched.Tick(ctx)
	}()
	defer wg.Wait()

	srv := &http.Server{
		Handler:           a.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()
	a.logger.Info("api listening", "addr", ln.Addr().String())

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serving api: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down api: %w", err)
	}
	return nil
}

// ArchiveHistory uploads a snapshot of the history database to every
// configured archive, versioned by the highest history sequence number.
func (a *AlertApp) ArchiveHistory(ctx context.Context) (int64, error) {
	if len(a.archives) == 0 {
		return 0, fmt.Errorf("no archives configured")
	}

	version, err := a.db.MaxHistorySeq(ctx)
	if err != nil {
		return 0, fmt.Errorf("reading history version: %w", err)
	}

	tmpDir, err := os.MkdirTemp("", "alertsync-archive-*")
	if err != nil {
		return 0, fmt.Errorf("creating temp dir for snapshot: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	snapshotPath := filepath.Join(tmpDir, "history.db")
	if err := a.db.BackupTo(ctx, snapshotPath); err != nil {
		return 0, err
	}

	for _, arc := range a.archives {
		if err := a.uploadSnapshot(ctx, arc, snapshotPath, version); err != nil {
			return 0, err
		}
		a.logger.Info("history archived", "archive", arc.Name(), "version", version)
	}
	return version, nil
}

func (a *AlertApp) uploadSnapshot(ctx context.Context, arc archive.Archive, path string, version int64) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening snapshot for upload: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat snapshot: %w", err)
	}

	if err := arc.PutSnapshot(ctx, a.cfg.DeviceID, f, info.Size(), version); err != nil {
		return fmt.Errorf("uploading snapshot to %s: %w", arc.Name(), err)
	}
	return nil
}

// ValidateArchives checks that every configured archive is usable.
func (a *AlertApp) ValidateArchives(ctx context.Context) error {
	for _, arc := range a.archives {
		if err := arc.ValidateSetup(ctx); err != nil {
			return fmt.Errorf("archive %s: %w", arc.Name(), err)
		}
	}
	return nil
}

func (a *AlertApp) resolveUser(userID string) (string, error) {
	if userID != "" {
		return userID, nil
	}
	return a.CurrentUser()
}

func (a *AlertApp) radius() float64 {
	if a.cfg.Sync.RadiusMeters > 0 {
		return a.cfg.Sync.RadiusMeters
	}
	return alerts.DefaultRadiusMeters
}

// Close archives the history database when this run appended to it, then
// closes all resources.
func (a *AlertApp) Close() error {
	var firstErr error

	if a.db != nil && a.run != nil && len(a.archives) > 0 {
		ctx := context.Background()
		seq, err := a.db.MaxHistorySeq(ctx)
		if err != nil {
			firstErr = fmt.Errorf("reading history version: %w", err)
		} else if a.run.Mutated(seq) {
			if _, err := a.ArchiveHistory(ctx); err != nil {
				firstErr = err
			}
		}
	}

	if a.run != nil {
		a.logger.Debug("run finished", "duration", a.clock.Now().Sub(a.run.StartedAt))
	}

	if err := a.closeResources(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

func (a *AlertApp) closeResources() error {
	var err error
	if a.db != nil {
		if cerr := a.db.Close(); cerr != nil {
			err = fmt.Errorf("closing database: %w", cerr)
		}
		a.db = nil
	}
	if a.logFile != nil {
		a.logFile.Close()
		a.logFile = nil
	}
	return err
}

// RestoreHistory replaces the local history database with the snapshot
// stored in the named archive (the first archive when name is empty).
// It must run without an open AlertApp for the same device.
func RestoreHistory(ctx context.Context, cfg *config.Config, archiveName string) (int64, error) {
	if cfg.Database.Type != "sqlite" {
		return 0, fmt.Errorf("restore requires a sqlite database, have %q", cfg.Database.Type)
	}

	var chosen *config.ArchiveConfig
	for i := range cfg.Archives {
		if archiveName == "" || cfg.Archives[i].Name == archiveName {
			chosen = &cfg.Archives[i]
			break
		}
	}
	if chosen == nil {
		return 0, fmt.Errorf("archive %q not configured", archiveName)
	}

	arc, err := archive.NewArchiveFromConfig(ctx, *chosen)
	if err != nil {
		return 0, fmt.Errorf("creating archive: %w", err)
	}
	version, err := arc.SnapshotVersion(ctx, cfg.DeviceID)
	if err != nil {
		return 0, fmt.Errorf("checking archive version: %w", err)
	}

	if err := os.MkdirAll(cfg.Database.DataDir, 0700); err != nil {
		return 0, fmt.Errorf("creating data dir: %w", err)
	}
	tmp, err := os.CreateTemp(cfg.Database.DataDir, ".restore-*")
	if err != nil {
		return 0, fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if err := arc.GetSnapshot(ctx, cfg.DeviceID, tmp); err != nil {
		tmp.Close()
		return 0, err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return 0, fmt.Errorf("syncing snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return 0, fmt.Errorf("closing snapshot: %w", err)
	}

	dbPath := filepath.Join(cfg.Database.DataDir, cfg.DeviceID+".db")
	if err := os.Rename(tmpPath, dbPath); err != nil {
		return 0, fmt.Errorf("replacing database: %w", err)
	}
	return version, nil
}

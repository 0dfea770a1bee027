package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"alertsync/internal/alerts"
	"alertsync/internal/database/migrations"
	"alertsync/internal/database/sqlc"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// SQLiteDatabase implements alerts.HistoryStore using SQLite.
type SQLiteDatabase struct {
	db      *sql.DB
	queries *sqlc.Queries
	path    string
	clock   alerts.Clock
}

// NewSQLiteDatabase creates a new SQLite database connection.
// path can be a file path or ":memory:" for in-memory database.
// A nil clock uses the real clock.
func NewSQLiteDatabase(path string, clock alerts.Clock) (*SQLiteDatabase, error) {
	db, err := OpenConnection(path)
	if err != nil {
		return nil, err
	}
	if clock == nil {
		clock = alerts.RealClock{}
	}

	return &SQLiteDatabase{
		db:      db,
		queries: sqlc.New(db),
		path:    path,
		clock:   clock,
	}, nil
}

// OpenConnection opens and configures a SQLite database connection.
// Exported for tools and tests that need the same settings.
func OpenConnection(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// An in-memory database lives only as long as its connection.
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return db, nil
}

// dsn applies the connection settings to every pooled connection.
// Transactions take the write lock at BEGIN, so concurrent writers wait
// out the busy timeout instead of failing on a lock upgrade.
func dsn(path string) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + "_busy_timeout=5000&_txlock=immediate"
}

// History operations

// AppendHistory inserts one record per alert in a single transaction.
// CreatedAt is strictly increasing across the table, even when the clock
// stalls or steps backwards.
func (s *SQLiteDatabase) AppendHistory(ctx context.Context, observed ...alerts.Alert) error {
	if len(observed) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	qtx := s.queries.WithTx(tx)

	last, err := qtx.GetLatestHistoryCreatedAt(ctx)
	if err != nil {
		return fmt.Errorf("reading latest history timestamp: %w", err)
	}

	now := s.clock.Now().UnixNano()
	for _, a := range observed {
		createdAt := now
		if createdAt <= last {
			createdAt = last + 1
		}
		last = createdAt

		_, err := qtx.InsertAlertHistory(ctx, sqlc.InsertAlertHistoryParams{
			AlertID:        a.ID,
			Title:          a.Title,
			Description:    a.Description,
			Category:       string(a.Category),
			Priority:       string(a.Priority),
			Latitude:       a.Location.Latitude,
			Longitude:      a.Location.Longitude,
			AlertTimestamp: a.Timestamp.UnixNano(),
			CreatedAt:      createdAt,
		})
		if err != nil {
			return fmt.Errorf("inserting history for alert %s: %w", a.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing history: %w", err)
	}
	return nil
}

// ListHistory returns records newest first. limit <= 0 returns all of them.
func (s *SQLiteDatabase) ListHistory(ctx context.Context, limit int) ([]*alerts.AlertHistoryRecord, error) {
	n := int64(limit)
	if limit <= 0 {
		n = -1 // SQLite treats a negative LIMIT as unbounded
	}

	rows, err := s.queries.ListAlertHistory(ctx, n)
	if err != nil {
		return nil, fmt.Errorf("listing history: %w", err)
	}

	result := make([]*alerts.AlertHistoryRecord, len(rows))
	for i, row := range rows {
		result[i] = historyRecordFromRow(row)
	}
	return result, nil
}

// MaxHistorySeq returns the highest history sequence number, or 0 when empty.
func (s *SQLiteDatabase) MaxHistorySeq(ctx context.Context) (int64, error) {
	seq, err := s.queries.GetMaxHistorySeq(ctx)
	if err != nil {
		return 0, fmt.Errorf("getting max history seq: %w", err)
	}
	return seq, nil
}

func historyRecordFromRow(row sqlc.AlertHistory) *alerts.AlertHistoryRecord {
	return &alerts.AlertHistoryRecord{
		Seq:         row.Seq,
		AlertID:     row.AlertID,
		Title:       row.Title,
		Description: row.Description,
		Category:    alerts.Category(row.Category),
		Priority:    alerts.Priority(row.Priority),
		Latitude:    row.Latitude,
		Longitude:   row.Longitude,
		Timestamp:   time.Unix(0, row.AlertTimestamp).UTC(),
		CreatedAt:   time.Unix(0, row.CreatedAt).UTC(),
	}
}

// User settings operations

func (s *SQLiteDatabase) UpsertUserSettings(ctx context.Context, settings alerts.UserSettingsRecord) error {
	if settings.UserID == "" {
		return fmt.Errorf("%w: user id is required", alerts.ErrValidation)
	}
	if _, err := alerts.ParseColorScheme(string(settings.ColorScheme)); err != nil {
		return err
	}

	err := s.queries.UpsertUserSettings(ctx, sqlc.UpsertUserSettingsParams{
		UserID:               settings.UserID,
		ColorScheme:          string(settings.ColorScheme),
		NotificationsEnabled: settings.NotificationsEnabled,
		UpdatedAt:            s.clock.Now().UnixNano(),
	})
	if err != nil {
		return fmt.Errorf("upserting user settings: %w", err)
	}
	return nil
}

func (s *SQLiteDatabase) GetUserSettings(ctx context.Context, userID string) (*alerts.UserSettingsRecord, error) {
	row, err := s.queries.GetUserSettings(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("getting user settings: %w", err)
	}
	return &alerts.UserSettingsRecord{
		UserID:               row.UserID,
		ColorScheme:          alerts.ColorScheme(row.ColorScheme),
		NotificationsEnabled: row.NotificationsEnabled,
	}, nil
}

// Path returns the database file path (or ":memory:" for in-memory databases).
func (s *SQLiteDatabase) Path() string {
	return s.path
}

// CheckMigrations verifies the database schema is up-to-date.
func (s *SQLiteDatabase) CheckMigrations() error {
	return migrations.CheckDBMigrationStatus(s.db)
}

// Migrate applies any pending migrations.
func (s *SQLiteDatabase) Migrate() error {
	return migrations.MigrateUp(s.db)
}

// BackupTo creates a complete copy of the database at destPath using VACUUM INTO.
func (s *SQLiteDatabase) BackupTo(ctx context.Context, destPath string) error {
	_, err := s.db.ExecContext(ctx, "VACUUM INTO ?", destPath)
	if err != nil {
		return fmt.Errorf("backing up database: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteDatabase) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

var _ alerts.HistoryStore = (*SQLiteDatabase)(nil)

package database

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"alertsync/internal/alerts"
	"alertsync/internal/config"
)

type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

var baseTime = time.Date(2025, 4, 21, 10, 15, 30, 0, time.UTC)

// newTestDB creates a new in-memory database with schema applied.
func newTestDB(t *testing.T) (*SQLiteDatabase, *manualClock) {
	t.Helper()

	clock := &manualClock{now: baseTime}
	db, err := NewSQLiteDatabase(":memory:", clock)
	if err != nil {
		t.Fatalf("failed to create database: %v", err)
	}

	if _, err := db.db.Exec(Schema); err != nil {
		db.Close()
		t.Fatalf("failed to apply schema: %v", err)
	}

	t.Cleanup(func() {
		db.Close()
	})

	return db, clock
}

func testAlert(id string) alerts.Alert {
	return alerts.Alert{
		ID:                 id,
		Title:              "Alert " + id,
		Description:        "Description " + id,
		Category:           alerts.CategoryWeather,
		Priority:           alerts.PriorityImportant,
		VerificationStatus: alerts.VerificationVerified,
		Location:           alerts.Location{Latitude: 37.77, Longitude: -122.42},
		RadiusMeters:       500,
		Timestamp:          time.Date(2025, 4, 21, 9, 0, 0, 123456000, time.UTC),
		Source:             "nws",
		IsActive:           true,
	}
}

func TestSQLiteDatabase_AppendHistory(t *testing.T) {
	t.Run("empty call is a no-op", func(t *testing.T) {
		db, _ := newTestDB(t)
		ctx := context.Background()

		if err := db.AppendHistory(ctx); err != nil {
			t.Fatalf("AppendHistory() error = %v", err)
		}
		records, err := db.ListHistory(ctx, 0)
		if err != nil {
			t.Fatalf("ListHistory() error = %v", err)
		}
		if len(records) != 0 {
			t.Errorf("len(records) = %d, want 0", len(records))
		}
	})

	t.Run("projects alert fields", func(t *testing.T) {
		db, _ := newTestDB(t)
		ctx := context.Background()
		a := testAlert("a1")

		if err := db.AppendHistory(ctx, a); err != nil {
			t.Fatalf("AppendHistory() error = %v", err)
		}

		records, err := db.ListHistory(ctx, 0)
		if err != nil {
			t.Fatalf("ListHistory() error = %v", err)
		}
		if len(records) != 1 {
			t.Fatalf("len(records) = %d, want 1", len(records))
		}
		got := records[0]
		if got.AlertID != "a1" || got.Title != a.Title || got.Description != a.Description {
			t.Errorf("record = %+v, want fields of %+v", got, a)
		}
		if got.Category != alerts.CategoryWeather || got.Priority != alerts.PriorityImportant {
			t.Errorf("category/priority = %s/%s", got.Category, got.Priority)
		}
		if got.Latitude != 37.77 || got.Longitude != -122.42 {
			t.Errorf("location = %v,%v", got.Latitude, got.Longitude)
		}
		if !got.Timestamp.Equal(a.Timestamp) {
			t.Errorf("Timestamp = %v, want %v", got.Timestamp, a.Timestamp)
		}
		if !got.CreatedAt.Equal(baseTime) {
			t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, baseTime)
		}
		if got.Seq != 1 {
			t.Errorf("Seq = %d, want 1", got.Seq)
		}
	})

	t.Run("same alert appended twice yields two records", func(t *testing.T) {
		db, clock := newTestDB(t)
		ctx := context.Background()

		if err := db.AppendHistory(ctx, testAlert("a1")); err != nil {
			t.Fatalf("AppendHistory() error = %v", err)
		}
		clock.Set(baseTime.Add(time.Minute))
		if err := db.AppendHistory(ctx, testAlert("a1")); err != nil {
			t.Fatalf("AppendHistory() error = %v", err)
		}

		records, err := db.ListHistory(ctx, 0)
		if err != nil {
			t.Fatalf("ListHistory() error = %v", err)
		}
		if len(records) != 2 {
			t.Fatalf("len(records) = %d, want 2", len(records))
		}
		if records[0].AlertID != "a1" || records[1].AlertID != "a1" {
			t.Errorf("records = %+v, want two a1 entries", records)
		}
	})

	t.Run("created_at strictly increases when the clock stalls", func(t *testing.T) {
		db, clock := newTestDB(t)
		ctx := context.Background()

		if err := db.AppendHistory(ctx, testAlert("a1"), testAlert("a2"), testAlert("a3")); err != nil {
			t.Fatalf("AppendHistory() error = %v", err)
		}
		clock.Set(baseTime.Add(-time.Hour))
		if err := db.AppendHistory(ctx, testAlert("a4")); err != nil {
			t.Fatalf("AppendHistory() error = %v", err)
		}

		records, err := db.ListHistory(ctx, 0)
		if err != nil {
			t.Fatalf("ListHistory() error = %v", err)
		}
		if len(records) != 4 {
			t.Fatalf("len(records) = %d, want 4", len(records))
		}
		wantOrder := []string{"a4", "a3", "a2", "a1"}
		for i, id := range wantOrder {
			if records[i].AlertID != id {
				t.Errorf("records[%d].AlertID = %s, want %s", i, records[i].AlertID, id)
			}
		}
		for i := 1; i < len(records); i++ {
			if !records[i-1].CreatedAt.After(records[i].CreatedAt) {
				t.Errorf("records[%d].CreatedAt %v not after records[%d].CreatedAt %v",
					i-1, records[i-1].CreatedAt, i, records[i].CreatedAt)
			}
		}
	})

	t.Run("cancelled context writes nothing", func(t *testing.T) {
		db, _ := newTestDB(t)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		if err := db.AppendHistory(ctx, testAlert("a1"), testAlert("a2")); err == nil {
			t.Fatal("AppendHistory() expected error for cancelled context, got nil")
		}

		records, err := db.ListHistory(context.Background(), 0)
		if err != nil {
			t.Fatalf("ListHistory() error = %v", err)
		}
		if len(records) != 0 {
			t.Errorf("len(records) = %d, want 0", len(records))
		}
	})
}

func TestSQLiteDatabase_ConcurrentWriters(t *testing.T) {
	cfg := config.DatabaseConfig{Type: "sqlite", DataDir: t.TempDir()}
	ctx := context.Background()

	// Two handles on one file stand in for serve and a CLI command.
	handles := make([]*SQLiteDatabase, 2)
	for i := range handles {
		db, err := NewDatabaseFromConfig(cfg, "device-1", nil)
		if err != nil {
			t.Fatalf("NewDatabaseFromConfig() error = %v", err)
		}
		t.Cleanup(func() { db.Close() })
		handles[i] = db
	}

	const writers, appends = 8, 20
	var wg sync.WaitGroup
	errs := make(chan error, writers*appends*2)
	for w := 0; w < writers; w++ {
		db := handles[w%len(handles)]
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < appends; i++ {
				if err := db.AppendHistory(ctx, testAlert(fmt.Sprintf("%d-%d", w, i))); err != nil {
					errs <- err
				}
				settings := alerts.UserSettingsRecord{UserID: fmt.Sprintf("u-%d", w), ColorScheme: alerts.ColorSchemeDark}
				if err := db.UpsertUserSettings(ctx, settings); err != nil {
					errs <- err
				}
			}
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("concurrent write error = %v", err)
	}

	records, err := handles[0].ListHistory(ctx, 0)
	if err != nil {
		t.Fatalf("ListHistory() error = %v", err)
	}
	if len(records) != writers*appends {
		t.Fatalf("len(records) = %d, want %d", len(records), writers*appends)
	}
	for i := 1; i < len(records); i++ {
		if !records[i].CreatedAt.Before(records[i-1].CreatedAt) {
			t.Fatalf("records[%d].CreatedAt = %v not before records[%d].CreatedAt = %v",
				i, records[i].CreatedAt, i-1, records[i-1].CreatedAt)
		}
	}
}

func TestSQLiteDatabase_ListHistory(t *testing.T) {
	db, clock := newTestDB(t)
	ctx := context.Background()

	for i, id := range []string{"a1", "a2", "a3", "a4", "a5"} {
		clock.Set(baseTime.Add(time.Duration(i) * time.Second))
		if err := db.AppendHistory(ctx, testAlert(id)); err != nil {
			t.Fatalf("AppendHistory(%s) error = %v", id, err)
		}
	}

	tests := []struct {
		name  string
		limit int
		want  []string
	}{
		{"unbounded", 0, []string{"a5", "a4", "a3", "a2", "a1"}},
		{"negative is unbounded", -1, []string{"a5", "a4", "a3", "a2", "a1"}},
		{"limited", 2, []string{"a5", "a4"}},
		{"limit above count", 10, []string{"a5", "a4", "a3", "a2", "a1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			records, err := db.ListHistory(ctx, tt.limit)
			if err != nil {
				t.Fatalf("ListHistory() error = %v", err)
			}
			if len(records) != len(tt.want) {
				t.Fatalf("len(records) = %d, want %d", len(records), len(tt.want))
			}
			for i, id := range tt.want {
				if records[i].AlertID != id {
					t.Errorf("records[%d].AlertID = %s, want %s", i, records[i].AlertID, id)
				}
			}
		})
	}
}

func TestSQLiteDatabase_MaxHistorySeq(t *testing.T) {
	db, _ := newTestDB(t)
	ctx := context.Background()

	seq, err := db.MaxHistorySeq(ctx)
	if err != nil {
		t.Fatalf("MaxHistorySeq() error = %v", err)
	}
	if seq != 0 {
		t.Errorf("MaxHistorySeq() on empty db = %d, want 0", seq)
	}

	if err := db.AppendHistory(ctx, testAlert("a1"), testAlert("a2")); err != nil {
		t.Fatalf("AppendHistory() error = %v", err)
	}
	seq, err = db.MaxHistorySeq(ctx)
	if err != nil {
		t.Fatalf("MaxHistorySeq() error = %v", err)
	}
	if seq != 2 {
		t.Errorf("MaxHistorySeq() = %d, want 2", seq)
	}
}

func TestSQLiteDatabase_UserSettings(t *testing.T) {
	t.Run("returns nil when absent", func(t *testing.T) {
		db, _ := newTestDB(t)

		got, err := db.GetUserSettings(context.Background(), "u1")
		if err != nil {
			t.Fatalf("GetUserSettings() error = %v", err)
		}
		if got != nil {
			t.Errorf("GetUserSettings() = %+v, want nil", got)
		}
	})

	t.Run("upsert keeps a single record per user", func(t *testing.T) {
		db, _ := newTestDB(t)
		ctx := context.Background()

		first := alerts.UserSettingsRecord{UserID: "u1", ColorScheme: alerts.ColorSchemeLight, NotificationsEnabled: true}
		second := alerts.UserSettingsRecord{UserID: "u1", ColorScheme: alerts.ColorSchemeDark, NotificationsEnabled: false}

		if err := db.UpsertUserSettings(ctx, first); err != nil {
			t.Fatalf("UpsertUserSettings() error = %v", err)
		}
		if err := db.UpsertUserSettings(ctx, second); err != nil {
			t.Fatalf("UpsertUserSettings() error = %v", err)
		}

		got, err := db.GetUserSettings(ctx, "u1")
		if err != nil {
			t.Fatalf("GetUserSettings() error = %v", err)
		}
		if got == nil || *got != second {
			t.Errorf("GetUserSettings() = %+v, want %+v", got, second)
		}

		count, err := db.queries.CountUserSettings(ctx, "u1")
		if err != nil {
			t.Fatalf("CountUserSettings() error = %v", err)
		}
		if count != 1 {
			t.Errorf("record count = %d, want 1", count)
		}
	})

	t.Run("rejects invalid input", func(t *testing.T) {
		db, _ := newTestDB(t)
		ctx := context.Background()

		tests := []struct {
			name     string
			settings alerts.UserSettingsRecord
		}{
			{"missing user", alerts.UserSettingsRecord{ColorScheme: alerts.ColorSchemeDark}},
			{"unknown scheme", alerts.UserSettingsRecord{UserID: "u1", ColorScheme: "sepia"}},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				err := db.UpsertUserSettings(ctx, tt.settings)
				if !errors.Is(err, alerts.ErrValidation) {
					t.Errorf("UpsertUserSettings() error = %v, want ErrValidation", err)
				}
			})
		}
	})
}

func TestSQLiteDatabase_BackupTo(t *testing.T) {
	db, _ := newTestDB(t)
	ctx := context.Background()

	if err := db.AppendHistory(ctx, testAlert("a1")); err != nil {
		t.Fatalf("AppendHistory() error = %v", err)
	}

	dest := filepath.Join(t.TempDir(), "snapshot.db")
	if err := db.BackupTo(ctx, dest); err != nil {
		t.Fatalf("BackupTo() error = %v", err)
	}

	copyDB, err := NewSQLiteDatabase(dest, nil)
	if err != nil {
		t.Fatalf("opening snapshot: %v", err)
	}
	defer copyDB.Close()

	records, err := copyDB.ListHistory(ctx, 0)
	if err != nil {
		t.Fatalf("ListHistory() on snapshot error = %v", err)
	}
	if len(records) != 1 || records[0].AlertID != "a1" {
		t.Errorf("snapshot records = %+v, want one a1 record", records)
	}
}

func TestNewDatabaseFromConfig(t *testing.T) {
	t.Run("sqlite creates a migrated file", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "db")
		db, err := NewDatabaseFromConfig(config.DatabaseConfig{Type: "sqlite", DataDir: dir}, "device-1", nil)
		if err != nil {
			t.Fatalf("NewDatabaseFromConfig() error = %v", err)
		}
		defer db.Close()

		if db.Path() != filepath.Join(dir, "device-1.db") {
			t.Errorf("Path() = %s", db.Path())
		}
		if err := db.CheckMigrations(); err != nil {
			t.Errorf("CheckMigrations() error = %v", err)
		}
	})

	t.Run("memory", func(t *testing.T) {
		db, err := NewDatabaseFromConfig(config.DatabaseConfig{Type: "memory"}, "device-1", nil)
		if err != nil {
			t.Fatalf("NewDatabaseFromConfig() error = %v", err)
		}
		defer db.Close()

		if err := db.CheckMigrations(); err != nil {
			t.Errorf("CheckMigrations() error = %v", err)
		}
	})

	t.Run("errors", func(t *testing.T) {
		tests := []struct {
			name string
			cfg  config.DatabaseConfig
		}{
			{"sqlite without data dir", config.DatabaseConfig{Type: "sqlite"}},
			{"unknown type", config.DatabaseConfig{Type: "postgres"}},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				if _, err := NewDatabaseFromConfig(tt.cfg, "device-1", nil); err == nil {
					t.Error("NewDatabaseFromConfig() expected error, got nil")
				}
			})
		}
	})
}

package testutil

import (
	"testing"

	"alertsync/internal/alerts"
	"alertsync/internal/database"
)

// NewTestHistoryStore creates an in-memory, fully migrated history store.
// The store is closed when the test completes. A nil clock uses real time.
func NewTestHistoryStore(t *testing.T, clock alerts.Clock) *database.SQLiteDatabase {
	t.Helper()

	db, err := database.NewSQLiteDatabase(":memory:", clock)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	if err := db.Migrate(); err != nil {
		db.Close()
		t.Fatalf("failed to migrate database: %v", err)
	}

	t.Cleanup(func() {
		db.Close()
	})

	return db
}

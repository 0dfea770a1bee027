package alerts

import "context"

// SessionStore holds the current Session. Implementations must be safe for
// concurrent use: Get never observes a partially written Session, and
// Replace and Clear are durable before they return.
type SessionStore interface {
	// Get returns the current session, or nil when logged out.
	Get() (*Session, error)

	// Replace atomically swaps in s and persists it.
	Replace(s *Session) error

	// Clear removes the session and persists the logged-out state.
	Clear() error
}

// HistoryStore is the durable local record store for alert history and
// per-user settings. Every write commits before returning and is atomic.
type HistoryStore interface {
	// AppendHistory creates one AlertHistoryRecord per alert, stamped with
	// the local receipt time. Existing records are never modified. All
	// records of one call commit together or not at all.
	AppendHistory(ctx context.Context, alerts ...Alert) error

	// ListHistory returns records ordered by CreatedAt, newest first.
	// limit <= 0 returns everything.
	ListHistory(ctx context.Context, limit int) ([]*AlertHistoryRecord, error)

	// UpsertUserSettings updates the record for settings.UserID in place,
	// creating it when absent.
	UpsertUserSettings(ctx context.Context, settings UserSettingsRecord) error

	// GetUserSettings returns the settings for userID, or nil if none exist.
	GetUserSettings(ctx context.Context, userID string) (*UserSettingsRecord, error)
}

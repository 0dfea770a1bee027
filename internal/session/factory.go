package session

import (
	"fmt"

	"alertsync/internal/alerts"
	"alertsync/internal/config"
)

// NewStoreFromConfig creates a SessionStore based on the session config type.
// sealer is only used by file stores.
func NewStoreFromConfig(cfg config.SessionConfig, sealer Sealer) (alerts.SessionStore, error) {
	switch cfg.Type {
	case "file", "":
		if cfg.Path == "" {
			return nil, fmt.Errorf("path required for file session store")
		}
		if sealer == nil {
			return nil, fmt.Errorf("file session store requires a sealer")
		}
		return NewFileStore(cfg.Path, sealer)
	case "memory":
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown session store type: %s", cfg.Type)
	}
}

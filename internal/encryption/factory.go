package encryption

import (
	"fmt"

	"alertsync/internal/config"
	"alertsync/internal/session"
)

// NewSealerFromConfig creates a Sealer based on the session encryption type.
func NewSealerFromConfig(cfg config.SessionConfig) (session.Sealer, error) {
	switch cfg.Encryption {
	case "age", "":
		if cfg.KeyPath == "" {
			return nil, fmt.Errorf("key_path required for age session encryption")
		}
		return NewAgeSealer(cfg.KeyPath), nil
	case "test":
		return NewTestSealer(), nil
	default:
		return nil, fmt.Errorf("unknown session encryption type: %q", cfg.Encryption)
	}
}

package app

import (
	"os"
	"path/filepath"
	"testing"
)

func TestGetDefaults(t *testing.T) {
	t.Run("uses env vars when set", func(t *testing.T) {
		t.Setenv("ALERTSYNC_CONFIG_PATH", "/custom/alertsync.toml")
		t.Setenv("ALERTSYNC_HOME", "/custom/alertsync")

		defaults, err := GetDefaults()
		if err != nil {
			t.Fatalf("GetDefaults() error = %v", err)
		}

		want := map[string]string{
			"config_path": "/custom/alertsync.toml",
			"base_dir":    "/custom/alertsync",
			"log_dir":     "/custom/alertsync/log",
		}
		for key, value := range want {
			if defaults[key] != value {
				t.Errorf("%s = %q, want %q", key, defaults[key], value)
			}
		}
	})

	t.Run("falls back to home dir defaults", func(t *testing.T) {
		t.Setenv("ALERTSYNC_CONFIG_PATH", "")
		t.Setenv("ALERTSYNC_HOME", "")

		defaults, err := GetDefaults()
		if err != nil {
			t.Fatalf("GetDefaults() error = %v", err)
		}

		homeDir, _ := os.UserHomeDir()

		wantConfig := filepath.Join(homeDir, ".config", "alertsync.toml")
		if defaults["config_path"] != wantConfig {
			t.Errorf("config_path = %q, want %q", defaults["config_path"], wantConfig)
		}

		wantBase := filepath.Join(homeDir, ".local", "share", "alertsync")
		if defaults["base_dir"] != wantBase {
			t.Errorf("base_dir = %q, want %q", defaults["base_dir"], wantBase)
		}
		if defaults["log_dir"] != filepath.Join(wantBase, "log") {
			t.Errorf("log_dir = %q, want %q", defaults["log_dir"], filepath.Join(wantBase, "log"))
		}
	})
}

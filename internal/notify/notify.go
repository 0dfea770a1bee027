// Package notify dispatches notifications for newly observed alerts.
package notify

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"

	"alertsync/internal/alerts"
	"alertsync/internal/config"
)

// LogNotifier writes each notification to the logger.
type LogNotifier struct {
	logger alerts.Logger
}

func NewLogNotifier(logger alerts.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(_ context.Context, a alerts.Alert, p alerts.Priority) error {
	n.logger.Info("new alert",
		"alert_id", a.ID,
		"title", a.Title,
		"category", string(a.Category),
		"priority", string(p),
		"sound", alerts.Sound(p),
	)
	return nil
}

// CommandNotifier runs an external command for each notification, with
// the sound file for the priority appended to its arguments. Title and
// priority are passed in the environment.
type CommandNotifier struct {
	command  string
	args     []string
	soundDir string
}

func NewCommandNotifier(command string, args []string, soundDir string) *CommandNotifier {
	return &CommandNotifier{command: command, args: args, soundDir: soundDir}
}

// SoundFile returns the file played for p.
func (n *CommandNotifier) SoundFile(p alerts.Priority) string {
	return filepath.Join(n.soundDir, alerts.Sound(p)+".wav")
}

func (n *CommandNotifier) Notify(ctx context.Context, a alerts.Alert, p alerts.Priority) error {
	args := append(append([]string(nil), n.args...), n.SoundFile(p))
	cmd := exec.CommandContext(ctx, n.command, args...)
	cmd.Env = append(cmd.Environ(),
		"ALERTSYNC_ALERT_ID="+a.ID,
		"ALERTSYNC_ALERT_TITLE="+a.Title,
		"ALERTSYNC_ALERT_PRIORITY="+string(p),
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return fmt.Errorf("running %s: %w: %s", n.command, err, msg)
		}
		return fmt.Errorf("running %s: %w", n.command, err)
	}
	return nil
}

// NewNotifierFromConfig creates a Notifier based on the notifier config type.
func NewNotifierFromConfig(cfg config.NotifierConfig, logger alerts.Logger) (alerts.Notifier, error) {
	switch cfg.Type {
	case "log", "":
		return NewLogNotifier(logger), nil
	case "command":
		if cfg.Command == "" {
			return nil, fmt.Errorf("command required for command notifier")
		}
		return NewCommandNotifier(cfg.Command, cfg.Args, cfg.SoundDir), nil
	default:
		return nil, fmt.Errorf("unknown notifier type: %s", cfg.Type)
	}
}

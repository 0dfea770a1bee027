package remote

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"alertsync/internal/alerts"
)

// NotificationSettings mirrors the service's per-user notification switches.
type NotificationSettings struct {
	SoundEnabled           bool `json:"sound_enabled"`
	VibrationEnabled       bool `json:"vibration_enabled"`
	CriticalAlertsEnabled  bool `json:"critical_alerts_enabled"`
	CommunityAlertsEnabled bool `json:"community_alerts_enabled"`
}

// Preferences are the server-side user preferences.
type Preferences struct {
	UserID               string               `json:"user_id,omitempty"`
	AlertRadius          float64              `json:"alert_radius" validate:"gt=0"`
	NotificationSettings NotificationSettings `json:"notification_settings"`
}

// PreferencesClient reads and writes the logged-in user's preferences.
type PreferencesClient struct {
	auth      *AuthClient
	validator *payloadValidator
}

func NewPreferencesClient(auth *AuthClient) *PreferencesClient {
	return &PreferencesClient{auth: auth, validator: newPayloadValidator()}
}

func (c *PreferencesClient) Get(ctx context.Context, userID string) (*Preferences, error) {
	if userID == "" {
		return nil, &alerts.RemoteError{Kind: alerts.ErrValidation, Detail: "user id is required"}
	}
	var out Preferences
	err := c.auth.authorized(ctx, request{
		method: http.MethodGet,
		path:   "/users/" + url.PathEscape(userID) + "/preferences",
		out:    &out,
	})
	if err != nil {
		return nil, fmt.Errorf("getting preferences: %w", err)
	}
	return &out, nil
}

func (c *PreferencesClient) Update(ctx context.Context, userID string, prefs Preferences) (*Preferences, error) {
	if userID == "" {
		return nil, &alerts.RemoteError{Kind: alerts.ErrValidation, Detail: "user id is required"}
	}
	if err := c.validator.Check(prefs); err != nil {
		return nil, err
	}
	prefs.UserID = ""

	var out Preferences
	err := c.auth.authorized(ctx, request{
		method: http.MethodPut,
		path:   "/users/" + url.PathEscape(userID) + "/preferences",
		body:   prefs,
		out:    &out,
	})
	if err != nil {
		return nil, fmt.Errorf("updating preferences: %w", err)
	}
	return &out, nil
}

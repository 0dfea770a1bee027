package remote

import (
	"fmt"
	"net/http"

	"alertsync/internal/alerts"
	"alertsync/internal/config"
)

// Client groups the clients that share one transport and session store.
type Client struct {
	Auth        *AuthClient
	Alerts      *AlertClient
	Preferences *PreferencesClient
	Resources   *ResourcesClient
}

// NewClient builds every remote client from the server configuration.
func NewClient(cfg config.ServerConfig, httpClient *http.Client, sessions alerts.SessionStore, clock alerts.Clock, logger alerts.Logger) (*Client, error) {
	timeout, err := cfg.RequestTimeout()
	if err != nil {
		return nil, err
	}
	transport, err := NewTransport(cfg.BaseURL, httpClient, timeout, logger)
	if err != nil {
		return nil, fmt.Errorf("creating transport: %w", err)
	}

	auth := NewAuthClient(transport, sessions, clock, logger)
	return &Client{
		Auth:        auth,
		Alerts:      NewAlertClient(auth),
		Preferences: NewPreferencesClient(auth),
		Resources:   NewResourcesClient(auth),
	}, nil
}

var _ alerts.AlertFetcher = (*AlertClient)(nil)

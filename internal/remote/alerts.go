package remote

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"alertsync/internal/alerts"
)

// AlertClient performs the geo-scoped alert query and alert submission.
type AlertClient struct {
	auth      *AuthClient
	validator *payloadValidator
}

func NewAlertClient(auth *AuthClient) *AlertClient {
	return &AlertClient{auth: auth, validator: newPayloadValidator()}
}

// FetchAlerts returns the alerts within radiusMeters of the coordinate in
// the order the service returned them.
func (c *AlertClient) FetchAlerts(ctx context.Context, latitude, longitude, radiusMeters float64) ([]alerts.Alert, error) {
	var out []alerts.Alert
	err := c.auth.authorized(ctx, request{
		method: http.MethodGet,
		path:   "/alerts",
		query: url.Values{
			"latitude":  {formatFloat(latitude)},
			"longitude": {formatFloat(longitude)},
			"radius":    {formatFloat(radiusMeters)},
		},
		out: &out,
	})
	if err != nil {
		return nil, fmt.Errorf("fetching alerts: %w", err)
	}
	if out == nil {
		out = []alerts.Alert{}
	}
	return out, nil
}

// NewAlert is a user report. The service assigns id, timestamp,
// verification status and owner.
type NewAlert struct {
	Title        string          `json:"title" validate:"required"`
	Description  string          `json:"description" validate:"required"`
	Category     alerts.Category `json:"category" validate:"required"`
	Priority     alerts.Priority `json:"priority" validate:"required"`
	Location     alerts.Location `json:"location"`
	RadiusMeters float64         `json:"radius" validate:"gt=0"`
	Source       string          `json:"source" validate:"required"`
}

// SubmitAlert creates an alert and returns it as stored by the service.
func (c *AlertClient) SubmitAlert(ctx context.Context, a NewAlert) (*alerts.Alert, error) {
	if err := c.validator.Check(a); err != nil {
		return nil, err
	}
	if !a.Category.Valid() {
		return nil, &alerts.RemoteError{Kind: alerts.ErrValidation, Detail: fmt.Sprintf("unknown category %q", a.Category)}
	}
	if !a.Priority.Valid() {
		return nil, &alerts.RemoteError{Kind: alerts.ErrValidation, Detail: fmt.Sprintf("unknown priority %q", a.Priority)}
	}

	var created alerts.Alert
	err := c.auth.authorized(ctx, request{
		method: http.MethodPost,
		path:   "/alerts",
		body:   a,
		out:    &created,
	})
	if err != nil {
		return nil, fmt.Errorf("submitting alert: %w", err)
	}
	return &created, nil
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

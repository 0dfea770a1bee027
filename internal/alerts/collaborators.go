package alerts

import "context"

// AlertFetcher performs the geo-scoped alert query.
type AlertFetcher interface {
	FetchAlerts(ctx context.Context, latitude, longitude, radiusMeters float64) ([]Alert, error)
}

// LocationProvider yields the device's current coordinate.
// It returns an error wrapping ErrLocationUnavailable when none is known.
type LocationProvider interface {
	Current(ctx context.Context) (Location, error)
}

// Notifier raises an audible or visual notification for a new alert.
type Notifier interface {
	Notify(ctx context.Context, alert Alert, priority Priority) error
}

// Sound names the notification sound for a priority.
func Sound(p Priority) string {
	switch p {
	case PriorityImmediate:
		return "emergency"
	case PriorityImportant:
		return "warning"
	default:
		return "notification"
	}
}

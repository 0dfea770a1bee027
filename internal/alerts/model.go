package alerts

import (
	"encoding/json"
	"fmt"
	"time"
)

// Category classifies what an alert is about. Values are the wire strings
// used by the remote service.
type Category string

const (
	CategoryWeather        Category = "Weather"
	CategoryTraffic        Category = "Traffic"
	CategoryCrime          Category = "Crime"
	CategoryCommunity      Category = "Community"
	CategoryPublicSafety   Category = "Public Safety"
	CategoryInfrastructure Category = "Infrastructure"
)

// Categories lists every known category in display order.
var Categories = []Category{
	CategoryWeather,
	CategoryTraffic,
	CategoryCrime,
	CategoryCommunity,
	CategoryPublicSafety,
	CategoryInfrastructure,
}

func (c Category) Valid() bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

func (c *Category) UnmarshalText(b []byte) error {
	v := Category(b)
	if !v.Valid() {
		return fmt.Errorf("unknown category %q", string(b))
	}
	*c = v
	return nil
}

// Priority is the urgency of an alert.
type Priority string

const (
	PriorityImmediate     Priority = "Immediate"
	PriorityImportant     Priority = "Important"
	PriorityInformational Priority = "Informational"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityImmediate, PriorityImportant, PriorityInformational:
		return true
	}
	return false
}

func (p *Priority) UnmarshalText(b []byte) error {
	v := Priority(b)
	if !v.Valid() {
		return fmt.Errorf("unknown priority %q", string(b))
	}
	*p = v
	return nil
}

// VerificationStatus reports whether the service has confirmed an alert.
type VerificationStatus string

const (
	VerificationVerified   VerificationStatus = "Verified"
	VerificationPending    VerificationStatus = "Pending"
	VerificationUnverified VerificationStatus = "Unverified"
)

func (v *VerificationStatus) UnmarshalText(b []byte) error {
	s := VerificationStatus(b)
	switch s {
	case VerificationVerified, VerificationPending, VerificationUnverified:
		*v = s
		return nil
	}
	return fmt.Errorf("unknown verification status %q", string(b))
}

// Location is a WGS84 coordinate.
type Location struct {
	Latitude  float64 `json:"latitude" validate:"gte=-90,lte=90"`
	Longitude float64 `json:"longitude" validate:"gte=-180,lte=180"`
}

// Alert is an immutable alert value. Identity is ID.
type Alert struct {
	ID                 string
	Title              string
	Description        string
	Category           Category
	Priority           Priority
	VerificationStatus VerificationStatus
	Location           Location
	RadiusMeters       float64
	Timestamp          time.Time
	Source             string
	IsActive           bool
	UserID             string
}

// alertWire is the JSON shape served by the remote service.
type alertWire struct {
	ID                 string             `json:"id"`
	Title              string             `json:"title"`
	Description        string             `json:"description"`
	Category           Category           `json:"category"`
	Priority           Priority           `json:"priority"`
	VerificationStatus VerificationStatus `json:"verification_status"`
	Location           Location           `json:"location"`
	Radius             float64            `json:"radius"`
	Timestamp          string             `json:"timestamp"`
	Source             string             `json:"source"`
	IsActive           bool               `json:"is_active"`
	UserID             string             `json:"user_id"`
}

// UnmarshalJSON decodes the wire form, accepting either timestamp format.
// Every failure wraps ErrDecode.
func (a *Alert) UnmarshalJSON(b []byte) error {
	var w alertWire
	if err := json.Unmarshal(b, &w); err != nil {
		return fmt.Errorf("%w: alert: %v", ErrDecode, err)
	}
	ts, err := ParseTimestamp(w.Timestamp)
	if err != nil {
		return fmt.Errorf("alert %s: %w", w.ID, err)
	}
	if w.Radius <= 0 {
		return fmt.Errorf("%w: alert %s: radius must be positive, got %v", ErrDecode, w.ID, w.Radius)
	}
	*a = Alert{
		ID:                 w.ID,
		Title:              w.Title,
		Description:        w.Description,
		Category:           w.Category,
		Priority:           w.Priority,
		VerificationStatus: w.VerificationStatus,
		Location:           w.Location,
		RadiusMeters:       w.Radius,
		Timestamp:          ts,
		Source:             w.Source,
		IsActive:           w.IsActive,
		UserID:             w.UserID,
	}
	return nil
}

func (a Alert) MarshalJSON() ([]byte, error) {
	return json.Marshal(alertWire{
		ID:                 a.ID,
		Title:              a.Title,
		Description:        a.Description,
		Category:           a.Category,
		Priority:           a.Priority,
		VerificationStatus: a.VerificationStatus,
		Location:           a.Location,
		Radius:             a.RadiusMeters,
		Timestamp:          FormatTimestamp(a.Timestamp),
		Source:             a.Source,
		IsActive:           a.IsActive,
		UserID:             a.UserID,
	})
}

// Session is the access/refresh token pair for one logged-in user.
type Session struct {
	UserID       string     `json:"user_id"`
	AccessToken  string     `json:"access_token"`
	RefreshToken string     `json:"refresh_token"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
}

// Expired reports whether the access token is known to be expired at now,
// treating tokens within skew of expiry as expired.
func (s *Session) Expired(now time.Time, skew time.Duration) bool {
	if s == nil || s.ExpiresAt == nil {
		return false
	}
	return !now.Add(skew).Before(*s.ExpiresAt)
}

// AlertHistoryRecord is the locally persisted projection of an observed alert.
// CreatedAt is the local receipt time, not the alert's own timestamp.
type AlertHistoryRecord struct {
	Seq         int64     `json:"seq"`
	AlertID     string    `json:"alert_id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Category    Category  `json:"category"`
	Priority    Priority  `json:"priority"`
	Latitude    float64   `json:"latitude"`
	Longitude   float64   `json:"longitude"`
	Timestamp   time.Time `json:"timestamp"`
	CreatedAt   time.Time `json:"created_at"`
}

// ColorScheme is the user's display preference.
type ColorScheme string

const (
	ColorSchemeLight ColorScheme = "light"
	ColorSchemeDark  ColorScheme = "dark"
)

// ParseColorScheme validates a color scheme name.
func ParseColorScheme(s string) (ColorScheme, error) {
	switch ColorScheme(s) {
	case ColorSchemeLight, ColorSchemeDark:
		return ColorScheme(s), nil
	}
	return "", fmt.Errorf("%w: color scheme must be light or dark, got %q", ErrValidation, s)
}

// UserSettingsRecord holds per-user local settings, keyed by UserID.
type UserSettingsRecord struct {
	UserID               string      `json:"user_id"`
	ColorScheme          ColorScheme `json:"color_scheme"`
	NotificationsEnabled bool        `json:"notifications_enabled"`
}

// DefaultUserSettings is the record used for a user with no stored settings.
func DefaultUserSettings(userID string) UserSettingsRecord {
	return UserSettingsRecord{
		UserID:               userID,
		ColorScheme:          ColorSchemeLight,
		NotificationsEnabled: true,
	}
}

// SettingsChange is a partial update of a UserSettingsRecord. Zero fields
// leave the current value unchanged.
type SettingsChange struct {
	ColorScheme          string `json:"color_scheme"`
	NotificationsEnabled *bool  `json:"notifications_enabled"`
}

// Apply returns current with the change applied, starting from
// DefaultUserSettings when current is nil.
func (c SettingsChange) Apply(userID string, current *UserSettingsRecord) (UserSettingsRecord, error) {
	settings := DefaultUserSettings(userID)
	if current != nil {
		settings = *current
	}
	if c.ColorScheme != "" {
		scheme, err := ParseColorScheme(c.ColorScheme)
		if err != nil {
			return UserSettingsRecord{}, err
		}
		settings.ColorScheme = scheme
	}
	if c.NotificationsEnabled != nil {
		settings.NotificationsEnabled = *c.NotificationsEnabled
	}
	return settings, nil
}

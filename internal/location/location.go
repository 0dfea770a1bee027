// Package location provides the device coordinate for alert queries.
package location

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"alertsync/internal/alerts"
	"alertsync/internal/config"
)

// Static reports a fixed coordinate.
type Static struct {
	loc alerts.Location
}

func NewStatic(latitude, longitude float64) (*Static, error) {
	loc := alerts.Location{Latitude: latitude, Longitude: longitude}
	if err := check(loc); err != nil {
		return nil, err
	}
	return &Static{loc: loc}, nil
}

func (s *Static) Current(context.Context) (alerts.Location, error) {
	return s.loc, nil
}

// File reads the coordinate from a JSON file on every call, so another
// process (a GPS daemon, a script) can keep it current. A missing file means
// the location is unknown.
type File struct {
	path string
}

func NewFile(path string) *File {
	return &File{path: path}
}

func (f *File) Current(context.Context) (alerts.Location, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return alerts.Location{}, fmt.Errorf("%w: %s does not exist", alerts.ErrLocationUnavailable, f.path)
		}
		return alerts.Location{}, fmt.Errorf("%w: %v", alerts.ErrLocationUnavailable, err)
	}

	var loc alerts.Location
	if err := json.Unmarshal(data, &loc); err != nil {
		return alerts.Location{}, fmt.Errorf("%w: parsing %s: %v", alerts.ErrLocationUnavailable, f.path, err)
	}
	if err := check(loc); err != nil {
		return alerts.Location{}, fmt.Errorf("%w: %v", alerts.ErrLocationUnavailable, err)
	}
	return loc, nil
}

// Unavailable never knows the location.
type Unavailable struct{}

func (Unavailable) Current(context.Context) (alerts.Location, error) {
	return alerts.Location{}, fmt.Errorf("%w: no location provider configured", alerts.ErrLocationUnavailable)
}

func check(loc alerts.Location) error {
	if loc.Latitude < -90 || loc.Latitude > 90 {
		return fmt.Errorf("latitude %v out of range", loc.Latitude)
	}
	if loc.Longitude < -180 || loc.Longitude > 180 {
		return fmt.Errorf("longitude %v out of range", loc.Longitude)
	}
	return nil
}

// NewProviderFromConfig creates a LocationProvider based on the location config type.
func NewProviderFromConfig(cfg config.LocationConfig) (alerts.LocationProvider, error) {
	switch cfg.Type {
	case "static":
		return NewStatic(cfg.Latitude, cfg.Longitude)
	case "file":
		if cfg.Path == "" {
			return nil, fmt.Errorf("path required for file location provider")
		}
		return NewFile(cfg.Path), nil
	case "none", "":
		return Unavailable{}, nil
	default:
		return nil, fmt.Errorf("unknown location type: %s", cfg.Type)
	}
}

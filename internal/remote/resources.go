package remote

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"alertsync/internal/alerts"
)

// ResourceType is the kind of a community resource.
type ResourceType string

const (
	ResourceShelter         ResourceType = "Shelter"
	ResourceHospital        ResourceType = "Hospital"
	ResourcePoliceStation   ResourceType = "Police Station"
	ResourceFireStation     ResourceType = "Fire Station"
	ResourceCommunityCenter ResourceType = "Community Center"
)

// Resource is a community facility near the user.
type Resource struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Type        ResourceType    `json:"type"`
	Location    alerts.Location `json:"location"`
	Description string          `json:"description,omitempty"`
	ContactInfo string          `json:"contact_info,omitempty"`
}

// ResourcesClient looks up community resources.
type ResourcesClient struct {
	auth *AuthClient
}

func NewResourcesClient(auth *AuthClient) *ResourcesClient {
	return &ResourcesClient{auth: auth}
}

// Nearby returns the resources within radius of the coordinate.
func (c *ResourcesClient) Nearby(ctx context.Context, latitude, longitude, radius float64) ([]Resource, error) {
	var out []Resource
	err := c.auth.authorized(ctx, request{
		method: http.MethodGet,
		path:   "/resources/nearby",
		query: url.Values{
			"latitude":  {formatFloat(latitude)},
			"longitude": {formatFloat(longitude)},
			"radius":    {formatFloat(radius)},
		},
		out: &out,
	})
	if err != nil {
		return nil, fmt.Errorf("fetching nearby resources: %w", err)
	}
	return out, nil
}

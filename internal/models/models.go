package models

import (
	"time"

	"github.com/google/uuid"
)

// Feature lifecycle states.
const (
	StatusQueued = "queued"
	StatusDone   = "done"
)

// Feature is a named point of interest stored as geography(POINT, 4326).
type Feature struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Status    string    `json:"status"` // queued, done
	Attempts  int       `json:"attempts"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Lat       float64   `json:"lat"`
	Lon       float64   `json:"lon"`
}

// FeatureDetail is a feature joined with its optional footprint.
// BufferM and BufferAreaM2 are nil until the feature has been buffered.
type FeatureDetail struct {
	Feature
	BufferM      *int     `json:"buffer_m"`
	BufferAreaM2 *float64 `json:"buffer_area_m2"`
}

// NearbyFeature annotates a detail row with geodesic distance from the
// query point, in meters.
type NearbyFeature struct {
	FeatureDetail
	DistanceM float64 `json:"distance_m"`
}

// Footprint is the derived buffer polygon for a feature. One row per
// feature; created by the buffering step, never updated in place.
type Footprint struct {
	FeatureID uuid.UUID `json:"feature_id"`
	BufferM   int       `json:"buffer_m"`
	AreaM2    float64   `json:"area_m2"`
	CreatedAt time.Time `json:"created_at"`
}

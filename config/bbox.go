package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// BoundingBox scopes a discovery pass to a geographic viewport. Zoom is
// informational only; the four bounds are required.
type BoundingBox struct {
	MinLatitude  float64 `json:"min_latitude"`
	MinLongitude float64 `json:"min_longitude"`
	MaxLatitude  float64 `json:"max_latitude"`
	MaxLongitude float64 `json:"max_longitude"`
	Zoom         float64 `json:"zoom,omitempty"`
}

// LoadBoundingBox reads and validates a bounding-box config file. Any
// problem here is a configuration error: fatal to the run, before work is
// scheduled.
func LoadBoundingBox(path string) (*BoundingBox, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("bbox config %q: %w", path, err)
	}

	// Decode into a map first so absent fields can be told apart from
	// zero-valued ones.
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("bbox config %q: invalid JSON: %w", path, err)
	}
	for _, key := range []string{"min_latitude", "min_longitude", "max_latitude", "max_longitude"} {
		if _, ok := raw[key]; !ok {
			return nil, fmt.Errorf("bbox config %q: missing required field %q", path, key)
		}
	}

	var bbox BoundingBox
	if err := json.Unmarshal(data, &bbox); err != nil {
		return nil, fmt.Errorf("bbox config %q: %w", path, err)
	}

	if err := bbox.Validate(); err != nil {
		return nil, fmt.Errorf("bbox config %q: %w", path, err)
	}
	return &bbox, nil
}

// Validate checks the bounds are within WGS84 ranges and properly ordered.
func (b *BoundingBox) Validate() error {
	if b.MinLatitude < -90 || b.MaxLatitude > 90 {
		return fmt.Errorf("latitude out of range [-90,90]: min=%v max=%v", b.MinLatitude, b.MaxLatitude)
	}
	if b.MinLongitude < -180 || b.MaxLongitude > 180 {
		return fmt.Errorf("longitude out of range [-180,180]: min=%v max=%v", b.MinLongitude, b.MaxLongitude)
	}
	if b.MinLatitude > b.MaxLatitude {
		return fmt.Errorf("min_latitude %v greater than max_latitude %v", b.MinLatitude, b.MaxLatitude)
	}
	if b.MinLongitude > b.MaxLongitude {
		return fmt.Errorf("min_longitude %v greater than max_longitude %v", b.MinLongitude, b.MaxLongitude)
	}
	return nil
}

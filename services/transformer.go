package services

import (
	"fmt"
	"strconv"
	"strings"

	"divar-ingest/models"
)

// MalformedInputError reports a raw field set lacking a field the canonical
// record cannot exist without. These listings are skipped, never persisted.
type MalformedInputError struct {
	ExternalID string
	Field      string
}

func (e *MalformedInputError) Error() string {
	return fmt.Sprintf("malformed input for %q: missing %s", e.ExternalID, e.Field)
}

// Transformer normalizes raw field sets into canonical PropertyRecords.
// It performs no I/O and is total: any raw field set carrying an external id
// and a title yields a valid record, however sparse the rest is.
type Transformer struct {
	maxImages int
}

// NewTransformer creates a Transformer capping image references at maxImages.
func NewTransformer(maxImages int) *Transformer {
	return &Transformer{maxImages: maxImages}
}

// Transform builds the canonical record. Only a missing external id or title
// is an error (MalformedInputError); every other defect degrades to a nil
// field.
func (t *Transformer) Transform(raw *models.RawFields) (*models.PropertyRecord, error) {
	if strings.TrimSpace(raw.ExternalID) == "" {
		return nil, &MalformedInputError{ExternalID: raw.ExternalID, Field: "external_id"}
	}
	title := collapseWhitespace(raw.Title)
	if title == "" || title == "N/A" {
		return nil, &MalformedInputError{ExternalID: raw.ExternalID, Field: "title"}
	}

	rec := &models.PropertyRecord{
		ExternalID:    strings.TrimSpace(raw.ExternalID),
		Title:         title,
		Description:   collapseWhitespace(raw.Description),
		Price:         ParseLocalizedNumberPtr(raw.PriceText),
		PricePerMeter: ParseLocalizedNumberPtr(raw.PricePerMeterText),
		Location:      validLocation(raw.Latitude, raw.Longitude),
		Attributes:    normalizeAttributes(raw.Attributes),
		ImageSources:  capImages(FilterThumbnails(raw.ImageURLs), t.maxImages),
		FetchedAt:     raw.FetchedAt,
	}
	return rec, nil
}

// validLocation returns a Location only when both coordinates are present
// and inside WGS84 range; anything else is stored as no location rather
// than a bogus point.
func validLocation(lat, lon *float64) *models.Location {
	if lat == nil || lon == nil {
		return nil
	}
	if *lat < -90 || *lat > 90 || *lon < -180 || *lon > 180 {
		return nil
	}
	return &models.Location{Latitude: *lat, Longitude: *lon}
}

// normalizeAttributes trims and case-folds keys while leaving values exactly
// as extracted. Feature rows (no value, availability flag instead) are
// stored with their availability as the value. Unknown labels pass through
// verbatim.
func normalizeAttributes(raw []models.RawAttribute) []models.Attribute {
	if len(raw) == 0 {
		return nil
	}

	attrs := make([]models.Attribute, 0, len(raw))
	seen := make(map[string]struct{}, len(raw))
	for _, a := range raw {
		key := strings.ToLower(strings.TrimSpace(a.Label))
		if key == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}

		value := a.Value
		if value == "" && a.IconKey != "" {
			value = strconv.FormatBool(a.Available)
		}
		attrs = append(attrs, models.Attribute{Key: key, Value: value})
	}
	return attrs
}

// FilterThumbnails drops a thumbnail-sized variant when its full-size
// sibling is also in the list. Thumbnails without a full-size sibling are
// kept — a small image beats no image.
func FilterThumbnails(urls []string) []string {
	fullSize := make(map[string]struct{}, len(urls))
	for _, u := range urls {
		if !strings.Contains(u, "/thumbnail/") {
			fullSize[u] = struct{}{}
		}
	}

	out := make([]string, 0, len(urls))
	seen := make(map[string]struct{}, len(urls))
	for _, u := range urls {
		if strings.Contains(u, "/thumbnail/") {
			full := strings.Replace(u, "/thumbnail/", "/", 1)
			if _, ok := fullSize[full]; ok {
				continue
			}
		}
		if _, dup := seen[u]; dup {
			continue
		}
		seen[u] = struct{}{}
		out = append(out, u)
	}
	return out
}

func capImages(urls []string, max int) []string {
	if max > 0 && len(urls) > max {
		return urls[:max]
	}
	return urls
}

// collapseWhitespace strips leading/trailing whitespace and collapses
// internal runs to single spaces.
func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

package models

import "time"

// ListingToken identifies one upstream listing plus where discovery found it.
// Tokens are immutable; the pipeline consumes each exactly once per run.
type ListingToken struct {
	ExternalID string
	Source     string
}

// RawAttribute is one labeled row exactly as the upstream page/API presents
// it. Feature rows carry an availability flag and an icon key instead of a
// plain value; unknown labels are kept verbatim.
type RawAttribute struct {
	Label     string
	Value     string
	Available bool
	IconKey   string
}

// RawFields holds everything the detail parser could extract for one token,
// before any normalization. Every field except ExternalID is optional —
// a sparse RawFields is still a valid parser result.
type RawFields struct {
	ExternalID        string
	Title             string
	Description       string
	PriceText         string
	PricePerMeterText string
	Latitude          *float64
	Longitude         *float64
	Attributes        []RawAttribute
	ImageURLs         []string
	FetchedAt         time.Time
	PageStatus        int
}

// PropertyType is assigned by the separate classification pass, never by the
// ingestion pipeline itself.
type PropertyType string

const (
	TypeApartment PropertyType = "apartment"
	TypeVilla     PropertyType = "villa"
	TypeLand      PropertyType = "land"
	TypeUnknown   PropertyType = "unknown"
)

// Location is a validated WGS84 coordinate pair.
type Location struct {
	Latitude  float64
	Longitude float64
}

// Attribute is a normalized key/value pair (key trimmed and case-folded,
// value preserved as extracted).
type Attribute struct {
	Key   string
	Value string
}

// PropertyRecord is the canonical entity persisted by the pipeline.
// ExternalID is the idempotency key: re-ingesting the same ExternalID
// updates the existing row in place.
type PropertyRecord struct {
	ID            int64
	ExternalID    string
	Title         string
	Description   string
	Price         *int64
	PricePerMeter *int64
	PropertyType  *PropertyType
	Location      *Location
	Attributes    []Attribute
	ImageSources  []string
	FetchedAt     time.Time
}

// PropertyImage is one re-hosted gallery image. PublicURL stays empty until
// offload completes; rows are immutable afterwards.
type PropertyImage struct {
	PropertyID int64
	ExternalID string
	SourceURL  string
	PublicURL  string
	Position   int
	Featured   bool
}

// SearchDocument is the denormalized, rebuildable projection pushed into the
// search index. It is derived state only — the relational store stays
// authoritative.
type SearchDocument struct {
	ExternalID   string    `json:"external_id"`
	Title        string    `json:"title"`
	Description  string    `json:"description,omitempty"`
	Price        *int64    `json:"price,omitempty"`
	PropertyType string    `json:"property_type,omitempty"`
	Bedrooms     *int64    `json:"bedrooms,omitempty"`
	Area         *int64    `json:"area,omitempty"`
	Location     *Location `json:"location,omitempty"`
	ContextTags  []string  `json:"context_tags,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Suggestion is one completion phrase derived from an indexed property.
type Suggestion struct {
	Text     string
	Kind     string
	Context  string
	Priority int
}

// RunSummary tallies per-item outcomes for the completion report.
type RunSummary struct {
	Discovered       int
	Succeeded        int
	SkippedNotFound  int
	SkippedMalformed int
	Failed           int
	Cancelled        int
	ImagesOffloaded  int
	Indexed          int
	Elapsed          time.Duration
}

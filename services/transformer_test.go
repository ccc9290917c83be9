package services

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"divar-ingest/models"
)

func floatPtr(f float64) *float64 { return &f }

func TestTransformMinimalRecord(t *testing.T) {
	tr := NewTransformer(5)
	raw := &models.RawFields{
		ExternalID: "wZ4bQ7xA",
		Title:      "  آپارتمان ۸۵ متری\n\tنوساز  ",
		FetchedAt:  time.Now(),
	}

	rec, err := tr.Transform(raw)
	if err != nil {
		t.Fatalf("Transform: %v", err)
	}
	if rec.Title != "آپارتمان ۸۵ متری نوساز" {
		t.Errorf("title not collapsed: %q", rec.Title)
	}
	if rec.Price != nil || rec.PricePerMeter != nil || rec.Location != nil {
		t.Error("absent raw fields should yield nil record fields")
	}
}

func TestTransformMissingRequiredFields(t *testing.T) {
	tr := NewTransformer(5)

	tests := []struct {
		name string
		raw  *models.RawFields
	}{
		{"no external id", &models.RawFields{Title: "ok"}},
		{"no title", &models.RawFields{ExternalID: "wZ4bQ7xA"}},
		{"placeholder title", &models.RawFields{ExternalID: "wZ4bQ7xA", Title: "N/A"}},
	}

	for _, tt := range tests {
		_, err := tr.Transform(tt.raw)
		var malformed *MalformedInputError
		if !errors.As(err, &malformed) {
			t.Errorf("%s: expected MalformedInputError, got %v", tt.name, err)
		}
	}
}

func TestTransformRejectsOutOfRangeCoordinates(t *testing.T) {
	tr := NewTransformer(5)
	raw := &models.RawFields{
		ExternalID: "wZ4bQ7xA",
		Title:      "ویلا",
		Latitude:   floatPtr(200),
		Longitude:  floatPtr(51.4),
	}

	rec, err := tr.Transform(raw)
	if err != nil {
		t.Fatalf("Transform: %v", err)
	}
	if rec.Location != nil {
		t.Errorf("out-of-range latitude should drop location, got %+v", rec.Location)
	}
}

func TestTransformParsesLocalizedPrices(t *testing.T) {
	tr := NewTransformer(5)
	raw := &models.RawFields{
		ExternalID:        "wZ4bQ7xA",
		Title:             "آپارتمان",
		PriceText:         "۲٬۵۰۰٬۰۰۰٬۰۰۰ تومان",
		PricePerMeterText: "۲۹٬۴۰۰٬۰۰۰ تومان",
	}

	rec, err := tr.Transform(raw)
	if err != nil {
		t.Fatalf("Transform: %v", err)
	}
	if rec.Price == nil || *rec.Price != 2_500_000_000 {
		t.Errorf("price: got %v, want 2500000000", rec.Price)
	}
	if rec.PricePerMeter == nil || *rec.PricePerMeter != 29_400_000 {
		t.Errorf("price per meter: got %v, want 29400000", rec.PricePerMeter)
	}
}

func TestTransformCapsImages(t *testing.T) {
	tr := NewTransformer(5)
	raw := &models.RawFields{ExternalID: "wZ4bQ7xA", Title: "آپارتمان"}
	for i := 0; i < 10; i++ {
		raw.ImageURLs = append(raw.ImageURLs, fmt.Sprintf("https://s100.divarcdn.com/static/photo/%d.jpg", i))
	}

	rec, err := tr.Transform(raw)
	if err != nil {
		t.Fatalf("Transform: %v", err)
	}
	if len(rec.ImageSources) != 5 {
		t.Errorf("image cap: got %d, want 5", len(rec.ImageSources))
	}
	if rec.ImageSources[0] != raw.ImageURLs[0] {
		t.Error("image order should follow source order")
	}
}

func TestFilterThumbnails(t *testing.T) {
	urls := []string{
		"https://s100.divarcdn.com/static/thumbnail/a.jpg",
		"https://s100.divarcdn.com/static/a.jpg",
		"https://s100.divarcdn.com/static/thumbnail/orphan.jpg",
		"https://s100.divarcdn.com/static/a.jpg",
	}

	got := FilterThumbnails(urls)
	want := []string{
		"https://s100.divarcdn.com/static/a.jpg",
		"https://s100.divarcdn.com/static/thumbnail/orphan.jpg",
	}
	if len(got) != len(want) {
		t.Fatalf("got %d urls %v, want %d", len(got), got, len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("url %d: got %q, want %q", i, got[i], want[i])
		}
	}
}

func TestNormalizeAttributesFeatureRows(t *testing.T) {
	tr := NewTransformer(5)
	raw := &models.RawFields{
		ExternalID: "wZ4bQ7xA",
		Title:      "آپارتمان",
		Attributes: []models.RawAttribute{
			{Label: " متراژ ", Value: "۸۵"},
			{Label: "آسانسور", Available: true, IconKey: "ELEVATOR"},
			{Label: "پارکینگ", Available: false, IconKey: "PARKING"},
			{Label: "متراژ", Value: "duplicate, must drop"},
		},
	}

	rec, err := tr.Transform(raw)
	if err != nil {
		t.Fatalf("Transform: %v", err)
	}
	if len(rec.Attributes) != 3 {
		t.Fatalf("got %d attributes, want 3: %+v", len(rec.Attributes), rec.Attributes)
	}
	if rec.Attributes[0].Key != "متراژ" || rec.Attributes[0].Value != "۸۵" {
		t.Errorf("value row mangled: %+v", rec.Attributes[0])
	}
	if rec.Attributes[1].Value != "true" || rec.Attributes[2].Value != "false" {
		t.Errorf("feature availability not materialized: %+v", rec.Attributes[1:])
	}
}

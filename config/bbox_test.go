package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeBBoxFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "bbox.json")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadBoundingBox(t *testing.T) {
	path := writeBBoxFile(t, `{
		"min_latitude": 35.6, "min_longitude": 51.2,
		"max_latitude": 35.8, "max_longitude": 51.5,
		"zoom": 12
	}`)

	bbox, err := LoadBoundingBox(path)
	if err != nil {
		t.Fatalf("LoadBoundingBox: %v", err)
	}
	if bbox.MinLatitude != 35.6 || bbox.MaxLongitude != 51.5 {
		t.Errorf("bounds not parsed: %+v", bbox)
	}
	if bbox.Zoom != 12 {
		t.Errorf("zoom: got %v, want 12", bbox.Zoom)
	}
}

func TestLoadBoundingBoxRejectsBadInput(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{"missing field", `{"min_latitude": 35.6, "min_longitude": 51.2, "max_latitude": 35.8}`, "missing required field"},
		{"invalid json", `{"min_latitude": `, "invalid JSON"},
		{"latitude out of range", `{"min_latitude": -99, "min_longitude": 51.2, "max_latitude": 35.8, "max_longitude": 51.5}`, "latitude out of range"},
		{"inverted bounds", `{"min_latitude": 36.0, "min_longitude": 51.2, "max_latitude": 35.8, "max_longitude": 51.5}`, "greater than"},
	}

	for _, tt := range tests {
		path := writeBBoxFile(t, tt.content)
		_, err := LoadBoundingBox(path)
		if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
			t.Errorf("%s: got error %v, want substring %q", tt.name, err, tt.wantErr)
		}
	}
}

func TestLoadBoundingBoxMissingFile(t *testing.T) {
	if _, err := LoadBoundingBox(filepath.Join(t.TempDir(), "nope.json")); err == nil {
		t.Error("expected error for missing file")
	}
}

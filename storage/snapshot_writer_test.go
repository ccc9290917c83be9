package storage

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"divar-ingest/models"
)

func TestSnapshotWriterRoundTrip(t *testing.T) {
	dir := t.TempDir()
	w, err := NewRawSnapshotWriter(dir)
	if err != nil {
		t.Fatal(err)
	}

	raw := &models.RawFields{
		ExternalID: "wZ4bQ7xA",
		Title:      "آپارتمان ۸۵ متری",
		PriceText:  "۲٬۵۰۰٬۰۰۰٬۰۰۰ تومان",
		FetchedAt:  time.Now().UTC(),
	}
	if err := w.Write(raw); err != nil {
		t.Fatalf("Write: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "wZ4bQ7xA.json"))
	if err != nil {
		t.Fatalf("snapshot file missing: %v", err)
	}

	var back models.RawFields
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("snapshot not valid JSON: %v", err)
	}
	if back.Title != raw.Title || back.PriceText != raw.PriceText {
		t.Errorf("snapshot content mangled: %+v", back)
	}
}

func TestSnapshotWriterOverwrites(t *testing.T) {
	dir := t.TempDir()
	w, err := NewRawSnapshotWriter(dir)
	if err != nil {
		t.Fatal(err)
	}

	if err := w.Write(&models.RawFields{ExternalID: "tok", Title: "first"}); err != nil {
		t.Fatal(err)
	}
	if err := w.Write(&models.RawFields{ExternalID: "tok", Title: "second"}); err != nil {
		t.Fatal(err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("re-fetch should overwrite, got %d files", len(entries))
	}
}

func TestSnapshotWriterRejectsPathEscapingTokens(t *testing.T) {
	dir := t.TempDir()
	w, err := NewRawSnapshotWriter(dir)
	if err != nil {
		t.Fatal(err)
	}

	for _, token := range []string{"../escape", "a/b", "/etc/passwd", ""} {
		if err := w.Write(&models.RawFields{ExternalID: token, Title: "x"}); err == nil {
			t.Errorf("token %q should be rejected", token)
		}
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("no files should be written for unsafe tokens, found %d", len(entries))
	}
}

func TestSnapshotWriterCreatesNestedDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "a", "b")
	if _, err := NewRawSnapshotWriter(dir); err != nil {
		t.Fatalf("nested dir: %v", err)
	}
	if _, err := os.Stat(dir); err != nil {
		t.Errorf("directory not created: %v", err)
	}
}

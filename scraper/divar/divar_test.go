package divar

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"divar-ingest/config"
	"divar-ingest/utils"
)

// fakePages serves canned HTML per URL without a browser.
type fakePages struct {
	html   string
	status int
	err    error
	calls  int
}

func (f *fakePages) Fetch(ctx context.Context, url string) (string, int, error) {
	f.calls++
	return f.html, f.status, f.err
}

func fetcherConfig(apiURL string) *config.Config {
	return &config.Config{
		DetailPageURL:  "https://divar.ir/v/%s",
		DetailAPIURL:   apiURL + "/%s",
		MaxRetries:     2,
		RateLimitMs:    0,
		FetchTimeoutMs: 2000,
	}
}

func TestFetchDetailsCombinesPageAndAPI(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, detailAPIJSON)
	}))
	defer srv.Close()

	pages := &fakePages{html: detailPageHTML, status: http.StatusOK}
	f := New(fetcherConfig(srv.URL), utils.NewLogger(), pages)

	raw, err := f.FetchDetails(context.Background(), "wZ4bQ7xA")
	if err != nil {
		t.Fatalf("FetchDetails: %v", err)
	}
	if raw.Title == "" || len(raw.ImageURLs) == 0 {
		t.Errorf("page fields missing: %+v", raw)
	}
	if raw.PriceText == "" || raw.Latitude == nil {
		t.Errorf("API fields missing: price=%q lat=%v", raw.PriceText, raw.Latitude)
	}
}

func TestFetchDetailsNotFoundIsFinal(t *testing.T) {
	pages := &fakePages{status: http.StatusNotFound}
	f := New(fetcherConfig("http://unused"), utils.NewLogger(), pages)

	_, err := f.FetchDetails(context.Background(), "gone")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if pages.calls != 1 {
		t.Errorf("not-found must not be retried, got %d fetches", pages.calls)
	}
}

func TestFetchDetailsDegradesWithoutAPI(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	pages := &fakePages{html: detailPageHTML, status: http.StatusOK}
	cfg := fetcherConfig(srv.URL)
	cfg.MaxRetries = 1
	f := New(cfg, utils.NewLogger(), pages)

	raw, err := f.FetchDetails(context.Background(), "wZ4bQ7xA")
	if err != nil {
		t.Fatalf("API outage should not fail the token: %v", err)
	}
	if raw.Title == "" {
		t.Error("page data should survive an API outage")
	}
	if raw.PriceText != "" || raw.Latitude != nil {
		t.Error("no API fields expected when the API is down")
	}
}

func TestFetchDetailsUntitledPageIsParseError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"sections": []any{}})
	}))
	defer srv.Close()

	pages := &fakePages{html: "<html><body><div>no title here</div></body></html>", status: http.StatusOK}
	f := New(fetcherConfig(srv.URL), utils.NewLogger(), pages)

	_, err := f.FetchDetails(context.Background(), "wZ4bQ7xA")
	var parseErr *ParseError
	if !errors.As(err, &parseErr) {
		t.Fatalf("expected ParseError, got %v", err)
	}
	if parseErr.Field != "title" {
		t.Errorf("field: got %q, want title", parseErr.Field)
	}
}

func TestFetchDetailsBlockedPageIsFetchError(t *testing.T) {
	// Anti-bot responses carry a body; that must not pass for a fetched page.
	pages := &fakePages{html: "<html><body>Access denied</body></html>", status: http.StatusForbidden}
	cfg := fetcherConfig("http://unused")
	cfg.MaxRetries = 1
	f := New(cfg, utils.NewLogger(), pages)

	_, err := f.FetchDetails(context.Background(), "wZ4bQ7xA")
	var fetchErr *FetchError
	if !errors.As(err, &fetchErr) {
		t.Fatalf("expected FetchError for a blocked page, got %v", err)
	}
	var parseErr *ParseError
	if errors.As(err, &parseErr) {
		t.Error("a blocked page must not be classified as malformed")
	}
}

func TestFetchDetailsTransientExhaustionIsFetchError(t *testing.T) {
	pages := &fakePages{status: http.StatusBadGateway}
	f := New(fetcherConfig("http://unused"), utils.NewLogger(), pages)

	_, err := f.FetchDetails(context.Background(), "wZ4bQ7xA")
	var fetchErr *FetchError
	if !errors.As(err, &fetchErr) {
		t.Fatalf("expected FetchError, got %v", err)
	}
	if pages.calls != 2 {
		t.Errorf("expected 2 attempts, got %d", pages.calls)
	}
}

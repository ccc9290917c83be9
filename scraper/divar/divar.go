// Package divar retrieves and parses Divar real-estate detail pages into raw
// field sets. Rendering is delegated to a PageFetcher collaborator; the
// structured detail API supplies attributes and coordinates.
package divar

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"divar-ingest/config"
	"divar-ingest/models"
	"divar-ingest/utils"
)

// PageFetcher supplies rendered HTML for a URL. Implementations must honor
// the context deadline and distinguish transient failures from not-found via
// the returned status.
type PageFetcher interface {
	Fetch(ctx context.Context, url string) (html string, status int, err error)
}

// Fetcher turns one ListingToken into a RawFields, or into a classified
// failure: ErrNotFound (never retried), *ParseError (recorded, not
// retried), or *FetchError (transient retries exhausted).
type Fetcher struct {
	cfg    *config.Config
	logger *utils.Logger
	pages  PageFetcher
	api    *apiClient
	retry  *utils.RetryConfig
}

// New creates a Fetcher. The rate limiter is shared between page and API
// calls so the combined request rate stays bounded per host.
func New(cfg *config.Config, logger *utils.Logger, pages PageFetcher) *Fetcher {
	limiter := rate.NewLimiter(rate.Every(time.Duration(cfg.RateLimitMs)*time.Millisecond), 1)
	timeout := time.Duration(cfg.FetchTimeoutMs) * time.Millisecond

	return &Fetcher{
		cfg:    cfg,
		logger: logger,
		pages:  pages,
		api:    newAPIClient(cfg.DetailAPIURL, timeout, limiter),
		retry: &utils.RetryConfig{
			MaxAttempts: cfg.MaxRetries,
			BaseDelay:   2 * time.Second,
			Logger:      logger,
		},
	}
}

// FetchDetails retrieves and parses one listing. The rendered page supplies
// title, description and gallery; the API supplies attributes, price rows
// and coordinates. An API outage degrades to a page-only field set rather
// than failing the token — the original record fields all come from the page.
func (f *Fetcher) FetchDetails(ctx context.Context, token string) (*models.RawFields, error) {
	raw := &models.RawFields{
		ExternalID: token,
		FetchedAt:  time.Now().UTC(),
	}

	url := fmt.Sprintf(f.cfg.DetailPageURL, token)

	var html string
	err := f.retry.Do(ctx, fmt.Sprintf("fetch-page-%s", token), func() error {
		h, status, err := f.pages.Fetch(ctx, url)
		if err != nil {
			return err
		}
		if status == http.StatusNotFound || status == http.StatusGone {
			return utils.Permanent(ErrNotFound)
		}
		// Any other error status (429, 403 anti-bot pages, 5xx) is a fetch
		// problem, even when a body came back with it.
		if status >= 400 {
			return fmt.Errorf("page status %d", status)
		}
		if h == "" {
			return fmt.Errorf("empty document (status %d)", status)
		}
		html = h
		raw.PageStatus = status
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, &FetchError{Token: token, Err: err}
	}

	if err := parseDetailHTML(html, raw); err != nil {
		return nil, &ParseError{Token: token, Field: "document"}
	}

	var payload *apiResponse
	err = f.retry.Do(ctx, fmt.Sprintf("fetch-api-%s", token), func() error {
		p, err := f.api.fetch(ctx, token)
		if err != nil {
			return err
		}
		payload = p
		return nil
	})
	switch {
	case errors.Is(err, ErrNotFound):
		return nil, ErrNotFound
	case err != nil:
		f.logger.Warn("[divar] %s: detail API unavailable, using page data only: %v", token, err)
	default:
		applyAPIData(payload, raw)
	}

	if raw.Title == "" {
		return nil, &ParseError{Token: token, Field: "title"}
	}

	f.logger.Debug("[divar] %s: parsed %d attributes, %d images",
		token, len(raw.Attributes), len(raw.ImageURLs))
	return raw, nil
}

// Package discovery enumerates candidate listing tokens, either by paging
// the upstream search endpoint over a bounding box or by reading a static
// token list. Output is deduplicated across all sources.
package discovery

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"divar-ingest/config"
	"divar-ingest/models"
	"divar-ingest/utils"
)

// Discoverer produces the deduplicated token stream feeding the pipeline.
// Reusing one Discoverer across sources keeps the dedup set shared, so a
// token found by both bbox and list modes is emitted once.
type Discoverer struct {
	cfg     *config.Config
	logger  *utils.Logger
	client  *http.Client
	limiter *rate.Limiter
	retry   *utils.RetryConfig
	seen    *utils.TokenSet
}

// New creates a Discoverer.
func New(cfg *config.Config, logger *utils.Logger) *Discoverer {
	return &Discoverer{
		cfg:     cfg,
		logger:  logger,
		client:  &http.Client{Timeout: time.Duration(cfg.FetchTimeoutMs) * time.Millisecond},
		limiter: rate.NewLimiter(rate.Every(time.Duration(cfg.RateLimitMs)*time.Millisecond), 1),
		retry: &utils.RetryConfig{
			MaxAttempts: cfg.MaxRetries,
			BaseDelay:   time.Second,
			Logger:      logger,
		},
		seen: utils.NewTokenSet(),
	}
}

// searchResponse is the slice of the search payload discovery consumes.
type searchResponse struct {
	ListWidgets []struct {
		Data struct {
			Token string `json:"token"`
		} `json:"data"`
	} `json:"list_widgets"`
	LastPostDate string `json:"last_post_date"`
}

// FromBoundingBox pages the search endpoint over bbox until a page yields
// nothing new, the cursor repeats, or the page cap is hit. A page failing
// after retries forfeits only the remaining pages: tokens collected so far
// are returned and the failure is reported, not fatal.
func (d *Discoverer) FromBoundingBox(ctx context.Context, bbox *config.BoundingBox) []models.ListingToken {
	var tokens []models.ListingToken
	cursor := ""

	for page := 1; page <= d.cfg.MaxPages; page++ {
		var resp *searchResponse
		err := d.retry.Do(ctx, fmt.Sprintf("search-page-%d", page), func() error {
			r, err := d.fetchSearchPage(ctx, bbox, cursor)
			if err != nil {
				return err
			}
			resp = r
			return nil
		})
		if err != nil {
			d.logger.Error("[discovery] bbox page %d abandoned: %v (keeping %d tokens collected so far)",
				page, err, len(tokens))
			break
		}

		newOnPage := 0
		for _, w := range resp.ListWidgets {
			tok := strings.TrimSpace(w.Data.Token)
			if tok == "" || !d.seen.Add(tok) {
				continue
			}
			tokens = append(tokens, models.ListingToken{
				ExternalID: tok,
				Source:     fmt.Sprintf("bbox page %d", page),
			})
			newOnPage++
		}

		d.logger.Info("[discovery] bbox page %d: %d listings, %d new", page, len(resp.ListWidgets), newOnPage)

		// Empty page or a page of repeats means the upstream is done.
		if len(resp.ListWidgets) == 0 || newOnPage == 0 {
			break
		}
		// A missing or repeated cursor would loop forever.
		if resp.LastPostDate == "" || resp.LastPostDate == cursor {
			break
		}
		cursor = resp.LastPostDate
	}

	return tokens
}

func (d *Discoverer) fetchSearchPage(ctx context.Context, bbox *config.BoundingBox, cursor string) (*searchResponse, error) {
	if err := d.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	body, err := json.Marshal(searchPayload(d.cfg.CityID, bbox, cursor))
	if err != nil {
		return nil, fmt.Errorf("search payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.cfg.SearchAPIURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("search request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json, text/plain, */*")

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search call: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("search status %d", resp.StatusCode)
	}

	var payload searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("search decode: %w", err)
	}
	return &payload, nil
}

// searchPayload builds the upstream request body. The cursor rides in the
// additional form data as the last seen post date.
func searchPayload(cityID string, bbox *config.BoundingBox, cursor string) map[string]any {
	additional := map[string]any{
		"sort": map[string]any{"str": map[string]any{"value": "sort_date"}},
	}
	if cursor != "" {
		additional["last_post_date"] = map[string]any{"str": map[string]any{"value": cursor}}
	}

	return map[string]any{
		"city_ids":    []string{cityID},
		"source_view": "CATEGORY",
		"map_state": map[string]any{
			"camera_info": map[string]any{
				"bbox": map[string]any{
					"min_latitude":  bbox.MinLatitude,
					"min_longitude": bbox.MinLongitude,
					"max_latitude":  bbox.MaxLatitude,
					"max_longitude": bbox.MaxLongitude,
				},
				"place_hash": cityID + "||real-estate",
				"zoom":       bbox.Zoom,
			},
			"page_state": "HALF_STATE",
		},
		"search_data": map[string]any{
			"form_data": map[string]any{
				"data": map[string]any{
					"category": map[string]any{"str": map[string]any{"value": "residential-sell"}},
				},
			},
			"server_payload": map[string]any{
				"@type":                "type.googleapis.com/widgets.SearchData.ServerPayload",
				"additional_form_data": map[string]any{"data": additional},
			},
		},
	}
}

// FromList reads one token per non-empty, non-comment line. A missing or
// unreadable file is a configuration error: fatal before any work starts.
func (d *Discoverer) FromList(path string) ([]models.ListingToken, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("token list %q: %w", path, err)
	}
	defer f.Close()

	var tokens []models.ListingToken
	source := "list:" + path

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		tok := strings.TrimSpace(scanner.Text())
		if tok == "" || strings.HasPrefix(tok, "#") {
			continue
		}
		if !d.seen.Add(tok) {
			continue
		}
		tokens = append(tokens, models.ListingToken{ExternalID: tok, Source: source})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("token list %q: %w", path, err)
	}

	return tokens, nil
}

// Single wraps one literal token (the -token test mode). Returns nil when
// the token was already discovered through another source.
func (d *Discoverer) Single(token string) []models.ListingToken {
	token = strings.TrimSpace(token)
	if token == "" || !d.seen.Add(token) {
		return nil
	}
	return []models.ListingToken{{ExternalID: token, Source: "flag"}}
}

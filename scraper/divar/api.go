package divar

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"divar-ingest/utils"
)

// userAgents is rotated per request to spread load fingerprints.
var userAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:121.0) Gecko/20100101 Firefox/121.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.1 Safari/605.1.15",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
}

// apiResponse mirrors the slice of the posts-v2 payload the parser consumes.
type apiResponse struct {
	Sections []struct {
		Widgets []apiWidget `json:"widgets"`
	} `json:"sections"`
	SEO struct {
		PostSEOSchema struct {
			Geo struct {
				Latitude  json.Number `json:"latitude"`
				Longitude json.Number `json:"longitude"`
			} `json:"geo"`
		} `json:"post_seo_schema"`
	} `json:"seo"`
}

type apiWidget struct {
	WidgetType string        `json:"widget_type"`
	Data       apiWidgetData `json:"data"`
}

type apiWidgetData struct {
	Title string    `json:"title"`
	Value string    `json:"value"`
	Items []apiItem `json:"items"`
	Icon  struct {
		IconName string `json:"icon_name"`
	} `json:"icon"`
	Action struct {
		Type    string `json:"type"`
		Payload struct {
			ModalPage struct {
				WidgetList []apiWidget `json:"widget_list"`
			} `json:"modal_page"`
		} `json:"payload"`
	} `json:"action"`
}

type apiItem struct {
	Title     string `json:"title"`
	Value     string `json:"value"`
	Available bool   `json:"available"`
	Icon      struct {
		IconName string `json:"icon_name"`
	} `json:"icon"`
}

// apiClient talks to the structured detail endpoint. All calls pass through
// a shared token-bucket limiter — the admission control protecting the
// upstream alongside the worker-pool bound.
type apiClient struct {
	urlFormat string
	client    *http.Client
	limiter   *rate.Limiter
}

func newAPIClient(urlFormat string, timeout time.Duration, limiter *rate.Limiter) *apiClient {
	return &apiClient{
		urlFormat: urlFormat,
		client:    &http.Client{Timeout: timeout},
		limiter:   limiter,
	}
}

// fetch retrieves the structured payload for one token. A 404 is permanent;
// 429 and 5xx surface as plain errors so the retry layer backs off.
func (a *apiClient) fetch(ctx context.Context, token string) (*apiResponse, error) {
	if err := a.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	url := fmt.Sprintf(a.urlFormat, token)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("detail api request: %w", err)
	}
	req.Header.Set("User-Agent", userAgents[rand.Intn(len(userAgents))])
	req.Header.Set("Accept", "application/json, text/plain, */*")
	req.Header.Set("Accept-Language", "fa-IR,fa;q=0.9,en-US;q=0.8,en;q=0.7")
	req.Header.Set("Referer", "https://divar.ir/")

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("detail api call: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return nil, utils.Permanent(ErrNotFound)
	default:
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("detail api status %d", resp.StatusCode)
	}

	var payload apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("detail api decode: %w", err)
	}
	return &payload, nil
}

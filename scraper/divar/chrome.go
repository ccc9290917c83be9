package divar

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/chromedp/chromedp"

	"divar-ingest/config"
	"divar-ingest/utils"
)

// ChromeFetcher renders detail pages in headless Chrome. It is the
// page-source collaborator: everything else in the package consumes plain
// HTML and never touches the browser.
type ChromeFetcher struct {
	allocCtx context.Context
	cancels  []context.CancelFunc
	timeout  time.Duration
	logger   *utils.Logger
}

// NewChromeFetcher starts a shared browser allocator reused across all
// detail fetches in the run.
func NewChromeFetcher(cfg *config.Config, logger *utils.Logger) *ChromeFetcher {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-setuid-sandbox", true),
		chromedp.UserAgent("Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 "+
			"(KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"),
	)
	if bin := findChromeBinary(cfg.ChromeBin); bin != "" {
		logger.Info("[divar] Using browser binary: %s", bin)
		opts = append(opts, chromedp.ExecPath(bin))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.Background(), opts...)

	// Suppress chromedp log noise
	silentCtx, cancelSilent := chromedp.NewContext(allocCtx, chromedp.WithLogf(func(string, ...interface{}) {}))

	return &ChromeFetcher{
		allocCtx: silentCtx,
		cancels:  []context.CancelFunc{cancelSilent, cancelAlloc},
		timeout:  time.Duration(cfg.FetchTimeoutMs) * time.Millisecond,
		logger:   logger,
	}
}

// Fetch navigates to url, lets the gallery lazy-load, and returns the
// rendered HTML with the navigation HTTP status.
func (c *ChromeFetcher) Fetch(ctx context.Context, url string) (string, int, error) {
	tabCtx, cancelTab := chromedp.NewContext(c.allocCtx)
	defer cancelTab()

	tabCtx, cancelTimeout := context.WithTimeout(tabCtx, c.timeout)
	defer cancelTimeout()

	// Tie tab lifetime to the caller's context as well.
	go func() {
		select {
		case <-ctx.Done():
			cancelTab()
		case <-tabCtx.Done():
		}
	}()

	resp, err := chromedp.RunResponse(tabCtx, chromedp.Navigate(url))
	if err != nil {
		return "", 0, fmt.Errorf("navigate %s: %w", url, err)
	}
	status := 0
	if resp != nil {
		status = int(resp.Status)
	}

	var html string
	err = chromedp.Run(tabCtx,
		chromedp.Sleep(2*time.Second),
		// Scroll through the page so the image carousel loads.
		chromedp.Evaluate(`window.scrollTo(0, document.body.scrollHeight)`, nil),
		chromedp.Sleep(1*time.Second),
		chromedp.Evaluate(`window.scrollTo(0, 0)`, nil),
		chromedp.OuterHTML("html", &html),
	)
	if err != nil {
		return "", status, fmt.Errorf("render %s: %w", url, err)
	}

	return html, status, nil
}

// Close tears down the shared browser.
func (c *ChromeFetcher) Close() {
	for _, cancel := range c.cancels {
		cancel()
	}
}

// findChromeBinary locates a Chrome/Chromium binary, preferring the
// configured path.
func findChromeBinary(configured string) string {
	if configured != "" {
		return configured
	}

	names := []string{"google-chrome-stable", "google-chrome", "chromium", "chromium-browser"}
	for _, name := range names {
		if path, err := exec.LookPath(name); err == nil {
			return path
		}
	}

	paths := []string{
		"/usr/bin/google-chrome-stable",
		"/usr/bin/google-chrome",
		"/usr/bin/chromium-browser",
		"/usr/bin/chromium",
		"/snap/bin/chromium",
		"/opt/google/chrome/google-chrome",
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}

	return ""
}

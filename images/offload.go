// Package images downloads a property's gallery images and re-hosts them in
// durable object storage, recording the resulting public URLs.
package images

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"divar-ingest/config"
	"divar-ingest/models"
	"divar-ingest/storage"
	"divar-ingest/utils"
)

// Offloader re-hosts images for one property at a time. Idempotent: when a
// property already has re-hosted rows, the whole pass is skipped with zero
// downloads or uploads.
type Offloader struct {
	store     storage.ImageStore
	blobs     storage.BlobStore
	logger    *utils.Logger
	retry     *utils.RetryConfig
	client    *http.Client
	tempDir   string
	maxImages int
}

// NewOffloader creates an Offloader writing temp files under cfg.TempDir.
func NewOffloader(cfg *config.Config, logger *utils.Logger, store storage.ImageStore, blobs storage.BlobStore) *Offloader {
	return &Offloader{
		store:  store,
		blobs:  blobs,
		logger: logger,
		retry: &utils.RetryConfig{
			MaxAttempts: cfg.MaxRetries,
			BaseDelay:   time.Second,
			Logger:      logger,
		},
		client:    &http.Client{Timeout: time.Duration(cfg.FetchTimeoutMs) * time.Millisecond},
		tempDir:   cfg.TempDir,
		maxImages: cfg.MaxImages,
	}
}

// Offload downloads each source URL, uploads it under the property's
// external id, and replaces the property's image rows in one transaction.
// One failing image skips only itself. Returns how many images were
// re-hosted (zero for an already-offloaded property).
func (o *Offloader) Offload(ctx context.Context, propertyID int64, externalID string, sourceURLs []string) (int, error) {
	if len(sourceURLs) == 0 {
		return 0, nil
	}
	if o.maxImages > 0 && len(sourceURLs) > o.maxImages {
		sourceURLs = sourceURLs[:o.maxImages]
	}

	existing, err := o.store.ImageCount(ctx, propertyID)
	if err != nil {
		return 0, err
	}
	if existing > 0 {
		o.logger.Debug("[images] %s: %d images already re-hosted, skipping", externalID, existing)
		return 0, nil
	}

	var done []models.PropertyImage
	for i, src := range sourceURLs {
		img, err := o.offloadOne(ctx, externalID, src, i, len(done) == 0)
		if err != nil {
			o.logger.Warn("[images] %s: image %d skipped: %v", externalID, i, err)
			continue
		}
		img.PropertyID = propertyID
		done = append(done, *img)
	}

	if len(done) == 0 {
		return 0, nil
	}
	if err := o.store.ReplaceImages(ctx, propertyID, done); err != nil {
		return 0, err
	}
	return len(done), nil
}

// offloadOne handles one image, with the same retry budget on each side of
// the transfer. The temp file is removed on success and failure paths alike
// so no orphans accumulate.
func (o *Offloader) offloadOne(ctx context.Context, externalID, src string, position int, featured bool) (*models.PropertyImage, error) {
	var localPath string
	err := o.retry.Do(ctx, fmt.Sprintf("download-%s-%d", externalID, position), func() error {
		p, err := o.download(ctx, src)
		if err != nil {
			return err
		}
		localPath = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	defer os.Remove(localPath)

	objectName := externalID + "/" + filepath.Base(localPath)

	var publicURL string
	err = o.retry.Do(ctx, fmt.Sprintf("upload-%s-%d", externalID, position), func() error {
		u, err := o.blobs.Put(ctx, objectName, localPath, contentTypeFor(localPath))
		if err != nil {
			return err
		}
		publicURL = u
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &models.PropertyImage{
		ExternalID: externalID,
		SourceURL:  src,
		PublicURL:  publicURL,
		Position:   position,
		Featured:   featured,
	}, nil
}

// download fetches src into the temp directory under a collision-resistant
// name derived from the original filename.
func (o *Offloader) download(ctx context.Context, src string) (string, error) {
	if err := os.MkdirAll(o.tempDir, 0755); err != nil {
		return "", fmt.Errorf("temp dir: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src, nil)
	if err != nil {
		return "", fmt.Errorf("download request %s: %w", src, err)
	}
	resp, err := o.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("download %s: %w", src, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		// A gone image stays gone; retrying wastes the budget.
		io.Copy(io.Discard, resp.Body)
		return "", utils.Permanent(fmt.Errorf("download %s: status %d", src, resp.StatusCode))
	default:
		io.Copy(io.Discard, resp.Body)
		return "", fmt.Errorf("download %s: status %d", src, resp.StatusCode)
	}

	localPath := filepath.Join(o.tempDir, tempFilename(src))
	f, err := os.Create(localPath)
	if err != nil {
		return "", fmt.Errorf("temp file: %w", err)
	}

	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		os.Remove(localPath)
		return "", fmt.Errorf("download %s: %w", src, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(localPath)
		return "", fmt.Errorf("temp file: %w", err)
	}
	return localPath, nil
}

// tempFilename prefixes the source's basename with a fresh UUID so parallel
// downloads of identically named files never collide.
func tempFilename(src string) string {
	base := "image"
	if u, err := url.Parse(src); err == nil {
		if b := path.Base(u.Path); b != "" && b != "/" && b != "." {
			base = b
		}
	}
	return strings.ReplaceAll(uuid.New().String(), "-", "") + "_" + base
}

func contentTypeFor(filename string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".webp":
		return "image/webp"
	default:
		return "image/jpeg"
	}
}

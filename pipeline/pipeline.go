// Package pipeline drives discovered listing tokens through fetch,
// transform, persist, image offload and search indexing.
package pipeline

import (
	"context"
	"errors"
	"sync"
	"time"

	"divar-ingest/models"
	"divar-ingest/scraper/divar"
	"divar-ingest/services"
	"divar-ingest/utils"
)

// DetailFetcher yields the raw fields for one listing token.
type DetailFetcher interface {
	FetchDetails(ctx context.Context, token string) (*models.RawFields, error)
}

// RecordWriter persists a transformed record and returns its row id.
type RecordWriter interface {
	Upsert(ctx context.Context, rec *models.PropertyRecord) (int64, error)
}

// ImageOffloader re-hosts a property's gallery, returning how many images
// were uploaded.
type ImageOffloader interface {
	Offload(ctx context.Context, propertyID int64, externalID string, sourceURLs []string) (int, error)
}

// Indexer propagates a record into the search index.
type Indexer interface {
	Index(ctx context.Context, rec *models.PropertyRecord) error
}

// SnapshotWriter records the raw parse output before transformation.
type SnapshotWriter interface {
	Write(raw *models.RawFields) error
}

// Pipeline fans tokens out over a bounded worker pool. Failures are
// per-item: one bad listing never aborts the run.
type Pipeline struct {
	logger      *utils.Logger
	fetcher     DetailFetcher
	transformer *services.Transformer
	writer      RecordWriter
	offloader   ImageOffloader // nil when image storage is not configured
	indexer     Indexer        // nil when the search index is not configured
	snapshots   SnapshotWriter // nil when snapshots are disabled
	pool        *utils.WorkerPool

	mu      sync.Mutex
	summary models.RunSummary
}

// New assembles a pipeline. Optional collaborators may be nil and their
// stage is skipped for every item.
func New(logger *utils.Logger, fetcher DetailFetcher, transformer *services.Transformer,
	writer RecordWriter, offloader ImageOffloader, indexer Indexer,
	snapshots SnapshotWriter, pool *utils.WorkerPool) *Pipeline {
	return &Pipeline{
		logger:      logger,
		fetcher:     fetcher,
		transformer: transformer,
		writer:      writer,
		offloader:   offloader,
		indexer:     indexer,
		snapshots:   snapshots,
		pool:        pool,
	}
}

// Run processes every token and returns the tallied outcomes. It stops
// submitting new work once ctx is cancelled but lets in-flight items finish.
func (p *Pipeline) Run(ctx context.Context, tokens []models.ListingToken) *models.RunSummary {
	started := time.Now()
	p.summary = models.RunSummary{Discovered: len(tokens)}

	for _, token := range tokens {
		tok := token
		if !p.pool.Submit(ctx, func() {
			p.processOne(ctx, tok)
		}) {
			p.mu.Lock()
			p.summary.Cancelled++
			p.mu.Unlock()
			p.logger.Warn("[pipeline] cancelled, %s not submitted", tok.ExternalID)
		}
	}
	p.pool.Wait()

	p.mu.Lock()
	defer p.mu.Unlock()
	p.summary.Elapsed = time.Since(started)
	summary := p.summary
	return &summary
}

func (p *Pipeline) processOne(ctx context.Context, token models.ListingToken) {
	raw, err := p.fetcher.FetchDetails(ctx, token.ExternalID)
	if err != nil {
		p.recordFailure(token.ExternalID, err)
		return
	}

	if p.snapshots != nil {
		if err := p.snapshots.Write(raw); err != nil {
			p.logger.Warn("[pipeline] %s: snapshot not written: %v", token.ExternalID, err)
		}
	}

	rec, err := p.transformer.Transform(raw)
	if err != nil {
		p.recordFailure(token.ExternalID, err)
		return
	}

	propertyID, err := p.writer.Upsert(ctx, rec)
	if err != nil {
		p.recordFailure(token.ExternalID, err)
		return
	}
	rec.ID = propertyID

	// Offload and indexing are independent side effects; run them in
	// parallel and let either fail without undoing the stored record.
	var (
		wg       sync.WaitGroup
		uploaded int
		indexed  bool
	)
	if p.offloader != nil && len(rec.ImageSources) > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n, err := p.offloader.Offload(ctx, propertyID, rec.ExternalID, rec.ImageSources)
			if err != nil {
				p.logger.Error("[pipeline] %s: image offload failed: %v", rec.ExternalID, err)
				return
			}
			uploaded = n
		}()
	}
	if p.indexer != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := p.indexer.Index(ctx, rec); err != nil {
				p.logger.Error("[pipeline] %s: indexing failed: %v", rec.ExternalID, err)
				return
			}
			indexed = true
		}()
	}
	wg.Wait()

	p.mu.Lock()
	p.summary.Succeeded++
	p.summary.ImagesOffloaded += uploaded
	if indexed {
		p.summary.Indexed++
	}
	p.mu.Unlock()

	p.logger.Info("[pipeline] %s: stored (images=%d indexed=%t)", rec.ExternalID, uploaded, indexed)
}

// recordFailure sorts an error into the summary's outcome buckets.
func (p *Pipeline) recordFailure(token string, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var parseErr *divar.ParseError
	var malformedErr *services.MalformedInputError
	switch {
	case errors.Is(err, divar.ErrNotFound):
		p.summary.SkippedNotFound++
		p.logger.Warn("[pipeline] %s: listing gone, skipped", token)
	case errors.As(err, &parseErr), errors.As(err, &malformedErr):
		p.summary.SkippedMalformed++
		p.logger.Warn("[pipeline] %s: malformed listing skipped: %v", token, err)
	default:
		p.summary.Failed++
		p.logger.Error("[pipeline] %s: %v", token, err)
	}
}

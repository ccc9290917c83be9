package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"divar-ingest/models"
	"divar-ingest/scraper/divar"
	"divar-ingest/services"
	"divar-ingest/utils"
)

type fakeFetcher struct {
	mu      sync.Mutex
	results map[string]*models.RawFields
	errs    map[string]error
}

func (f *fakeFetcher) FetchDetails(ctx context.Context, token string) (*models.RawFields, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.errs[token]; ok {
		return nil, err
	}
	if raw, ok := f.results[token]; ok {
		return raw, nil
	}
	return nil, errors.New("unexpected token " + token)
}

type fakeWriter struct {
	mu     sync.Mutex
	stored []string
	errs   map[string]error
}

func (f *fakeWriter) Upsert(ctx context.Context, rec *models.PropertyRecord) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.errs[rec.ExternalID]; ok {
		return 0, err
	}
	f.stored = append(f.stored, rec.ExternalID)
	return int64(len(f.stored)), nil
}

type fakeIndexer struct {
	mu      sync.Mutex
	indexed []string
	errs    map[string]error
}

func (f *fakeIndexer) Index(ctx context.Context, rec *models.PropertyRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.errs[rec.ExternalID]; ok {
		return err
	}
	f.indexed = append(f.indexed, rec.ExternalID)
	return nil
}

type fakeOffloader struct {
	mu    sync.Mutex
	calls int
}

func (f *fakeOffloader) Offload(ctx context.Context, propertyID int64, externalID string, urls []string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return len(urls), nil
}

func rawFor(token string) *models.RawFields {
	return &models.RawFields{
		ExternalID: token,
		Title:      "آپارتمان " + token,
		ImageURLs:  []string{"https://s100.divarcdn.com/static/" + token + ".jpg"},
		FetchedAt:  time.Now(),
	}
}

func tokensFor(ids ...string) []models.ListingToken {
	out := make([]models.ListingToken, 0, len(ids))
	for _, id := range ids {
		out = append(out, models.ListingToken{ExternalID: id, Source: "test"})
	}
	return out
}

func newTestPipeline(fetcher DetailFetcher, writer RecordWriter, off ImageOffloader, idx Indexer) *Pipeline {
	return New(utils.NewLogger(), fetcher, services.NewTransformer(5),
		writer, off, idx, nil, utils.NewWorkerPool(3, 0))
}

func TestRunHappyPath(t *testing.T) {
	fetcher := &fakeFetcher{results: map[string]*models.RawFields{
		"tok00": rawFor("tok00"),
		"tok01": rawFor("tok01"),
	}}
	writer := &fakeWriter{}
	offloader := &fakeOffloader{}
	indexer := &fakeIndexer{}

	p := newTestPipeline(fetcher, writer, offloader, indexer)
	summary := p.Run(context.Background(), tokensFor("tok00", "tok01"))

	if summary.Discovered != 2 || summary.Succeeded != 2 {
		t.Errorf("summary: %+v", summary)
	}
	if summary.ImagesOffloaded != 2 || summary.Indexed != 2 {
		t.Errorf("side effects: %+v", summary)
	}
	if len(writer.stored) != 2 {
		t.Errorf("stored %d records, want 2", len(writer.stored))
	}
}

func TestRunClassifiesOutcomes(t *testing.T) {
	fetcher := &fakeFetcher{
		results: map[string]*models.RawFields{
			"ok":       rawFor("ok"),
			"untitled": {ExternalID: "untitled", FetchedAt: time.Now()},
		},
		errs: map[string]error{
			"gone":   divar.ErrNotFound,
			"parse":  &divar.ParseError{Token: "parse", Field: "title"},
			"broken": &divar.FetchError{Token: "broken", Err: errors.New("status 502")},
		},
	}
	writer := &fakeWriter{}

	p := newTestPipeline(fetcher, writer, nil, nil)
	summary := p.Run(context.Background(), tokensFor("ok", "gone", "parse", "untitled", "broken"))

	if summary.Succeeded != 1 {
		t.Errorf("succeeded: got %d, want 1", summary.Succeeded)
	}
	if summary.SkippedNotFound != 1 {
		t.Errorf("skipped not-found: got %d, want 1", summary.SkippedNotFound)
	}
	// one upstream parse error, one transformer rejection
	if summary.SkippedMalformed != 2 {
		t.Errorf("skipped malformed: got %d, want 2", summary.SkippedMalformed)
	}
	if summary.Failed != 1 {
		t.Errorf("failed: got %d, want 1", summary.Failed)
	}
}

func TestRunIsolatesSideEffectFailures(t *testing.T) {
	fetcher := &fakeFetcher{results: map[string]*models.RawFields{
		"tok00": rawFor("tok00"),
		"tok01": rawFor("tok01"),
	}}
	writer := &fakeWriter{}
	indexer := &fakeIndexer{errs: map[string]error{"tok00": errors.New("index down")}}

	p := newTestPipeline(fetcher, writer, nil, indexer)
	summary := p.Run(context.Background(), tokensFor("tok00", "tok01"))

	if summary.Succeeded != 2 {
		t.Errorf("index failure must not fail the item: %+v", summary)
	}
	if summary.Indexed != 1 {
		t.Errorf("indexed: got %d, want 1", summary.Indexed)
	}
	if len(writer.stored) != 2 {
		t.Errorf("both records should still be stored, got %d", len(writer.stored))
	}
}

func TestRunStoreFailureCountsAsFailed(t *testing.T) {
	fetcher := &fakeFetcher{results: map[string]*models.RawFields{
		"tok00": rawFor("tok00"),
		"tok01": rawFor("tok01"),
	}}
	writer := &fakeWriter{errs: map[string]error{"tok00": errors.New("db down")}}
	indexer := &fakeIndexer{}

	p := newTestPipeline(fetcher, writer, nil, indexer)
	summary := p.Run(context.Background(), tokensFor("tok00", "tok01"))

	if summary.Failed != 1 || summary.Succeeded != 1 {
		t.Errorf("summary: %+v", summary)
	}
	for _, id := range indexer.indexed {
		if id == "tok00" {
			t.Error("a record that failed to persist must not be indexed")
		}
	}
}

func TestRunStopsSubmittingOnCancel(t *testing.T) {
	fetcher := &fakeFetcher{results: map[string]*models.RawFields{}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := newTestPipeline(fetcher, &fakeWriter{}, nil, nil)
	summary := p.Run(ctx, tokensFor("tok00", "tok01", "tok02"))

	if summary.Succeeded+summary.Failed+summary.SkippedMalformed+summary.SkippedNotFound != 0 {
		t.Errorf("cancelled run should process nothing, got %+v", summary)
	}
	if summary.Cancelled != 3 {
		t.Errorf("cancelled: got %d, want 3", summary.Cancelled)
	}
	outcomes := summary.Succeeded + summary.Failed + summary.SkippedMalformed +
		summary.SkippedNotFound + summary.Cancelled
	if outcomes != summary.Discovered {
		t.Errorf("every discovered token needs an outcome: %d of %d accounted for",
			outcomes, summary.Discovered)
	}
}

package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"divar-ingest/config"
	"divar-ingest/discovery"
	"divar-ingest/images"
	"divar-ingest/models"
	"divar-ingest/pipeline"
	"divar-ingest/scraper/divar"
	"divar-ingest/search"
	"divar-ingest/services"
	"divar-ingest/storage"
	"divar-ingest/utils"
)

func main() {
	listPath := flag.String("list", "", "path to a file of listing tokens, one per line")
	bboxPath := flag.String("bbox", "", "path to a bounding-box JSON file for map search discovery")
	singleToken := flag.String("token", "", "ingest a single listing token")
	classifyMissing := flag.Bool("classify-missing", false, "backfill property_type for stored rows and exit")
	flag.Parse()

	logger := utils.NewLogger()
	cfg := config.Load()

	logger.Info("=== Divar Ingestion System starting ===")
	logger.Info("Config — concurrency: %d | rate: %dms | retries: %d | max pages: %d",
		cfg.MaxConcurrency, cfg.RateLimitMs, cfg.MaxRetries, cfg.MaxPages)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	interrupts := make(chan os.Signal, 1)
	signal.Notify(interrupts, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-interrupts
		logger.Warn("Interrupt received — finishing in-flight listings...")
		cancel()
	}()

	store, err := storage.NewPropertyStore(cfg.DSN())
	if err != nil {
		logger.Fatal("Failed to connect to PostgreSQL: %v", err)
	}
	defer store.Close()

	if *classifyMissing {
		classifyStoredProperties(ctx, logger, store)
		return
	}

	tokens := discoverTokens(ctx, cfg, logger, *listPath, *bboxPath, *singleToken)
	if len(tokens) == 0 {
		logger.Error("No listing tokens discovered. Exiting.")
		os.Exit(1)
	}
	logger.Info("Discovered %d unique listing tokens", len(tokens))

	var offloader pipeline.ImageOffloader
	if cfg.ImageStorageConfigured() {
		blobs, err := storage.NewObjectStore(cfg)
		if err != nil {
			logger.Fatal("Failed to connect to object storage: %v", err)
		}
		if err := blobs.EnsureBucket(ctx); err != nil {
			logger.Fatal("Failed to prepare image bucket: %v", err)
		}
		offloader = images.NewOffloader(cfg, logger, store, blobs)
	} else {
		logger.Warn("Image storage not configured — gallery images stay on source URLs")
	}

	var indexer pipeline.Indexer
	propagator := search.NewPropagator(cfg, logger)
	if err := propagator.Setup(ctx); err != nil {
		logger.Warn("Search index unavailable, continuing without it: %v", err)
	} else {
		defer propagator.Close()
		indexer = propagator
	}

	var snapshots pipeline.SnapshotWriter
	if cfg.SnapshotDir != "" {
		sw, err := storage.NewRawSnapshotWriter(cfg.SnapshotDir)
		if err != nil {
			logger.Warn("Snapshot directory unusable, snapshots disabled: %v", err)
		} else {
			snapshots = sw
		}
	}

	chrome := divar.NewChromeFetcher(cfg, logger)
	defer chrome.Close()
	fetcher := divar.New(cfg, logger, chrome)

	pool := utils.NewWorkerPool(cfg.MaxConcurrency, cfg.RateLimitMs)
	run := pipeline.New(logger, fetcher, services.NewTransformer(cfg.MaxImages),
		store, offloader, indexer, snapshots, pool)

	summary := run.Run(ctx, tokens)
	services.PrintSummary(summary)
}

// discoverTokens unions every requested source, deduplicating across them.
func discoverTokens(ctx context.Context, cfg *config.Config, logger *utils.Logger,
	listPath, bboxPath, singleToken string) []models.ListingToken {

	disc := discovery.New(cfg, logger)
	var tokens []models.ListingToken

	if listPath != "" {
		fromList, err := disc.FromList(listPath)
		if err != nil {
			logger.Fatal("Failed to read token list: %v", err)
		}
		tokens = append(tokens, fromList...)
	}
	if bboxPath != "" {
		bbox, err := config.LoadBoundingBox(bboxPath)
		if err != nil {
			logger.Fatal("Invalid bounding box file: %v", err)
		}
		tokens = append(tokens, disc.FromBoundingBox(ctx, bbox)...)
	}
	if singleToken != "" {
		tokens = append(tokens, disc.Single(singleToken)...)
	}
	if listPath == "" && bboxPath == "" && singleToken == "" {
		logger.Error("No discovery source given. Use -list, -bbox or -token.")
		os.Exit(1)
	}
	return tokens
}

// classifyStoredProperties backfills property_type for rows that were stored
// before classification existed. It never touches rows already classified.
func classifyStoredProperties(ctx context.Context, logger *utils.Logger, store *storage.PropertyStore) {
	rows, err := store.FetchUnclassified(ctx)
	if err != nil {
		logger.Fatal("Failed to fetch unclassified properties: %v", err)
	}
	logger.Info("Classifying %d properties without a type", len(rows))

	classified := 0
	for _, rec := range rows {
		if ctx.Err() != nil {
			break
		}
		pt := services.ClassifyPropertyType(rec.Title, rec.Description)
		if pt == models.TypeUnknown {
			continue
		}
		if err := store.SetPropertyType(ctx, rec.ID, pt); err != nil {
			logger.Error("Failed to set type for %s: %v", rec.ExternalID, err)
			continue
		}
		classified++
	}
	logger.Info("Classification pass done: %d of %d updated", classified, len(rows))
}

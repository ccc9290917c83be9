// Package search pushes finished property records into the Redis-backed
// search index and maintains the autocomplete suggestion sets alongside.
package search

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"

	"divar-ingest/config"
	"divar-ingest/models"
	"divar-ingest/services"
	"divar-ingest/utils"
)

const (
	docKeyPrefix     = "property:doc:"
	suggestKeyPrefix = "suggest:"
)

// Propagator mirrors property records into the search index. Indexing the
// same external id twice replaces the document rather than duplicating it.
type Propagator struct {
	client *redis.Client
	logger *utils.Logger
	reset  bool
}

// NewPropagator connects to Redis using the configured address and database.
func NewPropagator(cfg *config.Config, logger *utils.Logger) *Propagator {
	client := redis.NewClient(&redis.Options{
		Addr: cfg.RedisAddr,
		DB:   cfg.RedisDB,
	})
	return &Propagator{
		client: client,
		logger: logger,
		reset:  cfg.ResetSearchIndex,
	}
}

// NewPropagatorWithClient wires an existing client, used by tests.
func NewPropagatorWithClient(client *redis.Client, logger *utils.Logger, reset bool) *Propagator {
	return &Propagator{client: client, logger: logger, reset: reset}
}

// Setup verifies connectivity and, only when the reset flag was explicitly
// enabled, drops all index keys before the run.
func (p *Propagator) Setup(ctx context.Context) error {
	if err := p.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("search index unreachable: %w", err)
	}
	if !p.reset {
		return nil
	}
	p.logger.Warn("[search] resetting search index")
	for _, pattern := range []string{docKeyPrefix + "*", suggestKeyPrefix + "*"} {
		if err := p.deleteByPattern(ctx, pattern); err != nil {
			return err
		}
	}
	return nil
}

func (p *Propagator) deleteByPattern(ctx context.Context, pattern string) error {
	var cursor uint64
	for {
		keys, next, err := p.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return fmt.Errorf("scan %s: %w", pattern, err)
		}
		if len(keys) > 0 {
			if err := p.client.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("delete %s: %w", pattern, err)
			}
		}
		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}

// Index writes the record's search document and its suggestion phrases.
func (p *Propagator) Index(ctx context.Context, rec *models.PropertyRecord) error {
	doc := buildDocument(rec)
	payload, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal document %s: %w", rec.ExternalID, err)
	}

	pipe := p.client.TxPipeline()
	pipe.Set(ctx, docKeyPrefix+rec.ExternalID, payload, 0)
	for _, s := range buildSuggestions(rec, doc) {
		pipe.ZAdd(ctx, suggestKeyPrefix+s.Context, redis.Z{
			Score:  float64(s.Priority),
			Member: s.Text,
		})
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("index %s: %w", rec.ExternalID, err)
	}
	return nil
}

// Close releases the underlying connection pool.
func (p *Propagator) Close() error {
	return p.client.Close()
}

// buildDocument flattens a record into the shape the search frontend reads.
// Bedrooms and area come from the localized attribute rows when present.
func buildDocument(rec *models.PropertyRecord) *models.SearchDocument {
	doc := &models.SearchDocument{
		ExternalID:  rec.ExternalID,
		Title:       rec.Title,
		Description: rec.Description,
		Price:       rec.Price,
		UpdatedAt:   rec.FetchedAt.UTC(),
	}
	if rec.PropertyType != nil {
		doc.PropertyType = string(*rec.PropertyType)
	}
	if rec.Location != nil {
		doc.Location = &models.Location{
			Latitude:  rec.Location.Latitude,
			Longitude: rec.Location.Longitude,
		}
	}
	for _, attr := range rec.Attributes {
		switch {
		case strings.Contains(attr.Key, "اتاق"):
			if n, ok := services.ParseLocalizedNumber(attr.Value); ok {
				doc.Bedrooms = &n
			}
		case strings.Contains(attr.Key, "متراژ"):
			if n, ok := services.ParseLocalizedNumber(attr.Value); ok {
				doc.Area = &n
			}
		}
	}
	doc.ContextTags = contextTags(doc)
	return doc
}

func contextTags(doc *models.SearchDocument) []string {
	var tags []string
	if doc.PropertyType != "" {
		tags = append(tags, doc.PropertyType)
	}
	if doc.Bedrooms != nil {
		tags = append(tags, strconv.FormatInt(*doc.Bedrooms, 10)+"-bedroom")
	}
	if doc.Price != nil {
		tags = append(tags, priceBand(*doc.Price))
	}
	return tags
}

// priceBand buckets prices so suggestion contexts stay low-cardinality.
func priceBand(price int64) string {
	switch {
	case price < 1_000_000_000:
		return "price:under-1b"
	case price < 5_000_000_000:
		return "price:1b-5b"
	case price < 20_000_000_000:
		return "price:5b-20b"
	default:
		return "price:over-20b"
	}
}

// buildSuggestions derives autocomplete phrases from the document. Higher
// priority surfaces the phrase earlier in the dropdown.
func buildSuggestions(rec *models.PropertyRecord, doc *models.SearchDocument) []models.Suggestion {
	var out []models.Suggestion
	if doc.PropertyType != "" {
		out = append(out, models.Suggestion{
			Text:     doc.PropertyType,
			Kind:     "property_type",
			Context:  "type",
			Priority: 10,
		})
		if doc.Bedrooms != nil {
			out = append(out, models.Suggestion{
				Text:     fmt.Sprintf("%s %d خوابه", doc.PropertyType, *doc.Bedrooms),
				Kind:     "combo",
				Context:  "type",
				Priority: 8,
			})
		}
	}
	if doc.Bedrooms != nil {
		out = append(out, models.Suggestion{
			Text:     fmt.Sprintf("%d خوابه", *doc.Bedrooms),
			Kind:     "bedrooms",
			Context:  "bedrooms",
			Priority: 6,
		})
	}
	if doc.Price != nil {
		out = append(out, models.Suggestion{
			Text:     priceBand(*doc.Price),
			Kind:     "price_band",
			Context:  "price",
			Priority: 4,
		})
	}
	for _, attr := range rec.Attributes {
		if attr.Value == "true" {
			out = append(out, models.Suggestion{
				Text:     attr.Key,
				Kind:     "feature",
				Context:  "feature",
				Priority: 2,
			})
		}
	}
	return out
}

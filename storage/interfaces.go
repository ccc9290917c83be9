package storage

import (
	"context"

	"divar-ingest/models"
)

// PropertyWriter is the slice of PropertyStore the ingestion pipeline needs.
type PropertyWriter interface {
	Upsert(ctx context.Context, rec *models.PropertyRecord) (int64, error)
}

// ImageStore is what the offload pipeline needs from the relational store.
type ImageStore interface {
	ImageCount(ctx context.Context, propertyID int64) (int, error)
	ReplaceImages(ctx context.Context, propertyID int64, images []models.PropertyImage) error
}

// BlobStore is what the offload pipeline needs from object storage.
type BlobStore interface {
	Put(ctx context.Context, objectName, filePath, contentType string) (string, error)
}

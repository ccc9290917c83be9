package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"divar-ingest/config"
)

// ObjectStore re-hosts images in an S3-compatible bucket with public-read
// access, so records can reference durable URLs instead of the upstream CDN.
type ObjectStore struct {
	client    *minio.Client
	bucket    string
	publicURL string
}

// NewObjectStore connects to the object-storage endpoint.
func NewObjectStore(cfg *config.Config) (*ObjectStore, error) {
	client, err := minio.New(cfg.MinioEndpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.MinioAccessKey, cfg.MinioSecretKey, ""),
		Secure: cfg.MinioUseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("object store: connect %s: %w", cfg.MinioEndpoint, err)
	}

	publicURL := cfg.MinioPublicURL
	if publicURL == "" {
		scheme := "http"
		if cfg.MinioUseSSL {
			scheme = "https"
		}
		publicURL = scheme + "://" + cfg.MinioEndpoint
	}

	return &ObjectStore{
		client:    client,
		bucket:    cfg.MinioBucket,
		publicURL: strings.TrimRight(publicURL, "/"),
	}, nil
}

// EnsureBucket creates the bucket with a public-read policy when it does not
// exist yet.
func (o *ObjectStore) EnsureBucket(ctx context.Context) error {
	exists, err := o.client.BucketExists(ctx, o.bucket)
	if err != nil {
		return fmt.Errorf("object store: check bucket %q: %w", o.bucket, err)
	}
	if exists {
		return nil
	}

	if err := o.client.MakeBucket(ctx, o.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("object store: create bucket %q: %w", o.bucket, err)
	}

	policy := fmt.Sprintf(`{
		"Version": "2012-10-17",
		"Statement": [{
			"Effect": "Allow",
			"Principal": {"AWS": ["*"]},
			"Action": ["s3:GetObject"],
			"Resource": ["arn:aws:s3:::%s/*"]
		}]
	}`, o.bucket)
	if err := o.client.SetBucketPolicy(ctx, o.bucket, policy); err != nil {
		return fmt.Errorf("object store: set public policy on %q: %w", o.bucket, err)
	}
	return nil
}

// Put uploads the local file under objectName and returns its public URL.
func (o *ObjectStore) Put(ctx context.Context, objectName, filePath, contentType string) (string, error) {
	_, err := o.client.FPutObject(ctx, o.bucket, objectName, filePath, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("object store: put %q: %w", objectName, err)
	}
	return o.PublicObjectURL(objectName), nil
}

// PublicObjectURL builds the publicly resolvable URL for an object.
func (o *ObjectStore) PublicObjectURL(objectName string) string {
	return o.publicURL + "/" + o.bucket + "/" + objectName
}

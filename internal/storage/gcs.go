package storage

import (
	"context"
	"fmt"

	"gocloud.dev/blob"
	_ "gocloud.dev/blob/gcsblob" // GCS driver
)

// GCSStore writes batch artifacts to Google Cloud Storage.
type GCSStore struct {
	*blobStore
}

// NewGCSStore creates a new GCS store.
func NewGCSStore(bucketName, prefix string) (*GCSStore, error) {
	ctx := context.Background()

	bucket, err := blob.OpenBucket(ctx, fmt.Sprintf("gs://%s", bucketName))
	if err != nil {
		return nil, fmt.Errorf("open GCS bucket %s: %w", bucketName, err)
	}

	return &GCSStore{newBlobStore(bucket, "gs", bucketName, prefix)}, nil
}

// Verify GCSStore implements AtomicStore.
var _ AtomicStore = (*GCSStore)(nil)

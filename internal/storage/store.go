package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// ResultsDir is the key directory holding batch artifacts.
const ResultsDir = "results"

// ArtifactRef describes the location of one batch artifact.
type ArtifactRef struct {
	Start  int
	End    int
	Format string // "parquet" | "csv"
}

// Name returns the base name shared by the artifact and its manifest.
func (r ArtifactRef) Name() string {
	return fmt.Sprintf("batch_%d_%d", r.Start, r.End)
}

// Path returns the storage key of the artifact.
func (r ArtifactRef) Path(prefix string) string {
	return fmt.Sprintf("%s%s/%s.%s", prefix, ResultsDir, r.Name(), r.Format)
}

// ManifestPath returns the storage key of the artifact's manifest.
func (r ArtifactRef) ManifestPath(prefix string) string {
	return fmt.Sprintf("%s%s/%s_manifest.json", prefix, ResultsDir, r.Name())
}

// Manifest describes one written batch artifact.
type Manifest struct {
	Batch     BatchInfo    `json:"batch"`
	Artifact  ArtifactInfo `json:"artifact"`
	Producer  ProducerInfo `json:"producer"`
	CreatedAt time.Time    `json:"created_at"`
}

// BatchInfo describes the batch boundaries.
type BatchInfo struct {
	Start         int    `json:"start"`
	End           int    `json:"end"`
	RunID         string `json:"run_id"`
	Format        string `json:"format"`
	SchemaVersion string `json:"schema_version"`
}

// ArtifactInfo describes the artifact contents.
type ArtifactInfo struct {
	File         string `json:"file"`
	Checksum     string `json:"checksum"`
	RowCount     int64  `json:"row_count"`
	SuccessCount int64  `json:"success_count"`
	FailedCount  int64  `json:"failed_count"`
	ByteSize     int64  `json:"byte_size"`
}

// ProducerInfo describes the software that produced the artifact.
type ProducerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	GitSHA  string `json:"git_sha,omitempty"`
}

// MarshalJSON returns the manifest as JSON bytes.
func (m *Manifest) MarshalJSON() ([]byte, error) {
	type Alias Manifest
	return json.MarshalIndent((*Alias)(m), "", "  ")
}

// ArtifactStore abstracts reading and writing batch artifacts.
type ArtifactStore interface {
	// WriteArtifact writes the encoded batch table.
	WriteArtifact(ctx context.Context, ref ArtifactRef, data []byte) error

	// WriteManifest writes a manifest file to storage.
	WriteManifest(ctx context.Context, ref ArtifactRef, manifest *Manifest) error

	// Exists checks if an artifact already exists.
	Exists(ctx context.Context, ref ArtifactRef) (bool, error)

	// Write stores data under an arbitrary key.
	Write(ctx context.Context, key string, data []byte) error

	// Read returns the data stored under key.
	Read(ctx context.Context, key string) ([]byte, error)

	// List returns all keys with the given prefix, excluding temp objects.
	List(ctx context.Context, prefix string) ([]string, error)

	// URI returns the canonical URI for the given key.
	// For local: file:///path, GCS: gs://bucket/path, S3: s3://bucket/path
	URI(key string) string

	// Prefix returns the key prefix applied to artifact refs.
	Prefix() string

	// Close releases any resources.
	Close() error
}

// AtomicStore extends ArtifactStore with atomic publish capabilities.
type AtomicStore interface {
	ArtifactStore

	// WriteArtifactTemp writes the artifact to a temporary location.
	// Returns the temp key that can be passed to Finalize.
	WriteArtifactTemp(ctx context.Context, ref ArtifactRef, data []byte) (tempKey string, err error)

	// WriteManifestTemp writes a manifest to a temporary location.
	WriteManifestTemp(ctx context.Context, ref ArtifactRef, manifest *Manifest) (tempKey string, err error)

	// Finalize moves temp files, artifact first then manifest, to their
	// canonical location. On failure already published files are removed.
	Finalize(ctx context.Context, ref ArtifactRef, tempKeys []string) error

	// Abort removes temporary files without publishing.
	Abort(ctx context.Context, tempKeys []string) error

	// Head returns metadata about a stored object.
	Head(ctx context.Context, key string) (*ObjectInfo, error)
}

// ObjectInfo contains metadata about a stored object.
type ObjectInfo struct {
	Key     string
	Size    int64
	ETag    string // MD5 for S3/GCS, empty for local
	ModTime time.Time
}

// StorageConfig configures the storage backend.
type StorageConfig struct {
	Backend string `yaml:"backend"` // "local" | "gcs" | "s3"

	// Local filesystem
	LocalDir string `yaml:"local_dir"`

	// GCS
	GCSBucket string `yaml:"gcs_bucket"`

	// S3 (also works for B2, R2, MinIO)
	S3Bucket   string `yaml:"s3_bucket"`
	S3Endpoint string `yaml:"s3_endpoint"` // custom endpoint for B2/MinIO/R2
	S3Region   string `yaml:"s3_region"`

	// Common
	Prefix string `yaml:"prefix"` // path prefix within bucket or local dir
}

// NewAtomicStore creates a storage backend based on configuration.
// All supported backends (local, gcs, s3) implement AtomicStore.
func NewAtomicStore(cfg StorageConfig) (AtomicStore, error) {
	switch cfg.Backend {
	case "local", "":
		if cfg.LocalDir == "" {
			return nil, fmt.Errorf("LocalDir required for local backend")
		}
		return NewLocalStore(cfg.LocalDir, cfg.Prefix)
	case "gcs":
		if cfg.GCSBucket == "" {
			return nil, fmt.Errorf("GCSBucket required for gcs backend")
		}
		return NewGCSStore(cfg.GCSBucket, cfg.Prefix)
	case "s3":
		if cfg.S3Bucket == "" {
			return nil, fmt.Errorf("S3Bucket required for s3 backend")
		}
		return NewS3Store(cfg.S3Bucket, cfg.Prefix, cfg.S3Endpoint, cfg.S3Region)
	default:
		return nil, fmt.Errorf("unknown storage backend: %s", cfg.Backend)
	}
}

// Publish writes the artifact and manifest through temp objects and
// finalizes them together.
func Publish(ctx context.Context, store AtomicStore, ref ArtifactRef, data []byte, manifest *Manifest) error {
	tempArtifact, err := store.WriteArtifactTemp(ctx, ref, data)
	if err != nil {
		return err
	}
	tempManifest, err := store.WriteManifestTemp(ctx, ref, manifest)
	if err != nil {
		store.Abort(ctx, []string{tempArtifact})
		return err
	}
	return store.Finalize(ctx, ref, []string{tempArtifact, tempManifest})
}

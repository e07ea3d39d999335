package batch

import (
	"errors"
	"time"

	"github.com/withObsrvr/binder-annotator/internal/pipeline"
	"github.com/withObsrvr/binder-annotator/internal/results"
	"github.com/withObsrvr/binder-annotator/internal/storage"
	"github.com/withObsrvr/binder-annotator/internal/submissions"
)

// Version information (set via ldflags)
var (
	Version = "v0.1.0"
	GitSHA  = "unknown"
)

// ProducerName identifies this tool in manifests and the catalog.
const ProducerName = "binder-annotator"

var (
	// ErrPrecondition means the run was refused before any submission was
	// processed.
	ErrPrecondition = errors.New("precondition failed")

	// ErrEmptyBatch means the requested slice of the table has no rows.
	ErrEmptyBatch = errors.New("empty batch")
)

// Request describes one batch run.
type Request struct {
	Submissions   string   // submission table (.csv or .parquet)
	StructureDirs []string // searched in order; later duplicates win
	OutputDir     string   // created if missing
	RelaxedDir    string   // created if missing

	Start int
	End   int // exclusive; clamped to the table size

	Format  results.Format
	Workers int // 0 means runtime.NumCPU()
}

// Result describes a committed batch.
type Result struct {
	RunID    string
	Ref      storage.ArtifactRef
	Key      string
	URI      string
	Rows     []results.Row
	Manifest *storage.Manifest

	Succeeded int
	Failed    int

	Duplicates []submissions.Duplicate
	Duration   time.Duration
}

// task is sent to workers for processing.
type task struct {
	Sub submissions.Submission
}

// taskResult is returned from workers to the collector.
type taskResult struct {
	Result pipeline.Result
}

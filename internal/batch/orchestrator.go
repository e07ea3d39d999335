// Package batch runs slices of the submission table through the
// per-submission pipeline on a worker pool and publishes one result
// artifact per slice.
package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/withObsrvr/binder-annotator/internal/audit"
	"github.com/withObsrvr/binder-annotator/internal/catalog"
	"github.com/withObsrvr/binder-annotator/internal/checkpoint"
	"github.com/withObsrvr/binder-annotator/internal/logging"
	"github.com/withObsrvr/binder-annotator/internal/metrics"
	"github.com/withObsrvr/binder-annotator/internal/pipeline"
	"github.com/withObsrvr/binder-annotator/internal/results"
	"github.com/withObsrvr/binder-annotator/internal/storage"
	"github.com/withObsrvr/binder-annotator/internal/submissions"
	"github.com/withObsrvr/binder-annotator/internal/util"
)

// Orchestrator runs batches. Store and Factory are required; Catalog,
// Checkpoints and Audit are optional.
type Orchestrator struct {
	Factory     pipeline.Factory
	Store       storage.AtomicStore
	Catalog     catalog.Writer
	Checkpoints checkpoint.Manager
	Audit       audit.Emitter

	Dataset        string // catalog dataset name
	StorageBackend string // metrics label
	CatalogBackend string // metrics label

	Log *slog.Logger
}

func (o *Orchestrator) logger() *slog.Logger {
	if o.Log != nil {
		return o.Log
	}
	return logging.Component("batch")
}

// RunBatch processes rows [req.Start, req.End) of the submission table and
// publishes exactly one artifact for them. Submission failures become failed
// rows; only precondition, empty-batch and publish errors are returned.
func (o *Orchestrator) RunBatch(ctx context.Context, req Request) (*Result, error) {
	if err := checkPreconditions(req); err != nil {
		return nil, err
	}

	subs, err := submissions.ReadTable(req.Submissions)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPrecondition, err)
	}

	lookup, err := o.buildLookup(req.StructureDirs)
	if err != nil {
		return nil, err
	}

	end := min(req.End, len(subs))
	slice := submissions.Slice(subs, req.Start, end)
	if len(slice) == 0 {
		return nil, fmt.Errorf("%w: rows [%d, %d) of %d", ErrEmptyBatch, req.Start, req.End, len(subs))
	}

	return o.process(ctx, req, slice, lookup, req.Start, end)
}

// checkPreconditions verifies inputs exist and outputs are creatable.
func checkPreconditions(req Request) error {
	if req.Submissions == "" {
		return fmt.Errorf("%w: no submission table given", ErrPrecondition)
	}
	if !util.FileExists(req.Submissions) {
		return fmt.Errorf("%w: submission table %s does not exist", ErrPrecondition, req.Submissions)
	}
	if len(req.StructureDirs) == 0 {
		return fmt.Errorf("%w: no structure directories given", ErrPrecondition)
	}
	for _, dir := range req.StructureDirs {
		if !util.DirExists(dir) {
			return fmt.Errorf("%w: structure directory %s does not exist", ErrPrecondition, dir)
		}
	}
	for _, dir := range []string{req.OutputDir, req.RelaxedDir} {
		if dir == "" {
			continue
		}
		if err := util.EnsureDir(dir); err != nil {
			return fmt.Errorf("%w: %w", ErrPrecondition, err)
		}
	}
	if _, err := results.ParseFormat(string(req.Format)); err != nil {
		return fmt.Errorf("%w: %w", ErrPrecondition, err)
	}
	return nil
}

func (o *Orchestrator) buildLookup(dirs []string) (*submissions.Lookup, error) {
	lookup, err := submissions.BuildLookup(dirs)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPrecondition, err)
	}
	for _, d := range lookup.Duplicates {
		o.logger().Warn("duplicate structure id, later file wins",
			"submission_id", d.ID, "previous", d.Previous, "path", d.Path)
	}
	return lookup, nil
}

// process runs one slice through the worker pool and commits the artifact.
func (o *Orchestrator) process(ctx context.Context, req Request, slice []submissions.Submission, lookup *submissions.Lookup, start, end int) (*Result, error) {
	runID := uuid.New().String()
	correlationID := logging.GenerateCorrelationID()
	ctx = logging.WithCorrelationID(ctx, correlationID)
	log := logging.BatchLogger(correlationID, start, end)

	workers := req.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	workers = min(workers, len(slice))

	log.Info("starting batch", "submissions", len(slice), "workers", workers, "run_id", runID)
	startTime := time.Now()

	contexts, err := o.buildWorkers(workers, log)
	if err != nil {
		return nil, err
	}

	collected, err := runPool(ctx, contexts, slice, lookup)
	if err != nil {
		return nil, err
	}

	rows := make([]results.Row, len(collected))
	res := &Result{RunID: runID, Duplicates: lookup.Duplicates}
	for i, r := range collected {
		rows[i] = results.FromPipeline(r)
		if r.OK() {
			res.Succeeded++
		} else {
			res.Failed++
		}
	}
	results.Normalize(rows)
	res.Rows = rows

	format, _ := results.ParseFormat(string(req.Format))
	if err := o.commit(ctx, res, slice, format, start, end, log); err != nil {
		return nil, err
	}

	res.Duration = time.Since(startTime)
	if m := metrics.Get(); m != nil {
		m.ObserveBatch(string(format), len(rows), res.Manifest.Artifact.ByteSize, res.Duration.Seconds())
	}
	log.Info("batch complete",
		"succeeded", res.Succeeded,
		"failed", res.Failed,
		"artifact", res.URI,
		"duration_ms", res.Duration.Milliseconds())
	return res, nil
}

// buildWorkers constructs one WorkerContext per worker before any work is
// dispatched, so a broken collaborator fails the batch up front.
func (o *Orchestrator) buildWorkers(n int, log *slog.Logger) ([]*pipeline.WorkerContext, error) {
	if o.Factory == nil {
		return nil, fmt.Errorf("%w: no worker factory configured", ErrPrecondition)
	}
	contexts := make([]*pipeline.WorkerContext, n)
	for i := range contexts {
		wc, err := o.Factory(i)
		if err != nil {
			return nil, fmt.Errorf("%w: build worker %d: %w", ErrPrecondition, i, err)
		}
		if wc.Log == nil {
			wc.Log = log.With("worker_id", i)
		}
		contexts[i] = wc
	}
	return contexts, nil
}

// runPool implements the dispatcher → workers → collector flow. Results are
// returned in completion order.
func runPool(ctx context.Context, contexts []*pipeline.WorkerContext, slice []submissions.Submission, lookup pipeline.Lookup) ([]pipeline.Result, error) {
	queue := make(chan task, len(contexts)*2)
	out := make(chan taskResult, len(contexts)*2)
	var wg sync.WaitGroup

	for _, wc := range contexts {
		wg.Add(1)
		go func(wc *pipeline.WorkerContext) {
			defer wg.Done()
			for t := range queue {
				if ctx.Err() != nil {
					return
				}
				out <- taskResult{Result: pipeline.Run(ctx, wc, t.Sub, lookup)}
			}
		}(wc)
	}

	// Dispatcher
	go func() {
		defer close(queue)
		for _, sub := range slice {
			select {
			case <-ctx.Done():
				return
			case queue <- task{Sub: sub}:
			}
			if m := metrics.Get(); m != nil {
				m.SetWorkerQueueDepth(float64(len(queue)))
			}
		}
	}()

	// Close results when workers finish
	go func() {
		wg.Wait()
		close(out)
	}()

	collected := make([]pipeline.Result, 0, len(slice))
	for r := range out {
		collected = append(collected, r.Result)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("batch interrupted after %d of %d submissions: %w", len(collected), len(slice), err)
	}
	return collected, nil
}

// commit encodes and validates the rows, publishes artifact and manifest
// together and records lineage. Catalog and audit failures are logged, not
// returned.
func (o *Orchestrator) commit(ctx context.Context, res *Result, slice []submissions.Submission, format results.Format, start, end int, log *slog.Logger) error {
	data, err := results.Encode(res.Rows, format)
	if err != nil {
		return fmt.Errorf("encode batch: %w", err)
	}
	checksum := results.ComputeChecksum(data)

	validation := ValidateBatch(slice, res.Rows, data, checksum)
	for _, w := range validation.Warnings {
		log.Debug("batch validation warning", "warning", w)
	}
	if err := validation.Err(); err != nil {
		return err
	}

	ref := storage.ArtifactRef{Start: start, End: end, Format: format.Ext()}
	manifest := &storage.Manifest{
		Batch: storage.BatchInfo{
			Start:         start,
			End:           end,
			RunID:         res.RunID,
			Format:        format.Ext(),
			SchemaVersion: results.SchemaVersion,
		},
		Artifact: storage.ArtifactInfo{
			File:         ref.Name() + "." + format.Ext(),
			Checksum:     checksum,
			RowCount:     int64(len(res.Rows)),
			SuccessCount: int64(res.Succeeded),
			FailedCount:  int64(res.Failed),
			ByteSize:     int64(len(data)),
		},
		Producer: storage.ProducerInfo{
			Name:    ProducerName,
			Version: Version,
			GitSHA:  GitSHA,
		},
		CreatedAt: time.Now().UTC(),
	}

	if err := storage.Publish(ctx, o.Store, ref, data, manifest); err != nil {
		if m := metrics.Get(); m != nil {
			m.IncStorageErrors(o.backend())
		}
		return fmt.Errorf("publish batch: %w", err)
	}

	res.Ref = ref
	res.Key = ref.Path(o.Store.Prefix())
	res.URI = o.Store.URI(res.Key)
	res.Manifest = manifest

	if o.Catalog != nil {
		rec := catalog.BatchRecord{
			Dataset:         o.dataset(),
			SchemaVersion:   results.SchemaVersion,
			RunID:           res.RunID,
			Start:           start,
			End:             end,
			Format:          format.Ext(),
			RowCount:        manifest.Artifact.RowCount,
			SuccessCount:    manifest.Artifact.SuccessCount,
			FailedCount:     manifest.Artifact.FailedCount,
			ByteSize:        manifest.Artifact.ByteSize,
			Checksum:        manifest.Artifact.Checksum,
			StoragePath:     res.Key,
			StorageURI:      res.URI,
			ProducerVersion: Version,
			ProducerGitSHA:  GitSHA,
		}
		for _, row := range res.Rows {
			if row.Status == results.StatusFailed {
				rec.Failures = append(rec.Failures, catalog.Failure{SubmissionID: row.ID, Message: row.Error})
			}
		}
		if err := o.Catalog.RecordBatch(ctx, rec); err != nil {
			log.Warn("failed to record lineage", "error", err)
			if m := metrics.Get(); m != nil {
				m.IncCatalogErrors(o.CatalogBackend)
			}
		}
	}

	if o.Audit != nil {
		evt := &audit.Event{
			Batch: audit.BatchInfo{
				Dataset:       o.dataset(),
				SchemaVersion: results.SchemaVersion,
				RunID:         res.RunID,
				Start:         start,
				End:           end,
			},
			Artifact: audit.ArtifactInfo{
				Checksum:     manifest.Artifact.Checksum,
				StoragePath:  res.Key,
				StorageURI:   res.URI,
				RowCount:     manifest.Artifact.RowCount,
				SuccessCount: manifest.Artifact.SuccessCount,
				FailedCount:  manifest.Artifact.FailedCount,
				ByteSize:     manifest.Artifact.ByteSize,
			},
			Producer: audit.ProducerInfo{Name: ProducerName, Version: Version, GitSHA: GitSHA},
		}
		if err := o.Audit.Emit(ctx, evt); err != nil {
			log.Warn("failed to emit audit event", "error", err)
		}
	}
	return nil
}

func (o *Orchestrator) dataset() string {
	if o.Dataset == "" {
		return "binder_annotations"
	}
	return o.Dataset
}

func (o *Orchestrator) backend() string {
	if o.StorageBackend == "" {
		return "local"
	}
	return o.StorageBackend
}

// IsPrecondition reports whether err refused the run before processing.
func IsPrecondition(err error) bool {
	return errors.Is(err, ErrPrecondition)
}

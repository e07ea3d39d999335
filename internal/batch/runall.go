package batch

import (
	"context"
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/withObsrvr/binder-annotator/internal/checkpoint"
	"github.com/withObsrvr/binder-annotator/internal/metrics"
	"github.com/withObsrvr/binder-annotator/internal/results"
	"github.com/withObsrvr/binder-annotator/internal/storage"
	"github.com/withObsrvr/binder-annotator/internal/submissions"
)

// DefaultBatchSize is the number of submissions per batch in RunAll.
const DefaultBatchSize = 64

// Range is a half-open slice [Start, End) of the submission table.
type Range struct {
	Start int
	End   int
}

// MakeRanges splits n rows into consecutive ranges of at most size rows.
func MakeRanges(n, size int) []Range {
	if size <= 0 {
		size = DefaultBatchSize
	}
	var out []Range
	for s := 0; s < n; s += size {
		out = append(out, Range{Start: s, End: min(s+size, n)})
	}
	return out
}

// AllRequest describes a run over the whole table.
type AllRequest struct {
	Request // Start and End are ignored

	BatchSize    int
	SkipExisting bool // skip batches whose artifact already exists
}

// AllResult summarizes a RunAll call.
type AllResult struct {
	Batches []*Result
	Skipped []Range
}

// RunAll processes the whole table batch by batch. Batches recorded in the
// checkpoint, or already present in storage when SkipExisting is set, are
// skipped. The first batch error stops the run.
func (o *Orchestrator) RunAll(ctx context.Context, req AllRequest) (*AllResult, error) {
	if err := checkPreconditions(req.Request); err != nil {
		return nil, err
	}

	subs, err := submissions.ReadTable(req.Submissions)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPrecondition, err)
	}
	if len(subs) == 0 {
		return nil, fmt.Errorf("%w: submission table %s has no rows", ErrEmptyBatch, req.Submissions)
	}

	lookup, err := o.buildLookup(req.StructureDirs)
	if err != nil {
		return nil, err
	}

	cp, err := o.loadCheckpoint(ctx, req)
	if err != nil {
		return nil, err
	}

	format, _ := results.ParseFormat(string(req.Format))
	ranges := MakeRanges(len(subs), req.BatchSize)
	log := o.logger()
	log.Info("starting run", "submissions", len(subs), "batches", len(ranges), "batch_size", req.BatchSize)

	out := &AllResult{}
	for i, r := range ranges {
		if err := ctx.Err(); err != nil {
			return out, err
		}

		skip, err := o.shouldSkip(ctx, cp, req, r, format)
		if err != nil {
			return out, err
		}
		if skip {
			log.Info("skipping batch (already committed)", "start", r.Start, "end", r.End)
			out.Skipped = append(out.Skipped, r)
			if m := metrics.Get(); m != nil {
				m.IncBatchesSkipped()
			}
			continue
		}

		res, err := o.process(ctx, req.Request, subs[r.Start:r.End], lookup, r.Start, r.End)
		if err != nil {
			return out, fmt.Errorf("batch [%d, %d): %w", r.Start, r.End, err)
		}
		out.Batches = append(out.Batches, res)

		if cp != nil {
			cp.MarkCompleted(checkpoint.BatchRange{Start: r.Start, End: r.End, Checksum: res.Manifest.Artifact.Checksum})
			if err := o.Checkpoints.Save(ctx, cp); err != nil {
				log.Warn("failed to save checkpoint", "error", err)
			}
		}

		log.Info("run progress", "completed", i+1, "total", len(ranges))
	}
	return out, nil
}

func (o *Orchestrator) loadCheckpoint(ctx context.Context, req AllRequest) (*checkpoint.Checkpoint, error) {
	if o.Checkpoints == nil {
		return nil, nil
	}
	cp, err := o.Checkpoints.Load(ctx)
	if errors.Is(err, checkpoint.ErrNoCheckpoint) {
		return &checkpoint.Checkpoint{Input: req.Submissions, BatchSize: req.BatchSize}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load checkpoint: %w", err)
	}
	if cp.Input != req.Submissions || cp.BatchSize != req.BatchSize {
		o.logger().Warn("checkpoint does not match request, starting fresh",
			"checkpoint_input", cp.Input, "checkpoint_batch_size", cp.BatchSize)
		return &checkpoint.Checkpoint{Input: req.Submissions, BatchSize: req.BatchSize}, nil
	}
	return cp, nil
}

func (o *Orchestrator) shouldSkip(ctx context.Context, cp *checkpoint.Checkpoint, req AllRequest, r Range, format results.Format) (bool, error) {
	ref := storage.ArtifactRef{Start: r.Start, End: r.End, Format: format.Ext()}
	if cp != nil && cp.IsCompleted(r.Start, r.End) {
		exists, err := o.Store.Exists(ctx, ref)
		if err != nil {
			return false, fmt.Errorf("check artifact %s: %w", ref.Name(), err)
		}
		// A checkpoint entry without its artifact is stale.
		return exists, nil
	}
	if !req.SkipExisting {
		return false, nil
	}
	exists, err := o.Store.Exists(ctx, ref)
	if err != nil {
		return false, fmt.Errorf("check artifact %s: %w", ref.Name(), err)
	}
	return exists, nil
}

// CombineResult describes the merged table written by Combine.
type CombineResult struct {
	Key     string
	URI     string
	Rows    []results.Row
	Batches []string
}

// Combine concatenates every batch artifact in the store, in batch order,
// and writes final_results.<format> next to the results directory. When
// submissionsPath is set the rows are left-joined onto the submission table.
func (o *Orchestrator) Combine(ctx context.Context, submissionsPath string, format results.Format) (*CombineResult, error) {
	prefix := o.Store.Prefix()
	keys, err := o.Store.List(ctx, prefix+storage.ResultsDir+"/")
	if err != nil {
		return nil, fmt.Errorf("list batch artifacts: %w", err)
	}

	type batchKey struct {
		key        string
		start, end int
	}
	var batches []batchKey
	for _, key := range keys {
		name := path.Base(key)
		ext := path.Ext(name)
		if ext != ".parquet" && ext != ".csv" {
			continue
		}
		var start, end int
		if _, err := fmt.Sscanf(strings.TrimSuffix(name, ext), "batch_%d_%d", &start, &end); err != nil {
			continue
		}
		batches = append(batches, batchKey{key: key, start: start, end: end})
	}
	sort.Slice(batches, func(i, j int) bool {
		if batches[i].start != batches[j].start {
			return batches[i].start < batches[j].start
		}
		return batches[i].key < batches[j].key
	})

	out := &CombineResult{}
	tables := make([][]results.Row, 0, len(batches))
	for _, b := range batches {
		data, err := o.Store.Read(ctx, b.key)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", b.key, err)
		}
		rows, err := results.Decode(data, results.FormatOf(b.key))
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", b.key, err)
		}
		tables = append(tables, rows)
		out.Batches = append(out.Batches, b.key)
	}
	rows := results.Concat(tables...)

	if submissionsPath != "" {
		subs, err := submissions.ReadTable(submissionsPath)
		if err != nil {
			return nil, err
		}
		rows = results.Combine(rows, subs)
	}

	data, err := results.Encode(rows, format)
	if err != nil {
		return nil, fmt.Errorf("encode combined results: %w", err)
	}
	out.Key = prefix + "final_results." + format.Ext()
	if err := o.Store.Write(ctx, out.Key, data); err != nil {
		return nil, fmt.Errorf("write combined results: %w", err)
	}
	out.URI = o.Store.URI(out.Key)
	out.Rows = rows

	o.logger().Info("combined results", "batches", len(out.Batches), "rows", len(rows), "artifact", out.URI)
	return out, nil
}

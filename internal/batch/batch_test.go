package batch

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/withObsrvr/binder-annotator/internal/audit"
	"github.com/withObsrvr/binder-annotator/internal/catalog"
	"github.com/withObsrvr/binder-annotator/internal/checkpoint"
	"github.com/withObsrvr/binder-annotator/internal/config"
	"github.com/withObsrvr/binder-annotator/internal/energetics"
	"github.com/withObsrvr/binder-annotator/internal/pipeline"
	"github.com/withObsrvr/binder-annotator/internal/relax"
	"github.com/withObsrvr/binder-annotator/internal/results"
	"github.com/withObsrvr/binder-annotator/internal/scoring"
	"github.com/withObsrvr/binder-annotator/internal/secstruct"
	"github.com/withObsrvr/binder-annotator/internal/storage"
	"github.com/withObsrvr/binder-annotator/internal/structure"
	"github.com/withObsrvr/binder-annotator/internal/util"
)

// copyRelaxer copies the raw structure into the cache unchanged.
type copyRelaxer struct{}

func (copyRelaxer) Relax(ctx context.Context, rawPath, cachePath string) (relax.Handle, error) {
	if util.FileExists(cachePath) {
		return relax.Handle{Path: cachePath, Cached: true}, nil
	}
	data, err := os.ReadFile(rawPath)
	if err != nil {
		return relax.Handle{}, err
	}
	if err := util.WriteFileAtomic(cachePath, data); err != nil {
		return relax.Handle{}, err
	}
	return relax.Handle{Path: cachePath}, nil
}

type helixClassifier struct{}

func (helixClassifier) Classify(ctx context.Context, path string) (secstruct.Assignment, error) {
	return secstruct.Assignment{
		{Chain: "A", Number: 1}: 'H',
		{Chain: "A", Number: 2}: 'H',
	}, nil
}

func complexAtoms() []*structure.Atom {
	return []*structure.Atom{
		{Serial: 1, Name: "CA", ResName: "ALA", Chain: "A", ResSeq: 1, Occupancy: 1, BFactor: 90, Element: "C"},
		{Serial: 2, Name: "CA", ResName: "LEU", Chain: "A", ResSeq: 2, X: 3.8, Occupancy: 1, BFactor: 80, Element: "C"},
		{Serial: 3, Name: "CA", ResName: "GLY", Chain: "B", ResSeq: 1, Y: 3.5, Occupancy: 1, BFactor: 70, Element: "C"},
		{Serial: 4, Name: "CA", ResName: "SER", Chain: "B", ResSeq: 2, X: 3.8, Y: 3.5, Occupancy: 1, BFactor: 60, Element: "C"},
	}
}

type env struct {
	dir        string
	table      string
	structures string
	relaxed    string
}

// newEnv writes a three-row submission table; only sub1 and sub2 have
// structures.
func newEnv(t *testing.T) *env {
	t.Helper()
	dir := t.TempDir()
	e := &env{
		dir:        dir,
		table:      filepath.Join(dir, "submissions.csv"),
		structures: filepath.Join(dir, "structures"),
		relaxed:    filepath.Join(dir, "relaxed"),
	}
	require.NoError(t, os.WriteFile(e.table, []byte("id,sequence\nsub1,AL\nsub2,AL\nsub3,GS\n"), 0644))
	require.NoError(t, os.MkdirAll(e.structures, 0755))
	for _, id := range []string{"sub1", "sub2"} {
		f, err := os.Create(filepath.Join(e.structures, id+".pdb"))
		require.NoError(t, err)
		require.NoError(t, structure.FromAtoms(complexAtoms()).Encode(f))
		require.NoError(t, f.Close())
	}
	return e
}

func (e *env) factory() pipeline.Factory {
	return func(id int) (*pipeline.WorkerContext, error) {
		return &pipeline.WorkerContext{
			ID:          id,
			Relaxer:     copyRelaxer{},
			Classifier:  helixClassifier{},
			Scorer:      &scoring.Scorer{Engine: energetics.NewGeometricEngine()},
			BinderChain: "A",
			TargetChain: "B",
			RelaxedDir:  e.relaxed,
		}, nil
	}
}

func (e *env) request(out string, workers int) Request {
	return Request{
		Submissions:   e.table,
		StructureDirs: []string{e.structures},
		OutputDir:     out,
		RelaxedDir:    e.relaxed,
		Start:         0,
		End:           10,
		Format:        results.FormatParquet,
		Workers:       workers,
	}
}

func newOrchestrator(t *testing.T, e *env, out string) *Orchestrator {
	t.Helper()
	store, err := storage.NewLocalStore(out, "")
	require.NoError(t, err)
	return &Orchestrator{Factory: e.factory(), Store: store}
}

// recordingEmitter keeps emitted audit events.
type recordingEmitter struct {
	mu     sync.Mutex
	events []audit.Event
}

func (r *recordingEmitter) Emit(_ context.Context, evt *audit.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, *evt)
	return nil
}

func (r *recordingEmitter) Close() error { return nil }

func TestRunBatchEndToEnd(t *testing.T) {
	e := newEnv(t)
	out := filepath.Join(e.dir, "out")
	o := newOrchestrator(t, e, out)

	cat, err := catalog.NewSQLiteWriter(context.Background(), filepath.Join(e.dir, "lineage.db"))
	require.NoError(t, err)
	defer cat.Close()
	o.Catalog = cat
	o.Dataset = "test"
	emitter := &recordingEmitter{}
	o.Audit = emitter

	res, err := o.RunBatch(context.Background(), e.request(out, 2))
	require.NoError(t, err)

	assert.Equal(t, storage.ArtifactRef{Start: 0, End: 3, Format: "parquet"}, res.Ref)
	assert.Equal(t, 2, res.Succeeded)
	assert.Equal(t, 1, res.Failed)
	require.Len(t, res.Rows, 3)

	path := filepath.Join(out, "results", "batch_0_3.parquet")
	rows, err := results.ReadFile(path)
	require.NoError(t, err)
	require.Len(t, rows, 3)

	byID := map[string]results.Row{}
	for _, r := range rows {
		byID[r.ID] = r
	}
	for _, id := range []string{"sub1", "sub2"} {
		r := byID[id]
		assert.Equal(t, results.StatusSuccess, r.Status, id)
		require.NotNil(t, r.HelixPct, id)
		assert.Equal(t, 100.0, *r.HelixPct)
		require.NotNil(t, r.InterfaceNres)
		assert.Equal(t, int64(2), *r.InterfaceNres)
		assert.Equal(t, "AL", r.Sequence)
	}
	failed := byID["sub3"]
	assert.Equal(t, results.StatusFailed, failed.Status)
	assert.Equal(t, "No PDB file found for submission sub3", failed.Error)
	assert.Nil(t, failed.HelixPct)
	assert.Nil(t, failed.AtomContacts)

	manifestData, err := os.ReadFile(filepath.Join(out, "results", "batch_0_3_manifest.json"))
	require.NoError(t, err)
	var manifest storage.Manifest
	require.NoError(t, json.Unmarshal(manifestData, &manifest))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, results.VerifyChecksum(data, manifest.Artifact.Checksum))
	assert.Equal(t, int64(3), manifest.Artifact.RowCount)
	assert.Equal(t, int64(1), manifest.Artifact.FailedCount)
	assert.Equal(t, results.SchemaVersion, manifest.Batch.SchemaVersion)

	failures, err := cat.Failures(context.Background(), "test", results.SchemaVersion, 0, 3)
	require.NoError(t, err)
	require.Len(t, failures, 1)
	assert.Equal(t, "sub3", failures[0].SubmissionID)

	require.Len(t, emitter.events, 1)
	evt := emitter.events[0]
	assert.Equal(t, "test", evt.Batch.Dataset)
	assert.Equal(t, 3, evt.Batch.End)
	assert.Equal(t, manifest.Artifact.Checksum, evt.Artifact.Checksum)
	assert.Equal(t, res.URI, evt.Artifact.StorageURI)

	assert.FileExists(t, filepath.Join(e.relaxed, "sub1.pdb"))
}

func sortedRows(rows []results.Row) []results.Row {
	out := append([]results.Row(nil), rows...)
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func TestRunBatchWorkerCountInvariant(t *testing.T) {
	e := newEnv(t)

	outA := filepath.Join(e.dir, "one")
	resA, err := newOrchestrator(t, e, outA).RunBatch(context.Background(), e.request(outA, 1))
	require.NoError(t, err)

	outB := filepath.Join(e.dir, "many")
	resB, err := newOrchestrator(t, e, outB).RunBatch(context.Background(), e.request(outB, 4))
	require.NoError(t, err)

	assert.Equal(t, sortedRows(resA.Rows), sortedRows(resB.Rows))
}

func TestRunBatchPreconditions(t *testing.T) {
	e := newEnv(t)
	out := filepath.Join(e.dir, "out")
	o := newOrchestrator(t, e, out)
	ctx := context.Background()

	req := e.request(out, 1)
	req.Submissions = filepath.Join(e.dir, "missing.csv")
	_, err := o.RunBatch(ctx, req)
	assert.True(t, errors.Is(err, ErrPrecondition), "missing table: %v", err)

	req = e.request(out, 1)
	req.StructureDirs = []string{e.structures, filepath.Join(e.dir, "nope")}
	_, err = o.RunBatch(ctx, req)
	assert.True(t, IsPrecondition(err), "missing structure dir: %v", err)

	req = e.request(out, 1)
	req.Start, req.End = 5, 10
	_, err = o.RunBatch(ctx, req)
	assert.True(t, errors.Is(err, ErrEmptyBatch), "empty slice: %v", err)

	entries, _ := os.ReadDir(filepath.Join(out, "results"))
	assert.Empty(t, entries, "no artifact may be written on refusal")
}

func TestFactoryErrorIsFatal(t *testing.T) {
	e := newEnv(t)
	out := filepath.Join(e.dir, "out")
	o := newOrchestrator(t, e, out)
	o.Factory = func(int) (*pipeline.WorkerContext, error) { return nil, errors.New("no engine") }

	_, err := o.RunBatch(context.Background(), e.request(out, 2))
	assert.True(t, IsPrecondition(err))
}

func TestMakeRanges(t *testing.T) {
	assert.Equal(t, []Range{{0, 64}, {64, 128}, {128, 130}}, MakeRanges(130, 64))
	assert.Equal(t, []Range{{0, 2}}, MakeRanges(2, 0))
	assert.Nil(t, MakeRanges(0, 64))
}

func TestRunAllResumeAndCombine(t *testing.T) {
	e := newEnv(t)
	out := filepath.Join(e.dir, "out")
	o := newOrchestrator(t, e, out)
	cps, err := checkpoint.NewManager(checkpoint.Config{Enabled: true, Dir: filepath.Join(e.dir, "cp")})
	require.NoError(t, err)
	o.Checkpoints = cps

	req := AllRequest{Request: e.request(out, 2), BatchSize: 2}
	ctx := context.Background()

	first, err := o.RunAll(ctx, req)
	require.NoError(t, err)
	require.Len(t, first.Batches, 2)
	assert.Empty(t, first.Skipped)
	assert.FileExists(t, filepath.Join(out, "results", "batch_0_2.parquet"))
	assert.FileExists(t, filepath.Join(out, "results", "batch_2_3.parquet"))

	second, err := o.RunAll(ctx, req)
	require.NoError(t, err)
	assert.Empty(t, second.Batches)
	assert.Equal(t, []Range{{0, 2}, {2, 3}}, second.Skipped)

	combined, err := o.Combine(ctx, e.table, results.FormatCSV)
	require.NoError(t, err)
	assert.Len(t, combined.Batches, 2)
	require.Len(t, combined.Rows, 3)
	assert.Equal(t, []string{"sub1", "sub2", "sub3"},
		[]string{combined.Rows[0].ID, combined.Rows[1].ID, combined.Rows[2].ID})
	assert.Equal(t, results.StatusFailed, combined.Rows[2].Status)

	rows, err := results.ReadFile(filepath.Join(out, "final_results.csv"))
	require.NoError(t, err)
	assert.Len(t, rows, 3)
}

func TestRunAllSkipExistingWithoutCheckpoint(t *testing.T) {
	e := newEnv(t)
	out := filepath.Join(e.dir, "out")
	o := newOrchestrator(t, e, out)
	ctx := context.Background()

	_, err := o.RunAll(ctx, AllRequest{Request: e.request(out, 1), BatchSize: 64})
	require.NoError(t, err)

	again, err := o.RunAll(ctx, AllRequest{Request: e.request(out, 1), BatchSize: 64, SkipExisting: true})
	require.NoError(t, err)
	assert.Empty(t, again.Batches)
	assert.Equal(t, []Range{{0, 3}}, again.Skipped)
}

func TestNewFactory(t *testing.T) {
	cfg := config.Default()
	cfg.Energetics.Engine = "command+geometric"
	cfg.Energetics.Binary = "score-interface"

	wc, err := NewFactory(cfg)(3)
	require.NoError(t, err)
	assert.Equal(t, 3, wc.ID)
	assert.Equal(t, "A", wc.BinderChain)
	assert.Equal(t, "B", wc.TargetChain)

	stage, ok := wc.Relaxer.(*relax.Stage)
	require.True(t, ok)
	assert.IsType(t, relax.Passthrough{}, stage.Engine)
	assert.IsType(t, &secstruct.MkDSSP{}, wc.Classifier)

	cfg.Relax.Engine = "quantum"
	_, err = NewFactory(cfg)(0)
	assert.Error(t, err)
}

// Package pipeline runs the per-submission state machine: relaxation,
// secondary structure analysis, interface scoring and contact analysis.
// Run always returns a Result; failures are captured, never propagated.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"runtime/debug"
	"time"

	"github.com/withObsrvr/binder-annotator/internal/contacts"
	"github.com/withObsrvr/binder-annotator/internal/logging"
	"github.com/withObsrvr/binder-annotator/internal/metrics"
	"github.com/withObsrvr/binder-annotator/internal/relax"
	"github.com/withObsrvr/binder-annotator/internal/scoring"
	"github.com/withObsrvr/binder-annotator/internal/secstruct"
	"github.com/withObsrvr/binder-annotator/internal/structure"
	"github.com/withObsrvr/binder-annotator/internal/submissions"
)

var (
	// ErrStructureNotFound means no structure file matched the submission id.
	ErrStructureNotFound = errors.New("structure not found")

	// ErrPanic wraps a panic recovered inside a stage.
	ErrPanic = errors.New("panic in pipeline stage")
)

// State is a pipeline state.
type State int

const (
	Pending State = iota
	Relaxing
	StructureAnalysis
	InterfaceAnalysis
	ContactAnalysis
	Done
	Failed
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Relaxing:
		return "relaxing"
	case StructureAnalysis:
		return "structure_analysis"
	case InterfaceAnalysis:
		return "interface_analysis"
	case ContactAnalysis:
		return "contact_analysis"
	case Done:
		return "done"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// failurePrefix is the message prefix of a failure in each state.
var failurePrefix = map[State]string{
	Relaxing:          "Structure relaxation failed for",
	StructureAnalysis: "DSSP calculation failed for",
	InterfaceAnalysis: "Interface scoring failed for",
	ContactAnalysis:   "Contact analysis failed for",
}

// StageError is the terminal error of a submission. Its message is attached
// verbatim to the failure row.
type StageError struct {
	Stage State
	Err   error
	msg   string
}

func (e *StageError) Error() string { return e.msg }
func (e *StageError) Unwrap() error { return e.Err }

// Relaxer produces the relaxed structure used by all later stages.
type Relaxer interface {
	Relax(ctx context.Context, rawPath, cachePath string) (relax.Handle, error)
}

// Scorer computes the interface score record.
type Scorer interface {
	Score(ctx context.Context, path string, s *structure.Structure, binder, target string) (*scoring.Record, error)
}

// Lookup resolves submission ids to structure paths.
type Lookup interface {
	Path(id string) (string, bool)
}

// WorkerContext carries the collaborators of one worker. It is built once
// per worker and reused for every submission the worker processes.
type WorkerContext struct {
	ID         int
	Relaxer    Relaxer
	Classifier secstruct.Classifier
	Scorer     Scorer

	BinderChain string
	TargetChain string
	Cutoff      float64
	RelaxedDir  string

	// Timeout bounds one submission; zero disables the watchdog.
	Timeout time.Duration

	Log *slog.Logger
}

// Factory builds the context of a worker.
type Factory func(workerID int) (*WorkerContext, error)

// RelaxedPath returns the cache path of a submission's relaxed structure.
func (wc *WorkerContext) RelaxedPath(id string) string {
	return filepath.Join(wc.RelaxedDir, id+".pdb")
}

// Result is the outcome of one submission.
type Result struct {
	ID       string
	Sequence string
	Worker   int

	State       State // Done or Failed
	FailedStage State
	Err         error

	RelaxedPath string
	Cached      bool

	SecondaryStructure *secstruct.Summary
	Scores             *scoring.Record
	Contacts           *contacts.Summary

	Duration time.Duration
}

// OK reports whether the submission completed every stage.
func (r *Result) OK() bool {
	return r.State == Done
}

// ErrorMessage returns the failure message, or "" on success.
func (r *Result) ErrorMessage() string {
	if r.Err == nil {
		return ""
	}
	return r.Err.Error()
}

func (r *Result) fail(stage State, err error, msg string) {
	r.FailedStage = stage
	r.State = Failed
	r.Err = &StageError{Stage: stage, Err: err, msg: msg}
}

// Run processes one submission through every stage.
func Run(ctx context.Context, wc *WorkerContext, sub submissions.Submission, lookup Lookup) (res Result) {
	start := time.Now()
	log := logging.SubmissionLogger(wc.Log, sub.ID)
	res = Result{ID: sub.ID, Sequence: sub.Sequence, Worker: wc.ID, State: Pending}

	m := metrics.Get()
	if m != nil {
		m.AddInFlightSubmissions(1)
	}

	defer func() {
		if p := recover(); p != nil {
			res.fail(res.State, fmt.Errorf("%w: %v", ErrPanic, p),
				fmt.Sprintf("Error processing submission %s: %v", sub.ID, p))
			log.Error(res.ErrorMessage(), "stage", res.FailedStage.String(), "stack", string(debug.Stack()))
		}
		res.Duration = time.Since(start)
		if m != nil {
			m.AddInFlightSubmissions(-1)
			m.ObserveSubmissionDuration(res.Duration.Seconds())
			if res.OK() {
				m.IncSubmissions("success")
			} else {
				m.IncSubmissions("failed")
				m.IncStageFailures(res.FailedStage.String())
			}
		}
	}()

	if wc.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, wc.Timeout)
		defer cancel()
	}

	rawPath, ok := lookup.Path(sub.ID)
	if !ok {
		res.fail(Pending, ErrStructureNotFound, "No PDB file found for submission "+sub.ID)
		log.Warn(res.ErrorMessage())
		return res
	}

	// Relaxing
	res.State = Relaxing
	stageStart := time.Now()
	handle, err := wc.Relaxer.Relax(ctx, rawPath, wc.RelaxedPath(sub.ID))
	observe(m, Relaxing, stageStart)
	if err != nil {
		return stageFailure(res, log, Relaxing, err)
	}
	res.RelaxedPath, res.Cached = handle.Path, handle.Cached
	if m != nil {
		m.IncRelaxCache(handle.Cached)
	}
	log.Info("relaxed structure", "path", handle.Path, "cached", handle.Cached)

	// StructureAnalysis
	res.State = StructureAnalysis
	stageStart = time.Now()
	st, ss, err := wc.analyzeStructure(ctx, handle.Path, log)
	observe(m, StructureAnalysis, stageStart)
	if err != nil {
		return stageFailure(res, log, StructureAnalysis, err)
	}
	res.SecondaryStructure = ss
	log.Debug("secondary structure", "summary", *ss)

	// InterfaceAnalysis
	res.State = InterfaceAnalysis
	stageStart = time.Now()
	rec, err := wc.Scorer.Score(ctx, handle.Path, st, wc.BinderChain, wc.TargetChain)
	observe(m, InterfaceAnalysis, stageStart)
	if err != nil {
		return stageFailure(res, log, InterfaceAnalysis, err)
	}
	if m != nil {
		for feature := range rec.Failures {
			m.IncFeatureFailures(feature)
		}
	}
	res.Scores = rec

	// ContactAnalysis
	res.State = ContactAnalysis
	stageStart = time.Now()
	summary, err := contacts.Analyze(st, wc.BinderChain, wc.TargetChain, wc.cutoff())
	observe(m, ContactAnalysis, stageStart)
	if err != nil {
		return stageFailure(res, log, ContactAnalysis, err)
	}
	res.Contacts = summary

	res.State = Done
	log.Info("processed submission",
		"interface_nres", rec.InterfaceNres,
		"atom_contacts", summary.AtomContacts,
		"duration", time.Since(start))
	return res
}

func (wc *WorkerContext) cutoff() float64 {
	if wc.Cutoff == 0 {
		return contacts.DefaultCutoff
	}
	return wc.Cutoff
}

// analyzeStructure loads the relaxed complex and summarizes the binder's
// secondary structure against its interface.
func (wc *WorkerContext) analyzeStructure(ctx context.Context, path string, log *slog.Logger) (*structure.Structure, *secstruct.Summary, error) {
	st, err := structure.Load(path)
	if err != nil {
		return nil, nil, err
	}
	if err := st.Validate(wc.BinderChain, wc.TargetChain); err != nil {
		return nil, nil, err
	}
	iface, err := contacts.FindInterface(st, wc.BinderChain, wc.TargetChain, wc.cutoff())
	if err != nil {
		return nil, nil, err
	}
	labels, err := wc.Classifier.Classify(ctx, path)
	if err != nil {
		return nil, nil, err
	}
	ss, err := secstruct.Summarize(st, iface, wc.BinderChain, labels, log)
	if err != nil {
		return nil, nil, err
	}
	return st, ss, nil
}

func stageFailure(res Result, log *slog.Logger, stage State, err error) Result {
	res.fail(stage, err, fmt.Sprintf("%s %s: %v", failurePrefix[stage], res.ID, err))
	log.Error(res.ErrorMessage(), "stage", stage.String())
	return res
}

func observe(m *metrics.Metrics, stage State, start time.Time) {
	if m != nil {
		m.ObserveStageDuration(stage.String(), time.Since(start).Seconds())
	}
}

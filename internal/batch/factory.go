package batch

import (
	"fmt"

	"github.com/withObsrvr/binder-annotator/internal/config"
	"github.com/withObsrvr/binder-annotator/internal/energetics"
	"github.com/withObsrvr/binder-annotator/internal/logging"
	"github.com/withObsrvr/binder-annotator/internal/pipeline"
	"github.com/withObsrvr/binder-annotator/internal/relax"
	"github.com/withObsrvr/binder-annotator/internal/scoring"
	"github.com/withObsrvr/binder-annotator/internal/secstruct"
)

// NewFactory returns a worker factory wired from configuration. Each worker
// gets its own engines; external programs run as one subprocess per call.
func NewFactory(cfg config.Config) pipeline.Factory {
	return func(workerID int) (*pipeline.WorkerContext, error) {
		log := logging.WorkerLogger(workerID)

		relaxEngine, err := newRelaxEngine(cfg.Relax)
		if err != nil {
			return nil, err
		}
		scoreEngine, err := newEnergeticsEngine(cfg.Energetics)
		if err != nil {
			return nil, err
		}

		classifier := secstruct.NewMkDSSP(cfg.DSSP.Binary)
		if len(cfg.DSSP.Args) > 0 {
			classifier.Args = cfg.DSSP.Args
		}

		return &pipeline.WorkerContext{
			ID: workerID,
			Relaxer: &relax.Stage{
				Engine:     relaxEngine,
				ScratchDir: cfg.Relax.ScratchDir,
				Log:        log,
			},
			Classifier: classifier,
			Scorer: &scoring.Scorer{
				Engine: scoreEngine,
				Cutoff: cfg.Chains.Cutoff,
				Log:    log,
			},
			BinderChain: cfg.Chains.Binder,
			TargetChain: cfg.Chains.Target,
			Cutoff:      cfg.Chains.Cutoff,
			RelaxedDir:  cfg.Run.RelaxedDir,
			Timeout:     cfg.Workers.SubmissionTimeout,
			Log:         log,
		}, nil
	}
}

func newRelaxEngine(cfg config.RelaxConfig) (relax.Engine, error) {
	switch cfg.Engine {
	case "", "passthrough":
		return relax.Passthrough{}, nil
	case "command":
		return &relax.CommandEngine{
			Binary:        cfg.Binary,
			Args:          cfg.Args,
			Dir:           cfg.WorkDir,
			SuccessMarker: cfg.SuccessMarker,
		}, nil
	default:
		return nil, fmt.Errorf("unknown relax engine: %s", cfg.Engine)
	}
}

func newEnergeticsEngine(cfg config.EnergeticsConfig) (energetics.Engine, error) {
	geometric := energetics.NewGeometricEngine()
	if cfg.SurfaceCutoff > 0 {
		geometric.SurfaceCutoff = cfg.SurfaceCutoff
	}
	command := &energetics.CommandEngine{Binary: cfg.Binary, Args: cfg.Args, Dir: cfg.WorkDir}

	switch cfg.Engine {
	case "", "geometric":
		return geometric, nil
	case "command":
		return command, nil
	case "command+geometric":
		return energetics.Fallback(command, geometric), nil
	default:
		return nil, fmt.Errorf("unknown energetics engine: %s", cfg.Engine)
	}
}

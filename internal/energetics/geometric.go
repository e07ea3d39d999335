package energetics

import (
	"context"
	"sync"

	"github.com/withObsrvr/binder-annotator/internal/sasa"
	"github.com/withObsrvr/binder-annotator/internal/structure"
)

// DefaultSurfaceCutoff is the relative accessibility at or above which a
// residue of the isolated chain counts as surface layer.
const DefaultSurfaceCutoff = 0.40

// GeometricEngine computes the surface-area quantities natively. Energy-type
// features report ErrUnsupported.
type GeometricEngine struct {
	Params        sasa.Params
	SurfaceCutoff float64
}

// NewGeometricEngine returns an engine with default SASA parameters.
func NewGeometricEngine() *GeometricEngine {
	return &GeometricEngine{Params: sasa.DefaultParams(), SurfaceCutoff: DefaultSurfaceCutoff}
}

// Analyze loads the structure and computes complex and per-chain areas.
func (e *GeometricEngine) Analyze(ctx context.Context, path, binder, target string) (Report, error) {
	s, err := structure.Load(path)
	if err != nil {
		return nil, err
	}
	return e.AnalyzeStructure(s, binder, target)
}

// AnalyzeStructure computes the report for an already loaded structure.
func (e *GeometricEngine) AnalyzeStructure(s *structure.Structure, binder, target string) (Report, error) {
	b, err := s.RequireChain(binder)
	if err != nil {
		return nil, err
	}
	t, err := s.RequireChain(target)
	if err != nil {
		return nil, err
	}

	cutoff := e.SurfaceCutoff
	if cutoff <= 0 {
		cutoff = DefaultSurfaceCutoff
	}
	params := e.Params
	if params.Points <= 0 {
		params = sasa.DefaultParams()
	}

	bAtoms, tAtoms := b.Atoms(), t.Atoms()
	complexAtoms := append(append([]*structure.Atom{}, bAtoms...), tAtoms...)
	inComplex := sasa.Atoms(complexAtoms, params)

	r := &geometricReport{
		chains:    map[string]*structure.Chain{binder: b, target: t},
		chainSASA: make(map[string]float64, 2),
		params:    params,
		cutoff:    cutoff,
		surface:   make(map[string][]int),
	}
	var complexTotal float64
	for i, v := range inComplex {
		complexTotal += v
		if i < len(bAtoms) {
			r.chainSASA[binder] += v
		} else {
			r.chainSASA[target] += v
		}
	}
	r.dSASA = sasa.Total(bAtoms, params) + sasa.Total(tAtoms, params) - complexTotal
	return r, nil
}

type geometricReport struct {
	chains    map[string]*structure.Chain
	chainSASA map[string]float64
	dSASA     float64
	params    sasa.Params
	cutoff    float64

	mu      sync.Mutex
	surface map[string][]int
}

func (r *geometricReport) Value(f Feature) (float64, error) {
	if f == InterfaceDSASA {
		return r.dSASA, nil
	}
	return 0, unsupported(string(f))
}

func (r *geometricReport) ChainEnergy(chain string) (float64, error) {
	return 0, unsupported("energy_" + chain)
}

func (r *geometricReport) ChainSASA(chain string) (float64, error) {
	v, ok := r.chainSASA[chain]
	if !ok {
		return 0, structure.ErrChainNotFound
	}
	return v, nil
}

// SurfaceResidues selects residues of the chain taken on its own whose
// relative accessibility reaches the surface cutoff.
func (r *geometricReport) SurfaceResidues(chain string) ([]int, error) {
	c, ok := r.chains[chain]
	if !ok {
		return nil, structure.ErrChainNotFound
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if res, ok := r.surface[chain]; ok {
		return res, nil
	}

	out := []int{}
	for _, ra := range sasa.Residues(c.Residues, r.params) {
		if ra.Relative >= r.cutoff {
			out = append(out, ra.Residue.Number)
		}
	}
	r.surface[chain] = out
	return out, nil
}

package scoring

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/withObsrvr/binder-annotator/internal/energetics"
	"github.com/withObsrvr/binder-annotator/internal/structure"
)

const report = `{
  "features": {
    "interface_dG": -20, "interface_dSASA": 500, "packstat": 0.6,
    "interface_hbonds": 2, "dG_dSASA_ratio": -0.04, "buried_unsat_hbonds": 1
  },
  "errors": {"sc_value": "did not converge"},
  "chains": {"A": {"energy": -100, "sasa": 2000, "surface_residues": [1, 2, 3]}}
}`

type stubEngine struct {
	report string
	err    error
}

func (s stubEngine) Analyze(context.Context, string, string, string) (energetics.Report, error) {
	if s.err != nil {
		return nil, s.err
	}
	return energetics.DecodeReport([]byte(s.report))
}

func complexAt(targetY float64) *structure.Structure {
	return structure.FromAtoms([]*structure.Atom{
		{Chain: "A", ResSeq: 1, ResName: "LEU", Name: "CA", Element: "C"},
		{Chain: "A", ResSeq: 2, ResName: "LYS", Name: "CA", Element: "C", X: 3.8},
		{Chain: "A", ResSeq: 3, ResName: "GLY", Name: "CA", Element: "C", X: 20},
		{Chain: "B", ResSeq: 1, ResName: "ALA", Name: "CA", Element: "C", Y: targetY},
	})
}

func TestScore(t *testing.T) {
	sc := &Scorer{Engine: stubEngine{report: report}}
	rec, err := sc.Score(context.Background(), "x.pdb", complexAt(3.5), "A", "B")
	require.NoError(t, err)

	assert.Equal(t, 1, rec.InterfaceNres)
	assert.Equal(t, "A1", rec.InterfaceResidues)
	assert.Equal(t, 1, rec.AACounts.Get('L'))
	assert.InDelta(t, 100, rec.InterfaceHydrophobicity, 1e-9)

	assert.InDelta(t, -100, rec.BinderScore, 1e-9)
	assert.InDelta(t, -20, rec.InterfaceDG, 1e-9)
	assert.InDelta(t, 500, rec.InterfaceDSASA, 1e-9)
	assert.InDelta(t, 0.6, rec.InterfacePackstat, 1e-9)
	assert.InDelta(t, -4, rec.InterfaceDGSASARatio, 1e-9)
	assert.InDelta(t, 25, rec.InterfaceFraction, 1e-9)
	assert.InDelta(t, 2.0/3.0, rec.SurfaceHydrophobicity, 1e-9)

	require.NotNil(t, rec.InterfaceHbondPercentage)
	assert.InDelta(t, 200, *rec.InterfaceHbondPercentage, 1e-9)
	require.NotNil(t, rec.InterfaceDeltaUnsatHbondsPerc)
	assert.InDelta(t, 100, *rec.InterfaceDeltaUnsatHbondsPerc, 1e-9)

	// sc_value failed on its own; the rest of the record is intact.
	assert.Equal(t, 0.0, rec.InterfaceSC)
	assert.Contains(t, rec.Failures, "interface_sc")
	assert.Len(t, rec.Failures, 1)
}

func TestScoreNoInterface(t *testing.T) {
	sc := &Scorer{Engine: stubEngine{report: report}}
	rec, err := sc.Score(context.Background(), "x.pdb", complexAt(50), "A", "B")
	require.NoError(t, err)

	assert.Equal(t, 0, rec.InterfaceNres)
	assert.Equal(t, "", rec.InterfaceResidues)
	assert.Equal(t, 0.0, rec.InterfaceHydrophobicity)
	assert.Nil(t, rec.InterfaceHbondPercentage)
	assert.Nil(t, rec.InterfaceDeltaUnsatHbondsPerc)
}

func TestScoreZeroBinderSASA(t *testing.T) {
	sc := &Scorer{Engine: stubEngine{report: `{"features": {"interface_dSASA": 500}, "chains": {"A": {"sasa": 0}}}`}}
	rec, err := sc.Score(context.Background(), "x.pdb", complexAt(3.5), "A", "B")
	require.NoError(t, err)

	assert.Equal(t, 0.0, rec.InterfaceFraction)
	assert.Contains(t, rec.Failures, "binder_score")
	assert.Contains(t, rec.Failures, "surface_hydrophobicity")
}

func TestScoreLoadFailure(t *testing.T) {
	sc := &Scorer{Engine: stubEngine{err: errors.New("cannot read")}}
	rec, err := sc.Score(context.Background(), "x.pdb", complexAt(3.5), "A", "B")
	assert.Error(t, err)
	assert.Nil(t, rec)
}

func TestScoreMissingChain(t *testing.T) {
	sc := &Scorer{Engine: stubEngine{report: report}}
	_, err := sc.Score(context.Background(), "x.pdb", complexAt(3.5), "A", "Z")
	assert.ErrorIs(t, err, structure.ErrChainNotFound)
}

func TestAACounts(t *testing.T) {
	var c AACounts
	c[0] = 2
	c[len(Alphabet)-1] = 1

	assert.Equal(t, 2, c.Get('A'))
	assert.Equal(t, 1, c.Get('Y'))
	assert.Equal(t, 0, c.Get('X'))
	assert.Equal(t, 2, c.Map()["A"])
	assert.Equal(t,
		`{"A":2,"C":0,"D":0,"E":0,"F":0,"G":0,"H":0,"I":0,"K":0,"L":0,"M":0,"N":0,"P":0,"Q":0,"R":0,"S":0,"T":0,"V":0,"W":0,"Y":1}`,
		c.String())
}

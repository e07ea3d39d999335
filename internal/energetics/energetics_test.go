package energetics

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/withObsrvr/binder-annotator/internal/structure"
)

const sampleReport = `{
  "features": {"interface_dG": -31.5, "packstat": 0.62, "interface_hbonds": 4, "dG_dSASA_ratio": -0.021},
  "errors": {"sc_value": "did not converge"},
  "chains": {"A": {"energy": -210.4, "sasa": 5120.7, "surface_residues": [1, 2, 5]}}
}`

func TestDecodeReport(t *testing.T) {
	r, err := DecodeReport([]byte(sampleReport))
	if err != nil {
		t.Fatalf("DecodeReport failed: %v", err)
	}

	if v, err := r.Value(InterfaceDG); err != nil || v != -31.5 {
		t.Errorf("interface_dG: expected -31.5, got %v (%v)", v, err)
	}
	if _, err := r.Value(ShapeComplementarity); err == nil {
		t.Error("expected reported error for sc_value")
	}
	if _, err := r.Value(BuriedUnsatHbonds); !errors.Is(err, ErrFeatureMissing) {
		t.Errorf("expected ErrFeatureMissing, got %v", err)
	}
	if v, err := r.ChainEnergy("A"); err != nil || v != -210.4 {
		t.Errorf("energy A: expected -210.4, got %v (%v)", v, err)
	}
	if _, err := r.ChainSASA("B"); !errors.Is(err, ErrFeatureMissing) {
		t.Errorf("expected missing sasa for B, got %v", err)
	}
	if res, err := r.SurfaceResidues("A"); err != nil || len(res) != 3 {
		t.Errorf("surface A: expected 3 residues, got %v (%v)", res, err)
	}

	if _, err := DecodeReport([]byte("not json")); err == nil {
		t.Error("expected decode error")
	}
}

func TestCommandEngine(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	dir := t.TempDir()
	fixture := filepath.Join(dir, "report.json")
	if err := os.WriteFile(fixture, []byte(sampleReport), 0644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	e := &CommandEngine{Binary: "sh", Args: []string{"-c", "test \"$0\" = A_B && cat " + fixture, "{binder}_{target}"}}
	r, err := e.Analyze(context.Background(), "unused.pdb", "A", "B")
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	if v, _ := r.Value(Packstat); v != 0.62 {
		t.Errorf("expected packstat 0.62, got %v", v)
	}

	failing := &CommandEngine{Binary: "sh", Args: []string{"-c", "exit 1"}}
	if _, err := failing.Analyze(context.Background(), "x.pdb", "A", "B"); err == nil {
		t.Error("expected error from failing command")
	}
}

func complexStructure() *structure.Structure {
	return structure.FromAtoms([]*structure.Atom{
		{Chain: "A", ResSeq: 1, ResName: "ALA", Name: "CA", Element: "C"},
		{Chain: "A", ResSeq: 2, ResName: "GLY", Name: "CA", Element: "C", X: 3.8},
		{Chain: "B", ResSeq: 1, ResName: "GLY", Name: "CA", Element: "C", Y: 3.5},
		{Chain: "B", ResSeq: 2, ResName: "GLY", Name: "CA", Element: "C", Y: 40},
	})
}

func TestGeometricEngine(t *testing.T) {
	r, err := NewGeometricEngine().AnalyzeStructure(complexStructure(), "A", "B")
	if err != nil {
		t.Fatalf("AnalyzeStructure failed: %v", err)
	}

	dsasa, err := r.Value(InterfaceDSASA)
	if err != nil {
		t.Fatalf("dSASA failed: %v", err)
	}
	if dsasa <= 0 {
		t.Errorf("expected positive buried area, got %v", dsasa)
	}

	if _, err := r.Value(InterfaceDG); !errors.Is(err, ErrUnsupported) {
		t.Errorf("expected ErrUnsupported for dG, got %v", err)
	}
	if _, err := r.ChainEnergy("A"); !errors.Is(err, ErrUnsupported) {
		t.Errorf("expected ErrUnsupported for chain energy, got %v", err)
	}

	if v, err := r.ChainSASA("A"); err != nil || v <= 0 {
		t.Errorf("expected positive binder SASA, got %v (%v)", v, err)
	}

	surface, err := r.SurfaceResidues("A")
	if err != nil {
		t.Fatalf("SurfaceResidues failed: %v", err)
	}
	if len(surface) != 2 {
		t.Errorf("expected both exposed binder residues on the surface, got %v", surface)
	}

	if _, err := NewGeometricEngine().AnalyzeStructure(complexStructure(), "A", "Z"); !errors.Is(err, structure.ErrChainNotFound) {
		t.Errorf("expected ErrChainNotFound, got %v", err)
	}
}

type stubEngine struct {
	report Report
	err    error
}

func (s stubEngine) Analyze(context.Context, string, string, string) (Report, error) {
	return s.report, s.err
}

func TestFallback(t *testing.T) {
	primary, _ := DecodeReport([]byte(sampleReport))
	secondary, _ := NewGeometricEngine().AnalyzeStructure(complexStructure(), "A", "B")

	e := Fallback(stubEngine{report: primary}, stubEngine{report: secondary})
	r, err := e.Analyze(context.Background(), "x.pdb", "A", "B")
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}

	if v, _ := r.Value(InterfaceDG); v != -31.5 {
		t.Errorf("expected primary dG, got %v", v)
	}
	if v, err := r.Value(InterfaceDSASA); err != nil || v <= 0 {
		t.Errorf("expected dSASA from secondary, got %v (%v)", v, err)
	}
	if _, err := r.Value(ShapeComplementarity); err == nil {
		t.Error("expected sc_value to fail on both engines")
	}

	broken := Fallback(stubEngine{err: errors.New("boom")}, stubEngine{report: secondary})
	r, err = broken.Analyze(context.Background(), "x.pdb", "A", "B")
	if err != nil {
		t.Fatalf("expected secondary to carry the report, got %v", err)
	}
	if _, err := r.Value(InterfaceDSASA); err != nil {
		t.Errorf("expected dSASA from secondary, got %v", err)
	}

	dead := Fallback(stubEngine{err: errors.New("a")}, stubEngine{err: errors.New("b")})
	if _, err := dead.Analyze(context.Background(), "x.pdb", "A", "B"); err == nil {
		t.Error("expected error when both engines fail")
	}
}

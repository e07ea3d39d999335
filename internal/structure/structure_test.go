package structure

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/compress/zstd"
)

const samplePDB = `HEADER    TEST COMPLEX
REMARK   1 generated for tests
ATOM      1  N   MET A   1      11.104   6.134  -6.504  1.00 90.00           N
ATOM      2  CA  MET A   1      11.639   6.071  -5.147  1.00 80.00           C
ATOM      3  CA AGLY A   2      12.000   7.000  -4.000  0.60 70.00           C
ATOM      4  CA BGLY A   2      12.100   7.100  -4.100  0.40 10.00           C
TER
ATOM      5  CA  LYS B  10      20.000  20.000  20.000  1.00 50.00           C
HETATM    6  O   HOH B 101      30.000  30.000  30.000  1.00 20.00           O
ENDMDL
MODEL        2
ATOM      7  CA  LYS C   1       0.000   0.000   0.000  1.00 50.00           C
END
`

func TestParse(t *testing.T) {
	s, err := Parse(strings.NewReader(samplePDB))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if got := s.ChainIDs(); len(got) != 2 || got[0] != "A" || got[1] != "B" {
		t.Fatalf("expected chains [A B], got %v", got)
	}

	a, _ := s.Chain("A")
	if len(a.Residues) != 2 {
		t.Fatalf("expected 2 residues in chain A, got %d", len(a.Residues))
	}
	if len(a.Residues[1].Atoms) != 1 {
		t.Errorf("expected alternate location to be dropped, got %d atoms", len(a.Residues[1].Atoms))
	}
	if a.Residues[1].Atoms[0].BFactor != 70 {
		t.Errorf("expected first altloc kept, got bfactor %v", a.Residues[1].Atoms[0].BFactor)
	}

	mean, err := a.Residues[0].MeanBFactor()
	if err != nil {
		t.Fatalf("MeanBFactor failed: %v", err)
	}
	if mean != 85 {
		t.Errorf("expected mean bfactor 85, got %v", mean)
	}

	if c, ok := a.Residues[0].OneLetter(); !ok || c != 'M' {
		t.Errorf("expected M, got %q (ok=%v)", c, ok)
	}

	b, _ := s.Chain("B")
	if b.Residues[1].IsStandard() {
		t.Error("HOH should not be a standard residue")
	}
	if !b.Residues[1].Atoms[0].Hetero {
		t.Error("HETATM record should be marked hetero")
	}
}

func TestParseNoAtoms(t *testing.T) {
	_, err := Parse(strings.NewReader("HEADER only\nEND\n"))
	if !errors.Is(err, ErrNoAtoms) {
		t.Fatalf("expected ErrNoAtoms, got %v", err)
	}
}

func TestParseMalformed(t *testing.T) {
	_, err := Parse(strings.NewReader("ATOM      1  CA  ALA A   x      0.000   0.000   0.000\n"))
	if !errors.Is(err, ErrMalformed) {
		t.Fatalf("expected ErrMalformed, got %v", err)
	}
}

func TestFormatRoundTrip(t *testing.T) {
	in := &Atom{Serial: 42, Name: "CA", ResName: "TRP", Chain: "A", ResSeq: 7,
		X: 1.5, Y: -2.25, Z: 100.125, Occupancy: 1, BFactor: 88.5, Element: "C"}

	line := in.Format()
	if len(line) != 80 {
		t.Errorf("expected 80 columns, got %d", len(line))
	}

	out, err := parseAtomLine(line)
	if err != nil {
		t.Fatalf("parseAtomLine failed: %v", err)
	}
	if out.Name != "CA" || out.ResName != "TRP" || out.ResSeq != 7 || out.Chain != "A" {
		t.Errorf("identity mismatch: %+v", out)
	}
	if out.X != 1.5 || out.Y != -2.25 || out.Z != 100.125 || out.BFactor != 88.5 {
		t.Errorf("coordinate mismatch: %+v", out)
	}
}

func TestValidate(t *testing.T) {
	s, err := Parse(strings.NewReader(samplePDB))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	tests := []struct {
		name   string
		binder string
		target string
		want   error
	}{
		{"valid", "A", "B", nil},
		{"missing binder", "Z", "B", ErrChainNotFound},
		{"missing target", "A", "Q", ErrChainNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := s.Validate(tt.binder, tt.target)
			if tt.want == nil && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tt.want != nil && !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}

	three := FromAtoms([]*Atom{
		{Name: "CA", ResName: "ALA", Chain: "A", ResSeq: 1},
		{Name: "CA", ResName: "ALA", Chain: "B", ResSeq: 1},
		{Name: "CA", ResName: "ALA", Chain: "C", ResSeq: 1},
	})
	if err := three.Validate("A", "B"); !errors.Is(err, ErrInvalidComplex) {
		t.Errorf("expected ErrInvalidComplex for three chains, got %v", err)
	}
}

func TestLoadCompressed(t *testing.T) {
	dir := t.TempDir()

	enc, err := zstd.NewWriter(nil)
	if err != nil {
		t.Fatalf("create encoder: %v", err)
	}
	compressed := enc.EncodeAll([]byte(samplePDB), nil)
	enc.Close()

	path := filepath.Join(dir, "sub1.pdb.zst")
	if err := os.WriteFile(path, compressed, 0644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	s, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if s.AtomCount() != 5 {
		t.Errorf("expected 5 atoms, got %d", s.AtomCount())
	}
}

func TestEncodeParsesBack(t *testing.T) {
	s, err := Parse(strings.NewReader(samplePDB))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	var buf bytes.Buffer
	if err := s.Encode(&buf); err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	again, err := Parse(&buf)
	if err != nil {
		t.Fatalf("re-parse failed: %v", err)
	}
	if again.AtomCount() != s.AtomCount() {
		t.Errorf("expected %d atoms, got %d", s.AtomCount(), again.AtomCount())
	}
}

func TestStripNonCoordinate(t *testing.T) {
	out := string(StripNonCoordinate([]byte(samplePDB)))

	if strings.Contains(out, "HEADER") || strings.Contains(out, "REMARK") {
		t.Errorf("header records should be stripped:\n%s", out)
	}
	for _, want := range []string{"ATOM", "HETATM", "TER", "ENDMDL", "MODEL", "END"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %s record to be kept", want)
		}
	}
}

func TestEnsureCryst1(t *testing.T) {
	out := EnsureCryst1([]byte("ATOM\n"))
	if !bytes.HasPrefix(out, []byte("CRYST1")) {
		t.Fatalf("expected CRYST1 prefix, got %q", out)
	}
	if again := EnsureCryst1(out); !bytes.Equal(again, out) {
		t.Error("EnsureCryst1 should not add a second record")
	}
}

package secstruct

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/withObsrvr/binder-annotator/internal/contacts"
	"github.com/withObsrvr/binder-annotator/internal/structure"
)

// binder builds chain A with one CA atom per residue carrying the given B-factors.
func binder(bfactors ...float64) *structure.Structure {
	var atoms []*structure.Atom
	for i, b := range bfactors {
		atoms = append(atoms, &structure.Atom{Chain: "A", ResSeq: i + 1, ResName: "ALA", Name: "CA", X: float64(i) * 3.8, BFactor: b})
	}
	atoms = append(atoms, &structure.Atom{Chain: "B", ResSeq: 1, ResName: "GLY", Name: "CA", X: 100})
	return structure.FromAtoms(atoms)
}

func labels(codes string) Assignment {
	a := make(Assignment)
	for i := 0; i < len(codes); i++ {
		a[ResidueID{Chain: "A", Number: i + 1}] = codes[i]
	}
	return a
}

func TestClassOf(t *testing.T) {
	tests := []struct {
		code byte
		want Class
	}{
		{'H', Helix}, {'G', Helix}, {'I', Helix},
		{'E', Sheet},
		{'B', Loop}, {'T', Loop}, {'S', Loop}, {' ', Loop}, {'P', Loop},
	}
	for _, tt := range tests {
		if got := ClassOf(tt.code); got != tt.want {
			t.Errorf("ClassOf(%q) = %v, expected %v", tt.code, got, tt.want)
		}
	}
}

func TestSummarize(t *testing.T) {
	s := binder(90, 90, 80, 80, 70, 60)
	interacting := contacts.ResidueSet{1: 'A', 5: 'A'}

	// H G E E T ' ' -> 2 helix, 2 sheet, 2 loop
	sum, err := Summarize(s, interacting, "A", labels("HGEET "), nil)
	if err != nil {
		t.Fatalf("Summarize failed: %v", err)
	}

	if sum.HelixPct != 33.33 || sum.SheetPct != 33.33 || sum.LoopPct != 33.33 {
		t.Errorf("unexpected global percentages: %+v", sum)
	}
	if sum.IHelixPct != 50 || sum.ISheetPct != 0 || sum.ILoopPct != 50 {
		t.Errorf("unexpected interface percentages: %+v", sum)
	}
	// interface: residues 1 (90) and 5 (70)
	if sum.IPLDDT != 0.8 {
		t.Errorf("expected i_plddt 0.8, got %v", sum.IPLDDT)
	}
	// non-loop: 90, 90, 80, 80
	if sum.SSPLDDT != 0.85 {
		t.Errorf("expected ss_plddt 0.85, got %v", sum.SSPLDDT)
	}
}

func TestSummarizePercentagesSumTo100(t *testing.T) {
	for _, codes := range []string{"H", "HHE", "HEEL T", "GIIEEEEBBT", "EEEEEEE"} {
		bf := make([]float64, len(codes))
		for i := range bf {
			bf[i] = 50
		}
		sum, err := Summarize(binder(bf...), nil, "A", labels(codes), nil)
		if err != nil {
			t.Fatalf("%q: Summarize failed: %v", codes, err)
		}
		total := sum.HelixPct + sum.SheetPct + sum.LoopPct
		if math.Abs(total-100) > 0.1 {
			t.Errorf("%q: percentages sum to %v", codes, total)
		}
		if sum.IHelixPct != 0 || sum.ISheetPct != 0 || sum.ILoopPct != 0 || sum.IPLDDT != 0 {
			t.Errorf("%q: expected zero interface fields without interface, got %+v", codes, sum)
		}
	}
}

func TestSummarizeSkipsUnlabelled(t *testing.T) {
	s := binder(50, 50, 50)
	a := Assignment{{Chain: "A", Number: 2}: 'H'}

	sum, err := Summarize(s, nil, "A", a, nil)
	if err != nil {
		t.Fatalf("Summarize failed: %v", err)
	}
	if sum.HelixPct != 100 {
		t.Errorf("expected only the labelled residue to count, got %+v", sum)
	}
}

func TestSummarizeErrors(t *testing.T) {
	s := binder(50, 50)

	_, err := Summarize(s, nil, "A", Assignment{{Chain: "B", Number: 1}: 'H'}, nil)
	if !errors.Is(err, ErrNoResiduesProcessed) {
		t.Errorf("expected ErrNoResiduesProcessed, got %v", err)
	}

	_, err = Summarize(s, nil, "Z", labels("HH"), nil)
	if !errors.Is(err, structure.ErrChainNotFound) {
		t.Errorf("expected ErrChainNotFound, got %v", err)
	}
}

func dsspLine(n, resnum int, chain, aa string, ss byte) string {
	return fmt.Sprintf("%5d%5d %1s %1s  %c  0   0  100      0, 0.0     0, 0.0     0, 0.0     0, 0.0   0.000 360.0 360.0 360.0 360.0    0.0    0.0    0.0",
		n, resnum, chain, aa, ss)
}

func dsspFixture() string {
	var b strings.Builder
	b.WriteString("==== Secondary Structure Definition by the program DSSP ====\n")
	b.WriteString("    3  2  0  0  0 TOTAL NUMBER OF RESIDUES\n")
	b.WriteString("  #  RESIDUE AA STRUCTURE BP1 BP2  ACC     N-H-->O    O-->H-N    N-H-->O    O-->H-N    TCO  KAPPA ALPHA  PHI   PSI    X-CA   Y-CA   Z-CA\n")
	b.WriteString(dsspLine(1, 1, "A", "M", 'H') + "\n")
	b.WriteString(dsspLine(2, 2, "A", "K", ' ') + "\n")
	b.WriteString("    3        !              0   0    0      0, 0.0     0, 0.0     0, 0.0     0, 0.0   0.000 360.0 360.0 360.0 360.0    0.0    0.0    0.0\n")
	b.WriteString(dsspLine(4, 10, "B", "E", 'E') + "\n")
	return b.String()
}

func TestParseDSSP(t *testing.T) {
	a, err := ParseDSSP(strings.NewReader(dsspFixture()))
	if err != nil {
		t.Fatalf("ParseDSSP failed: %v", err)
	}
	if len(a) != 3 {
		t.Fatalf("expected 3 residues, got %d: %v", len(a), a)
	}
	if a[ResidueID{"A", 1}] != 'H' {
		t.Errorf("expected A1 H, got %q", a[ResidueID{"A", 1}])
	}
	if a[ResidueID{"A", 2}] != ' ' {
		t.Errorf("expected A2 blank, got %q", a[ResidueID{"A", 2}])
	}
	if a[ResidueID{"B", 10}] != 'E' {
		t.Errorf("expected B10 E, got %q", a[ResidueID{"B", 10}])
	}

	if _, err := ParseDSSP(strings.NewReader("garbage\n")); err == nil {
		t.Error("expected error for output without residue section")
	}
}

func TestMkDSSPClassify(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	dir := t.TempDir()

	fixture := filepath.Join(dir, "fixture.dssp")
	if err := os.WriteFile(fixture, []byte(dsspFixture()), 0644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	// Fake mkdssp: require the CRYST1 record, then copy the fixture to {output}.
	script := filepath.Join(dir, "mkdssp")
	body := "#!/bin/sh\nhead -1 \"$3\" | grep -q CRYST1 || exit 2\ncp " + fixture + " \"$4\"\n"
	if err := os.WriteFile(script, []byte(body), 0755); err != nil {
		t.Fatalf("write script: %v", err)
	}

	pdb := filepath.Join(dir, "in.pdb")
	f, err := os.Create(pdb)
	if err != nil {
		t.Fatalf("create pdb: %v", err)
	}
	if err := binder(50).Encode(f); err != nil {
		t.Fatalf("encode pdb: %v", err)
	}
	f.Close()

	a, err := NewMkDSSP(script).Classify(context.Background(), pdb)
	if err != nil {
		t.Fatalf("Classify failed: %v", err)
	}
	if a[ResidueID{"A", 1}] != 'H' {
		t.Errorf("expected A1 H, got %v", a)
	}

	if _, err := NewMkDSSP(filepath.Join(dir, "missing")).Classify(context.Background(), pdb); err == nil {
		t.Error("expected error for missing executable")
	}
}

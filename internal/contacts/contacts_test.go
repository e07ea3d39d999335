package contacts

import (
	"errors"
	"testing"

	"github.com/withObsrvr/binder-annotator/internal/structure"
)

func atom(chain string, resSeq int, resName, name string, x, y, z float64) *structure.Atom {
	return &structure.Atom{Chain: chain, ResSeq: resSeq, ResName: resName, Name: name, X: x, Y: y, Z: z}
}

// twoChain builds a complex where only binder residue 2 touches target residue 20.
func twoChain() *structure.Structure {
	return structure.FromAtoms([]*structure.Atom{
		atom("A", 1, "ALA", "CA", 0, 0, 0),
		atom("A", 2, "LEU", "CA", 10, 0, 0),
		atom("A", 2, "LEU", "CB", 10, 1.5, 0),
		atom("B", 20, "LYS", "CA", 13, 0, 0),
		atom("B", 21, "GLU", "CA", 40, 0, 0),
	})
}

func TestFindInterfaceSingleContact(t *testing.T) {
	set, err := FindInterface(twoChain(), "A", "B", DefaultCutoff)
	if err != nil {
		t.Fatalf("FindInterface failed: %v", err)
	}
	if len(set) != 1 {
		t.Fatalf("expected exactly 1 interacting residue, got %v", set)
	}
	if set[2] != 'L' {
		t.Errorf("expected residue 2 (L), got %v", set)
	}
}

func TestFindInterfaceEmpty(t *testing.T) {
	tests := []struct {
		name   string
		cutoff float64
	}{
		{"zero cutoff", 0},
		{"chains out of range", 1.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			set, err := FindInterface(twoChain(), "A", "B", tt.cutoff)
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if len(set) != 0 {
				t.Errorf("expected empty set, got %v", set)
			}
		})
	}
}

func TestFindInterfaceErrors(t *testing.T) {
	s := twoChain()

	if _, err := FindInterface(s, "Z", "B", DefaultCutoff); !errors.Is(err, structure.ErrChainNotFound) {
		t.Errorf("expected ErrChainNotFound for binder, got %v", err)
	}
	if _, err := FindInterface(s, "A", "Z", DefaultCutoff); !errors.Is(err, structure.ErrChainNotFound) {
		t.Errorf("expected ErrChainNotFound for target, got %v", err)
	}

	empty := twoChain()
	c, _ := empty.Chain("B")
	for _, r := range c.Residues {
		r.Atoms = nil
	}
	if _, err := FindInterface(empty, "A", "B", DefaultCutoff); !errors.Is(err, structure.ErrEmptyChain) {
		t.Errorf("expected ErrEmptyChain, got %v", err)
	}
}

func TestAnalyzeCountsUnknownResidueContacts(t *testing.T) {
	s := structure.FromAtoms([]*structure.Atom{
		atom("A", 1, "ALA", "CA", 0, 0, 0),
		atom("A", 2, "MSE", "CA", 5, 0, 0),
		atom("B", 10, "GLY", "CA", 0, 3, 0),
		atom("B", 11, "TRP", "CA", 0, -3, 0),
		atom("B", 12, "SER", "CA", 5, 3, 0),
	})

	sum, err := Analyze(s, "A", "B", DefaultCutoff)
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}

	// ALA1 touches GLY10 and TRP11; MSE2 touches SER12 but is non-standard.
	if sum.AtomContacts != 3 {
		t.Errorf("expected 3 atom contacts, got %d", sum.AtomContacts)
	}
	if len(sum.BinderResidues) != 1 || sum.BinderResidues[1] != 'A' {
		t.Errorf("expected binder residues {1:A}, got %v", sum.BinderResidues)
	}
	if got := sum.TargetResidueList; len(got) != 2 || got[0] != 10 || got[1] != 11 {
		t.Errorf("expected target residue list [10 11], got %v", got)
	}
	if sum.TotalInterfaceResidues != 3 {
		t.Errorf("expected 3 interface residues, got %d", sum.TotalInterfaceResidues)
	}

	set, err := FindInterface(s, "A", "B", DefaultCutoff)
	if err != nil {
		t.Fatalf("FindInterface failed: %v", err)
	}
	if set.Has(2) {
		t.Error("non-standard residue should be excluded from the interface set")
	}
}

func TestResidueSetJSON(t *testing.T) {
	b, err := ResidueSet{12: 'L', 3: 'K'}.MarshalJSON()
	if err != nil {
		t.Fatalf("MarshalJSON failed: %v", err)
	}
	if string(b) != `{"12":"L","3":"K"}` {
		t.Errorf("unexpected encoding %s", b)
	}
}

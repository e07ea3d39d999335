// Package contacts detects binder/target interface residues by atom proximity.
package contacts

import (
	"encoding/json"
	"sort"
	"strconv"

	"github.com/withObsrvr/binder-annotator/internal/spatial"
	"github.com/withObsrvr/binder-annotator/internal/structure"
)

// DefaultCutoff is the heavy-atom contact distance in Å.
const DefaultCutoff = 4.0

// ResidueSet maps residue numbers on one chain to one-letter amino acid codes.
type ResidueSet map[int]byte

// Numbers returns the residue numbers in ascending order.
func (s ResidueSet) Numbers() []int {
	out := make([]int, 0, len(s))
	for n := range s {
		out = append(out, n)
	}
	sort.Ints(out)
	return out
}

// Has reports whether residue n is in the set.
func (s ResidueSet) Has(n int) bool {
	_, ok := s[n]
	return ok
}

// MarshalJSON encodes the set as {"12":"L",...}.
func (s ResidueSet) MarshalJSON() ([]byte, error) {
	m := make(map[string]string, len(s))
	for n, c := range s {
		m[strconv.Itoa(n)] = string(c)
	}
	return json.Marshal(m)
}

// Summary is the full two-sided contact analysis.
type Summary struct {
	BinderResidues         ResidueSet
	TargetResidues         ResidueSet
	BinderResidueList      []int
	TargetResidueList      []int
	TotalInterfaceResidues int
	AtomContacts           int
}

// pairing holds, for every binder atom, the indices of target atoms in range.
type pairing struct {
	binder    []*structure.Atom
	target    []*structure.Atom
	neighbors [][]int
}

func pairAtoms(s *structure.Structure, binderID, targetID string, cutoff float64) (*pairing, error) {
	binder, err := s.RequireChain(binderID)
	if err != nil {
		return nil, err
	}
	target, err := s.RequireChain(targetID)
	if err != nil {
		return nil, err
	}

	p := &pairing{
		binder: binder.Atoms(),
		target: target.Atoms(),
	}

	points := make([]spatial.Point, len(p.target))
	for i, a := range p.target {
		points[i] = spatial.Point{X: a.X, Y: a.Y, Z: a.Z}
	}
	grid := spatial.NewGrid(points, cutoff)

	p.neighbors = make([][]int, len(p.binder))
	for i, a := range p.binder {
		p.neighbors[i] = grid.Within(spatial.Point{X: a.X, Y: a.Y, Z: a.Z}, cutoff, nil)
	}
	return p, nil
}

// FindInterface returns the binder residues having at least one atom within
// cutoff of a target atom. Non-standard residues are left out.
func FindInterface(s *structure.Structure, binderID, targetID string, cutoff float64) (ResidueSet, error) {
	p, err := pairAtoms(s, binderID, targetID, cutoff)
	if err != nil {
		return nil, err
	}

	set := make(ResidueSet)
	for i, near := range p.neighbors {
		if len(near) == 0 {
			continue
		}
		if c, ok := structure.OneLetter(p.binder[i].ResName); ok {
			set[p.binder[i].ResSeq] = c
		}
	}
	return set, nil
}

// Analyze runs the two-sided contact analysis. Target residues are recorded
// only through contacts of standard binder residues; AtomContacts counts every
// binder/target atom pair in range.
func Analyze(s *structure.Structure, binderID, targetID string, cutoff float64) (*Summary, error) {
	p, err := pairAtoms(s, binderID, targetID, cutoff)
	if err != nil {
		return nil, err
	}

	sum := &Summary{
		BinderResidues: make(ResidueSet),
		TargetResidues: make(ResidueSet),
	}
	for i, near := range p.neighbors {
		sum.AtomContacts += len(near)
		if len(near) == 0 {
			continue
		}
		c, ok := structure.OneLetter(p.binder[i].ResName)
		if !ok {
			continue
		}
		sum.BinderResidues[p.binder[i].ResSeq] = c
		for _, j := range near {
			if tc, ok := structure.OneLetter(p.target[j].ResName); ok {
				sum.TargetResidues[p.target[j].ResSeq] = tc
			}
		}
	}

	sum.BinderResidueList = sum.BinderResidues.Numbers()
	sum.TargetResidueList = sum.TargetResidues.Numbers()
	sum.TotalInterfaceResidues = len(sum.BinderResidues) + len(sum.TargetResidues)
	return sum, nil
}

package structure

import "fmt"

// residueNames maps the twenty standard amino acids to their one-letter codes.
var residueNames = map[string]byte{
	"ALA": 'A',
	"ARG": 'R',
	"ASN": 'N',
	"ASP": 'D',
	"CYS": 'C',
	"GLU": 'E',
	"GLN": 'Q',
	"GLY": 'G',
	"HIS": 'H',
	"ILE": 'I',
	"LEU": 'L',
	"LYS": 'K',
	"MET": 'M',
	"PHE": 'F',
	"PRO": 'P',
	"SER": 'S',
	"THR": 'T',
	"TRP": 'W',
	"TYR": 'Y',
	"VAL": 'V',
}

// OneLetter returns the one-letter code for a three-letter residue name.
// The second return value is false for anything outside the standard twenty.
func OneLetter(name3 string) (byte, bool) {
	c, ok := residueNames[name3]
	return c, ok
}

// Residue groups the atoms sharing a chain, residue number and insertion code.
type Residue struct {
	Chain  string
	Number int
	ICode  string
	Name   string
	Atoms  []*Atom
}

// OneLetter returns the residue's one-letter code, if it is a standard amino acid.
func (r *Residue) OneLetter() (byte, bool) {
	return OneLetter(r.Name)
}

// IsStandard reports whether the residue is one of the twenty standard amino acids.
func (r *Residue) IsStandard() bool {
	_, ok := residueNames[r.Name]
	return ok
}

// MeanBFactor averages the B-factor column over the residue's atoms.
func (r *Residue) MeanBFactor() (float64, error) {
	if len(r.Atoms) == 0 {
		return 0, fmt.Errorf("%w: residue %s%d", ErrNoAtoms, r.Chain, r.Number)
	}
	var sum float64
	for _, a := range r.Atoms {
		sum += a.BFactor
	}
	return sum / float64(len(r.Atoms)), nil
}

// Label returns the chain-prefixed residue label, e.g. "A12".
func (r *Residue) Label() string {
	return fmt.Sprintf("%s%d%s", r.Chain, r.Number, r.ICode)
}

// ResidueKey identifies a residue within a structure.
type ResidueKey struct {
	Chain  string
	Number int
	ICode  string
}

// Key returns the residue's identity within its structure.
func (r *Residue) Key() ResidueKey {
	return ResidueKey{Chain: r.Chain, Number: r.Number, ICode: r.ICode}
}

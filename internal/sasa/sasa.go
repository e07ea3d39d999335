// Package sasa computes solvent-accessible surface area with the
// Shrake-Rupley test-point method.
package sasa

import (
	"math"
	"strings"

	"github.com/withObsrvr/binder-annotator/internal/spatial"
	"github.com/withObsrvr/binder-annotator/internal/structure"
)

// Params controls the probe and sphere sampling density.
type Params struct {
	ProbeRadius float64
	Points      int
}

// DefaultParams uses a water probe and 100 test points per atom.
func DefaultParams() Params {
	return Params{ProbeRadius: 1.4, Points: 100}
}

// vdwRadii are Bondi-style radii by element (Å).
var vdwRadii = map[string]float64{
	"H":  1.10,
	"C":  1.70,
	"N":  1.55,
	"O":  1.52,
	"S":  1.80,
	"P":  1.80,
	"SE": 1.90,
}

const defaultRadius = 1.80

// Radius returns the van der Waals radius used for an atom.
func Radius(a *structure.Atom) float64 {
	if r, ok := vdwRadii[strings.ToUpper(a.Element)]; ok {
		return r
	}
	return defaultRadius
}

// maxASA is the theoretical maximum residue accessibility (Tien et al. 2013).
var maxASA = map[string]float64{
	"ALA": 129, "ARG": 274, "ASN": 195, "ASP": 193, "CYS": 167,
	"GLU": 223, "GLN": 225, "GLY": 104, "HIS": 224, "ILE": 197,
	"LEU": 201, "LYS": 236, "MET": 224, "PHE": 240, "PRO": 159,
	"SER": 155, "THR": 172, "TRP": 285, "TYR": 263, "VAL": 174,
}

// sphere returns n points spread over the unit sphere (golden spiral).
func sphere(n int) []spatial.Point {
	pts := make([]spatial.Point, n)
	inc := math.Pi * (3 - math.Sqrt(5))
	off := 2 / float64(n)
	for i := 0; i < n; i++ {
		y := float64(i)*off - 1 + off/2
		r := math.Sqrt(1 - y*y)
		phi := float64(i) * inc
		pts[i] = spatial.Point{X: math.Cos(phi) * r, Y: y, Z: math.Sin(phi) * r}
	}
	return pts
}

// Atoms returns the accessible area of each atom (Å²), in input order.
func Atoms(atoms []*structure.Atom, p Params) []float64 {
	if p.Points <= 0 {
		p.Points = DefaultParams().Points
	}
	if len(atoms) == 0 {
		return nil
	}

	centers := make([]spatial.Point, len(atoms))
	radii := make([]float64, len(atoms))
	maxR := 0.0
	for i, a := range atoms {
		centers[i] = spatial.Point{X: a.X, Y: a.Y, Z: a.Z}
		radii[i] = Radius(a) + p.ProbeRadius
		if radii[i] > maxR {
			maxR = radii[i]
		}
	}

	grid := spatial.NewGrid(centers, 2*maxR)
	unit := sphere(p.Points)
	out := make([]float64, len(atoms))
	var near []int

	for i, c := range centers {
		ri := radii[i]
		near = grid.Within(c, ri+maxR, near[:0])

		exposed := 0
		for _, u := range unit {
			tp := spatial.Point{X: c.X + u.X*ri, Y: c.Y + u.Y*ri, Z: c.Z + u.Z*ri}
			buried := false
			for _, j := range near {
				if j == i {
					continue
				}
				if centers[j].Dist2(tp) < radii[j]*radii[j] {
					buried = true
					break
				}
			}
			if !buried {
				exposed++
			}
		}
		out[i] = 4 * math.Pi * ri * ri * float64(exposed) / float64(len(unit))
	}
	return out
}

// Total sums the per-atom areas.
func Total(atoms []*structure.Atom, p Params) float64 {
	var sum float64
	for _, v := range Atoms(atoms, p) {
		sum += v
	}
	return sum
}

// ResidueArea is the accessible area of one residue.
type ResidueArea struct {
	Residue  *structure.Residue
	Area     float64
	Relative float64 // Area / max accessibility; 0 for non-standard residues
}

// Residues computes per-residue areas for the given residues in isolation
// from anything else in the structure.
func Residues(residues []*structure.Residue, p Params) []ResidueArea {
	var atoms []*structure.Atom
	owner := make([]int, 0)
	for ri, r := range residues {
		for _, a := range r.Atoms {
			atoms = append(atoms, a)
			owner = append(owner, ri)
		}
	}

	areas := Atoms(atoms, p)
	out := make([]ResidueArea, len(residues))
	for ri, r := range residues {
		out[ri].Residue = r
	}
	for i, v := range areas {
		out[owner[i]].Area += v
	}
	for i := range out {
		if m, ok := maxASA[out[i].Residue.Name]; ok {
			out[i].Relative = out[i].Area / m
		}
	}
	return out
}

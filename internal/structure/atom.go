package structure

import (
	"fmt"
	"strconv"
	"strings"
)

// Atom is a single ATOM or HETATM record.
type Atom struct {
	Serial    int
	Name      string
	AltLoc    string
	ResName   string
	Chain     string
	ResSeq    int
	ICode     string
	X         float64
	Y         float64
	Z         float64
	Occupancy float64
	BFactor   float64
	Element   string
	Charge    string
	Hetero    bool
}

// column returns line[from:to] trimmed, tolerating short lines.
func column(line string, from, to int) string {
	if from >= len(line) {
		return ""
	}
	if to > len(line) {
		to = len(line)
	}
	return strings.TrimSpace(line[from:to])
}

// parseAtomLine reads the fixed-width columns of an ATOM/HETATM record.
// https://www.wwpdb.org/documentation/file-format-content/format33/sect9.html#ATOM
func parseAtomLine(line string) (*Atom, error) {
	if len(line) < 54 {
		return nil, fmt.Errorf("%w: coordinate record too short (%d columns)", ErrMalformed, len(line))
	}

	var (
		a   Atom
		err error
	)
	a.Hetero = strings.HasPrefix(line, "HETATM")
	a.Serial, _ = strconv.Atoi(column(line, 6, 11))
	a.Name = column(line, 12, 16)
	a.AltLoc = column(line, 16, 17)
	a.ResName = column(line, 17, 20)
	a.Chain = column(line, 21, 22)
	if a.ResSeq, err = strconv.Atoi(column(line, 22, 26)); err != nil {
		return nil, fmt.Errorf("%w: residue number %q", ErrMalformed, column(line, 22, 26))
	}
	a.ICode = column(line, 26, 27)
	if a.X, err = strconv.ParseFloat(column(line, 30, 38), 64); err != nil {
		return nil, fmt.Errorf("%w: x coordinate: %v", ErrMalformed, err)
	}
	if a.Y, err = strconv.ParseFloat(column(line, 38, 46), 64); err != nil {
		return nil, fmt.Errorf("%w: y coordinate: %v", ErrMalformed, err)
	}
	if a.Z, err = strconv.ParseFloat(column(line, 46, 54), 64); err != nil {
		return nil, fmt.Errorf("%w: z coordinate: %v", ErrMalformed, err)
	}
	a.Occupancy, _ = strconv.ParseFloat(column(line, 54, 60), 64)
	a.BFactor, _ = strconv.ParseFloat(column(line, 60, 66), 64)
	a.Element = column(line, 76, 78)
	a.Charge = column(line, 78, 80)
	if a.Element == "" && a.Name != "" {
		a.Element = a.Name[:1]
	}
	return &a, nil
}

// Format renders the atom as an 80-column PDB coordinate record.
func (a *Atom) Format() string {
	record := "ATOM"
	if a.Hetero {
		record = "HETATM"
	}
	name := a.Name
	if len(name) < 4 {
		name = " " + name
	}
	return fmt.Sprintf("%-6s%5d %-4s%1s%3s %1s%4d%1s   %8.3f%8.3f%8.3f%6.2f%6.2f          %2s%-2s",
		record, a.Serial, name, a.AltLoc, a.ResName, a.Chain, a.ResSeq, a.ICode,
		a.X, a.Y, a.Z, a.Occupancy, a.BFactor, a.Element, a.Charge)
}

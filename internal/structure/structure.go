// Package structure reads protein complexes from PDB coordinate files.
package structure

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrChainNotFound is returned when a named chain is absent from the structure.
	ErrChainNotFound = errors.New("chain not found")

	// ErrEmptyChain is returned when a named chain has no atoms.
	ErrEmptyChain = errors.New("chain has no atoms")

	// ErrInvalidComplex is returned when a structure is not a two-chain complex.
	ErrInvalidComplex = errors.New("invalid complex")

	// ErrNoAtoms is returned for residues or files without coordinate records.
	ErrNoAtoms = errors.New("no atoms")

	// ErrMalformed is returned for coordinate records that cannot be parsed.
	ErrMalformed = errors.New("malformed coordinate record")
)

// Chain is an ordered list of residues.
type Chain struct {
	ID       string
	Residues []*Residue
}

// Atoms returns every atom of the chain in file order.
func (c *Chain) Atoms() []*Atom {
	var atoms []*Atom
	for _, r := range c.Residues {
		atoms = append(atoms, r.Atoms...)
	}
	return atoms
}

// Structure is the first model of a coordinate file.
type Structure struct {
	Chains []*Chain
	byID   map[string]*Chain
}

// FromAtoms groups atoms into chains and residues, preserving first-seen order.
func FromAtoms(atoms []*Atom) *Structure {
	s := &Structure{byID: make(map[string]*Chain)}
	residues := make(map[ResidueKey]*Residue)

	for _, a := range atoms {
		c, ok := s.byID[a.Chain]
		if !ok {
			c = &Chain{ID: a.Chain}
			s.byID[a.Chain] = c
			s.Chains = append(s.Chains, c)
		}
		k := ResidueKey{Chain: a.Chain, Number: a.ResSeq, ICode: a.ICode}
		r, ok := residues[k]
		if !ok {
			r = &Residue{Chain: a.Chain, Number: a.ResSeq, ICode: a.ICode, Name: a.ResName}
			residues[k] = r
			c.Residues = append(c.Residues, r)
		}
		r.Atoms = append(r.Atoms, a)
	}
	return s
}

// Chain returns the chain with the given id.
func (s *Structure) Chain(id string) (*Chain, bool) {
	c, ok := s.byID[id]
	return c, ok
}

// ChainIDs lists chain ids in file order.
func (s *Structure) ChainIDs() []string {
	ids := make([]string, 0, len(s.Chains))
	for _, c := range s.Chains {
		ids = append(ids, c.ID)
	}
	return ids
}

// RequireChain returns the named chain, failing if it is absent or has no atoms.
func (s *Structure) RequireChain(id string) (*Chain, error) {
	c, ok := s.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q (available: %s)", ErrChainNotFound, id, strings.Join(s.ChainIDs(), ","))
	}
	for _, r := range c.Residues {
		if len(r.Atoms) > 0 {
			return c, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrEmptyChain, id)
}

// Validate checks that the structure is exactly the binder/target complex.
func (s *Structure) Validate(binder, target string) error {
	if _, err := s.RequireChain(binder); err != nil {
		return err
	}
	if _, err := s.RequireChain(target); err != nil {
		return err
	}
	if len(s.Chains) != 2 {
		ids := s.ChainIDs()
		sort.Strings(ids)
		return fmt.Errorf("%w: expected 2 chains, found %d (%s)", ErrInvalidComplex, len(ids), strings.Join(ids, ","))
	}
	return nil
}

// Residues returns every residue in chain order.
func (s *Structure) Residues() []*Residue {
	var out []*Residue
	for _, c := range s.Chains {
		out = append(out, c.Residues...)
	}
	return out
}

// AtomCount returns the total number of atoms.
func (s *Structure) AtomCount() int {
	n := 0
	for _, r := range s.Residues() {
		n += len(r.Atoms)
	}
	return n
}

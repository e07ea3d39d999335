// Package secstruct aggregates per-residue secondary structure labels of the
// binder chain into helix/sheet/loop percentages and confidence averages.
package secstruct

import (
	"context"
	"errors"
	"log/slog"
	"math"

	"github.com/withObsrvr/binder-annotator/internal/contacts"
	"github.com/withObsrvr/binder-annotator/internal/structure"
)

// ErrNoResiduesProcessed is returned when no binder residue could be classified.
var ErrNoResiduesProcessed = errors.New("no residues were processed successfully")

// Class is the collapsed secondary structure bucket.
type Class int

const (
	Loop Class = iota
	Helix
	Sheet
)

func (c Class) String() string {
	switch c {
	case Helix:
		return "helix"
	case Sheet:
		return "sheet"
	default:
		return "loop"
	}
}

// ClassOf collapses a DSSP code: H, G and I are helix, E is sheet, anything
// else (including blank) is loop.
func ClassOf(code byte) Class {
	switch code {
	case 'H', 'G', 'I':
		return Helix
	case 'E':
		return Sheet
	default:
		return Loop
	}
}

// ResidueID addresses a residue by chain and number.
type ResidueID struct {
	Chain  string
	Number int
}

// Assignment holds the raw one-letter classifier code per residue.
type Assignment map[ResidueID]byte

// Classifier assigns secondary structure codes to the residues of a structure file.
type Classifier interface {
	Classify(ctx context.Context, path string) (Assignment, error)
}

// Summary is the binder secondary structure profile. Percentages are in
// [0,100] and confidences in [0,1], all rounded to two decimals.
type Summary struct {
	HelixPct  float64
	SheetPct  float64
	LoopPct   float64
	IHelixPct float64
	ISheetPct float64
	ILoopPct  float64
	IPLDDT    float64
	SSPLDDT   float64
}

type counts struct {
	helix, sheet, total int
}

func (c *counts) add(cl Class) {
	c.total++
	switch cl {
	case Helix:
		c.helix++
	case Sheet:
		c.sheet++
	}
}

// percentages returns helix, sheet and loop shares; loop is the remainder.
func (c counts) percentages() (float64, float64, float64) {
	if c.total == 0 {
		return 0, 0, 0
	}
	n := float64(c.total)
	return round2(float64(c.helix) / n * 100),
		round2(float64(c.sheet) / n * 100),
		round2(float64(c.total-c.helix-c.sheet) / n * 100)
}

// Summarize classifies every binder residue present in labels. Residues the
// classifier did not label are skipped; residues whose confidence cannot be
// computed are logged and skipped.
func Summarize(s *structure.Structure, interacting contacts.ResidueSet, binder string, labels Assignment, log *slog.Logger) (*Summary, error) {
	if log == nil {
		log = slog.Default()
	}

	chain, err := s.RequireChain(binder)
	if err != nil {
		return nil, err
	}

	var (
		all, iface          counts
		ifacePLDDT, ssPLDDT []float64
	)

	for _, res := range chain.Residues {
		code, ok := labels[ResidueID{Chain: binder, Number: res.Number}]
		if !ok {
			continue
		}
		conf, err := res.MeanBFactor()
		if err != nil {
			log.Warn("skipping residue", "residue", res.Label(), "error", err)
			continue
		}

		cl := ClassOf(code)
		all.add(cl)
		if cl != Loop {
			ssPLDDT = append(ssPLDDT, conf)
		}
		if interacting.Has(res.Number) {
			iface.add(cl)
			ifacePLDDT = append(ifacePLDDT, conf)
		}
	}

	if all.total == 0 {
		return nil, ErrNoResiduesProcessed
	}

	sum := &Summary{
		IPLDDT:  round2(mean(ifacePLDDT) / 100),
		SSPLDDT: round2(mean(ssPLDDT) / 100),
	}
	sum.HelixPct, sum.SheetPct, sum.LoopPct = all.percentages()
	sum.IHelixPct, sum.ISheetPct, sum.ILoopPct = iface.percentages()
	return sum, nil
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var s float64
	for _, x := range xs {
		s += x
	}
	return s / float64(len(xs))
}

func round2(x float64) float64 {
	return math.Round(x*100) / 100
}

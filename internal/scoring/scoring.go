// Package scoring derives the interface score record of a relaxed complex
// from the energetics collaborator and the detected interface.
package scoring

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"

	"github.com/withObsrvr/binder-annotator/internal/contacts"
	"github.com/withObsrvr/binder-annotator/internal/energetics"
	"github.com/withObsrvr/binder-annotator/internal/structure"
)

const (
	// Alphabet is the fixed amino-acid order of AACounts.
	Alphabet = "ACDEFGHIKLMNPQRSTVWY"

	// Hydrophobic residues counted by interface hydrophobicity.
	Hydrophobic = "ACFILMPVWY"
)

// apolar and aromatic residues counted by surface hydrophobicity.
var surfaceHydrophobic = map[string]bool{
	"ALA": true, "GLY": true, "ILE": true, "LEU": true, "MET": true, "PRO": true, "VAL": true,
	"PHE": true, "TRP": true, "TYR": true,
}

// AACounts holds interface residue counts in Alphabet order.
type AACounts [len(Alphabet)]int

// Get returns the count for a one-letter code.
func (c AACounts) Get(code byte) int {
	i := strings.IndexByte(Alphabet, code)
	if i < 0 {
		return 0
	}
	return c[i]
}

// Map returns the counts keyed by one-letter code.
func (c AACounts) Map() map[string]int {
	m := make(map[string]int, len(Alphabet))
	for i := range Alphabet {
		m[Alphabet[i:i+1]] = c[i]
	}
	return m
}

// String encodes the counts as a JSON object in Alphabet order.
func (c AACounts) String() string {
	var b strings.Builder
	b.WriteByte('{')
	for i := range Alphabet {
		if i > 0 {
			b.WriteByte(',')
		}
		fmt.Fprintf(&b, "%q:%d", Alphabet[i:i+1], c[i])
	}
	b.WriteByte('}')
	return b.String()
}

// Result is the outcome of one feature computation.
type Result struct {
	Value float64
	Err   error
}

func result(v float64, err error) Result {
	return Result{Value: v, Err: err}
}

// Record is the interface score record of one complex.
type Record struct {
	BinderScore                   float64
	SurfaceHydrophobicity         float64
	InterfaceSC                   float64
	InterfacePackstat             float64
	InterfaceDG                   float64
	InterfaceDSASA                float64
	InterfaceDGSASARatio          float64
	InterfaceFraction             float64
	InterfaceHydrophobicity       float64
	InterfaceNres                 int
	InterfaceHbonds               float64
	InterfaceHbondPercentage      *float64
	InterfaceDeltaUnsatHbonds     float64
	InterfaceDeltaUnsatHbondsPerc *float64
	AACounts                      AACounts
	InterfaceResidues             string

	// Failures maps each defaulted feature to its error message.
	Failures map[string]string
}

// Scorer computes Records. A zero Cutoff uses contacts.DefaultCutoff.
type Scorer struct {
	Engine energetics.Engine
	Cutoff float64
	Log    *slog.Logger
}

// Score analyzes the complex at path, whose parsed form is s. An error means
// the complex could not be loaded or its interface could not be detected;
// individual feature failures are defaulted and listed in Record.Failures.
func (sc *Scorer) Score(ctx context.Context, path string, s *structure.Structure, binder, target string) (*Record, error) {
	log := sc.Log
	if log == nil {
		log = slog.Default()
	}
	cutoff := sc.Cutoff
	if cutoff == 0 {
		cutoff = contacts.DefaultCutoff
	}

	report, err := sc.Engine.Analyze(ctx, path, binder, target)
	if err != nil {
		return nil, fmt.Errorf("load structure: %w", err)
	}

	iface, err := contacts.FindInterface(s, binder, target, cutoff)
	if err != nil {
		return nil, err
	}

	rec := &Record{}
	composition(rec, iface, binder)

	features := map[string]Result{
		"binder_score":                 result(report.ChainEnergy(binder)),
		"surface_hydrophobicity":       surfaceHydrophobicity(s, report, binder),
		"interface_sc":                 result(report.Value(energetics.ShapeComplementarity)),
		"interface_packstat":           result(report.Value(energetics.Packstat)),
		"interface_dG":                 result(report.Value(energetics.InterfaceDG)),
		"interface_dSASA":              result(report.Value(energetics.InterfaceDSASA)),
		"interface_dG_SASA_ratio":      scaled(report.Value(energetics.DGdSASARatio)),
		"interface_interface_hbonds":   result(report.Value(energetics.InterfaceHbonds)),
		"interface_delta_unsat_hbonds": result(report.Value(energetics.BuriedUnsatHbonds)),
		"binder_sasa":                  result(report.ChainSASA(binder)),
	}
	values := reduce(features, rec, log)

	rec.BinderScore = values["binder_score"]
	rec.SurfaceHydrophobicity = values["surface_hydrophobicity"]
	rec.InterfaceSC = values["interface_sc"]
	rec.InterfacePackstat = values["interface_packstat"]
	rec.InterfaceDG = values["interface_dG"]
	rec.InterfaceDSASA = values["interface_dSASA"]
	rec.InterfaceDGSASARatio = values["interface_dG_SASA_ratio"]
	rec.InterfaceHbonds = values["interface_interface_hbonds"]
	rec.InterfaceDeltaUnsatHbonds = values["interface_delta_unsat_hbonds"]

	if binderSASA := values["binder_sasa"]; binderSASA > 0 {
		rec.InterfaceFraction = rec.InterfaceDSASA / binderSASA * 100
	}
	if rec.InterfaceNres > 0 {
		hb := rec.InterfaceHbonds / float64(rec.InterfaceNres) * 100
		unsat := rec.InterfaceDeltaUnsatHbonds / float64(rec.InterfaceNres) * 100
		rec.InterfaceHbondPercentage = &hb
		rec.InterfaceDeltaUnsatHbondsPerc = &unsat
	}
	return rec, nil
}

// reduce replaces every failed feature with 0 and records the failure.
func reduce(features map[string]Result, rec *Record, log *slog.Logger) map[string]float64 {
	out := make(map[string]float64, len(features))
	names := make([]string, 0, len(features))
	for name := range features {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		r := features[name]
		if r.Err != nil {
			if rec.Failures == nil {
				rec.Failures = make(map[string]string)
			}
			rec.Failures[name] = r.Err.Error()
			log.Warn("feature failed, defaulting to 0", "feature", name, "error", r.Err)
			out[name] = 0
			continue
		}
		out[name] = r.Value
	}
	return out
}

func scaled(v float64, err error) Result {
	return Result{Value: v * 100, Err: err}
}

func composition(rec *Record, iface contacts.ResidueSet, binder string) {
	numbers := iface.Numbers()
	ids := make([]string, 0, len(numbers))
	hydrophobic := 0
	for _, n := range numbers {
		code := iface[n]
		if i := strings.IndexByte(Alphabet, code); i >= 0 {
			rec.AACounts[i]++
		}
		if strings.IndexByte(Hydrophobic, code) >= 0 {
			hydrophobic++
		}
		ids = append(ids, binder+strconv.Itoa(n))
	}
	rec.InterfaceNres = len(numbers)
	rec.InterfaceResidues = strings.Join(ids, ",")
	if rec.InterfaceNres > 0 {
		rec.InterfaceHydrophobicity = float64(hydrophobic) / float64(rec.InterfaceNres) * 100
	}
}

// surfaceHydrophobicity is the share of apolar or aromatic residues among the
// surface layer of the binder chain on its own.
func surfaceHydrophobicity(s *structure.Structure, report energetics.Report, binder string) Result {
	surface, err := report.SurfaceResidues(binder)
	if err != nil {
		return Result{Err: err}
	}
	chain, err := s.RequireChain(binder)
	if err != nil {
		return Result{Err: err}
	}
	if len(surface) == 0 {
		return Result{}
	}

	names := make(map[int]string, len(chain.Residues))
	for _, r := range chain.Residues {
		names[r.Number] = r.Name
	}
	hydrophobic := 0
	for _, n := range surface {
		if surfaceHydrophobic[names[n]] {
			hydrophobic++
		}
	}
	return Result{Value: float64(hydrophobic) / float64(len(surface))}
}

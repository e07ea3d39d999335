// Package results defines the batch result table: its row schema, the
// conversion from pipeline results, parquet and CSV codecs and the final
// combination step.
package results

import (
	"encoding/json"
	"sort"
	"strconv"
	"strings"

	"github.com/withObsrvr/binder-annotator/internal/contacts"
	"github.com/withObsrvr/binder-annotator/internal/pipeline"
)

// SchemaVersion returns the version of the schema.
// Increment this when making breaking changes.
const SchemaVersion = "1.0.0"

// Row status values.
const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
	StatusMissing = "missing"
)

// Row is one submission in a batch artifact. Pointer fields are nullable and
// are nil on every row that is not a success.
type Row struct {
	ID       string `parquet:"id"`
	Sequence string `parquet:"sequence"`
	Status   string `parquet:"status"`
	Error    string `parquet:"error"`

	// Secondary structure
	HelixPct  *float64 `parquet:"helix_pct"`
	SheetPct  *float64 `parquet:"sheet_pct"`
	LoopPct   *float64 `parquet:"loop_pct"`
	IHelixPct *float64 `parquet:"i_helix_pct"`
	ISheetPct *float64 `parquet:"i_sheet_pct"`
	ILoopPct  *float64 `parquet:"i_loop_pct"`
	IPLDDT    *float64 `parquet:"i_plddt"`
	SSPLDDT   *float64 `parquet:"ss_plddt"`

	// Interface scores
	BinderScore                         *float64 `parquet:"binder_score"`
	SurfaceHydrophobicity               *float64 `parquet:"surface_hydrophobicity"`
	InterfaceSC                         *float64 `parquet:"interface_sc"`
	InterfacePackstat                   *float64 `parquet:"interface_packstat"`
	InterfaceDG                         *float64 `parquet:"interface_dG"`
	InterfaceDSASA                      *float64 `parquet:"interface_dSASA"`
	InterfaceDGSASARatio                *float64 `parquet:"interface_dG_SASA_ratio"`
	InterfaceFraction                   *float64 `parquet:"interface_fraction"`
	InterfaceHydrophobicity             *float64 `parquet:"interface_hydrophobicity"`
	InterfaceNres                       *int64   `parquet:"interface_nres"`
	InterfaceHbonds                     *float64 `parquet:"interface_interface_hbonds"`
	InterfaceHbondPercentage            *float64 `parquet:"interface_hbond_percentage"`
	InterfaceDeltaUnsatHbonds           *float64 `parquet:"interface_delta_unsat_hbonds"`
	InterfaceDeltaUnsatHbondsPercentage *float64 `parquet:"interface_delta_unsat_hbonds_percentage"`
	AACounts                            string   `parquet:"aa_counts"`
	InterfaceResidues                   string   `parquet:"interface_residues"`

	// Contact analysis
	BinderResidues         string `parquet:"binder_residues"`
	TargetResidues         string `parquet:"target_residues"`
	BinderResidueList      string `parquet:"binder_residue_list"`
	TargetResidueList      string `parquet:"target_residue_list"`
	TotalInterfaceResidues *int64 `parquet:"total_interface_residues"`
	AtomContacts           *int64 `parquet:"atom_contacts"`

	// FeatureFailures lists interface features defaulted to 0.
	FeatureFailures string `parquet:"feature_failures"`
}

// FromPipeline converts a pipeline result into a row.
func FromPipeline(res pipeline.Result) Row {
	row := Row{ID: res.ID, Sequence: res.Sequence}
	if !res.OK() {
		row.Status = StatusFailed
		row.Error = res.ErrorMessage()
		return row
	}
	row.Status = StatusSuccess

	if ss := res.SecondaryStructure; ss != nil {
		row.HelixPct = f64(ss.HelixPct)
		row.SheetPct = f64(ss.SheetPct)
		row.LoopPct = f64(ss.LoopPct)
		row.IHelixPct = f64(ss.IHelixPct)
		row.ISheetPct = f64(ss.ISheetPct)
		row.ILoopPct = f64(ss.ILoopPct)
		row.IPLDDT = f64(ss.IPLDDT)
		row.SSPLDDT = f64(ss.SSPLDDT)
	}

	if rec := res.Scores; rec != nil {
		row.BinderScore = f64(rec.BinderScore)
		row.SurfaceHydrophobicity = f64(rec.SurfaceHydrophobicity)
		row.InterfaceSC = f64(rec.InterfaceSC)
		row.InterfacePackstat = f64(rec.InterfacePackstat)
		row.InterfaceDG = f64(rec.InterfaceDG)
		row.InterfaceDSASA = f64(rec.InterfaceDSASA)
		row.InterfaceDGSASARatio = f64(rec.InterfaceDGSASARatio)
		row.InterfaceFraction = f64(rec.InterfaceFraction)
		row.InterfaceHydrophobicity = f64(rec.InterfaceHydrophobicity)
		row.InterfaceNres = i64(rec.InterfaceNres)
		row.InterfaceHbonds = f64(rec.InterfaceHbonds)
		row.InterfaceHbondPercentage = copyPtr(rec.InterfaceHbondPercentage)
		row.InterfaceDeltaUnsatHbonds = f64(rec.InterfaceDeltaUnsatHbonds)
		row.InterfaceDeltaUnsatHbondsPercentage = copyPtr(rec.InterfaceDeltaUnsatHbondsPerc)
		row.AACounts = rec.AACounts.String()
		row.InterfaceResidues = rec.InterfaceResidues
		row.FeatureFailures = failureList(rec.Failures)
	}

	if c := res.Contacts; c != nil {
		row.BinderResidues = residueSetJSON(c.BinderResidues)
		row.TargetResidues = residueSetJSON(c.TargetResidues)
		row.BinderResidueList = intList(c.BinderResidueList)
		row.TargetResidueList = intList(c.TargetResidueList)
		row.TotalInterfaceResidues = i64(c.TotalInterfaceResidues)
		row.AtomContacts = i64(c.AtomContacts)
	}
	return row
}

// Normalize null-fills every non-success row so all rows share one shape.
func Normalize(rows []Row) {
	for i := range rows {
		if rows[i].Status != StatusSuccess {
			rows[i] = Row{
				ID:       rows[i].ID,
				Sequence: rows[i].Sequence,
				Status:   rows[i].Status,
				Error:    rows[i].Error,
			}
		}
	}
}

func f64(v float64) *float64 { return &v }

func i64(v int) *int64 {
	x := int64(v)
	return &x
}

func copyPtr(p *float64) *float64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func failureList(failures map[string]string) string {
	names := make([]string, 0, len(failures))
	for name := range failures {
		names = append(names, name)
	}
	sort.Strings(names)
	return strings.Join(names, ",")
}

func intList(xs []int) string {
	parts := make([]string, len(xs))
	for i, x := range xs {
		parts[i] = strconv.Itoa(x)
	}
	return strings.Join(parts, ",")
}

func residueSetJSON(s contacts.ResidueSet) string {
	data, err := json.Marshal(s)
	if err != nil {
		return ""
	}
	return string(data)
}

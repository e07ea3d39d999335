package results

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/parquet-go/parquet-go"
)

// Format is a table encoding.
type Format string

const (
	FormatParquet Format = "parquet"
	FormatCSV     Format = "csv"
)

// ParseFormat validates a format name.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(s)); f {
	case FormatParquet, FormatCSV:
		return f, nil
	case "":
		return FormatParquet, nil
	default:
		return "", fmt.Errorf("unknown result format: %s", s)
	}
}

// FormatOf returns the format implied by a file extension.
func FormatOf(path string) Format {
	if strings.EqualFold(filepath.Ext(path), ".csv") {
		return FormatCSV
	}
	return FormatParquet
}

// Ext returns the file extension of the format, without the dot.
func (f Format) Ext() string {
	return string(f)
}

// column maps one CSV column onto a Row field.
type column struct {
	name string
	get  func(*Row) string
	set  func(*Row, string) error
}

func text(name string, field func(*Row) *string) column {
	return column{
		name: name,
		get:  func(r *Row) string { return *field(r) },
		set:  func(r *Row, v string) error { *field(r) = v; return nil },
	}
}

func float(name string, field func(*Row) **float64) column {
	return column{
		name: name,
		get: func(r *Row) string {
			if p := *field(r); p != nil {
				return strconv.FormatFloat(*p, 'g', -1, 64)
			}
			return ""
		},
		set: func(r *Row, v string) error {
			if v == "" {
				*field(r) = nil
				return nil
			}
			x, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return fmt.Errorf("column %s: %w", name, err)
			}
			*field(r) = &x
			return nil
		},
	}
}

func integer(name string, field func(*Row) **int64) column {
	return column{
		name: name,
		get: func(r *Row) string {
			if p := *field(r); p != nil {
				return strconv.FormatInt(*p, 10)
			}
			return ""
		},
		set: func(r *Row, v string) error {
			if v == "" {
				*field(r) = nil
				return nil
			}
			x, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return fmt.Errorf("column %s: %w", name, err)
			}
			*field(r) = &x
			return nil
		},
	}
}

// columns lists CSV columns in the same order as the parquet schema.
var columns = []column{
	text("id", func(r *Row) *string { return &r.ID }),
	text("sequence", func(r *Row) *string { return &r.Sequence }),
	text("status", func(r *Row) *string { return &r.Status }),
	text("error", func(r *Row) *string { return &r.Error }),
	float("helix_pct", func(r *Row) **float64 { return &r.HelixPct }),
	float("sheet_pct", func(r *Row) **float64 { return &r.SheetPct }),
	float("loop_pct", func(r *Row) **float64 { return &r.LoopPct }),
	float("i_helix_pct", func(r *Row) **float64 { return &r.IHelixPct }),
	float("i_sheet_pct", func(r *Row) **float64 { return &r.ISheetPct }),
	float("i_loop_pct", func(r *Row) **float64 { return &r.ILoopPct }),
	float("i_plddt", func(r *Row) **float64 { return &r.IPLDDT }),
	float("ss_plddt", func(r *Row) **float64 { return &r.SSPLDDT }),
	float("binder_score", func(r *Row) **float64 { return &r.BinderScore }),
	float("surface_hydrophobicity", func(r *Row) **float64 { return &r.SurfaceHydrophobicity }),
	float("interface_sc", func(r *Row) **float64 { return &r.InterfaceSC }),
	float("interface_packstat", func(r *Row) **float64 { return &r.InterfacePackstat }),
	float("interface_dG", func(r *Row) **float64 { return &r.InterfaceDG }),
	float("interface_dSASA", func(r *Row) **float64 { return &r.InterfaceDSASA }),
	float("interface_dG_SASA_ratio", func(r *Row) **float64 { return &r.InterfaceDGSASARatio }),
	float("interface_fraction", func(r *Row) **float64 { return &r.InterfaceFraction }),
	float("interface_hydrophobicity", func(r *Row) **float64 { return &r.InterfaceHydrophobicity }),
	integer("interface_nres", func(r *Row) **int64 { return &r.InterfaceNres }),
	float("interface_interface_hbonds", func(r *Row) **float64 { return &r.InterfaceHbonds }),
	float("interface_hbond_percentage", func(r *Row) **float64 { return &r.InterfaceHbondPercentage }),
	float("interface_delta_unsat_hbonds", func(r *Row) **float64 { return &r.InterfaceDeltaUnsatHbonds }),
	float("interface_delta_unsat_hbonds_percentage", func(r *Row) **float64 { return &r.InterfaceDeltaUnsatHbondsPercentage }),
	text("aa_counts", func(r *Row) *string { return &r.AACounts }),
	text("interface_residues", func(r *Row) *string { return &r.InterfaceResidues }),
	text("binder_residues", func(r *Row) *string { return &r.BinderResidues }),
	text("target_residues", func(r *Row) *string { return &r.TargetResidues }),
	text("binder_residue_list", func(r *Row) *string { return &r.BinderResidueList }),
	text("target_residue_list", func(r *Row) *string { return &r.TargetResidueList }),
	integer("total_interface_residues", func(r *Row) **int64 { return &r.TotalInterfaceResidues }),
	integer("atom_contacts", func(r *Row) **int64 { return &r.AtomContacts }),
	text("feature_failures", func(r *Row) *string { return &r.FeatureFailures }),
}

// Columns returns the column names in table order.
func Columns() []string {
	names := make([]string, len(columns))
	for i, c := range columns {
		names[i] = c.name
	}
	return names
}

// Encode serializes rows in the given format.
func Encode(rows []Row, format Format) ([]byte, error) {
	var buf bytes.Buffer
	switch format {
	case FormatCSV:
		if err := writeCSV(&buf, rows); err != nil {
			return nil, err
		}
	case FormatParquet:
		w := parquet.NewGenericWriter[Row](&buf, parquet.Compression(&parquet.Zstd))
		if _, err := w.Write(rows); err != nil {
			return nil, fmt.Errorf("write parquet rows: %w", err)
		}
		if err := w.Close(); err != nil {
			return nil, fmt.Errorf("close parquet writer: %w", err)
		}
	default:
		return nil, fmt.Errorf("unknown result format: %s", format)
	}
	return buf.Bytes(), nil
}

// Decode parses rows in the given format.
func Decode(data []byte, format Format) ([]Row, error) {
	switch format {
	case FormatCSV:
		return readCSV(bytes.NewReader(data))
	case FormatParquet:
		rows, err := parquet.Read[Row](bytes.NewReader(data), int64(len(data)))
		if err != nil {
			return nil, fmt.Errorf("read parquet rows: %w", err)
		}
		return rows, nil
	default:
		return nil, fmt.Errorf("unknown result format: %s", format)
	}
}

// ReadFile decodes a result table, choosing the format by extension.
func ReadFile(path string) ([]Row, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	rows, err := Decode(data, FormatOf(path))
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return rows, nil
}

func writeCSV(w io.Writer, rows []Row) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Columns()); err != nil {
		return err
	}
	rec := make([]string, len(columns))
	for i := range rows {
		for j, c := range columns {
			rec[j] = c.get(&rows[i])
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func readCSV(r io.Reader) ([]Row, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	byName := make(map[string]column, len(columns))
	for _, c := range columns {
		byName[c.name] = c
	}
	mapped := make([]*column, len(header))
	for i, name := range header {
		if c, ok := byName[name]; ok {
			mapped[i] = &c
		}
	}

	var rows []Row
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		var row Row
		for i, v := range rec {
			if i >= len(mapped) || mapped[i] == nil {
				continue
			}
			if err := mapped[i].set(&row, v); err != nil {
				return nil, fmt.Errorf("row %d: %w", len(rows)+1, err)
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

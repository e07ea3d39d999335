// Package submissions reads the submission table and locates each
// submission's predicted structure on disk.
package submissions

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/parquet-go/parquet-go"
)

// ErrMissingColumn is returned when the table lacks a required column.
var ErrMissingColumn = errors.New("missing required column")

// Submission is one row of the input table.
type Submission struct {
	ID       string `parquet:"id"`
	Sequence string `parquet:"sequence"`

	// Index is the zero-based row position in the table.
	Index int `parquet:"-"`
}

// ReadTable loads all submissions from a CSV or parquet table, chosen by
// file extension.
func ReadTable(path string) ([]Submission, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open submission table: %w", err)
	}
	defer f.Close()

	var subs []Submission
	if strings.EqualFold(filepath.Ext(path), ".parquet") {
		subs, err = readParquet(f)
	} else {
		subs, err = readCSV(f)
	}
	if err != nil {
		return nil, fmt.Errorf("read submission table %s: %w", path, err)
	}
	for i := range subs {
		subs[i].Index = i
	}
	return subs, nil
}

func readParquet(f *os.File) ([]Submission, error) {
	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	pf, err := parquet.OpenFile(f, info.Size())
	if err != nil {
		return nil, err
	}
	for _, col := range []string{"id", "sequence"} {
		if _, ok := pf.Schema().Lookup(col); !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingColumn, col)
		}
	}
	return parquet.Read[Submission](f, info.Size())
}

func readCSV(r io.Reader) ([]Submission, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	idCol, seqCol := -1, -1
	for i, name := range header {
		switch strings.TrimSpace(name) {
		case "id":
			idCol = i
		case "sequence":
			seqCol = i
		}
	}
	if idCol < 0 {
		return nil, fmt.Errorf("%w: id", ErrMissingColumn)
	}
	if seqCol < 0 {
		return nil, fmt.Errorf("%w: sequence", ErrMissingColumn)
	}

	var subs []Submission
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if idCol >= len(rec) || seqCol >= len(rec) {
			return nil, fmt.Errorf("line %d: expected at least %d fields, got %d", line, max(idCol, seqCol)+1, len(rec))
		}
		subs = append(subs, Submission{ID: rec[idCol], Sequence: rec[seqCol]})
	}
	return subs, nil
}

// Slice returns the rows in [start, end). end is clamped to the table size.
func Slice(subs []Submission, start, end int) []Submission {
	if end > len(subs) {
		end = len(subs)
	}
	if start < 0 {
		start = 0
	}
	if start >= end {
		return nil
	}
	return subs[start:end]
}

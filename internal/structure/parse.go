package structure

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/klauspost/compress/zstd"
)

// CompressedExt marks zstd-compressed structure files.
const CompressedExt = ".zst"

var (
	decoderOnce sync.Once
	decoder     *zstd.Decoder
	decoderErr  error
)

func sharedDecoder() (*zstd.Decoder, error) {
	decoderOnce.Do(func() {
		decoder, decoderErr = zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
	})
	return decoder, decoderErr
}

// ReadFile returns the raw PDB text of path, decompressing .zst files.
func ReadFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read structure %s: %w", path, err)
	}
	if !strings.HasSuffix(path, CompressedExt) {
		return data, nil
	}

	dec, err := sharedDecoder()
	if err != nil {
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}
	raw, err := dec.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("zstd decompress %s: %w", path, err)
	}
	return raw, nil
}

// Load reads and parses a structure file.
func Load(path string) (*Structure, error) {
	data, err := ReadFile(path)
	if err != nil {
		return nil, err
	}
	s, err := Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("parse structure %s: %w", path, err)
	}
	return s, nil
}

// Parse reads the first model of a PDB stream. Alternate locations other than
// the first one seen for an atom are dropped.
func Parse(r io.Reader) (*Structure, error) {
	type atomKey struct {
		chain  string
		resSeq int
		icode  string
		name   string
	}

	var atoms []*Atom
	seen := make(map[atomKey]bool)

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := sc.Text()
		if strings.HasPrefix(line, "ENDMDL") {
			break
		}
		if !strings.HasPrefix(line, "ATOM") && !strings.HasPrefix(line, "HETATM") {
			continue
		}
		a, err := parseAtomLine(line)
		if err != nil {
			return nil, err
		}
		k := atomKey{chain: a.Chain, resSeq: a.ResSeq, icode: a.ICode, name: a.Name}
		if seen[k] {
			continue
		}
		seen[k] = true
		atoms = append(atoms, a)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("scan structure: %w", err)
	}
	if len(atoms) == 0 {
		return nil, ErrNoAtoms
	}

	return FromAtoms(atoms), nil
}

// Encode writes the structure's atoms as coordinate records followed by END.
func (s *Structure) Encode(w io.Writer) error {
	bw := bufio.NewWriter(w)
	for _, c := range s.Chains {
		for _, r := range c.Residues {
			for _, a := range r.Atoms {
				if _, err := fmt.Fprintln(bw, a.Format()); err != nil {
					return err
				}
			}
		}
		if _, err := fmt.Fprintln(bw, "TER"); err != nil {
			return err
		}
	}
	if _, err := fmt.Fprintln(bw, "END"); err != nil {
		return err
	}
	return bw.Flush()
}

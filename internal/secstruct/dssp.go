package secstruct

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/withObsrvr/binder-annotator/internal/structure"
	"github.com/withObsrvr/binder-annotator/internal/util"
)

// DefaultDSSPArgs asks mkdssp 4.x for the classic fixed-column output.
var DefaultDSSPArgs = []string{"--output-format", "dssp", "{input}", "{output}"}

// MkDSSP runs the external mkdssp binary. Args may reference {input} and
// {output}; when {output} is absent from Args the classic format is read
// from stdout instead.
type MkDSSP struct {
	Binary string
	Args   []string
}

// NewMkDSSP returns a classifier for the binary at path using DefaultDSSPArgs.
func NewMkDSSP(binary string) *MkDSSP {
	return &MkDSSP{Binary: binary, Args: DefaultDSSPArgs}
}

// Classify runs mkdssp on a scratch copy of path carrying a CRYST1 record.
func (d *MkDSSP) Classify(ctx context.Context, path string) (Assignment, error) {
	if d.Binary == "" {
		return nil, fmt.Errorf("dssp: no executable configured")
	}
	if _, err := exec.LookPath(d.Binary); err != nil {
		return nil, fmt.Errorf("dssp executable not found: %s", d.Binary)
	}

	data, err := structure.ReadFile(path)
	if err != nil {
		return nil, err
	}

	scratch, err := os.MkdirTemp("", "dssp-*")
	if err != nil {
		return nil, fmt.Errorf("create dssp scratch dir: %w", err)
	}
	defer os.RemoveAll(scratch)

	input := filepath.Join(scratch, "input.pdb")
	output := filepath.Join(scratch, "output.dssp")
	if err := os.WriteFile(input, structure.EnsureCryst1(data), 0644); err != nil {
		return nil, fmt.Errorf("write dssp input: %w", err)
	}

	args := d.Args
	if len(args) == 0 {
		args = DefaultDSSPArgs
	}
	cmd := util.Command{Binary: d.Binary, Args: args}
	stdout, err := cmd.Run(ctx, map[string]string{"input": input, "output": output})
	if err != nil {
		return nil, fmt.Errorf("dssp: %w", err)
	}

	if usesOutput(args) {
		f, err := os.Open(output)
		if err != nil {
			return nil, fmt.Errorf("open dssp output: %w", err)
		}
		defer f.Close()
		return ParseDSSP(f)
	}
	return ParseDSSP(bytes.NewReader(stdout))
}

func usesOutput(args []string) bool {
	for _, a := range args {
		if strings.Contains(a, "{output}") {
			return true
		}
	}
	return false
}

// ParseDSSP reads the classic DSSP format. Residue lines follow the
// "  #  RESIDUE" header; chain-break lines ('!') are skipped.
// https://swift.cmbi.umcn.nl/gv/dssp/DSSP_3.html
func ParseDSSP(r io.Reader) (Assignment, error) {
	out := make(Assignment)
	started := false

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		l := sc.Text()
		if !started {
			if len(l) > 2 && l[2] == '#' {
				started = true
			}
			continue
		}
		if len(l) < 17 || l[13] == '!' {
			continue
		}
		posStr := strings.TrimSpace(l[5:10])
		if posStr == "" {
			continue
		}
		pos, err := strconv.Atoi(posStr)
		if err != nil {
			return nil, fmt.Errorf("dssp residue number %q: %w", posStr, err)
		}
		out[ResidueID{Chain: string(l[11]), Number: pos}] = l[16]
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("scan dssp output: %w", err)
	}
	if !started {
		return nil, fmt.Errorf("dssp output has no residue section")
	}
	return out, nil
}

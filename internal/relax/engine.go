package relax

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"

	"github.com/withObsrvr/binder-annotator/internal/util"
)

// DefaultArgs passes input and output paths positionally.
var DefaultArgs = []string{"{input}", "{output}"}

// CommandEngine runs an external relaxation program. When SuccessMarker is
// set, the program's combined output must contain it.
type CommandEngine struct {
	Binary        string
	Args          []string
	Dir           string
	SuccessMarker string
}

func (e *CommandEngine) Relax(ctx context.Context, in, out string) error {
	args := e.Args
	if len(args) == 0 {
		args = DefaultArgs
	}
	cmd := util.Command{Binary: e.Binary, Args: args, Dir: e.Dir}

	output, err := cmd.RunCombined(ctx, map[string]string{"input": in, "output": out})
	if err != nil {
		return err
	}
	if e.SuccessMarker != "" && !bytes.Contains(output, []byte(e.SuccessMarker)) {
		return fmt.Errorf("%s did not converge", e.Binary)
	}
	return nil
}

// Passthrough copies the input unchanged, for structures that are already
// minimized.
type Passthrough struct{}

func (Passthrough) Relax(ctx context.Context, in, out string) error {
	src, err := os.Open(in)
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := os.Create(out)
	if err != nil {
		return err
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return err
	}
	return dst.Close()
}

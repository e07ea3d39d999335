package util

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// Command describes an external program invocation. Args may contain
// {name} placeholders filled in by Run.
type Command struct {
	Binary string
	Args   []string
	Dir    string
}

// Expand substitutes {name} placeholders in args.
func Expand(args []string, vars map[string]string) []string {
	out := make([]string, len(args))
	for i, a := range args {
		for k, v := range vars {
			a = strings.ReplaceAll(a, "{"+k+"}", v)
		}
		out[i] = a
	}
	return out
}

// Run executes the command and returns its stdout. Stderr is folded into the
// error on failure. The process is killed when ctx is done.
func (c Command) Run(ctx context.Context, vars map[string]string) ([]byte, error) {
	if c.Binary == "" {
		return nil, errors.New("no binary configured")
	}

	cmd := exec.CommandContext(ctx, c.Binary, Expand(c.Args, vars)...)
	cmd.Dir = c.Dir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%s: %w", c.Binary, ctx.Err())
		}
		return nil, fmt.Errorf("%s: %w: %s", c.Binary, err, strings.TrimSpace(stderr.String()))
	}
	return stdout.Bytes(), nil
}

// RunCombined executes the command and returns stdout and stderr interleaved.
func (c Command) RunCombined(ctx context.Context, vars map[string]string) ([]byte, error) {
	if c.Binary == "" {
		return nil, errors.New("no binary configured")
	}

	cmd := exec.CommandContext(ctx, c.Binary, Expand(c.Args, vars)...)
	cmd.Dir = c.Dir

	out, err := cmd.CombinedOutput()
	if err != nil {
		if ctx.Err() != nil {
			return out, fmt.Errorf("%s: %w", c.Binary, ctx.Err())
		}
		return out, fmt.Errorf("%s: %w: %s", c.Binary, err, strings.TrimSpace(string(out)))
	}
	return out, nil
}

// Package relax implements the cache-aware relaxation stage. The relaxation
// itself is delegated to an Engine; the stage owns caching, post-processing
// and atomic persistence.
package relax

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/withObsrvr/binder-annotator/internal/structure"
	"github.com/withObsrvr/binder-annotator/internal/util"
)

// ErrRelaxation marks a relaxation that did not produce a usable structure.
var ErrRelaxation = errors.New("relaxation failed")

// Engine minimizes the structure at in and writes the result to out.
type Engine interface {
	Relax(ctx context.Context, in, out string) error
}

// Handle refers to a relaxed structure on disk.
type Handle struct {
	Path   string
	Cached bool
}

// Stage relaxes raw structures into a shared cache directory.
type Stage struct {
	Engine Engine

	// ScratchDir holds per-call working directories; empty means os.TempDir.
	ScratchDir string

	Log *slog.Logger
}

// Relax returns cachePath, relaxing rawPath into it first unless it already
// exists. Concurrent callers for the same cachePath may both relax; the
// rename keeps the cache file whole either way.
func (s *Stage) Relax(ctx context.Context, rawPath, cachePath string) (Handle, error) {
	if util.FileExists(cachePath) {
		return Handle{Path: cachePath, Cached: true}, nil
	}
	log := s.Log
	if log == nil {
		log = slog.Default()
	}

	raw, err := structure.ReadFile(rawPath)
	if err != nil {
		return Handle{}, fmt.Errorf("%w: %v", ErrRelaxation, err)
	}

	work, err := os.MkdirTemp(s.ScratchDir, "relax-*")
	if err != nil {
		return Handle{}, fmt.Errorf("create scratch dir: %w", err)
	}
	defer os.RemoveAll(work)

	in := rawPath
	if strings.HasSuffix(rawPath, structure.CompressedExt) {
		in = filepath.Join(work, "input.pdb")
		if err := os.WriteFile(in, raw, 0644); err != nil {
			return Handle{}, fmt.Errorf("write decompressed input: %w", err)
		}
	}
	out := filepath.Join(work, "relaxed.pdb")

	log.Debug("relaxing structure", "input", rawPath, "cache_path", cachePath)
	if err := s.Engine.Relax(ctx, in, out); err != nil {
		return Handle{}, fmt.Errorf("%w: %v", ErrRelaxation, err)
	}
	if !util.NonEmptyFile(out) {
		return Handle{}, fmt.Errorf("%w: no output written", ErrRelaxation)
	}

	relaxed, err := os.ReadFile(out)
	if err != nil {
		return Handle{}, fmt.Errorf("%w: read output: %v", ErrRelaxation, err)
	}
	processed, err := PostProcess(relaxed, raw)
	if err != nil {
		return Handle{}, fmt.Errorf("%w: %v", ErrRelaxation, err)
	}

	if err := util.WriteFileAtomic(cachePath, processed); err != nil {
		return Handle{}, fmt.Errorf("persist relaxed structure: %w", err)
	}
	if !util.NonEmptyFile(cachePath) {
		return Handle{}, fmt.Errorf("%w: cache file %s missing after write", ErrRelaxation, cachePath)
	}
	return Handle{Path: cachePath}, nil
}

// PostProcess keeps only coordinate records of the relaxed structure and
// copies the original per-residue confidence onto every relaxed atom.
// Residues are matched by chain, number and insertion code, falling back to
// their position within the chain.
func PostProcess(relaxed, original []byte) ([]byte, error) {
	orig, err := structure.Parse(bytes.NewReader(original))
	if err != nil {
		return nil, fmt.Errorf("parse original: %w", err)
	}
	rel, err := structure.Parse(bytes.NewReader(structure.StripNonCoordinate(relaxed)))
	if err != nil {
		return nil, fmt.Errorf("parse relaxed: %w", err)
	}

	byKey := make(map[structure.ResidueKey]float64)
	for _, r := range orig.Residues() {
		byKey[r.Key()] = r.Atoms[0].BFactor
	}

	for _, c := range rel.Chains {
		oc, hasChain := orig.Chain(c.ID)
		for i, r := range c.Residues {
			b, ok := byKey[r.Key()]
			if !ok && hasChain && i < len(oc.Residues) {
				b, ok = oc.Residues[i].Atoms[0].BFactor, true
			}
			if !ok {
				continue
			}
			for _, a := range r.Atoms {
				a.BFactor = b
			}
		}
	}

	var buf bytes.Buffer
	if err := rel.Encode(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

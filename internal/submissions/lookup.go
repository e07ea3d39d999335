package submissions

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// IDFromFilename returns the text before the first '.' of the base name.
func IDFromFilename(name string) string {
	base := filepath.Base(name)
	if i := strings.IndexByte(base, '.'); i >= 0 {
		return base[:i]
	}
	return base
}

// Duplicate records an id found in more than one file. The later path wins.
type Duplicate struct {
	ID       string
	Previous string
	Path     string
}

// Lookup maps submission ids to structure file paths.
type Lookup struct {
	paths      map[string]string
	Duplicates []Duplicate
}

// BuildLookup enumerates dirs in order, and each directory in name order.
// A later file with the same id replaces an earlier one and is recorded in
// Duplicates.
func BuildLookup(dirs []string) (*Lookup, error) {
	l := &Lookup{paths: make(map[string]string)}
	for _, dir := range dirs {
		entries, err := os.ReadDir(dir)
		if err != nil {
			return nil, fmt.Errorf("read structure directory %s: %w", dir, err)
		}
		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			id := IDFromFilename(e.Name())
			if id == "" {
				continue
			}
			path := filepath.Join(dir, e.Name())
			if prev, ok := l.paths[id]; ok {
				l.Duplicates = append(l.Duplicates, Duplicate{ID: id, Previous: prev, Path: path})
			}
			l.paths[id] = path
		}
	}
	return l, nil
}

// Path returns the structure path for id.
func (l *Lookup) Path(id string) (string, bool) {
	p, ok := l.paths[id]
	return p, ok
}

// Len returns the number of distinct ids.
func (l *Lookup) Len() int {
	return len(l.paths)
}

// Missing is a submission whose top-ranked raw structure has no relaxed
// counterpart.
type Missing struct {
	ID string

	// Alternatives lists other-rank files for the id; empty when only
	// rank 001 exists.
	Alternatives []string
}

// MissingRelaxed scans dirs for "*unrelaxed_rank_001_*.pdb" structures and
// reports those without "<relaxedDir>/<id>.pdb".
func MissingRelaxed(dirs []string, relaxedDir string) ([]Missing, error) {
	var out []Missing
	for _, dir := range dirs {
		matches, err := filepath.Glob(filepath.Join(dir, "*unrelaxed_rank_001_*.pdb"))
		if err != nil {
			return nil, err
		}
		sort.Strings(matches)

		for _, m := range matches {
			base := filepath.Base(m)
			id := strings.SplitN(base, "_unrelaxed", 2)[0]
			if _, err := os.Stat(filepath.Join(relaxedDir, id+".pdb")); err == nil {
				continue
			}

			miss := Missing{ID: id}
			alts, err := filepath.Glob(filepath.Join(dir, globEscape(id)+"_unrelaxed_rank_*_*.pdb"))
			if err != nil {
				return nil, err
			}
			if len(alts) > 1 {
				sort.Strings(alts)
				for _, a := range alts {
					miss.Alternatives = append(miss.Alternatives, filepath.Base(a))
				}
			}
			out = append(out, miss)
		}
	}
	return out, nil
}

func globEscape(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`, `[`, `\[`)
	return r.Replace(s)
}

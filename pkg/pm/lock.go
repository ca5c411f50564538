package pm

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// LockFormatVersion is bumped when the lock file schema changes.
const LockFormatVersion = 1

// LockEntry pins one package to the concrete version a resolution produced.
type LockEntry struct {
	Version      string            `json:"version"`
	Resolved     string            `json:"resolved,omitempty"`
	Integrity    string            `json:"integrity,omitempty"`
	Dependencies map[string]string `json:"dependencies,omitempty"` // child name -> constraint
}

// LockFile is the serialized snapshot of a resolved graph. One lock file
// exists per format; lock files are never merged across formats.
type LockFile struct {
	FormatVersion int                  `json:"lockfileVersion"`
	Format        string               `json:"format"`
	Packages      map[string]LockEntry `json:"packages"`
	Metadata      map[string]any       `json:"metadata,omitempty"`
}

// LockPath returns the on-disk location of the lock file for a format in the
// given project directory. The format name is part of the filename so locks
// for multiple active adapters coexist without collision.
func LockPath(dir, format string) string {
	return filepath.Join(dir, fmt.Sprintf("polypack.lock.%s.json", format))
}

// LockFromGraph builds a lock snapshot from a resolved graph. The snapshot
// reflects what was resolved, independent of install success, so a retry has
// accurate version pins to work from.
func LockFromGraph(format string, g *Graph) *LockFile {
	l := &LockFile{
		FormatVersion: LockFormatVersion,
		Format:        format,
		Packages:      make(map[string]LockEntry, g.Len()),
	}
	for _, pkg := range g.Packages() {
		deps := make(map[string]string, len(pkg.Dependencies))
		for _, d := range pkg.Dependencies {
			deps[d.Name] = d.Constraint
		}
		if len(deps) == 0 {
			deps = nil
		}
		l.Packages[pkg.Name] = LockEntry{
			Version:      pkg.Version,
			Resolved:     pkg.URL,
			Integrity:    pkg.Integrity,
			Dependencies: deps,
		}
	}
	return l
}

// ReadLockFile loads the lock file for a format, or returns (nil, nil) when
// none exists.
func ReadLockFile(dir, format string) (*LockFile, error) {
	data, err := os.ReadFile(LockPath(dir, format))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var l LockFile
	if err := json.Unmarshal(data, &l); err != nil {
		return nil, fmt.Errorf("parse lock file: %w", err)
	}
	return &l, nil
}

// Write serializes the lock file atomically: staged to a temporary file in
// the same directory, then renamed into place.
func (l *LockFile) Write(dir string) error {
	data, err := json.MarshalIndent(l, "", "  ")
	if err != nil {
		return err
	}
	path := LockPath(dir, l.Format)
	tmp, err := os.CreateTemp(dir, ".polypack-lock-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// LockDiff describes how a lock snapshot changed relative to a prior run.
type LockDiff struct {
	Added   []string // package names new in the current lock
	Removed []string // package names gone from the current lock
	Changed []string // package names whose pinned version changed
}

// Diff compares l against a previous snapshot. A nil previous lock treats
// every package as added.
func (l *LockFile) Diff(prev *LockFile) LockDiff {
	var d LockDiff
	for name, entry := range l.Packages {
		if prev == nil {
			d.Added = append(d.Added, name)
			continue
		}
		old, ok := prev.Packages[name]
		switch {
		case !ok:
			d.Added = append(d.Added, name)
		case old.Version != entry.Version:
			d.Changed = append(d.Changed, name)
		}
	}
	if prev != nil {
		for name := range prev.Packages {
			if _, ok := l.Packages[name]; !ok {
				d.Removed = append(d.Removed, name)
			}
		}
	}
	sort.Strings(d.Added)
	sort.Strings(d.Removed)
	sort.Strings(d.Changed)
	return d
}

package pm

import (
	"os"
	"path/filepath"
	"testing"
)

func buildGraph() *Graph {
	g := NewGraph("app")
	g.Add("a@^1.0.0", &ResolvedPackage{
		Name: "a", Version: "1.2.0", URL: "https://registry.test/a.tgz", Integrity: "sha256-abc",
		Dependencies: []Dependency{{Name: "b", Constraint: "^2.0.0"}},
	})
	g.Add("b@^2.0.0", &ResolvedPackage{Name: "b", Version: "2.1.0"})
	g.AddDependency("a@^1.0.0", "b@^2.0.0")
	return g
}

func TestLockFromGraph(t *testing.T) {
	l := LockFromGraph("npm", buildGraph())

	if l.FormatVersion != LockFormatVersion || l.Format != "npm" {
		t.Errorf("header = %d/%s", l.FormatVersion, l.Format)
	}
	entry, ok := l.Packages["a"]
	if !ok {
		t.Fatal("a missing from lock")
	}
	if entry.Version != "1.2.0" || entry.Integrity != "sha256-abc" {
		t.Errorf("entry = %+v", entry)
	}
	if entry.Dependencies["b"] != "^2.0.0" {
		t.Errorf("dependency constraint = %q", entry.Dependencies["b"])
	}
}

func TestLockFile_WriteRead(t *testing.T) {
	dir := t.TempDir()
	l := LockFromGraph("npm", buildGraph())

	if err := l.Write(dir); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "polypack.lock.npm.json")); err != nil {
		t.Fatalf("lock file not at expected path: %v", err)
	}

	got, err := ReadLockFile(dir, "npm")
	if err != nil {
		t.Fatalf("ReadLockFile: %v", err)
	}
	if got == nil || len(got.Packages) != 2 {
		t.Fatalf("round trip lost packages: %+v", got)
	}

	// A different format's lock does not exist; absence is not an error.
	missing, err := ReadLockFile(dir, "pip")
	if err != nil || missing != nil {
		t.Errorf("absent lock = (%v, %v), want (nil, nil)", missing, err)
	}
}

func TestLockFile_Diff(t *testing.T) {
	prev := &LockFile{Format: "npm", Packages: map[string]LockEntry{
		"a": {Version: "1.0.0"},
		"b": {Version: "2.0.0"},
	}}
	cur := &LockFile{Format: "npm", Packages: map[string]LockEntry{
		"a": {Version: "1.1.0"},
		"c": {Version: "3.0.0"},
	}}

	d := cur.Diff(prev)
	if len(d.Added) != 1 || d.Added[0] != "c" {
		t.Errorf("Added = %v", d.Added)
	}
	if len(d.Removed) != 1 || d.Removed[0] != "b" {
		t.Errorf("Removed = %v", d.Removed)
	}
	if len(d.Changed) != 1 || d.Changed[0] != "a" {
		t.Errorf("Changed = %v", d.Changed)
	}

	all := cur.Diff(nil)
	if len(all.Added) != 2 {
		t.Errorf("nil prev Added = %v, want every package", all.Added)
	}
}

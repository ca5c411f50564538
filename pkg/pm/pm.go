// Package pm defines the core domain model for polypack: manifests,
// dependencies, resolved graphs, lock files, install results, and the
// format adapter contract that every ecosystem plugin implements.
package pm

import (
	"fmt"
	"path/filepath"
	"sync"
)

// Scope classifies a declared dependency within a manifest.
type Scope string

const (
	ScopeProduction  Scope = "production"
	ScopeDevelopment Scope = "development"
	ScopePeer        Scope = "peer"
	ScopeOptional    Scope = "optional"
)

// WildcardConstraint matches any available version; selection picks the
// highest one.
const WildcardConstraint = "*"

// Dependency is a single declared dependency edge: a name plus the version
// constraint it was requested under. The same name may appear with different
// constraints across scopes; identity within a manifest is (name, constraint).
type Dependency struct {
	Name       string // Package name as declared
	Constraint string // Version constraint expression ("*" for any)
	Scope      Scope  // Which dependency list it came from
	Registry   string // Optional source-registry override (empty = default)
}

// Manifest describes a project's declared dependencies. It is built once per
// operation, either parsed from disk or synthesized in memory.
type Manifest struct {
	Name        string
	Version     string
	Description string

	Dependencies         []Dependency // production
	DevDependencies      []Dependency
	PeerDependencies     []Dependency
	OptionalDependencies []Dependency

	Scripts  map[string]string
	Metadata map[string]any // format-specific extras
}

// AllDependencies returns every declared dependency across all four scopes,
// production first, in declaration order.
func (m *Manifest) AllDependencies() []Dependency {
	out := make([]Dependency, 0,
		len(m.Dependencies)+len(m.DevDependencies)+len(m.PeerDependencies)+len(m.OptionalDependencies))
	out = append(out, m.Dependencies...)
	out = append(out, m.DevDependencies...)
	out = append(out, m.PeerDependencies...)
	out = append(out, m.OptionalDependencies...)
	return out
}

// SyntheticManifest builds a minimal in-memory manifest for a directory with
// no on-disk manifest. The project name is the directory basename. This is a
// first-class path: it lets the engine add dependencies to a bare directory.
func SyntheticManifest(dir string) *Manifest {
	name := filepath.Base(filepath.Clean(dir))
	if name == "." || name == string(filepath.Separator) {
		name = "project"
	}
	return &Manifest{Name: name, Version: "0.0.0"}
}

// NarrowedManifest builds a manifest containing only the requested package
// names under a wildcard constraint. The original manifest's other
// dependencies are deliberately excluded from the operation.
func NarrowedManifest(base *Manifest, names []string, dev bool) *Manifest {
	scope := ScopeProduction
	if dev {
		scope = ScopeDevelopment
	}
	deps := make([]Dependency, 0, len(names))
	for _, n := range names {
		deps = append(deps, Dependency{Name: n, Constraint: WildcardConstraint, Scope: scope})
	}
	m := &Manifest{
		Name:        base.Name,
		Version:     base.Version,
		Description: base.Description,
	}
	if dev {
		m.DevDependencies = deps
	} else {
		m.Dependencies = deps
	}
	return m
}

// ResolvedPackage is a concrete (name, version) chosen by the resolution
// engine, together with where to fetch it and its own declared dependencies.
// It is immutable once created.
type ResolvedPackage struct {
	Name         string
	Version      string
	Registry     string // registry the package was resolved from
	URL          string // artifact download URL
	Integrity    string // optional digest ("sha256-..." style), may be empty
	Deprecated   string // non-empty: deprecation message from the registry
	Dependencies []Dependency
}

// PackageInfo is the read-only registry view of a package, used by the info
// command.
type PackageInfo struct {
	Name        string
	Version     string // latest version
	Description string
	License     string
	Author      string
	HomePage    string
	Repository  string
	Deprecated  string
	Versions    []string // available versions, ascending
}

// SearchResult is one hit from a registry search.
type SearchResult struct {
	Name        string
	Version     string
	Description string
	Format      string // which adapter produced the hit
}

// Config is the immutable configuration snapshot captured once per operation.
// Adapters receive it through the operation Context and must not read ambient
// global state.
type Config struct {
	CacheDir  string // artifact store + metadata cache root
	RedisAddr string // optional redis metadata-cache backend
	Registry  string // registry base-URL override (empty = adapter default)
}

// Context carries cross-cutting operation settings into every adapter call.
// It is the only channel through which configuration reaches adapters.
type Context struct {
	Dir     string // project working directory
	Config  Config
	Verbose bool
	DryRun  bool
	Logf    func(string, ...any) // progress/diagnostic callback, may be nil
	Diags   *Diagnostics         // operation diagnostics, may be nil
}

// Log writes a progress message if a logger is attached.
func (c *Context) Log(format string, args ...any) {
	if c != nil && c.Logf != nil {
		c.Logf(format, args...)
	}
}

// Warn records a non-fatal diagnostic and logs it.
func (c *Context) Warn(pkg, format string, args ...any) {
	if c == nil {
		return
	}
	if c.Diags != nil {
		c.Diags.Warnf(pkg, format, args...)
	}
	c.Log("warning: "+pkg+": "+format, args...)
}

// Diagnostic is one non-fatal condition recorded during an operation
// (deprecations, truncated cycles, failed transitive edges).
type Diagnostic struct {
	Level   string // "warning" or "error"
	Package string
	Message string
}

// Diagnostics accumulates diagnostics across an operation. Safe for
// concurrent use; fetch runs packages in parallel.
type Diagnostics struct {
	mu      sync.Mutex
	entries []Diagnostic
}

func (d *Diagnostics) add(level, pkg, msg string) {
	d.mu.Lock()
	d.entries = append(d.entries, Diagnostic{Level: level, Package: pkg, Message: msg})
	d.mu.Unlock()
}

// Warnf records a warning-level diagnostic.
func (d *Diagnostics) Warnf(pkg, format string, args ...any) {
	d.add("warning", pkg, fmt.Sprintf(format, args...))
}

// Errorf records an error-level (but non-fatal) diagnostic.
func (d *Diagnostics) Errorf(pkg, format string, args ...any) {
	d.add("error", pkg, fmt.Sprintf(format, args...))
}

// Entries returns a copy of all recorded diagnostics in order.
func (d *Diagnostics) Entries() []Diagnostic {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Diagnostic, len(d.entries))
	copy(out, d.entries)
	return out
}

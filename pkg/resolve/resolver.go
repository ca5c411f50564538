package resolve

import (
	"context"
	"fmt"
	"regexp"
	"sort"

	"github.com/polypack/polypack/pkg/pm"
)

// Policy selects how far the engine expands the dependency graph.
type Policy int

const (
	// PolicyDeep recursively resolves transitive dependencies, truncating
	// cycles and bounding depth. Used where the ecosystem's graph is
	// expected to terminate cleanly.
	PolicyDeep Policy = iota

	// PolicyShallow resolves only directly declared dependencies and
	// explicitly does not recurse. This is a deliberate precision/safety
	// trade-off for ecosystems whose transitive metadata carries circular or
	// environment-conditional edges a simple resolver cannot navigate;
	// callers must not assume the resulting graph is complete.
	PolicyShallow
)

// DefaultMaxDepth is the hard recursion ceiling. It is a circuit breaker
// independent of cycle detection: some ecosystems have near-cyclic chains
// that are technically acyclic but arbitrarily deep.
const DefaultMaxDepth = 100

// validName is the baseline identifier check applied to every dependency
// edge before insertion. Edges whose names fail it are dropped, not errored.
var validName = regexp.MustCompile(`^[A-Za-z0-9](?:[A-Za-z0-9@/._-]*[A-Za-z0-9])?$`)

// Release is one concrete version's registry metadata.
type Release struct {
	Name         string
	Version      string
	URL          string // artifact download URL
	Integrity    string
	Deprecated   string // non-empty: deprecation message
	Yanked       bool   // withdrawn release; skipped unless nothing else satisfies
	Dependencies []pm.Dependency
}

// Source is the registry query interface the engine resolves against.
// Transport, auth headers, and base-URL handling are the implementation's
// concern; the engine treats it as an opaque remote call.
type Source interface {
	// Versions returns all available versions of a package.
	Versions(ctx context.Context, name string) ([]string, error)
	// Release returns the metadata for one concrete version.
	Release(ctx context.Context, name, version string) (*Release, error)
}

// Options configures a Resolver.
type Options struct {
	Policy   Policy
	MaxDepth int    // recursion ceiling (default DefaultMaxDepth)
	Registry string // registry label recorded on resolved packages

	// Filter drops dependency edges before graph insertion: return false for
	// edges gated by unevaluatable environment markers, unrequested extras
	// groups, and the like. Filtered edges never appear in the lock snapshot.
	// May be nil.
	Filter func(pm.Dependency) bool
}

// Resolver expands a manifest's declared dependencies into a resolved graph.
// Resolution is logically sequential per edge; the visited/in-progress sets
// are not safe for uncoordinated concurrent mutation.
type Resolver struct {
	src  Source
	opts Options
}

// New creates a Resolver over the given registry source.
func New(src Source, opts Options) *Resolver {
	if opts.MaxDepth <= 0 {
		opts.MaxDepth = DefaultMaxDepth
	}
	return &Resolver{src: src, opts: opts}
}

// Resolve builds the dependency graph for a manifest.
//
// Production, development, and optional dependencies of the root are
// resolved; peer dependencies are recorded as diagnostics and skipped.
// A production or development dependency of the root that cannot be resolved
// fails the whole resolution; optional and transitive failures are recorded
// in op.Diags and resolution continues.
func (r *Resolver) Resolve(ctx context.Context, m *pm.Manifest, op *pm.Context) (*pm.Graph, error) {
	w := &walker{
		r:          r,
		op:         op,
		g:          pm.NewGraph(m.Name),
		resolved:   make(map[string]bool),
		inProgress: make(map[string]bool),
	}

	for _, dep := range m.PeerDependencies {
		op.Warn(dep.Name, "peer dependency %s is not installed automatically", pm.Key(dep.Name, dep.Constraint))
	}

	direct := make([]pm.Dependency, 0, len(m.Dependencies)+len(m.DevDependencies)+len(m.OptionalDependencies))
	direct = append(direct, m.Dependencies...)
	direct = append(direct, m.DevDependencies...)
	direct = append(direct, m.OptionalDependencies...)

	for _, dep := range direct {
		if err := w.resolveEdge(ctx, dep, 0, ""); err != nil {
			if dep.Scope == pm.ScopeOptional {
				op.Warn(dep.Name, "optional dependency skipped: %v", err)
				continue
			}
			return nil, fmt.Errorf("resolve %s: %w", pm.Key(dep.Name, dep.Constraint), err)
		}
	}
	return w.g, nil
}

// walker tracks the resolution state: fully processed keys and the keys on
// the active recursion path. A key reappearing while in progress is a
// genuine cycle; the edge is truncated, never the whole resolution.
type walker struct {
	r          *Resolver
	op         *pm.Context
	g          *pm.Graph
	resolved   map[string]bool
	inProgress map[string]bool
}

func (w *walker) resolveEdge(ctx context.Context, dep pm.Dependency, depth int, parent string) error {
	key := pm.Key(dep.Name, dep.Constraint)

	if w.resolved[key] {
		w.link(parent, key)
		return nil
	}
	if w.inProgress[key] {
		w.op.Warn(dep.Name, "circular dependency detected at %s; edge truncated", key)
		w.link(parent, key)
		return nil
	}
	if depth > w.r.opts.MaxDepth {
		w.op.Warn(dep.Name, "dependency chain exceeds depth %d at %s; truncated", w.r.opts.MaxDepth, key)
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	rel, err := w.pick(ctx, dep)
	if err != nil {
		return err
	}
	if rel.Deprecated != "" {
		w.op.Warn(dep.Name, "%s@%s is deprecated: %s", rel.Name, rel.Version, rel.Deprecated)
	}

	registry := w.r.opts.Registry
	if dep.Registry != "" {
		registry = dep.Registry
	}
	pkg := &pm.ResolvedPackage{
		Name:         rel.Name,
		Version:      rel.Version,
		Registry:     registry,
		URL:          rel.URL,
		Integrity:    rel.Integrity,
		Deprecated:   rel.Deprecated,
		Dependencies: w.filterEdges(rel.Dependencies),
	}
	w.g.Add(key, pkg)
	w.link(parent, key)

	if w.r.opts.Policy == PolicyDeep {
		w.inProgress[key] = true
		for _, child := range pkg.Dependencies {
			if err := w.resolveEdge(ctx, child, depth+1, key); err != nil {
				if ctx.Err() != nil {
					delete(w.inProgress, key)
					return err
				}
				// Transitive edge failures are diagnostics, not fatal.
				if w.op.Diags != nil {
					w.op.Diags.Errorf(child.Name, "unresolvable edge %s: %v", pm.Key(child.Name, child.Constraint), err)
				}
				w.op.Log("warning: %s: %v", child.Name, err)
			}
		}
		delete(w.inProgress, key)
	}

	w.resolved[key] = true
	return nil
}

func (w *walker) link(parent, child string) {
	if parent != "" {
		w.g.AddDependency(parent, child)
	}
}

// pick selects the highest version satisfying the constraint, preferring
// non-yanked releases. Yanked releases are used only when nothing else
// satisfies, with a warning.
func (w *walker) pick(ctx context.Context, dep pm.Dependency) (*Release, error) {
	cons, err := ParseConstraint(dep.Constraint)
	if err != nil {
		return nil, err
	}
	versions, err := w.r.src.Versions(ctx, dep.Name)
	if err != nil {
		return nil, fmt.Errorf("list versions: %w", err)
	}

	var candidates []string
	for _, v := range versions {
		if cons.Matches(v) {
			candidates = append(candidates, v)
		}
	}
	if len(candidates) == 0 {
		return nil, fmt.Errorf("no version of %s satisfies %q (have %d versions)", dep.Name, cons, len(versions))
	}
	sort.Slice(candidates, func(i, j int) bool { return Compare(candidates[i], candidates[j]) > 0 })

	var fallback *Release
	for _, v := range candidates {
		rel, err := w.r.src.Release(ctx, dep.Name, v)
		if err != nil {
			return nil, fmt.Errorf("fetch metadata for %s@%s: %w", dep.Name, v, err)
		}
		if !rel.Yanked {
			return rel, nil
		}
		if fallback == nil {
			fallback = rel
		}
	}
	w.op.Warn(dep.Name, "all versions satisfying %q are yanked; using %s", cons, fallback.Version)
	return fallback, nil
}

// filterEdges applies identifier validation and the adapter's edge filter.
// Dropped edges never enter the graph, so they never reach the lock.
func (w *walker) filterEdges(deps []pm.Dependency) []pm.Dependency {
	if len(deps) == 0 {
		return nil
	}
	out := make([]pm.Dependency, 0, len(deps))
	for _, d := range deps {
		if !validName.MatchString(d.Name) {
			continue
		}
		if w.r.opts.Filter != nil && !w.r.opts.Filter(d) {
			continue
		}
		out = append(out, d)
	}
	return out
}

// Package manager orchestrates package operations across format adapters:
// adapter selection, manifest parsing, resolution, fetching, installation,
// and lock file maintenance. The CLI is a thin layer over this package.
package manager

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/polypack/polypack/pkg/cache"
	"github.com/polypack/polypack/pkg/pm"
)

// Manager drives operations over a registry of format adapters and a shared
// artifact store.
type Manager struct {
	Formats *pm.Registry
	Store   *cache.Store

	// Priority orders format detection when no format is forced; formats not
	// listed are probed afterwards in registration order.
	Priority []string

	// Version is recorded in lock file metadata as the generator; may be empty.
	Version string

	// Logf receives progress messages; may be nil.
	Logf func(string, ...any)
}

// Request describes one operation.
type Request struct {
	Dir      string   // project directory
	Format   string   // forced format name; empty = detect
	Packages []string // named packages; empty = whole manifest
	Dev      bool     // named packages go into the development scope
	DryRun   bool     // resolve and fetch, but do not install or write locks
	Verbose  bool
	Config   pm.Config
}

// Outcome is the full result of one operation. Whatever succeeded is always
// reported, alongside diagnostics and any errors.
type Outcome struct {
	OperationID string
	Format      string // adapter that handled the operation
	Manifest    *pm.Manifest
	Graph       *pm.Graph
	Lock        *pm.LockFile
	LockDiff    pm.LockDiff
	Result      *pm.InstallResult
	Planned     []*pm.ResolvedPackage // dry run: what would have been installed
	Diags       []pm.Diagnostic

	// LockErr is set when the lock file could not be written; the install
	// result above still stands.
	LockErr error
}

func (m *Manager) logf(format string, args ...any) {
	if m.Logf != nil {
		m.Logf(format, args...)
	}
}

// begin selects the adapter and builds the operation context.
func (m *Manager) begin(req Request) (pm.Adapter, *pm.Context, error) {
	var (
		adapter pm.Adapter
		err     error
	)
	if req.Format != "" {
		adapter, err = m.Formats.Get(req.Format)
	} else {
		adapter, err = m.Formats.Detect(req.Dir, m.Priority)
	}
	if err != nil {
		return nil, nil, err
	}
	op := &pm.Context{
		Dir:     req.Dir,
		Config:  req.Config,
		Verbose: req.Verbose,
		DryRun:  req.DryRun,
		Logf:    m.Logf,
		Diags:   &pm.Diagnostics{},
	}
	return adapter, op, nil
}

// Install runs the full pipeline: parse, narrow, resolve, fetch, install,
// lock. With req.Packages set, only those packages (and their resolution
// closure) are operated on; the manifest's other dependencies are untouched.
// The lock is written from the resolved graph even when individual installs
// fail, so a retry works from accurate pins. In dry-run mode nothing in the
// project directory is touched.
func (m *Manager) Install(ctx context.Context, req Request) (*Outcome, error) {
	adapter, op, err := m.begin(req)
	if err != nil {
		return nil, err
	}
	out := &Outcome{
		OperationID: uuid.NewString(),
		Format:      adapter.Name(),
	}
	defer func() { out.Diags = op.Diags.Entries() }()

	manifest, err := adapter.ParseManifest(req.Dir)
	if err != nil {
		return out, fmt.Errorf("parse manifest: %w", err)
	}
	out.Manifest = manifest

	target := manifest
	if len(req.Packages) > 0 {
		target = pm.NarrowedManifest(manifest, req.Packages, req.Dev)
	}

	m.logf("resolving %d dependencies (%s)", len(target.AllDependencies()), adapter.Name())
	graph, err := adapter.Resolve(ctx, target, op)
	if err != nil {
		return out, fmt.Errorf("resolve: %w", err)
	}
	out.Graph = graph

	pkgs := graph.Packages()
	m.logf("fetching %d packages", len(pkgs))
	paths, err := adapter.Fetch(ctx, pkgs, op)
	if err != nil {
		return out, err
	}

	if req.DryRun {
		out.Planned = pkgs
		return out, nil
	}

	result, err := adapter.Install(ctx, pkgs, paths, manifest, op)
	out.Result = result
	if err != nil {
		return out, fmt.Errorf("install: %w", err)
	}

	m.writeLock(adapter, req.Dir, graph, out)
	return out, nil
}

// writeLock snapshots the resolved graph into the format's lock file. A lock
// write failure is recorded on the outcome, not returned: the installed
// packages are real regardless.
func (m *Manager) writeLock(adapter pm.Adapter, dir string, graph *pm.Graph, out *Outcome) {
	prev, _ := adapter.ReadLock(dir)

	lock, err := adapter.CreateLock(graph, dir)
	if err != nil {
		out.LockErr = fmt.Errorf("%w: %v", pm.ErrLockWrite, err)
		return
	}
	lock.Metadata = map[string]any{
		"operation":   out.OperationID,
		"generatedAt": time.Now().UTC().Format(time.RFC3339),
	}
	if m.Version != "" {
		lock.Metadata["generator"] = "polypack " + m.Version
	}
	if err := lock.Write(dir); err != nil {
		out.LockErr = fmt.Errorf("%w: %v", pm.ErrLockWrite, err)
		return
	}
	out.Lock = lock
	out.LockDiff = lock.Diff(prev)
}

// Update re-resolves and re-installs; constraints are re-evaluated against
// the registry so newer satisfying versions replace pinned ones.
func (m *Manager) Update(ctx context.Context, req Request) (*Outcome, error) {
	return m.Install(ctx, req)
}

// Remove uninstalls the named packages and drops them from the lock file.
// Missing packages surface as per-package errors, not operation failure.
func (m *Manager) Remove(ctx context.Context, req Request) (*Outcome, error) {
	adapter, op, err := m.begin(req)
	if err != nil {
		return nil, err
	}
	out := &Outcome{
		OperationID: uuid.NewString(),
		Format:      adapter.Name(),
	}
	defer func() { out.Diags = op.Diags.Entries() }()

	if req.DryRun {
		return out, nil
	}

	result, err := adapter.Remove(ctx, req.Packages, op)
	out.Result = result
	if err != nil {
		return out, fmt.Errorf("remove: %w", err)
	}

	lock, err := adapter.ReadLock(req.Dir)
	if err != nil || lock == nil {
		return out, nil
	}
	for _, name := range result.Removed {
		delete(lock.Packages, name)
	}
	if err := lock.Write(req.Dir); err != nil {
		out.LockErr = fmt.Errorf("%w: %v", pm.ErrLockWrite, err)
	} else {
		out.Lock = lock
	}
	return out, nil
}

// Resolve runs the pipeline up to resolution only; used by the graph export
// command.
func (m *Manager) Resolve(ctx context.Context, req Request) (*pm.Graph, string, error) {
	adapter, op, err := m.begin(req)
	if err != nil {
		return nil, "", err
	}
	manifest, err := adapter.ParseManifest(req.Dir)
	if err != nil {
		return nil, adapter.Name(), fmt.Errorf("parse manifest: %w", err)
	}
	graph, err := adapter.Resolve(ctx, manifest, op)
	if err != nil {
		return nil, adapter.Name(), fmt.Errorf("resolve: %w", err)
	}
	return graph, adapter.Name(), nil
}

// Info queries one package's registry metadata, using the forced or detected
// adapter for the directory.
func (m *Manager) Info(ctx context.Context, req Request, name string) (*pm.PackageInfo, string, error) {
	adapter, op, err := m.begin(req)
	if err != nil {
		return nil, "", err
	}
	info, err := adapter.PackageInfo(ctx, name, op)
	if err != nil {
		return nil, adapter.Name(), err
	}
	return info, adapter.Name(), nil
}

// Search queries every registered adapter and merges results. One registry
// failing degrades to an empty contribution from that adapter.
func (m *Manager) Search(ctx context.Context, req Request, query string) ([]pm.SearchResult, error) {
	op := &pm.Context{
		Dir:     req.Dir,
		Config:  req.Config,
		Verbose: req.Verbose,
		Logf:    m.Logf,
		Diags:   &pm.Diagnostics{},
	}
	var (
		out  []pm.SearchResult
		errs []error
	)
	for _, adapter := range m.Formats.Adapters() {
		hits, err := adapter.Search(ctx, query, op)
		if err != nil {
			if ctx.Err() != nil {
				return out, ctx.Err()
			}
			errs = append(errs, fmt.Errorf("%s: %w", adapter.Name(), err))
			continue
		}
		out = append(out, hits...)
	}
	if len(out) == 0 && len(errs) == len(m.Formats.Adapters()) && len(errs) > 0 {
		// Every registry failed; that is an operation error, not an empty hit.
		return nil, errors.Join(errs...)
	}
	return out, nil
}

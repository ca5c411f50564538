// Package javascript implements the npm format adapter: package.json
// manifests, deep transitive resolution against an npm-compatible registry,
// tarball fetching into the artifact store, and node_modules installation.
package javascript

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/polypack/polypack/pkg/cache"
	"github.com/polypack/polypack/pkg/integrations"
	"github.com/polypack/polypack/pkg/integrations/npm"
	"github.com/polypack/polypack/pkg/pm"
	"github.com/polypack/polypack/pkg/resolve"
)

const manifestFile = "package.json"

// Adapter is the npm ecosystem plugin.
type Adapter struct {
	store   *cache.Store
	backend cache.Cache
	ttl     time.Duration
}

// New creates the npm adapter. backend caches registry metadata and may be
// nil; store holds fetched tarballs.
func New(store *cache.Store, backend cache.Cache) *Adapter {
	return &Adapter{store: store, backend: backend, ttl: integrations.DefaultTTL}
}

// Name returns "npm".
func (a *Adapter) Name() string { return "npm" }

// Aliases returns the alternate names this adapter answers to.
func (a *Adapter) Aliases() []string { return []string{"javascript", "node", "js"} }

// CanHandle reports whether dir contains a package.json.
func (a *Adapter) CanHandle(dir string) bool {
	info, err := os.Stat(filepath.Join(dir, manifestFile))
	return err == nil && !info.IsDir()
}

// packageJSON mirrors the subset of package.json the engine reads.
type packageJSON struct {
	Name                 string            `json:"name"`
	Version              string            `json:"version"`
	Description          string            `json:"description"`
	Dependencies         map[string]string `json:"dependencies"`
	DevDependencies      map[string]string `json:"devDependencies"`
	PeerDependencies     map[string]string `json:"peerDependencies"`
	OptionalDependencies map[string]string `json:"optionalDependencies"`
	Scripts              map[string]string `json:"scripts"`
}

// ParseManifest reads package.json. A missing manifest yields a synthetic
// one so dependencies can be added to a bare directory.
func (a *Adapter) ParseManifest(dir string) (*pm.Manifest, error) {
	data, err := os.ReadFile(filepath.Join(dir, manifestFile))
	if os.IsNotExist(err) {
		return pm.SyntheticManifest(dir), nil
	}
	if err != nil {
		return nil, err
	}
	var pj packageJSON
	if err := json.Unmarshal(data, &pj); err != nil {
		return nil, fmt.Errorf("parse %s: %w", manifestFile, err)
	}
	m := &pm.Manifest{
		Name:                 pj.Name,
		Version:              pj.Version,
		Description:          pj.Description,
		Dependencies:         depList(pj.Dependencies, pm.ScopeProduction),
		DevDependencies:      depList(pj.DevDependencies, pm.ScopeDevelopment),
		PeerDependencies:     depList(pj.PeerDependencies, pm.ScopePeer),
		OptionalDependencies: depList(pj.OptionalDependencies, pm.ScopeOptional),
		Scripts:              pj.Scripts,
	}
	if m.Name == "" {
		m.Name = pm.SyntheticManifest(dir).Name
	}
	return m, nil
}

// depList converts a package.json dependency map into scope-tagged
// dependencies, sorted by name for deterministic resolution order.
func depList(m map[string]string, scope pm.Scope) []pm.Dependency {
	if len(m) == 0 {
		return nil
	}
	names := make([]string, 0, len(m))
	for n := range m {
		names = append(names, n)
	}
	sort.Strings(names)
	out := make([]pm.Dependency, 0, len(names))
	for _, n := range names {
		c := m[n]
		if c == "" || c == "latest" {
			c = pm.WildcardConstraint
		}
		out = append(out, pm.Dependency{Name: n, Constraint: c, Scope: scope})
	}
	return out
}

func (a *Adapter) client(op *pm.Context) *npm.Client {
	return npm.NewClient(op.Config.Registry, a.backend, a.ttl)
}

func (a *Adapter) registryLabel(op *pm.Context) string {
	if op.Config.Registry != "" {
		return op.Config.Registry
	}
	return npm.DefaultBaseURL
}

// Resolve expands the manifest deeply: transitive production and optional
// dependencies are followed, cycles truncated. Peer dependencies are never
// installed automatically, matching npm behavior.
func (a *Adapter) Resolve(ctx context.Context, m *pm.Manifest, op *pm.Context) (*pm.Graph, error) {
	r := resolve.New(&source{c: a.client(op)}, resolve.Options{
		Policy:   resolve.PolicyDeep,
		Registry: a.registryLabel(op),
	})
	return r.Resolve(ctx, m, op)
}

// source bridges the npm client to the resolution engine.
type source struct {
	c *npm.Client
}

func (s *source) Versions(ctx context.Context, name string) ([]string, error) {
	return s.c.Versions(ctx, name)
}

func (s *source) Release(ctx context.Context, name, version string) (*resolve.Release, error) {
	v, err := s.c.Version(ctx, name, version)
	if err != nil {
		return nil, err
	}
	// Transitive peers are reported, not installed; dev dependencies of
	// transitive packages never apply.
	deps := depList(v.Dependencies, pm.ScopeProduction)
	deps = append(deps, depList(v.OptionalDependencies, pm.ScopeOptional)...)
	return &resolve.Release{
		Name:         name,
		Version:      v.Version,
		URL:          v.Dist.Tarball,
		Integrity:    v.Dist.Integrity,
		Deprecated:   v.Deprecated,
		Dependencies: deps,
	}, nil
}

// Fetch downloads tarballs into the artifact store, skipping packages already
// cached. The batch is all-or-nothing; per-package errors are aggregated
// after every download settles.
func (a *Adapter) Fetch(ctx context.Context, pkgs []*pm.ResolvedPackage, op *pm.Context) ([]string, error) {
	client := a.client(op)
	items := make([]cache.Item, len(pkgs))
	for i, p := range pkgs {
		url := p.URL
		items[i] = cache.Item{
			Format:  a.Name(),
			Name:    p.Name,
			Version: p.Version,
			Fill: func(ctx context.Context, w io.Writer) error {
				if url == "" {
					return fmt.Errorf("no tarball URL")
				}
				return client.DownloadTarball(ctx, url, w)
			},
		}
		if a.store.Has(a.Name(), p.Name, p.Version) {
			op.Log("cache hit %s@%s", p.Name, p.Version)
		}
	}
	paths, err := a.store.EnsureAll(ctx, items)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", pm.ErrFetchFailed, err)
	}
	return paths, nil
}

// Install copies fetched tarballs into node_modules/<name>/package.tgz and
// writes an install receipt. A package whose receipt already matches is
// skipped; per-package failures are collected, not fatal.
func (a *Adapter) Install(ctx context.Context, pkgs []*pm.ResolvedPackage, paths []string, m *pm.Manifest, op *pm.Context) (*pm.InstallResult, error) {
	res := &pm.InstallResult{}
	for i, p := range pkgs {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		dir := filepath.Join(op.Dir, "node_modules", filepath.FromSlash(p.Name))

		prior, err := cache.ReadReceipt(dir)
		if err != nil {
			res.Errors = append(res.Errors, pm.InstallError{Package: p.Name, Message: err.Error()})
			continue
		}
		if prior.Matches(a.Name(), p.Name, p.Version) {
			res.Skipped = append(res.Skipped, p.Name)
			continue
		}

		if err := materialize(dir, paths[i], "package.tgz"); err != nil {
			res.Errors = append(res.Errors, pm.InstallError{Package: p.Name, Message: err.Error()})
			continue
		}
		if err := cache.WriteReceipt(dir, &cache.Receipt{
			Format:      a.Name(),
			Name:        p.Name,
			Version:     p.Version,
			Integrity:   p.Integrity,
			InstalledAt: time.Now().UTC(),
		}); err != nil {
			res.Errors = append(res.Errors, pm.InstallError{Package: p.Name, Message: err.Error()})
			continue
		}
		if prior != nil {
			res.Updated = append(res.Updated, p.Name)
		} else {
			res.Installed = append(res.Installed, p.Name)
		}
	}
	return res, nil
}

// materialize copies an artifact into an install directory.
func materialize(dir, artifactPath, name string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	src, err := os.Open(artifactPath)
	if err != nil {
		return err
	}
	defer src.Close()
	dst, err := os.Create(filepath.Join(dir, name))
	if err != nil {
		return err
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return err
	}
	return dst.Close()
}

// Remove deletes installed packages from node_modules. A package that is not
// installed is a non-fatal error.
func (a *Adapter) Remove(ctx context.Context, names []string, op *pm.Context) (*pm.InstallResult, error) {
	res := &pm.InstallResult{}
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		dir := filepath.Join(op.Dir, "node_modules", filepath.FromSlash(name))
		if _, err := os.Stat(dir); os.IsNotExist(err) {
			res.Errors = append(res.Errors, pm.InstallError{Package: name, Message: "not installed"})
			continue
		}
		if err := os.RemoveAll(dir); err != nil {
			res.Errors = append(res.Errors, pm.InstallError{Package: name, Message: err.Error()})
			continue
		}
		res.Removed = append(res.Removed, name)
	}
	return res, nil
}

// CreateLock builds the npm lock snapshot from a resolved graph.
func (a *Adapter) CreateLock(g *pm.Graph, dir string) (*pm.LockFile, error) {
	return pm.LockFromGraph(a.Name(), g), nil
}

// ReadLock loads the npm lock file, or (nil, nil) when absent.
func (a *Adapter) ReadLock(dir string) (*pm.LockFile, error) {
	return pm.ReadLockFile(dir, a.Name())
}

// PackageInfo queries the registry document for a package.
func (a *Adapter) PackageInfo(ctx context.Context, name string, op *pm.Context) (*pm.PackageInfo, error) {
	doc, err := a.client(op).FetchDocument(ctx, name, false)
	if err != nil {
		return nil, err
	}
	versions := make([]string, 0, len(doc.Versions))
	for v := range doc.Versions {
		versions = append(versions, v)
	}
	sort.Slice(versions, func(i, j int) bool { return resolve.Compare(versions[i], versions[j]) < 0 })

	latest := doc.DistTags["latest"]
	info := &pm.PackageInfo{
		Name:        doc.Name,
		Version:     latest,
		Description: doc.Description,
		License:     npm.ExtractField(doc.License, "type"),
		Author:      npm.ExtractField(doc.Author, "name"),
		HomePage:    doc.HomePage,
		Repository:  npm.ExtractField(doc.Repository, "url"),
		Versions:    versions,
	}
	if v, ok := doc.Versions[latest]; ok {
		info.Deprecated = v.Deprecated
		if info.Description == "" {
			info.Description = v.Description
		}
	}
	return info, nil
}

// Search queries the registry search endpoint. Failures degrade to an empty
// result so a cross-format search keeps going.
func (a *Adapter) Search(ctx context.Context, query string, op *pm.Context) ([]pm.SearchResult, error) {
	hits, err := a.client(op).Search(ctx, query, 20)
	if err != nil {
		op.Warn("npm", "search failed: %v", err)
		return nil, nil
	}
	out := make([]pm.SearchResult, 0, len(hits))
	for _, h := range hits {
		out = append(out, pm.SearchResult{
			Name:        h.Name,
			Version:     h.Version,
			Description: h.Description,
			Format:      a.Name(),
		})
	}
	return out, nil
}

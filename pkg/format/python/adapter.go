// Package python implements the pip format adapter: requirements.txt and
// pyproject.toml manifests, shallow resolution against the PyPI JSON API,
// wheel-preferring artifact fetches, and __pypackages__ installation.
//
// Resolution is deliberately shallow: only directly declared requirements are
// resolved. PyPI's transitive metadata carries environment markers and extras
// that make naive recursion unsound, so the graph records transitive edges as
// declared dependencies without expanding them.
package python

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/polypack/polypack/pkg/cache"
	"github.com/polypack/polypack/pkg/integrations"
	"github.com/polypack/polypack/pkg/integrations/pypi"
	"github.com/polypack/polypack/pkg/pm"
	"github.com/polypack/polypack/pkg/resolve"
)

const (
	requirementsFile = "requirements.txt"
	pyprojectFile    = "pyproject.toml"
	installRoot      = "__pypackages__"
)

// Adapter is the pip ecosystem plugin.
type Adapter struct {
	store   *cache.Store
	backend cache.Cache
	ttl     time.Duration
}

// New creates the pip adapter. backend caches registry metadata and may be
// nil; store holds fetched wheels and sdists.
func New(store *cache.Store, backend cache.Cache) *Adapter {
	return &Adapter{store: store, backend: backend, ttl: integrations.DefaultTTL}
}

// Name returns "pip".
func (a *Adapter) Name() string { return "pip" }

// Aliases returns the alternate names this adapter answers to.
func (a *Adapter) Aliases() []string { return []string{"python", "pypi"} }

// CanHandle reports whether dir contains a requirements.txt or pyproject.toml.
func (a *Adapter) CanHandle(dir string) bool {
	for _, f := range []string{requirementsFile, pyprojectFile} {
		if info, err := os.Stat(filepath.Join(dir, f)); err == nil && !info.IsDir() {
			return true
		}
	}
	return false
}

// pyproject mirrors the subset of pyproject.toml the engine reads.
type pyproject struct {
	Project struct {
		Name                 string              `toml:"name"`
		Version              string              `toml:"version"`
		Description          string              `toml:"description"`
		Dependencies         []string            `toml:"dependencies"`
		OptionalDependencies map[string][]string `toml:"optional-dependencies"`
	} `toml:"project"`
}

// ParseManifest reads pyproject.toml when present, falling back to
// requirements.txt, and finally to a synthetic manifest. Extras groups from
// optional-dependencies are recorded in metadata but never resolved unless
// requested.
func (a *Adapter) ParseManifest(dir string) (*pm.Manifest, error) {
	if _, err := os.Stat(filepath.Join(dir, pyprojectFile)); err == nil {
		return a.parsePyproject(dir)
	}
	if _, err := os.Stat(filepath.Join(dir, requirementsFile)); err == nil {
		return a.parseRequirements(dir)
	}
	return pm.SyntheticManifest(dir), nil
}

func (a *Adapter) parsePyproject(dir string) (*pm.Manifest, error) {
	var pp pyproject
	if _, err := toml.DecodeFile(filepath.Join(dir, pyprojectFile), &pp); err != nil {
		return nil, fmt.Errorf("parse %s: %w", pyprojectFile, err)
	}
	m := &pm.Manifest{
		Name:        pp.Project.Name,
		Version:     pp.Project.Version,
		Description: pp.Project.Description,
	}
	if m.Name == "" {
		m.Name = pm.SyntheticManifest(dir).Name
	}
	for _, raw := range pp.Project.Dependencies {
		dep, ok := parseRequirement(raw, pm.ScopeProduction)
		if !ok {
			continue
		}
		m.Dependencies = append(m.Dependencies, dep)
	}
	if len(pp.Project.OptionalDependencies) > 0 {
		groups := make([]string, 0, len(pp.Project.OptionalDependencies))
		for g := range pp.Project.OptionalDependencies {
			groups = append(groups, g)
		}
		sort.Strings(groups)
		m.Metadata = map[string]any{"extras": groups}
	}
	return m, nil
}

func (a *Adapter) parseRequirements(dir string) (*pm.Manifest, error) {
	f, err := os.Open(filepath.Join(dir, requirementsFile))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	m := pm.SyntheticManifest(dir)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if i := strings.Index(line, "#"); i >= 0 {
			line = line[:i]
		}
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "-") {
			// pip options (-r, -e, --hash) are out of scope.
			continue
		}
		dep, ok := parseRequirement(line, pm.ScopeProduction)
		if !ok {
			continue
		}
		m.Dependencies = append(m.Dependencies, dep)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return m, nil
}

// parseRequirement parses a PEP 508 requirement line into a dependency edge.
// Marker-gated requirements (anything after ";") are dropped: the engine does
// not evaluate environment markers, and a dropped edge must never reach the
// lock. Extras brackets are stripped from the name; the constraint syntax is
// translated to the engine's (~= becomes ~).
func parseRequirement(raw string, scope pm.Scope) (pm.Dependency, bool) {
	if i := strings.Index(raw, ";"); i >= 0 {
		return pm.Dependency{}, false
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return pm.Dependency{}, false
	}

	// Split name from constraint at the first operator character.
	nameEnd := len(raw)
	for i, r := range raw {
		if r == '<' || r == '>' || r == '=' || r == '!' || r == '~' || r == '(' || r == ' ' {
			nameEnd = i
			break
		}
	}
	name := strings.TrimSpace(raw[:nameEnd])
	cons := strings.TrimSpace(raw[nameEnd:])

	if i := strings.Index(name, "["); i >= 0 {
		name = name[:i]
	}
	if name == "" {
		return pm.Dependency{}, false
	}

	cons = strings.Trim(cons, "()")
	cons = strings.ReplaceAll(cons, " ", "")
	cons = strings.ReplaceAll(cons, "~=", "~")
	if cons == "" {
		cons = pm.WildcardConstraint
	}
	return pm.Dependency{Name: name, Constraint: cons, Scope: scope}, true
}

func (a *Adapter) client(op *pm.Context) *pypi.Client {
	return pypi.NewClient(op.Config.Registry, a.backend, a.ttl)
}

func (a *Adapter) registryLabel(op *pm.Context) string {
	if op.Config.Registry != "" {
		return op.Config.Registry
	}
	return pypi.DefaultBaseURL
}

// Resolve expands only the directly declared requirements. The shallow policy
// is a stated trade-off: callers must not assume the graph covers transitive
// dependencies.
func (a *Adapter) Resolve(ctx context.Context, m *pm.Manifest, op *pm.Context) (*pm.Graph, error) {
	r := resolve.New(&source{c: a.client(op)}, resolve.Options{
		Policy:   resolve.PolicyShallow,
		Registry: a.registryLabel(op),
	})
	return r.Resolve(ctx, m, op)
}

// source bridges the PyPI client to the resolution engine.
type source struct {
	c *pypi.Client
}

func (s *source) Versions(ctx context.Context, name string) ([]string, error) {
	return s.c.Versions(ctx, name)
}

func (s *source) Release(ctx context.Context, name, version string) (*resolve.Release, error) {
	proj, err := s.c.FetchRelease(ctx, name, version, false)
	if err != nil {
		return nil, err
	}
	files := proj.URLs
	if len(files) == 0 {
		files = proj.Releases[version]
	}
	art, hasArtifact := pypi.PreferredArtifact(files)

	rel := &resolve.Release{
		Name:    proj.Info.Name,
		Version: version,
		Yanked:  proj.Info.Yanked,
	}
	if rel.Name == "" {
		rel.Name = name
	}
	if hasArtifact {
		rel.URL = art.URL
		rel.Yanked = rel.Yanked || art.Yanked
		if d := art.Digests["sha256"]; d != "" {
			rel.Integrity = "sha256-" + d
		}
	}
	if proj.Info.Yanked && proj.Info.YankedReason != "" {
		rel.Deprecated = "yanked: " + proj.Info.YankedReason
	}
	for _, raw := range proj.Info.RequiresDist {
		if dep, ok := parseRequirement(raw, pm.ScopeProduction); ok {
			rel.Dependencies = append(rel.Dependencies, dep)
		}
	}
	return rel, nil
}

// Fetch downloads release artifacts into the store, preferring wheels over
// sdists (the preference is already baked into each package's URL at
// resolution time).
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
					return fmt.Errorf("no downloadable artifact")
				}
				return client.DownloadArtifact(ctx, url, w)
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

// Install copies fetched artifacts into __pypackages__/<name>/ and writes an
// install receipt. Matching receipts are skipped; per-package failures are
// collected, not fatal.
func (a *Adapter) Install(ctx context.Context, pkgs []*pm.ResolvedPackage, paths []string, m *pm.Manifest, op *pm.Context) (*pm.InstallResult, error) {
	res := &pm.InstallResult{}
	for i, p := range pkgs {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		name := integrations.NormalizePkgName(p.Name)
		dir := filepath.Join(op.Dir, installRoot, name)

		prior, err := cache.ReadReceipt(dir)
		if err != nil {
			res.Errors = append(res.Errors, pm.InstallError{Package: p.Name, Message: err.Error()})
			continue
		}
		if prior.Matches(a.Name(), p.Name, p.Version) {
			res.Skipped = append(res.Skipped, p.Name)
			continue
		}

		if err := materialize(dir, paths[i], artifactName(p.URL)); err != nil {
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

// artifactName picks the on-disk filename for an installed artifact from its
// download URL.
func artifactName(url string) string {
	if base := path.Base(url); base != "" && base != "." && base != "/" {
		return base
	}
	return "artifact"
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

// Remove deletes installed packages from __pypackages__. A package that is
// not installed is a non-fatal error.
func (a *Adapter) Remove(ctx context.Context, names []string, op *pm.Context) (*pm.InstallResult, error) {
	res := &pm.InstallResult{}
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		dir := filepath.Join(op.Dir, installRoot, integrations.NormalizePkgName(name))
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

// CreateLock builds the pip lock snapshot from a resolved graph.
func (a *Adapter) CreateLock(g *pm.Graph, dir string) (*pm.LockFile, error) {
	return pm.LockFromGraph(a.Name(), g), nil
}

// ReadLock loads the pip lock file, or (nil, nil) when absent.
func (a *Adapter) ReadLock(dir string) (*pm.LockFile, error) {
	return pm.ReadLockFile(dir, a.Name())
}

// PackageInfo queries the PyPI project document.
func (a *Adapter) PackageInfo(ctx context.Context, name string, op *pm.Context) (*pm.PackageInfo, error) {
	proj, err := a.client(op).FetchProject(ctx, name, false)
	if err != nil {
		return nil, err
	}
	versions := make([]string, 0, len(proj.Releases))
	for v := range proj.Releases {
		versions = append(versions, v)
	}
	sort.Slice(versions, func(i, j int) bool { return resolve.Compare(versions[i], versions[j]) < 0 })

	info := &pm.PackageInfo{
		Name:        proj.Info.Name,
		Version:     proj.Info.Version,
		Description: proj.Info.Summary,
		License:     proj.Info.License,
		Author:      proj.Info.Author,
		HomePage:    proj.Info.HomePage,
		Versions:    versions,
	}
	if proj.Info.Yanked {
		info.Deprecated = "yanked: " + proj.Info.YankedReason
	}
	return info, nil
}

// Search returns no results: PyPI has no supported JSON search API. The
// empty result keeps a cross-format search from aborting.
func (a *Adapter) Search(ctx context.Context, query string, op *pm.Context) ([]pm.SearchResult, error) {
	op.Log("pypi has no search API; skipping")
	return nil, nil
}

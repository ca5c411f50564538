package javascript

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/polypack/polypack/pkg/cache"
	"github.com/polypack/polypack/pkg/integrations/npm"
	"github.com/polypack/polypack/pkg/pm"
)

// newRegistry serves a tiny npm-compatible registry with one package and its
// tarball, counting tarball downloads.
func newRegistry(t *testing.T, downloads *atomic.Int32) *httptest.Server {
	t.Helper()
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/left-pad":
			json.NewEncoder(w).Encode(npm.Document{
				Name:     "left-pad",
				DistTags: map[string]string{"latest": "1.3.0"},
				Versions: map[string]npm.VersionDetails{
					"1.0.0": {Version: "1.0.0", Dist: npm.Dist{Tarball: srv.URL + "/tarballs/left-pad-1.0.0.tgz"}},
					"1.3.0": {Version: "1.3.0", Dist: npm.Dist{Tarball: srv.URL + "/tarballs/left-pad-1.3.0.tgz", Integrity: "sha512-pad"}},
				},
			})
		case "/tarballs/left-pad-1.3.0.tgz", "/tarballs/left-pad-1.0.0.tgz":
			downloads.Add(1)
			fmt.Fprint(w, "tarball-content")
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newAdapter(t *testing.T) *Adapter {
	t.Helper()
	store, err := cache.NewStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	return New(store, nil)
}

func newOp(dir, registry string) *pm.Context {
	return &pm.Context{
		Dir:    dir,
		Config: pm.Config{Registry: registry},
		Diags:  &pm.Diagnostics{},
	}
}

func TestCanHandle(t *testing.T) {
	a := newAdapter(t)
	dir := t.TempDir()

	if a.CanHandle(dir) {
		t.Error("bare directory should not be handled")
	}
	if err := os.WriteFile(filepath.Join(dir, "package.json"), []byte("{}"), 0o644); err != nil {
		t.Fatal(err)
	}
	if !a.CanHandle(dir) {
		t.Error("directory with package.json should be handled")
	}
}

func TestParseManifest(t *testing.T) {
	a := newAdapter(t)
	dir := t.TempDir()

	content := `{
		"name": "my-app",
		"version": "1.0.0",
		"dependencies": {"lodash": "^4.17.0"},
		"devDependencies": {"jest": "^29.0.0"},
		"peerDependencies": {"react": "^18.0.0"},
		"optionalDependencies": {"fsevents": "*"},
		"scripts": {"test": "jest"}
	}`
	if err := os.WriteFile(filepath.Join(dir, "package.json"), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	m, err := a.ParseManifest(dir)
	if err != nil {
		t.Fatalf("ParseManifest: %v", err)
	}
	if m.Name != "my-app" {
		t.Errorf("Name = %q", m.Name)
	}
	if len(m.Dependencies) != 1 || m.Dependencies[0].Scope != pm.ScopeProduction {
		t.Errorf("Dependencies = %+v", m.Dependencies)
	}
	if len(m.DevDependencies) != 1 || len(m.PeerDependencies) != 1 || len(m.OptionalDependencies) != 1 {
		t.Errorf("scopes = %d/%d/%d", len(m.DevDependencies), len(m.PeerDependencies), len(m.OptionalDependencies))
	}
	if m.Scripts["test"] != "jest" {
		t.Errorf("Scripts = %v", m.Scripts)
	}
}

func TestParseManifest_MissingIsSynthetic(t *testing.T) {
	a := newAdapter(t)
	dir := t.TempDir()

	m, err := a.ParseManifest(dir)
	if err != nil {
		t.Fatalf("ParseManifest: %v", err)
	}
	if m.Name != filepath.Base(dir) || len(m.AllDependencies()) != 0 {
		t.Errorf("synthetic manifest = %+v", m)
	}
}

func TestResolveFetchInstall(t *testing.T) {
	var downloads atomic.Int32
	srv := newRegistry(t, &downloads)
	a := newAdapter(t)

	project := t.TempDir()
	op := newOp(project, srv.URL)
	ctx := context.Background()

	m := &pm.Manifest{
		Name:         "app",
		Dependencies: []pm.Dependency{{Name: "left-pad", Constraint: "^1.0.0", Scope: pm.ScopeProduction}},
	}
	g, err := a.Resolve(ctx, m, op)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	pkgs := g.Packages()
	if len(pkgs) != 1 || pkgs[0].Version != "1.3.0" {
		t.Fatalf("resolved %+v, want left-pad@1.3.0", pkgs)
	}

	paths, err := a.Fetch(ctx, pkgs, op)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if downloads.Load() != 1 {
		t.Errorf("downloads = %d, want 1", downloads.Load())
	}

	// Re-fetching serves from the artifact store without network access.
	if _, err := a.Fetch(ctx, pkgs, op); err != nil {
		t.Fatalf("second Fetch: %v", err)
	}
	if downloads.Load() != 1 {
		t.Errorf("downloads after cached fetch = %d, want 1", downloads.Load())
	}

	res, err := a.Install(ctx, pkgs, paths, m, op)
	if err != nil {
		t.Fatalf("Install: %v", err)
	}
	if len(res.Installed) != 1 {
		t.Fatalf("Installed = %v", res.Installed)
	}
	installed := filepath.Join(project, "node_modules", "left-pad", "package.tgz")
	if _, err := os.Stat(installed); err != nil {
		t.Fatalf("artifact not materialized: %v", err)
	}

	// Reinstalling the same version is an idempotent skip.
	res, err = a.Install(ctx, pkgs, paths, m, op)
	if err != nil {
		t.Fatalf("reinstall: %v", err)
	}
	if len(res.Skipped) != 1 || len(res.Installed) != 0 {
		t.Errorf("reinstall = %+v, want skip", res)
	}
}

func TestInstall_VersionChangeIsUpdate(t *testing.T) {
	a := newAdapter(t)
	project := t.TempDir()
	op := newOp(project, "")
	ctx := context.Background()

	artifact := filepath.Join(t.TempDir(), "artifact")
	if err := os.WriteFile(artifact, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	v1 := []*pm.ResolvedPackage{{Name: "pkg", Version: "1.0.0"}}
	if _, err := a.Install(ctx, v1, []string{artifact}, nil, op); err != nil {
		t.Fatal(err)
	}

	v2 := []*pm.ResolvedPackage{{Name: "pkg", Version: "2.0.0"}}
	res, err := a.Install(ctx, v2, []string{artifact}, nil, op)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Updated) != 1 {
		t.Errorf("result = %+v, want update", res)
	}
}

func TestRemove(t *testing.T) {
	a := newAdapter(t)
	project := t.TempDir()
	op := newOp(project, "")

	dir := filepath.Join(project, "node_modules", "left-pad")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}

	res, err := a.Remove(context.Background(), []string{"left-pad", "ghost"}, op)
	if err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if len(res.Removed) != 1 || res.Removed[0] != "left-pad" {
		t.Errorf("Removed = %v", res.Removed)
	}
	// A missing package is a per-package error, not an operation failure.
	if len(res.Errors) != 1 || res.Errors[0].Package != "ghost" {
		t.Errorf("Errors = %+v", res.Errors)
	}
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Error("package directory survived Remove")
	}
}

func TestLockRoundTrip(t *testing.T) {
	a := newAdapter(t)
	dir := t.TempDir()

	g := pm.NewGraph("app")
	g.Add("left-pad@^1.0.0", &pm.ResolvedPackage{Name: "left-pad", Version: "1.3.0"})

	lock, err := a.CreateLock(g, dir)
	if err != nil {
		t.Fatal(err)
	}
	if lock.Format != "npm" {
		t.Errorf("Format = %q", lock.Format)
	}
	if err := lock.Write(dir); err != nil {
		t.Fatal(err)
	}

	got, err := a.ReadLock(dir)
	if err != nil || got == nil {
		t.Fatalf("ReadLock = (%v, %v)", got, err)
	}
	if got.Packages["left-pad"].Version != "1.3.0" {
		t.Errorf("lock entry = %+v", got.Packages["left-pad"])
	}
}

func TestPackageInfo(t *testing.T) {
	var downloads atomic.Int32
	srv := newRegistry(t, &downloads)
	a := newAdapter(t)
	op := newOp(t.TempDir(), srv.URL)

	info, err := a.PackageInfo(context.Background(), "left-pad", op)
	if err != nil {
		t.Fatalf("PackageInfo: %v", err)
	}
	if info.Version != "1.3.0" {
		t.Errorf("latest = %q", info.Version)
	}
	if len(info.Versions) != 2 || info.Versions[0] != "1.0.0" {
		t.Errorf("versions = %v, want ascending order", info.Versions)
	}
}

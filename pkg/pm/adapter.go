package pm

import "context"

// Adapter is the capability contract every ecosystem plugin implements.
// Adapters are registered statically at startup; there is no runtime
// discovery.
//
// Resolution semantics differ deliberately per adapter (deep vs. shallow
// transitive traversal); everything else about the pipeline is shared.
type Adapter interface {
	// Name returns the canonical format name (e.g. "npm", "pip").
	Name() string

	// Aliases returns additional format names this adapter registers under.
	Aliases() []string

	// CanHandle is a cheap, side-effect-free probe for whether the directory
	// belongs to this format. It must never propagate I/O errors it can
	// recover from; a missing directory is simply false.
	CanHandle(dir string) bool

	// ParseManifest reads the directory's manifest. When none exists it
	// returns a synthetic minimal manifest (name from the directory
	// basename) so dependencies can be added to a bare directory.
	ParseManifest(dir string) (*Manifest, error)

	// Resolve expands the manifest's declared dependency set into a resolved
	// graph. Transitive edge failures are recorded in op.Diags and do not
	// abort; a direct dependency of the root failing to resolve does.
	Resolve(ctx context.Context, m *Manifest, op *Context) (*Graph, error)

	// Fetch downloads artifacts for the resolved packages, consulting the
	// artifact store before any network access. It returns one local path
	// per input package, order-preserving. All packages are fetched
	// concurrently; errors are aggregated after the whole batch settles.
	Fetch(ctx context.Context, pkgs []*ResolvedPackage, op *Context) ([]string, error)

	// Install materializes fetched artifacts into the format's install
	// layout. It is idempotent: a package whose receipt already matches is
	// skipped. paths aligns index-for-index with pkgs.
	Install(ctx context.Context, pkgs []*ResolvedPackage, paths []string, m *Manifest, op *Context) (*InstallResult, error)

	// Remove deletes installed packages by name, best-effort. A missing
	// package is a non-fatal InstallError, not an operation failure.
	Remove(ctx context.Context, names []string, op *Context) (*InstallResult, error)

	// CreateLock builds the lock snapshot for a resolved graph.
	CreateLock(g *Graph, dir string) (*LockFile, error)

	// ReadLock loads this format's lock file, or (nil, nil) when absent.
	ReadLock(dir string) (*LockFile, error)

	// PackageInfo queries the registry for a package's metadata.
	PackageInfo(ctx context.Context, name string, op *Context) (*PackageInfo, error)

	// Search queries the registry. Failures degrade to an empty result so a
	// cross-adapter search never aborts on one registry.
	Search(ctx context.Context, query string, op *Context) ([]SearchResult, error)
}

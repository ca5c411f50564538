package cli

import (
	"context"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"

	"github.com/polypack/polypack/pkg/cache"
	"github.com/polypack/polypack/pkg/format/javascript"
	"github.com/polypack/polypack/pkg/format/python"
	"github.com/polypack/polypack/pkg/manager"
	"github.com/polypack/polypack/pkg/pm"
)

// Environment overrides.
const (
	envCacheDir  = "POLYPACK_CACHE_DIR"
	envRedisAddr = "POLYPACK_REDIS_ADDR"
	envRegistry  = "POLYPACK_REGISTRY"
)

// detectPriority orders format detection when no --format is given.
var detectPriority = []string{"npm", "pip"}

// globalOptions are the persistent flags shared by every command.
type globalOptions struct {
	dir      string
	format   string
	registry string
	cacheDir string
	redis    string
	verbose  bool
}

// fromEnv fills unset options from the environment.
func (o *globalOptions) fromEnv() {
	if o.cacheDir == "" {
		o.cacheDir = os.Getenv(envCacheDir)
	}
	if o.redis == "" {
		o.redis = os.Getenv(envRedisAddr)
	}
	if o.registry == "" {
		o.registry = os.Getenv(envRegistry)
	}
}

// cacheRoot resolves the cache root directory.
func (o *globalOptions) cacheRoot() (string, error) {
	if o.cacheDir != "" {
		return o.cacheDir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".cache", "polypack"), nil
}

// newManager assembles the operation stack: artifact store, metadata cache
// backend, format adapters, and the orchestrator. The configuration snapshot
// is taken once here; adapters never read the environment themselves.
func newManager(ctx context.Context, logger *log.Logger, opts *globalOptions) (*manager.Manager, pm.Config, error) {
	opts.fromEnv()

	root, err := opts.cacheRoot()
	if err != nil {
		return nil, pm.Config{}, err
	}
	store, err := cache.NewStore(filepath.Join(root, "artifacts"))
	if err != nil {
		return nil, pm.Config{}, err
	}

	backend := metadataBackend(ctx, logger, root, opts.redis)

	formats := pm.NewRegistry()
	formats.Register(javascript.New(store, backend))
	formats.Register(python.New(store, backend))

	m := &manager.Manager{
		Formats:  formats,
		Store:    store,
		Priority: detectPriority,
		Version:  version,
		Logf:     logger.Debugf,
	}
	cfg := pm.Config{
		CacheDir:  root,
		RedisAddr: opts.redis,
		Registry:  opts.registry,
	}
	return m, cfg, nil
}

// metadataBackend selects the registry-metadata cache: redis when an address
// is configured, the local file cache otherwise. A failed redis connection
// degrades to the file cache with a warning rather than failing the command.
func metadataBackend(ctx context.Context, logger *log.Logger, root, redisAddr string) cache.Cache {
	if redisAddr != "" {
		rc, err := cache.NewRedisCache(ctx, redisAddr)
		if err == nil {
			return rc
		}
		logger.Warnf("redis cache unavailable (%v); using file cache", err)
	}
	fc, err := cache.NewFileCache(filepath.Join(root, "metadata"))
	if err != nil {
		logger.Warnf("file cache unavailable (%v); caching disabled", err)
		return cache.NewNullCache()
	}
	return fc
}

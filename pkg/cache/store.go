package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
)

// fetchWorkers bounds concurrent artifact downloads per batch.
const fetchWorkers = 8

// Store is the content-addressed artifact store. Artifacts are keyed by
// (format, normalized name, version); repeated fetches of the same key reuse
// the on-disk file without re-verifying its digest. A corrupted entry is
// fixed by an explicit Clear, not auto-detected on the hot path.
type Store struct {
	dir string
}

// NewStore creates an artifact store rooted at dir. If dir is empty the
// default ~/.cache/polypack/artifacts is used.
func NewStore(dir string) (*Store, error) {
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}
		dir = filepath.Join(home, ".cache", "polypack", "artifacts")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &Store{dir: dir}, nil
}

// Dir returns the store's root directory.
func (s *Store) Dir() string { return s.dir }

// Path computes the artifact location for a cache key. Names are normalized
// (lowercased, path separators flattened) so registry-cased names and scoped
// names land on stable paths.
func (s *Store) Path(format, name, version string) string {
	return filepath.Join(s.dir, format, normalizeName(name), version, "artifact")
}

// Has reports whether an artifact is already cached. This is the fetch
// idempotency check: existence only, no integrity re-verification.
func (s *Store) Has(format, name, version string) bool {
	info, err := os.Stat(s.Path(format, name, version))
	return err == nil && !info.IsDir()
}

// Ensure returns the cached artifact path, downloading via fill only on a
// miss. The write is atomic: fill streams into a temporary file in the same
// directory which is then renamed into place, so an interrupted fetch never
// leaves a partial artifact that a later idempotency check would trust.
// If a concurrent duplicate has produced the final file in the meantime, the
// staged copy is discarded in its favor.
func (s *Store) Ensure(ctx context.Context, format, name, version string, fill func(ctx context.Context, w io.Writer) error) (string, bool, error) {
	path := s.Path(format, name, version)
	if s.Has(format, name, version) {
		return path, true, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", false, err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".staging-*")
	if err != nil {
		return "", false, err
	}
	if err := fill(ctx, tmp); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", false, err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", false, err
	}

	// A retried duplicate may have won the race; keep its file.
	if s.Has(format, name, version) {
		os.Remove(tmp.Name())
		return path, true, nil
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return "", false, err
	}
	return path, false, nil
}

// Item identifies one artifact for a batch fetch.
type Item struct {
	Format  string
	Name    string
	Version string
	// Fill streams the artifact body on a cache miss.
	Fill func(ctx context.Context, w io.Writer) error
}

// EnsureAll fetches a batch of artifacts concurrently and returns one local
// path per item, order-preserving. All fetches settle before errors are
// reported, so partial diagnostics are not lost; any failure fails the whole
// batch (fetch is all-or-nothing per invocation).
func (s *Store) EnsureAll(ctx context.Context, items []Item) ([]string, error) {
	paths := make([]string, len(items))
	errs := make([]error, len(items))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(fetchWorkers)
	for i, item := range items {
		g.Go(func() error {
			path, _, err := s.Ensure(gctx, item.Format, item.Name, item.Version, item.Fill)
			if err != nil {
				errs[i] = fmt.Errorf("%s@%s: %w", item.Name, item.Version, err)
				return nil // settle the whole batch before reporting
			}
			paths[i] = path
			return nil
		})
	}
	_ = g.Wait()

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return paths, nil
}

// Clear removes every cached artifact and returns the number of files
// deleted. This is the only path that deletes artifacts.
func (s *Store) Clear() (int, error) {
	count := 0
	err := filepath.Walk(s.dir, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return nil
		}
		if os.Remove(path) == nil {
			count++
		}
		return nil
	})
	if err != nil {
		return count, err
	}
	// Prune now-empty directories, deepest first.
	var dirs []string
	_ = filepath.Walk(s.dir, func(path string, info os.FileInfo, err error) error {
		if err == nil && info.IsDir() && path != s.dir {
			dirs = append(dirs, path)
		}
		return nil
	})
	for i := len(dirs) - 1; i >= 0; i-- {
		_ = os.Remove(dirs[i])
	}
	return count, nil
}

func normalizeName(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	return strings.NewReplacer("/", "_", "\\", "_").Replace(name)
}

// receiptFile marks a completed install of one package inside its install
// directory.
const receiptFile = ".polypack-receipt.json"

// Receipt records exactly which (format, name, version) a prior install
// materialized at a location. Install idempotency reads it and skips the
// copy when it matches.
type Receipt struct {
	Format      string    `json:"format"`
	Name        string    `json:"name"`
	Version     string    `json:"version"`
	Integrity   string    `json:"integrity,omitempty"`
	InstalledAt time.Time `json:"installed_at"`
}

// Matches reports whether the receipt marks the same package identity.
func (r *Receipt) Matches(format, name, version string) bool {
	return r != nil && r.Format == format && r.Name == name && r.Version == version
}

// ReadReceipt loads the receipt from an installed package directory.
// A missing or corrupt receipt is (nil, nil): the package counts as not
// installed and will be rewritten.
func ReadReceipt(dir string) (*Receipt, error) {
	data, err := os.ReadFile(filepath.Join(dir, receiptFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var r Receipt
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, nil
	}
	return &r, nil
}

// WriteReceipt stores the receipt atomically. It is written last during an
// install, so a half-written package directory is never seen as present.
func WriteReceipt(dir string, r *Receipt) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".receipt-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), filepath.Join(dir, receiptFile))
}

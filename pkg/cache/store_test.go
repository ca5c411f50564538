package cache

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func fillWith(data string, count *atomic.Int32) func(ctx context.Context, w io.Writer) error {
	return func(ctx context.Context, w io.Writer) error {
		if count != nil {
			count.Add(1)
		}
		_, err := io.WriteString(w, data)
		return err
	}
}

func TestStore_EnsureIdempotent(t *testing.T) {
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	var fills atomic.Int32
	path, hit, err := store.Ensure(ctx, "npm", "lodash", "4.17.21", fillWith("tarball", &fills))
	if err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	if hit {
		t.Error("first Ensure reported a hit")
	}
	data, err := os.ReadFile(path)
	if err != nil || string(data) != "tarball" {
		t.Fatalf("artifact content = %q, %v", data, err)
	}

	// Second call reuses the file: existence only, no re-download.
	path2, hit2, err := store.Ensure(ctx, "npm", "lodash", "4.17.21", fillWith("other", &fills))
	if err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	if !hit2 || path2 != path {
		t.Errorf("second Ensure = (%q, %v), want cache hit at same path", path2, hit2)
	}
	if fills.Load() != 1 {
		t.Errorf("fill ran %d times, want 1", fills.Load())
	}
}

func TestStore_EnsureFailureLeavesNoArtifact(t *testing.T) {
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	_, _, err = store.Ensure(context.Background(), "npm", "bad", "1.0.0",
		func(ctx context.Context, w io.Writer) error {
			io.WriteString(w, "partial")
			return fmt.Errorf("connection reset")
		})
	if err == nil {
		t.Fatal("expected fill error to propagate")
	}
	// An interrupted fetch must not leave a file the idempotency check trusts.
	if store.Has("npm", "bad", "1.0.0") {
		t.Error("partial artifact survived a failed fill")
	}
}

func TestStore_PathNormalization(t *testing.T) {
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	a := store.Path("npm", "@Scope/Pkg", "1.0.0")
	b := store.Path("npm", "@scope/pkg", "1.0.0")
	if a != b {
		t.Errorf("paths differ for case/separator variants:\n%s\n%s", a, b)
	}
}

func TestStore_EnsureAll(t *testing.T) {
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	items := []Item{
		{Format: "npm", Name: "a", Version: "1.0.0", Fill: fillWith("a", nil)},
		{Format: "npm", Name: "b", Version: "1.0.0", Fill: fillWith("b", nil)},
		{Format: "npm", Name: "c", Version: "1.0.0", Fill: fillWith("c", nil)},
	}
	paths, err := store.EnsureAll(ctx, items)
	if err != nil {
		t.Fatalf("EnsureAll: %v", err)
	}
	if len(paths) != 3 {
		t.Fatalf("paths = %d, want 3", len(paths))
	}
	for i, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil || string(data) != items[i].Name {
			t.Errorf("paths[%d] content = %q, %v", i, data, err)
		}
	}
}

func TestStore_EnsureAllAggregatesErrors(t *testing.T) {
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	var good atomic.Int32
	items := []Item{
		{Format: "npm", Name: "ok", Version: "1.0.0", Fill: fillWith("ok", &good)},
		{Format: "npm", Name: "bad1", Version: "1.0.0", Fill: func(ctx context.Context, w io.Writer) error {
			return fmt.Errorf("404")
		}},
		{Format: "npm", Name: "bad2", Version: "1.0.0", Fill: func(ctx context.Context, w io.Writer) error {
			return fmt.Errorf("timeout")
		}},
	}
	_, err = store.EnsureAll(context.Background(), items)
	if err == nil {
		t.Fatal("expected aggregated error")
	}
	// Both failures appear; the batch settles before reporting.
	for _, want := range []string{"bad1", "bad2"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("aggregated error missing %q: %v", want, err)
		}
	}
	// The successful download still landed in the cache.
	if !store.Has("npm", "ok", "1.0.0") {
		t.Error("successful item missing from store after batch failure")
	}
}

func TestStore_Clear(t *testing.T) {
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	for _, name := range []string{"a", "b"} {
		if _, _, err := store.Ensure(ctx, "npm", name, "1.0.0", fillWith(name, nil)); err != nil {
			t.Fatal(err)
		}
	}

	count, err := store.Clear()
	if err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if count != 2 {
		t.Errorf("Clear = %d, want 2", count)
	}
	if store.Has("npm", "a", "1.0.0") {
		t.Error("artifact survived Clear")
	}
}

func TestReceipt_RoundTrip(t *testing.T) {
	dir := t.TempDir()

	r := &Receipt{Format: "npm", Name: "lodash", Version: "4.17.21", InstalledAt: time.Now().UTC()}
	if err := WriteReceipt(dir, r); err != nil {
		t.Fatalf("WriteReceipt: %v", err)
	}
	got, err := ReadReceipt(dir)
	if err != nil {
		t.Fatalf("ReadReceipt: %v", err)
	}
	if !got.Matches("npm", "lodash", "4.17.21") {
		t.Errorf("receipt does not match: %+v", got)
	}
	if got.Matches("npm", "lodash", "4.17.20") {
		t.Error("receipt matched a different version")
	}
}

func TestReceipt_MissingOrCorrupt(t *testing.T) {
	dir := t.TempDir()

	got, err := ReadReceipt(dir)
	if err != nil || got != nil {
		t.Errorf("absent receipt = (%v, %v), want (nil, nil)", got, err)
	}

	if err := os.WriteFile(filepath.Join(dir, ".polypack-receipt.json"), []byte("{garbage"), 0o644); err != nil {
		t.Fatal(err)
	}
	got, err = ReadReceipt(dir)
	if err != nil || got != nil {
		t.Errorf("corrupt receipt = (%v, %v), want (nil, nil) so the package reinstalls", got, err)
	}
}

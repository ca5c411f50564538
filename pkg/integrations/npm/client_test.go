package npm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/polypack/polypack/pkg/cache"
)

func testDocument() Document {
	return Document{
		Name:        "lodash",
		Description: "utility library",
		DistTags:    map[string]string{"latest": "4.17.21"},
		Versions: map[string]VersionDetails{
			"4.17.20": {Version: "4.17.20", Dist: Dist{Tarball: "https://registry.test/lodash-4.17.20.tgz"}},
			"4.17.21": {
				Version:      "4.17.21",
				Dependencies: map[string]string{"left-pad": "^1.0.0"},
				Dist:         Dist{Tarball: "https://registry.test/lodash-4.17.21.tgz", Integrity: "sha512-x"},
			},
		},
	}
}

func newTestServer(t *testing.T, hits *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		switch r.URL.Path {
		case "/lodash":
			json.NewEncoder(w).Encode(testDocument())
		case "/-/v1/search":
			json.NewEncoder(w).Encode(map[string]any{
				"objects": []map[string]any{
					{"package": map[string]any{"name": "lodash", "version": "4.17.21", "description": "utility library"}},
				},
			})
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestClient_FetchDocumentCached(t *testing.T) {
	var hits atomic.Int32
	srv := newTestServer(t, &hits)

	backend, err := cache.NewFileCache(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	c := NewClient(srv.URL, backend, time.Hour)
	ctx := context.Background()

	doc, err := c.FetchDocument(ctx, "lodash", false)
	if err != nil {
		t.Fatalf("FetchDocument: %v", err)
	}
	if doc.Name != "lodash" || len(doc.Versions) != 2 {
		t.Fatalf("document = %+v", doc)
	}

	// Second fetch is served from the cache: no network round-trip.
	if _, err := c.FetchDocument(ctx, "lodash", false); err != nil {
		t.Fatal(err)
	}
	if hits.Load() != 1 {
		t.Errorf("server hits = %d, want 1", hits.Load())
	}

	// refresh bypasses the cache.
	if _, err := c.FetchDocument(ctx, "lodash", true); err != nil {
		t.Fatal(err)
	}
	if hits.Load() != 2 {
		t.Errorf("server hits after refresh = %d, want 2", hits.Load())
	}
}

func TestClient_Version(t *testing.T) {
	var hits atomic.Int32
	srv := newTestServer(t, &hits)
	c := NewClient(srv.URL, nil, 0)
	ctx := context.Background()

	v, err := c.Version(ctx, "lodash", "4.17.21")
	if err != nil {
		t.Fatalf("Version: %v", err)
	}
	if v.Dist.Tarball == "" || v.Dependencies["left-pad"] != "^1.0.0" {
		t.Errorf("version = %+v", v)
	}

	if _, err := c.Version(ctx, "lodash", "0.0.1"); !errors.Is(err, cache.ErrNotFound) {
		t.Errorf("missing version = %v, want ErrNotFound", err)
	}
}

func TestClient_NotFound(t *testing.T) {
	var hits atomic.Int32
	srv := newTestServer(t, &hits)
	c := NewClient(srv.URL, nil, 0)

	_, err := c.FetchDocument(context.Background(), "no-such-package", false)
	if !errors.Is(err, cache.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestClient_Search(t *testing.T) {
	var hits atomic.Int32
	srv := newTestServer(t, &hits)
	c := NewClient(srv.URL, nil, 0)

	results, err := c.Search(context.Background(), "lodash", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 || results[0].Name != "lodash" {
		t.Errorf("results = %+v", results)
	}
}

func TestEscapeName(t *testing.T) {
	tests := []struct{ in, want string }{
		{"lodash", "lodash"},
		{"@scope/pkg", "@scope%2Fpkg"},
	}
	for _, tt := range tests {
		if got := escapeName(tt.in); got != tt.want {
			t.Errorf("escapeName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestExtractField(t *testing.T) {
	if got := ExtractField("MIT", "type"); got != "MIT" {
		t.Errorf("string form = %q", got)
	}
	if got := ExtractField(map[string]any{"type": "ISC"}, "type"); got != "ISC" {
		t.Errorf("object form = %q", got)
	}
	if got := ExtractField(nil, "type"); got != "" {
		t.Errorf("nil = %q", got)
	}
}

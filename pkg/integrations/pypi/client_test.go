package pypi

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

func newTestServer(t *testing.T, hits *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		switch r.URL.Path {
		case "/flask/json":
			json.NewEncoder(w).Encode(Project{
				Info: Info{Name: "Flask", Version: "3.0.0", Summary: "web framework"},
				Releases: map[string][]Artifact{
					"2.3.0": {{Filename: "flask-2.3.0-py3-none-any.whl", PackageType: "bdist_wheel", URL: "https://files.test/flask-2.3.0.whl"}},
					"3.0.0": {{Filename: "flask-3.0.0.tar.gz", PackageType: "sdist", URL: "https://files.test/flask-3.0.0.tar.gz"}},
					"1.0.0": {}, // no artifacts
				},
			})
		case "/flask/3.0.0/json":
			json.NewEncoder(w).Encode(Project{
				Info: Info{
					Name:         "Flask",
					Version:      "3.0.0",
					RequiresDist: []string{"werkzeug (>=3.0)", "pytest ; extra == 'test'"},
				},
				URLs: []Artifact{
					{Filename: "flask-3.0.0.tar.gz", PackageType: "sdist", URL: "https://files.test/flask-3.0.0.tar.gz",
						Digests: map[string]string{"sha256": "abc123"}},
				},
			})
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestClient_Versions(t *testing.T) {
	var hits atomic.Int32
	srv := newTestServer(t, &hits)
	c := NewClient(srv.URL, nil, 0)

	versions, err := c.Versions(context.Background(), "Flask")
	if err != nil {
		t.Fatalf("Versions: %v", err)
	}
	// Name normalized to lowercase for the request; artifact-less releases
	// are skipped.
	if len(versions) != 2 {
		t.Fatalf("versions = %v, want 2 entries", versions)
	}
	for _, v := range versions {
		if v == "1.0.0" {
			t.Error("release without artifacts should be skipped")
		}
	}
}

func TestClient_FetchRelease(t *testing.T) {
	var hits atomic.Int32
	srv := newTestServer(t, &hits)

	backend, err := cache.NewFileCache(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	c := NewClient(srv.URL, backend, time.Hour)
	ctx := context.Background()

	proj, err := c.FetchRelease(ctx, "flask", "3.0.0", false)
	if err != nil {
		t.Fatalf("FetchRelease: %v", err)
	}
	if len(proj.URLs) != 1 || proj.URLs[0].Digests["sha256"] != "abc123" {
		t.Errorf("urls = %+v", proj.URLs)
	}
	if len(proj.Info.RequiresDist) != 2 {
		t.Errorf("requires_dist = %v", proj.Info.RequiresDist)
	}

	// Cached on the second call.
	if _, err := c.FetchRelease(ctx, "flask", "3.0.0", false); err != nil {
		t.Fatal(err)
	}
	if hits.Load() != 1 {
		t.Errorf("server hits = %d, want 1", hits.Load())
	}
}

func TestClient_NotFound(t *testing.T) {
	var hits atomic.Int32
	srv := newTestServer(t, &hits)
	c := NewClient(srv.URL, nil, 0)

	_, err := c.FetchProject(context.Background(), "nonexistent", false)
	if !errors.Is(err, cache.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestPreferredArtifact(t *testing.T) {
	wheel := Artifact{Filename: "x.whl", PackageType: "bdist_wheel"}
	sdist := Artifact{Filename: "x.tar.gz", PackageType: "sdist"}

	tests := []struct {
		name  string
		files []Artifact
		want  string
		ok    bool
	}{
		{"wheel preferred", []Artifact{sdist, wheel}, "x.whl", true},
		{"sdist fallback", []Artifact{sdist}, "x.tar.gz", true},
		{"unknown type", []Artifact{{Filename: "x.egg", PackageType: "bdist_egg"}}, "x.egg", true},
		{"empty", nil, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := PreferredArtifact(tt.files)
			if ok != tt.ok || got.Filename != tt.want {
				t.Errorf("PreferredArtifact = (%q, %v), want (%q, %v)", got.Filename, ok, tt.want, tt.ok)
			}
		})
	}
}

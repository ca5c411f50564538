// Package pypi implements the PyPI JSON API client: project documents
// (release sets), per-version metadata (requires_dist, artifact files,
// yanked flags), and artifact downloads. PyPI exposes no supported JSON
// search endpoint, so the client has no search method.
package pypi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/polypack/polypack/pkg/cache"
	"github.com/polypack/polypack/pkg/integrations"
)

// DefaultBaseURL is the public PyPI JSON API root.
const DefaultBaseURL = "https://pypi.org/pypi"

// Client provides access to a PyPI-compatible registry.
// All methods are safe for concurrent use.
type Client struct {
	*integrations.Client
	baseURL string
}

// NewClient creates a PyPI client. An empty baseURL selects pypi.org.
func NewClient(baseURL string, backend cache.Cache, ttl time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		Client:  integrations.NewClient(backend, "pypi:", ttl, nil),
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

// Project is a PyPI JSON document. The project endpoint fills Releases (the
// full version-to-files map); the per-version endpoint fills URLs (that one
// release's files).
type Project struct {
	Info     Info                  `json:"info"`
	Releases map[string][]Artifact `json:"releases"`
	URLs     []Artifact            `json:"urls"`
}

// Info is PyPI's package metadata block.
type Info struct {
	Name         string   `json:"name"`
	Version      string   `json:"version"`
	Summary      string   `json:"summary"`
	License      string   `json:"license"`
	Author       string   `json:"author"`
	HomePage     string   `json:"home_page"`
	RequiresDist []string `json:"requires_dist"`
	Yanked       bool     `json:"yanked"`
	YankedReason string   `json:"yanked_reason"`
}

// Artifact is one downloadable file of a release (wheel or sdist).
type Artifact struct {
	Filename    string            `json:"filename"`
	URL         string            `json:"url"`
	PackageType string            `json:"packagetype"` // "bdist_wheel" or "sdist"
	Digests     map[string]string `json:"digests"`
	Yanked      bool              `json:"yanked"`
}

// FetchProject retrieves the project document, cached. Package names are
// normalized per PEP 503 before the request.
func (c *Client) FetchProject(ctx context.Context, pkg string, refresh bool) (*Project, error) {
	pkg = integrations.NormalizePkgName(pkg)
	var proj Project
	err := c.Cached(ctx, pkg, refresh, &proj, func() error {
		if err := c.Get(ctx, fmt.Sprintf("%s/%s/json", c.baseURL, pkg), &proj); err != nil {
			if errors.Is(err, cache.ErrNotFound) {
				return fmt.Errorf("%w: pypi package %s", err, pkg)
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &proj, nil
}

// FetchRelease retrieves one version's metadata (its own requires_dist and
// artifact files), cached.
func (c *Client) FetchRelease(ctx context.Context, pkg, version string, refresh bool) (*Project, error) {
	pkg = integrations.NormalizePkgName(pkg)
	key := pkg + "@" + version
	var proj Project
	err := c.Cached(ctx, key, refresh, &proj, func() error {
		if err := c.Get(ctx, fmt.Sprintf("%s/%s/%s/json", c.baseURL, pkg, version), &proj); err != nil {
			if errors.Is(err, cache.ErrNotFound) {
				return fmt.Errorf("%w: pypi release %s %s", err, pkg, version)
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &proj, nil
}

// Versions returns the available release versions of a project, unordered.
// Releases with no downloadable artifacts are skipped.
func (c *Client) Versions(ctx context.Context, pkg string) ([]string, error) {
	proj, err := c.FetchProject(ctx, pkg, false)
	if err != nil {
		return nil, err
	}
	versions := make([]string, 0, len(proj.Releases))
	for _, v := range slices.Sorted(maps.Keys(proj.Releases)) {
		if len(proj.Releases[v]) > 0 {
			versions = append(versions, v)
		}
	}
	return versions, nil
}

// PreferredArtifact picks the artifact to install for a release: the first
// wheel, or the sdist when no wheel exists. Returns false for a release with
// no files.
func PreferredArtifact(files []Artifact) (Artifact, bool) {
	for _, f := range files {
		if f.PackageType == "bdist_wheel" {
			return f, true
		}
	}
	for _, f := range files {
		if f.PackageType == "sdist" {
			return f, true
		}
	}
	if len(files) > 0 {
		return files[0], true
	}
	return Artifact{}, false
}

// DownloadArtifact streams a release file into w.
func (c *Client) DownloadArtifact(ctx context.Context, fileURL string, w io.Writer) error {
	return c.Download(ctx, fileURL, w)
}

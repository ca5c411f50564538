// Package npm implements the npm registry API client: package documents
// (version sets, per-version dependency and dist metadata, deprecations),
// tarball downloads, and the registry search endpoint.
package npm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/polypack/polypack/pkg/cache"
	"github.com/polypack/polypack/pkg/integrations"
)

// DefaultBaseURL is the public npm registry.
const DefaultBaseURL = "https://registry.npmjs.org"

// Client provides access to an npm-compatible registry.
// All methods are safe for concurrent use.
type Client struct {
	*integrations.Client
	baseURL string
}

// NewClient creates an npm client. An empty baseURL selects the public
// registry; a registry override from the operation context is passed through
// here.
func NewClient(baseURL string, backend cache.Cache, ttl time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		Client:  integrations.NewClient(backend, "npm:", ttl, nil),
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

// Document is the registry's full package document.
type Document struct {
	Name        string                    `json:"name"`
	Description string                    `json:"description"`
	DistTags    map[string]string         `json:"dist-tags"`
	Versions    map[string]VersionDetails `json:"versions"`
	HomePage    string                    `json:"homepage"`
	Repository  any                       `json:"repository"`
	License     any                       `json:"license"`
	Author      any                       `json:"author"`
}

// VersionDetails is one concrete version's metadata inside a Document.
type VersionDetails struct {
	Version              string            `json:"version"`
	Description          string            `json:"description"`
	Deprecated           string            `json:"deprecated"`
	Dependencies         map[string]string `json:"dependencies"`
	DevDependencies      map[string]string `json:"devDependencies"`
	PeerDependencies     map[string]string `json:"peerDependencies"`
	OptionalDependencies map[string]string `json:"optionalDependencies"`
	Dist                 Dist              `json:"dist"`
}

// Dist locates a version's artifact.
type Dist struct {
	Tarball   string `json:"tarball"`
	Integrity string `json:"integrity"`
	SHASum    string `json:"shasum"`
}

// FetchDocument retrieves the full package document, cached. One document
// covers the version list and every version's metadata, so resolution does
// one network round-trip per package name.
func (c *Client) FetchDocument(ctx context.Context, pkg string, refresh bool) (*Document, error) {
	pkg = strings.TrimSpace(pkg)
	var doc Document
	err := c.Cached(ctx, pkg, refresh, &doc, func() error {
		if err := c.Get(ctx, c.baseURL+"/"+escapeName(pkg), &doc); err != nil {
			if errors.Is(err, cache.ErrNotFound) {
				return fmt.Errorf("%w: npm package %s", err, pkg)
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

// Versions returns the available versions of a package, unordered.
func (c *Client) Versions(ctx context.Context, pkg string) ([]string, error) {
	doc, err := c.FetchDocument(ctx, pkg, false)
	if err != nil {
		return nil, err
	}
	return slices.Collect(maps.Keys(doc.Versions)), nil
}

// Version returns one concrete version's metadata.
func (c *Client) Version(ctx context.Context, pkg, version string) (*VersionDetails, error) {
	doc, err := c.FetchDocument(ctx, pkg, false)
	if err != nil {
		return nil, err
	}
	v, ok := doc.Versions[version]
	if !ok {
		return nil, fmt.Errorf("%w: %s@%s", cache.ErrNotFound, pkg, version)
	}
	return &v, nil
}

// DownloadTarball streams a version's tarball into w.
func (c *Client) DownloadTarball(ctx context.Context, tarballURL string, w io.Writer) error {
	return c.Download(ctx, tarballURL, w)
}

// SearchResult is one hit from the registry search endpoint.
type SearchResult struct {
	Name        string
	Version     string
	Description string
}

// Search queries the registry's /-/v1/search endpoint.
func (c *Client) Search(ctx context.Context, query string, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		limit = 20
	}
	var resp searchResponse
	u := fmt.Sprintf("%s/-/v1/search?text=%s&size=%d", c.baseURL, url.QueryEscape(query), limit)
	if err := c.Get(ctx, u, &resp); err != nil {
		return nil, err
	}
	out := make([]SearchResult, 0, len(resp.Objects))
	for _, o := range resp.Objects {
		out = append(out, SearchResult{
			Name:        o.Package.Name,
			Version:     o.Package.Version,
			Description: o.Package.Description,
		})
	}
	return out, nil
}

type searchResponse struct {
	Objects []struct {
		Package struct {
			Name        string `json:"name"`
			Version     string `json:"version"`
			Description string `json:"description"`
		} `json:"package"`
	} `json:"objects"`
}

// ExtractField pulls a string out of npm's stringy-or-object fields
// (license, author, repository).
func ExtractField(v any, field string) string {
	switch val := v.(type) {
	case string:
		return val
	case map[string]any:
		if s, ok := val[field].(string); ok {
			return s
		}
	}
	return ""
}

// escapeName URL-escapes a package name; the slash in scoped names
// (@scope/pkg) must be encoded.
func escapeName(name string) string {
	return strings.ReplaceAll(url.PathEscape(name), "%40", "@")
}

package bungie

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/heartmarshall/d2-itemdb-updater/internal/domain"
)

// ManifestFileName is the sink name of the raw manifest body.
const ManifestFileName = "manifest.json"

// MissingPathError reports a manifest lookup that did not lead to an asset path.
type MissingPathError struct {
	Path string
}

func (e *MissingPathError) Error() string {
	return "manifest: no asset path at " + e.Path
}

func (e *MissingPathError) Unwrap() error {
	return domain.ErrMissingPath
}

// Manifest is the parsed manifest document. It is read-only after FetchManifest.
type Manifest struct {
	Raw []byte

	baseURL string
	doc     map[string]any
}

// FetchManifest downloads and parses the manifest. The raw body reaches the
// sink before parsing, so a malformed manifest is still inspectable.
func (c *Client) FetchManifest(ctx context.Context) (*Manifest, error) {
	url := c.baseURL + c.manifestPath

	c.log.InfoContext(ctx, "fetching manifest", slog.String("url", url))

	body, err := c.get(ctx, url)
	if err != nil {
		return nil, err
	}

	c.save(ctx, ManifestFileName, body)

	m, err := ParseManifest(body, c.baseURL)
	if err != nil {
		return nil, err
	}

	c.log.InfoContext(ctx, "manifest fetched",
		slog.Int("bytes", len(body)),
		slog.String("version", m.Version()),
	)
	return m, nil
}

// ParseManifest parses a manifest body. Asset paths resolve against baseURL.
func ParseManifest(body []byte, baseURL string) (*Manifest, error) {
	var doc map[string]any
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("bungie: decode manifest: %w: %w", domain.ErrParse, err)
	}
	if doc == nil {
		return nil, fmt.Errorf("bungie: decode manifest: %w: document is null", domain.ErrParse)
	}
	return &Manifest{Raw: body, baseURL: strings.TrimRight(baseURL, "/"), doc: doc}, nil
}

// Version returns Response.version, or "" when absent.
func (m *Manifest) Version() string {
	resp, _ := m.doc["Response"].(map[string]any)
	v, _ := resp["version"].(string)
	return v
}

// ResolveAssetURL returns the absolute URL of the entity's JSON asset for locale,
// found at Response.jsonWorldComponentContentPaths.<code>.<entity>.
func (m *Manifest) ResolveAssetURL(locale domain.Locale, entity string) (string, error) {
	keys := []string{"Response", "jsonWorldComponentContentPaths", locale.Code, entity}

	var node any = m.doc
	for i, key := range keys {
		obj, ok := node.(map[string]any)
		if !ok {
			return "", &MissingPathError{Path: strings.Join(keys[:i], ".")}
		}
		if node, ok = obj[key]; !ok {
			return "", &MissingPathError{Path: strings.Join(keys[:i+1], ".")}
		}
	}

	path, ok := node.(string)
	if !ok || path == "" {
		return "", &MissingPathError{Path: strings.Join(keys, ".")}
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return m.baseURL + path, nil
}

package resolver

import (
	"context"

	"github.com/appimage-tools/app-installer/internal/fetch"
	"github.com/appimage-tools/app-installer/pkg/manifest"
)

const versionField = "version"

type ManifestResolver struct {
	url     string
	field   string
	fetcher fetch.Fetcher
	query   Query
}

func NewManifestResolver(url, field string, fetcher fetch.Fetcher, query Query) *ManifestResolver {
	return &ManifestResolver{url: url, field: field, fetcher: fetcher, query: query}
}

func (r *ManifestResolver) Resolve(ctx context.Context) (*manifest.Manifest, error) {
	body, err := fetch.ReadAll(ctx, r.fetcher, r.url)
	if err != nil {
		return nil, &FetchError{URL: r.url, Err: err}
	}
	downloadURL, err := r.query.Lookup(ctx, body, r.field)
	if err != nil {
		return nil, &ResolutionError{URL: r.url, Field: r.field, Reason: err.Error(), Body: body}
	}
	if downloadURL == "" || downloadURL == "null" {
		return nil, &ResolutionError{URL: r.url, Field: r.field, Reason: ErrFieldMissing.Error(), Body: body}
	}

	m := &manifest.Manifest{DownloadURL: downloadURL, Source: manifest.SourceManifest}
	// version is informational only
	version, _ := r.query.Lookup(ctx, body, versionField)
	m.Version = ExtractVersion(version, m.FileName())
	return m, nil
}

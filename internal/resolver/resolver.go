package resolver

import (
	"context"
	"fmt"

	"github.com/appimage-tools/app-installer/internal/config"
	"github.com/appimage-tools/app-installer/internal/fetch"
	"github.com/appimage-tools/app-installer/internal/system"
	"github.com/appimage-tools/app-installer/pkg/manifest"
)

type Resolver interface {
	Resolve(ctx context.Context) (*manifest.Manifest, error)
}

func NewQuery(cfg config.Config, runner system.Runner) Query {
	if cfg.JSONQuery == config.QueryJQ {
		return JQQuery{Runner: runner}
	}
	return NativeQuery{}
}

// New builds the resolver for the configured source.
func New(ctx context.Context, cfg config.Config, fetcher fetch.Fetcher, runner system.Runner) (Resolver, error) {
	switch cfg.Source {
	case manifest.SourceManifest:
		u, err := cfg.ManifestURL()
		if err != nil {
			return nil, fmt.Errorf("invalid manifest URL: %w", err)
		}
		return NewManifestResolver(u, cfg.URLField, fetcher, NewQuery(cfg, runner)), nil
	case manifest.SourceGitHub:
		return NewGitHubResolver(NewGitHubClient(ctx, cfg.GitHubToken), cfg.GitHubRepo, cfg.AssetPattern, fetcher)
	default:
		return nil, fmt.Errorf("unknown source %q", cfg.Source)
	}
}

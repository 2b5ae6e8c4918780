package resolver

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/appimage-tools/app-installer/internal/fetch"
	"github.com/appimage-tools/app-installer/pkg/manifest"
	"github.com/google/go-github/v59/github"
	"golang.org/x/oauth2"
)

const maxChecksumFileSize = 64 * 1024

func NewGitHubClient(ctx context.Context, token string) *github.Client {
	if token == "" {
		return github.NewClient(nil)
	}
	oauthClient := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token}))
	return github.NewClient(oauthClient)
}

type GitHubResolver struct {
	ghClient *github.Client
	fullRepo string
	pattern  *regexp.Regexp
	fetcher  fetch.Fetcher
}

func NewGitHubResolver(ghClient *github.Client, fullRepo, assetPattern string, fetcher fetch.Fetcher) (*GitHubResolver, error) {
	if owner, repo := getOwnerRepo(fullRepo); owner == "" || repo == "" {
		return nil, fmt.Errorf("invalid repository %q", fullRepo)
	}
	pattern, err := regexp.Compile(assetPattern)
	if err != nil {
		return nil, fmt.Errorf("invalid asset pattern: %w", err)
	}
	return &GitHubResolver{ghClient: ghClient, fullRepo: fullRepo, pattern: pattern, fetcher: fetcher}, nil
}

func getOwnerRepo(fullRepo string) (string, string) {
	owner, repo, found := strings.Cut(fullRepo, "/")
	if !found {
		return "", ""
	}
	return owner, repo
}

func (r *GitHubResolver) releaseURL() string {
	return fmt.Sprintf("https://github.com/%s/releases/latest", r.fullRepo)
}

func (r *GitHubResolver) Resolve(ctx context.Context) (*manifest.Manifest, error) {
	owner, repo := getOwnerRepo(r.fullRepo)
	release, _, err := r.ghClient.Repositories.GetLatestRelease(ctx, owner, repo)
	if err != nil {
		return nil, &FetchError{URL: r.releaseURL(), Err: err}
	}
	assetNames := make([]string, 0, len(release.Assets))
	for _, a := range release.Assets {
		assetNames = append(assetNames, a.GetName())
	}
	resolutionError := func(reason string) error {
		return &ResolutionError{
			URL:    r.releaseURL(),
			Field:  r.pattern.String(),
			Reason: reason,
			Body:   []byte(strings.Join(assetNames, "\n")),
		}
	}
	if release.GetDraft() {
		return nil, resolutionError("release is a draft")
	}

	var asset, checksumAsset *github.ReleaseAsset
	for _, a := range release.Assets {
		name := a.GetName()
		switch {
		case asset == nil && r.pattern.MatchString(name):
			asset = a
		case checksumAsset == nil && isChecksumFile(name):
			checksumAsset = a
		}
	}
	if asset == nil || asset.GetBrowserDownloadURL() == "" {
		return nil, resolutionError("no release asset matches")
	}

	m := &manifest.Manifest{
		DownloadURL: asset.GetBrowserDownloadURL(),
		Source:      manifest.SourceGitHub,
	}
	if v, err := semver.NewVersion(release.GetTagName()); err == nil {
		m.Version = v.String()
	} else {
		m.Version = ExtractVersion(asset.GetName())
	}

	if checksumAsset != nil && checksumAsset.GetSize() <= maxChecksumFileSize {
		checksums, err := fetchChecksumFile(ctx, r.fetcher, checksumAsset.GetBrowserDownloadURL())
		if err != nil {
			return nil, &FetchError{URL: checksumAsset.GetBrowserDownloadURL(), Err: err}
		}
		m.SHA256 = checksums[strings.ToLower(asset.GetName())]
	}
	return m, nil
}

func isChecksumFile(name string) bool {
	n := strings.ToLower(name)
	return strings.Contains(n, "checksums.txt") || strings.HasSuffix(n, "sha256sums") || strings.HasSuffix(n, "sha256sums.txt")
}

func fetchChecksumFile(ctx context.Context, f fetch.Fetcher, url string) (map[string]string, error) {
	ret := make(map[string]string)
	body, err := fetch.ReadAll(ctx, f, url)
	if err != nil {
		return nil, err
	}
	for _, l := range strings.Split(string(body), "\n") {
		fields := strings.Fields(l)
		if len(fields) < 2 {
			continue
		}
		name := strings.TrimPrefix(fields[len(fields)-1], "*")
		ret[strings.ToLower(name)] = strings.ToLower(fields[0])
	}
	return ret, nil
}

package resolver

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/appimage-tools/app-installer/internal/fetch"
	"github.com/appimage-tools/app-installer/internal/testserver"
	"github.com/appimage-tools/app-installer/pkg/manifest"
	"github.com/google/go-github/v59/github"
	"github.com/migueleliasweb/go-github-mock/src/mock"
	"github.com/stretchr/testify/require"
)

var testChecksumFile = `
0911f3dd0911f3dd  Obsidian-1.5.12-arm64.AppImage
8A491FB88a491fb8 *Obsidian-1.5.12.AppImage
cacce75acacce75a  obsidian_1.5.12_amd64.deb
`

func newGitHubTestResolver(t *testing.T, release *github.RepositoryRelease) *GitHubResolver {
	mockedHTTPClient := mock.NewMockedHTTPClient(
		mock.WithRequestMatch(mock.GetReposReleasesLatestByOwnerByRepo, release),
	)
	r, err := NewGitHubResolver(github.NewClient(mockedHTTPClient), "obsidianmd/obsidian-releases", `^Obsidian-[0-9.]+\.AppImage$`, fetch.New(0, 0))
	require.NoError(t, err)
	return r
}

func asset(name, url string) *github.ReleaseAsset {
	return &github.ReleaseAsset{Name: github.String(name), BrowserDownloadURL: github.String(url), Size: github.Int(128)}
}

func TestGetOwnerRepo(t *testing.T) {
	owner, repo := getOwnerRepo("owner/repo")
	require.Equal(t, "owner", owner)
	require.Equal(t, "repo", repo)

	owner, repo = getOwnerRepo("invalid")
	require.Empty(t, owner)
	require.Empty(t, repo)
}

func TestGitHubResolver(t *testing.T) {
	ts := testserver.New(t)
	ts.SetFile("checksums.txt", []byte(testChecksumFile))
	r := newGitHubTestResolver(t, &github.RepositoryRelease{
		Draft:   github.Bool(false),
		TagName: github.String("v1.5.12"),
		Assets: []*github.ReleaseAsset{
			asset("Obsidian-1.5.12-arm64.AppImage", "https://example/arm64"),
			asset("obsidian_1.5.12_amd64.deb", "https://example/deb"),
			asset("Obsidian-1.5.12.AppImage", "https://example/Obsidian-1.5.12.AppImage"),
			asset("checksums.txt", ts.FileURL("checksums.txt")),
		},
	})

	m, err := r.Resolve(context.Background())
	require.NoError(t, err)
	require.Equal(t, "https://example/Obsidian-1.5.12.AppImage", m.DownloadURL)
	require.Equal(t, "1.5.12", m.Version)
	require.Equal(t, "8a491fb88a491fb8", m.SHA256)
	require.Equal(t, manifest.SourceGitHub, m.Source)
}

func TestGitHubResolverWithoutChecksums(t *testing.T) {
	r := newGitHubTestResolver(t, &github.RepositoryRelease{
		Draft:   github.Bool(false),
		TagName: github.String("latest"),
		Assets:  []*github.ReleaseAsset{asset("Obsidian-1.6.0.AppImage", "https://example/Obsidian-1.6.0.AppImage")},
	})
	m, err := r.Resolve(context.Background())
	require.NoError(t, err)
	require.Equal(t, "1.6.0", m.Version)
	require.Empty(t, m.SHA256)
}

func TestGitHubResolverResolutionErrors(t *testing.T) {
	testCases := []struct {
		name    string
		release *github.RepositoryRelease
		reason  string
	}{
		{
			name: "draft",
			release: &github.RepositoryRelease{
				Draft:   github.Bool(true),
				TagName: github.String("v2.0.0"),
				Assets:  []*github.ReleaseAsset{asset("Obsidian-2.0.0.AppImage", "https://example/a")},
			},
			reason: "release is a draft",
		},
		{
			name: "no match",
			release: &github.RepositoryRelease{
				Draft:   github.Bool(false),
				TagName: github.String("v2.0.0"),
				Assets:  []*github.ReleaseAsset{asset("obsidian_2.0.0_amd64.deb", "https://example/deb")},
			},
			reason: "no release asset matches",
		},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			_, err := newGitHubTestResolver(t, testCase.release).Resolve(context.Background())
			var resErr *ResolutionError
			require.True(t, errors.As(err, &resErr))
			require.Equal(t, testCase.reason, resErr.Reason)
		})
	}
}

func TestGitHubResolverFetchError(t *testing.T) {
	mockedHTTPClient := mock.NewMockedHTTPClient(
		mock.WithRequestMatchHandler(
			mock.GetReposReleasesLatestByOwnerByRepo,
			http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusNotFound)
				_, _ = w.Write([]byte(`{"message":"Not Found"}`))
			}),
		),
	)
	r, err := NewGitHubResolver(github.NewClient(mockedHTTPClient), "owner/repo", ".*", fetch.New(0, 0))
	require.NoError(t, err)
	_, err = r.Resolve(context.Background())
	var fetchErr *FetchError
	require.True(t, errors.As(err, &fetchErr))
	require.Equal(t, "https://github.com/owner/repo/releases/latest", fetchErr.URL)
}

func TestNewGitHubResolverValidation(t *testing.T) {
	_, err := NewGitHubResolver(nil, "invalid", ".*", nil)
	require.ErrorContains(t, err, "invalid repository")
	_, err = NewGitHubResolver(nil, "owner/repo", "(", nil)
	require.ErrorContains(t, err, "invalid asset pattern")
}

func TestFetchChecksumFile(t *testing.T) {
	ts := testserver.New(t)
	ts.SetFile("SHA256SUMS", []byte(testChecksumFile))
	checksums, err := fetchChecksumFile(context.Background(), fetch.New(0, 0), ts.FileURL("SHA256SUMS"))
	require.NoError(t, err)
	require.Len(t, checksums, 3)
	require.Equal(t, "cacce75acacce75a", checksums["obsidian_1.5.12_amd64.deb"])
	require.True(t, isChecksumFile("SHA256SUMS"))
	require.False(t, isChecksumFile("Obsidian-1.5.12.AppImage"))
}

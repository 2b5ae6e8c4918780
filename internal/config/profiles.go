package config

import (
	"runtime"
	"strings"

	"github.com/appimage-tools/app-installer/pkg/manifest"
)

type Profile struct {
	Name         string
	DisplayName  string
	Description  string
	Source       manifest.Source
	APIURL       string
	Platform     string
	ReleaseTrack string
	GitHubRepo   string
	AssetPattern string
	IconURL      string
	Categories   []string
	WMClass      string
}

var Profiles = profiles{
	{
		Name:         "cursor",
		DisplayName:  "Cursor",
		Description:  "AI code editor",
		Source:       manifest.SourceManifest,
		APIURL:       "https://www.cursor.com/api/download",
		Platform:     linuxPlatform(runtime.GOARCH),
		ReleaseTrack: "stable",
		Categories:   []string{"Development", "IDE"},
		WMClass:      "Cursor",
	},
	{
		Name:         "obsidian",
		DisplayName:  "Obsidian",
		Description:  "Markdown knowledge base",
		Source:       manifest.SourceGitHub,
		GitHubRepo:   "obsidianmd/obsidian-releases",
		AssetPattern: obsidianAssetPattern(runtime.GOARCH),
		Categories:   []string{"Office"},
		WMClass:      "obsidian",
	},
}

type profiles []*Profile

func (l profiles) Find(name string) *Profile {
	for _, p := range l {
		if p.Name == strings.ToLower(name) {
			return p
		}
	}
	return nil
}

func (l profiles) Names() []string {
	names := make([]string, len(l))
	for i, p := range l {
		names[i] = p.Name
	}
	return names
}

func linuxPlatform(goarch string) string {
	if goarch == "arm64" {
		return "linux-arm64"
	}
	return "linux-x64"
}

func obsidianAssetPattern(goarch string) string {
	if goarch == "arm64" {
		return `^Obsidian-[0-9.]+-arm64\.AppImage$`
	}
	return `^Obsidian-[0-9.]+\.AppImage$`
}

package manifest

import (
	"fmt"
	"path"
	"strings"
)

type Source string

const (
	SourceManifest Source = "manifest"
	SourceGitHub   Source = "github"
)

// Manifest describes where the current artifact can be downloaded from.
type Manifest struct {
	DownloadURL string `json:"downloadUrl"`
	Version     string `json:"version,omitempty"`
	SHA256      string `json:"sha256,omitempty"`
	Source      Source `json:"-"`
}

func (m *Manifest) FileName() string {
	p := m.DownloadURL
	if i := strings.IndexAny(p, "?#"); i >= 0 {
		p = p[:i]
	}
	return path.Base(p)
}

func (m *Manifest) String() string {
	if m.Version == "" {
		return m.DownloadURL
	}
	return fmt.Sprintf("%s (version %s)", m.DownloadURL, m.Version)
}

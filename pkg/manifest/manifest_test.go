package manifest

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFileName(t *testing.T) {
	testCases := []struct {
		url      string
		expected string
	}{
		{url: "https://example/app-v2.bin", expected: "app-v2.bin"},
		{url: "https://downloads.example.com/production/linux/x64/Cursor-0.45.14-x86_64.AppImage?sig=abc", expected: "Cursor-0.45.14-x86_64.AppImage"},
		{url: "https://example/dir/file.AppImage#frag", expected: "file.AppImage"},
	}
	for _, testCase := range testCases {
		m := &Manifest{DownloadURL: testCase.url}
		require.Equal(t, testCase.expected, m.FileName())
	}
}

func TestString(t *testing.T) {
	m := &Manifest{DownloadURL: "https://example/app-v2.bin"}
	require.Equal(t, "https://example/app-v2.bin", m.String())
	m.Version = "2.0.0"
	require.Equal(t, "https://example/app-v2.bin (version 2.0.0)", m.String())
}

package resolver

import (
	"regexp"

	"github.com/Masterminds/semver/v3"
)

var versionRe = regexp.MustCompile(`\d+\.\d+(?:\.\d+)?(?:-(?:alpha|beta|rc|pre)[0-9A-Za-z.]*)?`)

// ExtractVersion returns the first candidate that parses as a semantic
// version, also looking for versions embedded in file names.
func ExtractVersion(candidates ...string) string {
	for _, c := range candidates {
		if c == "" {
			continue
		}
		if v, err := semver.NewVersion(c); err == nil {
			return v.String()
		}
		for _, m := range versionRe.FindAllString(c, -1) {
			if v, err := semver.NewVersion(m); err == nil {
				return v.String()
			}
		}
	}
	return ""
}

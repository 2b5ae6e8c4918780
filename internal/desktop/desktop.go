package desktop

import (
	"bytes"
	"strings"
	"text/template"

	"github.com/appimage-tools/app-installer/internal/config"
	"github.com/appimage-tools/app-installer/internal/download"
	"github.com/spf13/afero"
)

var entryTemplate = template.Must(template.New("desktop").Parse(`[Desktop Entry]
Type=Application
Version=1.0
Name={{ .Name }}
{{- with .Comment }}
Comment={{ . }}{{ end }}
Exec={{ .Exec }} %U
TryExec={{ .TryExec }}
Icon={{ .Icon }}
Terminal=false
{{- with .Categories }}
Categories={{ . }}{{ end }}
{{- with .WMClass }}
StartupWMClass={{ . }}{{ end }}
X-AppInstaller-Profile={{ .Profile }}
`))

type entry struct {
	Name       string
	Comment    string
	Exec       string
	TryExec    string
	Icon       string
	Categories string
	WMClass    string
	Profile    string
}

// RenderEntry renders the freedesktop.org menu entry launching the installed
// artifact.
func RenderEntry(cfg config.Config) (string, error) {
	var categories string
	if len(cfg.Categories) > 0 {
		categories = escapeValue(strings.Join(cfg.Categories, ";")) + ";"
	}
	e := entry{
		Name:       escapeValue(cfg.Name()),
		Comment:    escapeValue(cfg.Comment),
		Exec:       escapeValue(QuoteExecArg(cfg.ArtifactPath)),
		TryExec:    escapeValue(cfg.ArtifactPath),
		Icon:       escapeValue(cfg.IconPath),
		Categories: categories,
		WMClass:    escapeValue(cfg.WMClass),
		Profile:    escapeValue(cfg.Profile),
	}
	var buf bytes.Buffer
	if err := entryTemplate.Execute(&buf, e); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func Write(fs afero.Fs, cfg config.Config) error {
	content, err := RenderEntry(cfg)
	if err != nil {
		return err
	}
	return download.WriteFile(fs, cfg.DesktopEntryPath, []byte(content), 0o644)
}

const execReserved = " \t\n\"'\\><~|&;$*?#()`"

// QuoteExecArg quotes a single Exec argument following the desktop entry
// rules: reserved characters force double quotes, inside which ", `, $ and \
// are backslash escaped. A literal % is always doubled.
func QuoteExecArg(s string) string {
	s = strings.ReplaceAll(s, "%", "%%")
	if s != "" && !strings.ContainsAny(s, execReserved) {
		return s
	}
	var b strings.Builder
	b.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"', '`', '$', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	b.WriteByte('"')
	return b.String()
}

// escapeValue applies the string escapes of the desktop entry format.
func escapeValue(s string) string {
	return strings.NewReplacer(`\`, `\\`, "\n", `\n`, "\t", `\t`, "\r", `\r`).Replace(s)
}

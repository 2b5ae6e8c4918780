package scheduler

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"

	"github.com/appimage-tools/app-installer/internal/config"
	"mvdan.cc/sh/v3/syntax"
)

var timerTemplate = template.Must(template.New("timer").Parse(`[Unit]
Description=Periodic update check for {{ .Name }}

[Timer]
OnCalendar={{ .OnCalendar }}
Persistent={{ .Persistent }}
RandomizedDelaySec={{ .RandomizedDelaySec }}
Unit={{ .Service }}

[Install]
WantedBy=timers.target
`))

var serviceTemplate = template.Must(template.New("service").Parse(`[Unit]
Description=Update {{ .Name }}
Wants=network-online.target
After=network-online.target

[Service]
Type=oneshot
ExecStart={{ .ExecStart }}
`))

type unit struct {
	Name               string
	OnCalendar         string
	Persistent         bool
	RandomizedDelaySec int64
	Service            string
	ExecStart          string
}

func newUnit(cfg config.Config) unit {
	return unit{
		Name:               cfg.Name(),
		OnCalendar:         cfg.OnCalendar,
		Persistent:         cfg.Persistent,
		RandomizedDelaySec: int64(cfg.RandomizedDelay.Seconds()),
		Service:            cfg.ServiceUnit(),
		ExecStart:          QuoteUnitArg(cfg.UpdaterScriptPath),
	}
}

func render(t *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func RenderTimer(cfg config.Config) (string, error) {
	return render(timerTemplate, newUnit(cfg))
}

func RenderService(cfg config.Config) (string, error) {
	return render(serviceTemplate, newUnit(cfg))
}

// QuoteUnitArg quotes a command line argument for a systemd Exec*= setting.
func QuoteUnitArg(s string) string {
	s = strings.ReplaceAll(s, "%", "%%")
	s = strings.ReplaceAll(s, "$", "$$")
	if s != "" && !strings.ContainsAny(s, " \t\"'\\;") {
		return s
	}
	return `"` + strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(s) + `"`
}

// RenderUpdaterScript renders the POSIX shell script the service runs. It
// re-enters this program in update mode for the same profile, reading the
// configuration snapshot written next to the script, so an update run sees
// the settings of the installation and needs nothing but the installed binary.
func RenderUpdaterScript(cfg config.Config) (string, error) {
	args := []string{cfg.InstallerPath, "update", "--profile", cfg.Profile, "--config", cfg.SnapshotPath()}
	quoted := make([]string, len(args))
	for i, a := range args {
		q, err := syntax.Quote(a, syntax.LangPOSIX)
		if err != nil {
			return "", fmt.Errorf("cannot quote %q: %w", a, err)
		}
		quoted[i] = q
	}

	var b strings.Builder
	b.WriteString("#!/bin/sh\n")
	fmt.Fprintf(&b, "# Updates %s. Generated by app-installer, changes are overwritten on reinstall.\n", cfg.Name())
	b.WriteString("set -eu\n")
	fmt.Fprintf(&b, "exec %s\n", strings.Join(quoted, " "))
	script := b.String()

	if _, err := syntax.NewParser(syntax.Variant(syntax.LangPOSIX)).Parse(strings.NewReader(script), cfg.UpdaterScriptPath); err != nil {
		return "", fmt.Errorf("generated updater script is invalid: %w", err)
	}
	return script, nil
}

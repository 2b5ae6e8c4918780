package scheduler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/appimage-tools/app-installer/internal/config"
	"github.com/appimage-tools/app-installer/internal/download"
	"github.com/appimage-tools/app-installer/internal/system"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
)

const systemctl = "systemctl"

// ActivationWarning reports that the units were written but the timer could
// not be enabled. The installation itself is still usable.
type ActivationWarning struct {
	Unit string
	Err  error
}

func (w *ActivationWarning) Error() string {
	return fmt.Sprintf("failed to activate %s: %v (enable it manually with: systemctl --user enable --now %s)", w.Unit, w.Err, w.Unit)
}

func (w *ActivationWarning) Unwrap() error {
	return w.Err
}

type Registrar struct {
	fs     afero.Fs
	runner system.Runner
	cfg    config.Config
	log    *logrus.Logger
}

func NewRegistrar(fs afero.Fs, runner system.Runner, cfg config.Config, log *logrus.Logger) *Registrar {
	if log == nil {
		log = logrus.New()
		log.SetOutput(io.Discard)
	}
	return &Registrar{fs: fs, runner: runner, cfg: cfg, log: log}
}

// WriteScript writes the configuration snapshot and the updater script
// reading it.
func (r *Registrar) WriteScript() error {
	snapshot, err := r.cfg.Snapshot()
	if err != nil {
		return fmt.Errorf("failed to encode configuration: %w", err)
	}
	if err := download.WriteFile(r.fs, r.cfg.SnapshotPath(), snapshot, 0o600); err != nil {
		return fmt.Errorf("failed to write configuration snapshot: %w", err)
	}
	r.log.Debugf("wrote configuration snapshot %s", r.cfg.SnapshotPath())

	script, err := RenderUpdaterScript(r.cfg)
	if err != nil {
		return err
	}
	if err := download.WriteFile(r.fs, r.cfg.UpdaterScriptPath, []byte(script), 0o755); err != nil {
		return fmt.Errorf("failed to write updater script: %w", err)
	}
	r.log.Debugf("wrote updater script %s", r.cfg.UpdaterScriptPath)
	return nil
}

func (r *Registrar) WriteUnits() error {
	for _, u := range []struct {
		path   string
		render func(config.Config) (string, error)
	}{
		{r.cfg.ServicePath(), RenderService},
		{r.cfg.TimerPath(), RenderTimer},
	} {
		content, err := u.render(r.cfg)
		if err != nil {
			return err
		}
		if err := download.WriteFile(r.fs, u.path, []byte(content), 0o644); err != nil {
			return fmt.Errorf("failed to write unit: %w", err)
		}
		r.log.Debugf("wrote %s", u.path)
	}
	return nil
}

// Activate reloads the user manager and enables the timer. Any failure is
// returned as *ActivationWarning.
func (r *Registrar) Activate(ctx context.Context) error {
	timer := r.cfg.TimerUnit()
	if _, err := r.runner.LookPath(systemctl); err != nil {
		return &ActivationWarning{Unit: timer, Err: err}
	}
	if _, err := r.systemctl(ctx, "daemon-reload"); err != nil {
		return &ActivationWarning{Unit: timer, Err: err}
	}
	if _, err := r.systemctl(ctx, "enable", "--now", timer); err != nil {
		return &ActivationWarning{Unit: timer, Err: err}
	}
	r.log.Infof("enabled %s", timer)
	return nil
}

// Register writes both units and activates the timer. Write failures are
// fatal; activation failures come back as *ActivationWarning.
func (r *Registrar) Register(ctx context.Context) error {
	if err := r.WriteUnits(); err != nil {
		return err
	}
	return r.Activate(ctx)
}

// Unregister disables the timer and removes the units, the updater script
// and its configuration snapshot. Only file removal failures are returned.
func (r *Registrar) Unregister(ctx context.Context) error {
	timer := r.cfg.TimerUnit()
	canReload := false
	if _, err := r.runner.LookPath(systemctl); err != nil {
		r.log.Warnf("cannot disable %s: %v", timer, err)
	} else {
		canReload = true
		if _, err := r.systemctl(ctx, "disable", "--now", timer); err != nil {
			r.log.Warnf("failed to disable %s: %v", timer, err)
		}
	}

	var errs []error
	for _, p := range []string{r.cfg.TimerPath(), r.cfg.ServicePath(), r.cfg.UpdaterScriptPath, r.cfg.SnapshotPath()} {
		if err := r.fs.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, fmt.Errorf("failed to remove %s: %w", p, err))
			continue
		}
		r.log.Debugf("removed %s", p)
	}
	if canReload {
		if _, err := r.systemctl(ctx, "daemon-reload"); err != nil {
			r.log.Warnf("failed to reload systemd user manager: %v", err)
		}
	}
	return errors.Join(errs...)
}

func (r *Registrar) systemctl(ctx context.Context, args ...string) ([]byte, error) {
	return r.runner.Run(ctx, nil, systemctl, append([]string{"--user"}, args...)...)
}

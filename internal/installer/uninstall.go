package installer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/appimage-tools/app-installer/internal/download"
)

// Uninstall removes everything Install created except the shared installer
// binary, including partial downloads left by killed runs. Files that are
// already gone are skipped.
func (i *Installer) Uninstall(ctx context.Context) error {
	i.log.Infof("uninstalling %s", i.cfg.Name())
	var errs []error
	if err := i.registrar.Unregister(ctx); err != nil {
		errs = append(errs, err)
	}
	for _, p := range []string{
		i.cfg.ArtifactPath,
		download.TempPath(i.cfg.ArtifactPath, download.TempSuffixInstall),
		download.TempPath(i.cfg.ArtifactPath, download.TempSuffixUpdate),
		i.cfg.IconPath,
		i.cfg.DesktopEntryPath,
	} {
		if err := i.fs.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, fmt.Errorf("failed to remove %s: %w", p, err))
			continue
		}
		i.log.Debugf("removed %s", p)
	}
	// the script directory is private to the profile
	_ = i.fs.Remove(filepath.Dir(i.cfg.UpdaterScriptPath))
	return errors.Join(errs...)
}

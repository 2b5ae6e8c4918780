package installer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"

	"github.com/appimage-tools/app-installer/internal/download"
	"github.com/appimage-tools/app-installer/internal/notify"
)

// Update replaces the installed artifact with the currently published one.
// The outcome is reported through the notifier either way.
func (i *Installer) Update(ctx context.Context) (*Result, error) {
	res, err := i.update(ctx)
	if err != nil {
		i.notify(ctx, notify.Notification{
			Summary: fmt.Sprintf("%s update failed", i.cfg.Name()),
			Body:    err.Error(),
			Urgency: notify.UrgencyCritical,
		})
		return nil, err
	}
	body := fmt.Sprintf("%s is up to date", i.cfg.Name())
	if res.Changed {
		body = fmt.Sprintf("%s was updated%s", i.cfg.Name(), versionSuffix(res.Manifest))
	}
	i.notify(ctx, notify.Notification{
		Summary: fmt.Sprintf("%s update finished", i.cfg.Name()),
		Body:    body,
		Urgency: notify.UrgencyLow,
	})
	return res, nil
}

func (i *Installer) update(ctx context.Context) (*Result, error) {
	i.log.Infof("updating %s at %s", i.cfg.Name(), i.cfg.ArtifactPath)
	m, err := i.Resolve(ctx)
	if err != nil {
		return nil, err
	}
	previous := i.checksum(i.cfg.ArtifactPath)
	artifact, err := i.downloader.Download(ctx, m.DownloadURL, i.cfg.ArtifactPath,
		download.WithTempSuffix(download.TempSuffixUpdate), download.WithChecksum(m.SHA256))
	if err != nil {
		return nil, err
	}
	res := &Result{Manifest: m, Artifact: artifact, Changed: previous != artifact.SHA256}
	if res.Changed {
		i.log.Infof("updated %s%s (sha256 %s)", i.cfg.Name(), versionSuffix(m), artifact.SHA256)
	} else {
		i.log.Infof("%s is up to date", i.cfg.Name())
	}
	return res, nil
}

// checksum returns the SHA-256 of path, or an empty string if it cannot be read.
func (i *Installer) checksum(path string) string {
	f, err := i.fs.Open(path)
	if err != nil {
		return ""
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return ""
	}
	return hex.EncodeToString(h.Sum(nil))
}

func (i *Installer) notify(ctx context.Context, n notify.Notification) {
	n.Icon = i.cfg.IconPath
	if err := i.notifier.Notify(ctx, n); err != nil {
		i.log.Debugf("notification not delivered: %v", err)
	}
}

package installer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/appimage-tools/app-installer/internal/bootstrap"
	"github.com/appimage-tools/app-installer/internal/config"
	"github.com/appimage-tools/app-installer/internal/desktop"
	"github.com/appimage-tools/app-installer/internal/download"
	"github.com/appimage-tools/app-installer/internal/fetch"
	"github.com/appimage-tools/app-installer/internal/notify"
	"github.com/appimage-tools/app-installer/internal/resolver"
	"github.com/appimage-tools/app-installer/internal/scheduler"
	"github.com/appimage-tools/app-installer/internal/system"
	"github.com/appimage-tools/app-installer/pkg/manifest"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
)

type Result struct {
	Manifest *manifest.Manifest
	Artifact *download.Result
	// Changed is false when an update downloaded the artifact already installed.
	Changed bool
	// Warnings collects the failures of optional steps.
	Warnings []error
}

type Installer struct {
	cfg config.Config
	log *logrus.Logger

	fs         afero.Fs
	fetcher    fetch.Fetcher
	runner     system.Runner
	resolver   resolver.Resolver
	notifier   notify.Notifier
	executable func() (string, error)
	rootCheck  func() bool

	downloader   *download.Downloader
	bootstrapper *bootstrap.Bootstrapper
	registrar    *scheduler.Registrar
}

type Option func(*Installer)

func WithFs(fs afero.Fs) Option {
	return func(i *Installer) {
		i.fs = fs
	}
}

func WithFetcher(f fetch.Fetcher) Option {
	return func(i *Installer) {
		i.fetcher = f
	}
}

func WithRunner(r system.Runner) Option {
	return func(i *Installer) {
		i.runner = r
	}
}

func WithResolver(r resolver.Resolver) Option {
	return func(i *Installer) {
		i.resolver = r
	}
}

func WithNotifier(n notify.Notifier) Option {
	return func(i *Installer) {
		i.notifier = n
	}
}

// WithExecutable overrides how the path of the running binary is found. The
// binary is copied to the configured installer path during Install.
func WithExecutable(f func() (string, error)) Option {
	return func(i *Installer) {
		i.executable = f
	}
}

func WithRootCheck(f func() bool) Option {
	return func(i *Installer) {
		i.rootCheck = f
	}
}

func New(ctx context.Context, cfg config.Config, log *logrus.Logger, opts ...Option) (*Installer, error) {
	if log == nil {
		log = logrus.New()
		log.SetOutput(io.Discard)
	}
	i := &Installer{
		cfg:        cfg,
		log:        log,
		fs:         afero.NewOsFs(),
		runner:     system.ExecRunner{},
		executable: os.Executable,
		rootCheck:  system.IsRoot,
	}
	for _, opt := range opts {
		opt(i)
	}
	if i.fetcher == nil {
		i.fetcher = fetch.New(cfg.HTTPTimeout.Duration, cfg.RetryMax)
	}
	if i.notifier == nil {
		if cfg.Notify {
			i.notifier = notify.NewDBusNotifier("app-installer")
		} else {
			i.notifier = notify.Nop{}
		}
	}
	if i.resolver == nil {
		r, err := resolver.New(ctx, cfg, i.fetcher, i.runner)
		if err != nil {
			return nil, err
		}
		i.resolver = r
	}
	i.downloader = download.New(i.fs, i.fetcher, log)
	i.bootstrapper = bootstrap.New(i.runner, log, bootstrap.WithRootCheck(i.rootCheck))
	i.registrar = scheduler.NewRegistrar(i.fs, i.runner, cfg, log)
	return i, nil
}

func (i *Installer) dependencies() []bootstrap.Dependency {
	var deps []bootstrap.Dependency
	if i.cfg.JSONQuery == config.QueryJQ {
		deps = append(deps, bootstrap.JQ)
	}
	return append(deps, i.cfg.Dependencies...)
}

// Resolve checks the dependencies and resolves the current download URL
// without touching the filesystem.
func (i *Installer) Resolve(ctx context.Context) (*manifest.Manifest, error) {
	if err := i.bootstrapper.Ensure(ctx, i.dependencies()...); err != nil {
		return nil, err
	}
	return i.resolve(ctx)
}

func (i *Installer) resolve(ctx context.Context) (*manifest.Manifest, error) {
	m, err := i.resolver.Resolve(ctx)
	if err != nil {
		return nil, err
	}
	i.log.Debugf("resolved %s (version=%q)", m.DownloadURL, m.Version)
	return m, nil
}

// Install runs the full installation. Failures of the icon download and the
// timer activation are reported as warnings in the result; every other failure
// aborts the installation.
func (i *Installer) Install(ctx context.Context) (*Result, error) {
	i.log.Infof("installing %s to %s", i.cfg.Name(), i.cfg.ArtifactPath)
	if err := i.bootstrapper.Ensure(ctx, i.dependencies()...); err != nil {
		return nil, err
	}
	if err := i.makeDirs(); err != nil {
		return nil, err
	}
	m, err := i.resolve(ctx)
	if err != nil {
		return nil, err
	}
	i.log.Infof("downloading %s", m.DownloadURL)
	artifact, err := i.downloader.Download(ctx, m.DownloadURL, i.cfg.ArtifactPath,
		download.WithTempSuffix(download.TempSuffixInstall), download.WithChecksum(m.SHA256))
	if err != nil {
		return nil, err
	}
	res := &Result{Manifest: m, Artifact: artifact, Changed: true}

	if err := i.installSelf(); err != nil {
		return nil, err
	}
	if err := i.installIcon(ctx); err != nil {
		res.warn(i.log, fmt.Errorf("failed to install icon: %w", err))
	}
	if err := desktop.Write(i.fs, i.cfg); err != nil {
		return nil, fmt.Errorf("failed to write desktop entry: %w", err)
	}
	if err := i.registrar.WriteScript(); err != nil {
		return nil, err
	}
	if err := i.registrar.Register(ctx); err != nil {
		var warning *scheduler.ActivationWarning
		if !errors.As(err, &warning) {
			return nil, err
		}
		res.warn(i.log, warning)
	}

	i.log.Infof("installed %s%s (%d bytes, sha256 %s)", i.cfg.Name(), versionSuffix(m), artifact.Size, artifact.SHA256)
	return res, nil
}

func (r *Result) warn(log *logrus.Logger, err error) {
	log.Warnf("WARNING: %v", err)
	r.Warnings = append(r.Warnings, err)
}

func versionSuffix(m *manifest.Manifest) string {
	if m.Version == "" {
		return ""
	}
	return " " + m.Version
}

func (i *Installer) makeDirs() error {
	for _, p := range []string{
		i.cfg.ArtifactPath,
		i.cfg.InstallerPath,
		i.cfg.IconPath,
		i.cfg.DesktopEntryPath,
		i.cfg.UpdaterScriptPath,
		i.cfg.TimerPath(),
	} {
		if err := i.fs.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}
	return nil
}

// installSelf copies the running binary to the installer path, which the
// updater script executes.
func (i *Installer) installSelf() error {
	exe, err := i.executable()
	if err != nil {
		return fmt.Errorf("failed to locate executable: %w", err)
	}
	if resolved, err := filepath.EvalSymlinks(exe); err == nil {
		exe = resolved
	}
	if target, err := filepath.EvalSymlinks(i.cfg.InstallerPath); err == nil && target == exe {
		i.log.Debugf("%s is already in place", i.cfg.InstallerPath)
		return nil
	}
	f, err := os.Open(exe)
	if err != nil {
		return fmt.Errorf("failed to open executable: %w", err)
	}
	defer f.Close()
	if _, err := i.downloader.Place(i.cfg.InstallerPath, f); err != nil {
		return fmt.Errorf("failed to install %s: %w", i.cfg.InstallerPath, err)
	}
	i.log.Debugf("copied %s to %s", exe, i.cfg.InstallerPath)
	return nil
}

func (i *Installer) installIcon(ctx context.Context) error {
	if i.cfg.IconURL == "" {
		return nil
	}
	_, err := i.downloader.Download(ctx, i.cfg.IconURL, i.cfg.IconPath, download.WithMode(0o644))
	return err
}

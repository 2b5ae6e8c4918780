package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/appimage-tools/app-installer/internal/system"
	"github.com/sirupsen/logrus"
)

var ErrNoPackageManager = errors.New("no supported package manager found")

// Dependency is an external program the installer needs on PATH. Packages
// maps a package manager name to the package providing Binary; managers
// missing from the map install a package named after the dependency.
type Dependency struct {
	Name     string            `toml:"name"`
	Binary   string            `toml:"binary"`
	Packages map[string]string `toml:"packages"`
}

var JQ = Dependency{Name: "jq", Binary: "jq"}

func (d Dependency) binary() string {
	if d.Binary != "" {
		return d.Binary
	}
	return d.Name
}

func (d Dependency) packageFor(manager string) string {
	if pkg, ok := d.Packages[manager]; ok && pkg != "" {
		return pkg
	}
	return d.Name
}

type PackageManager struct {
	Name    string
	Binary  string
	Refresh []string
	Install []string
}

func (pm *PackageManager) installArgs(pkg string) []string {
	args := make([]string, 0, len(pm.Install)+1)
	return append(append(args, pm.Install...), pkg)
}

// PackageManagers lists the supported managers in detection order.
var PackageManagers = []PackageManager{
	{Name: "apt", Binary: "apt-get", Refresh: []string{"update"}, Install: []string{"install", "-y"}},
	{Name: "dnf", Binary: "dnf", Install: []string{"install", "-y"}},
	{Name: "yum", Binary: "yum", Install: []string{"install", "-y"}},
	{Name: "pacman", Binary: "pacman", Install: []string{"-S", "--noconfirm", "--needed"}},
	{Name: "zypper", Binary: "zypper", Install: []string{"--non-interactive", "install"}},
	{Name: "apk", Binary: "apk", Install: []string{"add", "--no-cache"}},
}

type DependencyMissingError struct {
	Dependency string
	Hint       string
	Err        error
}

func (e *DependencyMissingError) Error() string {
	msg := fmt.Sprintf("required dependency %s is missing: %v", e.Dependency, e.Err)
	if e.Hint != "" {
		msg += "; install it manually (" + e.Hint + ") and re-run"
	} else {
		msg += "; install it manually and re-run"
	}
	return msg
}

func (e *DependencyMissingError) Unwrap() error {
	return e.Err
}

type Bootstrapper struct {
	runner system.Runner
	log    *logrus.Logger
	isRoot func() bool
}

type Option func(*Bootstrapper)

func WithRootCheck(isRoot func() bool) Option {
	return func(b *Bootstrapper) {
		b.isRoot = isRoot
	}
}

func New(runner system.Runner, log *logrus.Logger, opts ...Option) *Bootstrapper {
	if log == nil {
		log = logrus.New()
		log.SetOutput(io.Discard)
	}
	b := &Bootstrapper{runner: runner, log: log, isRoot: system.IsRoot}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Bootstrapper) DetectPackageManager() (*PackageManager, error) {
	for i := range PackageManagers {
		if _, err := b.runner.LookPath(PackageManagers[i].Binary); err == nil {
			return &PackageManagers[i], nil
		}
	}
	return nil, ErrNoPackageManager
}

// Ensure makes sure every dependency is available, installing missing ones
// through the system package manager. It stops at the first dependency that
// cannot be provided.
func (b *Bootstrapper) Ensure(ctx context.Context, deps ...Dependency) error {
	if len(deps) == 0 {
		b.log.Debug("no external dependencies required")
		return nil
	}
	for _, d := range deps {
		if err := b.ensure(ctx, d); err != nil {
			return err
		}
	}
	return nil
}

func (b *Bootstrapper) ensure(ctx context.Context, d Dependency) error {
	binary := d.binary()
	if p, err := b.runner.LookPath(binary); err == nil {
		b.log.Debugf("found %s at %s", d.Name, p)
		return nil
	}
	b.log.Infof("%s not found, trying to install it", d.Name)

	pm, err := b.DetectPackageManager()
	if err != nil {
		return &DependencyMissingError{Dependency: d.Name, Err: err}
	}
	pkg := d.packageFor(pm.Name)
	name, args := pm.Binary, pm.installArgs(pkg)
	hint := strings.Join(append([]string{"sudo", name}, args...), " ")
	missing := func(err error) error {
		return &DependencyMissingError{Dependency: d.Name, Hint: hint, Err: err}
	}

	run := func(args ...string) error {
		if b.isRoot() {
			_, err := b.runner.Run(ctx, nil, name, args...)
			return err
		}
		_, err := b.runner.Run(ctx, nil, "sudo", append([]string{name}, args...)...)
		return err
	}
	if !b.isRoot() {
		if _, err := b.runner.LookPath("sudo"); err != nil {
			return missing(errors.New("installing packages requires root privileges and sudo is not available"))
		}
	}

	if len(pm.Refresh) > 0 {
		if err := run(pm.Refresh...); err != nil {
			b.log.Warnf("failed to refresh %s package index: %v", pm.Name, err)
		}
	}
	b.log.Infof("installing %s with %s", pkg, pm.Name)
	if err := run(args...); err != nil {
		return missing(fmt.Errorf("installation failed: %w", err))
	}
	if _, err := b.runner.LookPath(binary); err != nil {
		return missing(fmt.Errorf("%s still not found after installing %s", binary, pkg))
	}
	b.log.Infof("installed %s", d.Name)
	return nil
}

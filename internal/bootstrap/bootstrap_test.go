package bootstrap

import (
	"context"
	"errors"
	"testing"

	"github.com/appimage-tools/app-installer/internal/system"
	"github.com/stretchr/testify/require"
)

func asRoot() bool { return true }
func asUser() bool { return false }

func TestEnsurePresent(t *testing.T) {
	runner := system.NewFakeRunner("jq")
	require.NoError(t, New(runner, nil).Ensure(context.Background(), JQ))
	require.Empty(t, runner.CallLog())
}

func TestEnsureNothingRequired(t *testing.T) {
	runner := system.NewFakeRunner()
	require.NoError(t, New(runner, nil).Ensure(context.Background()))
	require.Empty(t, runner.CallLog())
}

func TestEnsureInstallsWithSudo(t *testing.T) {
	runner := system.NewFakeRunner("apt-get", "sudo")
	runner.Handler = func(name string, args []string, _ []byte) ([]byte, error) {
		if name == "sudo" && len(args) > 1 && args[1] == "install" {
			runner.AddBinary("jq")
		}
		return nil, nil
	}
	require.NoError(t, New(runner, nil, WithRootCheck(asUser)).Ensure(context.Background(), JQ))
	require.Equal(t, []string{
		"sudo apt-get update",
		"sudo apt-get install -y jq",
	}, runner.CallLog())
}

func TestEnsureInstallsAsRoot(t *testing.T) {
	runner := system.NewFakeRunner("pacman")
	runner.Handler = func(string, []string, []byte) ([]byte, error) {
		runner.AddBinary("fusermount")
		return nil, nil
	}
	dep := Dependency{Name: "fuse", Binary: "fusermount", Packages: map[string]string{"pacman": "fuse2"}}
	require.NoError(t, New(runner, nil, WithRootCheck(asRoot)).Ensure(context.Background(), dep))
	require.Equal(t, []string{"pacman -S --noconfirm --needed fuse2"}, runner.CallLog())
}

func TestEnsureDetectionOrder(t *testing.T) {
	runner := system.NewFakeRunner("apk", "dnf", "yum")
	pm, err := New(runner, nil).DetectPackageManager()
	require.NoError(t, err)
	require.Equal(t, "dnf", pm.Name)
}

func TestEnsureFailures(t *testing.T) {
	testCases := []struct {
		name     string
		runner   func() *system.FakeRunner
		isRoot   func() bool
		expected string
	}{
		{
			name:     "no package manager",
			runner:   func() *system.FakeRunner { return system.NewFakeRunner("sudo") },
			isRoot:   asUser,
			expected: ErrNoPackageManager.Error(),
		},
		{
			name:     "no sudo",
			runner:   func() *system.FakeRunner { return system.NewFakeRunner("dnf") },
			isRoot:   asUser,
			expected: "sudo is not available",
		},
		{
			name: "install fails",
			runner: func() *system.FakeRunner {
				r := system.NewFakeRunner("zypper")
				r.Handler = func(string, []string, []byte) ([]byte, error) {
					return nil, &system.RunError{Command: "zypper", ExitCode: 104, Stderr: "package not found"}
				}
				return r
			},
			isRoot:   asRoot,
			expected: "installation failed",
		},
		{
			name:     "still missing",
			runner:   func() *system.FakeRunner { return system.NewFakeRunner("apk") },
			isRoot:   asRoot,
			expected: "jq still not found after installing jq",
		},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			err := New(testCase.runner(), nil, WithRootCheck(testCase.isRoot)).Ensure(context.Background(), JQ)
			var missingErr *DependencyMissingError
			require.True(t, errors.As(err, &missingErr))
			require.Equal(t, "jq", missingErr.Dependency)
			require.ErrorContains(t, err, testCase.expected)
			require.ErrorContains(t, err, "install it manually")
		})
	}
}

func TestEnsureRefreshFailureIsNotFatal(t *testing.T) {
	runner := system.NewFakeRunner("apt-get")
	runner.Handler = func(_ string, args []string, _ []byte) ([]byte, error) {
		if args[0] == "update" {
			return nil, errors.New("network unreachable")
		}
		runner.AddBinary("jq")
		return nil, nil
	}
	require.NoError(t, New(runner, nil, WithRootCheck(asRoot)).Ensure(context.Background(), JQ))
	require.Len(t, runner.CallLog(), 2)
}

func TestDependencyMissingHint(t *testing.T) {
	err := New(system.NewFakeRunner("dnf"), nil, WithRootCheck(asRoot)).Ensure(context.Background(), JQ)
	var missingErr *DependencyMissingError
	require.True(t, errors.As(err, &missingErr))
	require.Equal(t, "sudo dnf install -y jq", missingErr.Hint)
}

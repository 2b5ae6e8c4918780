package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/appimage-tools/app-installer/internal/config"
	"github.com/appimage-tools/app-installer/internal/desktop"
	"github.com/appimage-tools/app-installer/internal/installer"
	"github.com/appimage-tools/app-installer/internal/scheduler"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/writer"
	"github.com/spf13/cobra"
)

var version = "dev"

const defaultProfile = "cursor"

func main() {
	log := newLogger(os.Stdout, os.Stderr)
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(log).ExecuteContext(ctx); err != nil {
		log.Errorf("ERROR: %v", err)
		stop()
		os.Exit(1)
	}
}

// newLogger sends progress to stdout and warnings and errors to stderr.
func newLogger(stdout, stderr io.Writer) *logrus.Logger {
	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
	log.SetOutput(io.Discard)
	log.AddHook(&writer.Hook{
		Writer:    stderr,
		LogLevels: []logrus.Level{logrus.PanicLevel, logrus.FatalLevel, logrus.ErrorLevel, logrus.WarnLevel},
	})
	log.AddHook(&writer.Hook{
		Writer:    stdout,
		LogLevels: []logrus.Level{logrus.InfoLevel, logrus.DebugLevel, logrus.TraceLevel},
	})
	return log
}

func must[T any](v T, err error) T {
	if err != nil {
		panic(err)
	}
	return v
}

func newRootCmd(log *logrus.Logger, opts ...installer.Option) *cobra.Command {
	profile := os.Getenv(config.EnvPrefix + "_PROFILE")
	if profile == "" {
		profile = defaultProfile
	}

	cmd := &cobra.Command{
		Use:   "app-installer",
		Short: "Install a desktop application and keep it up to date",
		Long: "Installs the latest build of the selected application profile, creates a menu entry " +
			"and registers a systemd user timer that runs the updater once a day.",
		Version:       version,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          installRunner(log, opts),
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
	}

	cmd.PersistentFlags().StringP("profile", "p", profile, "the application profile")
	cmd.PersistentFlags().StringP("config", "c", "", "path to a TOML config file")
	cmd.PersistentFlags().BoolP("verbose", "v", false, "enable debug logging")
	cmd.PersistentFlags().BoolP("quiet", "q", false, "only log warnings and errors")
	cmd.PersistentFlags().SortFlags = false
	cmd.MarkFlagsMutuallyExclusive("verbose", "quiet")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "install",
			Short: "Install the application (same as running without a command)",
			Args:  cobra.NoArgs,
			RunE:  installRunner(log, opts),
		},
		newUpdateCmd(log, opts),
		newResolveCmd(log, opts),
		newUninstallCmd(log, opts),
		newRenderCmd(log),
		newProfilesCmd(),
	)
	return cmd
}

func installRunner(log *logrus.Logger, opts []installer.Option) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		i, err := newInstaller(cmd, log, opts)
		if err != nil {
			return err
		}
		log.Infof("starting app-installer (version=%s)", version)
		_, err = i.Install(cmd.Context())
		return err
	}
}

func loadConfig(cmd *cobra.Command, log *logrus.Logger) (config.Config, error) {
	switch {
	case must(cmd.Flags().GetBool("verbose")):
		log.SetLevel(logrus.DebugLevel)
	case must(cmd.Flags().GetBool("quiet")):
		log.SetLevel(logrus.WarnLevel)
	}
	cfg, err := config.Load(must(cmd.Flags().GetString("profile")), must(cmd.Flags().GetString("config")))
	if err != nil {
		return config.Config{}, err
	}
	if cfg.ConfigFile != "" {
		log.Debugf("using config file %s", cfg.ConfigFile)
	}
	return cfg, nil
}

func newInstaller(cmd *cobra.Command, log *logrus.Logger, opts []installer.Option) (*installer.Installer, error) {
	cfg, err := loadConfig(cmd, log)
	if err != nil {
		return nil, err
	}
	return installer.New(cmd.Context(), cfg, log, opts...)
}

func newUpdateCmd(log *logrus.Logger, opts []installer.Option) *cobra.Command {
	return &cobra.Command{
		Use:   "update",
		Short: "Replace the installed application with the latest build",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			i, err := newInstaller(cmd, log, opts)
			if err != nil {
				return err
			}
			_, err = i.Update(cmd.Context())
			return err
		},
	}
}

func newResolveCmd(log *logrus.Logger, opts []installer.Option) *cobra.Command {
	return &cobra.Command{
		Use:   "resolve",
		Short: "Print the download URL of the latest build",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			i, err := newInstaller(cmd, log, opts)
			if err != nil {
				return err
			}
			m, err := i.Resolve(cmd.Context())
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), m.DownloadURL)
			return err
		},
	}
}

func newUninstallCmd(log *logrus.Logger, opts []installer.Option) *cobra.Command {
	return &cobra.Command{
		Use:   "uninstall",
		Short: "Remove the application, its menu entry and the update timer",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			i, err := newInstaller(cmd, log, opts)
			if err != nil {
				return err
			}
			return i.Uninstall(cmd.Context())
		},
	}
}

var renderers = map[string]func(config.Config) (string, error){
	"desktop": desktop.RenderEntry,
	"script":  scheduler.RenderUpdaterScript,
	"service": scheduler.RenderService,
	"timer":   scheduler.RenderTimer,
}

func newRenderCmd(log *logrus.Logger) *cobra.Command {
	return &cobra.Command{
		Use:       "render <desktop|script|service|timer>",
		Short:     "Print a generated file without installing anything",
		ValidArgs: []string{"desktop", "script", "service", "timer"},
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, log)
			if err != nil {
				return err
			}
			content, err := renderers[args[0]](cfg)
			if err != nil {
				return err
			}
			_, err = io.WriteString(cmd.OutOrStdout(), content)
			return err
		},
	}
}

func newProfilesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "profiles",
		Short: "List the built-in application profiles",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			for _, p := range config.Profiles {
				if _, err := fmt.Fprintf(cmd.OutOrStdout(), "%-10s %s (%s)\n", p.Name, p.Description, p.Source); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

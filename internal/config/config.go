package config

import (
	"bytes"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/appimage-tools/app-installer/internal/bootstrap"
	"github.com/appimage-tools/app-installer/pkg/manifest"
	"github.com/kelseyhightower/envconfig"
	"github.com/pelletier/go-toml/v2"
)

const (
	EnvPrefix = "APP_INSTALLER"

	QueryNative = "native"
	QueryJQ     = "jq"

	DefaultURLField = "downloadUrl"
)

var appNameRe = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Config is built once at startup and handed to every component by value.
type Config struct {
	Profile    string `toml:"-" ignored:"true"`
	ConfigFile string `toml:"-" ignored:"true"`

	AppName     string   `toml:"app_name" envconfig:"APP_NAME"`
	DisplayName string   `toml:"display_name" envconfig:"DISPLAY_NAME"`
	Comment     string   `toml:"comment" envconfig:"COMMENT"`
	Categories  []string `toml:"categories" envconfig:"CATEGORIES"`
	WMClass     string   `toml:"wm_class" envconfig:"WM_CLASS"`

	Source       manifest.Source `toml:"source" envconfig:"SOURCE"`
	APIURL       string          `toml:"api_url" envconfig:"API_URL"`
	Platform     string          `toml:"platform" envconfig:"PLATFORM"`
	ReleaseTrack string          `toml:"release_track" envconfig:"RELEASE_TRACK"`
	URLField     string          `toml:"url_field" envconfig:"URL_FIELD"`
	JSONQuery    string          `toml:"json_query" envconfig:"JSON_QUERY"`
	GitHubRepo   string          `toml:"github_repo" envconfig:"GITHUB_REPO"`
	AssetPattern string          `toml:"asset_pattern" envconfig:"ASSET_PATTERN"`
	GitHubToken  string          `toml:"-" envconfig:"GITHUB_TOKEN"`
	IconURL      string          `toml:"icon_url" envconfig:"ICON_URL"`

	ArtifactPath      string `toml:"artifact_path" envconfig:"ARTIFACT_PATH"`
	InstallerPath     string `toml:"installer_path" envconfig:"INSTALLER_PATH"`
	IconPath          string `toml:"icon_path" envconfig:"ICON_PATH"`
	DesktopEntryPath  string `toml:"desktop_entry_path" envconfig:"DESKTOP_ENTRY_PATH"`
	UpdaterScriptPath string `toml:"updater_script_path" envconfig:"UPDATER_SCRIPT_PATH"`
	UnitDir           string `toml:"unit_dir" envconfig:"UNIT_DIR"`
	UnitName          string `toml:"unit_name" envconfig:"UNIT_NAME"`

	OnCalendar      string   `toml:"on_calendar" envconfig:"ON_CALENDAR"`
	RandomizedDelay Duration `toml:"randomized_delay" envconfig:"RANDOMIZED_DELAY"`
	Persistent      bool     `toml:"persistent" envconfig:"PERSISTENT"`

	HTTPTimeout Duration `toml:"http_timeout" envconfig:"HTTP_TIMEOUT"`
	RetryMax    int      `toml:"retry_max" envconfig:"RETRY_MAX"`
	Notify      bool     `toml:"notify" envconfig:"NOTIFY"`

	Dependencies []bootstrap.Dependency `toml:"dependency" ignored:"true"`
}

func Defaults(p *Profile) Config {
	name := p.Name
	return Config{
		Profile:           p.Name,
		AppName:           name,
		DisplayName:       p.DisplayName,
		Comment:           p.Description,
		Categories:        append([]string(nil), p.Categories...),
		WMClass:           p.WMClass,
		Source:            p.Source,
		APIURL:            p.APIURL,
		Platform:          p.Platform,
		ReleaseTrack:      p.ReleaseTrack,
		URLField:          DefaultURLField,
		JSONQuery:         QueryNative,
		GitHubRepo:        p.GitHubRepo,
		AssetPattern:      p.AssetPattern,
		IconURL:           p.IconURL,
		ArtifactPath:      filepath.Join(xdg.BinHome, name+".AppImage"),
		InstallerPath:     filepath.Join(xdg.BinHome, "app-installer"),
		IconPath:          filepath.Join(xdg.DataHome, "icons", name+".png"),
		DesktopEntryPath:  filepath.Join(xdg.DataHome, "applications", name+".desktop"),
		UpdaterScriptPath: filepath.Join(xdg.DataHome, "app-installer", name, "update.sh"),
		UnitDir:           filepath.Join(xdg.ConfigHome, "systemd", "user"),
		UnitName:          name + "-update",
		OnCalendar:        "daily",
		RandomizedDelay:   Duration{time.Hour},
		Persistent:        true,
		Notify:            true,
	}
}

func DefaultConfigFile(profile string) string {
	return filepath.Join(xdg.ConfigHome, "app-installer", profile+".toml")
}

// Load resolves the profile defaults, then an optional TOML file, then the
// APP_INSTALLER_* environment. An explicitly given config file must exist.
func Load(profile, configFile string) (Config, error) {
	p := Profiles.Find(profile)
	if p == nil {
		return Config{}, fmt.Errorf("unknown profile %q (available: %s)", profile, strings.Join(Profiles.Names(), ", "))
	}
	cfg := Defaults(p)

	optional := configFile == ""
	if optional {
		configFile = DefaultConfigFile(p.Name)
	} else {
		abs, err := filepath.Abs(configFile)
		if err != nil {
			return Config{}, fmt.Errorf("invalid config file path: %w", err)
		}
		configFile = abs
	}
	data, err := os.ReadFile(configFile)
	switch {
	case err == nil:
		if err := decodeTOML(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse config file %s: %w", configFile, err)
		}
		cfg.ConfigFile = configFile
	case optional && errors.Is(err, os.ErrNotExist):
	default:
		return Config{}, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return Config{}, err
	}
	if cfg.GitHubToken == "" {
		cfg.GitHubToken = os.Getenv("GITHUB_TOKEN")
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func decodeTOML(data []byte, cfg *Config) error {
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	return dec.Decode(cfg)
}

func (c *Config) Validate() error {
	var errs []error
	if !appNameRe.MatchString(c.AppName) {
		errs = append(errs, fmt.Errorf("invalid app name %q", c.AppName))
	}
	switch c.Source {
	case manifest.SourceManifest:
		if c.APIURL == "" {
			errs = append(errs, errors.New("api_url is required for the manifest source"))
		} else if _, err := url.Parse(c.APIURL); err != nil {
			errs = append(errs, fmt.Errorf("invalid api_url: %w", err))
		}
		if c.URLField == "" {
			errs = append(errs, errors.New("url_field must not be empty"))
		}
	case manifest.SourceGitHub:
		if !strings.Contains(c.GitHubRepo, "/") {
			errs = append(errs, fmt.Errorf("github_repo must be owner/repo, got %q", c.GitHubRepo))
		}
		if _, err := regexp.Compile(c.AssetPattern); err != nil || c.AssetPattern == "" {
			errs = append(errs, fmt.Errorf("invalid asset_pattern %q", c.AssetPattern))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown source %q", c.Source))
	}
	if c.JSONQuery != QueryNative && c.JSONQuery != QueryJQ {
		errs = append(errs, fmt.Errorf("unknown json_query backend %q", c.JSONQuery))
	}
	for _, p := range []struct{ name, path string }{
		{"artifact_path", c.ArtifactPath},
		{"installer_path", c.InstallerPath},
		{"icon_path", c.IconPath},
		{"desktop_entry_path", c.DesktopEntryPath},
		{"updater_script_path", c.UpdaterScriptPath},
		{"unit_dir", c.UnitDir},
	} {
		if !filepath.IsAbs(p.path) {
			errs = append(errs, fmt.Errorf("%s must be an absolute path, got %q", p.name, p.path))
		}
	}
	if c.UnitName == "" || strings.ContainsAny(c.UnitName, "/ ") {
		errs = append(errs, fmt.Errorf("invalid unit_name %q", c.UnitName))
	}
	if c.RetryMax < 0 {
		errs = append(errs, errors.New("retry_max must not be negative"))
	}
	return errors.Join(errs...)
}

func (c *Config) ManifestURL() (string, error) {
	u, err := url.Parse(c.APIURL)
	if err != nil {
		return "", err
	}
	q := u.Query()
	if c.Platform != "" && !q.Has("platform") {
		q.Set("platform", c.Platform)
	}
	if c.ReleaseTrack != "" && !q.Has("releaseTrack") {
		q.Set("releaseTrack", c.ReleaseTrack)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (c *Config) TimerUnit() string {
	return c.UnitName + ".timer"
}

func (c *Config) ServiceUnit() string {
	return c.UnitName + ".service"
}

func (c *Config) TimerPath() string {
	return filepath.Join(c.UnitDir, c.TimerUnit())
}

func (c *Config) ServicePath() string {
	return filepath.Join(c.UnitDir, c.ServiceUnit())
}

// SnapshotPath is where the effective configuration of an installation is
// stored for the updater.
func (c *Config) SnapshotPath() string {
	return filepath.Join(filepath.Dir(c.UpdaterScriptPath), "config.toml")
}

// Snapshot encodes the configuration as a TOML file that Load accepts. The
// profile and the GitHub token are not included.
func (c *Config) Snapshot() ([]byte, error) {
	return toml.Marshal(c)
}

func (c *Config) Name() string {
	if c.DisplayName != "" {
		return c.DisplayName
	}
	return c.AppName
}

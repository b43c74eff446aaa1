package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/djwarf/tindico/pkg/indico"
	"github.com/djwarf/tindico/pkg/providers"
)

// AppName names the config and data directories
const AppName = "tindico"

// TokenPage is where an Indico user creates an API token
const TokenPage = "/user/tokens/"

// Environment keys
const (
	KeyBaseURL           = "INDICO_BASE_URL"
	KeyAPIToken          = "INDICO_API_TOKEN"
	KeyDataDir           = "TINDICO_DATA_DIR"
	KeyExportDir         = "TINDICO_EXPORT_DIR"
	KeyBackend           = "TINDICO_BACKEND"
	KeyCalendar          = "TINDICO_CALENDAR"
	KeyCalDAVURL         = "TINDICO_CALDAV_URL"
	KeyCalDAVCalendar    = "TINDICO_CALDAV_CALENDAR"
	KeyCalDAVUsername    = "TINDICO_CALDAV_USERNAME"
	KeyCalDAVPassword    = "TINDICO_CALDAV_PASSWORD"
	KeyGOAAccount        = "TINDICO_GOA_ACCOUNT"
	KeyGoogleCredentials = "TINDICO_GOOGLE_CREDENTIALS"
	KeyGoogleCalendar    = "TINDICO_GOOGLE_CALENDAR"
	KeyFavoritesLimit    = "TINDICO_FAVORITES_LIMIT"
	KeyLogLevel          = "LOG_LEVEL"
)

var keys = []string{
	KeyBaseURL, KeyAPIToken, KeyDataDir, KeyExportDir, KeyBackend, KeyCalendar,
	KeyCalDAVURL, KeyCalDAVCalendar, KeyCalDAVUsername, KeyCalDAVPassword,
	KeyGOAAccount, KeyGoogleCredentials, KeyGoogleCalendar, KeyFavoritesLimit,
	KeyLogLevel,
}

// ErrMissingToken is returned by Validate when no Indico API token is set
var ErrMissingToken = errors.New("INDICO_API_TOKEN is not set")

// Config holds application configuration
type Config struct {
	// Directory holding .env and config.json
	ConfigDir string
	// File the values were read from, if any
	ConfigFile string

	// Indico instance
	BaseURL  string
	APIToken string

	// Data directory
	DataDir   string
	ExportDir string

	// Calendar backend
	Backend  string
	Calendar string // local calendar name
	CalDAV   CalDAVConfig
	Google   GoogleConfig

	FavoritesLimit int
	LogLevel       string
}

// CalDAVConfig configures the caldav backend
type CalDAVConfig struct {
	URL      string
	Calendar string
	Username string
	Password string
	// GNOME Online Accounts identity supplying a bearer token
	GOAAccount string
}

// GoogleConfig configures the google backend
type GoogleConfig struct {
	CredentialsFile string
	Calendar        string
}

// Load reads configuration from the environment, .env files in the working
// directory and the config directory, and an optional config.json.
func Load() (*Config, error) {
	configDir, err := DefaultConfigDir()
	if err != nil {
		return nil, err
	}
	return LoadFrom(".", configDir)
}

// LoadFrom is Load with explicit directories. Values already in the process
// environment win over .env files; .env.local wins over .env and the working
// directory wins over the config directory.
func LoadFrom(workDir, configDir string) (*Config, error) {
	loadEnvFiles(workDir, configDir)

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("json")
	v.AddConfigPath(configDir)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	for _, key := range keys {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", key, err)
		}
	}

	v.SetDefault(KeyBaseURL, indico.DefaultBaseURL)
	v.SetDefault(KeyDataDir, defaultDataDir())
	v.SetDefault(KeyBackend, providers.BackendLocal)
	v.SetDefault(KeyFavoritesLimit, indico.DefaultFavoritesLimit)
	v.SetDefault(KeyLogLevel, "info")

	cfg := &Config{
		ConfigDir:  configDir,
		ConfigFile: v.ConfigFileUsed(),

		BaseURL:  strings.TrimRight(v.GetString(KeyBaseURL), "/"),
		APIToken: strings.TrimSpace(v.GetString(KeyAPIToken)),

		DataDir:   expandHome(v.GetString(KeyDataDir)),
		ExportDir: expandHome(v.GetString(KeyExportDir)),

		Backend:  strings.ToLower(v.GetString(KeyBackend)),
		Calendar: v.GetString(KeyCalendar),
		CalDAV: CalDAVConfig{
			URL:        v.GetString(KeyCalDAVURL),
			Calendar:   v.GetString(KeyCalDAVCalendar),
			Username:   v.GetString(KeyCalDAVUsername),
			Password:   v.GetString(KeyCalDAVPassword),
			GOAAccount: v.GetString(KeyGOAAccount),
		},
		Google: GoogleConfig{
			CredentialsFile: expandHome(v.GetString(KeyGoogleCredentials)),
			Calendar:        v.GetString(KeyGoogleCalendar),
		},

		FavoritesLimit: v.GetInt(KeyFavoritesLimit),
		LogLevel:       v.GetString(KeyLogLevel),
	}

	if cfg.ExportDir == "" {
		cfg.ExportDir = filepath.Join(cfg.DataDir, "exports")
	}
	if cfg.Google.CredentialsFile == "" {
		cfg.Google.CredentialsFile = filepath.Join(configDir, "google-credentials.json")
	}

	return cfg, nil
}

// Validate reports settings that prevent startup
func (c *Config) Validate() error {
	if c.APIToken == "" {
		return ErrMissingToken
	}
	if !slices.Contains(providers.Backends, c.Backend) {
		return fmt.Errorf("unknown backend %q (want one of %s)", c.Backend, strings.Join(providers.Backends, ", "))
	}
	if c.Backend == providers.BackendCalDAV && c.CalDAV.URL == "" && c.CalDAV.GOAAccount == "" {
		return fmt.Errorf("caldav backend needs %s or %s", KeyCalDAVURL, KeyGOAAccount)
	}
	if c.FavoritesLimit <= 0 {
		return fmt.Errorf("%s must be positive", KeyFavoritesLimit)
	}
	return nil
}

// MissingTokenHelp explains how to provide the API token
func (c *Config) MissingTokenHelp() string {
	return fmt.Sprintf(`No Indico API token configured.

Create a token at %s%s (scope "Everything (only GET)")
and add it to %s or .env in the current directory:

    %s=indico_...
`, c.BaseURL, TokenPage, filepath.Join(c.ConfigDir, ".env"), KeyAPIToken)
}

// DatabasePath returns the path to the SQLite database
func (c *Config) DatabasePath() string {
	return filepath.Join(c.DataDir, AppName+".db")
}

// LogPath returns the path of the log file
func (c *Config) LogPath() string {
	return filepath.Join(c.DataDir, AppName+".log")
}

// GoogleTokenPath returns where `tindico auth google` stores its token
func (c *Config) GoogleTokenPath() string {
	return filepath.Join(c.ConfigDir, "google-token.json")
}

// DefaultConfigDir returns $XDG_CONFIG_HOME/tindico
func DefaultConfigDir() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to locate config directory: %w", err)
	}
	return filepath.Join(dir, AppName), nil
}

// loadEnvFiles loads environment variables from .env files. godotenv never
// overrides a variable that is already set, so the first file loaded wins.
func loadEnvFiles(dirs ...string) {
	for _, dir := range dirs {
		for _, name := range []string{".env.local", ".env"} {
			_ = godotenv.Load(filepath.Join(dir, name))
		}
	}
}

// defaultDataDir returns $XDG_DATA_HOME/tindico
func defaultDataDir() string {
	if dir := os.Getenv("XDG_DATA_HOME"); dir != "" {
		return filepath.Join(dir, AppName)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return AppName
	}
	return filepath.Join(home, ".local", "share", AppName)
}

func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}

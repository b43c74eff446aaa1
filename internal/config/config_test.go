package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/djwarf/tindico/pkg/indico"
)

// clearEnv unsets every config key for the duration of the test
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range append(keys, "XDG_DATA_HOME") {
		t.Setenv(key, "")
		require.NoError(t, os.Unsetenv(key))
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	data := t.TempDir()
	t.Setenv("XDG_DATA_HOME", data)

	cfg, err := LoadFrom(t.TempDir(), t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, indico.DefaultBaseURL, cfg.BaseURL)
	assert.Empty(t, cfg.APIToken)
	assert.Equal(t, "local", cfg.Backend)
	assert.Equal(t, indico.DefaultFavoritesLimit, cfg.FavoritesLimit)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, filepath.Join(data, AppName), cfg.DataDir)
	assert.Equal(t, filepath.Join(data, AppName, "exports"), cfg.ExportDir)
	assert.Equal(t, filepath.Join(data, AppName, "tindico.db"), cfg.DatabasePath())
	assert.Equal(t, filepath.Join(data, AppName, "tindico.log"), cfg.LogPath())
	assert.Empty(t, cfg.ConfigFile)

	assert.ErrorIs(t, cfg.Validate(), ErrMissingToken)
}

func TestLoadEnvFilePrecedence(t *testing.T) {
	clearEnv(t)
	work := t.TempDir()
	conf := t.TempDir()

	writeFile(t, filepath.Join(conf, ".env"), "INDICO_API_TOKEN=from-config-dir\nTINDICO_BACKEND=caldav\nTINDICO_CALDAV_URL=fastmail\n")
	writeFile(t, filepath.Join(work, ".env"), "INDICO_API_TOKEN=from-work-dir\nINDICO_BASE_URL=https://indico.example/\n")
	writeFile(t, filepath.Join(work, ".env.local"), "INDICO_BASE_URL=https://local.example\n")

	cfg, err := LoadFrom(work, conf)
	require.NoError(t, err)

	assert.Equal(t, "from-work-dir", cfg.APIToken)
	assert.Equal(t, "https://local.example", cfg.BaseURL)
	assert.Equal(t, "caldav", cfg.Backend)
	assert.Equal(t, "fastmail", cfg.CalDAV.URL)
	assert.NoError(t, cfg.Validate())
}

func TestLoadProcessEnvWins(t *testing.T) {
	clearEnv(t)
	work := t.TempDir()
	writeFile(t, filepath.Join(work, ".env"), "INDICO_API_TOKEN=from-file\n")
	t.Setenv(KeyAPIToken, "from-env")

	cfg, err := LoadFrom(work, t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.APIToken)
}

func TestLoadConfigJSON(t *testing.T) {
	clearEnv(t)
	conf := t.TempDir()
	writeFile(t, filepath.Join(conf, "config.json"), `{
		"INDICO_API_TOKEN": "json-token",
		"TINDICO_BACKEND": "google",
		"TINDICO_GOOGLE_CALENDAR": "work",
		"TINDICO_FAVORITES_LIMIT": 25
	}`)

	cfg, err := LoadFrom(t.TempDir(), conf)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(conf, "config.json"), cfg.ConfigFile)
	assert.Equal(t, "json-token", cfg.APIToken)
	assert.Equal(t, "google", cfg.Backend)
	assert.Equal(t, "work", cfg.Google.Calendar)
	assert.Equal(t, 25, cfg.FavoritesLimit)
	assert.Equal(t, filepath.Join(conf, "google-credentials.json"), cfg.Google.CredentialsFile)
	assert.Equal(t, filepath.Join(conf, "google-token.json"), cfg.GoogleTokenPath())
}

func TestLoadBrokenConfigJSON(t *testing.T) {
	clearEnv(t)
	conf := t.TempDir()
	writeFile(t, filepath.Join(conf, "config.json"), `{"INDICO_API_TOKEN": `)

	_, err := LoadFrom(t.TempDir(), conf)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := Config{APIToken: "t", Backend: "local", FavoritesLimit: 10}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid", func(*Config) {}, false},
		{"missing token", func(c *Config) { c.APIToken = "" }, true},
		{"unknown backend", func(c *Config) { c.Backend = "outlook" }, true},
		{"caldav without url", func(c *Config) { c.Backend = "caldav" }, true},
		{"caldav with goa", func(c *Config) { c.Backend = "caldav"; c.CalDAV.GOAAccount = "me@example.com" }, false},
		{"zero limit", func(c *Config) { c.FavoritesLimit = 0 }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			if tt.wantErr {
				assert.Error(t, cfg.Validate())
			} else {
				assert.NoError(t, cfg.Validate())
			}
		})
	}
}

func TestMissingTokenHelp(t *testing.T) {
	cfg := &Config{BaseURL: "https://indico.example", ConfigDir: "/home/ada/.config/tindico"}
	help := cfg.MissingTokenHelp()
	assert.Contains(t, help, "https://indico.example/user/tokens/")
	assert.Contains(t, help, "/home/ada/.config/tindico/.env")
	assert.Contains(t, help, "INDICO_API_TOKEN=")
}

func TestExpandHome(t *testing.T) {
	t.Setenv("HOME", "/home/ada")
	assert.Equal(t, "/home/ada/data", expandHome("~/data"))
	assert.Equal(t, "/srv/data", expandHome("/srv/data"))
	assert.Equal(t, "~user/x", expandHome("~user/x"))
}

package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	configPath := filepath.Join(t.TempDir(), "test-config.yml")
	require.NoError(t, os.WriteFile(configPath, []byte(content), 0o644))
	return configPath
}

func TestLoad(t *testing.T) {
	t.Run("valid config", func(t *testing.T) {
		configPath := writeConfig(t, `
file:
  path: /srv/profiles/AC/Settings/KillFeed.json
  backup_suffix: .bak
schedule:
  interval: 30s
  location: UTC
log:
  file: /var/log/kftoggle.log
journal:
  path: /var/lib/kftoggle/journal.db
`)
		cfg, err := Load(configPath)
		require.NoError(t, err)
		require.NotNil(t, cfg)

		assert.Equal(t, "/srv/profiles/AC/Settings/KillFeed.json", cfg.File.Path)
		assert.Equal(t, ".bak", cfg.File.BackupSuffix)
		assert.Equal(t, 30*time.Second, cfg.Schedule.Interval)
		assert.Equal(t, "UTC", cfg.Schedule.Location)
		assert.Equal(t, "/var/log/kftoggle.log", cfg.Log.File)
		assert.Equal(t, "/var/lib/kftoggle/journal.db", cfg.Journal.Path)

		loc, err := cfg.GetLocation()
		require.NoError(t, err)
		assert.Equal(t, "UTC", loc.String())
	})

	t.Run("defaults", func(t *testing.T) {
		cfg, err := Load(writeConfig(t, "schedule:\n  interval: 2m\n"))
		require.NoError(t, err)

		assert.Equal(t, "KillFeed.json", cfg.File.Path)
		assert.Equal(t, ".backup", cfg.File.BackupSuffix)
		assert.Equal(t, 2*time.Minute, cfg.Schedule.Interval)
		assert.Equal(t, "Local", cfg.Schedule.Location)
		assert.Equal(t, "kftoggle.log", cfg.Log.File)
		assert.Empty(t, cfg.Journal.Path)
	})

	t.Run("explicitly empty log file", func(t *testing.T) {
		cfg, err := Load(writeConfig(t, "log:\n  file: \"\"\n"))
		require.NoError(t, err)
		assert.Empty(t, cfg.Log.File)
	})

	t.Run("env expansion", func(t *testing.T) {
		t.Setenv("KF_TEST_DIR", "/srv/game")
		cfg, err := Load(writeConfig(t, "file:\n  path: ${KF_TEST_DIR}/KillFeed.json\n"))
		require.NoError(t, err)
		assert.Equal(t, "/srv/game/KillFeed.json", cfg.File.Path)
	})

	t.Run("file not found", func(t *testing.T) {
		cfg, err := Load("/non/existent/file.yml")
		require.Error(t, err)
		assert.Nil(t, cfg)
		assert.Contains(t, err.Error(), "read config file")
	})

	t.Run("invalid yaml", func(t *testing.T) {
		cfg, err := Load(writeConfig(t, "invalid: yaml: content: ["))
		require.Error(t, err)
		assert.Nil(t, cfg)
		assert.Contains(t, err.Error(), "parse config")
	})

	t.Run("invalid values", func(t *testing.T) {
		tbl := []struct {
			name    string
			content string
			errMsg  string
		}{
			{"short interval", "schedule:\n  interval: 100ms\n", "schedule.interval"},
			{"empty path", "file:\n  path: \"\"\n", "file.path"},
			{"empty suffix", "file:\n  backup_suffix: \"\"\n", "file.backup_suffix"},
			{"bad location", "schedule:\n  location: Mars/Olympus\n", "schedule.location"},
		}
		for _, tt := range tbl {
			t.Run(tt.name, func(t *testing.T) {
				cfg, err := Load(writeConfig(t, tt.content))
				require.Error(t, err)
				assert.Nil(t, cfg)
				assert.Contains(t, err.Error(), "validate config")
				assert.Contains(t, err.Error(), tt.errMsg)
			})
		}
	})
}

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	loc, err := cfg.GetLocation()
	require.NoError(t, err)
	assert.Equal(t, time.Local, loc)
}

func TestGenerateSchema(t *testing.T) {
	schema := GenerateSchema()
	require.NotNil(t, schema)

	data, err := json.Marshal(schema)
	require.NoError(t, err)
	assert.Contains(t, string(data), "backup_suffix")
	assert.Contains(t, string(data), "interval")
}

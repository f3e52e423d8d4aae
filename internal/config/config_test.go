package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/raidmeter/encounters/internal/config"
	"github.com/stretchr/testify/require"
)

func TestReadStaticConfigFile(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "encounters.yml")
	body := `
general:
  mode: debug
database:
  dir: /tmp/encounters-test
  busy_timeout: 250
http:
  port: 9999
  cors_origins:
    - http://localhost:3000
maintenance:
  vacuum_interval: 90s
  queue_size: 2
`
	require.NoError(t, os.WriteFile(configPath, []byte(body), 0o600))

	conf, errConf := config.ReadStaticConfig(configPath)
	require.NoError(t, errConf)
	require.Equal(t, config.DebugMode, conf.General.Mode)
	require.Equal(t, "/tmp/encounters-test", conf.Database.Dir)
	require.Equal(t, "encounters.db", conf.Database.File)
	require.Equal(t, 250, conf.Database.BusyTimeout)
	require.Equal(t, "127.0.0.1:9999", conf.HTTP.Addr())
	require.Equal(t, []string{"http://localhost:3000"}, conf.HTTP.CORSOrigins)
	require.Equal(t, 90*time.Second, conf.Maintenance.VacuumInterval)
	require.Equal(t, 2, conf.Maintenance.QueueSize)
}

func TestReadStaticConfigMissingExplicitFile(t *testing.T) {
	_, errConf := config.ReadStaticConfig(filepath.Join(t.TempDir(), "missing.yml"))
	require.ErrorIs(t, errConf, config.ErrReadConfig)
}

func TestReadStaticConfigBadDuration(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "encounters.yml")
	require.NoError(t, os.WriteFile(configPath, []byte("maintenance:\n  vacuum_interval: soon\n"), 0o600))

	_, errConf := config.ReadStaticConfig(configPath)
	require.ErrorIs(t, errConf, config.ErrFormatConfig)
}

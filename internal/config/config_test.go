package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfigFile(t, `
api_key: abc123
system_id: "10450"
data_service_url: https://data.pvoutput.org
timezone: Europe/London
mqtt:
  enabled: true
  broker: localhost:1883
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "abc123", cfg.APIKey)
	assert.Equal(t, "10450", cfg.SystemID)
	assert.Equal(t, "https://data.pvoutput.org", cfg.DataServiceURL)
	assert.Equal(t, "Europe/London", cfg.Timezone)
	assert.True(t, cfg.MQTT.Enabled)
	assert.Equal(t, "pvharvest", cfg.MQTT.GetTopicPrefix())
	assert.Equal(t, "pvharvest.db", cfg.GetDBPath())
	assert.Equal(t, "info", cfg.GetLogLevel())
}

func TestLoadMissingFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Empty(t, cfg.APIKey)
}

func TestEnvOverrides(t *testing.T) {
	path := writeConfigFile(t, "api_key: from-file\nsystem_id: \"1\"\n")
	t.Setenv("PVOUTPUT_APIKEY", "from-env")
	t.Setenv("PVOUTPUT_SYSTEMID", "2")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.APIKey)
	assert.Equal(t, "2", cfg.SystemID)
}

func TestValidateDataServiceURL(t *testing.T) {
	cfg := &Config{DataServiceURL: "https://data.pvoutput.com"}
	assert.Error(t, cfg.Validate())

	cfg.DataServiceURL = "https://data.pvoutput.org/"
	assert.NoError(t, cfg.Validate())
}

func TestValidateTimezone(t *testing.T) {
	cfg := &Config{Timezone: "Mars/Olympus_Mons"}
	assert.Error(t, cfg.Validate())
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "config.yaml")
	want := &Config{APIKey: "k", SystemID: "7", LogLevel: "debug"}
	require.NoError(t, Save(path, want))

	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, want.APIKey, got.APIKey)
	assert.Equal(t, want.SystemID, got.SystemID)
	assert.Equal(t, "debug", got.GetLogLevel())
}

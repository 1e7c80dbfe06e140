package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_WithValidConfigFile(t *testing.T) {
	t.Cleanup(viper.Reset)

	dir := t.TempDir()
	cfg := `{
		"logLevel": "debug",
		"store": { "primary": "postgres", "sqlite": { "maxPageCount": 64 } },
		"db": { "host": "10.0.0.1", "port": "5433" },
		"engine": { "enterRadius": 20, "exitRadius": 30 }
	}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte(cfg), 0644))

	err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, "debug", viper.GetString("logLevel"))
	assert.Equal(t, "10.0.0.1", viper.GetString("db.host"))
	assert.Equal(t, "5433", viper.GetString("db.port"))

	store := GetStoreConfig()
	assert.Equal(t, "postgres", store.Primary)
	assert.Equal(t, 64, store.SQLite.MaxPageCount)
	assert.Equal(t, "file", store.Fallback)

	engine := GetEngineConfig()
	assert.Equal(t, 20.0, engine.EnterRadius)
	assert.Equal(t, 30.0, engine.ExitRadius)
	assert.Equal(t, 1000, engine.DecimateCeiling)
}

func TestLoad_DefaultValues(t *testing.T) {
	t.Cleanup(viper.Reset)

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte(`{}`), 0644))

	err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, "info", viper.GetString("logLevel"))
	assert.Equal(t, "./foragelogs", viper.GetString("logsDir"))
	assert.Equal(t, "forage-state", viper.GetString("store.key"))
	assert.Equal(t, "sqlite", viper.GetString("store.primary"))
	assert.Equal(t, "localhost", viper.GetString("db.host"))
	assert.Equal(t, "5432", viper.GetString("db.port"))
	assert.Equal(t, false, viper.GetBool("graylog.enabled"))
	assert.Equal(t, "localhost:12201", viper.GetString("graylog.address"))
	assert.Equal(t, "info", viper.GetString("graylog.level"))
	assert.Equal(t, false, viper.GetBool("otel.enabled"))
	assert.Equal(t, "forage-recorder", viper.GetString("otel.serviceName"))
	assert.Equal(t, true, viper.GetBool("otel.insecure"))

	loc := GetLocationConfig()
	assert.True(t, loc.HighAccuracy)
	assert.Equal(t, 10*time.Second, loc.Timeout)
	assert.Equal(t, 3, loc.MaxRetries)
	assert.Equal(t, time.Second, loc.RetryDelay)

	engine := GetEngineConfig()
	assert.Equal(t, 10.0, engine.EnterRadius)
	assert.Equal(t, 15.0, engine.ExitRadius)
	assert.Equal(t, 2.0, engine.HeadingMinMove)
	assert.Equal(t, 1, engine.AutoSaveEvery)

	assert.Equal(t, 5*time.Second, GetOTelConfig().BatchTimeout)
	assert.Equal(t, 256, GetLiveConfig().BufferSize)
	assert.Equal(t, "tracks", GetInfluxConfig().Bucket)
}

func TestLoad_MissingFile(t *testing.T) {
	t.Cleanup(viper.Reset)

	err := Load("/nonexistent/path")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "error reading config file")
}

func TestValidate_Defaults(t *testing.T) {
	t.Cleanup(viper.Reset)
	LoadDefaults()

	assert.NoError(t, Validate(Get()))
}

func TestValidate_Rejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown primary", func(c *Config) { c.Store.Primary = "cloud" }},
		{"empty key", func(c *Config) { c.Store.Key = "" }},
		{"exit inside enter", func(c *Config) { c.Engine.ExitRadius = c.Engine.EnterRadius }},
		{"zero autosave", func(c *Config) { c.Engine.AutoSaveEvery = 0 }},
		{"bad log level", func(c *Config) { c.LogLevel = "verbose" }},
		{"graylog without address", func(c *Config) { c.Graylog.Enabled = true; c.Graylog.Address = "" }},
		{"bad geocoder url", func(c *Config) { c.Geocode.BaseURL = "not a url" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Cleanup(viper.Reset)
			LoadDefaults()

			cfg := Get()
			tt.mutate(&cfg)
			err := Validate(cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), "invalid config")
		})
	}
}

func TestGetString(t *testing.T) {
	t.Cleanup(viper.Reset)
	viper.Set("testKey", "testValue")
	assert.Equal(t, "testValue", GetString("testKey"))
}

func TestGetInt(t *testing.T) {
	t.Cleanup(viper.Reset)
	viper.Set("testInt", 42)
	assert.Equal(t, 42, GetInt("testInt"))
}

func TestGetBool(t *testing.T) {
	t.Cleanup(viper.Reset)
	viper.Set("testBool", true)
	assert.True(t, GetBool("testBool"))
}

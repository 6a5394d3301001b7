package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFlags(t *testing.T, args ...string) *pflag.FlagSet {
	t.Helper()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterServerFlags(fs)
	require.NoError(t, fs.Parse(args))
	return fs
}

func clearServerEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		EvolutionURLEnv, EvolutionTokenEnv,
		"EVOCONNECT_PORT", "EVOCONNECT_HOST", "EVOCONNECT_RATE_LIMIT",
		"EVOCONNECT_EVOLUTION_URL", "EVOCONNECT_EVOLUTION_TOKEN",
		"EVOCONNECT_REQUEST_TIMEOUT",
	} {
		t.Setenv(key, "")
		require.NoError(t, os.Unsetenv(key))
	}
}

func TestLoadServer_Defaults(t *testing.T) {
	clearServerEnv(t)

	cfg, err := LoadServer(newFlags(t))
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Host)
	assert.Equal(t, 5000, cfg.Port)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Empty(t, cfg.EvolutionURL)
	assert.Zero(t, cfg.RateLimit)
	assert.Equal(t, 30*time.Second, cfg.RequestTimeout)
	assert.Empty(t, cfg.ConfigFile)
}

func TestLoadServer_Environment(t *testing.T) {
	clearServerEnv(t)
	t.Setenv(EvolutionURLEnv, "https://evo.example.com")
	t.Setenv(EvolutionTokenEnv, "secret")
	t.Setenv("EVOCONNECT_PORT", "8080")
	t.Setenv("EVOCONNECT_REQUEST_TIMEOUT", "5s")

	cfg, err := LoadServer(nil)
	require.NoError(t, err)

	assert.Equal(t, "https://evo.example.com", cfg.EvolutionURL)
	assert.Equal(t, "secret", cfg.EvolutionToken)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, 5*time.Second, cfg.RequestTimeout)
}

func TestLoadServer_FlagsOverrideEnvironment(t *testing.T) {
	clearServerEnv(t)
	t.Setenv("EVOCONNECT_PORT", "8080")
	t.Setenv(EvolutionURLEnv, "https://from-env")

	cfg, err := LoadServer(newFlags(t, "--port", "9000", "--evolution-url", "https://from-flag"))
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Port)
	assert.Equal(t, "https://from-flag", cfg.EvolutionURL)
}

func TestLoadServer_ConfigFile(t *testing.T) {
	clearServerEnv(t)
	path := filepath.Join(t.TempDir(), "relay.yaml")
	content := "port: 7000\nrate-limit: 2\nrate-burst: 10\nevolution-url: https://from-file\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))

	t.Setenv(EvolutionURLEnv, "https://from-env")

	cfg, err := LoadServer(newFlags(t, "--config", path))
	require.NoError(t, err)

	assert.Equal(t, 7000, cfg.Port)
	assert.Equal(t, 2.0, cfg.RateLimit)
	assert.Equal(t, 10, cfg.RateBurst)
	assert.Equal(t, "https://from-env", cfg.EvolutionURL, "environment outranks the config file")
	assert.Equal(t, path, cfg.ConfigFile)
}

func TestLoadServer_MissingExplicitFile(t *testing.T) {
	clearServerEnv(t)

	_, err := LoadServer(newFlags(t, "--config", filepath.Join(t.TempDir(), "absent.yaml")))
	assert.Error(t, err)
}

func TestLoadServer_Invalid(t *testing.T) {
	clearServerEnv(t)

	tests := []struct {
		name string
		args []string
	}{
		{"port too large", []string{"--port", "70000"}},
		{"negative rate", []string{"--rate-limit", "-1"}},
		{"zero burst with limit", []string{"--rate-limit", "1", "--rate-burst", "0"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadServer(newFlags(t, tt.args...))
			assert.Error(t, err)
		})
	}
}

func TestRelayConfig(t *testing.T) {
	s := &Server{
		Host:           "127.0.0.1",
		Port:           5001,
		EvolutionURL:   "https://evo",
		EvolutionToken: "key",
		RateLimit:      1.5,
		RateBurst:      3,
		RequestTimeout: time.Second,
	}

	rc := s.RelayConfig()
	assert.Equal(t, "127.0.0.1", rc.Host)
	assert.Equal(t, 5001, rc.Port)
	assert.Equal(t, "https://evo", rc.EvolutionURL)
	assert.Equal(t, "key", rc.EvolutionToken)
	assert.Equal(t, 1.5, rc.RateLimit)
	assert.Equal(t, 3, rc.RateBurst)
	assert.Equal(t, time.Second, rc.RequestTimeout)
}

package configutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

type testConfig struct {
	BaseUrl string            `json:"base_url"`
	Timeout int               `json:"timeout_seconds"`
	Filters map[string]string `json:"filters"`
}

func TestReadConfig(t *testing.T) {
	dir := t.TempDir()
	name := filepath.Join(dir, "config.json5")

	_, err := ReadConfig[testConfig](name)
	require.ErrorIs(t, err, os.ErrNotExist)

	err = os.WriteFile(name, []byte(`{
		// comments are allowed
		base_url: "https://example.org",
		timeout_seconds: 10,
		filters: {scheme: "REGO"},
	}`), 0600)
	require.NoError(t, err)

	cfg, err := ReadConfig[testConfig](name)
	require.NoError(t, err)
	require.Equal(t, "https://example.org", cfg.BaseUrl)
	require.Equal(t, 10, cfg.Timeout)

	err = os.WriteFile(LocalPath(name), []byte(`{timeout_seconds: 30}`), 0600)
	require.NoError(t, err)

	cfg, err = ReadConfig[testConfig](name)
	require.NoError(t, err)
	require.Equal(t, "https://example.org", cfg.BaseUrl)
	require.Equal(t, 30, cfg.Timeout)
	require.Equal(t, "REGO", cfg.Filters["scheme"])
}

func TestReadConfigWithDefaults(t *testing.T) {
	dir := t.TempDir()
	name := filepath.Join(dir, "config.json5")
	err := os.WriteFile(name, []byte(`{base_url: "https://example.org"}`), 0600)
	require.NoError(t, err)

	cfg, err := ReadConfigWithDefaults(name, testConfig{BaseUrl: "ignored", Timeout: 60})
	require.NoError(t, err)
	require.Equal(t, "https://example.org", cfg.BaseUrl)
	require.Equal(t, 60, cfg.Timeout)
}

func TestLocalPath(t *testing.T) {
	require.Equal(t, filepath.Join("a", "b.local.json5"), LocalPath(filepath.Join("a", "b.json5")))
	require.Equal(t, filepath.Join("a", "b.local"), LocalPath(filepath.Join("a", "b")))
}

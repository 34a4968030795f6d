package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bnema/geosite-keys/internal/models"
	"github.com/bnema/geosite-keys/internal/rules"
)

func loadConfig(t *testing.T, path string) {
	t.Helper()
	viper.Reset()
	cfg = models.Config{}
	cfgFile = path
	t.Cleanup(func() {
		cfgFile = ""
		viper.Reset()
	})
	initConfig()
}

func TestConfigOverridesAndDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "geosite_keys.toml")
	body := `[http]
timeout = "5s"

[select]
tags = ["cn"]

[rules]
excluded_tlds = ["hk", ".TW"]
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	loadConfig(t, path)

	assert.Equal(t, models.Duration(5*time.Second), cfg.HTTP.Timeout)
	assert.Equal(t, 3, cfg.HTTP.Retries)
	assert.Equal(t, []string{"cn"}, cfg.Select.Tags)
	assert.Equal(t, []string{"hk", ".TW"}, cfg.Rules.ExcludedTLDs)
	assert.Equal(t, rules.DefaultAdditionalDomains, cfg.Rules.AdditionalDomains)
	assert.Equal(t, "site_cn_binary.dat", cfg.Output.BinaryFile)
	assert.True(t, cfg.Output.Residual)
	assert.Equal(t, []string{"cn"}, cfg.Lookup.PassTLDs)
}

func TestConfigWithoutFile(t *testing.T) {
	loadConfig(t, filepath.Join(t.TempDir(), "missing.toml"))

	assert.Equal(t, models.Duration(30*time.Second), cfg.HTTP.Timeout)
	assert.Equal(t, models.DefaultSelectTags, cfg.Select.Tags)
	assert.Equal(t, rules.DefaultExcludedTLDs, cfg.Rules.ExcludedTLDs)
}

func TestInitWritesLoadableConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "configs", "geosite_keys.toml")
	cfgFile = path
	t.Cleanup(func() { cfgFile = "" })

	require.NoError(t, runInit(initCmd, nil))
	assert.ErrorContains(t, runInit(initCmd, nil), "already exists")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "# geosite-keys configuration")
	assert.Contains(t, string(data), "30s")

	loadConfig(t, path)
	assert.Equal(t, fullDefaultConfig(), cfg)
}

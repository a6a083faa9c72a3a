package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRootCmd_Subcommands(t *testing.T) {
	cmd := NewRootCmd()

	want := []string{"scan", "list", "install", "enable", "disable", "send", "update", "uninstall", "serve"}
	for _, name := range want {
		found := false
		for _, sub := range cmd.Commands() {
			if sub.Name() == name {
				found = true
				break
			}
		}
		assert.True(t, found, "missing subcommand %s", name)
	}
}

func TestLoadAppConfig_Defaults(t *testing.T) {
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	addConfigFlags(flags)
	require.NoError(t, flags.Parse(nil))

	cfg, err := loadAppConfig(flags)
	require.NoError(t, err)
	assert.NotEmpty(t, cfg.Host.PluginsDir)
	assert.Equal(t, "1.0.0", cfg.Host.RequiredABI)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Empty(t, cfg.Host.RegistryURL)
}

func TestLoadAppConfig_Precedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(
		"plugins-dir: /from-file\nlog-format: json\n"), 0o600))
	configFile = path
	t.Cleanup(func() { configFile = "" })

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	addConfigFlags(flags)
	require.NoError(t, flags.Parse([]string{"--cache-dir=/from-flag"}))

	cfg, err := loadAppConfig(flags)
	require.NoError(t, err)

	// File beats flag defaults; an explicitly set flag beats the file.
	assert.Equal(t, "/from-file", cfg.Host.PluginsDir)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, "/from-flag", cfg.Host.CacheDir)
}

func TestLoadAppConfig_MissingFile(t *testing.T) {
	configFile = filepath.Join(t.TempDir(), "absent.yaml")
	t.Cleanup(func() { configFile = "" })

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	addConfigFlags(flags)
	require.NoError(t, flags.Parse(nil))

	_, err := loadAppConfig(flags)
	assert.Error(t, err)
}

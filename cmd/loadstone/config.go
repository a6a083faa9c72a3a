package main

import (
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"

	"github.com/loadstone/loadstone/internal/host"
)

// appConfig is the CLI-level configuration: the host config plus the
// process concerns around it.
type appConfig struct {
	Host        host.Config
	LogFormat   string
	MetricsAddr string
}

// addConfigFlags declares the flags that mirror config file keys. Flag
// defaults come from the XDG-rooted host defaults.
func addConfigFlags(flags *pflag.FlagSet) {
	defaults := host.DefaultConfig()
	flags.String("plugins-dir", defaults.PluginsDir, "plugin install directory")
	flags.String("cache-dir", defaults.CacheDir, "artifact staging directory")
	flags.String("data-dir", defaults.DataDir, "plugin data root")
	flags.String("registry-url", "", "plugin registry base URL")
	flags.String("required-abi", defaults.RequiredABI, "minimum plugin ABI version")
	flags.String("catalog-path", defaults.CatalogPath, "sqlite catalog path (empty disables)")
	flags.String("log-format", "text", "log output format (text or json)")
	flags.String("metrics-addr", "", "observability listen address (empty disables)")
}

// loadAppConfig resolves configuration with precedence: flags set on the
// command line, then the config file, then flag defaults.
func loadAppConfig(flags *pflag.FlagSet) (appConfig, error) {
	k := koanf.New(".")

	if configFile != "" {
		if err := k.Load(file.Provider(configFile), yaml.Parser()); err != nil {
			return appConfig{}, oops.Code("CONFIG_INVALID").
				With("path", configFile).
				Wrap(err)
		}
	}

	if err := k.Load(posflag.Provider(flags, ".", k), nil); err != nil {
		return appConfig{}, oops.Code("CONFIG_INVALID").Wrap(err)
	}

	return appConfig{
		Host: host.Config{
			PluginsDir:  k.String("plugins-dir"),
			CacheDir:    k.String("cache-dir"),
			DataDir:     k.String("data-dir"),
			RegistryURL: k.String("registry-url"),
			HostVersion: version,
			RequiredABI: k.String("required-abi"),
			CatalogPath: k.String("catalog-path"),
		},
		LogFormat:   k.String("log-format"),
		MetricsAddr: k.String("metrics-addr"),
	}, nil
}

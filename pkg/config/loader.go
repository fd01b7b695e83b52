package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/adrg/xdg"
	"github.com/juju/errors"
	"github.com/spf13/viper"
)

// DefaultAppName names the XDG config directory and the env prefix.
const DefaultAppName = "dbauth"

// Loader handles loading the configuration from its sources.
type Loader struct {
	appName    string
	envPrefix  string
	configPath string
}

// NewLoader creates a new configuration loader.
func NewLoader(appName string) *Loader {
	if appName == "" {
		appName = DefaultAppName
	}
	return &Loader{
		appName:   appName,
		envPrefix: strings.ToUpper(strings.ReplaceAll(appName, "-", "_")),
	}
}

// WithConfigPath makes the loader read path instead of the default location.
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// ConfigPath returns the config file path: the explicit path, then
// <PREFIX>_CONFIG, then the XDG config location.
func (l *Loader) ConfigPath() string {
	if l.configPath != "" {
		return l.configPath
	}
	if customPath := os.Getenv(l.envPrefix + "_CONFIG"); customPath != "" {
		return customPath
	}
	return filepath.Join(xdg.ConfigHome, l.appName, "config.yaml")
}

// Load reads the config file, if any, applies environment overrides and
// defaults, and validates the result.
func (l *Loader) Load() (*Config, error) {
	v := viper.New()
	setDefaults(v, Default())

	path := l.ConfigPath()
	if _, err := os.Stat(path); err == nil {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Annotatef(err, "reading config %s", path)
		}
	} else if !os.IsNotExist(err) || l.configPath != "" {
		// An explicitly requested file must exist.
		return nil, errors.Annotatef(err, "reading config %s", path)
	}

	v.SetEnvPrefix(l.envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, errors.Annotate(err, "decoding config")
	}
	if err := config.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	return &config, nil
}

// setDefaults registers every key so environment overrides apply to keys
// absent from the config file.
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("issuer.endpoint", d.Issuer.Endpoint)
	v.SetDefault("issuer.timeout", d.Issuer.Timeout)

	v.SetDefault("refresh.interval", d.Refresh.Interval)
	v.SetDefault("refresh.attempts", d.Refresh.Attempts)
	v.SetDefault("refresh.retry_delay", d.Refresh.RetryDelay)
	v.SetDefault("refresh.max_retry_delay", d.Refresh.MaxRetryDelay)
	v.SetDefault("refresh.request_timeout", d.Refresh.RequestTimeout)

	v.SetDefault("fallback.type", string(d.Fallback.Type))
	v.SetDefault("fallback.dir", d.Fallback.Dir)
	v.SetDefault("fallback.keyring_service", d.Fallback.KeyringService)

	v.SetDefault("logging.level", d.Logging.Level)

	v.SetDefault("metrics.enabled", d.Metrics.Enabled)
	v.SetDefault("metrics.address", d.Metrics.Address)

	v.SetDefault("masking.style", d.Masking.Style)
	v.SetDefault("masking.partial_show_chars", d.Masking.PartialShowChars)
	v.SetDefault("masking.replacement", d.Masking.Replacement)
}

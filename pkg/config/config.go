// Package config loads the dbauth client configuration.
//
// Values are resolved in order of precedence: DBAUTH_* environment variables,
// the YAML config file, then built-in defaults. The config file lives at
// $XDG_CONFIG_HOME/dbauth/config.yaml unless DBAUTH_CONFIG names another path.
package config

import (
	"time"

	"github.com/juju/errors"
	"gopkg.in/yaml.v3"

	"github.com/CliForge/dbauth/pkg/dbauth/storage"
	"github.com/CliForge/dbauth/pkg/dbauth/types"
	"github.com/CliForge/dbauth/pkg/secrets"
)

// Config is the complete client configuration.
type Config struct {
	Issuer   IssuerConfig           `yaml:"issuer" mapstructure:"issuer"`
	Refresh  RefreshConfig          `yaml:"refresh" mapstructure:"refresh"`
	Fallback storage.FallbackConfig `yaml:"fallback" mapstructure:"fallback"`
	Logging  LoggingConfig          `yaml:"logging" mapstructure:"logging"`
	Metrics  MetricsConfig          `yaml:"metrics" mapstructure:"metrics"`
	Masking  secrets.Masking        `yaml:"masking" mapstructure:"masking"`
}

// IssuerConfig configures the issuance service client.
type IssuerConfig struct {
	// Endpoint is the API host or base URL.
	Endpoint string `yaml:"endpoint" mapstructure:"endpoint"`
	// Timeout bounds one HTTP request.
	Timeout time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

// RefreshConfig tunes issuance retries and background refresh.
type RefreshConfig struct {
	Interval       time.Duration `yaml:"interval" mapstructure:"interval"`
	Attempts       int           `yaml:"attempts" mapstructure:"attempts"`
	RetryDelay     time.Duration `yaml:"retry_delay" mapstructure:"retry_delay"`
	MaxRetryDelay  time.Duration `yaml:"max_retry_delay" mapstructure:"max_retry_delay"`
	RequestTimeout time.Duration `yaml:"request_timeout" mapstructure:"request_timeout"`
}

// LoggingConfig configures log levels.
type LoggingConfig struct {
	// Level is a loggo configuration string, e.g. "<root>=INFO;dbauth.signer=DEBUG".
	Level string `yaml:"level" mapstructure:"level"`
}

// MetricsConfig configures the Prometheus collector.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`
	// Address is where the CLI serves /metrics while watching a token.
	Address string `yaml:"address" mapstructure:"address"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Issuer: IssuerConfig{
			Endpoint: "cam.tencentcloudapi.com",
			Timeout:  30 * time.Second,
		},
		Refresh: RefreshConfig{
			Interval:       types.RefreshInterval,
			Attempts:       3,
			RetryDelay:     100 * time.Millisecond,
			MaxRetryDelay:  time.Second,
			RequestTimeout: time.Minute,
		},
		Fallback: storage.FallbackConfig{
			Type:           storage.FallbackTypeFile,
			Dir:            storage.DefaultFallbackDir,
			KeyringService: "dbauth",
		},
		Logging: LoggingConfig{
			Level: "<root>=WARNING",
		},
		Metrics: MetricsConfig{
			Address: "127.0.0.1:9464",
		},
		Masking: *secrets.DefaultMasking(),
	}
}

// YAML renders the configuration as YAML.
func (c *Config) YAML() (string, error) {
	out, err := yaml.Marshal(c)
	if err != nil {
		return "", errors.Annotate(err, "marshalling config")
	}
	return string(out), nil
}

package config

import (
	"fmt"
	"strings"

	"github.com/juju/errors"
	"github.com/juju/loggo/v2"

	"github.com/CliForge/dbauth/pkg/dbauth/storage"
	"github.com/CliForge/dbauth/pkg/dbauth/types"
)

// FieldError reports one invalid configuration key.
type FieldError struct {
	Key     string
	Problem string
}

func (e FieldError) Error() string {
	return e.Key + " " + e.Problem
}

// FieldErrors lists every invalid key of a configuration.
type FieldErrors []FieldError

func (e FieldErrors) Error() string {
	parts := make([]string, len(e))
	for i, fe := range e {
		parts[i] = fe.Error()
	}
	return strings.Join(parts, "; ")
}

// Validate checks the configuration. The returned error satisfies
// errors.Is(err, errors.NotValid) and wraps FieldErrors.
func (c *Config) Validate() error {
	var errs FieldErrors
	add := func(key, problem string) {
		errs = append(errs, FieldError{Key: key, Problem: problem})
	}

	if c.Issuer.Endpoint == "" {
		add("issuer.endpoint", "is required")
	}
	if c.Issuer.Timeout <= 0 {
		add("issuer.timeout", "must be positive")
	}

	r := c.Refresh
	if r.Interval <= 0 || r.Interval > types.MaxDelay {
		add("refresh.interval", fmt.Sprintf("must be in (0, %v]", types.MaxDelay))
	}
	if r.Attempts < 1 {
		add("refresh.attempts", "must be at least 1")
	}
	if r.RetryDelay <= 0 {
		add("refresh.retry_delay", "must be positive")
	}
	if r.MaxRetryDelay < r.RetryDelay {
		add("refresh.max_retry_delay", "must not be less than retry_delay")
	}
	if r.RequestTimeout <= 0 {
		add("refresh.request_timeout", "must be positive")
	}

	switch c.Fallback.Type {
	case storage.FallbackTypeFile, storage.FallbackTypeNone, "":
	case storage.FallbackTypeKeyring, storage.FallbackTypeChain:
		if c.Fallback.KeyringService == "" {
			add("fallback.keyring_service", "is required for keyring fallback")
		}
	default:
		add("fallback.type", fmt.Sprintf("unknown type %q", c.Fallback.Type))
	}

	if _, err := loggo.ParseConfigString(c.Logging.Level); err != nil {
		add("logging.level", err.Error())
	}

	if c.Metrics.Enabled && c.Metrics.Address == "" {
		add("metrics.address", "is required when metrics are enabled")
	}

	if err := c.Masking.Validate(); err != nil {
		add("masking", err.Error())
	}

	if len(errs) > 0 {
		return errors.NewNotValid(errs, "invalid config")
	}
	return nil
}

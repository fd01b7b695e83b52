// Package storage provides the token cache and the fallback password sources.
package storage

import (
	"context"
	"unicode/utf8"

	"github.com/juju/clock"
	"github.com/juju/errors"
	"github.com/juju/loggo/v2"

	"github.com/CliForge/dbauth/pkg/dbauth/types"
)

var logger = loggo.GetLogger("dbauth.storage")

// Cache stores one token per identity key.
type Cache interface {
	// Get returns the token cached under key.
	Get(key string) (types.Token, bool)
	// Set caches token under key.
	Set(key string, token types.Token)
	// Remove drops the token cached under key.
	Remove(key string)
}

// Fallback supplies an operator-provisioned password when the issuer cannot.
type Fallback interface {
	// Lookup returns the fallback token for identity, if one is provisioned.
	Lookup(ctx context.Context, identity types.Identity) (types.Token, bool)
}

// FallbackType names a fallback source.
type FallbackType string

const (
	// FallbackTypeFile reads password files from a directory.
	FallbackTypeFile FallbackType = "file"
	// FallbackTypeKeyring reads passwords from the OS keyring.
	FallbackTypeKeyring FallbackType = "keyring"
	// FallbackTypeChain tries the file source, then the keyring.
	FallbackTypeChain FallbackType = "chain"
	// FallbackTypeNone disables fallback passwords.
	FallbackTypeNone FallbackType = "none"
)

// DefaultFallbackDir is the directory, relative to the working directory,
// holding fallback password files.
const DefaultFallbackDir = "dbauth"

// FallbackConfig represents fallback source configuration.
type FallbackConfig struct {
	// Type is the fallback source type.
	Type FallbackType `yaml:"type" json:"type" mapstructure:"type"`
	// Dir is the password file directory for file fallback.
	Dir string `yaml:"dir,omitempty" json:"dir,omitempty" mapstructure:"dir"`
	// KeyringService is the service name for keyring fallback.
	KeyringService string `yaml:"keyring_service,omitempty" json:"keyring_service,omitempty" mapstructure:"keyring_service"`
}

// NewFallback creates a fallback source based on the configuration. A nil
// config yields the file source rooted at DefaultFallbackDir.
func NewFallback(config *FallbackConfig, clk clock.Clock) (Fallback, error) {
	if config == nil {
		return NewFileFallback(DefaultFallbackDir, clk), nil
	}

	switch config.Type {
	case FallbackTypeFile, "":
		return NewFileFallback(config.Dir, clk), nil
	case FallbackTypeKeyring:
		return NewKeyringFallback(config.KeyringService, clk)
	case FallbackTypeChain:
		kr, err := NewKeyringFallback(config.KeyringService, clk)
		if err != nil {
			return nil, errors.Trace(err)
		}
		return NewChainFallback(NewFileFallback(config.Dir, clk), kr), nil
	case FallbackTypeNone:
		return NoFallback{}, nil
	default:
		return nil, errors.NotValidf("fallback type %q", config.Type)
	}
}

// ChainFallback consults several fallback sources in order.
type ChainFallback struct {
	sources []Fallback
}

// NewChainFallback creates a fallback that returns the first token found.
func NewChainFallback(sources ...Fallback) *ChainFallback {
	return &ChainFallback{
		sources: sources,
	}
}

// Lookup returns the token of the first source that has one.
func (c *ChainFallback) Lookup(ctx context.Context, identity types.Identity) (types.Token, bool) {
	for _, source := range c.sources {
		if token, ok := source.Lookup(ctx, identity); ok {
			return token, true
		}
	}
	return types.Token{}, false
}

// NoFallback never supplies a token.
type NoFallback struct{}

// Lookup always reports no token.
func (NoFallback) Lookup(context.Context, types.Identity) (types.Token, bool) {
	return types.Token{}, false
}

// parsePassword validates fallback content: at most MaxPasswordSize bytes
// holding exactly one non-empty line. source names the content in logs.
func parsePassword(source string, data []byte) (string, bool) {
	size := len(data)
	logger.Infof("fallback source: %s, size: %d", source, size)

	if size == 0 || size > types.MaxPasswordSize {
		logger.Errorf("invalid fallback size %d: %s", size, source)
		return "", false
	}

	lines := splitLines(string(data))
	if len(lines) > 1 {
		logger.Errorf("the fallback has more than one line, skipping: %s", source)
		return "", false
	}

	var password string
	if len(lines) == 1 {
		password = lines[0]
	}
	if password == "" {
		logger.Errorf("the fallback password is empty: %s", source)
		return "", false
	}
	return password, true
}

// splitLines splits text at every line boundary: \n, \r, \r\n, \v, \f, the
// file, group and record separators, NEL and the Unicode line and paragraph
// separators. A trailing boundary does not start a new line.
func splitLines(text string) []string {
	var lines []string
	start := 0
	for i := 0; i < len(text); {
		r, size := utf8.DecodeRuneInString(text[i:])
		if !isLineBreak(r) {
			i += size
			continue
		}
		lines = append(lines, text[start:i])
		i += size
		if r == '\r' && i < len(text) && text[i] == '\n' {
			i++
		}
		start = i
	}
	if start < len(text) {
		lines = append(lines, text[start:])
	}
	return lines
}

func isLineBreak(r rune) bool {
	switch r {
	case '\n', '\r', '\v', '\f', '\x1c', '\x1d', '\x1e', '\u0085', '\u2028', '\u2029':
		return true
	}
	return false
}

// fallbackToken returns a token for password that outlives any refresh delay.
func fallbackToken(password string, clk clock.Clock) types.Token {
	return types.NewToken(password, clk.Now().Add(types.MaxDelay))
}

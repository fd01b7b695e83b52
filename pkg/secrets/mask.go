// Package secrets masks credentials and passwords before they reach logs or
// terminal output.
package secrets

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/juju/errors"
)

// Masking styles.
const (
	StyleFull    = "full"
	StylePartial = "partial"
	StyleHash    = "hash"
)

const defaultReplacement = "***"

// Masking configures how values are masked.
type Masking struct {
	// Style is one of full, partial or hash. Defaults to partial.
	Style string `yaml:"style" json:"style" mapstructure:"style"`
	// PartialShowChars is how many leading characters partial masking keeps.
	PartialShowChars int `yaml:"partial_show_chars" json:"partial_show_chars" mapstructure:"partial_show_chars"`
	// Replacement is appended to or substituted for the hidden part.
	Replacement string `yaml:"replacement" json:"replacement" mapstructure:"replacement"`
}

// DefaultMasking returns the masking applied when none is configured.
func DefaultMasking() *Masking {
	return &Masking{
		Style:            StylePartial,
		PartialShowChars: 6,
		Replacement:      defaultReplacement,
	}
}

// Validate checks the masking configuration.
func (m *Masking) Validate() error {
	switch m.Style {
	case StyleFull, StylePartial, StyleHash, "":
	default:
		return errors.NotValidf("masking style %q", m.Style)
	}
	if m.PartialShowChars < 0 {
		return errors.NotValidf("negative partial_show_chars %d", m.PartialShowChars)
	}
	return nil
}

// MaskValue masks a sensitive value using the configured style. A nil config
// applies DefaultMasking.
func MaskValue(value string, config *Masking) string {
	if config == nil {
		config = DefaultMasking()
	}

	switch config.Style {
	case StyleFull:
		return fullMask(config.Replacement)
	case StyleHash:
		return hashMask(value)
	default:
		return partialMask(value, config.PartialShowChars, config.Replacement)
	}
}

// MaskKey masks an identity key for logging. The key encodes the secret id,
// so only a short prefix is kept.
func MaskKey(key string) string {
	return partialMask(key, 8, defaultReplacement)
}

// MaskSecretID masks a cloud API secret id for logging.
func MaskSecretID(secretID string) string {
	return partialMask(secretID, 4, defaultReplacement)
}

func fullMask(replacement string) string {
	if replacement == "" {
		return defaultReplacement
	}
	return replacement
}

// partialMask shows the first showChars bytes and masks the rest.
func partialMask(value string, showChars int, replacement string) string {
	if replacement == "" {
		replacement = defaultReplacement
	}

	// Too short to reveal anything.
	if len(value) <= showChars {
		return replacement
	}
	return value[:showChars] + replacement
}

// hashMask returns a stable digest prefix so equal values can be correlated.
func hashMask(value string) string {
	hash := sha256.Sum256([]byte(value))
	return "sha256:" + hex.EncodeToString(hash[:])[:16]
}

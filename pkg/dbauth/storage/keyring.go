package storage

import (
	"context"

	"github.com/juju/clock"
	"github.com/juju/errors"
	"github.com/zalando/go-keyring"

	"github.com/CliForge/dbauth/pkg/dbauth/types"
)

// KeyringFallback reads fallback passwords from the OS keyring. Entries are
// stored under the configured service with the identity account as user.
type KeyringFallback struct {
	service string
	clock   clock.Clock
}

// NewKeyringFallback creates a keyring-based fallback.
func NewKeyringFallback(service string, clk clock.Clock) (*KeyringFallback, error) {
	if service == "" {
		return nil, errors.NotValidf("empty keyring service")
	}
	if clk == nil {
		clk = clock.WallClock
	}
	return &KeyringFallback{
		service: service,
		clock:   clk,
	}, nil
}

// Lookup reads the keyring entry for identity.
func (k *KeyringFallback) Lookup(ctx context.Context, identity types.Identity) (types.Token, bool) {
	user := identity.Account()
	data, err := keyring.Get(k.service, user)
	if err != nil {
		if !errors.Is(err, keyring.ErrNotFound) {
			logger.Errorf("failed to read keyring entry %s/%s: %v", k.service, user, err)
		}
		return types.Token{}, false
	}

	password, ok := parsePassword("keyring:"+k.service+"/"+user, []byte(data))
	if !ok {
		return types.Token{}, false
	}
	return fallbackToken(password, k.clock), true
}

// Service returns the keyring service name.
func (k *KeyringFallback) Service() string {
	return k.service
}

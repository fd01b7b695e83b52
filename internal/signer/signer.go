// Package signer obtains auth tokens for one database identity and keeps them
// fresh.
//
// A Signer requests a token from the issuer, decrypts it, caches it under the
// identity key and schedules its own refresh. A scheduled refresh that fails
// with a retryable error re-arms itself after the refresh interval; one that
// fails with an error requiring user attention drops the cached token and
// stops.
package signer

import (
	"context"
	"time"

	"github.com/juju/clock"
	"github.com/juju/errors"
	"github.com/juju/loggo/v2"
	"github.com/juju/retry"
	"golang.org/x/sync/singleflight"

	"github.com/CliForge/dbauth/internal/metrics"
	"github.com/CliForge/dbauth/internal/parser"
	"github.com/CliForge/dbauth/pkg/dbauth/errcode"
	"github.com/CliForge/dbauth/pkg/dbauth/issuer"
	"github.com/CliForge/dbauth/pkg/dbauth/storage"
	"github.com/CliForge/dbauth/pkg/dbauth/types"
	"github.com/CliForge/dbauth/pkg/secrets"
)

const (
	// DefaultAttempts is how many times the issuer is called per build.
	DefaultAttempts = 3
	// DefaultRetryDelay is the delay before the second issuer call. It
	// doubles for every further call.
	DefaultRetryDelay = 100 * time.Millisecond
	// DefaultMaxRetryDelay caps the delay between issuer calls.
	DefaultMaxRetryDelay = time.Second
	// DefaultRequestTimeout bounds one build, retries included.
	DefaultRequestTimeout = time.Minute
)

// Logger is the logging surface the signer needs. loggo.Logger satisfies it.
type Logger interface {
	Debugf(message string, args ...interface{})
	Infof(message string, args ...interface{})
	Warningf(message string, args ...interface{})
	Errorf(message string, args ...interface{})
}

// Scheduler runs keyed one-shot callbacks. *timer.Manager satisfies it.
type Scheduler interface {
	SaveTimer(key string, delay time.Duration, task func())
}

// Config holds the dependencies shared by the signers of one client.
type Config struct {
	// Issuer issues encrypted tokens.
	Issuer issuer.Issuer
	// Cache holds the current token of every identity.
	Cache storage.Cache
	// Fallback supplies a password when issuance fails. Optional.
	Fallback storage.Fallback
	// Timers schedules refreshes.
	Timers Scheduler
	// Group collapses concurrent builds of the same identity. Optional, but
	// signers only share flights when they share the group.
	Group *singleflight.Group
	// Clock stamps expiries and drives retry delays. Defaults to the wall
	// clock.
	Clock clock.Clock
	// Metrics counts lifecycle events. Optional.
	Metrics *metrics.Metrics
	// Logger receives diagnostics. Defaults to the "dbauth.signer" logger.
	Logger Logger

	RefreshInterval time.Duration
	Attempts        int
	RetryDelay      time.Duration
	MaxRetryDelay   time.Duration
	RequestTimeout  time.Duration
}

// Validate checks the required dependencies are present.
func (c Config) Validate() error {
	if c.Issuer == nil {
		return errors.NotValidf("nil Issuer")
	}
	if c.Cache == nil {
		return errors.NotValidf("nil Cache")
	}
	if c.Timers == nil {
		return errors.NotValidf("nil Timers")
	}
	if c.Attempts < 0 {
		return errors.NotValidf("negative Attempts %d", c.Attempts)
	}
	return nil
}

func (c Config) withDefaults() Config {
	if c.Fallback == nil {
		c.Fallback = storage.NoFallback{}
	}
	if c.Group == nil {
		c.Group = &singleflight.Group{}
	}
	if c.Clock == nil {
		c.Clock = clock.WallClock
	}
	if c.Logger == nil {
		c.Logger = loggo.GetLogger("dbauth.signer")
	}
	if c.RefreshInterval <= 0 {
		c.RefreshInterval = types.RefreshInterval
	}
	if c.Attempts == 0 {
		c.Attempts = DefaultAttempts
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = DefaultRetryDelay
	}
	if c.MaxRetryDelay <= 0 {
		c.MaxRetryDelay = DefaultMaxRetryDelay
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = DefaultRequestTimeout
	}
	return c
}

// Signer builds and refreshes the token of one request.
type Signer struct {
	config  Config
	request *types.Request
	key     string
}

// New returns a signer for request.
func New(request *types.Request, config Config) (*Signer, error) {
	if request == nil {
		return nil, errors.NotValidf("nil request")
	}
	if err := config.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	return &Signer{
		config:  config.withDefaults(),
		request: request,
		key:     request.Key(),
	}, nil
}

// Key returns the identity key the signer caches and schedules under.
func (s *Signer) Key() string {
	return s.key
}

// CachedToken returns the cached token of the identity, expired or not.
func (s *Signer) CachedToken() (types.Token, bool) {
	return s.config.Cache.Get(s.key)
}

// BuildAuthToken obtains a token from the issuer, or from the fallback when
// the issuer fails with a retryable error, caches it and schedules its
// refresh. Concurrent builds of the same identity share one flight.
//
// The flight is detached from ctx and bounded by RequestTimeout, so a caller
// that gives up does not abort the build for the others sharing it. The
// caller still returns as soon as ctx is done.
func (s *Signer) BuildAuthToken(ctx context.Context) (types.Token, error) {
	flight := s.config.Group.DoChan(s.key, func() (interface{}, error) {
		flightCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.config.RequestTimeout)
		defer cancel()
		return s.build(flightCtx)
	})

	select {
	case res := <-flight:
		if res.Err != nil {
			return types.Token{}, res.Err
		}
		return res.Val.(types.Token), nil
	case <-ctx.Done():
		return types.Token{}, errcode.Newf(errcode.InternalError,
			"Failed to request AuthToken, error: %v", ctx.Err())
	}
}

func (s *Signer) build(ctx context.Context) (types.Token, error) {
	log := s.config.Logger
	log.Debugf("building authentication token for key %s", secrets.MaskKey(s.key))

	token, err := s.authToken(ctx)
	if err == nil {
		log.Debugf("successfully got the authentication token, expiry: %s",
			token.ExpiresAt().Format("2006-01-02 15:04:05"))
		s.install(token)
		return token, nil
	}

	if errcode.RequiresUserNotification(err) {
		return types.Token{}, err
	}

	fallback, ok := s.config.Fallback.Lookup(ctx, s.request.Identity())
	if !ok {
		s.config.Metrics.Fallback(metrics.FallbackUnavailable)
		return types.Token{}, err
	}
	s.config.Metrics.Fallback(metrics.FallbackUsed)
	log.Infof("using the fallback token for key %s", secrets.MaskKey(s.key))
	s.install(fallback)
	return fallback, nil
}

// authToken requests, decrypts and dates a token.
func (s *Signer) authToken(ctx context.Context) (types.Token, error) {
	resp, err := s.requestAuthToken(ctx)
	if err != nil {
		return types.Token{}, err
	}
	if resp == nil {
		s.config.Logger.Errorf("failed to request AuthToken, response is null")
		return types.Token{}, errcode.New(errcode.InternalError, "Failed to request AuthToken, response is null")
	}

	info, err := parser.Parse(s.request.Identity(), resp.Token)
	if err != nil {
		s.config.Logger.Errorf("failed to decrypt AuthToken, request_id: %s, error: %v", resp.RequestID, err)
		return types.Token{}, errcode.Newf(errcode.InternalError,
			"Failed to decrypt AuthToken, error: %v", err).WithRequestID(resp.RequestID)
	}
	if info.Password == "" {
		s.config.Logger.Errorf("failed to decrypt AuthToken, authToken is empty, request_id: %s", resp.RequestID)
		return types.Token{}, errcode.New(errcode.InternalError,
			"Failed to decrypt AuthToken, authToken is empty").WithRequestID(resp.RequestID)
	}

	return types.NewToken(info.Password, s.expiry(resp.CurrentTime, resp.NextRotationTime)), nil
}

// requestAuthToken calls the issuer, retrying errors that do not require user
// attention.
func (s *Signer) requestAuthToken(ctx context.Context) (*issuer.Response, error) {
	var (
		resp    *issuer.Response
		lastErr error
	)
	err := retry.Call(retry.CallArgs{
		Func: func() error {
			r, err := s.config.Issuer.BuildDataFlowAuthToken(ctx, s.request)
			if err != nil {
				lastErr = classify(err)
				if errcode.RequiresUserNotification(lastErr) {
					s.config.Metrics.IssuanceAttempt(metrics.IssuanceFatal)
					s.config.Logger.Errorf("failed to request AuthToken, error: %v", lastErr)
				} else {
					s.config.Metrics.IssuanceAttempt(metrics.IssuanceRetryable)
				}
				return lastErr
			}
			s.config.Metrics.IssuanceAttempt(metrics.IssuanceSuccess)
			resp = r
			return nil
		},
		IsFatalError: errcode.RequiresUserNotification,
		NotifyFunc: func(err error, attempt int) {
			s.config.Logger.Errorf("failed to request AuthToken (attempt %d), retrying: %v", attempt, err)
		},
		Attempts:    s.config.Attempts,
		Delay:       s.config.RetryDelay,
		MaxDelay:    s.config.MaxRetryDelay,
		BackoffFunc: retry.DoubleDelay,
		Clock:       s.config.Clock,
		Stop:        ctx.Done(),
	})
	if err != nil {
		if lastErr != nil {
			return nil, lastErr
		}
		return nil, errcode.Newf(errcode.InternalError, "Failed to request AuthToken, error: %v", err)
	}
	return resp, nil
}

// classify turns unclassified issuer errors into InternalError.
func classify(err error) error {
	if errcode.Code(err) != "" {
		return err
	}
	return errcode.Newf(errcode.InternalError, "Failed to request AuthToken, error: %v", err)
}

// expiry converts the issuer's token lifetime, in milliseconds, to a local
// deadline. A rotation time in the past yields one refresh interval; a
// lifetime longer than MaxDelay is cut to MaxDelay.
func (s *Signer) expiry(currentTime, nextRotationTime int64) time.Time {
	now := s.config.Clock.Now()
	if nextRotationTime < currentTime {
		return now.Add(s.config.RefreshInterval)
	}
	span := uint64(nextRotationTime) - uint64(currentTime)
	if span > uint64(types.MaxDelay/time.Millisecond) {
		return now.Add(types.MaxDelay)
	}
	return now.Add(time.Duration(span) * time.Millisecond)
}

func (s *Signer) install(token types.Token) {
	s.config.Cache.Set(s.key, token)
	s.schedule(token.ExpiresAt())
}

// schedule arms the refresh for min(time to expiresAt, refresh interval).
func (s *Signer) schedule(expiresAt time.Time) {
	delay := expiresAt.Sub(s.config.Clock.Now())
	if delay > s.config.RefreshInterval {
		delay = s.config.RefreshInterval
	}
	s.config.Logger.Debugf("scheduling next token update for key %s in %v", secrets.MaskKey(s.key), delay)
	s.config.Timers.SaveTimer(s.key, delay, s.refresh)
}

// refresh is the timer callback that renews the cached token.
func (s *Signer) refresh() {
	_, err := s.BuildAuthToken(context.Background())
	if err == nil {
		s.config.Metrics.Refresh(metrics.RefreshSuccess)
		return
	}

	if errcode.RequiresUserNotification(err) {
		s.config.Logger.Errorf("failed to update the authentication token for key %s, error: %v",
			secrets.MaskKey(s.key), err)
		s.config.Cache.Remove(s.key)
		s.config.Metrics.Refresh(metrics.RefreshRemoved)
		return
	}

	s.config.Logger.Errorf("failed to update the authentication token for key %s, retrying, error: %v",
		secrets.MaskKey(s.key), err)
	s.config.Metrics.Refresh(metrics.RefreshRetry)
	s.schedule(s.config.Clock.Now().Add(s.config.RefreshInterval))
}

package dbauth

import (
	"context"
	"sync"
	"time"

	"github.com/juju/clock"
	"github.com/juju/errors"
	"github.com/juju/loggo/v2"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/singleflight"

	"github.com/CliForge/dbauth/internal/metrics"
	"github.com/CliForge/dbauth/internal/signer"
	"github.com/CliForge/dbauth/internal/timer"
	"github.com/CliForge/dbauth/pkg/config"
	"github.com/CliForge/dbauth/pkg/dbauth/errcode"
	"github.com/CliForge/dbauth/pkg/dbauth/issuer"
	"github.com/CliForge/dbauth/pkg/dbauth/storage"
	"github.com/CliForge/dbauth/pkg/secrets"
)

var logger = loggo.GetLogger("dbauth")

// Logger receives client diagnostics. loggo.Logger satisfies it.
type Logger interface {
	Debugf(message string, args ...interface{})
	Infof(message string, args ...interface{})
	Warningf(message string, args ...interface{})
	Errorf(message string, args ...interface{})
}

// Option configures a Client.
type Option func(*Client)

// WithIssuer sets the issuance service client.
func WithIssuer(iss issuer.Issuer) Option {
	return func(c *Client) {
		c.issuer = iss
	}
}

// WithClock sets the clock driving expiries, retries and refreshes.
func WithClock(clk clock.Clock) Option {
	return func(c *Client) {
		c.clock = clk
	}
}

// WithFallback sets the fallback password source. Use storage.NoFallback{}
// to disable fallback passwords.
func WithFallback(fallback storage.Fallback) Option {
	return func(c *Client) {
		c.fallback = fallback
	}
}

// WithRefreshInterval sets the longest time between two refreshes of a token.
func WithRefreshInterval(d time.Duration) Option {
	return func(c *Client) {
		c.refreshInterval = d
	}
}

// WithRetry sets how often issuance is attempted and the backoff between
// attempts.
func WithRetry(attempts int, delay, maxDelay time.Duration) Option {
	return func(c *Client) {
		c.attempts = attempts
		c.retryDelay = delay
		c.maxRetryDelay = maxDelay
	}
}

// WithRequestTimeout bounds each background refresh.
func WithRequestTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.requestTimeout = d
	}
}

// WithRegisterer registers the client metrics with reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(c *Client) {
		c.registerer = reg
	}
}

// WithLogger sets the client logger.
func WithLogger(l Logger) Option {
	return func(c *Client) {
		c.logger = l
	}
}

// Client generates database auth tokens and keeps them fresh. It owns the
// token cache and the refresh timers, so a Client should be long lived and
// shared. Close stops the background refreshes.
type Client struct {
	issuer     issuer.Issuer
	fallback   storage.Fallback
	clock      clock.Clock
	logger     Logger
	registerer prometheus.Registerer

	refreshInterval time.Duration
	attempts        int
	retryDelay      time.Duration
	maxRetryDelay   time.Duration
	requestTimeout  time.Duration

	cache   *storage.MemoryCache
	timers  *timer.Manager
	group   singleflight.Group
	metrics *metrics.Metrics

	closeOnce sync.Once
}

// NewClient creates a client with the default configuration.
func NewClient(opts ...Option) (*Client, error) {
	return newClient(config.Default(), opts)
}

// NewClientFromConfig creates a client from cfg. Options override cfg.
func NewClientFromConfig(cfg *config.Config, opts ...Option) (*Client, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	return newClient(cfg, opts)
}

func newClient(cfg *config.Config, opts []Option) (*Client, error) {
	c := &Client{
		refreshInterval: cfg.Refresh.Interval,
		attempts:        cfg.Refresh.Attempts,
		retryDelay:      cfg.Refresh.RetryDelay,
		maxRetryDelay:   cfg.Refresh.MaxRetryDelay,
		requestTimeout:  cfg.Refresh.RequestTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.clock == nil {
		c.clock = clock.WallClock
	}
	if c.logger == nil {
		c.logger = logger
	}
	if c.issuer == nil {
		c.issuer = issuer.NewCAMClient(issuer.CAMConfig{
			Endpoint: cfg.Issuer.Endpoint,
			Timeout:  cfg.Issuer.Timeout,
		})
	}
	if c.fallback == nil {
		fallback, err := storage.NewFallback(&cfg.Fallback, c.clock)
		if err != nil {
			return nil, errors.Annotate(err, "creating fallback")
		}
		c.fallback = fallback
	}

	c.cache = storage.NewMemoryCache()
	c.timers = timer.NewManager(timer.Config{Clock: c.clock})
	c.metrics = metrics.New()
	if c.registerer != nil {
		if err := c.registerer.Register(c.metrics); err != nil {
			return nil, errors.Annotate(err, "registering metrics")
		}
	}
	return c, nil
}

// GenerateAuthenticationToken returns the database password for req.
//
// A valid cached password is returned without contacting the issuer.
// Otherwise a password is built synchronously. If that fails with an error
// not requiring user attention and an expired password is cached, the expired
// password is returned.
func (c *Client) GenerateAuthenticationToken(ctx context.Context, req *Request) (string, error) {
	if req == nil {
		return "", errcode.New(errcode.SecretNotExist, "The request is nil.")
	}
	if err := req.Validate(); err != nil {
		return "", err
	}

	s, err := signer.New(req, c.signerConfig())
	if err != nil {
		return "", errors.Trace(err)
	}

	cached, ok := s.CachedToken()
	if ok && cached.IsValidAt(c.clock.Now()) {
		c.metrics.CacheRequest(metrics.CacheHit)
		return cached.Secret(), nil
	}
	if ok {
		c.metrics.CacheRequest(metrics.CacheStale)
	} else {
		c.metrics.CacheRequest(metrics.CacheMiss)
	}

	token, err := s.BuildAuthToken(ctx)
	if err == nil {
		return token.Secret(), nil
	}

	c.logger.Errorf("error occurred while generating authentication token for %s (secret id %s): %v",
		req.Identity().Account(), secrets.MaskSecretID(req.Credential.SecretID), err)
	if ok && !errcode.RequiresUserNotification(err) {
		c.logger.Warningf("returning expired token for %s", req.Identity().Account())
		return cached.Secret(), nil
	}
	return "", err
}

// Close stops the background refreshes and unregisters the metrics. Cached
// passwords stay readable.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.timers.Shutdown()
		if c.registerer != nil {
			c.registerer.Unregister(c.metrics)
		}
	})
	return nil
}

func (c *Client) signerConfig() signer.Config {
	return signer.Config{
		Issuer:          c.issuer,
		Cache:           c.cache,
		Fallback:        c.fallback,
		Timers:          c.timers,
		Group:           &c.group,
		Clock:           c.clock,
		Metrics:         c.metrics,
		Logger:          c.logger,
		RefreshInterval: c.refreshInterval,
		Attempts:        c.attempts,
		RetryDelay:      c.retryDelay,
		MaxRetryDelay:   c.maxRetryDelay,
		RequestTimeout:  c.requestTimeout,
	}
}

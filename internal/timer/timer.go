// Package timer schedules delayed, keyed, one-shot callbacks.
//
// At most one timer is pending per key: saving a timer for a key that already
// has one stops and replaces it. Callbacks run on their own goroutine, outside
// the manager lock, and never keep the process alive. Recurring work is done
// by a callback that saves a new timer for its own key.
package timer

import (
	"sync"
	"time"

	"github.com/juju/clock"
	"github.com/juju/loggo/v2"

	"github.com/CliForge/dbauth/pkg/dbauth/types"
)

// Logger is the logging surface the manager needs. loggo.Logger satisfies it.
type Logger interface {
	Debugf(message string, args ...interface{})
	Infof(message string, args ...interface{})
	Warningf(message string, args ...interface{})
}

// Config holds the dependencies of a Manager.
type Config struct {
	// Clock drives the timers. Defaults to the wall clock.
	Clock clock.Clock
	// Logger receives diagnostics. Defaults to the "dbauth.timer" logger.
	Logger Logger
	// MaxDelay is the longest accepted delay. Defaults to types.MaxDelay.
	MaxDelay time.Duration
}

type entry struct {
	timer clock.Timer
}

// Manager owns the pending timers, keyed by identity key.
type Manager struct {
	clock    clock.Clock
	logger   Logger
	maxDelay time.Duration

	mu     sync.Mutex
	timers map[string]*entry
	closed bool
}

// NewManager creates a timer manager.
func NewManager(config Config) *Manager {
	if config.Clock == nil {
		config.Clock = clock.WallClock
	}
	if config.Logger == nil {
		config.Logger = loggo.GetLogger("dbauth.timer")
	}
	if config.MaxDelay <= 0 {
		config.MaxDelay = types.MaxDelay
	}
	return &Manager{
		clock:    config.Clock,
		logger:   config.Logger,
		maxDelay: config.MaxDelay,
		timers:   make(map[string]*entry),
	}
}

// SaveTimer runs task once after delay. An existing timer for key is stopped
// and replaced. Empty keys, delays outside (0, MaxDelay] and calls after
// Shutdown are logged and ignored.
func (m *Manager) SaveTimer(key string, delay time.Duration, task func()) {
	if key == "" {
		m.logger.Warningf("key is empty, skipping timer creation")
		return
	}
	if delay <= 0 || delay > m.maxDelay {
		m.logger.Warningf("invalid delay: %v, skipping timer creation", delay)
		return
	}
	if task == nil {
		m.logger.Warningf("task is nil, skipping timer creation")
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		m.logger.Warningf("timer manager is shut down, skipping timer creation")
		return
	}

	if old, ok := m.timers[key]; ok {
		old.timer.Stop()
		delete(m.timers, key)
	}

	e := &entry{}
	// fire blocks on m.mu until e is registered.
	e.timer = m.clock.AfterFunc(delay, func() {
		m.fire(key, e, task)
	})
	m.timers[key] = e
}

// fire runs task if e is still the timer registered for key.
func (m *Manager) fire(key string, e *entry, task func()) {
	m.mu.Lock()
	if current, ok := m.timers[key]; !ok || current != e {
		m.mu.Unlock()
		return
	}
	delete(m.timers, key)
	m.mu.Unlock()

	task()
}

// CancelTimer stops and removes the timer for key.
func (m *Manager) CancelTimer(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.timers[key]
	if !ok {
		m.logger.Warningf("No timer found for key: %s", key)
		return
	}
	e.timer.Stop()
	delete(m.timers, key)
	m.logger.Infof("Timer cancelled for key: %s", key)
}

// Has reports whether a timer is pending for key.
func (m *Manager) Has(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.timers[key]
	return ok
}

// Len returns the number of pending timers.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.timers)
}

// Shutdown stops every pending timer. No callback starts after Shutdown
// returns and later SaveTimer calls are ignored.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	for _, e := range m.timers {
		e.timer.Stop()
	}
	m.timers = make(map[string]*entry)
	m.closed = true
	m.mu.Unlock()

	m.logger.Infof("TimerManager shutdown complete.")
}

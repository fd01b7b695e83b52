package timer

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/juju/clock"
	"github.com/juju/clock/testclock"
	"github.com/juju/loggo/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/CliForge/dbauth/pkg/dbauth/types"
)

const shortWait = 50 * time.Millisecond

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newTestManager(t *testing.T) (*Manager, *testclock.Clock, *loggo.TestWriter) {
	t.Helper()
	clk := testclock.NewClock(time.Now())
	writer := &loggo.TestWriter{}
	ctx := loggo.NewContext(loggo.TRACE)
	require.NoError(t, ctx.AddWriter("test", writer))

	m := NewManager(Config{Clock: clk, Logger: ctx.GetLogger("dbauth.timer")})
	t.Cleanup(m.Shutdown)
	return m, clk, writer
}

func waitForCalls(t *testing.T, calls <-chan struct{}, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-calls:
		case <-time.After(5 * time.Second):
			t.Fatalf("timed out waiting for call %d", i+1)
		}
	}
}

func TestSaveTimer(t *testing.T) {
	m, _, _ := newTestManager(t)

	m.SaveTimer("test_key", time.Second, func() {})
	assert.True(t, m.Has("test_key"))
	assert.Equal(t, 1, m.Len())
}

func TestSaveTimerRejectsInvalidInput(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		delay time.Duration
		task  func()
	}{
		{name: "empty key", key: "", delay: time.Second, task: func() {}},
		{name: "negative delay", key: "test_key", delay: -time.Millisecond, task: func() {}},
		{name: "zero delay", key: "test_key", delay: 0, task: func() {}},
		{name: "delay above max", key: "test_key", delay: types.MaxDelay + time.Millisecond, task: func() {}},
		{name: "nil task", key: "test_key", delay: time.Second, task: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, _, writer := newTestManager(t)

			m.SaveTimer(tt.key, tt.delay, tt.task)
			assert.Equal(t, 0, m.Len())
			require.NotEmpty(t, writer.Log())
			assert.Equal(t, loggo.WARNING, writer.Log()[0].Level)
		})
	}
}

func TestSaveTimerAcceptsMaxDelay(t *testing.T) {
	m, _, _ := newTestManager(t)

	m.SaveTimer("test_key", types.MaxDelay, func() {})
	assert.True(t, m.Has("test_key"))
}

func TestCancelTimer(t *testing.T) {
	m, clk, _ := newTestManager(t)

	var fired int32
	m.SaveTimer("test_key", time.Second, func() { atomic.AddInt32(&fired, 1) })
	m.CancelTimer("test_key")
	assert.False(t, m.Has("test_key"))

	clk.Advance(2 * time.Second)
	time.Sleep(shortWait)
	assert.Equal(t, int32(0), atomic.LoadInt32(&fired))
}

func TestCancelMissingTimerLogs(t *testing.T) {
	m, _, writer := newTestManager(t)

	m.CancelTimer("nonexistent_key")

	log := writer.Log()
	require.Len(t, log, 1)
	assert.Equal(t, loggo.WARNING, log[0].Level)
	assert.Contains(t, log[0].Message, "No timer found for key: nonexistent_key")
}

func TestExecutesTaskAfterDelay(t *testing.T) {
	m, clk, _ := newTestManager(t)

	calls := make(chan struct{}, 10)
	task := func() { calls <- struct{}{} }

	m.SaveTimer("test_key", time.Second, task)
	// Saving again replaces the first timer rather than stacking.
	m.SaveTimer("test_key", time.Second, task)
	assert.Equal(t, 1, m.Len())

	require.NoError(t, clk.WaitAdvance(time.Second, shortWait, 1))
	waitForCalls(t, calls, 1)

	time.Sleep(shortWait)
	assert.Len(t, calls, 0, "task must run exactly once")
	assert.False(t, m.Has("test_key"), "a fired timer is removed")
}

func TestRescheduleFromCallback(t *testing.T) {
	m, clk, _ := newTestManager(t)

	var counter int32
	calls := make(chan struct{}, 10)
	var task func()
	task = func() {
		if atomic.AddInt32(&counter, 1) < 3 {
			m.SaveTimer("key", time.Second, task)
		}
		calls <- struct{}{}
	}
	m.SaveTimer("key", time.Second, task)

	for i := 0; i < 3; i++ {
		require.NoError(t, clk.WaitAdvance(time.Second, time.Second, 1))
		waitForCalls(t, calls, 1)
	}
	assert.Equal(t, int32(3), atomic.LoadInt32(&counter))
	assert.False(t, m.Has("key"))
}

func TestShutdown(t *testing.T) {
	m, clk, _ := newTestManager(t)

	var fired int32
	for _, key := range []string{"a", "b", "c"} {
		m.SaveTimer(key, time.Second, func() { atomic.AddInt32(&fired, 1) })
	}
	require.Equal(t, 3, m.Len())

	m.Shutdown()
	assert.Equal(t, 0, m.Len())

	clk.Advance(time.Minute)
	time.Sleep(shortWait)
	assert.Equal(t, int32(0), atomic.LoadInt32(&fired))

	m.SaveTimer("d", time.Second, func() { atomic.AddInt32(&fired, 1) })
	assert.Equal(t, 0, m.Len(), "SaveTimer after Shutdown must be ignored")
}

func TestStaleFireIsIgnored(t *testing.T) {
	m, _, _ := newTestManager(t)

	m.SaveTimer("key", time.Second, func() {})
	stale := &entry{}

	var ran bool
	m.fire("key", stale, func() { ran = true })
	assert.False(t, ran, "a replaced timer must not run its task")
	assert.True(t, m.Has("key"), "the registered timer must survive a stale fire")
}

func TestWallClockDefault(t *testing.T) {
	m := NewManager(Config{})
	defer m.Shutdown()
	assert.Equal(t, clock.WallClock, m.clock)

	done := make(chan struct{})
	m.SaveTimer("wall", 10*time.Millisecond, func() { close(done) })
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("wall clock timer did not fire")
	}
}

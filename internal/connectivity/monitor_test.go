package connectivity

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prudhvinik1/floorsync/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProber struct {
	mu   sync.Mutex
	fail bool
}

func (p *fakeProber) Probe(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail {
		return errors.New("probe failed")
	}
	return nil
}

func (p *fakeProber) setFail(fail bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fail = fail
}

// TestMonitor_OfflineOnlyAtCeiling verifies the monitor transitions to
// offline at exactly the 10th consecutive heartbeat failure, staying degraded
// (and online) before that.
func TestMonitor_OfflineOnlyAtCeiling(t *testing.T) {
	prober := &fakeProber{fail: true}
	m := New(prober, time.Minute, 10, Hooks{}, nil)
	m.mu.Lock()
	m.state = models.ConnOnline
	m.mu.Unlock()

	ctx := context.Background()
	for i := 1; i <= 9; i++ {
		m.HeartbeatOnce(ctx)
		require.Equal(t, models.ConnDegraded, m.State().State, "failure %d should leave the monitor degraded", i)
		require.True(t, m.Online(), "degraded still counts as online")
	}

	m.HeartbeatOnce(ctx)
	assert.Equal(t, models.ConnOffline, m.State().State, "10th failure goes offline")
	assert.False(t, m.Online())
	assert.Equal(t, 10, m.State().RetryAttempts)
}

// TestMonitor_SuccessResetsCounter verifies 9 failures followed by one
// success resets the counter and stays online.
func TestMonitor_SuccessResetsCounter(t *testing.T) {
	prober := &fakeProber{fail: true}
	m := New(prober, time.Minute, 10, Hooks{}, nil)
	m.mu.Lock()
	m.state = models.ConnOnline
	m.mu.Unlock()

	ctx := context.Background()
	for i := 0; i < 9; i++ {
		m.HeartbeatOnce(ctx)
	}
	require.Equal(t, 9, m.State().RetryAttempts)

	prober.setFail(false)
	m.HeartbeatOnce(ctx)

	state := m.State()
	assert.Equal(t, models.ConnOnline, state.State)
	assert.Equal(t, 0, state.RetryAttempts)
	assert.NotZero(t, state.LastHeartbeatMillis)
}

// TestMonitor_HeartbeatSuccessTriggersDrain verifies a successful heartbeat
// drains a non-empty queue and leaves an empty one alone.
func TestMonitor_HeartbeatSuccessTriggersDrain(t *testing.T) {
	var drains atomic.Int32
	var queueLen atomic.Int32
	queueLen.Store(1)
	m := New(&fakeProber{}, time.Minute, 10, Hooks{
		Drain:    func() { drains.Add(1) },
		QueueLen: func() int { return int(queueLen.Load()) },
	}, nil)
	m.Start(true)
	defer m.Stop()

	m.HeartbeatOnce(context.Background())
	require.Eventually(t, func() bool { return drains.Load() == 1 }, time.Second, time.Millisecond)

	queueLen.Store(0)
	m.HeartbeatOnce(context.Background())
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(1), drains.Load(), "empty queue should not trigger a drain")
}

// TestMonitor_SlowDrainDoesNotBlockHeartbeat verifies the drain hook runs off
// the heartbeat goroutine: a drain that takes arbitrarily long never delays
// the next probe cycle.
func TestMonitor_SlowDrainDoesNotBlockHeartbeat(t *testing.T) {
	release := make(chan struct{})
	var drains atomic.Int32
	m := New(&fakeProber{}, time.Minute, 10, Hooks{
		Drain: func() {
			drains.Add(1)
			<-release
		},
		QueueLen: func() int { return 1 },
	}, nil)
	m.Start(true)
	defer m.Stop()

	start := time.Now()
	m.HeartbeatOnce(context.Background())
	m.HeartbeatOnce(context.Background())
	assert.Less(t, time.Since(start), 500*time.Millisecond, "heartbeats must not wait on the drain")

	require.Eventually(t, func() bool { return drains.Load() == 2 }, time.Second, time.Millisecond)
	close(release)
}

// TestMonitor_NetworkSignals verifies the forced transitions from platform
// network events.
func TestMonitor_NetworkSignals(t *testing.T) {
	var resyncs atomic.Int32
	m := New(&fakeProber{fail: true}, time.Minute, 10, Hooks{
		Resync: func() { resyncs.Add(1) },
	}, nil)
	m.mu.Lock()
	m.state = models.ConnOnline
	m.retryAttempts = 7
	m.mu.Unlock()

	m.ConnectivityChanged(false)
	assert.Equal(t, models.ConnOffline, m.State().State, "network-lost forces offline immediately")

	m.ConnectivityChanged(true)
	state := m.State()
	assert.Equal(t, models.ConnOnline, state.State)
	assert.Equal(t, 0, state.RetryAttempts, "restore resets the retry counter")
	require.Eventually(t, func() bool { return resyncs.Load() == 1 }, time.Second, time.Millisecond,
		"restore triggers a full resync")
}

// TestMonitor_ForegroundResyncsOnlyWhileOnline covers the visibility-restore
// signal.
func TestMonitor_ForegroundResyncsOnlyWhileOnline(t *testing.T) {
	var resyncs atomic.Int32
	m := New(&fakeProber{}, time.Minute, 10, Hooks{
		Resync: func() { resyncs.Add(1) },
	}, nil)

	m.mu.Lock()
	m.state = models.ConnOffline
	m.mu.Unlock()
	m.Foreground()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(0), resyncs.Load(), "foreground while offline is ignored")

	m.mu.Lock()
	m.state = models.ConnOnline
	m.mu.Unlock()
	m.Foreground()
	require.Eventually(t, func() bool { return resyncs.Load() == 1 }, time.Second, time.Millisecond)
}

// TestMonitor_ShutdownFlushesPendingQueue covers the teardown signal.
func TestMonitor_ShutdownFlushesPendingQueue(t *testing.T) {
	flushes := 0
	queueLen := 2
	m := New(&fakeProber{}, time.Minute, 10, Hooks{
		Flush:    func() { flushes++ },
		QueueLen: func() int { return queueLen },
	}, nil)

	m.Shutdown()
	assert.Equal(t, 1, flushes)

	queueLen = 0
	m.Shutdown()
	assert.Equal(t, 1, flushes, "empty queue should not flush")
}

// Package connectivity derives a single online/offline signal from a
// periodic liveness probe plus platform network events.
package connectivity

import (
	"context"
	"log"
	"os"
	"sync"
	"time"

	"github.com/prudhvinik1/floorsync/internal/models"
	"github.com/prudhvinik1/floorsync/internal/remote"
)

const (
	// DefaultInterval is how often the heartbeat fires while running.
	DefaultInterval = 30 * time.Second

	// DefaultCeiling is how many consecutive heartbeat failures are
	// tolerated before the monitor goes offline. Until then the state is
	// degraded but still considered online, so a single blip never stops
	// pushes.
	DefaultCeiling = 10
)

// Hooks are the actions the monitor triggers. All may be nil.
type Hooks struct {
	// Drain is called after a heartbeat success while the queue is
	// non-empty.
	Drain func()
	// Resync is called on a restored-connectivity signal and on a
	// foreground signal while online.
	Resync func()
	// Flush is called on the shutdown signal while the queue is non-empty.
	// Fire-and-forget by contract.
	Flush func()
	// QueueLen reports the pending queue depth.
	QueueLen func() int
}

// Monitor is the connectivity state machine:
// unknown -> online -> degraded -> offline.
type Monitor struct {
	prober   remote.Prober
	interval time.Duration
	ceiling  int
	hooks    Hooks
	logger   *log.Logger

	mu            sync.Mutex
	state         models.ConnState
	retryAttempts int
	lastHeartbeat time.Time

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

func New(prober remote.Prober, interval time.Duration, ceiling int, hooks Hooks, logger *log.Logger) *Monitor {
	if logger == nil {
		logger = log.New(os.Stderr, "[connectivity] ", log.LstdFlags)
	}
	if interval <= 0 {
		interval = DefaultInterval
	}
	if ceiling <= 0 {
		ceiling = DefaultCeiling
	}
	return &Monitor{
		prober:   prober,
		interval: interval,
		ceiling:  ceiling,
		hooks:    hooks,
		logger:   logger,
		state:    models.ConnUnknown,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start sets the initial state from the platform's view of the network and
// launches the heartbeat loop.
func (m *Monitor) Start(online bool) {
	m.mu.Lock()
	if online {
		m.state = models.ConnOnline
	} else {
		m.state = models.ConnOffline
	}
	m.mu.Unlock()

	go m.run()
}

func (m *Monitor) Stop() {
	m.stopOnce.Do(func() { close(m.stop) })
	<-m.done
}

func (m *Monitor) run() {
	defer close(m.done)
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), m.interval)
			m.HeartbeatOnce(ctx)
			cancel()
		}
	}
}

// HeartbeatOnce runs a single heartbeat cycle: probe, update the state
// machine, and trigger a drain if the probe succeeded and work is pending.
func (m *Monitor) HeartbeatOnce(ctx context.Context) {
	err := m.prober.Probe(ctx)

	m.mu.Lock()
	if err != nil {
		m.retryAttempts++
		if m.retryAttempts >= m.ceiling {
			if m.state != models.ConnOffline {
				m.logger.Printf("Heartbeat failed %d consecutive times, going offline: %v", m.retryAttempts, err)
			}
			m.state = models.ConnOffline
		} else if m.state != models.ConnOffline {
			// A failure while already offline never upgrades the state.
			m.state = models.ConnDegraded
		}
		m.mu.Unlock()
		return
	}

	wasOffline := m.state == models.ConnOffline
	m.retryAttempts = 0
	m.state = models.ConnOnline
	m.lastHeartbeat = time.Now()
	m.mu.Unlock()

	if wasOffline {
		m.logger.Printf("Heartbeat succeeded, back online")
	}
	// Dispatched off the heartbeat goroutine so a long drain never delays
	// the next probe; the engine's in-progress guard absorbs any overlap.
	if m.hooks.Drain != nil && m.hooks.QueueLen != nil && m.hooks.QueueLen() > 0 {
		go m.hooks.Drain()
	}
}

// Online reports whether pushes should be attempted. Degraded still counts:
// the monitor only flips offline after the retry ceiling.
func (m *Monitor) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state == models.ConnOnline || m.state == models.ConnDegraded
}

// State returns the current connectivity snapshot.
func (m *Monitor) State() models.Connectivity {
	m.mu.Lock()
	defer m.mu.Unlock()
	return models.Connectivity{
		State:               m.state,
		Online:              m.state == models.ConnOnline || m.state == models.ConnDegraded,
		RetryAttempts:       m.retryAttempts,
		LastHeartbeatMillis: m.lastHeartbeat.UnixMilli(),
	}
}

// ConnectivityChanged handles the platform's network restored/lost signal,
// independent of heartbeat state.
func (m *Monitor) ConnectivityChanged(online bool) {
	m.mu.Lock()
	if online {
		m.state = models.ConnOnline
		m.retryAttempts = 0
	} else {
		m.state = models.ConnOffline
	}
	m.mu.Unlock()

	if online {
		m.logger.Printf("Network restored, starting full resync")
		if m.hooks.Resync != nil {
			go m.hooks.Resync()
		}
	} else {
		m.logger.Printf("Network lost, going offline")
	}
}

// Foreground handles the visibility-restored signal. While online it triggers
// a full resync to cover heartbeats missed in the background.
func (m *Monitor) Foreground() {
	if m.Online() && m.hooks.Resync != nil {
		go m.hooks.Resync()
	}
}

// Shutdown handles the application-teardown signal with a best-effort
// one-way flush of any pending operations.
func (m *Monitor) Shutdown() {
	if m.hooks.Flush != nil && m.hooks.QueueLen != nil && m.hooks.QueueLen() > 0 {
		m.hooks.Flush()
	}
}

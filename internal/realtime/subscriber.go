// Package realtime merges remote change notifications into the local record
// store, independently of the sync queue. It is the path by which changes
// originated elsewhere reach this device without a full resync.
package realtime

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/prudhvinik1/floorsync/internal/localstore"
	"github.com/prudhvinik1/floorsync/internal/models"
	"github.com/prudhvinik1/floorsync/internal/remote"
)

const (
	// DefaultBaseDelay is the first reconnect delay after a subscription
	// failure.
	DefaultBaseDelay = time.Second

	// DefaultMaxDelay caps the exponential reconnect backoff.
	DefaultMaxDelay = 30 * time.Second

	// DefaultMaxAttempts is how many reconnects are tried before the
	// subscriber gives up and waits for ForceReconnect.
	DefaultMaxAttempts = 5
)

// ConnState is a per-table subscription lifecycle position.
type ConnState string

const (
	StateDisconnected ConnState = "disconnected"
	StateConnecting   ConnState = "connecting"
	StateSubscribed   ConnState = "subscribed"
)

// Params wires a Subscriber. Feed, Store and Remote are required.
type Params struct {
	Feed   remote.ChangeFeed
	Store  *localstore.Store
	Remote remote.Store
	// LocalUserID suppresses user-facing notifications for echoes of this
	// user's own writes.
	LocalUserID string
	Logger      *log.Logger

	BaseDelay   time.Duration
	MaxDelay    time.Duration
	MaxAttempts int
}

type Subscriber struct {
	feed        remote.ChangeFeed
	store       *localstore.Store
	remote      remote.Store
	localUserID string
	logger      *log.Logger

	baseDelay   time.Duration
	maxDelay    time.Duration
	maxAttempts int

	mu        sync.Mutex
	states    map[models.Table]ConnState
	retry     map[models.Table]chan struct{}
	listeners []func(models.RealtimeUpdate)

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(p Params) *Subscriber {
	if p.Logger == nil {
		p.Logger = log.New(os.Stderr, "[realtime] ", log.LstdFlags)
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = DefaultBaseDelay
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = DefaultMaxDelay
	}
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = DefaultMaxAttempts
	}
	return &Subscriber{
		feed:        p.Feed,
		store:       p.Store,
		remote:      p.Remote,
		localUserID: p.LocalUserID,
		logger:      p.Logger,
		baseDelay:   p.BaseDelay,
		maxDelay:    p.MaxDelay,
		maxAttempts: p.MaxAttempts,
		states:      make(map[models.Table]ConnState),
		retry:       make(map[models.Table]chan struct{}),
	}
}

// Start opens one subscription per table and keeps each alive with
// exponential-backoff reconnects.
func (s *Subscriber) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	for _, table := range models.AllTables() {
		s.wg.Add(1)
		go func(table models.Table) {
			defer s.wg.Done()
			s.run(ctx, table)
		}(table)
	}
}

func (s *Subscriber) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

// State reports the lifecycle position of a table's subscription.
func (s *Subscriber) State(table models.Table) ConnState {
	s.mu.Lock()
	defer s.mu.Unlock()
	if state, ok := s.states[table]; ok {
		return state
	}
	return StateDisconnected
}

// ForceReconnect resets the attempt counters and wakes any table that gave
// up, retrying from the base delay.
func (s *Subscriber) ForceReconnect() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for table, ch := range s.retry {
		close(ch)
		delete(s.retry, table)
	}
}

// OnUpdate registers an observation-only listener for merged remote changes.
func (s *Subscriber) OnUpdate(fn func(models.RealtimeUpdate)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

func (s *Subscriber) run(ctx context.Context, table models.Table) {
	attempts := 0
	for {
		if ctx.Err() != nil {
			s.setState(table, StateDisconnected)
			return
		}

		s.setState(table, StateConnecting)
		sub, err := s.feed.Subscribe(ctx, table)
		if err != nil {
			attempts++
			if attempts > s.maxAttempts {
				s.logger.Printf("Giving up on %s after %d reconnect attempts: %v", table.Channel(), s.maxAttempts, err)
				// Register the wake-up channel before announcing the
				// disconnect so ForceReconnect cannot slip between the two.
				retry := s.registerRetry(table)
				s.setState(table, StateDisconnected)
				select {
				case <-ctx.Done():
					return
				case <-retry:
				}
				attempts = 0
				continue
			}
			delay := BackoffDelay(attempts, s.baseDelay, s.maxDelay)
			s.logger.Printf("Subscribe to %s failed (attempt %d), retrying in %s: %v", table.Channel(), attempts, delay, err)
			select {
			case <-ctx.Done():
				s.setState(table, StateDisconnected)
				return
			case <-time.After(delay):
			}
			continue
		}

		s.setState(table, StateSubscribed)
		attempts = 0
	consume:
		for {
			select {
			case <-ctx.Done():
				sub.Close()
				s.setState(table, StateDisconnected)
				return
			case event, ok := <-sub.Events():
				if !ok {
					break consume
				}
				s.Apply(ctx, event)
			}
		}
		sub.Close()
		if ctx.Err() != nil {
			s.setState(table, StateDisconnected)
			return
		}
		s.logger.Printf("Subscription to %s dropped: %v", table.Channel(), sub.Err())
		attempts = 1
	}
}

func (s *Subscriber) registerRetry(table models.Table) <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch := make(chan struct{})
	s.retry[table] = ch
	return ch
}

// Apply merges a single change notification into the local cache. Any
// transform failure or unrecognized event kind triggers a full reload of the
// table as the safe fallback.
func (s *Subscriber) Apply(ctx context.Context, event models.ChangeEvent) {
	update := models.RealtimeUpdate{
		Table:        event.Table,
		Kind:         event.Kind,
		TimestampISO: event.Timestamp.UTC().Format(time.RFC3339),
	}

	switch event.Kind {
	case models.EventInsert, models.EventUpdate:
		rec, err := models.DecodeRecord(event.Table, event.NewRecord)
		if err != nil {
			s.fallbackReload(ctx, event.Table, err)
			return
		}
		if err := s.store.Upsert(event.Table, rec); err != nil {
			s.fallbackReload(ctx, event.Table, err)
			return
		}
		update.NewRecord = rec
	case models.EventDelete:
		rec, err := models.DecodeRecord(event.Table, event.OldRecord)
		if err != nil {
			s.fallbackReload(ctx, event.Table, err)
			return
		}
		if err := s.store.Delete(event.Table, rec.RecordID()); err != nil {
			s.fallbackReload(ctx, event.Table, err)
			return
		}
		update.OldRecord = rec
	default:
		s.fallbackReload(ctx, event.Table, fmt.Errorf("unrecognized event kind %q", event.Kind))
		return
	}

	if event.DeviceID != "" {
		if err := s.store.MarkDeviceSeen(event.DeviceID, event.Timestamp); err != nil {
			s.logger.Printf("Failed to record device %s: %v", event.DeviceID, err)
		}
	}

	// The echo of a local write is already reflected locally; merging it is
	// harmless but notifying the user about it is noise.
	if event.UserID != "" && event.UserID == s.localUserID {
		return
	}
	s.emit(update)
}

func (s *Subscriber) fallbackReload(ctx context.Context, table models.Table, cause error) {
	s.logger.Printf("Falling back to full reload of %s: %v", table, cause)
	records, err := s.remote.LoadAll(ctx, table)
	if err != nil {
		s.logger.Printf("Fallback reload of %s failed: %v", table, err)
		return
	}
	if err := s.store.ReplaceTable(table, records); err != nil {
		s.logger.Printf("Failed to replace table %s after fallback reload: %v", table, err)
	}
}

func (s *Subscriber) setState(table models.Table, state ConnState) {
	s.mu.Lock()
	s.states[table] = state
	s.mu.Unlock()
}

func (s *Subscriber) emit(update models.RealtimeUpdate) {
	s.mu.Lock()
	listeners := make([]func(models.RealtimeUpdate), len(s.listeners))
	copy(listeners, s.listeners)
	s.mu.Unlock()
	for _, fn := range listeners {
		fn(update)
	}
}

// BackoffDelay returns the reconnect delay for the given 1-based attempt:
// base, base*2, base*4, ... capped at max.
func BackoffDelay(attempt int, base, max time.Duration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := base
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= max {
			return max
		}
	}
	if delay > max {
		return max
	}
	return delay
}

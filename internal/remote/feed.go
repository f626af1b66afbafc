package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"sync"

	"github.com/prudhvinik1/floorsync/internal/models"
	"github.com/redis/go-redis/v9"
)

// RedisFeed is the production change feed: one pub/sub channel per table,
// named <table>_changes. Events are JSON-marshalled ChangeEvents.
type RedisFeed struct {
	client *redis.Client
	logger *log.Logger
}

func NewRedisFeed(client *redis.Client, logger *log.Logger) *RedisFeed {
	if logger == nil {
		logger = log.New(os.Stderr, "[feed] ", log.LstdFlags)
	}
	return &RedisFeed{client: client, logger: logger}
}

// Publish announces a change on the event's table channel.
func (f *RedisFeed) Publish(ctx context.Context, event models.ChangeEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal change event: %w", err)
	}
	if err := f.client.Publish(ctx, event.Table.Channel(), data).Err(); err != nil {
		return fmt.Errorf("failed to publish change event: %w", err)
	}
	return nil
}

// Subscribe opens a live subscription to the table's channel. The returned
// subscription's Events channel closes when the underlying pub/sub drops or
// the context is cancelled.
func (f *RedisFeed) Subscribe(ctx context.Context, table models.Table) (Subscription, error) {
	if !table.Valid() {
		return nil, fmt.Errorf("%w: %q", models.ErrUnknownTable, table)
	}

	pubsub := f.client.Subscribe(ctx, table.Channel())

	// Force the subscribe round trip so failures surface here instead of
	// silently on the event channel.
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", table.Channel(), err)
	}

	sub := &redisSubscription{
		pubsub: pubsub,
		events: make(chan models.ChangeEvent),
	}
	go sub.consume(ctx, table, f.logger)
	return sub, nil
}

type redisSubscription struct {
	pubsub *redis.PubSub
	events chan models.ChangeEvent

	mu  sync.Mutex
	err error
}

func (s *redisSubscription) Events() <-chan models.ChangeEvent { return s.events }

func (s *redisSubscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *redisSubscription) Close() error {
	return s.pubsub.Close()
}

func (s *redisSubscription) consume(ctx context.Context, table models.Table, logger *log.Logger) {
	defer close(s.events)
	ch := s.pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			s.setErr(ctx.Err())
			s.pubsub.Close()
			return
		case msg, ok := <-ch:
			if !ok {
				s.setErr(fmt.Errorf("subscription to %s closed", table.Channel()))
				return
			}
			var event models.ChangeEvent
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				logger.Printf("Dropping malformed %s change event: %v", table, err)
				continue
			}
			select {
			case s.events <- event:
			case <-ctx.Done():
				s.setErr(ctx.Err())
				s.pubsub.Close()
				return
			}
		}
	}
}

func (s *redisSubscription) setErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err == nil {
		s.err = err
	}
}

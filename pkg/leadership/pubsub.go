package leadership

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"
)

// Channel is the coordination-store pub/sub channel leadership and
// migration-boundary events are published on, per §4.7.
const Channel = "foundry:leadership"

// Event names published on Channel, per §4.7.
const (
	EventLeaderNew       = "leader.new"
	EventMigrationStart  = "migration_start"
	EventMigrationEnd    = "migration_end"
)

// Broadcaster publishes leadership and migration-boundary events.
type Broadcaster struct {
	client  *redis.Client
	channel string
}

func NewBroadcaster(client *redis.Client, channel string) *Broadcaster {
	if channel == "" {
		channel = Channel
	}
	return &Broadcaster{client: client, channel: channel}
}

func (b *Broadcaster) Publish(ctx context.Context, event string) error {
	if err := b.client.Publish(ctx, b.channel, event).Err(); err != nil {
		return fmt.Errorf("publish %s on %s: %w", event, b.channel, err)
	}
	return nil
}

// PublishMigrationStart/PublishMigrationEnd bracket a DDL-performing
// executor invocation (§4.7's "migration boundaries"): non-leaders
// receiving migration_start pause OLAP inserts from streams until the
// matching migration_end.
func (b *Broadcaster) PublishMigrationStart(ctx context.Context) error {
	return b.Publish(ctx, EventMigrationStart)
}

func (b *Broadcaster) PublishMigrationEnd(ctx context.Context) error {
	return b.Publish(ctx, EventMigrationEnd)
}

func (b *Broadcaster) PublishLeaderNew(ctx context.Context) error {
	return b.Publish(ctx, EventLeaderNew)
}

// Subscriber consumes leadership/migration events. Follower holds
// whether this instance should currently pause OLAP inserts from
// streams — set on migration_start, cleared on migration_end, per
// §4.7; the leader ignores its own migration messages, so callers on
// the leader path should not construct a Subscriber for their own
// broadcasts.
type Subscriber struct {
	sub *redis.PubSub
}

// Subscribe opens a subscription to channel (defaulting to Channel).
// Callers must call Close when done.
func Subscribe(ctx context.Context, client *redis.Client, channel string) *Subscriber {
	if channel == "" {
		channel = Channel
	}
	return &Subscriber{sub: client.Subscribe(ctx, channel)}
}

func (s *Subscriber) Close() error { return s.sub.Close() }

// Events returns a channel of event payload strings; closed when the
// underlying subscription is closed.
func (s *Subscriber) Events() <-chan string {
	out := make(chan string)
	msgs := s.sub.Channel()
	go func() {
		defer close(out)
		for msg := range msgs {
			out <- msg.Payload
		}
	}()
	return out
}

// Follower tracks the paused-for-migration state a non-leader instance
// derives from the event stream: pause stream-to-OLAP inserts between
// migration_start and migration_end, ignore leader.new.
type Follower struct {
	paused bool
}

// Handle applies one event to the follower's state and reports the
// resulting paused state.
func (f *Follower) Handle(event string) bool {
	switch event {
	case EventMigrationStart:
		f.paused = true
	case EventMigrationEnd:
		f.paused = false
	}
	return f.paused
}

func (f *Follower) Paused() bool { return f.paused }

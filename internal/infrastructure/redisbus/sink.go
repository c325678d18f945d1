// Package redisbus publishes engine events on Redis pub/sub channels.
package redisbus

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/wrenchhub/wrenchhub/internal/domain/notification"
)

// DefaultPrefix is prepended to the event type to form the channel name.
const DefaultPrefix = "wrenchhub:events:"

type publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// Sink implements notification.Sink over Redis PUBLISH.
type Sink struct {
	client publisher
	prefix string
}

func NewSink(client publisher, prefix string) *Sink {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Sink{client: client, prefix: prefix}
}

// Connect opens a client and checks the server answers.
func Connect(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return rdb, nil
}

func (s *Sink) Name() string { return "redis" }

// Channel returns the channel an event type is published on.
func (s *Sink) Channel(t notification.Type) string {
	return s.prefix + string(t)
}

func (s *Sink) Publish(ctx context.Context, event notification.Event) error {
	body, err := event.Marshal()
	if err != nil {
		return err
	}
	return s.client.Publish(ctx, s.Channel(event.Type), body).Err()
}

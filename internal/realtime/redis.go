package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const DefaultRedisPrefix = "evalboard:changes"

// RedisFeed maps each filter onto a pub/sub channel named
// prefix:kind:project. A filter without a project subscribes to the kind's
// pattern.
type RedisFeed struct {
	client *redis.Client
	prefix string
	logger *zap.SugaredLogger
}

func NewRedisFeed(client *redis.Client, prefix string, logger *zap.SugaredLogger) *RedisFeed {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &RedisFeed{client: client, prefix: prefix, logger: logger}
}

func (f *RedisFeed) channelName(kind Kind, projectID string) string {
	return fmt.Sprintf("%s:%s:%s", f.prefix, kind, projectID)
}

func (f *RedisFeed) Open(ctx context.Context, filter Filter, onEvent func(Event)) (Channel, error) {
	var pubsub *redis.PubSub
	if filter.ProjectID == "" {
		pubsub = f.client.PSubscribe(ctx, f.channelName(filter.Kind, "*"))
	} else {
		pubsub = f.client.Subscribe(ctx, f.channelName(filter.Kind, filter.ProjectID))
	}

	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("realtime: redis subscribe: %w", err)
	}

	ch := &redisChannel{pubsub: pubsub, done: make(chan struct{})}
	go func() {
		defer close(ch.done)
		for msg := range pubsub.Channel() {
			ev, err := DecodeEvent([]byte(msg.Payload))
			if err != nil {
				f.logger.Warnw("dropping malformed redis event", "channel", msg.Channel, "error", err)
				continue
			}
			if filter.Matches(ev) {
				onEvent(ev)
			}
		}
	}()
	return ch, nil
}

func (f *RedisFeed) Publish(ctx context.Context, ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("realtime: encode event: %w", err)
	}
	if err := f.client.Publish(ctx, f.channelName(ev.Kind, ev.ProjectID), payload).Err(); err != nil {
		return fmt.Errorf("realtime: redis publish: %w", err)
	}
	return nil
}

type redisChannel struct {
	pubsub *redis.PubSub
	done   chan struct{}
	once   sync.Once
	err    error
}

func (c *redisChannel) Close() error {
	c.once.Do(func() {
		c.err = c.pubsub.Close()
		<-c.done
	})
	return c.err
}

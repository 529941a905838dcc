package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/wrapped-backend/internal/platform/logger"
)

// RefreshEvent announces that an instance rebuilt its view or that stored
// data changed and peers should rebuild.
type RefreshEvent struct {
	Instance  string    `json:"instance"`
	Reason    string    `json:"reason"`
	UserID    string    `json:"user_id,omitempty"`
	Documents int       `json:"documents"`
	At        time.Time `json:"at"`
}

type RefreshBus interface {
	Publish(ctx context.Context, ev RefreshEvent) error
	StartForwarder(ctx context.Context, onEvent func(RefreshEvent)) error
}

type redisBus struct {
	log     *logger.Logger
	rdb     *goredis.Client
	channel string
}

func NewRedisRefreshBus(log *logger.Logger, rdb *goredis.Client, channel string) (RefreshBus, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if rdb == nil {
		return nil, fmt.Errorf("redis client required")
	}
	if strings.TrimSpace(channel) == "" {
		channel = "wrapped:refresh"
	}
	return &redisBus{
		log:     log.With("service", "RedisRefreshBus"),
		rdb:     rdb,
		channel: channel,
	}, nil
}

func (b *redisBus) Publish(ctx context.Context, ev RefreshEvent) error {
	if b == nil || b.rdb == nil {
		return fmt.Errorf("refresh bus not initialized")
	}
	raw, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return b.rdb.Publish(ctx, b.channel, raw).Err()
}

func (b *redisBus) StartForwarder(ctx context.Context, onEvent func(RefreshEvent)) error {
	if b == nil || b.rdb == nil {
		return fmt.Errorf("refresh bus not initialized")
	}
	if onEvent == nil {
		return fmt.Errorf("onEvent callback required")
	}
	sub := b.rdb.Subscribe(ctx, b.channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("redis subscribe: %w", err)
	}
	go func() {
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				_ = sub.Close()
				return
			case m, ok := <-ch:
				if !ok || m == nil {
					_ = sub.Close()
					return
				}
				ev, err := decodeEvent(m.Payload)
				if err != nil {
					b.log.Warn("bad refresh payload", "error", err)
					continue
				}
				onEvent(ev)
			}
		}
	}()
	return nil
}

func decodeEvent(payload string) (RefreshEvent, error) {
	var ev RefreshEvent
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		return RefreshEvent{}, err
	}
	return ev, nil
}

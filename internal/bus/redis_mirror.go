package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/rcliao/tutor-engine/internal/logger"
)

// RedisMirror publishes bus events as JSON on a Redis channel so renderers in
// other processes can follow playback.
type RedisMirror struct {
	log     *logger.Logger
	rdb     *goredis.Client
	channel string
}

// NewRedisMirror connects to addr and verifies the connection.
func NewRedisMirror(log *logger.Logger, addr, channel string) (*RedisMirror, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return nil, fmt.Errorf("missing redis address")
	}
	channel = strings.TrimSpace(channel)
	if channel == "" {
		channel = "tutor-events"
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &RedisMirror{
		log:     log.With("service", "RedisMirror"),
		rdb:     rdb,
		channel: channel,
	}, nil
}

func (m *RedisMirror) Mirror(ctx context.Context, ev Event) error {
	if m == nil || m.rdb == nil {
		return fmt.Errorf("redis mirror not initialized")
	}
	raw, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return m.rdb.Publish(ctx, m.channel, raw).Err()
}

// Follow subscribes to the mirror channel and calls onEvent for every decoded
// event until ctx is done.
func (m *RedisMirror) Follow(ctx context.Context, onEvent func(Event)) error {
	if onEvent == nil {
		return fmt.Errorf("onEvent callback required")
	}
	sub := m.rdb.Subscribe(ctx, m.channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("redis subscribe: %w", err)
	}
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok || msg == nil {
				return nil
			}
			var ev Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				m.log.Warn("bad mirrored event payload", "error", err)
				continue
			}
			onEvent(ev)
		}
	}
}

func (m *RedisMirror) Close() error {
	if m == nil || m.rdb == nil {
		return nil
	}
	return m.rdb.Close()
}

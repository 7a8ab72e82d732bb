package realtime

import (
	"context"
	"fmt"
	"strings"
)

// Channel kinds accepted by New.
const (
	KindNone      = "none"
	KindHub       = "hub"
	KindWebSocket = "websocket"
	KindRedis     = "redis"
)

// Config selects a realtime channel.
type Config struct {
	Kind      string
	URL       string // Websocket event stream
	RedisAddr string
	Channel   string // Redis pub/sub channel
}

// New builds the configured channel. It returns a nil Adapter for KindNone.
func New(ctx context.Context, cfg Config) (Adapter, error) {
	switch strings.ToLower(cfg.Kind) {
	case KindNone, "":
		return nil, nil
	case KindHub:
		return NewHub(), nil
	case KindWebSocket, "ws":
		if cfg.URL == "" {
			return nil, fmt.Errorf("websocket realtime: url is required")
		}
		return NewWebSocketChannel(cfg.URL), nil
	case KindRedis:
		rdb, err := NewRedisClient(ctx, cfg.RedisAddr)
		if err != nil {
			return nil, err
		}
		ch := NewRedisChannel(rdb, cfg.Channel)
		ch.ownsClient = true
		return ch, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownChannel, cfg.Kind)
	}
}

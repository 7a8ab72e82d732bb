package realtime

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/plc-visualizer/uploader/internal/logging"
	"github.com/plc-visualizer/uploader/internal/models"
	"github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"
)

// DefaultRedisChannel is the pub/sub channel carrying processing events.
const DefaultRedisChannel = "transfer:events"

// NewRedisClient parses a redis URL (or a bare host:port) and pings the server.
func NewRedisClient(ctx context.Context, addr string) (*redis.Client, error) {
	if addr == "" {
		return nil, fmt.Errorf("empty redis url")
	}

	opt, err := redis.ParseURL(addr)
	if err != nil {
		opt = &redis.Options{Addr: addr}
	}
	rdb := redis.NewClient(opt)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("could not connect to redis: %w", err)
	}
	return rdb, nil
}

func encodeEvent(ev models.ProcessingEvent) ([]byte, error) {
	return msgpack.Marshal(&ev)
}

func decodeEvent(data []byte) (models.ProcessingEvent, error) {
	var ev models.ProcessingEvent
	err := msgpack.Unmarshal(data, &ev)
	return ev, err
}

// RedisPublisher publishes msgpack-encoded events on a redis channel.
type RedisPublisher struct {
	rdb     *redis.Client
	channel string
}

var _ Publisher = (*RedisPublisher)(nil)

// NewRedisPublisher creates a publisher on channel (DefaultRedisChannel if empty).
func NewRedisPublisher(rdb *redis.Client, channel string) *RedisPublisher {
	if channel == "" {
		channel = DefaultRedisChannel
	}
	return &RedisPublisher{rdb: rdb, channel: channel}
}

// Publish implements Publisher.
func (p *RedisPublisher) Publish(ctx context.Context, ev models.ProcessingEvent) error {
	if ev.Timestamp == 0 {
		ev.Timestamp = time.Now().UnixMilli()
	}
	data, err := encodeEvent(ev)
	if err != nil {
		return fmt.Errorf("encoding event: %w", err)
	}
	if err := p.rdb.Publish(ctx, p.channel, data).Err(); err != nil {
		return fmt.Errorf("publishing to %s: %w", p.channel, err)
	}
	return nil
}

// RedisChannel receives processing events from a redis pub/sub channel.
type RedisChannel struct {
	listeners

	rdb        *redis.Client
	ownsClient bool // Set by New; Stop then closes rdb
	channel    string
	log        *slog.Logger

	mu     sync.Mutex
	pubsub *redis.PubSub
	done   chan struct{}
}

var _ Adapter = (*RedisChannel)(nil)

// NewRedisChannel creates a subscriber on channel (DefaultRedisChannel if empty).
func NewRedisChannel(rdb *redis.Client, channel string) *RedisChannel {
	if channel == "" {
		channel = DefaultRedisChannel
	}
	return &RedisChannel{
		rdb:     rdb,
		channel: channel,
		log:     logging.Logger.With("component", "realtime-redis", "channel", channel),
	}
}

// Subscribe registers handlers for received events.
func (r *RedisChannel) Subscribe(h Handlers) func() {
	return r.subscribe(h)
}

// Start subscribes and waits for the subscription to be confirmed.
func (r *RedisChannel) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.pubsub != nil {
		return nil
	}

	pubsub := r.rdb.Subscribe(ctx, r.channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return fmt.Errorf("subscribing to %s: %w", r.channel, err)
	}

	r.pubsub = pubsub
	r.done = make(chan struct{})
	go r.run(pubsub.Channel(), r.done)
	return nil
}

// Stop closes the subscription and waits for the reader to exit.
func (r *RedisChannel) Stop() error {
	r.mu.Lock()
	pubsub, done := r.pubsub, r.done
	r.pubsub, r.done = nil, nil
	r.mu.Unlock()

	if pubsub == nil {
		return nil
	}
	err := pubsub.Close()
	<-done
	if r.ownsClient {
		if cerr := r.rdb.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

func (r *RedisChannel) run(ch <-chan *redis.Message, done chan struct{}) {
	defer close(done)

	for msg := range ch {
		ev, err := decodeEvent([]byte(msg.Payload))
		if err != nil {
			r.log.Error("failed to decode event", "error", err)
			continue
		}
		r.emit(ev)
	}
}

package redis

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/qvcloud/cmdgate"
	"github.com/redis/go-redis/v9"
)

const pingTimeout = 5 * time.Second

type redisClient interface {
	Ping(ctx context.Context) *redis.StatusCmd
	Close() error
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
}

type redisConnection struct {
	opts   cmdgate.Options
	client redisClient

	sync.RWMutex
	running bool
	maxLen  int64

	newClient func(opts *redis.Options) redisClient
}

func (r *redisConnection) Options() cmdgate.Options { return r.opts }

func (r *redisConnection) ExchangeName() string { return r.opts.Exchange }

func (r *redisConnection) QueueName() string { return r.opts.Queue }

func (r *redisConnection) Connect(ctx context.Context) error {
	r.Lock()
	defer r.Unlock()

	if r.running {
		return nil
	}

	addr := r.opts.Address()
	if addr == "" {
		return fmt.Errorf("redis: address is required")
	}

	redisOpts := &redis.Options{
		Addr:       addr,
		ClientName: r.opts.ClientID,
		TLSConfig:  r.opts.TLS(),
	}

	if r.opts.Context != nil {
		if v, ok := cmdgate.GetTrackedValue(r.opts.Context, passwordKey{}).(string); ok {
			redisOpts.Password = v
		}
		if v, ok := cmdgate.GetTrackedValue(r.opts.Context, dbKey{}).(int); ok {
			redisOpts.DB = v
		}
		if v, ok := cmdgate.GetTrackedValue(r.opts.Context, maxLenKey{}).(int64); ok {
			r.maxLen = v
		}
	}

	client := r.newClient(redisOpts)

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return fmt.Errorf("redis: connect error: %w", err)
	}

	r.client = client
	r.running = true

	cmdgate.WarnUnconsumed(r.opts.Context, r.opts.Logger)
	return nil
}

func (r *redisConnection) Disconnect() error {
	r.Lock()
	defer r.Unlock()

	if !r.running {
		return nil
	}

	var err error
	if r.client != nil {
		err = r.client.Close()
		r.client = nil
	}

	r.running = false
	return err
}

func (r *redisConnection) Channel() (cmdgate.Channel, error) {
	r.RLock()
	defer r.RUnlock()

	if r.client == nil {
		return nil, cmdgate.ErrNotConnected
	}
	return &redisChannel{client: r.client, maxLen: r.maxLen}, nil
}

func (r *redisConnection) String() string {
	return "redis"
}

type redisChannel struct {
	client redisClient
	maxLen int64
}

// Publish appends the message to the stream named by Stream(exchange, queue).
// Headers are stored as fields prefixed with "h:".
func (c *redisChannel) Publish(ctx context.Context, msg *cmdgate.Message, exchange, queue string) error {
	stream := Stream(exchange, queue)
	if stream == "" {
		return fmt.Errorf("redis: no stream configured")
	}

	values := map[string]interface{}{
		"body": msg.Body,
	}
	if msg.ID != "" {
		values["id"] = msg.ID
	}
	for k, v := range msg.Headers.StringMap() {
		values["h:"+k] = v
	}

	return c.client.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		Values: values,
		MaxLen: c.maxLen,
		Approx: c.maxLen > 0,
	}).Err()
}

func (c *redisChannel) Close() error {
	return nil
}

// Stream joins exchange and queue into a stream key.
func Stream(exchange, queue string) string {
	switch {
	case exchange == "":
		return queue
	case queue == "":
		return exchange
	default:
		return exchange + ":" + queue
	}
}

func NewConnection(opts ...cmdgate.Option) cmdgate.Connection {
	options := cmdgate.NewOptions(opts...)
	return &redisConnection{
		opts: *options,
		newClient: func(opts *redis.Options) redisClient {
			return redis.NewClient(opts)
		},
	}
}

type passwordKey struct{}
type dbKey struct{}
type maxLenKey struct{}

func WithPassword(password string) cmdgate.Option {
	return func(o *cmdgate.Options) {
		if o.Context == nil {
			o.Context = context.Background()
		}
		o.Context = cmdgate.WithTrackedValue(o.Context, passwordKey{}, password, "redis.WithPassword")
	}
}

func WithDB(db int) cmdgate.Option {
	return func(o *cmdgate.Options) {
		if o.Context == nil {
			o.Context = context.Background()
		}
		o.Context = cmdgate.WithTrackedValue(o.Context, dbKey{}, db, "redis.WithDB")
	}
}

// WithMaxLen caps the stream length with an approximate MAXLEN trim.
func WithMaxLen(maxLen int64) cmdgate.Option {
	return func(o *cmdgate.Options) {
		if o.Context == nil {
			o.Context = context.Background()
		}
		o.Context = cmdgate.WithTrackedValue(o.Context, maxLenKey{}, maxLen, "redis.WithMaxLen")
	}
}

package nats

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/qvcloud/cmdgate"
)

type natsConn interface {
	PublishMsg(m *nats.Msg) error
	FlushWithContext(ctx context.Context) error
	Close()
}

type natsConnection struct {
	opts cmdgate.Options
	conn natsConn

	sync.RWMutex
	running bool
	flush   bool

	newConn func(addr string, opts ...nats.Option) (natsConn, error)
}

func (n *natsConnection) Options() cmdgate.Options { return n.opts }

func (n *natsConnection) ExchangeName() string { return n.opts.Exchange }

func (n *natsConnection) QueueName() string { return n.opts.Queue }

func (n *natsConnection) Connect(ctx context.Context) error {
	n.Lock()
	defer n.Unlock()

	if n.running {
		return nil
	}

	if len(n.opts.Addrs) == 0 {
		return fmt.Errorf("nats: server addresses are required")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	// nats.Connect accepts a comma separated server list
	addr := strings.Join(n.opts.Addrs, ",")

	opts := []nats.Option{}
	if tlsConfig := n.opts.TLS(); tlsConfig != nil {
		opts = append(opts, nats.Secure(tlsConfig))
	}
	if n.opts.ClientID != "" {
		opts = append(opts, nats.Name(n.opts.ClientID))
	}

	n.flush = true
	if n.opts.Context != nil {
		if v, ok := cmdgate.GetTrackedValue(n.opts.Context, maxReconnectKey{}).(int); ok {
			opts = append(opts, nats.MaxReconnects(v))
		}
		if v, ok := cmdgate.GetTrackedValue(n.opts.Context, reconnectWaitKey{}).(time.Duration); ok {
			opts = append(opts, nats.ReconnectWait(v))
		}
		if v, ok := cmdgate.GetTrackedValue(n.opts.Context, flushKey{}).(bool); ok {
			n.flush = v
		}
	}

	conn, err := n.newConn(addr, opts...)
	if err != nil {
		if n.opts.Logger != nil {
			n.opts.Logger.Logf("NATS connect error to %s: %v", addr, err)
		}
		return err
	}
	n.conn = conn
	n.running = true

	cmdgate.WarnUnconsumed(n.opts.Context, n.opts.Logger)
	return nil
}

func (n *natsConnection) Disconnect() error {
	n.Lock()
	defer n.Unlock()

	if !n.running {
		return nil
	}

	if n.conn != nil {
		n.conn.Close()
		n.conn = nil
	}

	n.running = false
	return nil
}

func (n *natsConnection) Channel() (cmdgate.Channel, error) {
	n.RLock()
	conn := n.conn
	flush := n.flush
	n.RUnlock()

	if conn == nil {
		return nil, cmdgate.ErrNotConnected
	}
	return &natsChannel{conn: conn, flush: flush}, nil
}

func (n *natsConnection) String() string {
	return "nats"
}

type natsChannel struct {
	conn  natsConn
	flush bool
}

// Publish sends to the subject exchange.queue. Empty parts are skipped.
func (c *natsChannel) Publish(ctx context.Context, msg *cmdgate.Message, exchange, queue string) error {
	subject := Subject(exchange, queue)
	if subject == "" {
		return fmt.Errorf("nats: no subject configured")
	}

	nm := &nats.Msg{
		Subject: subject,
		Header:  make(nats.Header),
		Data:    msg.Body,
	}
	for k, v := range msg.Headers.StringMap() {
		nm.Header.Set(k, v)
	}

	if err := c.conn.PublishMsg(nm); err != nil {
		return err
	}
	// core NATS publishes are fire-and-forget; a flush round trip
	// confirms the server received them
	if c.flush {
		return c.conn.FlushWithContext(ctx)
	}
	return nil
}

func (c *natsChannel) Close() error {
	return nil
}

// Subject joins exchange and queue into a NATS subject.
func Subject(exchange, queue string) string {
	switch {
	case exchange == "":
		return queue
	case queue == "":
		return exchange
	default:
		return exchange + "." + queue
	}
}

func NewConnection(opts ...cmdgate.Option) cmdgate.Connection {
	options := cmdgate.NewOptions(opts...)
	return &natsConnection{
		opts: *options,
		newConn: func(addr string, opts ...nats.Option) (natsConn, error) {
			return nats.Connect(addr, opts...)
		},
	}
}

type maxReconnectKey struct{}
type reconnectWaitKey struct{}
type flushKey struct{}

func WithMaxReconnect(max int) cmdgate.Option {
	return func(o *cmdgate.Options) {
		if o.Context == nil {
			o.Context = context.Background()
		}
		o.Context = cmdgate.WithTrackedValue(o.Context, maxReconnectKey{}, max, "nats.WithMaxReconnect")
	}
}

func WithReconnectWait(wait time.Duration) cmdgate.Option {
	return func(o *cmdgate.Options) {
		if o.Context == nil {
			o.Context = context.Background()
		}
		o.Context = cmdgate.WithTrackedValue(o.Context, reconnectWaitKey{}, wait, "nats.WithReconnectWait")
	}
}

// WithFlush controls whether every publish waits for a server round trip. Default true.
func WithFlush(flush bool) cmdgate.Option {
	return func(o *cmdgate.Options) {
		if o.Context == nil {
			o.Context = context.Background()
		}
		o.Context = cmdgate.WithTrackedValue(o.Context, flushKey{}, flush, "nats.WithFlush")
	}
}

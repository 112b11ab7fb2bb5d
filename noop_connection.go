package cmdgate

import (
	"context"
	"sync"
)

// Publication is a message recorded by a noop connection.
type Publication struct {
	Exchange string
	Queue    string
	Message  *Message
}

type noopChannel struct {
	conn   *NoopConnection
	closed bool
}

func (c *noopChannel) Publish(ctx context.Context, msg *Message, exchange, queue string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.conn.Lock()
	defer c.conn.Unlock()
	if !c.conn.connected {
		return ErrNotConnected
	}
	c.conn.published = append(c.conn.published, Publication{
		Exchange: exchange,
		Queue:    queue,
		Message:  msg,
	})
	return nil
}

func (c *noopChannel) Close() error {
	c.conn.Lock()
	defer c.conn.Unlock()
	if !c.closed {
		c.closed = true
		c.conn.openChannels--
	}
	return nil
}

// NoopConnection keeps everything in memory. It is useful for tests and dry runs.
type NoopConnection struct {
	opts *Options

	sync.RWMutex
	connected    bool
	connects     int
	openChannels int
	published    []Publication
}

func NewNoopConnection(opts ...Option) *NoopConnection {
	return &NoopConnection{opts: NewOptions(opts...)}
}

func (n *NoopConnection) Options() Options {
	return *n.opts
}

func (n *NoopConnection) Connect(ctx context.Context) error {
	n.Lock()
	defer n.Unlock()
	if n.connected {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	n.connected = true
	n.connects++
	WarnUnconsumed(n.opts.Context, n.opts.Logger)
	return nil
}

func (n *NoopConnection) Disconnect() error {
	n.Lock()
	defer n.Unlock()
	n.connected = false
	return nil
}

func (n *NoopConnection) Channel() (Channel, error) {
	n.Lock()
	defer n.Unlock()
	if !n.connected {
		return nil, ErrNotConnected
	}
	n.openChannels++
	return &noopChannel{conn: n}, nil
}

func (n *NoopConnection) ExchangeName() string {
	return n.opts.Exchange
}

func (n *NoopConnection) QueueName() string {
	return n.opts.Queue
}

func (n *NoopConnection) String() string {
	return "noop"
}

// Connected reports whether the connection is currently established.
func (n *NoopConnection) Connected() bool {
	n.RLock()
	defer n.RUnlock()
	return n.connected
}

// Connects returns how many times the connection was actually established.
func (n *NoopConnection) Connects() int {
	n.RLock()
	defer n.RUnlock()
	return n.connects
}

// OpenChannels returns the number of channels not yet closed.
func (n *NoopConnection) OpenChannels() int {
	n.RLock()
	defer n.RUnlock()
	return n.openChannels
}

// Published returns a copy of every recorded publication.
func (n *NoopConnection) Published() []Publication {
	n.RLock()
	defer n.RUnlock()
	out := make([]Publication, len(n.published))
	copy(out, n.published)
	return out
}

package rabbitmq

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/qvcloud/cmdgate"
	amqp "github.com/rabbitmq/amqp091-go"
)

type rabbitConn interface {
	Channel() (rabbitChannel, error)
	Close() error
	IsClosed() bool
}

type rabbitChannel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	Close() error
}

type connWrapper struct{ *amqp.Connection }

func (w *connWrapper) Channel() (rabbitChannel, error) {
	return w.Connection.Channel()
}

type rmqConnection struct {
	opts cmdgate.Options

	conn rabbitConn

	sync.RWMutex
	running   bool
	mandatory bool

	// Internal factories for testing
	newConn func(addr string, config amqp.Config) (rabbitConn, error)
}

func (r *rmqConnection) Options() cmdgate.Options { return r.opts }

func (r *rmqConnection) ExchangeName() string { return r.opts.Exchange }

func (r *rmqConnection) QueueName() string { return r.opts.Queue }

func (r *rmqConnection) Connect(ctx context.Context) error {
	r.Lock()
	defer r.Unlock()

	if r.running && r.conn != nil && !r.conn.IsClosed() {
		return nil
	}

	if len(r.opts.Addrs) == 0 {
		return fmt.Errorf("rabbitmq: server addresses are required")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	config := amqp.Config{
		TLSClientConfig: r.opts.TLS(),
	}
	if r.opts.ClientID != "" {
		config.Properties = amqp.Table{
			"connection_name": r.opts.ClientID,
		}
	}
	if r.opts.Context != nil {
		if v, ok := cmdgate.GetTrackedValue(r.opts.Context, heartbeatKey{}).(time.Duration); ok {
			config.Heartbeat = v
		}
		if v, ok := cmdgate.GetTrackedValue(r.opts.Context, mandatoryKey{}).(bool); ok {
			r.mandatory = v
		}
	}

	conn, err := r.newConn(r.opts.Address(), config)
	if err != nil {
		return err
	}

	if err := r.declare(conn); err != nil {
		conn.Close()
		return err
	}

	r.conn = conn
	r.running = true

	cmdgate.WarnUnconsumed(r.opts.Context, r.opts.Logger)
	return nil
}

// declare creates the exchange when WithDeclareExchange was given.
func (r *rmqConnection) declare(conn rabbitConn) error {
	if r.opts.Context == nil || r.opts.Exchange == "" {
		return nil
	}
	kind, ok := cmdgate.GetTrackedValue(r.opts.Context, exchangeTypeKey{}).(string)
	if !ok {
		return nil
	}

	ch, err := conn.Channel()
	if err != nil {
		return err
	}
	defer ch.Close()

	return ch.ExchangeDeclare(r.opts.Exchange, kind, true, false, false, false, nil)
}

func (r *rmqConnection) Disconnect() error {
	r.Lock()
	defer r.Unlock()

	if !r.running {
		return nil
	}

	var err error
	if r.conn != nil && !r.conn.IsClosed() {
		err = r.conn.Close()
	}
	r.conn = nil
	r.running = false
	return err
}

// Channel opens a new AMQP channel. Each dispatch gets its own.
func (r *rmqConnection) Channel() (cmdgate.Channel, error) {
	r.RLock()
	conn := r.conn
	mandatory := r.mandatory
	r.RUnlock()

	if conn == nil {
		return nil, cmdgate.ErrNotConnected
	}

	ch, err := conn.Channel()
	if err != nil {
		return nil, err
	}

	return &rmqChannel{ch: ch, mandatory: mandatory}, nil
}

func (r *rmqConnection) String() string {
	return "rabbitmq"
}

type rmqChannel struct {
	ch        rabbitChannel
	mandatory bool
}

func (c *rmqChannel) Publish(ctx context.Context, msg *cmdgate.Message, exchange, queue string) error {
	return c.ch.PublishWithContext(ctx,
		exchange,    // exchange
		queue,       // routing key
		c.mandatory, // mandatory
		false,       // immediate
		toPublishing(msg))
}

func (c *rmqChannel) Close() error {
	return c.ch.Close()
}

func toPublishing(msg *cmdgate.Message) amqp.Publishing {
	deliveryMode := amqp.Transient
	if msg.DeliveryMode == cmdgate.PersistentDelivery {
		deliveryMode = amqp.Persistent
	}

	return amqp.Publishing{
		Headers:      amqp.Table(msg.Headers),
		ContentType:  msg.ContentType,
		DeliveryMode: deliveryMode,
		MessageId:    msg.ID,
		Timestamp:    msg.Timestamp,
		Body:         msg.Body,
	}
}

func NewConnection(opts ...cmdgate.Option) cmdgate.Connection {
	options := cmdgate.NewOptions(opts...)
	return &rmqConnection{
		opts: *options,
		newConn: func(addr string, config amqp.Config) (rabbitConn, error) {
			conn, err := amqp.DialConfig(addr, config)
			if err != nil {
				return nil, err
			}
			return &connWrapper{conn}, nil
		},
	}
}

type exchangeTypeKey struct{}
type mandatoryKey struct{}
type heartbeatKey struct{}

func WithDeclareExchange(kind string) cmdgate.Option {
	return func(o *cmdgate.Options) {
		if o.Context == nil {
			o.Context = context.Background()
		}
		o.Context = cmdgate.WithTrackedValue(o.Context, exchangeTypeKey{}, kind, "rabbitmq.WithDeclareExchange")
	}
}

// WithMandatory publishes with the mandatory flag so unroutable messages are returned.
func WithMandatory() cmdgate.Option {
	return func(o *cmdgate.Options) {
		if o.Context == nil {
			o.Context = context.Background()
		}
		o.Context = cmdgate.WithTrackedValue(o.Context, mandatoryKey{}, true, "rabbitmq.WithMandatory")
	}
}

func WithHeartbeat(d time.Duration) cmdgate.Option {
	return func(o *cmdgate.Options) {
		if o.Context == nil {
			o.Context = context.Background()
		}
		o.Context = cmdgate.WithTrackedValue(o.Context, heartbeatKey{}, d, "rabbitmq.WithHeartbeat")
	}
}

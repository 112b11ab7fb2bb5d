package rocketmq

import (
	"context"
	"fmt"
	"sync"

	"github.com/apache/rocketmq-client-go/v2"
	"github.com/apache/rocketmq-client-go/v2/primitive"
	"github.com/apache/rocketmq-client-go/v2/producer"
	"github.com/qvcloud/cmdgate"
)

const defaultRetry = 2

type rmqProducer interface {
	Start() error
	Shutdown() error
	SendSync(ctx context.Context, msgs ...*primitive.Message) (*primitive.SendResult, error)
}

type rmqConnection struct {
	opts cmdgate.Options

	producer rmqProducer

	sync.RWMutex
	running bool

	newProducer func(opts ...producer.Option) (rmqProducer, error)
}

func (r *rmqConnection) Options() cmdgate.Options { return r.opts }

func (r *rmqConnection) ExchangeName() string { return r.opts.Exchange }

func (r *rmqConnection) QueueName() string { return r.opts.Queue }

func (r *rmqConnection) Connect(ctx context.Context) error {
	r.Lock()
	defer r.Unlock()

	if r.running {
		return nil
	}

	if len(r.opts.Addrs) == 0 {
		return fmt.Errorf("rocketmq: name server addresses are required")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	retry := defaultRetry
	opts := []producer.Option{
		producer.WithNameServer(r.opts.Addrs),
	}
	if r.opts.ClientID != "" {
		opts = append(opts, producer.WithInstanceName(r.opts.ClientID))
	}
	if r.opts.Context != nil {
		if v, ok := cmdgate.GetTrackedValue(r.opts.Context, groupNameKey{}).(string); ok {
			opts = append(opts, producer.WithGroupName(v))
		}
		if v, ok := cmdgate.GetTrackedValue(r.opts.Context, retryKey{}).(int); ok {
			retry = v
		}
		if v, ok := cmdgate.GetTrackedValue(r.opts.Context, credentialsKey{}).(primitive.Credentials); ok {
			opts = append(opts, producer.WithCredentials(v))
		}
	}
	opts = append(opts, producer.WithRetry(retry))

	p, err := r.newProducer(opts...)
	if err != nil {
		return err
	}
	if err := p.Start(); err != nil {
		_ = p.Shutdown()
		return err
	}

	r.producer = p
	r.running = true

	cmdgate.WarnUnconsumed(r.opts.Context, r.opts.Logger)
	return nil
}

func (r *rmqConnection) Disconnect() error {
	r.Lock()
	defer r.Unlock()

	if !r.running {
		return nil
	}

	var err error
	if r.producer != nil {
		err = r.producer.Shutdown()
		r.producer = nil
	}

	r.running = false
	return err
}

func (r *rmqConnection) Channel() (cmdgate.Channel, error) {
	r.RLock()
	defer r.RUnlock()

	if r.producer == nil {
		return nil, cmdgate.ErrNotConnected
	}
	return &rmqChannel{producer: r.producer}, nil
}

func (r *rmqConnection) String() string {
	return "rocketmq"
}

type rmqChannel struct {
	producer rmqProducer
}

// Publish sends synchronously. The exchange is the topic and the queue its tag;
// with no exchange the queue is used as the topic.
func (c *rmqChannel) Publish(ctx context.Context, msg *cmdgate.Message, exchange, queue string) error {
	topic, tag := exchange, queue
	if topic == "" {
		topic, tag = queue, ""
	}
	if topic == "" {
		return fmt.Errorf("rocketmq: no topic configured")
	}

	rmqMsg := primitive.NewMessage(topic, msg.Body)
	if tag != "" {
		rmqMsg.WithTag(tag)
	}
	if msg.ID != "" {
		rmqMsg.WithKeys([]string{msg.ID})
	}
	for k, v := range msg.Headers.StringMap() {
		rmqMsg.WithProperty(k, v)
	}

	res, err := c.producer.SendSync(ctx, rmqMsg)
	if err != nil {
		return err
	}
	if res.Status != primitive.SendOK {
		return fmt.Errorf("rocketmq: send failed: %s", res.String())
	}
	return nil
}

func (c *rmqChannel) Close() error {
	return nil
}

func NewConnection(opts ...cmdgate.Option) cmdgate.Connection {
	options := cmdgate.NewOptions(opts...)
	return &rmqConnection{
		opts: *options,
		newProducer: func(opts ...producer.Option) (rmqProducer, error) {
			return rocketmq.NewProducer(opts...)
		},
	}
}

type groupNameKey struct{}
type retryKey struct{}
type credentialsKey struct{}

func WithGroupName(name string) cmdgate.Option {
	return func(o *cmdgate.Options) {
		if o.Context == nil {
			o.Context = context.Background()
		}
		o.Context = cmdgate.WithTrackedValue(o.Context, groupNameKey{}, name, "rocketmq.WithGroupName")
	}
}

func WithRetry(retry int) cmdgate.Option {
	return func(o *cmdgate.Options) {
		if o.Context == nil {
			o.Context = context.Background()
		}
		o.Context = cmdgate.WithTrackedValue(o.Context, retryKey{}, retry, "rocketmq.WithRetry")
	}
}

// WithCredentials sets the ACL access and secret keys.
func WithCredentials(accessKey, secretKey string) cmdgate.Option {
	return func(o *cmdgate.Options) {
		if o.Context == nil {
			o.Context = context.Background()
		}
		creds := primitive.Credentials{AccessKey: accessKey, SecretKey: secretKey}
		o.Context = cmdgate.WithTrackedValue(o.Context, credentialsKey{}, creds, "rocketmq.WithCredentials")
	}
}

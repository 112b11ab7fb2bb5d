package kafka

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/qvcloud/cmdgate"
	"github.com/segmentio/kafka-go"
)

type kafkaWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type kafkaConnection struct {
	opts cmdgate.Options

	writer kafkaWriter

	sync.RWMutex
	running bool

	newWriter func(w *kafka.Writer) kafkaWriter
}

func (k *kafkaConnection) Options() cmdgate.Options { return k.opts }

func (k *kafkaConnection) ExchangeName() string { return k.opts.Exchange }

func (k *kafkaConnection) QueueName() string { return k.opts.Queue }

func (k *kafkaConnection) Connect(ctx context.Context) error {
	k.Lock()
	defer k.Unlock()

	if k.running {
		return nil
	}

	if len(k.opts.Addrs) == 0 {
		return fmt.Errorf("kafka: broker addresses are required")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	w := &kafka.Writer{
		Addr:         kafka.TCP(k.opts.Addrs...),
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
	}
	if tlsConfig := k.opts.TLS(); tlsConfig != nil || k.opts.ClientID != "" {
		w.Transport = &kafka.Transport{TLS: tlsConfig, ClientID: k.opts.ClientID}
	}

	if k.opts.Context != nil {
		if v, ok := cmdgate.GetTrackedValue(k.opts.Context, balancerKey{}).(kafka.Balancer); ok {
			w.Balancer = v
		}
		if v, ok := cmdgate.GetTrackedValue(k.opts.Context, batchSizeKey{}).(int); ok {
			w.BatchSize = v
		}
		if v, ok := cmdgate.GetTrackedValue(k.opts.Context, batchTimeoutKey{}).(time.Duration); ok {
			w.BatchTimeout = v
		}
		if v, ok := cmdgate.GetTrackedValue(k.opts.Context, acksKey{}).(int); ok {
			w.RequiredAcks = kafka.RequiredAcks(v)
		}
	}

	k.writer = k.newWriter(w)
	k.running = true

	cmdgate.WarnUnconsumed(k.opts.Context, k.opts.Logger)
	return nil
}

func (k *kafkaConnection) Disconnect() error {
	k.Lock()
	defer k.Unlock()

	if !k.running {
		return nil
	}

	var err error
	if k.writer != nil {
		err = k.writer.Close()
		k.writer = nil
	}

	k.running = false
	return err
}

// Channel returns a handle on the shared writer; closing it leaves the writer open.
func (k *kafkaConnection) Channel() (cmdgate.Channel, error) {
	k.RLock()
	w := k.writer
	k.RUnlock()

	if w == nil {
		return nil, cmdgate.ErrNotConnected
	}
	return &kafkaChannel{writer: w}, nil
}

func (k *kafkaConnection) String() string {
	return "kafka"
}

type kafkaChannel struct {
	writer kafkaWriter
}

// Publish writes to the exchange topic keyed by queue. Without an exchange
// the queue name is the topic.
func (c *kafkaChannel) Publish(ctx context.Context, msg *cmdgate.Message, exchange, queue string) error {
	topic, key := exchange, queue
	if topic == "" {
		topic, key = queue, ""
	}
	if topic == "" {
		return fmt.Errorf("kafka: no topic configured")
	}

	headers := make([]kafka.Header, 0, len(msg.Headers))
	for k, v := range msg.Headers.StringMap() {
		headers = append(headers, kafka.Header{
			Key:   k,
			Value: []byte(v),
		})
	}

	km := kafka.Message{
		Topic:   topic,
		Value:   msg.Body,
		Headers: headers,
		Time:    msg.Timestamp,
	}
	if key != "" {
		km.Key = []byte(key)
	}

	return c.writer.WriteMessages(ctx, km)
}

func (c *kafkaChannel) Close() error {
	return nil
}

func NewConnection(opts ...cmdgate.Option) cmdgate.Connection {
	options := cmdgate.NewOptions(opts...)

	return &kafkaConnection{
		opts:      *options,
		newWriter: func(w *kafka.Writer) kafkaWriter { return w },
	}
}

type balancerKey struct{}
type batchSizeKey struct{}
type batchTimeoutKey struct{}
type acksKey struct{}

func WithBalancer(b kafka.Balancer) cmdgate.Option {
	return func(o *cmdgate.Options) {
		if o.Context == nil {
			o.Context = context.Background()
		}
		o.Context = cmdgate.WithTrackedValue(o.Context, balancerKey{}, b, "kafka.WithBalancer")
	}
}

func WithBatchSize(n int) cmdgate.Option {
	return func(o *cmdgate.Options) {
		if o.Context == nil {
			o.Context = context.Background()
		}
		o.Context = cmdgate.WithTrackedValue(o.Context, batchSizeKey{}, n, "kafka.WithBatchSize")
	}
}

func WithBatchTimeout(d time.Duration) cmdgate.Option {
	return func(o *cmdgate.Options) {
		if o.Context == nil {
			o.Context = context.Background()
		}
		o.Context = cmdgate.WithTrackedValue(o.Context, batchTimeoutKey{}, d, "kafka.WithBatchTimeout")
	}
}

// WithAcks overrides the default of waiting for all in-sync replicas.
func WithAcks(acks int) cmdgate.Option {
	return func(o *cmdgate.Options) {
		if o.Context == nil {
			o.Context = context.Background()
		}
		o.Context = cmdgate.WithTrackedValue(o.Context, acksKey{}, acks, "kafka.WithAcks")
	}
}

package pubsub

import (
	"context"
	"fmt"
	"sync"

	"cloud.google.com/go/pubsub"
	"github.com/qvcloud/cmdgate"
)

type publishResult interface {
	Get(ctx context.Context) (serverID string, err error)
}

type pubsubProvider interface {
	Publish(ctx context.Context, topic string, msg *pubsub.Message) publishResult
	Close() error
}

type realPubSubProvider struct {
	client *pubsub.Client

	mu     sync.Mutex
	topics map[string]*pubsub.Topic
}

func (r *realPubSubProvider) Publish(ctx context.Context, topic string, msg *pubsub.Message) publishResult {
	r.mu.Lock()
	t, ok := r.topics[topic]
	if !ok {
		t = r.client.Topic(topic)
		r.topics[topic] = t
	}
	r.mu.Unlock()
	return t.Publish(ctx, msg)
}

func (r *realPubSubProvider) Close() error {
	r.mu.Lock()
	for _, t := range r.topics {
		t.Stop()
	}
	r.topics = nil
	r.mu.Unlock()
	return r.client.Close()
}

type pubsubConnection struct {
	opts     cmdgate.Options
	provider pubsubProvider

	sync.RWMutex
	running bool

	newProvider func(ctx context.Context, projectID string) (pubsubProvider, error)
}

func (p *pubsubConnection) Options() cmdgate.Options { return p.opts }

func (p *pubsubConnection) ExchangeName() string { return p.opts.Exchange }

func (p *pubsubConnection) QueueName() string { return p.opts.Queue }

// Connect creates a client for the project ID given as the first address.
func (p *pubsubConnection) Connect(ctx context.Context) error {
	p.Lock()
	defer p.Unlock()

	if p.running {
		return nil
	}

	projectID := p.opts.Address()
	if projectID == "" {
		return fmt.Errorf("pubsub: project ID must be provided in Addrs")
	}

	provider, err := p.newProvider(ctx, projectID)
	if err != nil {
		return err
	}

	p.provider = provider
	p.running = true

	cmdgate.WarnUnconsumed(p.opts.Context, p.opts.Logger)
	return nil
}

func (p *pubsubConnection) Disconnect() error {
	p.Lock()
	defer p.Unlock()

	if !p.running {
		return nil
	}

	var err error
	if p.provider != nil {
		err = p.provider.Close()
		p.provider = nil
	}

	p.running = false
	return err
}

func (p *pubsubConnection) Channel() (cmdgate.Channel, error) {
	p.RLock()
	defer p.RUnlock()

	if p.provider == nil {
		return nil, cmdgate.ErrNotConnected
	}
	return &pubsubChannel{provider: p.provider}, nil
}

func (p *pubsubConnection) String() string {
	return "pubsub"
}

type pubsubChannel struct {
	provider pubsubProvider
}

// Publish sends to the topic named by exchange, or by queue when exchange is
// empty, and waits for the server acknowledgement.
func (c *pubsubChannel) Publish(ctx context.Context, msg *cmdgate.Message, exchange, queue string) error {
	topic := exchange
	if topic == "" {
		topic = queue
	}
	if topic == "" {
		return fmt.Errorf("pubsub: no topic configured")
	}

	res := c.provider.Publish(ctx, topic, &pubsub.Message{
		Data:       msg.Body,
		Attributes: msg.Headers.StringMap(),
	})

	_, err := res.Get(ctx)
	return err
}

func (c *pubsubChannel) Close() error {
	return nil
}

func NewConnection(opts ...cmdgate.Option) cmdgate.Connection {
	options := cmdgate.NewOptions(opts...)
	return &pubsubConnection{
		opts: *options,
		newProvider: func(ctx context.Context, projectID string) (pubsubProvider, error) {
			client, err := pubsub.NewClient(ctx, projectID)
			if err != nil {
				return nil, err
			}
			return &realPubSubProvider{client: client, topics: make(map[string]*pubsub.Topic)}, nil
		},
	}
}

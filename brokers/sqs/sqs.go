package sqs

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/qvcloud/cmdgate"
)

const fifoSuffix = ".fifo"

type sqsAPI interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

type sqsConnection struct {
	opts   cmdgate.Options
	client sqsAPI

	sync.RWMutex
	running      bool
	delaySeconds int32

	newClient func(ctx context.Context, region, endpoint string) (sqsAPI, error)
}

func (s *sqsConnection) Options() cmdgate.Options { return s.opts }

func (s *sqsConnection) ExchangeName() string { return s.opts.Exchange }

func (s *sqsConnection) QueueName() string { return s.opts.Queue }

// Connect loads the AWS configuration. Addrs, when set, overrides the endpoint.
func (s *sqsConnection) Connect(ctx context.Context) error {
	s.Lock()
	defer s.Unlock()

	if s.running {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	var region string
	if s.opts.Context != nil {
		if v, ok := cmdgate.GetTrackedValue(s.opts.Context, regionKey{}).(string); ok {
			region = v
		}
		if v, ok := cmdgate.GetTrackedValue(s.opts.Context, delaySecondsKey{}).(int32); ok {
			s.delaySeconds = v
		}
	}

	client, err := s.newClient(ctx, region, s.opts.Address())
	if err != nil {
		return err
	}

	s.client = client
	s.running = true

	cmdgate.WarnUnconsumed(s.opts.Context, s.opts.Logger)
	return nil
}

func (s *sqsConnection) Disconnect() error {
	s.Lock()
	defer s.Unlock()

	s.client = nil
	s.running = false
	return nil
}

func (s *sqsConnection) Channel() (cmdgate.Channel, error) {
	s.RLock()
	defer s.RUnlock()

	if s.client == nil {
		return nil, cmdgate.ErrNotConnected
	}
	return &sqsChannel{client: s.client, delaySeconds: s.delaySeconds}, nil
}

func (s *sqsConnection) String() string {
	return "sqs"
}

type sqsChannel struct {
	client       sqsAPI
	delaySeconds int32
}

// Publish sends to the queue URL given as queue. FIFO queues are grouped by
// exchange, falling back to the queue, and deduplicated by message ID.
func (c *sqsChannel) Publish(ctx context.Context, msg *cmdgate.Message, exchange, queue string) error {
	if queue == "" {
		return fmt.Errorf("sqs: queue url is required")
	}

	input := &sqs.SendMessageInput{
		QueueUrl:          aws.String(queue),
		MessageBody:       aws.String(string(msg.Body)),
		MessageAttributes: make(map[string]types.MessageAttributeValue),
	}

	if strings.HasSuffix(queue, fifoSuffix) {
		group := exchange
		if group == "" {
			group = queue
		}
		input.MessageGroupId = aws.String(group)
		if msg.ID != "" {
			input.MessageDeduplicationId = aws.String(msg.ID)
		}
	} else if c.delaySeconds > 0 {
		// per-message delay is not supported on FIFO queues
		input.DelaySeconds = c.delaySeconds
	}

	for k, v := range msg.Headers.StringMap() {
		input.MessageAttributes[k] = types.MessageAttributeValue{
			DataType:    aws.String("String"),
			StringValue: aws.String(v),
		}
	}

	_, err := c.client.SendMessage(ctx, input)
	return err
}

func (c *sqsChannel) Close() error {
	return nil
}

func NewConnection(opts ...cmdgate.Option) cmdgate.Connection {
	options := cmdgate.NewOptions(opts...)
	return &sqsConnection{
		opts: *options,
		newClient: func(ctx context.Context, region, endpoint string) (sqsAPI, error) {
			var loadOpts []func(*config.LoadOptions) error
			if region != "" {
				loadOpts = append(loadOpts, config.WithRegion(region))
			}
			cfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
			if err != nil {
				return nil, err
			}
			return sqs.NewFromConfig(cfg, func(o *sqs.Options) {
				if endpoint != "" {
					o.BaseEndpoint = aws.String(endpoint)
				}
			}), nil
		},
	}
}

type regionKey struct{}
type delaySecondsKey struct{}

func WithRegion(region string) cmdgate.Option {
	return func(o *cmdgate.Options) {
		if o.Context == nil {
			o.Context = context.Background()
		}
		o.Context = cmdgate.WithTrackedValue(o.Context, regionKey{}, region, "sqs.WithRegion")
	}
}

func WithDelaySeconds(seconds int32) cmdgate.Option {
	return func(o *cmdgate.Options) {
		if o.Context == nil {
			o.Context = context.Background()
		}
		o.Context = cmdgate.WithTrackedValue(o.Context, delaySecondsKey{}, seconds, "sqs.WithDelaySeconds")
	}
}

// Package cmdgate routes serialized commands onto named broker connections.
package cmdgate

import (
	"context"
	"time"
)

// Command is an application command that can be published through the gateway.
type Command interface {
	// Payload serializes the command into its wire body.
	Payload() ([]byte, error)
	// TestMode reports whether the command must be routed to test connections.
	TestMode() bool
}

// Connection is a broker connection bound to a single exchange and queue.
type Connection interface {
	// Connect establishes the link. It is a no-op when already connected.
	Connect(ctx context.Context) error
	// Disconnect tears the link down. It is a no-op when not connected.
	Disconnect() error
	// Channel opens a publishing channel on an established connection.
	Channel() (Channel, error)
	ExchangeName() string
	QueueName() string
}

// Channel is a short-lived publishing handle obtained from a Connection.
type Channel interface {
	Publish(ctx context.Context, msg *Message, exchange, queue string) error
	Close() error
}

// Dispatcher publishes commands to registered connections.
type Dispatcher interface {
	Dispatch(ctx context.Context, cmd Command, identifier string, headers Headers) error
}

// DispatcherFunc adapts an ordinary function to the Dispatcher interface.
type DispatcherFunc func(ctx context.Context, cmd Command, identifier string, headers Headers) error

func (f DispatcherFunc) Dispatch(ctx context.Context, cmd Command, identifier string, headers Headers) error {
	return f(ctx, cmd, identifier, headers)
}

// DeliveryMode follows the AMQP numbering.
type DeliveryMode uint8

const (
	TransientDelivery  DeliveryMode = 1
	PersistentDelivery DeliveryMode = 2
)

// Message is the transport envelope built for every dispatched command.
type Message struct {
	ID           string
	Body         []byte
	Headers      Table
	DeliveryMode DeliveryMode
	ContentType  string
	Timestamp    time.Time
}

// Marshaler is a simple encoding interface.
type Marshaler interface {
	Marshal(interface{}) ([]byte, error)
	Unmarshal([]byte, interface{}) error
	String() string
}

package cmdgate

import (
	"context"
	"crypto/tls"
)

// Options contains the connection configuration shared by all transports.
type Options struct {
	// Addrs is a list of broker addresses.
	Addrs []string
	// Exchange is the destination every dispatch on this connection is addressed to.
	Exchange string
	// Queue is the queue name or routing key used alongside Exchange.
	Queue string
	// ClientID names the connection on the broker side, where supported.
	ClientID string
	// Secure specifies whether to use a secure connection.
	Secure bool

	// TLSConfig is the TLS configuration for secure connections.
	TLSConfig *tls.Config

	// Logger receives lifecycle messages and unconsumed option warnings.
	Logger Logger

	// Context carries transport-specific options as tracked values.
	Context context.Context
}

type Option func(*Options)

func NewOptions(opts ...Option) *Options {
	options := Options{
		Context: context.Background(),
	}

	for _, o := range opts {
		o(&options)
	}

	return &options
}

// Address returns the first configured address, or "".
func (o Options) Address() string {
	if len(o.Addrs) > 0 {
		return o.Addrs[0]
	}
	return ""
}

// TLS returns TLSConfig, or a default client config when only Secure is set.
func (o Options) TLS() *tls.Config {
	if o.TLSConfig != nil {
		return o.TLSConfig
	}
	if o.Secure {
		return &tls.Config{MinVersion: tls.VersionTLS12}
	}
	return nil
}

// Addrs sets the host addresses to be used by the connection.
func Addrs(addrs ...string) Option {
	return func(o *Options) {
		o.Addrs = addrs
	}
}

// Exchange sets the exchange (or topic) commands are published to.
func Exchange(name string) Option {
	return func(o *Options) {
		o.Exchange = name
	}
}

// Queue sets the queue name or routing key commands are published with.
func Queue(name string) Option {
	return func(o *Options) {
		o.Queue = name
	}
}

// ClientID sets the client name reported to the broker.
func ClientID(id string) Option {
	return func(o *Options) {
		o.ClientID = id
	}
}

// Secure communication with the broker.
func Secure(b bool) Option {
	return func(o *Options) {
		o.Secure = b
	}
}

// Specify TLS Config.
func TLSConfig(t *tls.Config) Option {
	return func(o *Options) {
		o.TLSConfig = t
	}
}

func WithLogger(l Logger) Option {
	return func(o *Options) {
		o.Logger = l
	}
}

// WithContext replaces the options context, e.g. with one returned by TrackOptions.
func WithContext(ctx context.Context) Option {
	return func(o *Options) {
		o.Context = ctx
	}
}

// RegistryOptions configures a Registry.
type RegistryOptions struct {
	Factory MessageFactory
	Logger  Logger
}

type RegistryOption func(*RegistryOptions)

// WithMessageFactory replaces DefaultMessageFactory.
func WithMessageFactory(f MessageFactory) RegistryOption {
	return func(o *RegistryOptions) {
		o.Factory = f
	}
}

func WithRegistryLogger(l Logger) RegistryOption {
	return func(o *RegistryOptions) {
		o.Logger = l
	}
}

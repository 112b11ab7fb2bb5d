// Package config builds a command registry from a YAML description of its
// connections.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/qvcloud/cmdgate"
	"github.com/qvcloud/cmdgate/brokers/kafka"
	"github.com/qvcloud/cmdgate/brokers/nats"
	"github.com/qvcloud/cmdgate/brokers/pubsub"
	"github.com/qvcloud/cmdgate/brokers/rabbitmq"
	"github.com/qvcloud/cmdgate/brokers/redis"
	"github.com/qvcloud/cmdgate/brokers/rocketmq"
	"github.com/qvcloud/cmdgate/brokers/sqs"
	"gopkg.in/yaml.v3"
)

// NewConnectionFunc constructs an unconnected transport.
type NewConnectionFunc func(opts ...cmdgate.Option) cmdgate.Connection

// Transports maps transport names to their constructors.
var Transports = map[string]NewConnectionFunc{
	"rabbitmq": rabbitmq.NewConnection,
	"kafka":    kafka.NewConnection,
	"nats":     nats.NewConnection,
	"redis":    redis.NewConnection,
	"rocketmq": rocketmq.NewConnection,
	"sqs":      sqs.NewConnection,
	"pubsub":   pubsub.NewConnection,
	"noop": func(opts ...cmdgate.Option) cmdgate.Connection {
		return cmdgate.NewNoopConnection(opts...)
	},
}

type Config struct {
	Connections []ConnectionConfig `yaml:"connections"`
}

type ConnectionConfig struct {
	Identifier string   `yaml:"identifier"`
	Transport  string   `yaml:"transport"`
	Mode       string   `yaml:"mode"`
	Addrs      []string `yaml:"addrs"`
	Exchange   string   `yaml:"exchange"`
	Queue      string   `yaml:"queue"`
	ClientID   string   `yaml:"client_id"`
}

// Options converts the entry into transport options.
func (c ConnectionConfig) Options() []cmdgate.Option {
	opts := []cmdgate.Option{
		cmdgate.Exchange(c.Exchange),
		cmdgate.Queue(c.Queue),
	}
	if len(c.Addrs) > 0 {
		opts = append(opts, cmdgate.Addrs(c.Addrs...))
	}
	if c.ClientID != "" {
		opts = append(opts, cmdgate.ClientID(c.ClientID))
	}
	return opts
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a YAML document. Unknown fields are rejected.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	seen := make(map[string]bool, len(c.Connections))

	for i, conn := range c.Connections {
		if conn.Identifier == "" {
			errs = append(errs, fmt.Errorf("config: connection %d: identifier is required", i))
		} else if seen[conn.Identifier] {
			errs = append(errs, fmt.Errorf("config: connection %d: %w", i, &cmdgate.DuplicateIdentifierError{Identifier: conn.Identifier}))
		}
		seen[conn.Identifier] = true

		if _, ok := Transports[conn.Transport]; !ok {
			errs = append(errs, fmt.Errorf("config: connection %q: unknown transport %q (known: %s)",
				conn.Identifier, conn.Transport, strings.Join(transportNames(), ", ")))
		}
		if _, err := cmdgate.ParseMode(conn.Mode); err != nil {
			errs = append(errs, fmt.Errorf("config: connection %q: %w", conn.Identifier, err))
		}
	}
	return errors.Join(errs...)
}

// DryRun returns a copy of c with every transport replaced by the
// in-memory noop connection.
func (c *Config) DryRun() *Config {
	out := &Config{Connections: make([]ConnectionConfig, len(c.Connections))}
	for i, cc := range c.Connections {
		cc.Transport = "noop"
		out.Connections[i] = cc
	}
	return out
}

// Build registers every configured connection in a new registry.
// Connections are not established until their first dispatch.
func (c *Config) Build(opts ...cmdgate.RegistryOption) (*cmdgate.Registry, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	reg := cmdgate.NewRegistry(opts...)
	for _, cc := range c.Connections {
		mode, _ := cmdgate.ParseMode(cc.Mode)
		conn := Transports[cc.Transport](cc.Options()...)
		if _, err := reg.Register(conn, cc.Identifier, mode); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

func transportNames() []string {
	names := make([]string, 0, len(Transports))
	for name := range Transports {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

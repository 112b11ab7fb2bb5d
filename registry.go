package cmdgate

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// TestPrefix is prepended to the identifier of commands running in test mode.
const TestPrefix = "test_"

// Mode governs what happens to a connection after a successful dispatch.
type Mode int

const (
	// Persistent connections stay open for reuse. It is the default mode.
	Persistent Mode = iota
	// Transient connections are torn down right after each publish.
	Transient
)

func (m Mode) String() string {
	switch m {
	case Persistent:
		return "persistent"
	case Transient:
		return "transient"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

func (m Mode) valid() bool {
	return m == Persistent || m == Transient
}

// ParseMode parses "persistent" or "transient". An empty string means Persistent.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "persistent":
		return Persistent, nil
	case "transient":
		return Transient, nil
	default:
		return Persistent, fmt.Errorf("%w: %q", ErrInvalidMode, s)
	}
}

// ResolveIdentifier returns the registry key a command dispatched under identifier maps to.
func ResolveIdentifier(cmd Command, identifier string) string {
	if cmd.TestMode() {
		return TestPrefix + identifier
	}
	return identifier
}

type record struct {
	identifier string
	conn       Connection
	mode       Mode

	// held for the whole connect, publish, teardown sequence
	mu sync.Mutex
}

// Registry owns a set of named connections and dispatches commands to them.
// It is safe for concurrent use.
type Registry struct {
	opts RegistryOptions

	sync.RWMutex
	records map[string]*record
	closed  bool
}

func NewRegistry(opts ...RegistryOption) *Registry {
	options := RegistryOptions{
		Factory: DefaultMessageFactory{},
	}
	for _, o := range opts {
		o(&options)
	}
	if options.Factory == nil {
		options.Factory = DefaultMessageFactory{}
	}

	return &Registry{
		opts:    options,
		records: make(map[string]*record),
	}
}

// Register adds conn under identifier. The connection is not established here.
func (r *Registry) Register(conn Connection, identifier string, mode Mode) (*Registry, error) {
	if conn == nil {
		return r, ErrNilConnection
	}
	if !mode.valid() {
		return r, fmt.Errorf("%w: %s", ErrInvalidMode, mode)
	}

	r.Lock()
	defer r.Unlock()

	if r.closed {
		return r, ErrRegistryClosed
	}
	if _, ok := r.records[identifier]; ok {
		return r, &DuplicateIdentifierError{Identifier: identifier}
	}

	r.records[identifier] = &record{
		identifier: identifier,
		conn:       conn,
		mode:       mode,
	}
	return r, nil
}

// Lookup returns the connection and mode registered under an already resolved identifier.
func (r *Registry) Lookup(identifier string) (Connection, Mode, bool) {
	r.RLock()
	rec, ok := r.records[identifier]
	r.RUnlock()
	if !ok {
		return nil, Persistent, false
	}
	return rec.conn, rec.mode, true
}

// Identifiers returns the registered identifiers in sorted order.
func (r *Registry) Identifiers() []string {
	r.RLock()
	ids := make([]string, 0, len(r.records))
	for id := range r.records {
		ids = append(ids, id)
	}
	r.RUnlock()

	sort.Strings(ids)
	return ids
}

// Dispatch publishes cmd on the connection registered under identifier,
// or under TestPrefix+identifier when cmd runs in test mode.
//
// A failure after Connect leaves the connection connected.
func (r *Registry) Dispatch(ctx context.Context, cmd Command, identifier string, headers Headers) error {
	if cmd == nil {
		return ErrNilCommand
	}

	resolved := ResolveIdentifier(cmd, identifier)

	r.RLock()
	closed := r.closed
	rec, ok := r.records[resolved]
	r.RUnlock()

	if closed {
		return ErrRegistryClosed
	}
	if !ok {
		return &LookupError{Identifier: resolved}
	}
	if err := headers.Validate(); err != nil {
		return err
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()

	// Close may have run between the check above and acquiring the record
	r.RLock()
	closed = r.closed
	r.RUnlock()
	if closed {
		return ErrRegistryClosed
	}

	return r.publish(ctx, rec, cmd, headers)
}

func (r *Registry) publish(ctx context.Context, rec *record, cmd Command, headers Headers) error {
	conn := rec.conn

	if err := conn.Connect(ctx); err != nil {
		return &TransportError{Op: "connect", Identifier: rec.identifier, Err: err}
	}

	table, err := r.opts.Factory.NewTable(headers)
	if err != nil {
		return err
	}

	body, err := cmd.Payload()
	if err != nil {
		return &SerializationError{Err: err}
	}

	msg, err := r.opts.Factory.NewMessage(body, table)
	if err != nil {
		return err
	}

	ch, err := conn.Channel()
	if err != nil {
		return &TransportError{Op: "channel", Identifier: rec.identifier, Err: err}
	}

	pubErr := ch.Publish(ctx, msg, conn.ExchangeName(), conn.QueueName())
	closeErr := ch.Close()
	if pubErr != nil {
		return &TransportError{Op: "publish", Identifier: rec.identifier, Err: pubErr}
	}

	var errs []error
	if closeErr != nil {
		errs = append(errs, &TransportError{Op: "close", Identifier: rec.identifier, Err: closeErr})
	}

	if rec.mode == Transient {
		if err := conn.Disconnect(); err != nil {
			errs = append(errs, &TransportError{Op: "disconnect", Identifier: rec.identifier, Err: err})
		} else if r.opts.Logger != nil {
			r.opts.Logger.Logf("cmdgate: transient connection %q torn down after publish", rec.identifier)
		}
	}

	return errors.Join(errs...)
}

// Close disconnects every registered connection. Subsequent Register and
// Dispatch calls fail with ErrRegistryClosed.
func (r *Registry) Close() error {
	r.Lock()
	if r.closed {
		r.Unlock()
		return nil
	}
	r.closed = true
	records := make([]*record, 0, len(r.records))
	for _, rec := range r.records {
		records = append(records, rec)
	}
	r.Unlock()

	sort.Slice(records, func(i, j int) bool { return records[i].identifier < records[j].identifier })

	var errs []error
	for _, rec := range records {
		rec.mu.Lock()
		if err := rec.conn.Disconnect(); err != nil {
			errs = append(errs, &TransportError{Op: "disconnect", Identifier: rec.identifier, Err: err})
		}
		rec.mu.Unlock()
	}

	if r.opts.Logger != nil {
		r.opts.Logger.Logf("cmdgate: registry closed, %d connections released", len(records))
	}
	return errors.Join(errs...)
}

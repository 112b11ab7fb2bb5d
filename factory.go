package cmdgate

import (
	"time"

	"github.com/google/uuid"
)

// MessageFactory builds the transport envelope for a dispatched command.
type MessageFactory interface {
	NewTable(h Headers) (Table, error)
	NewMessage(body []byte, table Table) (*Message, error)
}

// DefaultMessageFactory produces persistent JSON messages with a random ID.
type DefaultMessageFactory struct{}

func (DefaultMessageFactory) NewTable(h Headers) (Table, error) {
	t := make(Table, len(h))
	for k, v := range h {
		if k == "" {
			return nil, &HeaderError{Key: k, Reason: "empty key"}
		}
		nv, err := normalizeValue(v)
		if err != nil {
			return nil, &HeaderError{Key: k, Reason: err.Error()}
		}
		t[k] = nv
	}
	return t, nil
}

func (DefaultMessageFactory) NewMessage(body []byte, table Table) (*Message, error) {
	if table == nil {
		table = Table{}
	}
	return &Message{
		ID:           uuid.New().String(),
		Body:         body,
		Headers:      table,
		DeliveryMode: PersistentDelivery,
		ContentType:  "application/json",
		Timestamp:    time.Now(),
	}, nil
}

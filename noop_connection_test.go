package cmdgate

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockLogger struct {
	messages []string
}

func (l *mockLogger) Log(v ...any) {
	l.messages = append(l.messages, fmt.Sprint(v...))
}

func (l *mockLogger) Logf(format string, v ...any) {
	l.messages = append(l.messages, fmt.Sprintf(format, v...))
}

func TestNoopConnection(t *testing.T) {
	conn := NewNoopConnection(Exchange("ex"), Queue("q"))
	assert.Equal(t, "ex", conn.ExchangeName())
	assert.Equal(t, "q", conn.QueueName())
	assert.Equal(t, "noop", conn.String())
	assert.Equal(t, "ex", conn.Options().Exchange)

	_, err := conn.Channel()
	assert.ErrorIs(t, err, ErrNotConnected)

	require.NoError(t, conn.Connect(context.Background()))
	require.NoError(t, conn.Connect(context.Background()))
	assert.Equal(t, 1, conn.Connects())
	assert.True(t, conn.Connected())

	ch, err := conn.Channel()
	require.NoError(t, err)
	assert.Equal(t, 1, conn.OpenChannels())

	msg := &Message{Body: []byte("hello")}
	require.NoError(t, ch.Publish(context.Background(), msg, "ex", "q"))
	require.NoError(t, ch.Close())
	require.NoError(t, ch.Close())
	assert.Equal(t, 0, conn.OpenChannels())

	pubs := conn.Published()
	require.Len(t, pubs, 1)
	assert.Equal(t, Publication{Exchange: "ex", Queue: "q", Message: msg}, pubs[0])

	require.NoError(t, conn.Disconnect())
	require.NoError(t, conn.Disconnect())
	assert.False(t, conn.Connected())
}

func TestNoopChannel_PublishAfterDisconnect(t *testing.T) {
	conn := NewNoopConnection()
	require.NoError(t, conn.Connect(context.Background()))
	ch, err := conn.Channel()
	require.NoError(t, err)
	require.NoError(t, conn.Disconnect())

	err = ch.Publish(context.Background(), &Message{}, "", "")
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestNoopConnection_CanceledContext(t *testing.T) {
	conn := NewNoopConnection()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, conn.Connect(ctx), context.Canceled)
	assert.False(t, conn.Connected())
}

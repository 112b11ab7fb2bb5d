package redis

import (
	"context"
	"errors"
	"testing"

	"github.com/qvcloud/cmdgate"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockRedisClient struct {
	pingFunc   func(ctx context.Context) *redis.StatusCmd
	closeFunc  func() error
	xAddFunc   func(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
	closeCalls int
}

func (m *mockRedisClient) Ping(ctx context.Context) *redis.StatusCmd {
	if m.pingFunc != nil {
		return m.pingFunc(ctx)
	}
	return redis.NewStatusCmd(ctx)
}

func (m *mockRedisClient) Close() error {
	m.closeCalls++
	if m.closeFunc != nil {
		return m.closeFunc()
	}
	return nil
}

func (m *mockRedisClient) XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd {
	if m.xAddFunc != nil {
		return m.xAddFunc(ctx, a)
	}
	return redis.NewStringCmd(ctx)
}

func newTestConnection(client *mockRedisClient, opts ...cmdgate.Option) *redisConnection {
	opts = append([]cmdgate.Option{cmdgate.Addrs("localhost:6379")}, opts...)
	r := NewConnection(opts...).(*redisConnection)
	r.newClient = func(*redis.Options) redisClient { return client }
	return r
}

func TestRedis_Basic(t *testing.T) {
	c := NewConnection(cmdgate.Addrs("localhost:6379"), cmdgate.Exchange("commands"), cmdgate.Queue("orders"))
	r := c.(*redisConnection)
	assert.Equal(t, "redis", r.String())
	assert.Equal(t, "localhost:6379", r.Options().Address())
	assert.Equal(t, "commands", c.ExchangeName())
	assert.Equal(t, "orders", c.QueueName())
}

func TestRedis_Connect_Disconnect(t *testing.T) {
	client := &mockRedisClient{}
	r := newTestConnection(client)

	require.NoError(t, r.Connect(context.Background()))
	assert.True(t, r.running)
	require.NoError(t, r.Connect(context.Background()))

	require.NoError(t, r.Disconnect())
	assert.False(t, r.running)
	assert.Equal(t, 1, client.closeCalls)
	require.NoError(t, r.Disconnect())
	assert.Equal(t, 1, client.closeCalls)
}

func TestRedis_Connect_Errors(t *testing.T) {
	t.Run("NoAddr", func(t *testing.T) {
		assert.Error(t, NewConnection().Connect(context.Background()))
	})

	t.Run("PingError", func(t *testing.T) {
		client := &mockRedisClient{pingFunc: func(ctx context.Context) *redis.StatusCmd {
			cmd := redis.NewStatusCmd(ctx)
			cmd.SetErr(errors.New("connection refused"))
			return cmd
		}}
		r := newTestConnection(client)
		err := r.Connect(context.Background())
		assert.ErrorContains(t, err, "connection refused")
		assert.False(t, r.running)
		assert.Equal(t, 1, client.closeCalls)
	})
}

func TestRedis_Connect_Options(t *testing.T) {
	var captured *redis.Options
	r := newTestConnection(&mockRedisClient{},
		cmdgate.ClientID("gateway"),
		WithPassword("secret"),
		WithDB(3),
		WithMaxLen(1000),
	)
	r.newClient = func(opts *redis.Options) redisClient {
		captured = opts
		return &mockRedisClient{}
	}

	require.NoError(t, r.Connect(context.Background()))
	assert.Equal(t, "localhost:6379", captured.Addr)
	assert.Equal(t, "gateway", captured.ClientName)
	assert.Equal(t, "secret", captured.Password)
	assert.Equal(t, 3, captured.DB)
	assert.Equal(t, int64(1000), r.maxLen)
}

func TestRedis_Channel_NotConnected(t *testing.T) {
	_, err := NewConnection().Channel()
	assert.ErrorIs(t, err, cmdgate.ErrNotConnected)
}

func TestRedis_Publish(t *testing.T) {
	client := &mockRedisClient{}
	var captured *redis.XAddArgs
	client.xAddFunc = func(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd {
		captured = a
		return redis.NewStringCmd(ctx)
	}

	ch := &redisChannel{client: client, maxLen: 10}
	msg := &cmdgate.Message{
		ID:      "id-1",
		Body:    []byte(`{"id":1}`),
		Headers: cmdgate.Table{"trace": "abc"},
	}

	require.NoError(t, ch.Publish(context.Background(), msg, "commands", "orders"))
	assert.Equal(t, "commands:orders", captured.Stream)
	assert.Equal(t, int64(10), captured.MaxLen)
	assert.True(t, captured.Approx)

	values := captured.Values.(map[string]interface{})
	assert.Equal(t, []byte(`{"id":1}`), values["body"])
	assert.Equal(t, "id-1", values["id"])
	assert.Equal(t, "abc", values["h:trace"])

	t.Run("XAddError", func(t *testing.T) {
		client.xAddFunc = func(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd {
			cmd := redis.NewStringCmd(ctx)
			cmd.SetErr(errors.New("OOM"))
			return cmd
		}
		assert.ErrorContains(t, ch.Publish(context.Background(), msg, "", "orders"), "OOM")
	})

	t.Run("NoStream", func(t *testing.T) {
		assert.Error(t, ch.Publish(context.Background(), msg, "", ""))
	})
}

func TestStream(t *testing.T) {
	assert.Equal(t, "a:b", Stream("a", "b"))
	assert.Equal(t, "a", Stream("a", ""))
	assert.Equal(t, "b", Stream("", "b"))
}

func TestRedis_Registry_Persistent(t *testing.T) {
	client := &mockRedisClient{}
	adds := 0
	client.xAddFunc = func(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd {
		adds++
		return redis.NewStringCmd(ctx)
	}
	r := newTestConnection(client, cmdgate.Queue("orders"))

	reg := cmdgate.NewRegistry()
	_, err := reg.Register(r, "orders", cmdgate.Persistent)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		require.NoError(t, reg.Dispatch(context.Background(), cmdgate.NewJSONCommand(i, false), "orders", nil))
	}
	assert.Equal(t, 3, adds)
	assert.True(t, r.running)
	assert.Equal(t, 0, client.closeCalls)

	require.NoError(t, reg.Close())
	assert.Equal(t, 1, client.closeCalls)
}

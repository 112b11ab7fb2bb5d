package cmdgate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeaders_Validate(t *testing.T) {
	valid := Headers{
		"nil":     nil,
		"bool":    true,
		"string":  "s",
		"bytes":   []byte("b"),
		"int":     1,
		"int8":    int8(1),
		"int16":   int16(1),
		"int32":   int32(1),
		"int64":   int64(1),
		"uint8":   uint8(1),
		"float32": float32(1.5),
		"float64": 1.5,
		"time":    time.Unix(0, 0),
		"any":     []any{"a", 1, true},
		"strings": []string{"a"},
		"ints":    []int{1},
		"int64s":  []int64{1},
		"floats":  []float64{1},
		"bools":   []bool{true},
	}
	assert.NoError(t, valid.Validate())

	var nilHeaders Headers
	assert.NoError(t, nilHeaders.Validate())

	tests := []struct {
		name    string
		headers Headers
	}{
		{"EmptyKey", Headers{"": "x"}},
		{"Struct", Headers{"k": struct{}{}}},
		{"Map", Headers{"k": map[string]any{"nested": 1}}},
		{"Uint64", Headers{"k": uint64(1)}},
		{"NestedArray", Headers{"k": []any{[]any{1}}}},
		{"Pointer", Headers{"k": new(int)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.headers.Validate()
			assert.ErrorIs(t, err, ErrInvalidHeader)
		})
	}
}

func TestDefaultMessageFactory(t *testing.T) {
	f := DefaultMessageFactory{}

	table, err := f.NewTable(Headers{"tags": []string{"a", "b"}, "n": 1})
	require.NoError(t, err)
	assert.Equal(t, Table{"tags": []any{"a", "b"}, "n": 1}, table)

	empty, err := f.NewTable(nil)
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)

	_, err = f.NewTable(Headers{"k": struct{}{}})
	assert.ErrorIs(t, err, ErrInvalidHeader)

	msg, err := f.NewMessage([]byte("{}"), nil)
	require.NoError(t, err)
	assert.Equal(t, PersistentDelivery, msg.DeliveryMode)
	assert.Equal(t, "application/json", msg.ContentType)
	assert.Equal(t, []byte("{}"), msg.Body)
	assert.NotNil(t, msg.Headers)
	assert.NotEmpty(t, msg.ID)
	assert.False(t, msg.Timestamp.IsZero())

	other, err := f.NewMessage(nil, Table{})
	require.NoError(t, err)
	assert.NotEqual(t, msg.ID, other.ID)
}

func TestTable_StringMap(t *testing.T) {
	ts := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	table := Table{
		"s":    "x",
		"b":    []byte("raw"),
		"n":    42,
		"f":    1.5,
		"ok":   true,
		"nil":  nil,
		"t":    ts,
		"list": []any{"a", 1},
	}

	got := table.StringMap()
	assert.Equal(t, map[string]string{
		"s":    "x",
		"b":    "raw",
		"n":    "42",
		"f":    "1.5",
		"ok":   "true",
		"nil":  "",
		"t":    "2024-01-02T03:04:05Z",
		"list": `["a",1]`,
	}, got)
}

package cmdgate

import (
	"testing"
	"time"
)

func BenchmarkCommandPayload(b *testing.B) {
	cmd := NewJSONCommand(struct {
		ID    int      `json:"id"`
		Items []string `json:"items"`
	}{ID: 42, Items: []string{"a", "b"}}, false)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = cmd.Payload()
	}
}

func BenchmarkMessageFactory(b *testing.B) {
	f := DefaultMessageFactory{}
	headers := Headers{
		"trace":   "abc",
		"attempt": 3,
		"tags":    []string{"x", "y"},
		"sent_at": time.Unix(0, 0),
	}
	body := []byte(`{"id":42}`)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		table, _ := f.NewTable(headers)
		_, _ = f.NewMessage(body, table)
	}
}

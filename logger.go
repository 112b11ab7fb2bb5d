package cmdgate

import (
	"fmt"

	"github.com/rs/zerolog"
)

// Logger is the minimal logging surface used by the registry and transports.
type Logger interface {
	Log(v ...any)
	Logf(format string, v ...any)
}

type zerologLogger struct {
	l zerolog.Logger
}

// NewZerologLogger writes Log and Logf calls as debug events on l.
func NewZerologLogger(l zerolog.Logger) Logger {
	return &zerologLogger{l: l}
}

func (z *zerologLogger) Log(v ...any) {
	z.l.Debug().Msg(fmt.Sprint(v...))
}

func (z *zerologLogger) Logf(format string, v ...any) {
	z.l.Debug().Msgf(format, v...)
}

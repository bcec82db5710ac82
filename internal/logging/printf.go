package logging

import (
	"context"
	"fmt"
	"strings"
)

// PrintfLogger adapts a Logger to libraries that log through Printf and
// Fatalf, such as goose. Printf lines are logged at debug level.
type PrintfLogger struct {
	l Logger
}

func NewPrintfLogger(l Logger) *PrintfLogger {
	if l == nil {
		l = Nop{}
	}
	return &PrintfLogger{l: l}
}

func (p *PrintfLogger) Printf(format string, v ...any) {
	p.l.Debug(context.Background(), strings.TrimSpace(fmt.Sprintf(format, v...)))
}

// Fatalf logs at error level and returns; the caller reports the failure
// through its own error.
func (p *PrintfLogger) Fatalf(format string, v ...any) {
	p.l.Error(context.Background(), strings.TrimSpace(fmt.Sprintf(format, v...)))
}

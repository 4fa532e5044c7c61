package logsvc

import (
	"io"
	"os"

	"github.com/rs/zerolog"

	"github.com/kmunyaka/shule/core"
)

// ConsoleLogger is the local-dev logger: pretty zerolog output, no
// external reporting.
type ConsoleLogger struct {
	zl zerolog.Logger
}

var _ core.Logger = (*ConsoleLogger)(nil)

func NewConsoleLogger(out ...io.Writer) *ConsoleLogger {
	var w io.Writer = os.Stdout
	if len(out) > 0 {
		w = out[0]
	}
	zl := zerolog.New(zerolog.ConsoleWriter{Out: w}).With().Timestamp().Logger()
	return &ConsoleLogger{zl: zl}
}

func (l ConsoleLogger) emit(evt *zerolog.Event, msg string, args []interface{}) {
	for _, arg := range args {
		switch v := arg.(type) {
		case error:
			evt = evt.AnErr("error", v)
		case map[string]interface{}:
			evt = evt.Fields(v)
		default:
			evt = evt.Interface("arg", v)
		}
	}
	evt.Msg(msg)
}

func (l ConsoleLogger) Debug(msg string, args ...interface{}) { l.emit(l.zl.Debug(), msg, args) }
func (l ConsoleLogger) Info(msg string, args ...interface{})  { l.emit(l.zl.Info(), msg, args) }
func (l ConsoleLogger) Warn(msg string, args ...interface{})  { l.emit(l.zl.Warn(), msg, args) }
func (l ConsoleLogger) Error(msg string, args ...interface{}) { l.emit(l.zl.Error(), msg, args) }
func (l ConsoleLogger) Fatal(msg string, args ...interface{}) { l.emit(l.zl.Fatal(), msg, args) }

package snowflake

// Level is the severity of a diagnostic reported through a Sink.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Sink receives diagnostics about waits and clock regressions. Any logging
// facility can satisfy it.
type Sink interface {
	Log(level Level, msg string, err error)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(level Level, msg string, err error)

func (f SinkFunc) Log(level Level, msg string, err error) { f(level, msg, err) }

type nopSink struct{}

func (nopSink) Log(Level, string, error) {}

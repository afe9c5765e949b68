package logger

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
)

// Backend selects where log entries are rendered.
type Backend string

const (
	BackendJSON    Backend = "json"    // one JSON object per line (default)
	BackendZerolog Backend = "zerolog" // rs/zerolog, console output when Output is a terminal writer
	BackendNone    Backend = "none"    // discard
)

// ParseBackend maps a config value to a Backend, defaulting to JSON.
func ParseBackend(s string) Backend {
	switch Backend(strings.ToLower(strings.TrimSpace(s))) {
	case BackendZerolog:
		return BackendZerolog
	case BackendNone:
		return BackendNone
	default:
		return BackendJSON
	}
}

type backend interface {
	enabled() bool
	write(level Level, entry *LogEntry)
}

func newBackend(kind Backend, out io.Writer) backend {
	switch kind {
	case BackendZerolog:
		return &zerologBackend{zl: zerolog.New(out).With().Timestamp().Logger()}
	case BackendNone:
		return noneBackend{}
	default:
		return &jsonBackend{output: out}
	}
}

type jsonBackend struct {
	mu     sync.Mutex
	output io.Writer
}

func (b *jsonBackend) enabled() bool { return true }

func (b *jsonBackend) write(_ Level, entry *LogEntry) {
	data, err := json.Marshal(entry)

	b.mu.Lock()
	defer b.mu.Unlock()

	if err != nil {
		fmt.Fprintf(b.output, `{"level":"ERROR","message":"failed to marshal log entry: %s"}`+"\n", err)
		return
	}
	b.output.Write(append(data, '\n'))
}

type zerologBackend struct {
	zl zerolog.Logger
}

func (b *zerologBackend) enabled() bool { return true }

func (b *zerologBackend) write(level Level, entry *LogEntry) {
	ev := b.zl.WithLevel(toZerologLevel(level))
	if entry.Service != "" {
		ev = ev.Str("service", entry.Service)
	}
	if entry.RequestID != "" {
		ev = ev.Str("request_id", entry.RequestID)
	}
	if entry.NodeID != nil {
		ev = ev.Int64("node_id", *entry.NodeID)
	}
	if entry.Error != "" {
		ev = ev.Str("error", entry.Error)
	}
	if entry.Duration > 0 {
		ev = ev.Float64("duration_ms", entry.Duration)
	}
	if entry.File != "" {
		ev = ev.Str("file", entry.File).Int("line", entry.Line)
	}
	if entry.Stack != "" {
		ev = ev.Str("stack", entry.Stack)
	}
	if len(entry.Fields) > 0 {
		ev = ev.Fields(entry.Fields)
	}
	ev.Msg(entry.Message)
}

func toZerologLevel(level Level) zerolog.Level {
	switch level {
	case LevelDebug:
		return zerolog.DebugLevel
	case LevelInfo:
		return zerolog.InfoLevel
	case LevelWarn:
		return zerolog.WarnLevel
	case LevelError:
		return zerolog.ErrorLevel
	case LevelFatal:
		return zerolog.FatalLevel
	default:
		return zerolog.NoLevel
	}
}

type noneBackend struct{}

func (noneBackend) enabled() bool          { return false }
func (noneBackend) write(Level, *LogEntry) {}

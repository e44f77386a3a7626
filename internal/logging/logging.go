// Package logging builds the structured bolt logger shared by all components.
package logging

import (
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/felixgeelhaar/bolt/v3"

	"github.com/vitalog/vitalog/pkg/types"
)

// Config configures the logger.
type Config struct {
	// Level is the minimum log level (trace, debug, info, warn, error).
	Level string `json:"level" yaml:"level"`

	// Format is the output format (json or console).
	Format string `json:"format" yaml:"format"`
}

// DefaultConfig logs JSON at info level.
func DefaultConfig() Config {
	return Config{Level: "info", Format: "json"}
}

// New creates a logger writing to out (stdout when nil).
func New(cfg Config, out io.Writer) *bolt.Logger {
	if out == nil {
		out = os.Stdout
	}
	var handler bolt.Handler
	if strings.EqualFold(cfg.Format, "console") {
		handler = bolt.NewConsoleHandler(out)
	} else {
		handler = bolt.NewJSONHandler(out)
	}
	return bolt.New(handler).SetLevel(ParseLevel(cfg.Level))
}

// Nop returns a logger that discards everything. Used as the default in tests.
func Nop() *bolt.Logger {
	return bolt.New(bolt.NewJSONHandler(io.Discard)).SetLevel(bolt.ERROR)
}

// ParseLevel converts a level name to bolt.Level, defaulting to info.
func ParseLevel(s string) bolt.Level {
	switch strings.ToLower(s) {
	case "trace":
		return bolt.TRACE
	case "debug":
		return bolt.DEBUG
	case "warn", "warning":
		return bolt.WARN
	case "error":
		return bolt.ERROR
	default:
		return bolt.INFO
	}
}

// Field applies structured data to a log event.
type Field func(*bolt.Event) *bolt.Event

// With applies fields to e in order.
func With(e *bolt.Event, fields ...Field) *bolt.Event {
	for _, f := range fields {
		e = f(e)
	}
	return e
}

// Component tags the emitting subsystem.
func Component(name string) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Str("component", name)
	}
}

// Operation tags the operation being performed.
func Operation(op string) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Str("operation", op)
	}
}

// UserID adds the producer id.
func UserID(id int64) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Int64("user_id", id)
	}
}

// Date adds a calendar date.
func Date(d types.Date) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Str("date", d.String())
	}
}

// Kind adds a metric kind.
func Kind(k types.Kind) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Str("kind", k.String())
	}
}

// Value adds a metric value.
func Value(v float64) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Str("value", strconv.FormatFloat(v, 'f', -1, 64))
	}
}

// EventID adds a raw event id.
func EventID(id string) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Str("event_id", id)
	}
}

// Duration adds a duration in milliseconds.
func Duration(d time.Duration) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Int64("duration_ms", d.Milliseconds())
	}
}

// Count adds an integer count under key.
func Count(key string, n int) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Int(key, n)
	}
}

// Int64 adds an int64 field with a custom key.
func Int64(key string, n int64) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Int64(key, n)
	}
}

// Str adds a string field with a custom key.
func Str(key, value string) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Str(key, value)
	}
}

// Error adds an error field; nil is ignored.
func Error(err error) Field {
	return func(e *bolt.Event) *bolt.Event {
		if err == nil {
			return e
		}
		return e.Err(err)
	}
}

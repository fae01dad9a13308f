// Package logging wraps the application logger so that every string, error and message
// that reaches a log sink is passed through credential redaction first.
package logging

import (
	"time"

	"github.com/olegiv/go-logger"
	"github.com/rs/zerolog"

	internalerrors "github.com/olegiv/meterlog-analyzer-go/internal/errors"
)

// SecureLogger wraps a logger.Logger and sanitizes all string values.
type SecureLogger struct {
	log *logger.Logger
}

// NewSecure creates a new SecureLogger wrapper around the provided logger.
func NewSecure(log *logger.Logger) *SecureLogger {
	return &SecureLogger{log: log}
}

// SecureEvent wraps a zerolog Event to provide secure string methods.
// A nil inner event (level disabled) is a no-op, as in zerolog.
type SecureEvent struct {
	event *zerolog.Event
}

func (s *SecureLogger) Info() *SecureEvent  { return &SecureEvent{event: s.log.Info()} }
func (s *SecureLogger) Debug() *SecureEvent { return &SecureEvent{event: s.log.Debug()} }
func (s *SecureLogger) Warn() *SecureEvent  { return &SecureEvent{event: s.log.Warn()} }
func (s *SecureLogger) Error() *SecureEvent { return &SecureEvent{event: s.log.Error()} }

// Close closes the underlying logger.
func (s *SecureLogger) Close() error {
	return s.log.Close()
}

// Str adds a string field with credentials redacted.
func (e *SecureEvent) Str(key, val string) *SecureEvent {
	e.event.Str(key, internalerrors.SanitizeString(val))
	return e
}

// Strs adds a string slice field with credentials redacted from every element.
func (e *SecureEvent) Strs(key string, vals []string) *SecureEvent {
	clean := make([]string, len(vals))
	for i, v := range vals {
		clean[i] = internalerrors.SanitizeString(v)
	}
	e.event.Strs(key, clean)
	return e
}

func (e *SecureEvent) Int(key string, val int) *SecureEvent {
	e.event.Int(key, val)
	return e
}

func (e *SecureEvent) Int64(key string, val int64) *SecureEvent {
	e.event.Int64(key, val)
	return e
}

func (e *SecureEvent) Float64(key string, val float64) *SecureEvent {
	e.event.Float64(key, val)
	return e
}

func (e *SecureEvent) Bool(key string, val bool) *SecureEvent {
	e.event.Bool(key, val)
	return e
}

// Time adds a timestamp field.
func (e *SecureEvent) Time(key string, val time.Time) *SecureEvent {
	e.event.Time(key, val)
	return e
}

// Dur adds a duration field.
func (e *SecureEvent) Dur(key string, val time.Duration) *SecureEvent {
	e.event.Dur(key, val)
	return e
}

// Err adds an error field with credentials redacted from its message.
func (e *SecureEvent) Err(err error) *SecureEvent {
	if err != nil {
		e.event.Err(internalerrors.SanitizeError(err))
	}
	return e
}

// Msg sends the log event with a sanitized message.
func (e *SecureEvent) Msg(msg string) {
	e.event.Msg(internalerrors.SanitizeString(msg))
}

// Msgf sends a formatted log event. String and error arguments are sanitized;
// other types pass through unchanged.
func (e *SecureEvent) Msgf(format string, v ...any) {
	args := make([]any, len(v))
	for i, arg := range v {
		switch a := arg.(type) {
		case string:
			args[i] = internalerrors.SanitizeString(a)
		case error:
			args[i] = internalerrors.SanitizeError(a)
		default:
			args[i] = arg
		}
	}
	e.event.Msgf(format, args...)
}

// Interface adds an arbitrary field. Only plain string values are sanitized;
// use Str for anything that may carry credentials.
func (e *SecureEvent) Interface(key string, val any) *SecureEvent {
	if s, ok := val.(string); ok {
		e.event.Str(key, internalerrors.SanitizeString(s))
		return e
	}
	e.event.Interface(key, val)
	return e
}

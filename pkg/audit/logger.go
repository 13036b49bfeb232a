package audit

import (
	"context"
	"time"

	"github.com/nodusnet/console/pkg/contextkeys"
	"github.com/nodusnet/console/pkg/observability"
)

// Logger is the interface for audit logging
type Logger interface {
	// Log records an audit event
	Log(ctx context.Context, event *Event) error

	// Close flushes any buffered events
	Close() error
}

// NewEvent builds an event stamped with the actor and request context
// carried by ctx.
func NewEvent(ctx context.Context, eventType EventType, status EventStatus, message string) *Event {
	e := &Event{
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		Status:    status,
		Message:   message,
		RequestID: observability.GetRequestID(ctx),
	}
	if sess := contextkeys.SessionFrom(ctx); sess != nil {
		e.SessionID = sess.ID
		e.UserID = sess.UserID
		e.Username = sess.Username
	}
	return e
}

// noOpLogger discards all events; used when auditing is not configured.
type noOpLogger struct{}

func (noOpLogger) Log(ctx context.Context, event *Event) error { return nil }
func (noOpLogger) Close() error                                { return nil }

// NopLogger returns a logger that discards everything.
func NopLogger() Logger { return noOpLogger{} }

// MultiLogger fans events out to several loggers. The first error wins but
// every logger still receives the event.
type MultiLogger struct {
	loggers []Logger
}

// NewMultiLogger creates a logger writing to all the given loggers.
func NewMultiLogger(loggers ...Logger) *MultiLogger {
	return &MultiLogger{loggers: loggers}
}

func (m *MultiLogger) Log(ctx context.Context, event *Event) error {
	var firstErr error
	for _, l := range m.loggers {
		if err := l.Log(ctx, event); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (m *MultiLogger) Close() error {
	var firstErr error
	for _, l := range m.loggers {
		if err := l.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Package events defines the lifecycle events of a chat request.
package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"
)

// Type represents the kind of event.
type Type string

const (
	RequestStarted   Type = "request.started"
	RequestResolved  Type = "request.resolved"
	RequestFallback  Type = "request.fallback"
	ReplyDropped     Type = "reply.dropped"
	ExtractionFailed Type = "extraction.failed"
)

// Event is a structured event emitted while a request is handled.
type Event struct {
	Type      Type           `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	Session   string         `json:"session"`
	Data      map[string]any `json:"data,omitempty"`
}

// New creates an event for session.
func New(eventType Type, session string) *Event {
	return &Event{
		Type:      eventType,
		Timestamp: time.Now(),
		Session:   session,
	}
}

// WithData adds a data field and returns the event for chaining.
func (e *Event) WithData(key string, value any) *Event {
	if e.Data == nil {
		e.Data = make(map[string]any)
	}
	e.Data[key] = value
	return e
}

// JSON returns the event serialized as JSON.
func (e *Event) JSON() ([]byte, error) {
	return json.Marshal(e)
}

// Emitter is the interface for event consumers.
type Emitter interface {
	Emit(event *Event)
}

// NoopEmitter discards all events.
type NoopEmitter struct{}

// Emit implements Emitter by discarding the event.
func (NoopEmitter) Emit(*Event) {}

// LogEmitter writes events to a structured logger at info level.
type LogEmitter struct {
	Logger *slog.Logger
}

// Emit implements Emitter.
func (l LogEmitter) Emit(e *Event) {
	attrs := []slog.Attr{
		slog.String("event", string(e.Type)),
		slog.String("session", e.Session),
	}
	for k, v := range e.Data {
		attrs = append(attrs, slog.Any(k, v))
	}
	l.Logger.LogAttrs(context.Background(), slog.LevelInfo, "request event", attrs...)
}

// CollectorEmitter collects events in memory for testing. It is safe for
// concurrent use.
type CollectorEmitter struct {
	mu     sync.Mutex
	events []*Event
}

// Emit appends the event to the collector.
func (c *CollectorEmitter) Emit(event *Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
}

// Events returns a copy of the collected events.
func (c *CollectorEmitter) Events() []*Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*Event(nil), c.events...)
}

// Count returns how many events of type t were collected.
func (c *CollectorEmitter) Count(t Type) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, e := range c.events {
		if e.Type == t {
			n++
		}
	}
	return n
}

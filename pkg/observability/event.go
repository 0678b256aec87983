// Package observability carries pipeline events to logs, streams and metrics.
package observability

import (
	"sync"
	"time"
)

// Event names emitted by the pipeline and router.
const (
	EventStage           = "pipeline.stage"
	EventRoutingDecision = "routing.decision"
	EventValidation      = "validation.outcome"
	EventRequestDone     = "request.completed"
	EventSnapshotLoaded  = "snapshot.loaded"
)

// Common field keys.
const (
	FieldEvent     = "event"
	FieldRequestID = "request_id"
	FieldStage     = "stage"
	FieldState     = "state"
	FieldBackend   = "backend"
	FieldReason    = "reason"
	FieldPurpose   = "purpose"
	FieldAttempt   = "attempt"
	FieldOutcome   = "outcome"
	FieldLatencyMS = "latency_ms"
	FieldCostUSD   = "cost_usd"
	FieldError     = "error"
	FieldStatus    = "status"
	FieldCode      = "code"
	FieldTimestamp = "ts"
)

// Event is a flat record of scalar values: string, bool, int, int64 or float64.
type Event map[string]any

// NewEvent creates an event with its name, request id and timestamp set.
func NewEvent(name, requestID string) Event {
	return Event{
		FieldEvent:     name,
		FieldRequestID: requestID,
		FieldTimestamp: time.Now().UTC().Format(time.RFC3339Nano),
	}
}

// Name returns the event name.
func (e Event) Name() string {
	s, _ := e[FieldEvent].(string)
	return s
}

// String returns the value at key if it is a string.
func (e Event) String(key string) string {
	s, _ := e[key].(string)
	return s
}

// Float returns the value at key as a float64 if it is numeric.
func (e Event) Float(key string) (float64, bool) {
	switch v := e[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	default:
		return 0, false
	}
}

// Clone returns a shallow copy, which is a full copy for scalar values.
func (e Event) Clone() Event {
	out := make(Event, len(e))
	for k, v := range e {
		out[k] = v
	}
	return out
}

// Millis converts a duration to fractional milliseconds for latency fields.
func Millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

// Sink receives events. Emit must not block the caller for long and must be
// safe for concurrent use.
type Sink interface {
	Emit(Event)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Event)

// Emit implements Sink.
func (f SinkFunc) Emit(e Event) { f(e) }

// NopSink discards every event.
type NopSink struct{}

// Emit implements Sink.
func (NopSink) Emit(Event) {}

// MultiSink fans every event out to each sink in order.
type MultiSink []Sink

// Emit implements Sink. Each sink receives its own copy.
func (m MultiSink) Emit(e Event) {
	for _, s := range m {
		if s != nil {
			s.Emit(e.Clone())
		}
	}
}

// Combine returns a sink emitting to all non-nil sinks.
func Combine(sinks ...Sink) Sink {
	out := make(MultiSink, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	switch len(out) {
	case 0:
		return NopSink{}
	case 1:
		return out[0]
	default:
		return out
	}
}

// RecorderSink keeps events in memory, for tests and the CLI's verbose output.
type RecorderSink struct {
	mu     sync.Mutex
	events []Event
}

// Emit implements Sink.
func (r *RecorderSink) Emit(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e.Clone())
}

// Events returns a copy of the recorded events.
func (r *RecorderSink) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Named returns recorded events with the given name.
func (r *RecorderSink) Named(name string) []Event {
	var out []Event
	for _, e := range r.Events() {
		if e.Name() == name {
			out = append(out, e)
		}
	}
	return out
}

// ForRequest returns recorded events belonging to one request.
func (r *RecorderSink) ForRequest(requestID string) []Event {
	var out []Event
	for _, e := range r.Events() {
		if e.String(FieldRequestID) == requestID {
			out = append(out, e)
		}
	}
	return out
}

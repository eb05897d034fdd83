package events

import (
	"context"
	"log/slog"
	"strconv"
	"sync"

	"github.com/ruteri/tee-agent-registry/interfaces"
	"github.com/ruteri/tee-agent-registry/metrics"
)

// DefaultRecorderCapacity bounds the in-memory event log.
const DefaultRecorderCapacity = 10000

// LogSink writes every event to a structured logger.
type LogSink struct {
	log *slog.Logger
}

func NewLogSink(log *slog.Logger) *LogSink {
	return &LogSink{log: log}
}

func (s *LogSink) Emit(ctx context.Context, event interfaces.Event) {
	switch data := event.Data.(type) {
	case interfaces.AgentRemovedEvent:
		s.log.InfoContext(ctx, "Agent removed",
			slog.String("event", event.Name),
			slog.String("account", data.Account.String()),
			slog.Any("reasons", data.Reasons))
	case interfaces.AgentRegisteredEvent:
		s.log.InfoContext(ctx, "Agent registered",
			slog.String("event", event.Name),
			slog.String("account", data.Account.String()),
			slog.String("platform_id", data.PlatformID.String()),
			slog.Time("valid_until", data.ValidUntil))
	case interfaces.SignatureResultEvent:
		if data.Error != "" {
			s.log.ErrorContext(ctx, "Signature request failed",
				slog.String("event", event.Name),
				slog.String("request_id", data.RequestID),
				slog.String("caller", data.Caller.String()),
				slog.String("err", data.Error))
			return
		}
		s.log.InfoContext(ctx, "Signature request completed",
			slog.String("event", event.Name),
			slog.String("request_id", data.RequestID),
			slog.String("caller", data.Caller.String()))
	default:
		s.log.InfoContext(ctx, "Event", slog.String("event", event.Name), slog.Any("data", event.Data))
	}
}

// Recorder keeps the most recent events in memory for the events endpoint
// and for tests.
type Recorder struct {
	mu       sync.Mutex
	capacity int
	events   []interfaces.Event
}

// NewRecorder creates a recorder holding at most capacity events. A
// non-positive capacity uses DefaultRecorderCapacity.
func NewRecorder(capacity int) *Recorder {
	if capacity <= 0 {
		capacity = DefaultRecorderCapacity
	}
	return &Recorder{capacity: capacity}
}

func (r *Recorder) Emit(_ context.Context, event interfaces.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	if over := len(r.events) - r.capacity; over > 0 {
		r.events = append([]interfaces.Event(nil), r.events[over:]...)
	}
}

// List returns up to limit events starting at offset, oldest first. A
// non-positive limit returns everything after offset.
func (r *Recorder) List(offset, limit int) []interfaces.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	if offset < 0 || offset >= len(r.events) {
		return []interfaces.Event{}
	}
	end := len(r.events)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	out := make([]interfaces.Event, end-offset)
	copy(out, r.events[offset:end])
	return out
}

// Named returns every recorded event with the given name.
func (r *Recorder) Named(name string) []interfaces.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []interfaces.Event
	for _, e := range r.events {
		if e.Name == name {
			out = append(out, e)
		}
	}
	return out
}

func (r *Recorder) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

// MetricsSink counts events and their removal reasons and signature outcomes.
type MetricsSink struct {
	m *metrics.Metrics
}

func NewMetricsSink(m *metrics.Metrics) *MetricsSink {
	return &MetricsSink{m: m}
}

func (s *MetricsSink) Emit(_ context.Context, event interfaces.Event) {
	s.m.Events.WithLabelValues(event.Name).Inc()
	switch data := event.Data.(type) {
	case interfaces.AgentRemovedEvent:
		for _, reason := range data.Reasons {
			s.m.AgentRemovals.WithLabelValues(string(reason)).Inc()
		}
	case interfaces.SignatureResultEvent:
		outcome := "ok"
		if data.Error != "" {
			outcome = "error"
		}
		s.m.SignatureResult.WithLabelValues(strconv.FormatUint(uint64(data.Domain), 10), outcome).Inc()
	}
}

// Fanout forwards each event to every sink in order.
type Fanout []interfaces.EventSink

func (f Fanout) Emit(ctx context.Context, event interfaces.Event) {
	for _, sink := range f {
		if sink != nil {
			sink.Emit(ctx, event)
		}
	}
}

// Discard drops every event.
type Discard struct{}

func (Discard) Emit(context.Context, interfaces.Event) {}

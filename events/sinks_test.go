package events

import (
	"bytes"
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/ruteri/tee-agent-registry/interfaces"
	"github.com/ruteri/tee-agent-registry/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func removedEvent(reasons ...interfaces.RemovalReason) interfaces.Event {
	return interfaces.Event{
		Name: interfaces.EventAgentRemoved,
		Time: time.Unix(1700000000, 0),
		Data: interfaces.AgentRemovedEvent{Account: interfaces.AccountID{1}, Reasons: reasons},
	}
}

func TestRecorderList(t *testing.T) {
	r := NewRecorder(3)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		r.Emit(ctx, interfaces.Event{Name: "e", Data: i})
	}

	require.Equal(t, 3, r.Count())
	all := r.List(0, 0)
	require.Len(t, all, 3)
	assert.Equal(t, 2, all[0].Data)
	assert.Equal(t, 4, all[2].Data)

	page := r.List(1, 1)
	require.Len(t, page, 1)
	assert.Equal(t, 3, page[0].Data)

	assert.Empty(t, r.List(3, 10))
	assert.Empty(t, r.List(-1, 10))
}

func TestRecorderNamed(t *testing.T) {
	r := NewRecorder(0)
	ctx := context.Background()
	r.Emit(ctx, removedEvent(interfaces.ReasonManualRemoval))
	r.Emit(ctx, interfaces.Event{Name: interfaces.EventAgentRegistered})

	removed := r.Named(interfaces.EventAgentRemoved)
	require.Len(t, removed, 1)
	assert.Equal(t, []interfaces.RemovalReason{interfaces.ReasonManualRemoval}, removed[0].Data.(interfaces.AgentRemovedEvent).Reasons)
}

func TestLogSink(t *testing.T) {
	var buf bytes.Buffer
	sink := NewLogSink(slog.New(slog.NewTextHandler(&buf, nil)))

	sink.Emit(context.Background(), removedEvent(interfaces.ReasonExpiredAttestation, interfaces.ReasonInvalidMeasurements))
	assert.Contains(t, buf.String(), "Agent removed")
	assert.Contains(t, buf.String(), "ExpiredAttestation")

	buf.Reset()
	sink.Emit(context.Background(), interfaces.Event{
		Name: interfaces.EventSignatureResult,
		Data: interfaces.SignatureResultEvent{RequestID: "req-1", Error: "signer unavailable"},
	})
	assert.Contains(t, buf.String(), "level=ERROR")
	assert.Contains(t, buf.String(), "req-1")
}

func TestFanoutAndMetricsSink(t *testing.T) {
	m, err := metrics.NewMetrics("test", prometheus.NewRegistry())
	require.NoError(t, err)

	recorder := NewRecorder(0)
	fanout := Fanout{recorder, NewMetricsSink(m), nil, Discard{}}

	fanout.Emit(context.Background(), removedEvent(interfaces.ReasonExpiredAttestation))
	fanout.Emit(context.Background(), interfaces.Event{
		Name: interfaces.EventSignatureResult,
		Data: interfaces.SignatureResultEvent{RequestID: "req-2", Domain: 1},
	})

	assert.Equal(t, 2, recorder.Count())
}

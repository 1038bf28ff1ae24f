package telemetry

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/patrickwarner/adprovision/internal/observability"
)

type recordingWriter struct {
	mu      sync.Mutex
	batches [][]Event
	err     error
	closed  bool
}

func (w *recordingWriter) WriteBatch(_ context.Context, events []Event) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.batches = append(w.batches, append([]Event(nil), events...))
	return nil
}

func (w *recordingWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	return nil
}

func (w *recordingWriter) events() []Event {
	w.mu.Lock()
	defer w.mu.Unlock()
	var out []Event
	for _, b := range w.batches {
		out = append(out, b...)
	}
	return out
}

func TestClickHouseSinkFlushesOnClose(t *testing.T) {
	defer goleak.VerifyNone(t)

	w := &recordingWriter{}
	s := NewClickHouseSink(w, ClickHouseConfig{BatchSize: 10, FlushPeriod: time.Hour}, zaptest.NewLogger(t), nil)
	s.Emit(Event{Type: LineCreationStart, RunID: "r1"})
	s.Emit(Event{Type: CreativeCreation, RunID: "r1", Size: "300x250"})
	s.Emit(Event{Type: LineCreationSuccess, RunID: "r1"})

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	got := w.events()
	require.Len(t, got, 3)
	assert.Equal(t, LineCreationStart, got[0].Type)
	assert.False(t, got[0].Timestamp.IsZero())
	assert.True(t, w.closed)
}

func TestClickHouseSinkFlushesFullBatch(t *testing.T) {
	defer goleak.VerifyNone(t)

	w := &recordingWriter{}
	s := NewClickHouseSink(w, ClickHouseConfig{BatchSize: 2, FlushPeriod: time.Hour}, zaptest.NewLogger(t), nil)
	defer s.Close()

	s.Emit(Event{Type: CreativeCreation, Size: "300x250"})
	s.Emit(Event{Type: CreativeCreation, Size: "728x90"})

	require.Eventually(t, func() bool { return len(w.events()) == 2 }, time.Second, 5*time.Millisecond)
}

func TestClickHouseSinkDropsWhenFull(t *testing.T) {
	defer goleak.VerifyNone(t)

	metrics := observability.NewMockMetricsRegistry()
	w := &recordingWriter{}
	s := newClickHouseSink(w, ClickHouseConfig{BufferSize: 2, BatchSize: 10, FlushPeriod: time.Hour}, zaptest.NewLogger(t), metrics)

	s.Emit(Event{Type: CreativeCreation, Size: "1"})
	s.Emit(Event{Type: CreativeCreation, Size: "2"})
	s.Emit(Event{Type: CreativeCreation, Size: "3"})
	assert.Equal(t, 1, metrics.Count("telemetry_dropped:clickhouse"))

	s.start()
	require.NoError(t, s.Close())
	assert.Len(t, w.events(), 2)

	s.Emit(Event{Type: CreativeCreation, Size: "4"})
	assert.Equal(t, 2, metrics.Count("telemetry_dropped:clickhouse"))
}

func TestClickHouseSinkCountsFailedWrites(t *testing.T) {
	defer goleak.VerifyNone(t)

	metrics := observability.NewMockMetricsRegistry()
	w := &recordingWriter{err: errors.New("connection refused")}
	s := NewClickHouseSink(w, ClickHouseConfig{BatchSize: 10, FlushPeriod: time.Hour}, zaptest.NewLogger(t), metrics)

	s.Emit(Event{Type: LineCreationError})
	s.Emit(Event{Type: PerformanceMetrics})
	require.NoError(t, s.Close())
	assert.Equal(t, 2, metrics.Count("telemetry_dropped:clickhouse"))
}

func TestLogSink(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	s := NewLogSink(zap.New(core))

	s.Emit(Event{Type: LineCreationSuccess, RunID: "r1", LineItemID: "li-1", Message: "line item created", Status: StatusSuccess})
	s.Emit(Event{Type: LineCreationError, RunID: "r1", Message: "naming exhausted", Status: StatusError})
	require.NoError(t, s.Close())

	entries := logs.AllUntimed()
	require.Len(t, entries, 2)
	assert.Equal(t, zap.InfoLevel, entries[0].Level)
	assert.Equal(t, "li-1", entries[0].ContextMap()["line_item_id"])
	assert.Equal(t, zap.WarnLevel, entries[1].Level)
	assert.Equal(t, "line_creation_error", entries[1].ContextMap()["event_type"])
}

func TestMultiFansOut(t *testing.T) {
	defer goleak.VerifyNone(t)

	a, b := &recordingWriter{}, &recordingWriter{}
	m := Multi{
		NewClickHouseSink(a, ClickHouseConfig{FlushPeriod: time.Hour}, zaptest.NewLogger(t), nil),
		NewClickHouseSink(b, ClickHouseConfig{FlushPeriod: time.Hour}, zaptest.NewLogger(t), nil),
		nil,
		Nop{},
	}
	m.Emit(Event{Type: PlacementTargeting, RunID: "r2"})
	require.NoError(t, m.Close())

	require.Len(t, a.events(), 1)
	require.Len(t, b.events(), 1)
	assert.Equal(t, a.events()[0].Timestamp, b.events()[0].Timestamp)
}

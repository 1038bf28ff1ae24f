// Package telemetry records provisioning events. Sinks never block the
// caller and never fail it: an event that cannot be delivered is dropped
// and counted.
package telemetry

import (
	"time"

	"go.uber.org/zap"
)

// EventType names a provisioning milestone.
type EventType string

const (
	LineCreationStart   EventType = "line_creation_start"
	PlacementTargeting  EventType = "placement_targeting"
	LineCreationSuccess EventType = "line_creation_success"
	LineCreationError   EventType = "line_creation_error"
	CreativeCreation    EventType = "creative_creation"
	PerformanceMetrics  EventType = "performance_metrics"
)

// Event statuses.
const (
	StatusStarted = "started"
	StatusSuccess = "success"
	StatusError   = "error"
)

// Event is one telemetry record.
type Event struct {
	Timestamp    time.Time         `json:"timestamp"`
	Type         EventType         `json:"event_type"`
	RunID        string            `json:"run_id"`
	LineItemID   string            `json:"line_item_id,omitempty"`
	LineItemName string            `json:"line_item_name,omitempty"`
	Size         string            `json:"size,omitempty"`
	Status       string            `json:"status,omitempty"`
	Message      string            `json:"message,omitempty"`
	Duration     time.Duration     `json:"duration,omitempty"`
	Attributes   map[string]string `json:"attributes,omitempty"`
}

// Sink receives telemetry events.
type Sink interface {
	// Emit hands the event to the sink. It must not block.
	Emit(ev Event)
	// Close flushes buffered events and releases resources.
	Close() error
}

func stamp(ev Event) Event {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	return ev
}

// LogSink writes events to a zap logger.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink creates a LogSink.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger.Named("telemetry")}
}

// Emit implements Sink.
func (s *LogSink) Emit(ev Event) {
	ev = stamp(ev)
	fields := []zap.Field{
		zap.String("event_type", string(ev.Type)),
		zap.String("run_id", ev.RunID),
		zap.Time("timestamp", ev.Timestamp),
	}
	if ev.LineItemID != "" {
		fields = append(fields, zap.String("line_item_id", ev.LineItemID))
	}
	if ev.LineItemName != "" {
		fields = append(fields, zap.String("line_item_name", ev.LineItemName))
	}
	if ev.Size != "" {
		fields = append(fields, zap.String("size", ev.Size))
	}
	if ev.Status != "" {
		fields = append(fields, zap.String("status", ev.Status))
	}
	if ev.Duration > 0 {
		fields = append(fields, zap.Duration("duration", ev.Duration))
	}
	if len(ev.Attributes) > 0 {
		fields = append(fields, zap.Any("attributes", ev.Attributes))
	}
	if ev.Status == StatusError {
		s.logger.Warn(ev.Message, fields...)
		return
	}
	s.logger.Info(ev.Message, fields...)
}

// Close implements Sink.
func (s *LogSink) Close() error {
	_ = s.logger.Sync()
	return nil
}

// Multi fans events out to several sinks.
type Multi []Sink

// Emit implements Sink.
func (m Multi) Emit(ev Event) {
	ev = stamp(ev)
	for _, s := range m {
		if s != nil {
			s.Emit(ev)
		}
	}
}

// Close closes every sink and returns the first error.
func (m Multi) Close() error {
	var first error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Nop discards events.
type Nop struct{}

func (Nop) Emit(Event)   {}
func (Nop) Close() error { return nil }

package telemetry

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	_ "github.com/ClickHouse/clickhouse-go/v2"

	"github.com/patrickwarner/adprovision/internal/observability"
)

const sinkName = "clickhouse"

// BatchWriter persists a batch of events.
type BatchWriter interface {
	WriteBatch(ctx context.Context, events []Event) error
	Close() error
}

// ClickHouseConfig tunes the async sink.
type ClickHouseConfig struct {
	BufferSize  int           // Events queued before Emit starts dropping.
	BatchSize   int           // Events per insert.
	FlushPeriod time.Duration // Upper bound on how long an event waits in a partial batch.
}

func (c ClickHouseConfig) withDefaults() ClickHouseConfig {
	if c.BufferSize <= 0 {
		c.BufferSize = 1024
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 100
	}
	if c.FlushPeriod <= 0 {
		c.FlushPeriod = 2 * time.Second
	}
	return c
}

// ClickHouseSink buffers events and writes them in batches from a single
// background goroutine.
type ClickHouseSink struct {
	writer  BatchWriter
	cfg     ClickHouseConfig
	logger  *zap.Logger
	metrics observability.MetricsRegistry

	events    chan Event
	done      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewClickHouseSink starts an async sink writing through w.
func NewClickHouseSink(w BatchWriter, cfg ClickHouseConfig, logger *zap.Logger, metrics observability.MetricsRegistry) *ClickHouseSink {
	s := newClickHouseSink(w, cfg, logger, metrics)
	s.start()
	return s
}

func newClickHouseSink(w BatchWriter, cfg ClickHouseConfig, logger *zap.Logger, metrics observability.MetricsRegistry) *ClickHouseSink {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = observability.NewNoOpRegistry()
	}
	return &ClickHouseSink{
		writer:  w,
		cfg:     cfg,
		logger:  logger,
		metrics: metrics,
		events:  make(chan Event, cfg.BufferSize),
		done:    make(chan struct{}),
	}
}

func (s *ClickHouseSink) start() {
	s.wg.Add(1)
	go s.run()
}

// Emit implements Sink. Events are dropped when the buffer is full or the
// sink is closed.
func (s *ClickHouseSink) Emit(ev Event) {
	select {
	case <-s.done:
		s.metrics.IncrementTelemetryDropped(sinkName)
		return
	default:
	}
	select {
	case s.events <- stamp(ev):
	default:
		s.metrics.IncrementTelemetryDropped(sinkName)
		s.logger.Debug("telemetry buffer full, dropping event", zap.String("event_type", string(ev.Type)))
	}
}

func (s *ClickHouseSink) run() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.cfg.FlushPeriod)
	defer ticker.Stop()

	batch := make([]Event, 0, s.cfg.BatchSize)
	for {
		select {
		case ev := <-s.events:
			batch = append(batch, ev)
			if len(batch) >= s.cfg.BatchSize {
				batch = s.flush(batch)
			}
		case <-ticker.C:
			batch = s.flush(batch)
		case <-s.done:
			for {
				select {
				case ev := <-s.events:
					batch = append(batch, ev)
				default:
					s.flush(batch)
					return
				}
			}
		}
	}
}

func (s *ClickHouseSink) flush(batch []Event) []Event {
	if len(batch) == 0 {
		return batch
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.writer.WriteBatch(ctx, batch); err != nil {
		s.logger.Error("clickhouse insert failed", zap.Error(err), zap.Int("events", len(batch)))
		for range batch {
			s.metrics.IncrementTelemetryDropped(sinkName)
		}
	}
	return batch[:0]
}

// Close flushes queued events, stops the writer goroutine and closes the writer.
func (s *ClickHouseSink) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		s.wg.Wait()
		err = s.writer.Close()
	})
	return err
}

// SQLWriter inserts events into ClickHouse through database/sql.
type SQLWriter struct {
	DB *sql.DB
}

const createEventsTable = `CREATE TABLE IF NOT EXISTS provisioning_events (
       timestamp      DateTime64(3),
       event_type     String,
       run_id         String,
       line_item_id   String,
       line_item_name String,
       size           String,
       status         String,
       message        String,
       duration_ms    Int64,
       attributes     Map(String, String)
   ) ENGINE=MergeTree() ORDER BY (event_type, timestamp)`

const insertEvent = `INSERT INTO provisioning_events (timestamp, event_type, run_id, line_item_id, line_item_name, size, status, message, duration_ms, attributes) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

// InitClickHouse connects to ClickHouse and ensures the events table exists.
func InitClickHouse(ctx context.Context, dsn string) (*SQLWriter, error) {
	db, err := sql.Open("clickhouse", dsn)
	if err != nil {
		return nil, fmt.Errorf("clickhouse open: %w", err)
	}
	db.SetMaxOpenConns(5)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("clickhouse ping: %w", err)
	}
	if _, err := db.ExecContext(ctx, createEventsTable); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("clickhouse create table: %w", err)
	}
	zap.L().Info("Connected to ClickHouse")
	return &SQLWriter{DB: db}, nil
}

// WriteBatch implements BatchWriter as a single prepared batch insert.
func (w *SQLWriter) WriteBatch(ctx context.Context, events []Event) error {
	tx, err := w.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin batch: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, insertEvent)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("prepare batch: %w", err)
	}
	defer stmt.Close()

	for _, ev := range events {
		attrs := ev.Attributes
		if attrs == nil {
			attrs = map[string]string{}
		}
		if _, err := stmt.ExecContext(ctx, ev.Timestamp, string(ev.Type), ev.RunID, ev.LineItemID, ev.LineItemName,
			ev.Size, ev.Status, ev.Message, ev.Duration.Milliseconds(), attrs); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("append %s event: %w", ev.Type, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}
	return nil
}

// EventsByRun returns the stored events of one provisioning run in time order.
func (w *SQLWriter) EventsByRun(ctx context.Context, runID string) ([]Event, error) {
	const query = `SELECT timestamp, event_type, run_id, line_item_id, line_item_name, size, status, message, duration_ms, attributes FROM provisioning_events WHERE run_id = ? ORDER BY timestamp`
	rows, err := w.DB.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			zap.L().Warn("rows close", zap.Error(err))
		}
	}()

	var events []Event
	for rows.Next() {
		var (
			ev         Event
			typ        string
			durationMS int64
		)
		if err := rows.Scan(&ev.Timestamp, &typ, &ev.RunID, &ev.LineItemID, &ev.LineItemName,
			&ev.Size, &ev.Status, &ev.Message, &durationMS, &ev.Attributes); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		ev.Type = EventType(typ)
		ev.Duration = time.Duration(durationMS) * time.Millisecond
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return events, nil
}

// Close terminates the ClickHouse connection.
func (w *SQLWriter) Close() error {
	if w == nil || w.DB == nil {
		return nil
	}
	return w.DB.Close()
}

package writer

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/rickgao/socket-relay/internal/relay"
)

// Source yields relay events. *relay.Subscription satisfies it.
type Source interface {
	Next(ctx context.Context) (relay.Event, error)
	TryNext() (relay.Event, bool)
}

// BatchSender sends a pgx batch. *pgxpool.Pool satisfies it.
type BatchSender interface {
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

const insertEvent = `
	INSERT INTO relay_events (event_id, kind, session_id, at, payload, close_code, reason, local, error, attempt, wait_ms)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	ON CONFLICT (event_id) DO NOTHING
`

// EventWriter consumes relay events and writes them to the relay_events table.
type EventWriter struct {
	cfg    WriterConfig
	logger *slog.Logger

	// Input from the relay
	input Source

	// Database
	db BatchSender

	// Batching
	batch   []eventRow
	batchMu sync.Mutex

	// Lifecycle. ctx stops reading; writeCtx outlives it so the backlog
	// can still be written while stopping.
	ctx         context.Context
	cancel      context.CancelFunc
	writeCtx    context.Context
	writeCancel context.CancelFunc
	wg          sync.WaitGroup

	// Metrics
	metrics WriterMetrics
}

// NewEventWriter creates a new EventWriter.
func NewEventWriter(cfg WriterConfig, input Source, db BatchSender, logger *slog.Logger) *EventWriter {
	if logger == nil {
		logger = slog.Default()
	}
	defaults := DefaultWriterConfig()
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaults.BatchSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = defaults.FlushInterval
	}

	return &EventWriter{
		cfg:    cfg,
		input:  input,
		db:     db,
		logger: logger,
		batch:  make([]eventRow, 0, cfg.BatchSize),
	}
}

// Start begins consuming events and writing to the database.
func (w *EventWriter) Start(ctx context.Context) error {
	w.ctx, w.cancel = context.WithCancel(ctx)
	w.writeCtx, w.writeCancel = context.WithCancel(context.WithoutCancel(ctx))

	// Consumer goroutine
	w.wg.Add(1)
	go w.consumeLoop()

	// Flush ticker goroutine
	w.wg.Add(1)
	go w.flushLoop()

	w.logger.Info("event writer started",
		"batch_size", w.cfg.BatchSize,
		"flush_interval", w.cfg.FlushInterval,
	)
	return nil
}

// Stop shuts down the writer. Events already queued on the source are
// written before it returns; ctx bounds the wait and every write made while
// stopping.
func (w *EventWriter) Stop(ctx context.Context) error {
	w.logger.Info("stopping event writer")

	writeCtx := ctx
	if w.cancel != nil {
		defer w.writeCancel()
		stopBound := context.AfterFunc(ctx, w.writeCancel)
		defer stopBound()
		writeCtx = w.writeCtx

		w.cancel()
	}

	// Wait for goroutines
	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		w.logger.Warn("event writer stop timed out")
		return ctx.Err()
	}

	// Drain what the source still holds, then final flush.
	for {
		ev, ok := w.input.TryNext()
		if !ok {
			break
		}
		w.handleEvent(writeCtx, ev)
	}
	w.flush(writeCtx)

	w.logger.Info("event writer stopped")
	return nil
}

// Stats returns current metrics.
func (w *EventWriter) Stats() WriterMetrics {
	w.batchMu.Lock()
	defer w.batchMu.Unlock()
	return w.metrics
}

// consumeLoop reads from the source until it closes or the writer stops.
func (w *EventWriter) consumeLoop() {
	defer w.wg.Done()

	for {
		ev, err := w.input.Next(w.ctx)
		if err != nil {
			return
		}
		w.handleEvent(w.writeCtx, ev)
	}
}

// flushLoop periodically flushes the batch.
func (w *EventWriter) flushLoop() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			w.flush(w.writeCtx)
		}
	}
}

// handleEvent transforms and adds an event to the batch.
func (w *EventWriter) handleEvent(ctx context.Context, ev relay.Event) {
	row := transform(ev)

	w.batchMu.Lock()
	w.batch = append(w.batch, row)
	shouldFlush := len(w.batch) >= w.cfg.BatchSize
	w.batchMu.Unlock()

	if shouldFlush {
		w.flush(ctx)
	}
}

// transform converts an event to an eventRow.
func transform(ev relay.Event) eventRow {
	row := eventRow{
		EventID:   ev.ID,
		Kind:      ev.Kind.String(),
		SessionID: ev.SessionID,
		At:        ev.At.UnixMicro(),
		CloseCode: ev.Code,
		Reason:    ev.Reason,
		Local:     ev.Local,
		Attempt:   ev.Attempt,
		WaitMs:    ev.Wait.Milliseconds(),
	}
	if ev.Kind == relay.KindMessage {
		row.Payload = ev.Data
	}
	if ev.Err != nil {
		row.Error = ev.Err.Error()
	}
	return row
}

// flush writes the current batch to the database.
func (w *EventWriter) flush(ctx context.Context) {
	w.batchMu.Lock()
	if len(w.batch) == 0 {
		w.batchMu.Unlock()
		return
	}

	// Take ownership of current batch
	batch := w.batch
	w.batch = make([]eventRow, 0, w.cfg.BatchSize)
	w.batchMu.Unlock()

	start := time.Now()

	conflicts, err := w.batchInsert(ctx, batch)
	if err != nil {
		w.logger.Error("batch insert failed", "error", err, "count", len(batch))
		w.batchMu.Lock()
		w.metrics.Errors++
		w.metrics.Dropped += int64(len(batch))
		w.batchMu.Unlock()
		return
	}

	w.batchMu.Lock()
	w.metrics.Inserts += int64(len(batch) - conflicts)
	w.metrics.Conflicts += int64(conflicts)
	w.metrics.Flushes++
	w.batchMu.Unlock()

	w.logger.Debug("flushed events",
		"count", len(batch),
		"conflicts", conflicts,
		"duration", time.Since(start),
	)
}

// batchInsert inserts rows using pgx.Batch with ON CONFLICT DO NOTHING.
func (w *EventWriter) batchInsert(ctx context.Context, rows []eventRow) (conflicts int, err error) {
	batch := &pgx.Batch{}
	for _, r := range rows {
		batch.Queue(insertEvent,
			r.EventID, r.Kind, r.SessionID, r.At, r.Payload,
			r.CloseCode, r.Reason, r.Local, r.Error, r.Attempt, r.WaitMs,
		)
	}

	results := w.db.SendBatch(ctx, batch)
	defer results.Close()

	for range rows {
		ct, err := results.Exec()
		if err != nil {
			return 0, err
		}
		if ct.RowsAffected() == 0 {
			conflicts++
		}
	}

	return conflicts, nil
}

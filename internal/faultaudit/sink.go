// Package faultaudit persists fault events to Postgres in small batches so
// an operator can query fault history after the fact. It is an optional
// supplement beyond the core spec: the control plane functions fully
// without it (when auditing is disabled no Sink is opened, and callers skip
// a nil Sink; its methods need a non-nil receiver), and a write failure
// here never blocks or fails a dispatch.
package faultaudit

import (
	"context"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wxzhao/workstation/internal/logging"
	"github.com/wxzhao/workstation/internal/wire"
)

const (
	batchSize     = 64
	flushInterval = 2 * time.Second
	queueDepth    = 1024
)

// Sink batches fault events and flushes them to Postgres on a timer or when
// a batch fills, whichever comes first.
type Sink struct {
	pool   *pgxpool.Pool
	events chan wire.FaultEvent

	wg   sync.WaitGroup
	stop chan struct{}
}

// Open connects to Postgres at dsn and starts the background batch writer.
// Call EnsureSchema once before Open's writer handles real traffic, or let
// the caller pre-migrate — this package does not own migrations beyond the
// single table it needs.
func Open(ctx context.Context, dsn string) (*Sink, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	s := &Sink{
		pool:   pool,
		events: make(chan wire.FaultEvent, queueDepth),
		stop:   make(chan struct{}),
	}
	s.wg.Add(1)
	go s.run()
	return s, nil
}

// EnsureSchema creates the fault_events table if it doesn't already exist.
func (s *Sink) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS fault_events (
			id         BIGSERIAL PRIMARY KEY,
			recorded_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			fault      TEXT NOT NULL,
			service    TEXT NOT NULL,
			severity   TEXT NOT NULL,
			active     BOOLEAN NOT NULL,
			err_code   INT NOT NULL,
			err        TEXT NOT NULL
		)
	`)
	return err
}

// Record enqueues ev for the next flush. Non-blocking: if the queue is
// full, the event is dropped and logged — audit persistence never applies
// backpressure to the fault path it's observing.
func (s *Sink) Record(ev wire.FaultEvent) {
	select {
	case s.events <- ev:
	default:
		logging.Op().Warn("faultaudit: queue full, dropping event", "fault", ev.Fault, "service", ev.Service)
	}
}

func (s *Sink) run() {
	defer s.wg.Done()

	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	batch := make([]wire.FaultEvent, 0, batchSize)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		s.writeBatch(batch)
		batch = batch[:0]
	}

	for {
		select {
		case <-s.stop:
			flush()
			return
		case ev := <-s.events:
			batch = append(batch, ev)
			if len(batch) >= batchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}

func (s *Sink) writeBatch(batch []wire.FaultEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		logging.Op().Warn("faultaudit: begin tx failed", "error", err, "dropped", len(batch))
		return
	}
	defer tx.Rollback(ctx)

	for _, ev := range batch {
		_, err := tx.Exec(ctx,
			`INSERT INTO fault_events (fault, service, severity, active, err_code, err) VALUES ($1,$2,$3,$4,$5,$6)`,
			ev.Fault, ev.Service, string(ev.Severity), ev.Active, ev.ErrCode, ev.Err,
		)
		if err != nil {
			logging.Op().Warn("faultaudit: insert failed", "error", err, "fault", ev.Fault)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		logging.Op().Warn("faultaudit: commit failed", "error", err, "dropped", len(batch))
	}
}

// Close flushes any remaining events and releases the connection pool.
func (s *Sink) Close() {
	close(s.stop)
	s.wg.Wait()
	s.pool.Close()
}

package relay

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/chatrelay/internal/domain"
	"github.com/pscheid92/chatrelay/internal/metrics"
	"github.com/pscheid92/chatrelay/internal/platform/correlation"
)

type deletionAnnouncer interface {
	AnnounceDeletion(ctx context.Context, id uuid.UUID) int
}

// Sweeper evicts records older than the retention lifetime on a fixed period and
// announces each eviction. Ticks run on a single goroutine, so sweeps never overlap.
type Sweeper struct {
	store     domain.RetentionStore
	announcer deletionAnnouncer
	clock     clockwork.Clock
	interval  time.Duration
	lifetime  time.Duration
}

func NewSweeper(store domain.RetentionStore, announcer deletionAnnouncer, clock clockwork.Clock, interval, lifetime time.Duration) *Sweeper {
	return &Sweeper{
		store:     store,
		announcer: announcer,
		clock:     clock,
		interval:  interval,
		lifetime:  lifetime,
	}
}

// Run sweeps every interval until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := s.clock.NewTicker(s.interval)
	defer ticker.Stop()

	slog.InfoContext(ctx, "Sweeper started", "interval", s.interval, "retention", s.lifetime)
	for {
		select {
		case <-ctx.Done():
			slog.InfoContext(ctx, "Sweeper stopped")
			return
		case <-ticker.Chan():
			s.tick(ctx)
		}
	}
}

func (s *Sweeper) tick(ctx context.Context) {
	tickCtx, cancel := context.WithTimeout(correlation.WithID(ctx, correlation.NewID()), s.interval)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			metrics.SweepErrorsTotal.Inc()
			slog.ErrorContext(tickCtx, "Sweep panic recovered", "panic", r)
		}
	}()

	evicted, err := s.Sweep(tickCtx)
	if err != nil {
		metrics.SweepErrorsTotal.Inc()
		slog.ErrorContext(tickCtx, "Sweep failed", "error", err)
		return
	}
	if evicted > 0 {
		slog.DebugContext(tickCtx, "Evicted expired records", "count", evicted)
	}
}

// Sweep performs one eviction pass and returns the number of records evicted.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	start := s.clock.Now()
	defer func() {
		metrics.SweepDuration.Observe(s.clock.Since(start).Seconds())
	}()

	// A failing store may still hand back records it already removed; those
	// are announced before the error is reported.
	expired, err := s.store.TakeExpired(ctx, start, s.lifetime)

	for _, rec := range expired {
		delivered := s.announcer.AnnounceDeletion(ctx, rec.ID)
		slog.DebugContext(ctx, "Record evicted", "message_id", rec.ID.String(), "age", start.Sub(rec.ArrivedAt), "notified", delivered)
	}
	metrics.RecordsEvictedTotal.Add(float64(len(expired)))

	if err != nil {
		return len(expired), fmt.Errorf("failed to take expired records: %w", err)
	}

	if remaining, err := s.store.Len(ctx); err == nil {
		metrics.RelayRetainedRecords.Set(float64(remaining))
	}

	return len(expired), nil
}

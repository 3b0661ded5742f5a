package expirysweep

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

func (w *Worker) worker(ctx context.Context) {
	ticker := time.NewTicker(w.c.WorkerInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.Sweep(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// Sweep runs one pass over both kinds of overdue records and returns how
// many were expired.
func (w *Worker) Sweep(ctx context.Context) int {
	n, err := w.expireOverdueReservations(ctx)
	if err != nil {
		slog.Default().ErrorContext(ctx, "can't expire overdue reservations",
			slog.String("err", err.Error()),
		)
	}
	m, err := w.expireLapsedClaims(ctx)
	if err != nil {
		slog.Default().ErrorContext(ctx, "can't expire lapsed waitlist claims",
			slog.String("err", err.Error()),
		)
	}
	return n + m
}

func (w *Worker) expireOverdueReservations(ctx context.Context) (int, error) {
	rs, err := w.repo.Reservations().ListOverdueReservations(ctx, w.clock.Now(), w.c.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("can't list overdue reservations: %w", err)
	}

	done := 0
	for _, r := range rs {
		if err := ctx.Err(); err != nil {
			return done, err
		}
		if err := w.engine.ExpireReservation(ctx, r.Id); err != nil {
			slog.Default().ErrorContext(ctx, "can't expire overdue reservation",
				slog.String("err", err.Error()),
				slog.String("reservation_id", r.Id),
			)
			continue
		}
		done++
		slog.Default().InfoContext(ctx, "swept overdue reservation",
			slog.String("reservation_id", r.Id),
			slog.Time("expiration_time", r.ExpirationTime),
		)
	}
	return done, nil
}

func (w *Worker) expireLapsedClaims(ctx context.Context) (int, error) {
	ws, err := w.repo.Waitlist().ListLapsedWaitlistEntries(ctx, w.clock.Now(), w.c.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("can't list lapsed waitlist entries: %w", err)
	}

	done := 0
	for _, e := range ws {
		if err := ctx.Err(); err != nil {
			return done, err
		}
		if err := w.engine.ExpireWaitlistNotification(ctx, e.Id); err != nil {
			slog.Default().ErrorContext(ctx, "can't expire lapsed waitlist claim",
				slog.String("err", err.Error()),
				slog.String("waitlist_id", e.Id),
			)
			continue
		}
		done++
		slog.Default().InfoContext(ctx, "swept lapsed waitlist claim",
			slog.String("waitlist_id", e.Id),
		)
	}
	return done, nil
}

package reservation

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jekabolt/grbpwr-tickets/internal/dependency"
	"github.com/jekabolt/grbpwr-tickets/internal/entity"
	gerr "github.com/jekabolt/grbpwr-tickets/internal/errors"
	"github.com/jekabolt/grbpwr-tickets/internal/metrics"
)

// ExpireReservation releases a pending reservation whose deadline has come.
// Missing or already resolved reservations are a no-op, so duplicate task
// deliveries are harmless. Before the deadline it returns NotYetDue.
func (e *Engine) ExpireReservation(ctx context.Context, reservationId string) error {
	return e.run(ctx, func(ctx context.Context, rep dependency.Repository, fx *effects) error {
		r, err := rep.Reservations().GetReservationById(ctx, reservationId)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("can't get reservation: %w", err)
		}
		if r.Status != entity.ReservationPending {
			return nil
		}
		if !r.ExpiryDue(fx.now) {
			return gerr.NotYetDue
		}
		return e.expireReservation(ctx, rep, fx, r)
	})
}

// expireReservation marks r expired, returns its hold to available and
// offers the freed quantity to the waitlist of each line.
func (e *Engine) expireReservation(ctx context.Context, rep dependency.Repository, fx *effects, r *entity.Reservation) error {
	if err := rep.Reservations().UpdateReservationStatus(ctx, r.Id, entity.ReservationExpired, fx.now); err != nil {
		return fmt.Errorf("can't expire reservation: %w", err)
	}

	for _, it := range r.Items {
		inv, err := rep.Inventory().GetInventoryForUpdate(ctx, r.EventId, it.TicketTypeId)
		if err != nil {
			return fmt.Errorf("can't get inventory: %w", err)
		}
		if err := inv.Release(it.Quantity); err != nil {
			return err
		}
		if err := e.processWaitlist(ctx, rep, fx, inv, it.Quantity); err != nil {
			return err
		}
		if err := saveInventory(ctx, rep, fx, inv); err != nil {
			return err
		}
	}

	fx.after(func() {
		metrics.Expirations.WithLabelValues(metrics.KindReservation).Inc()
		slog.Default().InfoContext(ctx, "reservation expired",
			slog.String("reservation_id", r.Id),
			slog.String("event_id", r.EventId),
			slog.Int("quantity", r.Quantity()),
		)
	})
	fx.notify(&entity.Notification{
		Kind:          entity.NotificationReservationExpired,
		UserId:        r.UserId,
		EventId:       r.EventId,
		TicketTypeId:  r.Items[0].TicketTypeId,
		ReservationId: r.Id,
		Quantity:      r.Quantity(),
		ExpiresAt:     r.ExpirationTime,
	})
	return nil
}

// ExpireWaitlistNotification closes the claim window of a notified entry and
// passes its earmark down the queue. Entries that are missing or no longer
// notified are a no-op. Before the window ends it returns NotYetDue.
func (e *Engine) ExpireWaitlistNotification(ctx context.Context, waitlistId string) error {
	return e.run(ctx, func(ctx context.Context, rep dependency.Repository, fx *effects) error {
		w, err := rep.Waitlist().GetWaitlistEntryById(ctx, waitlistId)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("can't get waitlist entry: %w", err)
		}
		if w.Status != entity.WaitlistNotified {
			return nil
		}
		if !w.ExpiryDue(fx.now) {
			return gerr.NotYetDue
		}
		return e.expireClaim(ctx, rep, fx, w)
	})
}

func (e *Engine) expireClaim(ctx context.Context, rep dependency.Repository, fx *effects, w *entity.WaitlistEntry) error {
	w.Status = entity.WaitlistExpired
	w.UpdatedAt = fx.now
	if err := rep.Waitlist().UpdateWaitlistEntry(ctx, w); err != nil {
		return fmt.Errorf("can't expire waitlist entry: %w", err)
	}

	inv, err := rep.Inventory().GetInventoryForUpdate(ctx, w.EventId, w.TicketTypeId)
	if err != nil {
		return fmt.Errorf("can't get inventory: %w", err)
	}
	if err := inv.ReturnEarmark(w.Quantity); err != nil {
		return err
	}
	if err := e.processWaitlist(ctx, rep, fx, inv, w.Quantity); err != nil {
		return err
	}
	if err := saveInventory(ctx, rep, fx, inv); err != nil {
		return err
	}

	fx.after(func() {
		metrics.Expirations.WithLabelValues(metrics.KindClaimWindow).Inc()
		slog.Default().InfoContext(ctx, "waitlist claim window expired",
			slog.String("waitlist_id", w.Id),
			slog.String("event_id", w.EventId),
			slog.String("ticket_type_id", w.TicketTypeId),
		)
	})
	fx.notify(&entity.Notification{
		Kind:         entity.NotificationWaitlistClaimExpired,
		UserId:       w.UserId,
		EventId:      w.EventId,
		TicketTypeId: w.TicketTypeId,
		WaitlistId:   w.Id,
		Quantity:     w.Quantity,
		ExpiresAt:    w.ExpirationTime.Time,
	})
	return nil
}

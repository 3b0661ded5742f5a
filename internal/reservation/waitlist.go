package reservation

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jekabolt/grbpwr-tickets/internal/dependency"
	"github.com/jekabolt/grbpwr-tickets/internal/entity"
	"github.com/jekabolt/grbpwr-tickets/internal/metrics"
)

// processWaitlist offers freed units of inv to the head of its waitlist
// partition. Entries are served strictly in request order and only in full:
// scanning stops at the first entry larger than what is left, so a later
// smaller request never overtakes it. Offered units move from available to
// earmarked; the caller persists inv.
func (e *Engine) processWaitlist(ctx context.Context, rep dependency.Repository, fx *effects, inv *entity.Inventory, freed int) error {
	if freed <= 0 {
		return nil
	}
	entries, err := rep.Waitlist().ListWaitingEntries(ctx, inv.EventId, inv.TicketTypeId, e.c.WaitlistBatchSize)
	if err != nil {
		return fmt.Errorf("can't list waiting entries: %w", err)
	}

	remaining := freed
	for i := range entries {
		w := &entries[i]
		if remaining <= 0 || w.Quantity > remaining {
			break
		}
		if err := inv.Earmark(w.Quantity); err != nil {
			return err
		}

		w.Status = entity.WaitlistNotified
		w.ExpirationTime = sql.NullTime{Time: fx.now.Add(e.c.ClaimWindow), Valid: true}
		w.UpdatedAt = fx.now
		if err := rep.Waitlist().UpdateWaitlistEntry(ctx, w); err != nil {
			return fmt.Errorf("can't notify waitlist entry: %w", err)
		}
		err := e.scheduler.Schedule(ctx, rep, TaskWaitlistExpiry, WaitlistExpiryPayload{
			WaitlistId: w.Id,
		}, w.ExpirationTime.Time)
		if err != nil {
			return fmt.Errorf("can't schedule claim expiry: %w", err)
		}
		remaining -= w.Quantity

		fx.after(metrics.WaitlistNotified.Inc)
		fx.notify(&entity.Notification{
			Kind:         entity.NotificationWaitlistSpotAvailable,
			UserId:       w.UserId,
			EventId:      w.EventId,
			TicketTypeId: w.TicketTypeId,
			WaitlistId:   w.Id,
			Quantity:     w.Quantity,
			ExpiresAt:    w.ExpirationTime.Time,
		})
	}
	return nil
}

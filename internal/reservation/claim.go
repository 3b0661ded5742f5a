package reservation

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jekabolt/grbpwr-tickets/internal/dependency"
	"github.com/jekabolt/grbpwr-tickets/internal/entity"
	gerr "github.com/jekabolt/grbpwr-tickets/internal/errors"
)

// ClaimWaitlisted turns the earmark of a notified entry into a pending
// reservation with a fresh expiry. A lapsed claim window is closed on the
// spot and the caller gets ClaimWindowExpired.
func (e *Engine) ClaimWaitlisted(ctx context.Context, userId, waitlistId string) (*entity.ClaimResult, error) {
	if waitlistId == "" {
		return nil, gerr.InvalidArgument("waitlist id is required")
	}

	var res *entity.ClaimResult
	err := e.run(ctx, func(ctx context.Context, rep dependency.Repository, fx *effects) error {
		w, err := rep.Waitlist().GetWaitlistEntryById(ctx, waitlistId)
		if errors.Is(err, sql.ErrNoRows) {
			return gerr.WaitlistNotFound
		}
		if err != nil {
			return fmt.Errorf("can't get waitlist entry: %w", err)
		}
		if w.UserId != userId {
			return gerr.NotWaitlistOwner
		}
		if w.Status != entity.WaitlistNotified {
			return gerr.WrongStatus("waitlist entry", w.Status)
		}
		if w.ClaimLapsed(fx.now) {
			if err := e.expireClaim(ctx, rep, fx, w); err != nil {
				return err
			}
			fx.fail = gerr.ClaimWindowExpired
			return nil
		}

		inv, err := rep.Inventory().GetInventoryForUpdate(ctx, w.EventId, w.TicketTypeId)
		if err != nil {
			return fmt.Errorf("can't get inventory: %w", err)
		}
		if err := inv.ClaimEarmark(w.Quantity); err != nil {
			return err
		}
		if err := saveInventory(ctx, rep, fx, inv); err != nil {
			return err
		}

		w.Status = entity.WaitlistClaimed
		w.UpdatedAt = fx.now
		if err := rep.Waitlist().UpdateWaitlistEntry(ctx, w); err != nil {
			return fmt.Errorf("can't claim waitlist entry: %w", err)
		}

		r, err := e.createReservation(ctx, rep, fx, claimRequestId(w.Id), w.UserId, w.EventId, []entity.ReservationItem{{
			TicketTypeId: w.TicketTypeId,
			Quantity:     w.Quantity,
		}})
		if err != nil {
			return err
		}
		res = &entity.ClaimResult{
			ReservationId: r.Id,
			ExpiresAt:     r.ExpirationTime,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

func claimRequestId(waitlistId string) string {
	return "claim:" + waitlistId
}

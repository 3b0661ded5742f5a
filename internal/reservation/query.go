package reservation

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jekabolt/grbpwr-tickets/internal/entity"
	gerr "github.com/jekabolt/grbpwr-tickets/internal/errors"
)

func (e *Engine) GetReservation(ctx context.Context, userId, reservationId string) (*entity.Reservation, error) {
	r, err := e.rep.Reservations().GetReservationById(ctx, reservationId)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, gerr.ReservationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("can't get reservation: %w", err)
	}
	if r.UserId != userId {
		return nil, gerr.NotReservationOwner
	}
	return r, nil
}

func (e *Engine) ListReservations(ctx context.Context, userId string) ([]entity.Reservation, error) {
	rs, err := e.rep.Reservations().ListReservationsByUser(ctx, userId)
	if err != nil {
		return nil, fmt.Errorf("can't list reservations: %w", err)
	}
	return rs, nil
}

func (e *Engine) GetWaitlistEntry(ctx context.Context, userId, waitlistId string) (*entity.WaitlistEntry, error) {
	w, err := e.rep.Waitlist().GetWaitlistEntryById(ctx, waitlistId)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, gerr.WaitlistNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("can't get waitlist entry: %w", err)
	}
	if w.UserId != userId {
		return nil, gerr.NotWaitlistOwner
	}
	return w, nil
}

func (e *Engine) ListWaitlist(ctx context.Context, userId string) ([]entity.WaitlistEntry, error) {
	ws, err := e.rep.Waitlist().ListWaitlistByUser(ctx, userId)
	if err != nil {
		return nil, fmt.Errorf("can't list waitlist: %w", err)
	}
	return ws, nil
}

// ListInventory returns the counters of every ticket type of the event.
// Types nobody has tried to reserve yet report their untouched total.
func (e *Engine) ListInventory(ctx context.Context, eventId string) ([]entity.Inventory, error) {
	ef, err := e.rep.Events().GetEventById(ctx, eventId)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, gerr.EventNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("can't get event: %w", err)
	}

	invs, err := e.rep.Inventory().ListInventoryByEvent(ctx, eventId)
	if err != nil {
		return nil, fmt.Errorf("can't list inventory: %w", err)
	}
	byType := make(map[string]entity.Inventory, len(invs))
	for _, inv := range invs {
		byType[inv.TicketTypeId] = inv
	}

	out := make([]entity.Inventory, 0, len(ef.TicketTypes))
	for i := range ef.TicketTypes {
		tt := &ef.TicketTypes[i]
		if inv, ok := byType[tt.Id]; ok {
			out = append(out, inv)
			continue
		}
		out = append(out, *entity.NewInventory(eventId, tt, ef.Event.CreatedAt))
	}
	return out, nil
}

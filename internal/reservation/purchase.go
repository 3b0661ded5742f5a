package reservation

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jekabolt/grbpwr-tickets/internal/dependency"
	"github.com/jekabolt/grbpwr-tickets/internal/entity"
	gerr "github.com/jekabolt/grbpwr-tickets/internal/errors"
	"github.com/jekabolt/grbpwr-tickets/internal/metrics"
)

// CompletePurchase converts a pending reservation into tickets. The stored
// deadline is authoritative: a lapsed reservation is expired on the spot and
// the caller gets ReservationExpired.
func (e *Engine) CompletePurchase(ctx context.Context, userId, reservationId string) (*entity.PurchaseResult, error) {
	if reservationId == "" {
		return nil, gerr.InvalidArgument("reservation id is required")
	}

	var res *entity.PurchaseResult
	err := e.run(ctx, func(ctx context.Context, rep dependency.Repository, fx *effects) error {
		r, err := rep.Reservations().GetReservationById(ctx, reservationId)
		if errors.Is(err, sql.ErrNoRows) {
			return gerr.ReservationNotFound
		}
		if err != nil {
			return fmt.Errorf("can't get reservation: %w", err)
		}
		if r.UserId != userId {
			return gerr.NotReservationOwner
		}
		if r.Status != entity.ReservationPending {
			return gerr.WrongStatus("reservation", r.Status)
		}
		if r.Lapsed(fx.now) {
			if err := e.expireReservation(ctx, rep, fx, r); err != nil {
				return err
			}
			fx.fail = gerr.ReservationExpired
			return nil
		}

		res, err = e.issueTickets(ctx, rep, fx, r)
		return err
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (e *Engine) issueTickets(ctx context.Context, rep dependency.Repository, fx *effects, r *entity.Reservation) (*entity.PurchaseResult, error) {
	ef, err := rep.Events().GetEventById(ctx, r.EventId)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, gerr.EventNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("can't get event: %w", err)
	}

	var tickets []entity.Ticket
	for _, it := range r.Items {
		tt, ok := ef.TicketType(it.TicketTypeId)
		if !ok {
			return nil, gerr.TicketTypeNotFound
		}
		inv, err := rep.Inventory().GetInventoryForUpdate(ctx, r.EventId, it.TicketTypeId)
		if err != nil {
			return nil, fmt.Errorf("can't get inventory: %w", err)
		}
		if err := inv.Sell(it.Quantity); err != nil {
			return nil, err
		}
		if err := saveInventory(ctx, rep, fx, inv); err != nil {
			return nil, err
		}

		validFrom, validUntil := ef.Validity(tt)
		for range it.Quantity {
			tickets = append(tickets, entity.Ticket{
				Id:                 uuid.NewString(),
				ReservationId:      r.Id,
				UserId:             r.UserId,
				EventId:            r.EventId,
				TicketTypeId:       tt.Id,
				TicketTypeName:     tt.Name,
				Price:              tt.Price,
				Currency:           tt.Currency,
				ValidFrom:          validFrom,
				ValidUntil:         validUntil,
				EntranceLocationId: ef.Entrance(tt),
				Status:             entity.TicketValid,
				CreatedAt:          fx.now,
			})
		}
	}

	if err := rep.Tickets().AddTickets(ctx, tickets); err != nil {
		return nil, fmt.Errorf("can't add tickets: %w", err)
	}
	if err := rep.Reservations().UpdateReservationStatus(ctx, r.Id, entity.ReservationCompleted, fx.now); err != nil {
		return nil, fmt.Errorf("can't complete reservation: %w", err)
	}

	ids := make([]string, 0, len(tickets))
	for _, t := range tickets {
		ids = append(ids, t.Id)
	}
	fx.after(func() {
		metrics.Purchases.Inc()
		metrics.Sold.Add(float64(len(ids)))
		slog.Default().InfoContext(ctx, "purchase completed",
			slog.String("reservation_id", r.Id),
			slog.Int("tickets", len(ids)),
		)
	})
	fx.notify(&entity.Notification{
		Kind:          entity.NotificationPurchaseCompleted,
		UserId:        r.UserId,
		EventId:       r.EventId,
		TicketTypeId:  r.Items[0].TicketTypeId,
		ReservationId: r.Id,
		Quantity:      len(ids),
		TicketIds:     ids,
	})
	return &entity.PurchaseResult{
		ReservationId: r.Id,
		TicketIds:     ids,
	}, nil
}

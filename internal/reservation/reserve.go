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
	"github.com/jekabolt/grbpwr-tickets/internal/form"
	"github.com/jekabolt/grbpwr-tickets/internal/metrics"
)

// Reserve holds every requested line or, when one of them cannot be
// satisfied, puts the requester on the waitlist for that line. Repeating a
// request id returns the outcome of the first attempt.
func (e *Engine) Reserve(ctx context.Context, req *entity.ReserveRequest) (*entity.ReserveResult, error) {
	if err := (&form.ReserveRequest{ReserveRequest: req}).Validate(); err != nil {
		return nil, err
	}
	if req.RequestId == "" {
		req.RequestId = uuid.NewString()
	}

	res, err := e.reserve(ctx, req)
	if err != nil && e.rep.IsErrUniqueViolation(err) {
		// a concurrent delivery of the same request won the insert
		res, err = e.reserve(ctx, req)
	}
	return res, err
}

func (e *Engine) reserve(ctx context.Context, req *entity.ReserveRequest) (*entity.ReserveResult, error) {
	var res *entity.ReserveResult
	err := e.run(ctx, func(ctx context.Context, rep dependency.Repository, fx *effects) error {
		var err error
		res, err = e.previousOutcome(ctx, rep, req.RequestId)
		if err != nil || res != nil {
			if res != nil {
				fx.after(func() { metrics.Reservations.WithLabelValues(metrics.OutcomeDuplicate).Inc() })
			}
			return err
		}

		ef, err := rep.Events().GetEventById(ctx, req.EventId)
		if errors.Is(err, sql.ErrNoRows) {
			return gerr.EventNotFound
		}
		if err != nil {
			return fmt.Errorf("can't get event: %w", err)
		}

		invs := make([]*entity.Inventory, 0, len(req.Tickets))
		for _, line := range req.Tickets {
			tt, ok := ef.TicketType(line.TicketTypeId)
			if !ok {
				return gerr.TicketTypeNotFound
			}
			inv, err := e.inventoryForUpdate(ctx, rep, fx, ef, tt)
			if err != nil {
				return err
			}
			if inv.AvailableQuantity < line.Quantity {
				res, err = e.waitlist(ctx, rep, fx, req, line)
				return err
			}
			invs = append(invs, inv)
		}

		res, err = e.hold(ctx, rep, fx, req, invs)
		return err
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// previousOutcome returns the result already produced for requestId, if any.
func (e *Engine) previousOutcome(ctx context.Context, rep dependency.Repository, requestId string) (*entity.ReserveResult, error) {
	r, err := rep.Reservations().GetReservationByRequestId(ctx, requestId)
	if err == nil {
		return &entity.ReserveResult{
			Success:       true,
			ReservationId: r.Id,
			ExpiresAt:     r.ExpirationTime,
		}, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("can't look up reservation by request: %w", err)
	}

	w, err := rep.Waitlist().GetWaitlistEntryByRequestId(ctx, requestId)
	if err == nil {
		return &entity.ReserveResult{
			Waitlisted: true,
			WaitlistId: w.Id,
		}, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("can't look up waitlist entry by request: %w", err)
	}
	return nil, nil
}

// inventoryForUpdate loads the record of a ticket type, seeding it from the
// authored total on first use.
func (e *Engine) inventoryForUpdate(ctx context.Context, rep dependency.Repository, fx *effects, ef *entity.EventFull, tt *entity.TicketType) (*entity.Inventory, error) {
	inv, err := rep.Inventory().GetInventoryForUpdate(ctx, ef.Event.Id, tt.Id)
	if err == nil {
		return inv, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("can't get inventory: %w", err)
	}

	inv = entity.NewInventory(ef.Event.Id, tt, fx.now)
	if err := rep.Inventory().AddInventory(ctx, inv); err != nil {
		return nil, fmt.Errorf("can't create inventory: %w", err)
	}
	slog.Default().InfoContext(ctx, "inventory created",
		slog.String("event_id", inv.EventId),
		slog.String("ticket_type_id", inv.TicketTypeId),
		slog.Int("total", inv.TotalQuantity),
	)
	fx.touch(inv)
	return inv, nil
}

func (e *Engine) hold(ctx context.Context, rep dependency.Repository, fx *effects, req *entity.ReserveRequest, invs []*entity.Inventory) (*entity.ReserveResult, error) {
	items := make([]entity.ReservationItem, 0, len(req.Tickets))
	for i, line := range req.Tickets {
		if err := invs[i].Hold(line.Quantity); err != nil {
			return nil, err
		}
		if err := saveInventory(ctx, rep, fx, invs[i]); err != nil {
			return nil, err
		}
		items = append(items, entity.ReservationItem{
			TicketTypeId: line.TicketTypeId,
			Quantity:     line.Quantity,
		})
	}

	r, err := e.createReservation(ctx, rep, fx, req.RequestId, req.UserId, req.EventId, items)
	if err != nil {
		return nil, err
	}
	fx.after(func() { metrics.Reservations.WithLabelValues(metrics.OutcomeReserved).Inc() })

	return &entity.ReserveResult{
		Success:       true,
		ReservationId: r.Id,
		ExpiresAt:     r.ExpirationTime,
	}, nil
}

// createReservation stores a pending reservation over inventory the caller
// has already moved to reserved and schedules its expiry.
func (e *Engine) createReservation(ctx context.Context, rep dependency.Repository, fx *effects, requestId, userId, eventId string, items []entity.ReservationItem) (*entity.Reservation, error) {
	r := &entity.Reservation{
		Id:              uuid.NewString(),
		RequestId:       requestId,
		UserId:          userId,
		EventId:         eventId,
		Items:           items,
		Status:          entity.ReservationPending,
		ReservationTime: fx.now,
		ExpirationTime:  fx.now.Add(e.c.ReservationTTL),
		UpdatedAt:       fx.now,
	}
	if err := rep.Reservations().AddReservation(ctx, r); err != nil {
		return nil, fmt.Errorf("can't add reservation: %w", err)
	}

	err := e.scheduler.Schedule(ctx, rep, TaskReservationExpiry, ReservationExpiryPayload{
		ReservationId: r.Id,
	}, r.ExpirationTime)
	if err != nil {
		return nil, fmt.Errorf("can't schedule reservation expiry: %w", err)
	}

	fx.notify(&entity.Notification{
		Kind:          entity.NotificationReservationCreated,
		UserId:        r.UserId,
		EventId:       r.EventId,
		TicketTypeId:  items[0].TicketTypeId,
		ReservationId: r.Id,
		Quantity:      r.Quantity(),
		ExpiresAt:     r.ExpirationTime,
	})
	return r, nil
}

func (e *Engine) waitlist(ctx context.Context, rep dependency.Repository, fx *effects, req *entity.ReserveRequest, line entity.TicketLine) (*entity.ReserveResult, error) {
	requestTime := req.Timestamp.UTC()
	if req.Timestamp.IsZero() {
		requestTime = fx.now
	}
	w := &entity.WaitlistEntry{
		Id:           uuid.NewString(),
		RequestId:    req.RequestId,
		UserId:       req.UserId,
		EventId:      req.EventId,
		TicketTypeId: line.TicketTypeId,
		Quantity:     line.Quantity,
		RequestTime:  requestTime,
		Status:       entity.WaitlistWaiting,
		UpdatedAt:    fx.now,
	}
	if err := rep.Waitlist().AddWaitlistEntry(ctx, w); err != nil {
		return nil, fmt.Errorf("can't add waitlist entry: %w", err)
	}
	fx.after(func() { metrics.Reservations.WithLabelValues(metrics.OutcomeWaitlisted).Inc() })

	fx.notify(&entity.Notification{
		Kind:         entity.NotificationWaitlisted,
		UserId:       w.UserId,
		EventId:      w.EventId,
		TicketTypeId: w.TicketTypeId,
		WaitlistId:   w.Id,
		Quantity:     w.Quantity,
	})
	return &entity.ReserveResult{
		Waitlisted: true,
		WaitlistId: w.Id,
	}, nil
}

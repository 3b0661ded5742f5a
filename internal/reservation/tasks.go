package reservation

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jekabolt/grbpwr-tickets/internal/dependency"
	"github.com/jekabolt/grbpwr-tickets/internal/entity"
	gerr "github.com/jekabolt/grbpwr-tickets/internal/errors"
)

type ReservationExpiryPayload struct {
	ReservationId string `json:"reservationId"`
}

type WaitlistExpiryPayload struct {
	WaitlistId string `json:"waitlistId"`
}

// RegisterTasks binds the engine's scheduler-invoked operations to their task names.
func (e *Engine) RegisterTasks(s dependency.Scheduler) {
	s.Handle(TaskProcessReservation, e.handleProcessReservation)
	s.Handle(TaskReservationExpiry, e.handleReservationExpiry)
	s.Handle(TaskWaitlistExpiry, e.handleWaitlistExpiry)
}

func (e *Engine) handleProcessReservation(ctx context.Context, payload []byte) error {
	req := &entity.ReserveRequest{}
	if err := json.Unmarshal(payload, req); err != nil {
		return gerr.InvalidArgument("bad %s payload: %v", TaskProcessReservation, err)
	}
	_, err := e.Reserve(ctx, req)
	return err
}

func (e *Engine) handleReservationExpiry(ctx context.Context, payload []byte) error {
	p := ReservationExpiryPayload{}
	if err := json.Unmarshal(payload, &p); err != nil {
		return gerr.InvalidArgument("bad %s payload: %v", TaskReservationExpiry, err)
	}
	if p.ReservationId == "" {
		return gerr.InvalidArgument("reservation id is required")
	}
	if err := e.ExpireReservation(ctx, p.ReservationId); err != nil {
		return fmt.Errorf("reservation %s: %w", p.ReservationId, err)
	}
	return nil
}

func (e *Engine) handleWaitlistExpiry(ctx context.Context, payload []byte) error {
	p := WaitlistExpiryPayload{}
	if err := json.Unmarshal(payload, &p); err != nil {
		return gerr.InvalidArgument("bad %s payload: %v", TaskWaitlistExpiry, err)
	}
	if p.WaitlistId == "" {
		return gerr.InvalidArgument("waitlist id is required")
	}
	if err := e.ExpireWaitlistNotification(ctx, p.WaitlistId); err != nil {
		return fmt.Errorf("waitlist entry %s: %w", p.WaitlistId, err)
	}
	return nil
}

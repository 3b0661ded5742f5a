package store

import (
	"context"
	"fmt"

	"github.com/jekabolt/grbpwr-tickets/internal/dependency"
	"github.com/jekabolt/grbpwr-tickets/internal/entity"
)

type ticketStore struct {
	*MYSQLStore
}

func (ms *MYSQLStore) Tickets() dependency.Tickets {
	return &ticketStore{
		MYSQLStore: ms,
	}
}

var ticketColumns = []string{
	"id", "reservation_id", "user_id", "event_id", "ticket_type_id", "ticket_type_name",
	"price", "currency", "valid_from", "valid_until", "entrance_location_id", "status", "created_at",
}

func (ms *MYSQLStore) AddTickets(ctx context.Context, tickets []entity.Ticket) error {
	rows := make([]map[string]any, 0, len(tickets))
	for _, t := range tickets {
		rows = append(rows, map[string]any{
			"id":                   t.Id,
			"reservation_id":       t.ReservationId,
			"user_id":              t.UserId,
			"event_id":             t.EventId,
			"ticket_type_id":       t.TicketTypeId,
			"ticket_type_name":     t.TicketTypeName,
			"price":                t.Price,
			"currency":             t.Currency,
			"valid_from":           t.ValidFrom,
			"valid_until":          t.ValidUntil,
			"entrance_location_id": t.EntranceLocationId,
			"status":               t.Status,
			"created_at":           t.CreatedAt,
		})
	}
	if err := BulkInsert(ctx, ms.DB(), "ticket", ticketColumns, rows); err != nil {
		return fmt.Errorf("can't insert tickets: %w", err)
	}
	return nil
}

func (ms *MYSQLStore) ListTicketsByReservation(ctx context.Context, reservationId string) ([]entity.Ticket, error) {
	query := `SELECT * FROM ticket WHERE reservation_id = :reservationId ORDER BY ticket_type_id, id`
	ts, err := QueryListNamed[entity.Ticket](ctx, ms.DB(), query, map[string]any{
		"reservationId": reservationId,
	})
	if err != nil {
		return nil, fmt.Errorf("can't list tickets: %w", err)
	}
	return ts, nil
}

package store

import (
	"context"
	"fmt"

	"github.com/jekabolt/grbpwr-tickets/internal/dependency"
	"github.com/jekabolt/grbpwr-tickets/internal/entity"
)

type eventStore struct {
	*MYSQLStore
}

// Events returns an object implementing events interface
func (ms *MYSQLStore) Events() dependency.Events {
	return &eventStore{
		MYSQLStore: ms,
	}
}

// AddEvent inserts the event and its ticket types in one transaction.
func (ms *MYSQLStore) AddEvent(ctx context.Context, ef *entity.EventFull) error {
	if !ms.InTx() {
		return ms.Tx(ctx, func(ctx context.Context, rep dependency.Repository) error {
			return rep.Events().AddEvent(ctx, ef)
		})
	}

	query := `
	INSERT INTO event (id, name, location_id, start_time, end_time, created_at)
	VALUES (:id, :name, :locationId, :startTime, :endTime, :createdAt)`
	err := ExecNamed(ctx, ms.DB(), query, map[string]any{
		"id":         ef.Event.Id,
		"name":       ef.Event.Name,
		"locationId": ef.Event.LocationId,
		"startTime":  ef.Event.StartTime,
		"endTime":    ef.Event.EndTime,
		"createdAt":  ef.Event.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("can't insert event: %w", err)
	}

	rows := make([]map[string]any, 0, len(ef.TicketTypes))
	for _, tt := range ef.TicketTypes {
		rows = append(rows, map[string]any{
			"id":             tt.Id,
			"event_id":       ef.Event.Id,
			"name":           tt.Name,
			"price":          tt.Price,
			"currency":       tt.Currency,
			"total_quantity": tt.TotalQuantity,
			"valid_from":     tt.ValidFrom,
			"valid_until":    tt.ValidUntil,
			"entrance_id":    tt.EntranceId,
		})
	}
	err = BulkInsert(ctx, ms.DB(), "ticket_type", []string{
		"id", "event_id", "name", "price", "currency", "total_quantity",
		"valid_from", "valid_until", "entrance_id",
	}, rows)
	if err != nil {
		return fmt.Errorf("can't insert ticket types: %w", err)
	}
	return nil
}

// GetEventById returns the event with its ticket types or sql.ErrNoRows.
func (ms *MYSQLStore) GetEventById(ctx context.Context, id string) (*entity.EventFull, error) {
	ev, err := QueryNamedOne[entity.Event](ctx, ms.DB(), `SELECT * FROM event WHERE id = :id`, map[string]any{
		"id": id,
	})
	if err != nil {
		return nil, fmt.Errorf("can't get event: %w", err)
	}

	tts, err := QueryListNamed[entity.TicketType](ctx, ms.DB(),
		`SELECT * FROM ticket_type WHERE event_id = :eventId ORDER BY id`, map[string]any{
			"eventId": id,
		})
	if err != nil {
		return nil, fmt.Errorf("can't get ticket types: %w", err)
	}

	return &entity.EventFull{
		Event:       ev,
		TicketTypes: tts,
	}, nil
}

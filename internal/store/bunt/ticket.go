package bunt

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jekabolt/grbpwr-tickets/internal/dependency"
	"github.com/jekabolt/grbpwr-tickets/internal/entity"
	"github.com/tidwall/buntdb"
)

type ticketStore struct {
	*Store
}

func (s *Store) Tickets() dependency.Tickets {
	return &ticketStore{
		Store: s,
	}
}

func ticketKey(t *entity.Ticket) string {
	return "ticket:" + t.ReservationId + ":" + t.Id
}

func (s *Store) AddTickets(ctx context.Context, tickets []entity.Ticket) error {
	err := s.update(func(tx *buntdb.Tx) error {
		for i := range tickets {
			if err := insertJSON(tx, ticketKey(&tickets[i]), &tickets[i]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("can't insert tickets: %w", err)
	}
	return nil
}

func (s *Store) ListTicketsByReservation(ctx context.Context, reservationId string) ([]entity.Ticket, error) {
	var ts []entity.Ticket
	err := s.view(func(tx *buntdb.Tx) error {
		for _, val := range collectValues(tx, "ticket:"+reservationId+":", 0) {
			var t entity.Ticket
			if err := json.Unmarshal([]byte(val), &t); err != nil {
				return err
			}
			ts = append(ts, t)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("can't list tickets: %w", err)
	}
	return ts, nil
}

package form

import (
	"fmt"

	v "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/jekabolt/grbpwr-tickets/internal/entity"
)

const maxTicketLines = 20

// ReserveRequest validates a reservation attempt before any transaction starts.
type ReserveRequest struct {
	*entity.ReserveRequest
}

func (r *ReserveRequest) Validate() error {
	return ValidateStruct(r,
		v.Field(&r.UserId, v.Required),
		v.Field(&r.EventId, v.Required, v.Length(1, 64)),
		v.Field(&r.Tickets, v.Required, v.Length(1, maxTicketLines), v.By(validateTicketLines)),
	)
}

func validateTicketLines(value interface{}) error {
	lines, ok := value.([]entity.TicketLine)
	if !ok {
		return fmt.Errorf("invalid type for tickets")
	}

	seen := make(map[string]struct{}, len(lines))
	for i := range lines {
		err := v.ValidateStruct(&lines[i],
			v.Field(&lines[i].TicketTypeId, v.Required, v.Length(1, 64)),
			v.Field(&lines[i].Quantity, v.Required, v.Min(1)),
		)
		if err != nil {
			return fmt.Errorf("line %d: %w", i+1, err)
		}
		if _, dup := seen[lines[i].TicketTypeId]; dup {
			return fmt.Errorf("ticket type %s requested twice", lines[i].TicketTypeId)
		}
		seen[lines[i].TicketTypeId] = struct{}{}
	}
	return nil
}

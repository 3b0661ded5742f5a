package form

import (
	"fmt"

	"github.com/asaskevich/govalidator"
	v "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/jekabolt/grbpwr-tickets/internal/entity"
)

type AddEventRequest struct {
	*entity.EventFull
}

func (r *AddEventRequest) Validate() error {
	ev := &r.Event
	err := ValidateStruct(ev,
		v.Field(&ev.Id, v.Required, v.Length(1, 64)),
		v.Field(&ev.Name, v.Required, v.Length(1, 255)),
		v.Field(&ev.LocationId, v.Required, v.Length(1, 64)),
		v.Field(&ev.StartTime, v.Required),
		v.Field(&ev.EndTime, v.Required, v.Min(ev.StartTime).Error("must not be before start_time")),
	)
	if err != nil {
		return err
	}
	return ValidateStruct(r,
		v.Field(&r.TicketTypes, v.Required, v.By(validateTicketTypes)),
	)
}

func validateTicketTypes(value interface{}) error {
	tts, ok := value.([]entity.TicketType)
	if !ok {
		return fmt.Errorf("invalid type for ticket types")
	}

	seen := make(map[string]struct{}, len(tts))
	for i := range tts {
		tt := &tts[i]
		err := v.ValidateStruct(tt,
			v.Field(&tt.Id, v.Required, v.Length(1, 64)),
			v.Field(&tt.Name, v.Required, v.Length(1, 255)),
			v.Field(&tt.Currency, v.Required, v.Length(3, 3), is.UpperCase),
			v.Field(&tt.TotalQuantity, v.Min(0)),
		)
		if err != nil {
			return fmt.Errorf("ticket type %d: %w", i+1, err)
		}
		if !govalidator.IsISO4217(tt.Currency) {
			return fmt.Errorf("ticket type %s: unknown currency %s", tt.Id, tt.Currency)
		}
		if tt.Price.IsNegative() {
			return fmt.Errorf("ticket type %s: price must not be negative", tt.Id)
		}
		if tt.ValidFrom.Valid && tt.ValidUntil.Valid && tt.ValidUntil.Time.Before(tt.ValidFrom.Time) {
			return fmt.Errorf("ticket type %s: valid_until is before valid_from", tt.Id)
		}
		if _, dup := seen[tt.Id]; dup {
			return fmt.Errorf("ticket type %s defined twice", tt.Id)
		}
		seen[tt.Id] = struct{}{}
	}
	return nil
}

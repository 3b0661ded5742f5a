package entity

import (
	"database/sql"
	"time"

	"github.com/shopspring/decimal"
)

// Event represents the event table
type Event struct {
	Id         string    `db:"id" json:"id"`
	Name       string    `db:"name" json:"name"`
	LocationId string    `db:"location_id" json:"location_id"`
	StartTime  time.Time `db:"start_time" json:"start_time"`
	EndTime    time.Time `db:"end_time" json:"end_time"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// TicketType is a sellable ticket category authored on an event.
type TicketType struct {
	Id            string          `db:"id" json:"id"`
	EventId       string          `db:"event_id" json:"event_id"`
	Name          string          `db:"name" json:"name"`
	Price         decimal.Decimal `db:"price" json:"price"`
	Currency      string          `db:"currency" json:"currency"`
	TotalQuantity int             `db:"total_quantity" json:"total_quantity"`
	ValidFrom     sql.NullTime    `db:"valid_from" json:"valid_from"`
	ValidUntil    sql.NullTime    `db:"valid_until" json:"valid_until"`
	EntranceId    sql.NullString  `db:"entrance_id" json:"entrance_id"`
}

type EventFull struct {
	Event       Event        `json:"event"`
	TicketTypes []TicketType `json:"ticket_types"`
}

// TicketType returns the ticket type with the given id.
func (ef *EventFull) TicketType(id string) (*TicketType, bool) {
	for i := range ef.TicketTypes {
		if ef.TicketTypes[i].Id == id {
			return &ef.TicketTypes[i], true
		}
	}
	return nil, false
}

// Validity returns the window in which a ticket of type tt can be used,
// falling back to the event's own schedule.
func (ef *EventFull) Validity(tt *TicketType) (time.Time, time.Time) {
	from, until := ef.Event.StartTime, ef.Event.EndTime
	if tt.ValidFrom.Valid {
		from = tt.ValidFrom.Time
	}
	if tt.ValidUntil.Valid {
		until = tt.ValidUntil.Time
	}
	return from, until
}

// Entrance returns the location a ticket of type tt admits to.
func (ef *EventFull) Entrance(tt *TicketType) string {
	if tt.EntranceId.Valid && tt.EntranceId.String != "" {
		return tt.EntranceId.String
	}
	return ef.Event.LocationId
}

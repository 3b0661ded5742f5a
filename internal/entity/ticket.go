package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

type TicketStatus string

const (
	TicketValid TicketStatus = "valid"
)

// Ticket is one purchased admission. Price, validity and entrance are
// snapshotted from the event at purchase time.
type Ticket struct {
	Id                 string          `db:"id" json:"id"`
	ReservationId      string          `db:"reservation_id" json:"reservation_id"`
	UserId             string          `db:"user_id" json:"user_id"`
	EventId            string          `db:"event_id" json:"event_id"`
	TicketTypeId       string          `db:"ticket_type_id" json:"ticket_type_id"`
	TicketTypeName     string          `db:"ticket_type_name" json:"ticket_type_name"`
	Price              decimal.Decimal `db:"price" json:"price"`
	Currency           string          `db:"currency" json:"currency"`
	ValidFrom          time.Time       `db:"valid_from" json:"valid_from"`
	ValidUntil         time.Time       `db:"valid_until" json:"valid_until"`
	EntranceLocationId string          `db:"entrance_location_id" json:"entrance_location_id"`
	Status             TicketStatus    `db:"status" json:"status"`
	CreatedAt          time.Time       `db:"created_at" json:"created_at"`
}

package entity

import (
	"database/sql"
	"time"
)

type ReservationStatus string

const (
	ReservationPending   ReservationStatus = "pending"
	ReservationCompleted ReservationStatus = "completed"
	ReservationExpired   ReservationStatus = "expired"
	ReservationCancelled ReservationStatus = "cancelled"
)

// ReservationItem is one ticket type line of a reservation.
type ReservationItem struct {
	TicketTypeId string `db:"ticket_type_id" json:"ticket_type_id"`
	Quantity     int    `db:"quantity" json:"quantity"`
}

// Reservation is a time-boxed hold on inventory for one user.
type Reservation struct {
	Id                string            `db:"id" json:"id"`
	RequestId         string            `db:"request_id" json:"request_id"`
	UserId            string            `db:"user_id" json:"user_id"`
	EventId           string            `db:"event_id" json:"event_id"`
	Items             []ReservationItem `db:"-" json:"items"`
	Status            ReservationStatus `db:"status" json:"status"`
	ReservationTime   time.Time         `db:"reservation_time" json:"reservation_time"`
	ExpirationTime    time.Time         `db:"expiration_time" json:"expiration_time"`
	NotificationError sql.NullString    `db:"notification_error" json:"notification_error"`
	UpdatedAt         time.Time         `db:"updated_at" json:"updated_at"`
}

// Quantity returns the number of tickets held across all lines.
func (r *Reservation) Quantity() int {
	total := 0
	for _, it := range r.Items {
		total += it.Quantity
	}
	return total
}

// Lapsed reports whether the hold's deadline has passed at now.
func (r *Reservation) Lapsed(now time.Time) bool {
	return now.After(r.ExpirationTime)
}

// ExpiryDue reports whether the expiry handler may release the hold at now.
func (r *Reservation) ExpiryDue(now time.Time) bool {
	return !now.Before(r.ExpirationTime)
}

// TicketLine is a requested quantity of one ticket type.
type TicketLine struct {
	TicketTypeId string `json:"ticketTypeId"`
	Quantity     int    `json:"quantity"`
}

// ReserveRequest is the input of a reservation attempt; it is also the
// payload of the process-reservation task.
type ReserveRequest struct {
	RequestId string       `json:"requestId"`
	UserId    string       `json:"userId"`
	EventId   string       `json:"eventId"`
	Tickets   []TicketLine `json:"tickets"`
	Timestamp time.Time    `json:"timestamp"`
}

// ReserveResult reports either a created hold or a waitlist placement.
type ReserveResult struct {
	Success       bool      `json:"success"`
	ReservationId string    `json:"reservationId,omitempty"`
	ExpiresAt     time.Time `json:"expiresAt,omitempty"`
	Waitlisted    bool      `json:"waitlisted"`
	WaitlistId    string    `json:"waitlistId,omitempty"`
}

type PurchaseResult struct {
	ReservationId string   `json:"reservationId"`
	TicketIds     []string `json:"ticketIds"`
}

type ClaimResult struct {
	ReservationId string    `json:"reservationId"`
	ExpiresAt     time.Time `json:"expiresAt"`
}

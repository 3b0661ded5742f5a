package entity

import (
	"database/sql"
	"time"
)

type WaitlistStatus string

const (
	WaitlistWaiting  WaitlistStatus = "waiting"
	WaitlistNotified WaitlistStatus = "notified"
	WaitlistExpired  WaitlistStatus = "expired"
	WaitlistClaimed  WaitlistStatus = "claimed"
)

// WaitlistEntry is unsatisfied demand for one (event, ticket type) partition.
type WaitlistEntry struct {
	Id                string         `db:"id" json:"id"`
	RequestId         string         `db:"request_id" json:"request_id"`
	UserId            string         `db:"user_id" json:"user_id"`
	EventId           string         `db:"event_id" json:"event_id"`
	TicketTypeId      string         `db:"ticket_type_id" json:"ticket_type_id"`
	Quantity          int            `db:"quantity" json:"quantity"`
	RequestTime       time.Time      `db:"request_time" json:"request_time"`
	Seq               int64          `db:"seq" json:"seq"`
	NotificationSent  bool           `db:"notification_sent" json:"notification_sent"`
	NotificationTime  sql.NullTime   `db:"notification_time" json:"notification_time"`
	NotificationError sql.NullString `db:"notification_error" json:"notification_error"`
	ExpirationTime    sql.NullTime   `db:"expiration_time" json:"expiration_time"`
	Status            WaitlistStatus `db:"status" json:"status"`
	UpdatedAt         time.Time      `db:"updated_at" json:"updated_at"`
}

// ClaimLapsed reports whether a notified entry's claim window has passed at now.
func (w *WaitlistEntry) ClaimLapsed(now time.Time) bool {
	return w.ExpirationTime.Valid && now.After(w.ExpirationTime.Time)
}

// ExpiryDue reports whether the claim-expiry handler may release the earmark at now.
func (w *WaitlistEntry) ExpiryDue(now time.Time) bool {
	return w.ExpirationTime.Valid && !now.Before(w.ExpirationTime.Time)
}

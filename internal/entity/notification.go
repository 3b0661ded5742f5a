package entity

import "time"

type NotificationKind string

const (
	NotificationReservationCreated    NotificationKind = "reservation_created"
	NotificationWaitlisted            NotificationKind = "waitlisted"
	NotificationWaitlistSpotAvailable NotificationKind = "waitlist_spot_available"
	NotificationPurchaseCompleted     NotificationKind = "purchase_completed"
	NotificationReservationExpired    NotificationKind = "reservation_expired"
	NotificationWaitlistClaimExpired  NotificationKind = "waitlist_claim_expired"
)

// Notification is a structured message for one user about a state change.
type Notification struct {
	Kind          NotificationKind `json:"kind"`
	UserId        string           `json:"user_id"`
	EventId       string           `json:"event_id"`
	TicketTypeId  string           `json:"ticket_type_id,omitempty"`
	ReservationId string           `json:"reservation_id,omitempty"`
	WaitlistId    string           `json:"waitlist_id,omitempty"`
	Quantity      int              `json:"quantity"`
	ExpiresAt     time.Time        `json:"expires_at,omitempty"`
	TicketIds     []string         `json:"ticket_ids,omitempty"`
	CreatedAt     time.Time        `json:"created_at"`
}

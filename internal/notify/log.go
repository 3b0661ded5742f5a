package notify

import (
	"context"
	"log/slog"

	"github.com/jekabolt/grbpwr-tickets/internal/entity"
)

// Log writes notifications to the default logger.
type Log struct{}

func NewLog() *Log {
	return &Log{}
}

func (*Log) Notify(ctx context.Context, n *entity.Notification) error {
	attrs := []any{
		slog.String("kind", string(n.Kind)),
		slog.String("user_id", n.UserId),
		slog.String("event_id", n.EventId),
		slog.Int("quantity", n.Quantity),
	}
	if n.TicketTypeId != "" {
		attrs = append(attrs, slog.String("ticket_type_id", n.TicketTypeId))
	}
	if n.ReservationId != "" {
		attrs = append(attrs, slog.String("reservation_id", n.ReservationId))
	}
	if n.WaitlistId != "" {
		attrs = append(attrs, slog.String("waitlist_id", n.WaitlistId))
	}
	if !n.ExpiresAt.IsZero() {
		attrs = append(attrs, slog.Time("expires_at", n.ExpiresAt))
	}
	slog.Default().InfoContext(ctx, "notification", attrs...)
	return nil
}

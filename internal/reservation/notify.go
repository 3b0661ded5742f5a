package reservation

import (
	"context"
	"log/slog"

	"github.com/jekabolt/grbpwr-tickets/internal/entity"
	"github.com/jekabolt/grbpwr-tickets/internal/metrics"
)

// deliver hands committed notifications to the notifier. Failures are
// logged and recorded on the affected record, never returned.
func (e *Engine) deliver(ctx context.Context, notes []*entity.Notification) {
	for _, n := range notes {
		err := e.notifier.Notify(ctx, n)
		if err != nil {
			metrics.NotificationFailures.Inc()
			slog.Default().ErrorContext(ctx, "can't deliver notification",
				slog.String("kind", string(n.Kind)),
				slog.String("user_id", n.UserId),
				slog.String("reservation_id", n.ReservationId),
				slog.String("waitlist_id", n.WaitlistId),
				slog.String("err", err.Error()),
			)
		}
		e.recordDelivery(ctx, n, err)
	}
}

// recordDelivery writes the outcome of a delivery to the side-channel
// fields of its record. A spot-available outcome is always recorded since
// it drives notificationSent; other kinds only record failures and leave
// notificationSent alone.
func (e *Engine) recordDelivery(ctx context.Context, n *entity.Notification, sendErr error) {
	errMsg := ""
	if sendErr != nil {
		errMsg = sendErr.Error()
	}

	var err error
	switch {
	case n.Kind == entity.NotificationWaitlistSpotAvailable:
		err = e.rep.Waitlist().SetWaitlistNotification(ctx, n.WaitlistId, e.clock.Now(), errMsg)
	case sendErr != nil && n.ReservationId != "":
		err = e.rep.Reservations().SetReservationNotificationError(ctx, n.ReservationId, errMsg)
	case sendErr != nil && n.WaitlistId != "":
		err = e.rep.Waitlist().SetWaitlistNotificationError(ctx, n.WaitlistId, errMsg)
	}
	if err != nil {
		slog.Default().ErrorContext(ctx, "can't record notification outcome",
			slog.String("kind", string(n.Kind)),
			slog.String("err", err.Error()),
		)
	}
}

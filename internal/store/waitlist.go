package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jekabolt/grbpwr-tickets/internal/dependency"
	"github.com/jekabolt/grbpwr-tickets/internal/entity"
)

type waitlistStore struct {
	*MYSQLStore
}

func (ms *MYSQLStore) Waitlist() dependency.Waitlist {
	return &waitlistStore{
		MYSQLStore: ms,
	}
}

// AddWaitlistEntry inserts a waiting entry and sets its queue sequence number.
func (ms *MYSQLStore) AddWaitlistEntry(ctx context.Context, w *entity.WaitlistEntry) error {
	query := `
	INSERT INTO waitlist_entry
		(id, request_id, user_id, event_id, ticket_type_id, quantity, request_time, status, updated_at)
	VALUES
		(:id, :requestId, :userId, :eventId, :ticketTypeId, :quantity, :requestTime, :status, :updatedAt)`
	res, err := execNamed(ctx, ms.DB(), query, map[string]any{
		"id":           w.Id,
		"requestId":    w.RequestId,
		"userId":       w.UserId,
		"eventId":      w.EventId,
		"ticketTypeId": w.TicketTypeId,
		"quantity":     w.Quantity,
		"requestTime":  w.RequestTime,
		"status":       w.Status,
		"updatedAt":    w.UpdatedAt,
	})
	if err != nil {
		return fmt.Errorf("can't insert waitlist entry: %w", err)
	}
	seq, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("can't get waitlist entry seq: %w", err)
	}
	w.Seq = seq
	return nil
}

func (ms *MYSQLStore) GetWaitlistEntryById(ctx context.Context, id string) (*entity.WaitlistEntry, error) {
	return ms.getWaitlistEntry(ctx, `SELECT * FROM waitlist_entry WHERE id = :id`, map[string]any{
		"id": id,
	})
}

func (ms *MYSQLStore) GetWaitlistEntryByRequestId(ctx context.Context, requestId string) (*entity.WaitlistEntry, error) {
	return ms.getWaitlistEntry(ctx, `SELECT * FROM waitlist_entry WHERE request_id = :requestId`, map[string]any{
		"requestId": requestId,
	})
}

func (ms *MYSQLStore) getWaitlistEntry(ctx context.Context, query string, params map[string]any) (*entity.WaitlistEntry, error) {
	if ms.InTx() {
		query += " FOR UPDATE"
	}
	w, err := QueryNamedOne[entity.WaitlistEntry](ctx, ms.DB(), query, params)
	if err != nil {
		return nil, fmt.Errorf("can't get waitlist entry: %w", err)
	}
	return &w, nil
}

// ListWaitingEntries returns the head of the partition queue, oldest request first.
func (ms *MYSQLStore) ListWaitingEntries(ctx context.Context, eventId, ticketTypeId string, limit int) ([]entity.WaitlistEntry, error) {
	query := `
	SELECT * FROM waitlist_entry
	WHERE event_id = :eventId AND ticket_type_id = :ticketTypeId AND status = :status
	ORDER BY request_time, seq
	LIMIT :limit`
	if ms.InTx() {
		query += " FOR UPDATE"
	}
	ws, err := QueryListNamed[entity.WaitlistEntry](ctx, ms.DB(), query, map[string]any{
		"eventId":      eventId,
		"ticketTypeId": ticketTypeId,
		"status":       entity.WaitlistWaiting,
		"limit":        limit,
	})
	if err != nil {
		return nil, fmt.Errorf("can't list waiting entries: %w", err)
	}
	return ws, nil
}

// UpdateWaitlistEntry writes the mutable state of the entry.
func (ms *MYSQLStore) UpdateWaitlistEntry(ctx context.Context, w *entity.WaitlistEntry) error {
	query := `
	UPDATE waitlist_entry SET
		status = :status,
		notification_sent = :notificationSent,
		notification_time = :notificationTime,
		notification_error = :notificationError,
		expiration_time = :expirationTime,
		updated_at = :updatedAt
	WHERE id = :id`
	err := ExecNamed(ctx, ms.DB(), query, map[string]any{
		"id":                w.Id,
		"status":            w.Status,
		"notificationSent":  w.NotificationSent,
		"notificationTime":  w.NotificationTime,
		"notificationError": w.NotificationError,
		"expirationTime":    w.ExpirationTime,
		"updatedAt":         w.UpdatedAt,
	})
	if err != nil {
		return fmt.Errorf("can't update waitlist entry: %w", err)
	}
	return nil
}

func (ms *MYSQLStore) SetWaitlistNotification(ctx context.Context, id string, at time.Time, errMsg string) error {
	query := `
	UPDATE waitlist_entry SET
		notification_sent = :sent,
		notification_time = :at,
		notification_error = :errMsg
	WHERE id = :id`
	err := ExecNamed(ctx, ms.DB(), query, map[string]any{
		"id":     id,
		"sent":   errMsg == "",
		"at":     at,
		"errMsg": sql.NullString{String: errMsg, Valid: errMsg != ""},
	})
	if err != nil {
		return fmt.Errorf("can't set waitlist notification: %w", err)
	}
	return nil
}

func (ms *MYSQLStore) SetWaitlistNotificationError(ctx context.Context, id string, msg string) error {
	query := `UPDATE waitlist_entry SET notification_error = :errMsg WHERE id = :id`
	err := ExecNamed(ctx, ms.DB(), query, map[string]any{
		"id":     id,
		"errMsg": sql.NullString{String: msg, Valid: msg != ""},
	})
	if err != nil {
		return fmt.Errorf("can't set waitlist notification error: %w", err)
	}
	return nil
}

func (ms *MYSQLStore) ListWaitlistByUser(ctx context.Context, userId string) ([]entity.WaitlistEntry, error) {
	query := `SELECT * FROM waitlist_entry WHERE user_id = :userId ORDER BY request_time DESC, seq DESC`
	ws, err := QueryListNamed[entity.WaitlistEntry](ctx, ms.DB(), query, map[string]any{
		"userId": userId,
	})
	if err != nil {
		return nil, fmt.Errorf("can't list waitlist: %w", err)
	}
	return ws, nil
}

func (ms *MYSQLStore) ListLapsedWaitlistEntries(ctx context.Context, now time.Time, limit int) ([]entity.WaitlistEntry, error) {
	query := `
	SELECT * FROM waitlist_entry
	WHERE status = :status AND expiration_time < :now
	ORDER BY expiration_time
	LIMIT :limit`
	ws, err := QueryListNamed[entity.WaitlistEntry](ctx, ms.DB(), query, map[string]any{
		"status": entity.WaitlistNotified,
		"now":    now,
		"limit":  limit,
	})
	if err != nil {
		return nil, fmt.Errorf("can't list lapsed waitlist entries: %w", err)
	}
	return ws, nil
}

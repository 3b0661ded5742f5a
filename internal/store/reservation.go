package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jekabolt/grbpwr-tickets/internal/dependency"
	"github.com/jekabolt/grbpwr-tickets/internal/entity"
)

type reservationStore struct {
	*MYSQLStore
}

// Reservations returns an object implementing reservations interface
func (ms *MYSQLStore) Reservations() dependency.Reservations {
	return &reservationStore{
		MYSQLStore: ms,
	}
}

type reservationItemRow struct {
	ReservationId string `db:"reservation_id"`
	LineNo        int    `db:"line_no"`
	entity.ReservationItem
}

func (ms *MYSQLStore) AddReservation(ctx context.Context, r *entity.Reservation) error {
	query := `
	INSERT INTO reservation
		(id, request_id, user_id, event_id, status, reservation_time, expiration_time, updated_at)
	VALUES
		(:id, :requestId, :userId, :eventId, :status, :reservationTime, :expirationTime, :updatedAt)`
	err := ExecNamed(ctx, ms.DB(), query, map[string]any{
		"id":              r.Id,
		"requestId":       r.RequestId,
		"userId":          r.UserId,
		"eventId":         r.EventId,
		"status":          r.Status,
		"reservationTime": r.ReservationTime,
		"expirationTime":  r.ExpirationTime,
		"updatedAt":       r.UpdatedAt,
	})
	if err != nil {
		return fmt.Errorf("can't insert reservation: %w", err)
	}

	rows := make([]map[string]any, 0, len(r.Items))
	for i, it := range r.Items {
		rows = append(rows, map[string]any{
			"reservation_id": r.Id,
			"line_no":        i,
			"ticket_type_id": it.TicketTypeId,
			"quantity":       it.Quantity,
		})
	}
	err = BulkInsert(ctx, ms.DB(), "reservation_item",
		[]string{"reservation_id", "line_no", "ticket_type_id", "quantity"}, rows)
	if err != nil {
		return fmt.Errorf("can't insert reservation items: %w", err)
	}
	return nil
}

func (ms *MYSQLStore) GetReservationById(ctx context.Context, id string) (*entity.Reservation, error) {
	return ms.getReservation(ctx, `SELECT * FROM reservation WHERE id = :id`, map[string]any{
		"id": id,
	})
}

func (ms *MYSQLStore) GetReservationByRequestId(ctx context.Context, requestId string) (*entity.Reservation, error) {
	return ms.getReservation(ctx, `SELECT * FROM reservation WHERE request_id = :requestId`, map[string]any{
		"requestId": requestId,
	})
}

func (ms *MYSQLStore) getReservation(ctx context.Context, query string, params map[string]any) (*entity.Reservation, error) {
	if ms.InTx() {
		query += " FOR UPDATE"
	}
	r, err := QueryNamedOne[entity.Reservation](ctx, ms.DB(), query, params)
	if err != nil {
		return nil, fmt.Errorf("can't get reservation: %w", err)
	}
	rs := []entity.Reservation{r}
	if err := ms.fillReservationItems(ctx, rs); err != nil {
		return nil, err
	}
	return &rs[0], nil
}

// UpdateReservationStatus moves the reservation to st. It returns
// sql.ErrNoRows when the reservation does not exist.
func (ms *MYSQLStore) UpdateReservationStatus(ctx context.Context, id string, st entity.ReservationStatus, at time.Time) error {
	query := `UPDATE reservation SET status = :status, updated_at = :updatedAt WHERE id = :id`
	n, err := ExecNamedAffected(ctx, ms.DB(), query, map[string]any{
		"id":        id,
		"status":    st,
		"updatedAt": at,
	})
	if err != nil {
		return fmt.Errorf("can't update reservation status: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("can't update reservation status: %w", sql.ErrNoRows)
	}
	return nil
}

func (ms *MYSQLStore) SetReservationNotificationError(ctx context.Context, id string, msg string) error {
	query := `UPDATE reservation SET notification_error = :msg WHERE id = :id`
	err := ExecNamed(ctx, ms.DB(), query, map[string]any{
		"id":  id,
		"msg": sql.NullString{String: msg, Valid: msg != ""},
	})
	if err != nil {
		return fmt.Errorf("can't set reservation notification error: %w", err)
	}
	return nil
}

func (ms *MYSQLStore) ListReservationsByUser(ctx context.Context, userId string) ([]entity.Reservation, error) {
	query := `SELECT * FROM reservation WHERE user_id = :userId ORDER BY reservation_time DESC, id`
	rs, err := QueryListNamed[entity.Reservation](ctx, ms.DB(), query, map[string]any{
		"userId": userId,
	})
	if err != nil {
		return nil, fmt.Errorf("can't list reservations: %w", err)
	}
	if err := ms.fillReservationItems(ctx, rs); err != nil {
		return nil, err
	}
	return rs, nil
}

func (ms *MYSQLStore) ListOverdueReservations(ctx context.Context, now time.Time, limit int) ([]entity.Reservation, error) {
	query := `
	SELECT * FROM reservation
	WHERE status = :status AND expiration_time < :now
	ORDER BY expiration_time
	LIMIT :limit`
	rs, err := QueryListNamed[entity.Reservation](ctx, ms.DB(), query, map[string]any{
		"status": entity.ReservationPending,
		"now":    now,
		"limit":  limit,
	})
	if err != nil {
		return nil, fmt.Errorf("can't list overdue reservations: %w", err)
	}
	if err := ms.fillReservationItems(ctx, rs); err != nil {
		return nil, err
	}
	return rs, nil
}

func (ms *MYSQLStore) fillReservationItems(ctx context.Context, rs []entity.Reservation) error {
	if len(rs) == 0 {
		return nil
	}
	ids := make([]string, 0, len(rs))
	for _, r := range rs {
		ids = append(ids, r.Id)
	}
	query := `
	SELECT * FROM reservation_item
	WHERE reservation_id IN (:ids)
	ORDER BY reservation_id, line_no`
	items, err := QueryListNamed[reservationItemRow](ctx, ms.DB(), query, map[string]any{
		"ids": ids,
	})
	if err != nil {
		return fmt.Errorf("can't get reservation items: %w", err)
	}
	byId := make(map[string][]entity.ReservationItem, len(rs))
	for _, it := range items {
		byId[it.ReservationId] = append(byId[it.ReservationId], it.ReservationItem)
	}
	for i := range rs {
		rs[i].Items = byId[rs[i].Id]
	}
	return nil
}

package bunt

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"

	"github.com/jekabolt/grbpwr-tickets/internal/dependency"
	"github.com/jekabolt/grbpwr-tickets/internal/entity"
	"github.com/tidwall/buntdb"
)

type reservationStore struct {
	*Store
}

func (s *Store) Reservations() dependency.Reservations {
	return &reservationStore{
		Store: s,
	}
}

func reservationKey(id string) string { return "res:" + id }

func reservationRequestKey(requestId string) string { return "resreq:" + requestId }

func reservationUserKey(userId, id string) string { return "resuser:" + userId + ":" + id }

// reservationDueKey indexes pending reservations by deadline.
func reservationDueKey(r *entity.Reservation) string {
	return "resdue:" + stamp(r.ExpirationTime) + ":" + r.Id
}

func (s *Store) AddReservation(ctx context.Context, r *entity.Reservation) error {
	err := s.update(func(tx *buntdb.Tx) error {
		if _, err := tx.Get(reservationRequestKey(r.RequestId)); err == nil {
			return fmt.Errorf("request %s: %w", r.RequestId, ErrDuplicate)
		}
		if err := insertJSON(tx, reservationKey(r.Id), r); err != nil {
			return err
		}
		if _, _, err := tx.Set(reservationRequestKey(r.RequestId), r.Id, nil); err != nil {
			return err
		}
		if _, _, err := tx.Set(reservationUserKey(r.UserId, r.Id), r.Id, nil); err != nil {
			return err
		}
		if r.Status == entity.ReservationPending {
			if _, _, err := tx.Set(reservationDueKey(r), r.Id, nil); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("can't insert reservation: %w", err)
	}
	return nil
}

func (s *Store) GetReservationById(ctx context.Context, id string) (*entity.Reservation, error) {
	r := &entity.Reservation{}
	err := s.view(func(tx *buntdb.Tx) error {
		return getJSON(tx, reservationKey(id), r)
	})
	if err != nil {
		return nil, fmt.Errorf("can't get reservation: %w", err)
	}
	return r, nil
}

func (s *Store) GetReservationByRequestId(ctx context.Context, requestId string) (*entity.Reservation, error) {
	r := &entity.Reservation{}
	err := s.view(func(tx *buntdb.Tx) error {
		id, err := tx.Get(reservationRequestKey(requestId))
		if err != nil {
			return sql.ErrNoRows
		}
		return getJSON(tx, reservationKey(id), r)
	})
	if err != nil {
		return nil, fmt.Errorf("can't get reservation: %w", err)
	}
	return r, nil
}

func (s *Store) UpdateReservationStatus(ctx context.Context, id string, st entity.ReservationStatus, at time.Time) error {
	err := s.update(func(tx *buntdb.Tx) error {
		r := &entity.Reservation{}
		if err := getJSON(tx, reservationKey(id), r); err != nil {
			return err
		}
		if r.Status == entity.ReservationPending && st != entity.ReservationPending {
			if err := deleteKey(tx, reservationDueKey(r)); err != nil {
				return err
			}
		}
		r.Status = st
		r.UpdatedAt = at
		return setJSON(tx, reservationKey(id), r)
	})
	if err != nil {
		return fmt.Errorf("can't update reservation status: %w", err)
	}
	return nil
}

func (s *Store) SetReservationNotificationError(ctx context.Context, id string, msg string) error {
	err := s.update(func(tx *buntdb.Tx) error {
		r := &entity.Reservation{}
		if err := getJSON(tx, reservationKey(id), r); err != nil {
			return err
		}
		r.NotificationError = sql.NullString{String: msg, Valid: msg != ""}
		return setJSON(tx, reservationKey(id), r)
	})
	if err != nil {
		return fmt.Errorf("can't set reservation notification error: %w", err)
	}
	return nil
}

func (s *Store) ListReservationsByUser(ctx context.Context, userId string) ([]entity.Reservation, error) {
	var rs []entity.Reservation
	err := s.view(func(tx *buntdb.Tx) error {
		ids := collectValues(tx, "resuser:"+userId+":", 0)
		var err error
		rs, err = loadReservations(tx, ids)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("can't list reservations: %w", err)
	}
	sort.SliceStable(rs, func(i, j int) bool {
		return rs[i].ReservationTime.After(rs[j].ReservationTime)
	})
	return rs, nil
}

func (s *Store) ListOverdueReservations(ctx context.Context, now time.Time, limit int) ([]entity.Reservation, error) {
	var rs []entity.Reservation
	err := s.view(func(tx *buntdb.Tx) error {
		var ids []string
		err := ascendBefore(tx, "resdue:", now, func(_, id string) bool {
			ids = append(ids, id)
			return limit <= 0 || len(ids) < limit
		})
		if err != nil {
			return err
		}
		rs, err = loadReservations(tx, ids)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("can't list overdue reservations: %w", err)
	}
	return rs, nil
}

func loadReservations(tx *buntdb.Tx, ids []string) ([]entity.Reservation, error) {
	rs := make([]entity.Reservation, 0, len(ids))
	for _, id := range ids {
		var r entity.Reservation
		if err := getJSON(tx, reservationKey(id), &r); err != nil {
			return nil, fmt.Errorf("reservation %s: %w", id, err)
		}
		rs = append(rs, r)
	}
	return rs, nil
}

// collectValues returns the values of keys under prefix, at most limit when positive.
func collectValues(tx *buntdb.Tx, prefix string, limit int) []string {
	var vals []string
	_ = ascendPrefix(tx, prefix, func(_, val string) bool {
		vals = append(vals, val)
		return limit <= 0 || len(vals) < limit
	})
	return vals
}

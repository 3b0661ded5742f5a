package bunt

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/jekabolt/grbpwr-tickets/internal/dependency"
	"github.com/jekabolt/grbpwr-tickets/internal/entity"
	"github.com/tidwall/buntdb"
)

type waitlistStore struct {
	*Store
}

func (s *Store) Waitlist() dependency.Waitlist {
	return &waitlistStore{
		Store: s,
	}
}

const waitlistSeqKey = "seq:waitlist"

func waitlistKey(id string) string { return "wl:" + id }

func waitlistRequestKey(requestId string) string { return "wlreq:" + requestId }

func waitlistUserKey(userId, id string) string { return "wluser:" + userId + ":" + id }

func waitlistQueuePrefix(eventId, ticketTypeId string) string {
	return "wlq:" + eventId + ":" + ticketTypeId + ":"
}

// waitlistQueueKey orders waiting entries of a partition by request time,
// then by insertion.
func waitlistQueueKey(w *entity.WaitlistEntry) string {
	return waitlistQueuePrefix(w.EventId, w.TicketTypeId) + stamp(w.RequestTime) + ":" + fmt.Sprintf("%020d", w.Seq)
}

// waitlistDueKey indexes notified entries by the end of their claim window.
func waitlistDueKey(w *entity.WaitlistEntry) string {
	return "wldue:" + stamp(w.ExpirationTime.Time) + ":" + w.Id
}

func nextSeq(tx *buntdb.Tx, key string) (int64, error) {
	var seq int64
	val, err := tx.Get(key)
	if err == nil {
		if seq, err = strconv.ParseInt(val, 10, 64); err != nil {
			return 0, fmt.Errorf("corrupt sequence %s: %w", key, err)
		}
	}
	seq++
	if _, _, err := tx.Set(key, strconv.FormatInt(seq, 10), nil); err != nil {
		return 0, err
	}
	return seq, nil
}

func (s *Store) AddWaitlistEntry(ctx context.Context, w *entity.WaitlistEntry) error {
	err := s.update(func(tx *buntdb.Tx) error {
		if _, err := tx.Get(waitlistRequestKey(w.RequestId)); err == nil {
			return fmt.Errorf("request %s: %w", w.RequestId, ErrDuplicate)
		}
		seq, err := nextSeq(tx, waitlistSeqKey)
		if err != nil {
			return err
		}
		w.Seq = seq
		if err := insertJSON(tx, waitlistKey(w.Id), w); err != nil {
			return err
		}
		if _, _, err := tx.Set(waitlistRequestKey(w.RequestId), w.Id, nil); err != nil {
			return err
		}
		if _, _, err := tx.Set(waitlistUserKey(w.UserId, w.Id), w.Id, nil); err != nil {
			return err
		}
		return setIndexes(tx, nil, w)
	})
	if err != nil {
		return fmt.Errorf("can't insert waitlist entry: %w", err)
	}
	return nil
}

// setIndexes moves the status indexes of an entry from old to w.
func setIndexes(tx *buntdb.Tx, old, w *entity.WaitlistEntry) error {
	if old != nil {
		switch old.Status {
		case entity.WaitlistWaiting:
			if err := deleteKey(tx, waitlistQueueKey(old)); err != nil {
				return err
			}
		case entity.WaitlistNotified:
			if err := deleteKey(tx, waitlistDueKey(old)); err != nil {
				return err
			}
		}
	}
	switch w.Status {
	case entity.WaitlistWaiting:
		_, _, err := tx.Set(waitlistQueueKey(w), w.Id, nil)
		return err
	case entity.WaitlistNotified:
		if w.ExpirationTime.Valid {
			_, _, err := tx.Set(waitlistDueKey(w), w.Id, nil)
			return err
		}
	}
	return nil
}

func (s *Store) GetWaitlistEntryById(ctx context.Context, id string) (*entity.WaitlistEntry, error) {
	w := &entity.WaitlistEntry{}
	err := s.view(func(tx *buntdb.Tx) error {
		return getJSON(tx, waitlistKey(id), w)
	})
	if err != nil {
		return nil, fmt.Errorf("can't get waitlist entry: %w", err)
	}
	return w, nil
}

func (s *Store) GetWaitlistEntryByRequestId(ctx context.Context, requestId string) (*entity.WaitlistEntry, error) {
	w := &entity.WaitlistEntry{}
	err := s.view(func(tx *buntdb.Tx) error {
		id, err := tx.Get(waitlistRequestKey(requestId))
		if err != nil {
			return sql.ErrNoRows
		}
		return getJSON(tx, waitlistKey(id), w)
	})
	if err != nil {
		return nil, fmt.Errorf("can't get waitlist entry: %w", err)
	}
	return w, nil
}

func (s *Store) ListWaitingEntries(ctx context.Context, eventId, ticketTypeId string, limit int) ([]entity.WaitlistEntry, error) {
	var ws []entity.WaitlistEntry
	err := s.view(func(tx *buntdb.Tx) error {
		ids := collectValues(tx, waitlistQueuePrefix(eventId, ticketTypeId), limit)
		var err error
		ws, err = loadWaitlist(tx, ids)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("can't list waiting entries: %w", err)
	}
	return ws, nil
}

func (s *Store) UpdateWaitlistEntry(ctx context.Context, w *entity.WaitlistEntry) error {
	err := s.update(func(tx *buntdb.Tx) error {
		old := &entity.WaitlistEntry{}
		if err := getJSON(tx, waitlistKey(w.Id), old); err != nil {
			return err
		}
		// queue position and ownership are fixed at insertion
		w.Seq = old.Seq
		w.RequestTime = old.RequestTime
		w.RequestId = old.RequestId
		w.UserId = old.UserId
		if err := setIndexes(tx, old, w); err != nil {
			return err
		}
		return setJSON(tx, waitlistKey(w.Id), w)
	})
	if err != nil {
		return fmt.Errorf("can't update waitlist entry: %w", err)
	}
	return nil
}

func (s *Store) SetWaitlistNotification(ctx context.Context, id string, at time.Time, errMsg string) error {
	err := s.update(func(tx *buntdb.Tx) error {
		w := &entity.WaitlistEntry{}
		if err := getJSON(tx, waitlistKey(id), w); err != nil {
			return err
		}
		w.NotificationSent = errMsg == ""
		w.NotificationTime = sql.NullTime{Time: at, Valid: true}
		w.NotificationError = sql.NullString{String: errMsg, Valid: errMsg != ""}
		return setJSON(tx, waitlistKey(id), w)
	})
	if err != nil {
		return fmt.Errorf("can't set waitlist notification: %w", err)
	}
	return nil
}

func (s *Store) SetWaitlistNotificationError(ctx context.Context, id string, msg string) error {
	err := s.update(func(tx *buntdb.Tx) error {
		w := &entity.WaitlistEntry{}
		if err := getJSON(tx, waitlistKey(id), w); err != nil {
			return err
		}
		w.NotificationError = sql.NullString{String: msg, Valid: msg != ""}
		return setJSON(tx, waitlistKey(id), w)
	})
	if err != nil {
		return fmt.Errorf("can't set waitlist notification error: %w", err)
	}
	return nil
}

func (s *Store) ListWaitlistByUser(ctx context.Context, userId string) ([]entity.WaitlistEntry, error) {
	var ws []entity.WaitlistEntry
	err := s.view(func(tx *buntdb.Tx) error {
		ids := collectValues(tx, "wluser:"+userId+":", 0)
		var err error
		ws, err = loadWaitlist(tx, ids)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("can't list waitlist: %w", err)
	}
	sort.SliceStable(ws, func(i, j int) bool {
		if !ws[i].RequestTime.Equal(ws[j].RequestTime) {
			return ws[i].RequestTime.After(ws[j].RequestTime)
		}
		return ws[i].Seq > ws[j].Seq
	})
	return ws, nil
}

func (s *Store) ListLapsedWaitlistEntries(ctx context.Context, now time.Time, limit int) ([]entity.WaitlistEntry, error) {
	var ws []entity.WaitlistEntry
	err := s.view(func(tx *buntdb.Tx) error {
		var ids []string
		err := ascendBefore(tx, "wldue:", now, func(_, id string) bool {
			ids = append(ids, id)
			return limit <= 0 || len(ids) < limit
		})
		if err != nil {
			return err
		}
		ws, err = loadWaitlist(tx, ids)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("can't list lapsed waitlist entries: %w", err)
	}
	return ws, nil
}

func loadWaitlist(tx *buntdb.Tx, ids []string) ([]entity.WaitlistEntry, error) {
	ws := make([]entity.WaitlistEntry, 0, len(ids))
	for _, id := range ids {
		var w entity.WaitlistEntry
		if err := getJSON(tx, waitlistKey(id), &w); err != nil {
			return nil, fmt.Errorf("waitlist entry %s: %w", id, err)
		}
		ws = append(ws, w)
	}
	return ws, nil
}

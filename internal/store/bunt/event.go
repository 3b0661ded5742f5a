package bunt

import (
	"context"
	"fmt"

	"github.com/jekabolt/grbpwr-tickets/internal/dependency"
	"github.com/jekabolt/grbpwr-tickets/internal/entity"
	"github.com/tidwall/buntdb"
)

type eventStore struct {
	*Store
}

func (s *Store) Events() dependency.Events {
	return &eventStore{
		Store: s,
	}
}

func eventKey(id string) string { return "event:" + id }

func (s *Store) AddEvent(ctx context.Context, ef *entity.EventFull) error {
	err := s.update(func(tx *buntdb.Tx) error {
		return insertJSON(tx, eventKey(ef.Event.Id), ef)
	})
	if err != nil {
		return fmt.Errorf("can't insert event: %w", err)
	}
	return nil
}

func (s *Store) GetEventById(ctx context.Context, id string) (*entity.EventFull, error) {
	ef := &entity.EventFull{}
	err := s.view(func(tx *buntdb.Tx) error {
		return getJSON(tx, eventKey(id), ef)
	})
	if err != nil {
		return nil, fmt.Errorf("can't get event: %w", err)
	}
	return ef, nil
}

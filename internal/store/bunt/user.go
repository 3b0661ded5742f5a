package bunt

import (
	"context"
	"fmt"

	"github.com/jekabolt/grbpwr-tickets/internal/dependency"
	"github.com/jekabolt/grbpwr-tickets/internal/entity"
	"github.com/tidwall/buntdb"
)

type userStore struct {
	*Store
}

func (s *Store) Users() dependency.Users {
	return &userStore{
		Store: s,
	}
}

func userKey(id string) string { return "user:" + id }

func (s *Store) AddUser(ctx context.Context, u *entity.User) error {
	err := s.update(func(tx *buntdb.Tx) error {
		return insertJSON(tx, userKey(u.Id), u)
	})
	if err != nil {
		return fmt.Errorf("can't insert user: %w", err)
	}
	return nil
}

func (s *Store) GetUserById(ctx context.Context, id string) (*entity.User, error) {
	u := &entity.User{}
	err := s.view(func(tx *buntdb.Tx) error {
		return getJSON(tx, userKey(id), u)
	})
	if err != nil {
		return nil, fmt.Errorf("can't get user: %w", err)
	}
	return u, nil
}

package store

import (
	"context"
	"fmt"

	"github.com/jekabolt/grbpwr-tickets/internal/dependency"
	"github.com/jekabolt/grbpwr-tickets/internal/entity"
)

type userStore struct {
	*MYSQLStore
}

func (ms *MYSQLStore) Users() dependency.Users {
	return &userStore{
		MYSQLStore: ms,
	}
}

func (ms *MYSQLStore) AddUser(ctx context.Context, u *entity.User) error {
	query := `
	INSERT INTO users (id, email, display_name, created_at)
	VALUES (:id, :email, :displayName, :createdAt)`
	err := ExecNamed(ctx, ms.DB(), query, map[string]any{
		"id":          u.Id,
		"email":       u.Email,
		"displayName": u.DisplayName,
		"createdAt":   u.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("can't insert user: %w", err)
	}
	return nil
}

func (ms *MYSQLStore) GetUserById(ctx context.Context, id string) (*entity.User, error) {
	u, err := QueryNamedOne[entity.User](ctx, ms.DB(), `SELECT * FROM users WHERE id = :id`, map[string]any{
		"id": id,
	})
	if err != nil {
		return nil, fmt.Errorf("can't get user: %w", err)
	}
	return &u, nil
}

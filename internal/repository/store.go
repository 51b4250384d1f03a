package repository

import (
	"context"

	"gorm.io/gorm"
)

// Store groups the repositories that share one database handle.
type Store interface {
	Users() UserRepository
	Tasks() TaskRepository
	// WithTransaction executes fn against repositories bound to a single
	// database transaction. Returning an error rolls it back.
	WithTransaction(ctx context.Context, fn func(ctx context.Context, store Store) error) error
}

type store struct {
	db *gorm.DB
}

// NewStore builds a GORM-backed store.
func NewStore(db *gorm.DB) Store {
	return &store{db: db}
}

func (s *store) Users() UserRepository {
	return &userRepository{db: s.db}
}

func (s *store) Tasks() TaskRepository {
	return &taskRepository{db: s.db}
}

func (s *store) WithTransaction(ctx context.Context, fn func(ctx context.Context, store Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(ctx, &store{db: tx})
	})
}

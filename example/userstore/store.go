// Package userstore is a small user directory served over JSON-RPC. It
// shows each way a handler can reach module state, with an in-memory or
// PostgreSQL backed Store.
package userstore

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound       = errors.New("userstore: user not found")
	ErrDuplicateEmail = errors.New("userstore: email already registered")
)

type User struct {
	ID        int64     `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	Email     *string   `json:"email" db:"email"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Store persists users. Implementations are safe for concurrent use.
type Store interface {
	Create(ctx context.Context, u User) (User, error)
	Get(ctx context.Context, id int64) (User, error)
	List(ctx context.Context, offset, limit int) ([]User, error)
	Delete(ctx context.Context, id int64) (bool, error)
	Count(ctx context.Context) (int, error)
}

package identity

import (
	"context"
	"errors"
)

var (
	ErrNotFound    = errors.New("identity: user not found")
	ErrUnreachable = errors.New("identity: service unreachable")
)

type User struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Verifier resolves a user id. Failures wrap ErrNotFound or ErrUnreachable.
type Verifier interface {
	Verify(ctx context.Context, userID string) (*User, error)
}

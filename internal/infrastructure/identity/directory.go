package identity

import (
	"context"
	"fmt"
	"sync"

	domidentity "github.com/Zhima-Mochi/minishop-saga/internal/domain/identity"
)

var _ domidentity.Verifier = (*Directory)(nil)

// Directory is an in-process user registry for running without an identity
// service.
type Directory struct {
	mu    sync.RWMutex
	users map[string]domidentity.User
}

func NewDirectory(users ...domidentity.User) *Directory {
	d := &Directory{users: make(map[string]domidentity.User, len(users))}
	for _, u := range users {
		d.users[u.ID] = u
	}
	return d
}

func (d *Directory) Add(u domidentity.User) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.users[u.ID] = u
}

func (d *Directory) Verify(ctx context.Context, userID string) (*domidentity.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", domidentity.ErrUnreachable, err)
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	u, ok := d.users[userID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domidentity.ErrNotFound, userID)
	}
	return &u, nil
}

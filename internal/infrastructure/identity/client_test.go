package identity

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	domidentity "github.com/Zhima-Mochi/minishop-saga/internal/domain/identity"
	"github.com/Zhima-Mochi/minishop-saga/internal/observability"
	"github.com/Zhima-Mochi/minishop-saga/internal/pkg/retry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fastPolicy = retry.Policy{MaxAttempts: 3, InitialInterval: time.Millisecond, MaxInterval: 2 * time.Millisecond}

func TestVerifyFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/users/user_1", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success":true,"data":{"id":"user_1","name":"Ada","email":"ada@example.com"}}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, srv.Client(), fastPolicy, observability.Nop())
	u, err := c.Verify(context.Background(), "user_1")
	require.NoError(t, err)
	assert.Equal(t, "Ada", u.Name)
}

func TestVerifyNotFoundIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.NotFound(w, r)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, srv.Client(), fastPolicy, observability.Nop())
	_, err := c.Verify(context.Background(), "ghost")
	assert.ErrorIs(t, err, domidentity.ErrNotFound)
	assert.EqualValues(t, 1, calls.Load())
}

func TestVerifyRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"success":true,"data":{"id":"user_1"}}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, srv.Client(), fastPolicy, observability.Nop())
	u, err := c.Verify(context.Background(), "user_1")
	require.NoError(t, err)
	assert.Equal(t, "user_1", u.ID)
	assert.EqualValues(t, 3, calls.Load())
}

func TestVerifyUnreachableAfterRetries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, srv.Client(), fastPolicy, observability.Nop())
	_, err := c.Verify(context.Background(), "user_1")
	assert.ErrorIs(t, err, domidentity.ErrUnreachable)
}

func TestVerifyTimeoutIsUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	c := NewClient(srv.URL, srv.Client(), fastPolicy, observability.Nop())
	_, err := c.Verify(ctx, "user_1")
	assert.ErrorIs(t, err, domidentity.ErrUnreachable)
}

func TestDirectory(t *testing.T) {
	d := NewDirectory(domidentity.User{ID: "user_1", Name: "Ada"})
	u, err := d.Verify(context.Background(), "user_1")
	require.NoError(t, err)
	assert.Equal(t, "Ada", u.Name)

	_, err = d.Verify(context.Background(), "user_2")
	assert.ErrorIs(t, err, domidentity.ErrNotFound)
}

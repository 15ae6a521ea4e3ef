package session

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("session not found")

type Store interface {
	Get(ctx context.Context, id string) (*Session, error)
	Put(ctx context.Context, s *Session) error
	Delete(ctx context.Context, id string) error
	// Purge removes sessions whose access token expired before cutoff and
	// returns how many were removed.
	Purge(ctx context.Context, cutoff time.Time) (int, error)
}

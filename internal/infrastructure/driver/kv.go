package driver

import (
	"context"
	"errors"
	"time"
)

// ErrConflict optimistic update lost every retry to concurrent writers
var ErrConflict = errors.New("too many concurrent updates")

// UpdateFunc receives the current value (exists is false when the key is absent)
// and returns the value to store
type UpdateFunc func(current string, exists bool) (next string, err error)

// KeyValueDB define a key-value storage interface
type KeyValueDB interface {
	SetEX(ctx context.Context, key string, value string, expiration time.Duration) error
	Get(ctx context.Context, key string) (string, bool, error)
	Exists(ctx context.Context, key string) (bool, error)
	// Update performs an atomic read-modify-write on key, fn may be called several
	// times when other writers interleave
	Update(ctx context.Context, key string, fn UpdateFunc) error
	Ping() error
}

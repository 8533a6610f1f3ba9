package lock

import (
	"context"
	"errors"
)

// Locker serializes work per key. Lock blocks until the key is free or ctx
// ends, and returns the function that releases it.
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

var ErrEmptyKey = errors.New("lock_key_empty")

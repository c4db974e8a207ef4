package redis

import (
	"context"
	"errors"
	"time"

	pkgerrors "github.com/angelmondragon/ravewear-storefront/pkg/errors"
	"github.com/google/uuid"
)

const (
	lockAttempts   = 10
	lockRetryDelay = 50 * time.Millisecond
)

// ReleaseFunc gives a lock back. It is safe to call after the lock expired.
type ReleaseFunc func(ctx context.Context) error

// Lock takes the rw:lock:<scope>:<id> key for ttl, retrying briefly while
// another holder owns it. It fails with CONFLICT when the key stays taken.
func (c *Client) Lock(ctx context.Context, scope, id string, ttl time.Duration) (ReleaseFunc, error) {
	if c.store == nil {
		return nil, errors.New("redis client not initialized")
	}
	key := c.LockKey(scope, id)
	token := uuid.NewString()

	for attempt := 0; attempt < lockAttempts; attempt++ {
		ok, err := c.SetNX(ctx, key, token, ttl)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "acquire lock")
		}
		if ok {
			return func(ctx context.Context) error {
				_, err := c.ReleaseIfOwner(ctx, key, token)
				return err
			}, nil
		}
		select {
		case <-ctx.Done():
			return nil, pkgerrors.Wrap(pkgerrors.CodeConflict, ctx.Err(), scope+" is busy")
		case <-time.After(lockRetryDelay):
		}
	}
	return nil, pkgerrors.New(pkgerrors.CodeConflict, scope+" is busy")
}

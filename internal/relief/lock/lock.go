// Package lock provides the package editing lock: one officer at a time
// may hold a relief package open for allocation editing. The lock is
// advisory and expires on its own, so an abandoned session never wedges a
// package permanently.
package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/drims/drims-backend/pkg/errors"
	"github.com/redis/go-redis/v9"
)

const packageLockPrefix = "lock:reliefpkg:"

var releaseLockScript = redis.NewScript(`
local key = KEYS[1]
local holder = ARGV[1]

if redis.call('GET', key) == holder then
	redis.call('DEL', key)
	return 1
end

return 0
`)

// PackageLocker manages per-package edit locks in Redis
type PackageLocker struct {
	client *redis.Client
	ttl    time.Duration
}

// NewPackageLocker creates a new package locker with the given lock TTL
func NewPackageLocker(client *redis.Client, ttl time.Duration) *PackageLocker {
	return &PackageLocker{client: client, ttl: ttl}
}

func packageLockKey(packageID int64) string {
	return fmt.Sprintf("%s%d", packageLockPrefix, packageID)
}

// Acquire takes the edit lock for a package on behalf of a user. A lock
// already held by the same user is refreshed; a lock held by someone else
// returns a conflict naming the holder.
func (l *PackageLocker) Acquire(ctx context.Context, packageID int64, holder string) error {
	key := packageLockKey(packageID)

	ok, err := l.client.SetNX(ctx, key, holder, l.ttl).Result()
	if err != nil {
		return fmt.Errorf("failed to acquire package lock: %w", err)
	}
	if ok {
		return nil
	}

	current, err := l.client.Get(ctx, key).Result()
	if err != nil && err != redis.Nil {
		return fmt.Errorf("failed to read package lock: %w", err)
	}
	if current == holder {
		// Refresh our own lock.
		if err := l.client.Expire(ctx, key, l.ttl).Err(); err != nil {
			return fmt.Errorf("failed to refresh package lock: %w", err)
		}
		return nil
	}

	return errors.Conflict(fmt.Sprintf("package is being edited by %s", current)).WithDetails(map[string]string{
		"locked_by": current,
	})
}

// Release drops the edit lock if the caller still holds it. Releasing a
// lock that expired or moved to another holder is not an error.
func (l *PackageLocker) Release(ctx context.Context, packageID int64, holder string) error {
	key := packageLockKey(packageID)
	if err := releaseLockScript.Run(ctx, l.client, []string{key}, holder).Err(); err != nil && err != redis.Nil {
		return fmt.Errorf("failed to release package lock: %w", err)
	}
	return nil
}

// Holder returns the current lock holder, empty when unlocked
func (l *PackageLocker) Holder(ctx context.Context, packageID int64) (string, error) {
	holder, err := l.client.Get(ctx, packageLockKey(packageID)).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read package lock: %w", err)
	}
	return holder, nil
}

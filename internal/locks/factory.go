package locks

import (
	"saaskit/internal/cache"
)

// NewLockManager picks the lock implementation for the client's backend:
// Redlock via redsync when Redis is active, the token-guarded Manager
// otherwise. Both satisfy LockManagerInterface.
func NewLockManager(client *cache.Client) (LockManagerInterface, error) {
	if store, ok := client.Store.(*cache.RedisStore); ok {
		return NewRedsyncManager(store)
	}
	return NewManager(client), nil
}

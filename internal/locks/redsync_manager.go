package locks

import (
	"context"
	"sync"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v8"

	"saaskit/internal/cache"
	apperrors "saaskit/internal/common/errors"
)

// RedsyncManager implements managed locking with the Redlock algorithm from
// go-redsync/redsync/v4. It is used instead of the token-based Manager when
// the Redis backend is active: Redlock handles clock drift and contention
// scenarios the simple conditional-set lock does not.
//
// It implements the same LockManagerInterface as Manager, so callers never
// know which one they got.
type RedsyncManager struct {
	redsync    *redsync.Redsync
	localLocks map[string]*redsyncLock
	mutex      sync.RWMutex
}

// redsyncLock wraps a redsync.Mutex to implement the Lock interface with
// automatic renewal.
type redsyncLock struct {
	mutex      *redsync.Mutex
	key        string
	expiration time.Duration
	ctx        context.Context
	cancel     context.CancelFunc
	manager    *RedsyncManager
}

// NewRedsyncManager creates a Redlock-based lock manager over the Redis
// backend's connection pool.
func NewRedsyncManager(store *cache.RedisStore) (*RedsyncManager, error) {
	if store == nil {
		return nil, apperrors.ConfigError("redis store is required")
	}

	pool := goredis.NewPool(store.GoRedisClient())
	rs := redsync.New(pool)

	return &RedsyncManager{
		redsync:    rs,
		localLocks: make(map[string]*redsyncLock),
	}, nil
}

// AcquireLock takes the named lock via Redlock and starts background
// renewal. Contention surfaces as a lock-typed error, same as Manager.
func (rm *RedsyncManager) AcquireLock(ctx context.Context, key string, expiration time.Duration) (Lock, error) {
	mutex := rm.redsync.NewMutex("lock:"+key,
		redsync.WithExpiry(expiration),
		redsync.WithTries(1),
	)

	if err := mutex.LockContext(ctx); err != nil {
		return nil, apperrors.LockError("failed to acquire distributed lock", err).
			WithContext("key", key)
	}

	lockCtx, cancel := context.WithCancel(context.Background())
	lock := &redsyncLock{
		mutex:      mutex,
		key:        key,
		expiration: expiration,
		ctx:        lockCtx,
		cancel:     cancel,
		manager:    rm,
	}

	rm.mutex.Lock()
	rm.localLocks[key] = lock
	rm.mutex.Unlock()

	go rm.renewLock(lock)

	return lock, nil
}

func (rm *RedsyncManager) renewLock(lock *redsyncLock) {
	renewInterval := lock.expiration / 3
	if renewInterval < time.Second {
		renewInterval = time.Second
	}

	ticker := time.NewTicker(renewInterval)
	defer ticker.Stop()

	for {
		select {
		case <-lock.ctx.Done():
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			ok, err := lock.mutex.ExtendContext(ctx)
			cancel()

			if err != nil || !ok {
				rm.releaseLock(lock)
				return
			}
		}
	}
}

func (rm *RedsyncManager) releaseLock(lock *redsyncLock) {
	rm.mutex.Lock()
	delete(rm.localLocks, lock.key)
	rm.mutex.Unlock()

	lock.cancel()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, _ = lock.mutex.UnlockContext(ctx)
}

// AcquireWebhookLock guards processing of one inbound webhook event.
func (rm *RedsyncManager) AcquireWebhookLock(ctx context.Context, eventID string) (Lock, error) {
	return rm.AcquireLock(ctx, "webhook:"+eventID, 5*time.Minute)
}

// AcquireJobLock coordinates which instance runs a recurring background job.
func (rm *RedsyncManager) AcquireJobLock(ctx context.Context, jobID string) (Lock, error) {
	return rm.AcquireLock(ctx, "job:"+jobID, 30*time.Second)
}

// Close releases every held lock and clears local tracking.
func (rm *RedsyncManager) Close() error {
	rm.mutex.Lock()
	defer rm.mutex.Unlock()

	for _, lock := range rm.localLocks {
		lock.cancel()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_, _ = lock.mutex.UnlockContext(ctx)
		cancel()
	}

	rm.localLocks = make(map[string]*redsyncLock)
	return nil
}

func (rl *redsyncLock) Key() string {
	return rl.key
}

// Extend updates the expiration used by the renewal cycle; redsync applies
// the original expiry on each extension, so the new value takes effect on
// the next renewal tick.
func (rl *redsyncLock) Extend(_ context.Context, expiration time.Duration) error {
	rl.expiration = expiration
	return nil
}

func (rl *redsyncLock) Release(ctx context.Context) error {
	rl.manager.releaseLock(rl)
	return nil
}

func (rl *redsyncLock) IsHeld() bool {
	select {
	case <-rl.ctx.Done():
		return false
	default:
		return true
	}
}

// LockManagerInterface is implemented by both Manager and RedsyncManager so
// the rest of the application never branches on which one it received.
type LockManagerInterface interface {
	AcquireLock(ctx context.Context, key string, expiration time.Duration) (Lock, error)
	AcquireWebhookLock(ctx context.Context, eventID string) (Lock, error)
	AcquireJobLock(ctx context.Context, jobID string) (Lock, error)
	Close() error
}

var _ LockManagerInterface = (*Manager)(nil)
var _ LockManagerInterface = (*RedsyncManager)(nil)

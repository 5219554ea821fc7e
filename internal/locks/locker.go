// Package locks serializes submissions per card or requisition. A second
// submission for an entity that is already in flight fails fast with
// SUBMISSION_IN_FLIGHT instead of queueing.
package locks

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	pkgerrors "github.com/lastline-erp/lastline-backend/pkg/errors"
	"github.com/lastline-erp/lastline-backend/pkg/logger"
)

// Entity kinds used in lock keys.
const (
	KindCard        = "card"
	KindRequisition = "requisition"
)

// Locker hands out per-entity locks. The returned func releases the lock.
type Locker interface {
	Acquire(ctx context.Context, kind string, id uuid.UUID) (func(), error)
}

type keyer interface {
	LockKey(kind, id string) string
}

type contentionRecorder interface {
	IncInFlight(entity string)
}

// RedisLocker spreads locks across API replicas.
type RedisLocker struct {
	store    redisStore
	keys     keyer
	ttl      time.Duration
	recorder contentionRecorder
	logg     *logger.Logger
}

// RedisStore is what RedisLocker needs from the redis client.
type RedisStore interface {
	redisStore
	keyer
}

// NewRedisLocker builds a Redis-backed locker.
func NewRedisLocker(store RedisStore, ttl time.Duration, recorder contentionRecorder, logg *logger.Logger) (*RedisLocker, error) {
	if store == nil {
		return nil, fmt.Errorf("redis store required")
	}
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	return &RedisLocker{store: store, keys: store, ttl: ttl, recorder: recorder, logg: logg}, nil
}

func (l *RedisLocker) Acquire(ctx context.Context, kind string, id uuid.UUID) (func(), error) {
	lock, err := NewRedisLock(l.store, l.keys.LockKey(kind, id.String()), l.ttl)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build entity lock")
	}
	ok, err := lock.Acquire(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "acquire entity lock")
	}
	if !ok {
		if l.recorder != nil {
			l.recorder.IncInFlight(kind)
		}
		return nil, inFlight(kind, id)
	}
	return func() {
		// the request context may already be cancelled
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer cancel()
		if err := lock.Release(releaseCtx); err != nil && l.logg != nil {
			l.logg.Warn(ctx, fmt.Sprintf("release %s lock: %v", kind, err))
		}
	}, nil
}

// MemoryLocker is the single-process fallback when Redis is not configured.
type MemoryLocker struct {
	mu       sync.Mutex
	held     map[string]struct{}
	recorder contentionRecorder
}

// NewMemoryLocker builds an in-process locker.
func NewMemoryLocker(recorder contentionRecorder) *MemoryLocker {
	return &MemoryLocker{held: make(map[string]struct{}), recorder: recorder}
}

func (l *MemoryLocker) Acquire(_ context.Context, kind string, id uuid.UUID) (func(), error) {
	key := kind + ":" + id.String()

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, busy := l.held[key]; busy {
		if l.recorder != nil {
			l.recorder.IncInFlight(kind)
		}
		return nil, inFlight(kind, id)
	}
	l.held[key] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, key)
			l.mu.Unlock()
		})
	}, nil
}

func inFlight(kind string, id uuid.UUID) error {
	return pkgerrors.New(pkgerrors.CodeInFlight, fmt.Sprintf("%s %s has a submission in progress", kind, id))
}

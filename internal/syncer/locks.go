package syncer

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
)

// ErrLocked: otro worker ya tiene el lock de esa conexión. No es una
// falla; el run se saltea y el próximo tick lo agarra.
var ErrLocked = errors.New("syncer: connection is locked by another worker")

// Locker serializa los sync runs por conexión. release libera el lock;
// siempre hay que llamarlo, incluso tras error del run.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (release func(), err error)
}

// redisLocker usa redislock para coordinar entre réplicas del servicio.
type redisLocker struct {
	inner *redislock.Client
}

func NewRedisLocker(client *redis.Client) Locker {
	return &redisLocker{inner: redislock.New(client)}
}

func (l *redisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	lock, err := l.inner.Obtain(ctx, key, ttl, nil)
	if err != nil {
		if errors.Is(err, redislock.ErrNotObtained) {
			return nil, ErrLocked
		}
		return nil, err
	}
	return func() {
		// release usa un context propio: el del run puede estar cancelado.
		rctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = lock.Release(rctx)
	}, nil
}

// localLocker es el fallback in-process cuando no hay Redis configurado
// (single-replica dev). TryLock en vez de Lock: mismo contrato no
// bloqueante que el locker de Redis.
type localLocker struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewLocalLocker() Locker {
	return &localLocker{locks: make(map[string]*sync.Mutex)}
}

func (l *localLocker) Acquire(_ context.Context, key string, _ time.Duration) (func(), error) {
	l.mu.Lock()
	m, ok := l.locks[key]
	if !ok {
		m = &sync.Mutex{}
		l.locks[key] = m
	}
	l.mu.Unlock()

	if !m.TryLock() {
		return nil, ErrLocked
	}
	return m.Unlock, nil
}

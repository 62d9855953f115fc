// Package redislock is a redis-backed distributed mutex: SET NX EX for
// acquisition, a background watchdog goroutine that renews the lease via a
// Lua check-and-expire script so a slow holder doesn't get its lock stolen
// mid-tick, and a Lua check-and-delete script so Unlock only removes a lock
// this instance still owns.
package redislock

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/gomodule/redigo/redis"

	"github.com/brnsampaio/tcc-coordinator/txerr"
)

const (
	keyPrefix         = "tcc:lock:"
	watchDogStep      = 10 * time.Second
	watchDogLeaseSecs = int64(watchDogStep/time.Second) + 5
	pollInterval      = 50 * time.Millisecond
)

var errLockInUse = errors.New("redislock: lock already held by another instance")

const luaCheckAndDelete = `
local key = KEYS[1]
local token = ARGV[1]
local current = redis.call("get", key)
if (not current or current ~= token) then
	return 0
else
	return redis.call("del", key)
end
`

const luaCheckAndExpire = `
local key = KEYS[1]
local token = ARGV[1]
local expire = ARGV[2]
if redis.call("get", key) ~= token then
	return 0
else
	return redis.call("expire", key, expire)
end
`

// Lock is a single cluster-wide mutex backed by one fixed redis key. It
// implements txstore.Locker.
type Lock struct {
	key   string
	pool  *redis.Pool
	token string

	runningDog int32
	stopDog    context.CancelFunc
}

// New builds a Lock bound to name, using pool for connections. One *Lock
// should be shared by every caller within a process that wants the same
// cluster-wide mutex (the Monitor).
func New(name string, pool *redis.Pool) *Lock {
	return &Lock{
		key:   keyPrefix + name,
		pool:  pool,
		token: processToken(),
	}
}

// Lock blocks up to expire trying to acquire the mutex. Once acquired, a
// watchdog goroutine renews its lease every watchDogStep until Unlock.
func (l *Lock) Lock(ctx context.Context, expire time.Duration) error {
	if err := l.tryAcquire(ctx); err == nil {
		l.startWatchdog()
		return nil
	}

	timeout := time.NewTimer(expire)
	defer timeout.Stop()
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return txerr.ErrLockAcquisition
		case <-timeout.C:
			return txerr.ErrLockAcquisition
		case <-ticker.C:
			if err := l.tryAcquire(ctx); err == nil {
				l.startWatchdog()
				return nil
			} else if !errors.Is(err, errLockInUse) {
				return txerr.NewStorageError("Lock", err)
			}
		}
	}
}

func (l *Lock) tryAcquire(ctx context.Context) error {
	conn, err := l.pool.GetContext(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	reply, err := redis.String(conn.Do("SET", l.key, l.token, "EX", watchDogLeaseSecs, "NX"))
	if err != nil {
		if errors.Is(err, redis.ErrNil) {
			return errLockInUse
		}
		return err
	}
	if reply != "OK" {
		return errLockInUse
	}
	return nil
}

func (l *Lock) startWatchdog() {
	if !atomic.CompareAndSwapInt32(&l.runningDog, 0, 1) {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	l.stopDog = cancel

	go func() {
		defer atomic.StoreInt32(&l.runningDog, 0)
		ticker := time.NewTicker(watchDogStep)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := l.renew(ctx); err != nil {
					return
				}
			}
		}
	}()
}

func (l *Lock) renew(ctx context.Context) error {
	conn, err := l.pool.GetContext(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	reply, err := redis.Int64(conn.Do("EVAL", luaCheckAndExpire, 1, l.key, l.token, strconv.FormatInt(watchDogLeaseSecs, 10)))
	if err != nil {
		return err
	}
	if reply != 1 {
		return fmt.Errorf("redislock: lost ownership of %s while renewing", l.key)
	}
	return nil
}

// Unlock releases the lock if this instance still owns it; a no-op
// otherwise.
func (l *Lock) Unlock(ctx context.Context) error {
	if l.stopDog != nil {
		l.stopDog()
		l.stopDog = nil
	}

	conn, err := l.pool.GetContext(ctx)
	if err != nil {
		return txerr.NewStorageError("Unlock", err)
	}
	defer conn.Close()

	reply, err := redis.Int64(conn.Do("EVAL", luaCheckAndDelete, 1, l.key, l.token))
	if err != nil {
		return txerr.NewStorageError("Unlock", err)
	}
	if reply != 1 {
		return nil // not held by us, nothing to do
	}
	return nil
}

func processToken() string {
	return fmt.Sprintf("%d-%d", os.Getpid(), time.Now().UnixNano())
}

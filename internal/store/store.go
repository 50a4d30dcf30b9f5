// Package store is a thin adapter over a Redis-protocol key-value server.
// It exposes typed hash get/set, atomic field increment, prefix key
// enumeration, and per-key advisory locks. It carries no business logic —
// every method maps to one or two round-trips against the client.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"github.com/didac-crst/mockexchange-api/internal/xerr"
)

// Store wraps one redis client. All operations are safe for concurrent use;
// the client itself pools connections.
type Store struct {
	rdb *redis.Client
}

// Open connects to addr and verifies reachability with a PING.
func Open(ctx context.Context, addr, password string, db int) (*Store, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to store: %w", classify(err))
	}
	return &Store{rdb: rdb}, nil
}

// WrapClient builds a Store around an already-configured client; used by
// tests that inject a redismock client.
func WrapClient(rdb *redis.Client) *Store {
	return &Store{rdb: rdb}
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	return s.rdb.Close()
}

// HGetAll returns every field of the hash at key. A missing key returns an
// empty, non-nil map — callers distinguish "absent" from "present but
// zero-valued" by checking len(fields) == 0 where that matters.
func (s *Store) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	var fields map[string]string
	err := withRetry(ctx, func() error {
		var err error
		fields, err = s.rdb.HGetAll(ctx, key).Result()
		return classify(err)
	})
	if err != nil {
		return nil, fmt.Errorf("hgetall %s: %w", key, err)
	}
	return fields, nil
}

// HSet writes every field in fields to the hash at key in one round-trip.
func (s *Store) HSet(ctx context.Context, key string, fields map[string]string) error {
	if len(fields) == 0 {
		return nil
	}
	args := make([]interface{}, 0, len(fields)*2)
	for k, v := range fields {
		args = append(args, k, v)
	}
	err := withRetry(ctx, func() error {
		return classify(s.rdb.HSet(ctx, key, args...).Err())
	})
	if err != nil {
		return fmt.Errorf("hset %s: %w", key, err)
	}
	return nil
}

// HIncrByFloat atomically adds delta to field of the hash at key, creating
// both if absent, and returns the new value.
func (s *Store) HIncrByFloat(ctx context.Context, key, field string, delta float64) (float64, error) {
	var v float64
	err := withRetry(ctx, func() error {
		var err error
		v, err = s.rdb.HIncrByFloat(ctx, key, field, delta).Result()
		return classify(err)
	})
	if err != nil {
		return 0, fmt.Errorf("hincrbyfloat %s.%s: %w", key, field, err)
	}
	return v, nil
}

// KeysWithPrefix enumerates every key starting with prefix using SCAN,
// never KEYS, so it never blocks the server on a large keyspace. Intended
// only for background sweeps (prune, reconciliation), per §4.1.
func (s *Store) KeysWithPrefix(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	err := withRetry(ctx, func() error {
		keys = keys[:0]
		iter := s.rdb.Scan(ctx, 0, prefix+"*", 0).Iterator()
		for iter.Next(ctx) {
			keys = append(keys, iter.Val())
		}
		return classify(iter.Err())
	})
	if err != nil {
		return nil, fmt.Errorf("scan %s*: %w", prefix, err)
	}
	return keys, nil
}

// Delete removes key. Deleting an absent key is not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	err := withRetry(ctx, func() error {
		return classify(s.rdb.Del(ctx, key).Err())
	})
	if err != nil {
		return fmt.Errorf("del %s: %w", key, err)
	}
	return nil
}

// NextID atomically increments and returns a monotonic counter stored at
// key, used to mint order ids. Callers format the returned int64 into the
// oid themselves.
func (s *Store) NextID(ctx context.Context, key string) (int64, error) {
	var n int64
	err := withRetry(ctx, func() error {
		var err error
		n, err = s.rdb.Incr(ctx, key).Result()
		return classify(err)
	})
	if err != nil {
		return 0, fmt.Errorf("incr %s: %w", key, err)
	}
	return n, nil
}

// FlushAll wipes every key in the current DB. Used only by the admin
// "wipe data" endpoint; never called from the engine's own code paths.
func (s *Store) FlushAll(ctx context.Context) error {
	err := withRetry(ctx, func() error {
		return classify(s.rdb.FlushDB(ctx).Err())
	})
	if err != nil {
		return fmt.Errorf("flushdb: %w", err)
	}
	return nil
}

const (
	retryMaxAttempts = 3
	retryBaseDelay   = 5 * time.Millisecond
	retryMaxDelay    = 40 * time.Millisecond
)

// withRetry runs fn, retrying with exponential backoff while it keeps
// failing with xerr.Transient — §7: "Transient — store unavailable;
// retried with bounded backoff inside the Store Adapter." Any other error,
// including nil, returns immediately; ctx cancellation aborts the wait.
func withRetry(ctx context.Context, fn func() error) error {
	delay := retryBaseDelay
	var err error
	for attempt := 0; attempt < retryMaxAttempts; attempt++ {
		err = fn()
		if err == nil || !xerr.Is(err, xerr.Transient) {
			return err
		}
		if attempt == retryMaxAttempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return err
		case <-time.After(delay):
		}
		delay *= 2
		if delay > retryMaxDelay {
			delay = retryMaxDelay
		}
	}
	return err
}

const lockTTL = 10 * time.Second

const (
	lockMaxAttempts       = 3
	lockRetryInitialDelay = 2 * time.Millisecond
	lockRetryMaxDelay     = 20 * time.Millisecond
)

// WithLock runs fn while holding an advisory, per-key mutual-exclusion lock
// implemented with SET key token NX PX, released by a conditional DEL that
// only fires if the token still matches (so a lock that outlived its TTL
// and was reacquired by someone else is never deleted out from under them).
// Locking is advisory: nothing prevents a client that bypasses WithLock from
// touching the same key, by design (§5). Its callers are the Portfolio
// (balance rows) and the Orderbook (order records).
//
// Contention on lockKey is waited out with bounded backoff rather than
// failing on the first busy attempt (§4.1: with_lock gives "mutually
// exclusive execution per key"; §5: "none should busy-wait"); only once
// lockMaxAttempts are exhausted does the caller see xerr.Conflict.
func (s *Store) WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	lockKey := "lock_" + key
	token := uuid.NewString()

	ok, err := s.acquireLock(ctx, lockKey, token)
	if err != nil {
		return fmt.Errorf("acquire lock %s: %w", key, err)
	}
	if !ok {
		return fmt.Errorf("lock %s held: %w", key, xerr.Conflict)
	}
	defer s.releaseLock(ctx, lockKey, token)

	return fn(ctx)
}

func (s *Store) acquireLock(ctx context.Context, lockKey, token string) (bool, error) {
	delay := lockRetryInitialDelay
	for attempt := 0; attempt < lockMaxAttempts; attempt++ {
		var ok bool
		err := withRetry(ctx, func() error {
			var err error
			ok, err = s.rdb.SetNX(ctx, lockKey, token, lockTTL).Result()
			return classify(err)
		})
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
		if attempt == lockMaxAttempts-1 {
			return false, nil
		}
		select {
		case <-ctx.Done():
			return false, nil
		case <-time.After(delay):
		}
		delay *= 2
		if delay > lockRetryMaxDelay {
			delay = lockRetryMaxDelay
		}
	}
	return false, nil
}

var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end
`)

func (s *Store) releaseLock(ctx context.Context, lockKey, token string) {
	// Use a background context: the caller's ctx may already be canceled by
	// the time fn returns, but the lock still needs releasing.
	releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	releaseScript.Run(releaseCtx, s.rdb, []string{lockKey}, token)
}

// classify maps a go-redis error to one of the xerr sentinel kinds so
// callers above the store never branch on redis-specific types.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, redis.Nil) {
		return xerr.NotFound
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %v", xerr.Transient, err)
	}
	return fmt.Errorf("%w: %v", xerr.Transient, err)
}

package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/feeledger/internal/config"
)

const (
	keyPaymentStudent = "feeledger:payments:student:%s"
	keyLedgerPairLock = "feeledger:ledger:lock:%s:%s"

	lockRetryInterval = 25 * time.Millisecond
)

// ErrLockTimeout means another writer held the ledger pair for the whole wait.
var ErrLockTimeout = errors.New("ledger_lock_timeout")

// LedgerGuard coordinates ledger writers across instances. A nil or disabled
// guard allows every payment and grants every lock.
type LedgerGuard struct {
	bucket *TokenBucket
	locker *Locker
	policy *config.PolicyHolder
}

func NewLedgerGuard(client *redis.Client, policy *config.PolicyHolder) *LedgerGuard {
	return &LedgerGuard{
		bucket: NewTokenBucket(client),
		locker: NewLocker(client),
		policy: policy,
	}
}

func (g *LedgerGuard) Enabled() bool {
	return g != nil && g.bucket != nil && g.locker != nil
}

// AllowPayment spends one token of the student's payment bucket.
func (g *LedgerGuard) AllowPayment(ctx context.Context, studentID snowflake.ID) (*RateLimitResult, error) {
	if !g.Enabled() {
		return &RateLimitResult{Allowed: true}, nil
	}
	limit := g.policy.Get().PaymentRateLimit
	return g.bucket.Allow(ctx, fmt.Sprintf(keyPaymentStudent, studentID), limit.PerMinute/60, limit.Burst)
}

// LockPair waits up to the policy lock TTL for the (student, fee definition)
// lock. The returned release func is never nil.
func (g *LedgerGuard) LockPair(ctx context.Context, studentID, feeDefinitionID snowflake.ID) (func(context.Context) error, error) {
	noop := func(context.Context) error { return nil }
	if !g.Enabled() {
		return noop, nil
	}

	ttl := g.policy.Get().LockTTL
	key := fmt.Sprintf(keyLedgerPairLock, studentID, feeDefinitionID)
	deadline := time.Now().Add(ttl)
	for {
		token, ok, err := g.locker.TryLock(ctx, key, ttl)
		if err != nil {
			return noop, err
		}
		if ok {
			return func(releaseCtx context.Context) error {
				return g.locker.Release(releaseCtx, key, token)
			}, nil
		}
		if time.Now().After(deadline) {
			return noop, ErrLockTimeout
		}
		select {
		case <-ctx.Done():
			return noop, ctx.Err()
		case <-time.After(lockRetryInterval):
		}
	}
}

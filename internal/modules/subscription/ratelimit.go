package subscription

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/lumenfest/core/internal/config"
	"github.com/lumenfest/core/internal/models"
	"github.com/lumenfest/core/internal/store"
	"go.uber.org/zap"
)

// Rate-limit scopes, in check priority order.
const (
	ScopeIP     = "byIP"
	ScopeEmail  = "byEmail"
	ScopeGlobal = "global"

	globalKey = "hourly"

	rateWindow = time.Hour

	// Block duration is tripled when the same window also blew through the
	// daily ceiling.
	dailyBreachMultiplier = 3
)

// Decision is the outcome of a rate-limit check.
type Decision struct {
	Allowed    bool
	Scope      string
	Remaining  int           // attempts left in the window, valid when allowed
	RetryAfter time.Duration // valid when blocked
}

// scopeLimits are the effective thresholds for one scope.
type scopeLimits struct {
	hourly int
	daily  int
	block  time.Duration // zero means soft limit: reject without persisting a block
	retry  time.Duration // retry hint for soft rejections
}

// Limiter enforces windowed counters persisted in the document store.
//
// Counters are read, mutated, and written back without a transaction. Two
// concurrent requests for the same key can both read the stale count and
// undercount by one; this is an accepted soft limit, not a hard guarantee.
type Limiter struct {
	store store.Store
	ip    scopeLimits
	email scopeLimits
	globl scopeLimits
	log   *zap.Logger
	now   func() time.Time
}

// NewLimiter builds a Limiter from the injected rules.
func NewLimiter(st store.Store, rules config.RateLimitRules, log *zap.Logger) *Limiter {
	return &Limiter{
		store: st,
		ip:    scopeLimits{hourly: rules.IPHourly, daily: rules.IPDaily, block: rules.IPBlock()},
		email: scopeLimits{hourly: rules.EmailHourly, daily: rules.EmailDaily, block: rules.EmailBlock()},
		globl: scopeLimits{hourly: rules.GlobalHourly, daily: rules.GlobalDaily, retry: rules.GlobalRetry()},
		log:   log,
		now:   time.Now,
	}
}

func (l *Limiter) limitsFor(scope string) scopeLimits {
	switch scope {
	case ScopeIP:
		return l.ip
	case ScopeEmail:
		return l.email
	default:
		return l.globl
	}
}

// CheckAll runs the three scope checks concurrently and returns the first
// blocking decision in IP → email → global priority. When every scope allows,
// the returned Remaining is the minimum across scopes.
func (l *Limiter) CheckAll(ctx context.Context, ipHash, emailHash string) (Decision, error) {
	type scoped struct {
		scope string
		key   string
	}
	targets := []scoped{
		{ScopeIP, ipHash},
		{ScopeEmail, emailHash},
		{ScopeGlobal, globalKey},
	}

	decisions := make([]Decision, len(targets))
	errs := make([]error, len(targets))
	var wg sync.WaitGroup
	for i, tgt := range targets {
		wg.Add(1)
		go func(i int, tgt scoped) {
			defer wg.Done()
			decisions[i], errs[i] = l.Check(ctx, tgt.scope, tgt.key)
		}(i, tgt)
	}
	wg.Wait()

	min := Decision{Allowed: true, Remaining: -1}
	for i := range targets {
		if errs[i] != nil {
			return Decision{}, errs[i]
		}
		if !decisions[i].Allowed {
			return decisions[i], nil
		}
		if min.Remaining < 0 || decisions[i].Remaining < min.Remaining {
			min.Remaining = decisions[i].Remaining
			min.Scope = decisions[i].Scope
		}
	}
	return min, nil
}

// Check applies the window algorithm to a single scope/key pair.
func (l *Limiter) Check(ctx context.Context, scope, key string) (Decision, error) {
	lim := l.limitsFor(scope)
	now := l.now().UnixMilli()

	counter, err := l.store.GetRateCounter(ctx, scope, key)
	if err != nil {
		return Decision{}, fmt.Errorf("rate limit %s: %w", scope, err)
	}

	if counter == nil {
		counter = &models.RateCounter{Count: 1, WindowStart: now, LastAttempt: now, TotalAttempts: 1}
		if err := l.store.PutRateCounter(ctx, scope, key, counter); err != nil {
			return Decision{}, fmt.Errorf("rate limit %s: %w", scope, err)
		}
		return Decision{Allowed: true, Scope: scope, Remaining: lim.hourly - 1}, nil
	}

	// An active block overrides everything else.
	if counter.BlockedUntil != nil {
		if *counter.BlockedUntil > now {
			retry := time.Duration(*counter.BlockedUntil-now) * time.Millisecond
			return Decision{Scope: scope, RetryAfter: retry}, nil
		}
		// Expired block: the first attempt after it starts a fresh window.
		counter.WindowStart = 0
	}

	// Window expired: reset rather than slide. Precise history is lost, that
	// is the accepted tradeoff.
	if now-counter.WindowStart > rateWindow.Milliseconds() {
		counter.Count = 1
		counter.WindowStart = now
		counter.LastAttempt = now
		counter.TotalAttempts++
		counter.BlockedUntil = nil
		if err := l.store.PutRateCounter(ctx, scope, key, counter); err != nil {
			return Decision{}, fmt.Errorf("rate limit %s: %w", scope, err)
		}
		return Decision{Allowed: true, Scope: scope, Remaining: lim.hourly - 1}, nil
	}

	counter.Count++
	counter.LastAttempt = now
	counter.TotalAttempts++

	if counter.Count > lim.hourly {
		if lim.block <= 0 {
			// Global scope: soft ceiling, fixed retry hint, nothing persisted
			// beyond the attempt itself.
			if err := l.store.PutRateCounter(ctx, scope, key, counter); err != nil {
				return Decision{}, fmt.Errorf("rate limit %s: %w", scope, err)
			}
			return Decision{Scope: scope, RetryAfter: lim.retry}, nil
		}

		block := lim.block
		if counter.Count > lim.daily {
			block *= dailyBreachMultiplier
		}
		until := now + block.Milliseconds()
		counter.BlockedUntil = &until
		if err := l.store.PutRateCounter(ctx, scope, key, counter); err != nil {
			return Decision{}, fmt.Errorf("rate limit %s: %w", scope, err)
		}
		if l.log != nil {
			l.log.Info("rate limit block applied",
				zap.String("scope", scope),
				zap.Int("count", counter.Count),
				zap.Duration("block", block),
			)
		}
		return Decision{Scope: scope, RetryAfter: block}, nil
	}

	if err := l.store.PutRateCounter(ctx, scope, key, counter); err != nil {
		return Decision{}, fmt.Errorf("rate limit %s: %w", scope, err)
	}
	return Decision{Allowed: true, Scope: scope, Remaining: lim.hourly - counter.Count}, nil
}

// Block force-sets a counter to an exhausted state with an explicit expiry.
// Operator override, independent of the normal flow.
func (l *Limiter) Block(ctx context.Context, scope, key string, duration time.Duration) error {
	if scope != ScopeIP && scope != ScopeEmail && scope != ScopeGlobal {
		return fmt.Errorf("unknown rate limit scope %q", scope)
	}
	if duration <= 0 {
		return fmt.Errorf("block duration must be positive")
	}

	now := l.now().UnixMilli()
	counter, err := l.store.GetRateCounter(ctx, scope, key)
	if err != nil {
		return fmt.Errorf("manual block %s: %w", scope, err)
	}
	if counter == nil {
		counter = &models.RateCounter{WindowStart: now}
	}

	until := now + duration.Milliseconds()
	counter.Count = l.limitsFor(scope).hourly
	counter.LastAttempt = now
	counter.BlockedUntil = &until
	if err := l.store.PutRateCounter(ctx, scope, key, counter); err != nil {
		return fmt.Errorf("manual block %s: %w", scope, err)
	}
	if l.log != nil {
		l.log.Warn("manual rate limit block",
			zap.String("scope", scope),
			zap.Duration("duration", duration),
		)
	}
	return nil
}

package subscription

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/lumenfest/core/internal/config"
	"github.com/lumenfest/core/internal/testutil"
	"go.uber.org/zap"
)

func newTestLimiter(st *testutil.MemStore) (*Limiter, *time.Time) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	l := NewLimiter(st, config.DefaultRateLimitRules(), zap.NewNop())
	l.now = func() time.Time { return now }
	return l, &now
}

func TestLimiterHourlyBreachBlocksAndExpires(t *testing.T) {
	st := testutil.NewMemStore()
	l, now := newTestLimiter(st)
	ctx := context.Background()

	// Per-IP hourly limit is 3: the first three attempts pass.
	for i := 0; i < 3; i++ {
		d, err := l.Check(ctx, ScopeIP, "ip-hash")
		if err != nil {
			t.Fatalf("attempt %d: %v", i+1, err)
		}
		if !d.Allowed {
			t.Fatalf("attempt %d rejected, want allowed", i+1)
		}
		if want := 3 - (i + 1); d.Remaining != want {
			t.Errorf("attempt %d remaining = %d, want %d", i+1, d.Remaining, want)
		}
	}

	// The fourth attempt breaches the limit and persists a one hour block.
	d, err := l.Check(ctx, ScopeIP, "ip-hash")
	if err != nil {
		t.Fatalf("breaching attempt: %v", err)
	}
	if d.Allowed {
		t.Fatal("breaching attempt allowed, want rejected")
	}
	if d.RetryAfter != time.Hour {
		t.Errorf("RetryAfter = %v, want 1h", d.RetryAfter)
	}
	c, ok := st.Counter(ScopeIP, "ip-hash")
	if !ok || c.BlockedUntil == nil {
		t.Fatal("expected a persisted blockedUntil")
	}
	if want := now.Add(time.Hour).UnixMilli(); *c.BlockedUntil != want {
		t.Errorf("blockedUntil = %d, want %d", *c.BlockedUntil, want)
	}

	// While the block is active every attempt is rejected with the remaining
	// time, regardless of the counter.
	*now = now.Add(30 * time.Minute)
	d, err = l.Check(ctx, ScopeIP, "ip-hash")
	if err != nil {
		t.Fatalf("blocked attempt: %v", err)
	}
	if d.Allowed {
		t.Fatal("attempt during block allowed, want rejected")
	}
	if d.RetryAfter != 30*time.Minute {
		t.Errorf("RetryAfter = %v, want 30m", d.RetryAfter)
	}

	// Strictly after expiry the window resets to count 1.
	*now = now.Add(31 * time.Minute)
	d, err = l.Check(ctx, ScopeIP, "ip-hash")
	if err != nil {
		t.Fatalf("post-block attempt: %v", err)
	}
	if !d.Allowed {
		t.Fatal("attempt after block expiry rejected, want allowed")
	}
	c, _ = st.Counter(ScopeIP, "ip-hash")
	if c.Count != 1 {
		t.Errorf("count after reset = %d, want 1", c.Count)
	}
	if c.BlockedUntil != nil {
		t.Error("blockedUntil should be cleared on reset")
	}
}

func TestLimiterWindowReset(t *testing.T) {
	st := testutil.NewMemStore()
	l, now := newTestLimiter(st)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := l.Check(ctx, ScopeIP, "ip-hash"); err != nil {
			t.Fatal(err)
		}
	}

	// Move past the window: the counter restarts instead of sliding.
	*now = now.Add(61 * time.Minute)
	d, err := l.Check(ctx, ScopeIP, "ip-hash")
	if err != nil {
		t.Fatal(err)
	}
	if !d.Allowed || d.Remaining != 2 {
		t.Errorf("after window reset: allowed=%v remaining=%d, want allowed with 2", d.Allowed, d.Remaining)
	}
	c, _ := st.Counter(ScopeIP, "ip-hash")
	if c.Count != 1 {
		t.Errorf("count = %d, want 1", c.Count)
	}
	if c.TotalAttempts != 4 {
		t.Errorf("totalAttempts = %d, want 4 (lifetime counter never resets)", c.TotalAttempts)
	}
}

func TestLimiterEmailScopeBlocksLonger(t *testing.T) {
	st := testutil.NewMemStore()
	l, _ := newTestLimiter(st)
	ctx := context.Background()

	// Per-email hourly limit is 2, block is 2 hours.
	for i := 0; i < 2; i++ {
		if _, err := l.Check(ctx, ScopeEmail, "email-hash"); err != nil {
			t.Fatal(err)
		}
	}
	d, err := l.Check(ctx, ScopeEmail, "email-hash")
	if err != nil {
		t.Fatal(err)
	}
	if d.Allowed {
		t.Fatal("third email attempt allowed, want rejected")
	}
	if d.RetryAfter != 2*time.Hour {
		t.Errorf("RetryAfter = %v, want 2h", d.RetryAfter)
	}
}

func TestLimiterGlobalSoftLimit(t *testing.T) {
	st := testutil.NewMemStore()
	rules := config.DefaultRateLimitRules()
	rules.GlobalHourly = 2
	l := NewLimiter(st, rules, zap.NewNop())
	fixed := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return fixed }
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := l.Check(ctx, ScopeGlobal, globalKey); err != nil {
			t.Fatal(err)
		}
	}
	d, err := l.Check(ctx, ScopeGlobal, globalKey)
	if err != nil {
		t.Fatal(err)
	}
	if d.Allowed {
		t.Fatal("global breach allowed, want rejected")
	}
	if d.RetryAfter != 5*time.Minute {
		t.Errorf("RetryAfter = %v, want the fixed 5m hint", d.RetryAfter)
	}
	c, _ := st.Counter(ScopeGlobal, globalKey)
	if c.BlockedUntil != nil {
		t.Error("global scope must not persist a block")
	}
}

func TestLimiterDailyCeilingTriplesBlock(t *testing.T) {
	st := testutil.NewMemStore()
	rules := config.DefaultRateLimitRules()
	rules.IPHourly = 1
	rules.IPDaily = 2
	l := NewLimiter(st, rules, zap.NewNop())
	fixed := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return fixed }
	ctx := context.Background()

	if _, err := l.Check(ctx, ScopeIP, "k"); err != nil { // count 1, allowed
		t.Fatal(err)
	}
	d, _ := l.Check(ctx, ScopeIP, "k") // count 2 > hourly, <= daily: 1x block
	if d.Allowed || d.RetryAfter != time.Hour {
		t.Fatalf("second attempt: allowed=%v retry=%v, want 1h block", d.Allowed, d.RetryAfter)
	}

	// Clear the block but keep the window so the next breach also exceeds the
	// daily ceiling.
	c, _ := st.Counter(ScopeIP, "k")
	c.BlockedUntil = nil
	if err := st.PutRateCounter(ctx, ScopeIP, "k", &c); err != nil {
		t.Fatal(err)
	}

	d, _ = l.Check(ctx, ScopeIP, "k") // count 3 > daily: 3x block
	if d.Allowed || d.RetryAfter != 3*time.Hour {
		t.Fatalf("daily breach: allowed=%v retry=%v, want 3h block", d.Allowed, d.RetryAfter)
	}
}

func TestLimiterCheckAll(t *testing.T) {
	ctx := context.Background()

	t.Run("returns minimum remaining when all pass", func(t *testing.T) {
		st := testutil.NewMemStore()
		l, _ := newTestLimiter(st)

		// One prior email attempt leaves the email scope tightest.
		if _, err := l.Check(ctx, ScopeEmail, "e"); err != nil {
			t.Fatal(err)
		}
		d, err := l.CheckAll(ctx, "i", "e")
		if err != nil {
			t.Fatal(err)
		}
		if !d.Allowed {
			t.Fatal("want allowed")
		}
		// email: 2/hour with 2 attempts used leaves 0; ip leaves 2; global plenty.
		if d.Remaining != 0 || d.Scope != ScopeEmail {
			t.Errorf("remaining=%d scope=%s, want 0 in email scope", d.Remaining, d.Scope)
		}
	})

	t.Run("IP block takes priority over email block", func(t *testing.T) {
		st := testutil.NewMemStore()
		l, _ := newTestLimiter(st)
		if err := l.Block(ctx, ScopeIP, "i", time.Hour); err != nil {
			t.Fatal(err)
		}
		if err := l.Block(ctx, ScopeEmail, "e", time.Hour); err != nil {
			t.Fatal(err)
		}
		d, err := l.CheckAll(ctx, "i", "e")
		if err != nil {
			t.Fatal(err)
		}
		if d.Allowed || d.Scope != ScopeIP {
			t.Errorf("allowed=%v scope=%s, want IP-scope rejection", d.Allowed, d.Scope)
		}
	})

	t.Run("store failure surfaces as error", func(t *testing.T) {
		st := testutil.NewMemStore()
		st.FailOn["GetRateCounter"] = errors.New("store down")
		l, _ := newTestLimiter(st)
		if _, err := l.CheckAll(ctx, "i", "e"); err == nil {
			t.Fatal("want error when the store is unavailable")
		}
	})
}

func TestLimiterManualBlock(t *testing.T) {
	st := testutil.NewMemStore()
	l, now := newTestLimiter(st)
	ctx := context.Background()

	if err := l.Block(ctx, ScopeIP, "bad-actor", 45*time.Minute); err != nil {
		t.Fatal(err)
	}
	d, err := l.Check(ctx, ScopeIP, "bad-actor")
	if err != nil {
		t.Fatal(err)
	}
	if d.Allowed {
		t.Fatal("manually blocked key allowed, want rejected")
	}
	if d.RetryAfter != 45*time.Minute {
		t.Errorf("RetryAfter = %v, want 45m", d.RetryAfter)
	}

	*now = now.Add(46 * time.Minute)
	if d, _ = l.Check(ctx, ScopeIP, "bad-actor"); !d.Allowed {
		t.Error("attempt after manual block expiry should be allowed")
	}

	if err := l.Block(ctx, "bogus", "x", time.Minute); err == nil {
		t.Error("unknown scope must be rejected")
	}
	if err := l.Block(ctx, ScopeIP, "x", 0); err == nil {
		t.Error("non-positive duration must be rejected")
	}
}

package tasks

import (
	"context"
	"testing"
	"time"

	"github.com/lumenfest/core/internal/models"
	"github.com/lumenfest/core/internal/store"
	"github.com/lumenfest/core/internal/testutil"
	"go.uber.org/zap"
)

func TestDailySummary(t *testing.T) {
	st := testutil.NewMemStore()
	yesterday := time.Now().UTC().AddDate(0, 0, -1).Format("2006-01-02")
	if err := st.BumpDailyMetrics(context.Background(), yesterday, store.MetricsDelta{NewSubscriptions: 3}); err != nil {
		t.Fatal(err)
	}

	if err := dailySummary(st, nil, zap.NewNop())(context.Background()); err != nil {
		t.Fatalf("summary with data: %v", err)
	}

	// A day with no metrics document is not an error.
	if err := dailySummary(testutil.NewMemStore(), nil, zap.NewNop())(context.Background()); err != nil {
		t.Fatalf("summary without data: %v", err)
	}
}

func TestCounterPurge(t *testing.T) {
	st := testutil.NewMemStore()
	ctx := context.Background()

	stale := models.RateCounter{Count: 1, LastAttempt: time.Now().Add(-30 * 24 * time.Hour).UnixMilli()}
	fresh := models.RateCounter{Count: 1, LastAttempt: time.Now().UnixMilli()}
	until := time.Now().Add(time.Hour).UnixMilli()
	blocked := models.RateCounter{
		Count:        9,
		LastAttempt:  time.Now().Add(-30 * 24 * time.Hour).UnixMilli(),
		BlockedUntil: &until,
	}
	if err := st.PutRateCounter(ctx, "byIP", "stale", &stale); err != nil {
		t.Fatal(err)
	}
	if err := st.PutRateCounter(ctx, "byIP", "fresh", &fresh); err != nil {
		t.Fatal(err)
	}
	if err := st.PutRateCounter(ctx, "byIP", "blocked", &blocked); err != nil {
		t.Fatal(err)
	}

	if err := counterPurge(st, zap.NewNop())(ctx); err != nil {
		t.Fatal(err)
	}

	if _, ok := st.Counter("byIP", "stale"); ok {
		t.Error("stale counter should have been purged")
	}
	if _, ok := st.Counter("byIP", "fresh"); !ok {
		t.Error("fresh counter must survive the purge")
	}
	if _, ok := st.Counter("byIP", "blocked"); !ok {
		t.Error("an active block must never be purged, however old")
	}
}

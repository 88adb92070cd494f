// Package store is the persistence boundary: a hosted document database used
// as a key-value store with get/set/update semantics and server timestamps.
package store

import (
	"context"

	"github.com/lumenfest/core/internal/models"
)

// MetricsDelta is one best-effort increment of a daily metrics document.
// NetGrowth is derived (new - unsubscribed), not supplied.
type MetricsDelta struct {
	NewSubscriptions int
	Unsubscriptions  int
	RateLimited      int
	SpamAttempts     int
	IPHash           string // added to the distinct-IP set when non-empty
}

// Store is the set of document operations the subscription core needs.
// Lookups that find nothing return (nil, nil), not an error.
type Store interface {
	GetSubscription(ctx context.Context, emailHash string) (*models.SubscriptionRecord, error)
	PutSubscription(ctx context.Context, rec *models.SubscriptionRecord) error
	FindSubscriptionByToken(ctx context.Context, token string) (*models.SubscriptionRecord, error)
	ListSubscriptions(ctx context.Context, offset, limit int64) ([]models.SubscriptionRecord, int64, error)

	GetRateCounter(ctx context.Context, scope, key string) (*models.RateCounter, error)
	PutRateCounter(ctx context.Context, scope, key string, counter *models.RateCounter) error
	// PurgeRateCounters deletes counters idle since before cutoff (ms epoch)
	// and not currently blocking, returning how many were removed.
	PurgeRateCounters(ctx context.Context, cutoff int64) (int64, error)

	BumpDailyMetrics(ctx context.Context, date string, delta MetricsDelta) error
	GetDailyMetrics(ctx context.Context, date string) (*models.DailyMetrics, error)

	AppendAbuseEvent(ctx context.Context, event models.AbuseEvent) error
	ListAbuseEvents(ctx context.Context, limit int64) ([]models.AbuseEvent, error)

	Ping(ctx context.Context) error
}

// Package testutil provides an in-memory Store for unit tests.
package testutil

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/lumenfest/core/internal/models"
	"github.com/lumenfest/core/internal/store"
)

func nowMilli() int64 { return time.Now().UnixMilli() }

var _ store.Store = (*MemStore)(nil)

// MemStore implements store.Store with maps. Errors can be injected per
// operation name ("GetRateCounter", "PutSubscription", ...) via FailOn.
type MemStore struct {
	mu sync.Mutex

	Subscriptions map[string]models.SubscriptionRecord
	Counters      map[string]models.RateCounter
	Metrics       map[string]models.DailyMetrics
	MetricsIPs    map[string]map[string]struct{}
	AbuseEvents   []models.AbuseEvent

	// FailOn maps an operation name to the error it should return.
	FailOn map[string]error
}

func NewMemStore() *MemStore {
	return &MemStore{
		Subscriptions: make(map[string]models.SubscriptionRecord),
		Counters:      make(map[string]models.RateCounter),
		Metrics:       make(map[string]models.DailyMetrics),
		MetricsIPs:    make(map[string]map[string]struct{}),
		FailOn:        make(map[string]error),
	}
}

func (s *MemStore) fail(op string) error {
	if err, ok := s.FailOn[op]; ok {
		return err
	}
	return nil
}

func (s *MemStore) GetSubscription(_ context.Context, emailHash string) (*models.SubscriptionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("GetSubscription"); err != nil {
		return nil, err
	}
	rec, ok := s.Subscriptions[emailHash]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (s *MemStore) PutSubscription(_ context.Context, rec *models.SubscriptionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("PutSubscription"); err != nil {
		return err
	}
	s.Subscriptions[rec.EmailHash] = *rec
	return nil
}

func (s *MemStore) FindSubscriptionByToken(_ context.Context, token string) (*models.SubscriptionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("FindSubscriptionByToken"); err != nil {
		return nil, err
	}
	for _, rec := range s.Subscriptions {
		if rec.UnsubscribeToken == token {
			r := rec
			return &r, nil
		}
	}
	return nil, nil
}

func (s *MemStore) ListSubscriptions(_ context.Context, offset, limit int64) ([]models.SubscriptionRecord, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("ListSubscriptions"); err != nil {
		return nil, 0, err
	}
	all := make([]models.SubscriptionRecord, 0, len(s.Subscriptions))
	for _, rec := range s.Subscriptions {
		all = append(all, rec)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	total := int64(len(all))
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return all[offset:end], total, nil
}

func (s *MemStore) GetRateCounter(_ context.Context, scope, key string) (*models.RateCounter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("GetRateCounter"); err != nil {
		return nil, err
	}
	c, ok := s.Counters[scope+":"+key]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (s *MemStore) PutRateCounter(_ context.Context, scope, key string, counter *models.RateCounter) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("PutRateCounter"); err != nil {
		return err
	}
	s.Counters[scope+":"+key] = *counter
	return nil
}

func (s *MemStore) PurgeRateCounters(_ context.Context, cutoff int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("PurgeRateCounters"); err != nil {
		return 0, err
	}
	now := nowMilli()
	var removed int64
	for key, c := range s.Counters {
		if c.LastAttempt < cutoff && (c.BlockedUntil == nil || *c.BlockedUntil < now) {
			delete(s.Counters, key)
			removed++
		}
	}
	return removed, nil
}

func (s *MemStore) BumpDailyMetrics(_ context.Context, date string, delta store.MetricsDelta) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("BumpDailyMetrics"); err != nil {
		return err
	}
	m := s.Metrics[date]
	m.Date = date
	m.NewSubscriptions += delta.NewSubscriptions
	m.Unsubscriptions += delta.Unsubscriptions
	m.NetGrowth += delta.NewSubscriptions - delta.Unsubscriptions
	m.RateLimited += delta.RateLimited
	m.SpamAttempts += delta.SpamAttempts
	if delta.IPHash != "" {
		ips := s.MetricsIPs[date]
		if ips == nil {
			ips = make(map[string]struct{})
			s.MetricsIPs[date] = ips
		}
		ips[delta.IPHash] = struct{}{}
	}
	s.Metrics[date] = m
	return nil
}

func (s *MemStore) GetDailyMetrics(_ context.Context, date string) (*models.DailyMetrics, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("GetDailyMetrics"); err != nil {
		return nil, err
	}
	m, ok := s.Metrics[date]
	if !ok {
		return nil, nil
	}
	m.UniqueIPs = len(s.MetricsIPs[date])
	return &m, nil
}

func (s *MemStore) AppendAbuseEvent(_ context.Context, event models.AbuseEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("AppendAbuseEvent"); err != nil {
		return err
	}
	s.AbuseEvents = append(s.AbuseEvents, event)
	return nil
}

func (s *MemStore) ListAbuseEvents(_ context.Context, limit int64) ([]models.AbuseEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("ListAbuseEvents"); err != nil {
		return nil, err
	}
	events := make([]models.AbuseEvent, len(s.AbuseEvents))
	copy(events, s.AbuseEvents)
	for i, j := 0, len(events)-1; i < j; i, j = i+1, j-1 {
		events[i], events[j] = events[j], events[i]
	}
	if int64(len(events)) > limit {
		events = events[:limit]
	}
	return events, nil
}

func (s *MemStore) Ping(context.Context) error {
	return s.fail("Ping")
}

// Counter returns a copy of the stored counter for assertions.
func (s *MemStore) Counter(scope, key string) (models.RateCounter, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.Counters[scope+":"+key]
	return c, ok
}

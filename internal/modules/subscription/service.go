package subscription

import (
	"context"
	"fmt"
	"time"

	"github.com/lumenfest/core/internal/models"
	"github.com/lumenfest/core/internal/pkg/ident"
	"github.com/lumenfest/core/internal/store"
	"go.uber.org/zap"
)

// Service owns the subscriber state machine. It is the only component that
// creates or mutates subscription records.
type Service struct {
	store  store.Store
	hasher *ident.Hasher
	log    *zap.Logger
	now    func() time.Time
}

// NewService wires the subscription manager.
func NewService(st store.Store, hasher *ident.Hasher, log *zap.Logger) *Service {
	return &Service{store: st, hasher: hasher, log: log, now: time.Now}
}

// SubscribeOutcome reports what the state machine did.
type SubscribeOutcome struct {
	AlreadySubscribed bool
	Record            *models.SubscriptionRecord
}

// Subscribe transitions absent→subscribed or unsubscribed→subscribed. A
// subscribe call on an already-subscribed address is a no-op that changes no
// timestamps.
func (s *Service) Subscribe(ctx context.Context, email, source string, meta models.SubscriberMetadata) (*SubscribeOutcome, error) {
	norm := ident.NormalizeEmail(email)
	hash := s.hasher.HashEmail(norm)
	now := s.now().UTC()

	rec, err := s.store.GetSubscription(ctx, hash)
	if err != nil {
		return nil, fmt.Errorf("subscribe lookup: %w", err)
	}

	switch {
	case rec == nil:
		rec = &models.SubscriptionRecord{
			EmailHash:         hash,
			Email:             email,
			Status:            models.StatusSubscribed,
			SubscribedAt:      now,
			LastSubscribedAt:  now,
			UnsubscribeToken:  ident.NewUnsubscribeToken(),
			Source:            source,
			SubscriptionCount: 1,
			Metadata:          meta,
			CreatedAt:         now,
			UpdatedAt:         now,
		}
		if err := s.store.PutSubscription(ctx, rec); err != nil {
			return nil, fmt.Errorf("subscribe create: %w", err)
		}
		s.log.Info("subscriber created", zap.String("emailHash", hash), zap.String("source", source))
		return &SubscribeOutcome{Record: rec}, nil

	case rec.Status == models.StatusSubscribed:
		return &SubscribeOutcome{AlreadySubscribed: true, Record: rec}, nil

	default: // unsubscribed → subscribed; the token survives re-subscription
		rec.Status = models.StatusSubscribed
		rec.LastSubscribedAt = now
		rec.UnsubscribedAt = nil
		rec.SubscriptionCount++
		rec.Source = source
		rec.Metadata = meta
		rec.UpdatedAt = now
		if err := s.store.PutSubscription(ctx, rec); err != nil {
			return nil, fmt.Errorf("re-subscribe update: %w", err)
		}
		s.log.Info("subscriber re-subscribed",
			zap.String("emailHash", hash),
			zap.Int("subscriptionCount", rec.SubscriptionCount),
		)
		return &SubscribeOutcome{Record: rec}, nil
	}
}

// UnsubscribeOutcome reports what the state machine did. NotFound and
// AlreadyUnsubscribed are distinct cases.
type UnsubscribeOutcome struct {
	NotFound            bool
	AlreadyUnsubscribed bool
	Record              *models.SubscriptionRecord
}

// Unsubscribe flips the status of the record holding the token. The token is
// the sole credential; there is no lookup by email.
func (s *Service) Unsubscribe(ctx context.Context, token string) (*UnsubscribeOutcome, error) {
	rec, err := s.store.FindSubscriptionByToken(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("unsubscribe lookup: %w", err)
	}
	if rec == nil {
		return &UnsubscribeOutcome{NotFound: true}, nil
	}
	if rec.Status == models.StatusUnsubscribed {
		return &UnsubscribeOutcome{AlreadyUnsubscribed: true, Record: rec}, nil
	}

	now := s.now().UTC()
	rec.Status = models.StatusUnsubscribed
	rec.UnsubscribedAt = &now
	rec.UpdatedAt = now
	if err := s.store.PutSubscription(ctx, rec); err != nil {
		return nil, fmt.Errorf("unsubscribe update: %w", err)
	}
	s.log.Info("subscriber unsubscribed", zap.String("emailHash", rec.EmailHash))
	return &UnsubscribeOutcome{Record: rec}, nil
}

// RecordMetrics bumps the daily metrics document for today (UTC). Best-effort:
// failures are logged and swallowed, the caller's response never depends on it.
func (s *Service) RecordMetrics(ctx context.Context, delta store.MetricsDelta) {
	date := s.now().UTC().Format("2006-01-02")
	if err := s.store.BumpDailyMetrics(ctx, date, delta); err != nil {
		s.log.Debug("metrics update failed", zap.String("date", date), zap.Error(err))
	}
}

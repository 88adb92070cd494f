package subscription

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/lumenfest/core/internal/models"
	"github.com/lumenfest/core/internal/modules/gateway"
	"github.com/lumenfest/core/internal/store"
	"go.uber.org/zap"
)

// AbuseSink appends events to the abuse log, best-effort. Write failures are
// reported on the sink's own error path and never reach the request pipeline.
type AbuseSink struct {
	store store.Store
	hub   *gateway.Hub // optional, feeds the admin live view
	log   *zap.Logger

	// onError receives sink failures. Defaults to a debug log line; tests
	// inject their own to assert on failures independently of the pipeline.
	onError func(error)
}

// NewAbuseSink creates a sink writing to the given store.
func NewAbuseSink(st store.Store, hub *gateway.Hub, log *zap.Logger) *AbuseSink {
	s := &AbuseSink{store: st, hub: hub, log: log}
	s.onError = func(err error) {
		if s.log != nil {
			s.log.Debug("abuse log write failed", zap.Error(err))
		}
	}
	return s
}

// Record appends one event, filling in id and timestamp.
func (s *AbuseSink) Record(ctx context.Context, eventType, severity string, details models.AbuseDetails) {
	event := models.AbuseEvent{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		Type:      eventType,
		Severity:  severity,
		Details:   details,
	}
	if err := s.store.AppendAbuseEvent(ctx, event); err != nil {
		s.onError(err)
		return
	}
	if s.hub != nil {
		s.hub.BroadcastAdmin("abuse-event", map[string]string{
			"type":     eventType,
			"severity": severity,
			"reason":   details.Reason,
		})
	}
}

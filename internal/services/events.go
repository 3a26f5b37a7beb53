package services

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/labkha-cpu/ai-Apply/internal/models"
	mongorepo "github.com/labkha-cpu/ai-Apply/internal/repositories/mongo"
)

// StatusChannel is the pub/sub channel carrying a candidate's status events.
func StatusChannel(candidateID string) string {
	return "candidate:" + candidateID + ":status"
}

type EventBus interface {
	Publish(ctx context.Context, e *models.StatusEvent) error
}

type RedisEventBus struct {
	rdb redis.Cmdable
}

func NewRedisEventBus(rdb redis.Cmdable) *RedisEventBus {
	return &RedisEventBus{rdb: rdb}
}

func (b *RedisEventBus) Publish(ctx context.Context, e *models.StatusEvent) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return b.rdb.Publish(ctx, StatusChannel(e.CandidateID), payload).Err()
}

// EventSink records status events. Recording is best effort: a poll loop
// never stops because an event could not be delivered.
type EventSink interface {
	Emit(ctx context.Context, e *models.StatusEvent)
	History(ctx context.Context, candidateID string, limit int64) ([]models.StatusEvent, error)
}

type eventSink struct {
	bus    EventBus                  // optional
	events mongorepo.EventRepository // optional
	ttl    time.Duration
	log    *logrus.Logger
	now    func() time.Time
}

func NewEventSink(bus EventBus, events mongorepo.EventRepository, ttl time.Duration, log *logrus.Logger) EventSink {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &eventSink{bus: bus, events: events, ttl: ttl, log: log, now: time.Now}
}

func (s *eventSink) Emit(ctx context.Context, e *models.StatusEvent) {
	if e.EventID == "" {
		e.EventID = uuid.NewString()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = s.now().UTC()
	}
	if e.ExpiresAt.IsZero() {
		e.ExpiresAt = e.Timestamp.Add(s.ttl)
	}

	log := s.log.WithFields(logrus.Fields{
		"candidate_id": e.CandidateID,
		"stage":        e.Stage,
		"status":       e.Status,
		"event_id":     e.EventID,
	})
	if s.bus != nil {
		if err := s.bus.Publish(ctx, e); err != nil {
			log.WithError(err).Warn("status event publish failed")
		}
	}
	if s.events != nil {
		if err := s.events.Insert(ctx, e); err != nil {
			log.WithError(err).Warn("status event insert failed")
		}
	}
}

func (s *eventSink) History(ctx context.Context, candidateID string, limit int64) ([]models.StatusEvent, error) {
	if s.events == nil {
		return nil, nil
	}
	return s.events.ListByCandidate(ctx, candidateID, limit)
}

package mongo

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/labkha-cpu/ai-Apply/internal/models"
)

type EventRepository interface {
	Insert(ctx context.Context, e *models.StatusEvent) error
	// ListByCandidate returns the newest events first.
	ListByCandidate(ctx context.Context, candidateID string, limit int64) ([]models.StatusEvent, error)
}

type eventRepo struct {
	col *mongo.Collection
	ttl time.Duration
}

// NewEventRepo stores events in poll_events; each expires ttl after its
// timestamp through the TTL index on expires_at.
func NewEventRepo(db *mongo.Database, ttl time.Duration) EventRepository {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &eventRepo{col: db.Collection("poll_events"), ttl: ttl}
}

func (r *eventRepo) Insert(ctx context.Context, e *models.StatusEvent) error {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	if e.ExpiresAt.IsZero() {
		e.ExpiresAt = e.Timestamp.Add(r.ttl)
	}
	_, err := r.col.InsertOne(ctx, e)
	if mongo.IsDuplicateKeyError(err) {
		// same event_id already stored
		return nil
	}
	return err
}

func (r *eventRepo) ListByCandidate(ctx context.Context, candidateID string, limit int64) ([]models.StatusEvent, error) {
	if limit <= 0 {
		limit = 50
	}

	cur, err := r.col.Find(ctx,
		bson.M{"candidate_id": candidateID},
		options.Find().
			SetSort(bson.D{{Key: "timestamp", Value: -1}}).
			SetLimit(limit),
	)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []models.StatusEvent
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

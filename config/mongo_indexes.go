package config

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const PollEventsCollection = "poll_events"

func EnsureMongoIndexes(dbName string) error {
	db, err := MongoDatabase(dbName)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err = db.Collection(PollEventsCollection).Indexes().CreateMany(ctx, []mongo.IndexModel{
		// expire at ExpiresAt (must be a Date)
		{
			Keys: bson.D{{Key: "expires_at", Value: 1}},
			Options: options.Index().
				SetName("ttl_expires_at").
				SetExpireAfterSeconds(0),
		},
		{
			Keys: bson.D{{Key: "event_id", Value: 1}},
			Options: options.Index().
				SetName("uniq_event_id").
				SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "candidate_id", Value: 1}, {Key: "timestamp", Value: -1}},
			Options: options.Index().SetName("by_candidate_ts"),
		},
	})
	return err
}

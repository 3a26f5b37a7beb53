package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// StatusEvent is one poll observation, fanned out to live subscribers and
// kept in Mongo until ExpiresAt.
type StatusEvent struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"-"`
	EventID     string             `bson:"event_id" json:"event_id"` // uuid v4
	PollID      string             `bson:"poll_id" json:"poll_id"`
	CandidateID string             `bson:"candidate_id" json:"candidate_id"`

	Stage    int    `bson:"stage" json:"stage"`   // 1|2
	Status   string `bson:"status" json:"status"` // NOT_STARTED|QUEUED|PROCESSING|COMPLETED|FAILED
	Message  string `bson:"message,omitempty" json:"message,omitempty"`
	Attempt  int    `bson:"attempt" json:"attempt"`
	Terminal bool   `bson:"terminal" json:"terminal"`
	TimedOut bool   `bson:"timed_out,omitempty" json:"timed_out,omitempty"`

	Timestamp time.Time `bson:"timestamp" json:"timestamp"`
	ExpiresAt time.Time `bson:"expires_at" json:"-"` // for TTL index
}

package models

import "time"

// Include controls the payload size of a profile fetch.
type Include string

const (
	IncludePreview Include = "preview"
	IncludeStage1  Include = "step1"
	IncludeStage2  Include = "step2"
	IncludeAll     Include = "all"
)

func (i Include) Valid() bool {
	switch i {
	case IncludePreview, IncludeStage1, IncludeStage2, IncludeAll:
		return true
	}
	return false
}

// ArtifactLink is a short-lived download URL for a stage artifact.
type ArtifactLink struct {
	Type      string    `json:"type"`
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (l ArtifactLink) Expired(now time.Time) bool {
	return !l.ExpiresAt.IsZero() && !now.Before(l.ExpiresAt)
}

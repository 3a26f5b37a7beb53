package pipeline

import (
	"fmt"
	"strings"

	"github.com/labkha-cpu/ai-Apply/internal/models"
)

type StageStatus string

const (
	StatusNotStarted StageStatus = "NOT_STARTED"
	StatusQueued     StageStatus = "QUEUED"
	StatusProcessing StageStatus = "PROCESSING"
	StatusCompleted  StageStatus = "COMPLETED"
	StatusFailed     StageStatus = "FAILED"
)

// IsTerminal reports whether polling can stop on this status.
func (s StageStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

func (s StageStatus) InFlight() bool {
	return s == StatusQueued || s == StatusProcessing
}

type Stage int

const (
	Stage1 Stage = 1
	Stage2 Stage = 2
)

func (s Stage) Valid() bool { return s == Stage1 || s == Stage2 }

func (s Stage) String() string { return fmt.Sprintf("stage%d", int(s)) }

// ResolveStatus derives the canonical status of one stage. Signals come from
// writers that are not transactional, so they are read in a fixed priority:
//  1. any alias saying COMPLETED, DONE or SUCCESS
//  2. an artifact or a reference key (overrides a stale FAILED)
//  3. a non-empty error
//  4. the primary alias when it is in flight
//  5. the primary alias when it is FAILED or ERROR
//
// Anything else is NOT_STARTED.
func ResolveStatus(s models.StageState) StageStatus {
	for _, a := range s.Statuses {
		switch a {
		case "COMPLETED", "DONE", "SUCCESS":
			return StatusCompleted
		}
	}
	if s.ArtifactPresent || strings.TrimSpace(s.ArtifactKey) != "" {
		return StatusCompleted
	}
	if !s.Error.Empty() {
		return StatusFailed
	}
	switch s.PrimaryStatus() {
	case "QUEUED":
		return StatusQueued
	case "PROCESSING", "RUNNING", "IN_PROGRESS":
		return StatusProcessing
	case "FAILED", "ERROR":
		return StatusFailed
	}
	return StatusNotStarted
}

// State returns the stage state of p, zero for a nil profile or unknown stage.
func State(p *models.CandidateProfile, stage Stage) models.StageState {
	if p == nil {
		return models.StageState{}
	}
	switch stage {
	case Stage1:
		return p.Stage1
	case Stage2:
		return p.Stage2
	}
	return models.StageState{}
}

func Resolve(p *models.CandidateProfile, stage Stage) StageStatus {
	return ResolveStatus(State(p, stage))
}

// FailureMessage is the text to show for a FAILED stage, never empty when the
// stage resolves to FAILED. It returns "" for any other status.
func FailureMessage(p *models.CandidateProfile, stage Stage) string {
	st := State(p, stage)
	if ResolveStatus(st) != StatusFailed {
		return ""
	}
	if msg := strings.TrimSpace(st.Error.Message()); msg != "" {
		return msg
	}
	return fmt.Sprintf("stage %d failed without an error message", int(stage))
}

package models

import (
	"time"

	"github.com/lib/pq"
	"gorm.io/datatypes"
)

// AuditReport is the stored audit of a candidate's stage-1 artifact.
// Positives and Improvements hold metric keys; Metrics holds the full list.
type AuditReport struct {
	ID           string         `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	CandidateID  string         `gorm:"column:candidate_id;type:text;uniqueIndex" json:"candidate_id"`
	GlobalScore  int            `gorm:"column:global_score;type:integer" json:"global_score"`
	Completeness int            `gorm:"column:completeness;type:integer" json:"completeness"`
	Breakdown    datatypes.JSON `gorm:"column:breakdown;type:jsonb" json:"breakdown"`
	Metrics      datatypes.JSON `gorm:"column:metrics;type:jsonb" json:"metrics"`
	Positives    pq.StringArray `gorm:"column:positives;type:text[]" json:"positives"`
	Improvements pq.StringArray `gorm:"column:improvements;type:text[]" json:"improvements"`
	Tips         pq.StringArray `gorm:"column:tips;type:text[]" json:"tips"`
	ComputedAt   time.Time      `gorm:"column:computed_at;type:timestamptz" json:"computed_at"`
}

func (AuditReport) TableName() string { return "audit_reports" }

type StageDiffReport struct {
	ID          string         `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	CandidateID string         `gorm:"column:candidate_id;type:text;uniqueIndex" json:"candidate_id"`
	Rows        datatypes.JSON `gorm:"column:rows;type:jsonb" json:"rows"`
	AddedSkills pq.StringArray `gorm:"column:added_skills;type:text[]" json:"added_skills"`
	ATSDelta    *int           `gorm:"column:ats_delta;type:integer" json:"ats_delta,omitempty"`
	ComputedAt  time.Time      `gorm:"column:computed_at;type:timestamptz" json:"computed_at"`
}

func (StageDiffReport) TableName() string { return "stage_diff_reports" }

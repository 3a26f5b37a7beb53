package postgres

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/labkha-cpu/ai-Apply/internal/models"
	"github.com/labkha-cpu/ai-Apply/internal/utils"
)

// ReportRepository keeps the latest audit and diff report per candidate.
type ReportRepository interface {
	UpsertAudit(ctx context.Context, r *models.AuditReport) error
	GetAudit(ctx context.Context, candidateID string) (*models.AuditReport, error)
	UpsertDiff(ctx context.Context, r *models.StageDiffReport) error
	GetDiff(ctx context.Context, candidateID string) (*models.StageDiffReport, error)
}

type reportRepo struct {
	db *gorm.DB
}

func NewReportRepo(db *gorm.DB) ReportRepository {
	return &reportRepo{db: db}
}

func (r *reportRepo) UpsertAudit(ctx context.Context, a *models.AuditReport) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "candidate_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"global_score", "completeness", "metrics", "positives", "improvements", "tips", "computed_at"}),
		}).
		Create(a).Error
}

func (r *reportRepo) GetAudit(ctx context.Context, candidateID string) (*models.AuditReport, error) {
	var a models.AuditReport
	err := r.db.WithContext(ctx).
		Where("candidate_id = ?", candidateID).
		Take(&a).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, utils.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *reportRepo) UpsertDiff(ctx context.Context, d *models.StageDiffReport) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "candidate_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"rows", "added_skills", "ats_delta", "computed_at"}),
		}).
		Create(d).Error
}

func (r *reportRepo) GetDiff(ctx context.Context, candidateID string) (*models.StageDiffReport, error) {
	var d models.StageDiffReport
	err := r.db.WithContext(ctx).
		Where("candidate_id = ?", candidateID).
		Take(&d).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, utils.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

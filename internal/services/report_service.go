package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/sirupsen/logrus"

	"github.com/labkha-cpu/ai-Apply/internal/audit"
	"github.com/labkha-cpu/ai-Apply/internal/models"
	"github.com/labkha-cpu/ai-Apply/internal/pipeline"
	pgrepo "github.com/labkha-cpu/ai-Apply/internal/repositories/postgres"
	"github.com/labkha-cpu/ai-Apply/internal/utils"
)

type ReportService interface {
	// Audit computes and stores the audit of stage 1. When the profile
	// backend is unreachable the last stored report is returned instead.
	Audit(ctx context.Context, candidateID string) (*models.AuditReport, error)
	AuditProfile(ctx context.Context, p *models.CandidateProfile) (*models.AuditReport, error)
	// Diff computes and stores the stage 1 / stage 2 comparison, with the
	// same fallback as Audit.
	Diff(ctx context.Context, candidateID string) (*models.StageDiffReport, error)
	DiffProfile(ctx context.Context, p *models.CandidateProfile) (*models.StageDiffReport, error)
}

type reportService struct {
	profiles ProfileService
	reports  pgrepo.ReportRepository
	log      *logrus.Logger
	now      func() time.Time
}

func NewReportService(profiles ProfileService, reports pgrepo.ReportRepository, log *logrus.Logger) ReportService {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &reportService{profiles: profiles, reports: reports, log: log, now: time.Now}
}

// backendDown reports errors for which a stored report is a better answer
// than the error itself.
func backendDown(err error) bool {
	return utils.IsCode(err, utils.CodeUnavailable) || utils.IsCode(err, utils.CodeTimeout)
}

func (s *reportService) Audit(ctx context.Context, candidateID string) (*models.AuditReport, error) {
	const op = "ReportService.Audit"

	candidateID = strings.TrimSpace(candidateID)
	if candidateID == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "candidate_id is required", nil)
	}
	p, err := s.profiles.Get(ctx, candidateID, models.IncludeStage1)
	if err != nil {
		if backendDown(err) {
			if stored, serr := s.reports.GetAudit(ctx, candidateID); serr == nil {
				s.log.WithError(err).WithField("candidate_id", candidateID).Warn("profile backend down, serving stored audit")
				return stored, nil
			}
		}
		return nil, err
	}
	if p.CandidateID == "" {
		p.CandidateID = candidateID
	}
	return s.AuditProfile(ctx, p)
}

func (s *reportService) AuditProfile(ctx context.Context, p *models.CandidateProfile) (*models.AuditReport, error) {
	const op = "ReportService.AuditProfile"

	if p == nil || p.CandidateID == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "profile with candidate_id is required", nil)
	}
	if st := pipeline.Resolve(p, pipeline.Stage1); !st.IsTerminal() {
		return nil, utils.E(utils.CodeConflict, op, fmt.Sprintf("stage 1 is %s, audit needs a finished stage 1", st), nil)
	}

	res := audit.Compute(p.Stage1Artifact)
	metrics, err := json.Marshal(res.Metrics)
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to encode metrics", err)
	}
	breakdown, err := json.Marshal(res.Breakdown)
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to encode breakdown", err)
	}

	rep := &models.AuditReport{
		ID:           uuid.NewString(),
		CandidateID:  p.CandidateID,
		GlobalScore:  res.GlobalScore,
		Completeness: res.Completeness,
		Breakdown:    breakdown,
		Metrics:      metrics,
		Positives:    pq.StringArray(metricKeys(res.Positives)),
		Improvements: pq.StringArray(metricKeys(res.Improvements)),
		Tips:         pq.StringArray(res.Tips),
		ComputedAt:   s.now().UTC(),
	}
	if err := s.reports.UpsertAudit(ctx, rep); err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to store audit report", err)
	}
	return rep, nil
}

func metricKeys(ms []audit.Metric) []string {
	out := make([]string, 0, len(ms))
	for _, m := range ms {
		out = append(out, m.Key)
	}
	return out
}

func (s *reportService) Diff(ctx context.Context, candidateID string) (*models.StageDiffReport, error) {
	const op = "ReportService.Diff"

	candidateID = strings.TrimSpace(candidateID)
	if candidateID == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "candidate_id is required", nil)
	}
	p, err := s.profiles.Get(ctx, candidateID, models.IncludeAll)
	if err != nil {
		if backendDown(err) {
			if stored, serr := s.reports.GetDiff(ctx, candidateID); serr == nil {
				s.log.WithError(err).WithField("candidate_id", candidateID).Warn("profile backend down, serving stored diff")
				return stored, nil
			}
		}
		return nil, err
	}
	if p.CandidateID == "" {
		p.CandidateID = candidateID
	}
	return s.DiffProfile(ctx, p)
}

func (s *reportService) DiffProfile(ctx context.Context, p *models.CandidateProfile) (*models.StageDiffReport, error) {
	const op = "ReportService.DiffProfile"

	if p == nil || p.CandidateID == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "profile with candidate_id is required", nil)
	}
	if st := pipeline.Resolve(p, pipeline.Stage2); st != pipeline.StatusCompleted {
		return nil, utils.E(utils.CodeConflict, op, fmt.Sprintf("stage 2 is %s, diff needs a COMPLETED stage 2", st), nil)
	}

	s1, s2 := p.Stage1Artifact, p.Stage2Artifact
	if s1 == nil {
		s1 = &models.Stage1Artifact{}
	}
	if s2 == nil {
		s2 = &models.Stage2Artifact{}
	}

	rows, err := json.Marshal(audit.Compare(s1, s2))
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to encode diff rows", err)
	}
	rep := &models.StageDiffReport{
		ID:          uuid.NewString(),
		CandidateID: p.CandidateID,
		Rows:        rows,
		AddedSkills: pq.StringArray(audit.AddedSkills(s1.Skills.All(), s2.Skills.All())),
		ATSDelta:    audit.ATSDelta(s1.ATS.Internal, s2.ATSScore),
		ComputedAt:  s.now().UTC(),
	}
	if err := s.reports.UpsertDiff(ctx, rep); err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to store diff report", err)
	}
	return rep, nil
}

package services

import (
	"context"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/labkha-cpu/ai-Apply/internal/models"
	"github.com/labkha-cpu/ai-Apply/internal/pipeline"
	"github.com/labkha-cpu/ai-Apply/internal/providers/managecv"
	"github.com/labkha-cpu/ai-Apply/internal/utils"
)

// Stage2Trigger starts the rewrite stage on the pipeline backend.
type Stage2Trigger interface {
	TriggerStage2(ctx context.Context, candidateID string) (managecv.Ack, error)
}

const stage1NotCompleted = "stage 1 is not COMPLETED"

type Stage2Service interface {
	// Improve triggers stage 2 and follows it until it ends. The returned
	// event is the first one emitted: QUEUED on success, FAILED otherwise.
	Improve(ctx context.Context, candidateID string) (*models.StatusEvent, error)
	// Resume reattaches a poll loop to a stage 2 that is still in flight,
	// for instance after a restart. It reports whether a loop was started.
	Resume(ctx context.Context, candidateID string) (bool, error)
	Stop(candidateID string) bool
	Active(candidateID string) bool
	// History lists the stored status events of both stages, newest first.
	History(ctx context.Context, candidateID string, limit int64) ([]models.StatusEvent, error)
}

type Stage2Config struct {
	// Base outlives requests; poll loops end when it is cancelled.
	Base     context.Context
	Profiles ProfileService
	Trigger  Stage2Trigger
	Reports  ReportService
	Events   EventSink
	Registry *pipeline.Registry
	Poll     pipeline.Options
	Logger   *logrus.Logger
}

type stage2Service struct {
	cfg Stage2Config
	log *logrus.Logger

	// claimed holds candidates between the Active check and the loop
	// taking its registry slot
	mu      sync.Mutex
	claimed map[string]struct{}
}

func NewStage2Service(cfg Stage2Config) Stage2Service {
	if cfg.Base == nil {
		cfg.Base = context.Background()
	}
	if cfg.Registry == nil {
		cfg.Registry = pipeline.NewRegistry()
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.StandardLogger()
	}
	if cfg.Events == nil {
		cfg.Events = NewEventSink(nil, nil, 0, cfg.Logger)
	}
	cfg.Poll.Stage = pipeline.Stage2
	return &stage2Service{cfg: cfg, log: cfg.Logger, claimed: make(map[string]struct{})}
}

func (s *stage2Service) claim(candidateID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.claimed[candidateID]; ok || s.cfg.Registry.Active(candidateID) {
		return false
	}
	s.claimed[candidateID] = struct{}{}
	return true
}

func (s *stage2Service) release(candidateID string) {
	s.mu.Lock()
	delete(s.claimed, candidateID)
	s.mu.Unlock()
}

func (s *stage2Service) failed(ctx context.Context, candidateID, msg string) *models.StatusEvent {
	ev := &models.StatusEvent{
		CandidateID: candidateID,
		Stage:       int(pipeline.Stage2),
		Status:      string(pipeline.StatusFailed),
		Message:     msg,
		Terminal:    true,
	}
	s.cfg.Events.Emit(ctx, ev)
	return ev
}

func (s *stage2Service) Improve(ctx context.Context, candidateID string) (*models.StatusEvent, error) {
	const op = "Stage2Service.Improve"

	candidateID = strings.TrimSpace(candidateID)
	if candidateID == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "candidate_id is required", nil)
	}
	if !s.claim(candidateID) {
		return nil, utils.E(utils.CodeConflict, op, "stage 2 is already being followed for this candidate", nil)
	}
	defer s.release(candidateID)
	log := s.log.WithField("candidate_id", candidateID)

	raw, err := s.cfg.Profiles.FetchProfile(ctx, candidateID, models.IncludePreview)
	if err != nil {
		return nil, err
	}
	if pipeline.Resolve(pipeline.Normalize(raw), pipeline.Stage1) != pipeline.StatusCompleted {
		ev := s.failed(ctx, candidateID, stage1NotCompleted)
		return ev, utils.E(utils.CodeConflict, op, stage1NotCompleted, nil)
	}

	ack, err := s.cfg.Trigger.TriggerStage2(ctx, candidateID)
	if err != nil {
		log.WithError(err).Warn("stage 2 trigger failed")
		ev := s.failed(ctx, candidateID, utils.PublicMessage(err))
		return ev, err
	}
	s.cfg.Profiles.Invalidate(ctx, candidateID)

	// QUEUED goes out before the loop starts so it always precedes the
	// loop's own events
	ev := &models.StatusEvent{
		CandidateID: candidateID,
		Stage:       int(pipeline.Stage2),
		Status:      string(pipeline.StatusQueued),
		Message:     ack.Message,
	}
	s.cfg.Events.Emit(ctx, ev)

	h, err := s.follow(candidateID)
	if err != nil {
		return ev, err
	}
	ev.PollID = h.ID()
	log.WithField("poll_id", h.ID()).Info("stage 2 triggered")
	return ev, nil
}

func (s *stage2Service) follow(candidateID string) (*pipeline.Handle, error) {
	t := &loopTracker{
		ctx:   s.cfg.Base,
		stage: pipeline.Stage2,
		sink:  s.cfg.Events,
		last:  pipeline.StatusQueued,
		onDone: func(out pipeline.Outcome) {
			if out.Status != pipeline.StatusCompleted || s.cfg.Reports == nil {
				return
			}
			prof := out.Profile
			if prof != nil && prof.CandidateID == "" {
				prof.CandidateID = out.CandidateID
			}
			if _, err := s.cfg.Reports.DiffProfile(s.cfg.Base, prof); err != nil {
				s.log.WithError(err).WithField("candidate_id", out.CandidateID).Warn("stage diff report failed")
			}
		},
	}
	return s.cfg.Registry.Start(s.cfg.Base, candidateID, s.cfg.Profiles, s.cfg.Poll, t.callbacks())
}

func (s *stage2Service) Resume(ctx context.Context, candidateID string) (bool, error) {
	const op = "Stage2Service.Resume"

	candidateID = strings.TrimSpace(candidateID)
	if candidateID == "" {
		return false, utils.E(utils.CodeInvalidArgument, op, "candidate_id is required", nil)
	}
	if !s.claim(candidateID) {
		return false, nil
	}
	defer s.release(candidateID)
	raw, err := s.cfg.Profiles.FetchProfile(ctx, candidateID, models.IncludePreview)
	if err != nil {
		return false, err
	}
	if !pipeline.Resolve(pipeline.Normalize(raw), pipeline.Stage2).InFlight() {
		return false, nil
	}
	if _, err := s.follow(candidateID); err != nil {
		if utils.IsCode(err, utils.CodeConflict) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (s *stage2Service) Stop(candidateID string) bool {
	return s.cfg.Registry.Stop(candidateID)
}

func (s *stage2Service) Active(candidateID string) bool {
	s.mu.Lock()
	_, ok := s.claimed[candidateID]
	s.mu.Unlock()
	return ok || s.cfg.Registry.Active(candidateID)
}

func (s *stage2Service) History(ctx context.Context, candidateID string, limit int64) ([]models.StatusEvent, error) {
	const op = "Stage2Service.History"

	candidateID = strings.TrimSpace(candidateID)
	if candidateID == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "candidate_id is required", nil)
	}
	out, err := s.cfg.Events.History(ctx, candidateID, limit)
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to list status events", err)
	}
	return out, nil
}

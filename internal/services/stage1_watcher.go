package services

import (
	"context"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/labkha-cpu/ai-Apply/internal/models"
	"github.com/labkha-cpu/ai-Apply/internal/pipeline"
	"github.com/labkha-cpu/ai-Apply/internal/utils"
)

const (
	stage1Interval    = 2 * time.Second
	stage1MaxAttempts = 300
)

// Stage1Watcher follows stage 1 after an upload and audits the result.
type Stage1Watcher interface {
	// Watch starts a loop and returns its poll id. The loop outlives ctx.
	Watch(ctx context.Context, candidateID string) (string, error)
	Stop(candidateID string) bool
}

type Stage1Config struct {
	Base     context.Context
	Profiles ProfileService
	Reports  ReportService
	Events   EventSink
	// Registry must not be shared with stage 2: both key loops by candidate.
	Registry *pipeline.Registry
	Poll     pipeline.Options
	Logger   *logrus.Logger
}

type stage1Watcher struct {
	cfg Stage1Config
	log *logrus.Logger
}

func NewStage1Watcher(cfg Stage1Config) Stage1Watcher {
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
	cfg.Poll.Stage = pipeline.Stage1
	if !cfg.Poll.Include.Valid() {
		cfg.Poll.Include = models.IncludePreview
	}
	if cfg.Poll.Interval <= 0 {
		cfg.Poll.Interval = stage1Interval
	}
	if cfg.Poll.MaxAttempts <= 0 {
		cfg.Poll.MaxAttempts = stage1MaxAttempts
	}
	return &stage1Watcher{cfg: cfg, log: cfg.Logger}
}

func (w *stage1Watcher) Watch(ctx context.Context, candidateID string) (string, error) {
	const op = "Stage1Watcher.Watch"

	candidateID = strings.TrimSpace(candidateID)
	if candidateID == "" {
		return "", utils.E(utils.CodeInvalidArgument, op, "candidate_id is required", nil)
	}

	t := &loopTracker{
		ctx:   w.cfg.Base,
		stage: pipeline.Stage1,
		sink:  w.cfg.Events,
		onDone: func(out pipeline.Outcome) {
			// a FAILED stage 1 is still audited; a timeout is not a result
			if out.TimedOut || !out.Status.IsTerminal() || w.cfg.Reports == nil {
				return
			}
			// the loop reads a preview; the audit needs the full stage 1 record
			w.cfg.Profiles.Invalidate(w.cfg.Base, out.CandidateID)
			if _, err := w.cfg.Reports.Audit(w.cfg.Base, out.CandidateID); err != nil {
				w.log.WithError(err).WithField("candidate_id", out.CandidateID).Warn("audit report failed")
			}
		},
	}
	h, err := w.cfg.Registry.Start(w.cfg.Base, candidateID, w.cfg.Profiles, w.cfg.Poll, t.callbacks())
	if err != nil {
		return "", err
	}
	w.log.WithFields(logrus.Fields{"candidate_id": candidateID, "poll_id": h.ID()}).Info("watching stage 1")
	return h.ID(), nil
}

func (w *stage1Watcher) Stop(candidateID string) bool {
	return w.cfg.Registry.Stop(candidateID)
}

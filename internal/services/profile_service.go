package services

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/labkha-cpu/ai-Apply/internal/cache"
	"github.com/labkha-cpu/ai-Apply/internal/models"
	"github.com/labkha-cpu/ai-Apply/internal/pipeline"
	"github.com/labkha-cpu/ai-Apply/internal/storage"
	"github.com/labkha-cpu/ai-Apply/internal/utils"
)

// ProfileAPI is the remote profile backend.
type ProfileAPI interface {
	FetchProfile(ctx context.Context, candidateID string, include models.Include) (*models.RawProfile, error)
	ArtifactURL(ctx context.Context, candidateID, artifactType string) (models.ArtifactLink, error)
}

// Snapshot is the reconciled view of a candidate at one point in time.
type Snapshot struct {
	CandidateID   string                   `json:"candidate_id"`
	Profile       *models.CandidateProfile `json:"profile"`
	Stage1        pipeline.StageStatus     `json:"stage1_status"`
	Stage1Message string                   `json:"stage1_message,omitempty"`
	Stage2        pipeline.StageStatus     `json:"stage2_status"`
	Stage2Message string                   `json:"stage2_message,omitempty"`
}

type ProfileService interface {
	// FetchProfile always reads the backend and refreshes the cache. It is
	// the fetcher handed to poll loops.
	FetchProfile(ctx context.Context, candidateID string, include models.Include) (*models.RawProfile, error)
	// Get serves from the cache when it can.
	Get(ctx context.Context, candidateID string, include models.Include) (*models.CandidateProfile, error)
	Snapshot(ctx context.Context, candidateID string) (*Snapshot, error)
	ArtifactLink(ctx context.Context, candidateID, artifactType string) (models.ArtifactLink, error)
	Invalidate(ctx context.Context, candidateID string)
}

type profileService struct {
	api       ProfileAPI
	cache     *cache.ProfileCache // optional
	artifacts storage.ArtifactReader
	log       *logrus.Logger
}

// NewProfileService wires the profile backend. cache and artifacts may be nil.
func NewProfileService(api ProfileAPI, pc *cache.ProfileCache, artifacts storage.ArtifactReader, log *logrus.Logger) ProfileService {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &profileService{api: api, cache: pc, artifacts: artifacts, log: log}
}

func (s *profileService) FetchProfile(ctx context.Context, candidateID string, include models.Include) (*models.RawProfile, error) {
	const op = "ProfileService.FetchProfile"

	candidateID = strings.TrimSpace(candidateID)
	if candidateID == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "candidate_id is required", nil)
	}
	if !include.Valid() {
		include = models.IncludeAll
	}

	raw, err := s.api.FetchProfile(ctx, candidateID, include)
	if err != nil {
		return nil, err
	}
	if include == models.IncludeStage2 || include == models.IncludeAll {
		s.hydrateStage2(ctx, raw)
	}
	if s.cache != nil {
		if err := s.cache.Set(ctx, candidateID, include, raw); err != nil {
			s.log.WithError(err).WithField("candidate_id", candidateID).Warn("profile cache write failed")
		}
	}
	return raw, nil
}

// hydrateStage2 fills step2_json from storage when the record only carries
// the artifact key. Failures leave the record as is: the key alone already
// resolves stage 2 to COMPLETED.
func (s *profileService) hydrateStage2(ctx context.Context, raw *models.RawProfile) {
	if s.artifacts == nil || raw == nil {
		return
	}
	st := pipeline.Normalize(raw).Stage2
	if st.ArtifactPresent || st.ArtifactKey == "" {
		return
	}

	log := s.log.WithFields(logrus.Fields{"candidate_id": raw.CandidateID, "artifact_key": st.ArtifactKey})
	b, err := s.artifacts.Read(ctx, st.ArtifactKey)
	if err != nil {
		log.WithError(err).Warn("stage 2 artifact hydration failed")
		return
	}
	b = bytes.TrimSpace(b)
	if !json.Valid(b) || len(b) == 0 || b[0] != '{' {
		log.Warn("stage 2 artifact is not a json object")
		return
	}
	raw.Step2JSON = json.RawMessage(b)
}

func (s *profileService) Get(ctx context.Context, candidateID string, include models.Include) (*models.CandidateProfile, error) {
	candidateID = strings.TrimSpace(candidateID)
	if !include.Valid() {
		include = models.IncludeAll
	}
	if s.cache != nil && candidateID != "" {
		if raw, ok := s.cache.Get(ctx, candidateID, include); ok {
			return pipeline.Normalize(raw), nil
		}
	}
	raw, err := s.FetchProfile(ctx, candidateID, include)
	if err != nil {
		return nil, err
	}
	return pipeline.Normalize(raw), nil
}

func (s *profileService) Snapshot(ctx context.Context, candidateID string) (*Snapshot, error) {
	p, err := s.Get(ctx, candidateID, models.IncludeAll)
	if err != nil {
		return nil, err
	}
	return newSnapshot(p), nil
}

func newSnapshot(p *models.CandidateProfile) *Snapshot {
	return &Snapshot{
		CandidateID:   p.CandidateID,
		Profile:       p,
		Stage1:        pipeline.Resolve(p, pipeline.Stage1),
		Stage1Message: pipeline.FailureMessage(p, pipeline.Stage1),
		Stage2:        pipeline.Resolve(p, pipeline.Stage2),
		Stage2Message: pipeline.FailureMessage(p, pipeline.Stage2),
	}
}

func (s *profileService) ArtifactLink(ctx context.Context, candidateID, artifactType string) (models.ArtifactLink, error) {
	return s.api.ArtifactURL(ctx, candidateID, artifactType)
}

func (s *profileService) Invalidate(ctx context.Context, candidateID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, candidateID); err != nil {
		s.log.WithError(err).WithField("candidate_id", candidateID).Warn("profile cache invalidate failed")
	}
}

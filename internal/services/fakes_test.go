package services

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/labkha-cpu/ai-Apply/internal/models"
	"github.com/labkha-cpu/ai-Apply/internal/providers/managecv"
	"github.com/labkha-cpu/ai-Apply/internal/utils"
)

func mustRaw(t *testing.T, s string) *models.RawProfile {
	t.Helper()
	var r models.RawProfile
	if err := json.Unmarshal([]byte(s), &r); err != nil {
		t.Fatalf("unmarshal %s: %v", s, err)
	}
	return &r
}

// fakeAPI answers preview fetches with preview and counts every other fetch
// so a test can script a stage's progression.
type fakeAPI struct {
	mu      sync.Mutex
	preview *models.RawProfile
	next    func(n int) (*models.RawProfile, error)
	calls   map[models.Include]int
}

func (f *fakeAPI) FetchProfile(_ context.Context, candidateID string, include models.Include) (*models.RawProfile, error) {
	f.mu.Lock()
	if f.calls == nil {
		f.calls = make(map[models.Include]int)
	}
	f.calls[include]++
	n := f.calls[include]
	f.mu.Unlock()

	var (
		raw *models.RawProfile
		err error
	)
	if include == models.IncludePreview && f.preview != nil {
		raw = f.preview
	} else if f.next != nil {
		raw, err = f.next(n)
	} else {
		return nil, utils.E(utils.CodeNotFound, "fakeAPI.FetchProfile", "no record", utils.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	cp := *raw
	cp.CandidateID = candidateID
	return &cp, nil
}

func (f *fakeAPI) ArtifactURL(_ context.Context, _, artifactType string) (models.ArtifactLink, error) {
	return models.ArtifactLink{Type: artifactType, URL: "https://files.test/" + artifactType}, nil
}

func (f *fakeAPI) count(include models.Include) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[include]
}

type fakeTrigger struct {
	mu    sync.Mutex
	err   error
	delay time.Duration
	calls int
}

func (f *fakeTrigger) TriggerStage2(_ context.Context, candidateID string) (managecv.Ack, error) {
	time.Sleep(f.delay)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return managecv.Ack{}, f.err
	}
	return managecv.Ack{CandidateID: candidateID, Status: "QUEUED", Message: "accepted"}, nil
}

type fakeReportRepo struct {
	mu     sync.Mutex
	audits map[string]*models.AuditReport
	diffs  map[string]*models.StageDiffReport
}

func newFakeReportRepo() *fakeReportRepo {
	return &fakeReportRepo{
		audits: make(map[string]*models.AuditReport),
		diffs:  make(map[string]*models.StageDiffReport),
	}
}

func (r *fakeReportRepo) UpsertAudit(_ context.Context, a *models.AuditReport) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.audits[a.CandidateID] = a
	return nil
}

func (r *fakeReportRepo) GetAudit(_ context.Context, id string) (*models.AuditReport, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if a, ok := r.audits[id]; ok {
		return a, nil
	}
	return nil, utils.ErrNotFound
}

func (r *fakeReportRepo) UpsertDiff(_ context.Context, d *models.StageDiffReport) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.diffs[d.CandidateID] = d
	return nil
}

func (r *fakeReportRepo) GetDiff(_ context.Context, id string) (*models.StageDiffReport, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if d, ok := r.diffs[id]; ok {
		return d, nil
	}
	return nil, utils.ErrNotFound
}

func (r *fakeReportRepo) diff(id string) *models.StageDiffReport {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.diffs[id]
}

func (r *fakeReportRepo) audit(id string) *models.AuditReport {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.audits[id]
}

type fakeSink struct {
	mu     sync.Mutex
	events []models.StatusEvent
}

func (s *fakeSink) Emit(_ context.Context, e *models.StatusEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, *e)
}

func (s *fakeSink) History(_ context.Context, candidateID string, _ int64) ([]models.StatusEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.StatusEvent
	for _, e := range s.events {
		if e.CandidateID == candidateID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *fakeSink) snapshot() []models.StatusEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.StatusEvent(nil), s.events...)
}

type fakeArtifacts struct {
	data map[string][]byte
	keys []string
}

func (f *fakeArtifacts) Read(_ context.Context, key string) ([]byte, error) {
	f.keys = append(f.keys, key)
	if b, ok := f.data[key]; ok {
		return b, nil
	}
	return nil, utils.E(utils.CodeNotFound, "fakeArtifacts.Read", "artifact not found", utils.ErrNotFound)
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

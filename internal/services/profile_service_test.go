package services

import (
	"context"
	"testing"
	"time"

	"github.com/labkha-cpu/ai-Apply/internal/cache"
	"github.com/labkha-cpu/ai-Apply/internal/logger"
	"github.com/labkha-cpu/ai-Apply/internal/models"
	"github.com/labkha-cpu/ai-Apply/internal/pipeline"
)

func TestProfileServiceGetUsesCache(t *testing.T) {
	ctx := context.Background()
	api := &fakeAPI{next: func(int) (*models.RawProfile, error) {
		return mustRaw(t, `{"status":"COMPLETED","step2_status":"PROCESSING"}`), nil
	}}
	pc := cache.NewProfileCache(cache.NewMemoryCache(), time.Minute)
	svc := NewProfileService(api, pc, nil, logger.Nop())

	for i := 0; i < 3; i++ {
		p, err := svc.Get(ctx, "c-1", models.IncludeAll)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if got := pipeline.Resolve(p, pipeline.Stage2); got != pipeline.StatusProcessing {
			t.Fatalf("stage 2 = %s, want PROCESSING", got)
		}
	}
	if n := api.count(models.IncludeAll); n != 1 {
		t.Errorf("backend fetches = %d, want 1", n)
	}

	svc.Invalidate(ctx, "c-1")
	if _, err := svc.Get(ctx, "c-1", models.IncludeAll); err != nil {
		t.Fatalf("Get after invalidate: %v", err)
	}
	if n := api.count(models.IncludeAll); n != 2 {
		t.Errorf("backend fetches after invalidate = %d, want 2", n)
	}
}

func TestProfileServiceHydratesStage2FromKey(t *testing.T) {
	ctx := context.Background()
	const key = "gs://cvs/c-1/master.json"
	api := &fakeAPI{next: func(int) (*models.RawProfile, error) {
		return mustRaw(t, `{"step2_status":"DONE","cv_master_s3_key":"`+key+`"}`), nil
	}}
	store := &fakeArtifacts{data: map[string][]byte{key: []byte(` {"headline":"Hydrated headline"} `)}}
	svc := NewProfileService(api, nil, store, logger.Nop())

	p, err := svc.Get(ctx, "c-1", models.IncludeAll)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if p.Stage2Artifact == nil || p.Stage2Artifact.Headline != "Hydrated headline" {
		t.Fatalf("stage 2 artifact not hydrated: %+v", p.Stage2Artifact)
	}

	if _, err := svc.Get(ctx, "c-1", models.IncludePreview); err != nil {
		t.Fatalf("Get preview: %v", err)
	}
	if len(store.keys) != 1 {
		t.Errorf("artifact reads = %v, want one read for the full fetch only", store.keys)
	}
}

func TestProfileServiceHydrationFailureKeepsCompleted(t *testing.T) {
	api := &fakeAPI{next: func(int) (*models.RawProfile, error) {
		return mustRaw(t, `{"step2_status":"FAILED","cv_master_s3_key":"missing.json"}`), nil
	}}
	svc := NewProfileService(api, nil, &fakeArtifacts{}, logger.Nop())

	snap, err := svc.Snapshot(context.Background(), "c-1")
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if snap.Stage2 != pipeline.StatusCompleted || snap.Stage2Message != "" {
		t.Errorf("snapshot = %s %q, want COMPLETED with no message", snap.Stage2, snap.Stage2Message)
	}
	if snap.CandidateID != "c-1" {
		t.Errorf("CandidateID = %q", snap.CandidateID)
	}
}

func TestProfileServiceRequiresCandidate(t *testing.T) {
	svc := NewProfileService(&fakeAPI{}, nil, nil, logger.Nop())
	if _, err := svc.Get(context.Background(), "  ", models.IncludeAll); err == nil {
		t.Fatal("expected an error for a blank candidate id")
	}
}

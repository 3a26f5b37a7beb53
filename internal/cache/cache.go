package cache

import (
	"context"
	"strings"
	"time"

	"github.com/labkha-cpu/ai-Apply/internal/models"
)

type Cache interface {
	GetJSON(ctx context.Context, key string, dst any) (hit bool, err error)
	SetJSON(ctx context.Context, key string, val any, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
}

var includes = []models.Include{models.IncludePreview, models.IncludeStage1, models.IncludeStage2, models.IncludeAll}

// ProfileCache keeps raw profile records for a short TTL so dashboard reads
// and poll ticks for the same candidate do not each hit the profile API.
type ProfileCache struct {
	c   Cache
	ttl time.Duration
}

func NewProfileCache(c Cache, ttl time.Duration) *ProfileCache {
	if ttl <= 0 {
		ttl = 5 * time.Second
	}
	return &ProfileCache{c: c, ttl: ttl}
}

func profileKey(candidateID string, include models.Include) string {
	return "profile:" + strings.TrimSpace(candidateID) + ":" + string(include)
}

// Get reports a miss on any cache error; the cache is never authoritative.
func (p *ProfileCache) Get(ctx context.Context, candidateID string, include models.Include) (*models.RawProfile, bool) {
	var raw models.RawProfile
	hit, err := p.c.GetJSON(ctx, profileKey(candidateID, include), &raw)
	if err != nil || !hit {
		return nil, false
	}
	return &raw, true
}

func (p *ProfileCache) Set(ctx context.Context, candidateID string, include models.Include, raw *models.RawProfile) error {
	if raw == nil {
		return nil
	}
	return p.c.SetJSON(ctx, profileKey(candidateID, include), raw, p.ttl)
}

// Invalidate drops every cached variant of a candidate's record.
func (p *ProfileCache) Invalidate(ctx context.Context, candidateID string) error {
	keys := make([]string, 0, len(includes))
	for _, inc := range includes {
		keys = append(keys, profileKey(candidateID, inc))
	}
	return p.c.Del(ctx, keys...)
}

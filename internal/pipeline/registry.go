package pipeline

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/labkha-cpu/ai-Apply/internal/utils"
)

// Registry runs poll loops and keeps at most one active loop per candidate.
type Registry struct {
	mu    sync.Mutex
	loops map[string]*Handle
}

func NewRegistry() *Registry {
	return &Registry{loops: make(map[string]*Handle)}
}

// Start launches a loop for candidateID. The first fetch happens right away,
// then one per Options.Interval. Cancelling ctx ends the loop like Stop does.
func (r *Registry) Start(ctx context.Context, candidateID string, fetch Fetcher, opts Options, cb Callbacks) (*Handle, error) {
	const op = "Registry.Start"

	id := strings.TrimSpace(candidateID)
	if id == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "candidate_id is required", nil)
	}
	if fetch == nil {
		return nil, utils.E(utils.CodeInvalidArgument, op, "fetcher is required", nil)
	}
	opts = opts.withDefaults()

	r.mu.Lock()
	if _, ok := r.loops[id]; ok {
		r.mu.Unlock()
		return nil, utils.E(utils.CodeConflict, op, "a poll loop is already running for this candidate", nil)
	}
	h := newHandle(id, uuid.NewString())
	h.onStop = func() { r.release(id, h) }
	r.loops[id] = h
	r.mu.Unlock()

	p := &poller{
		h:     h,
		fetch: fetch,
		opts:  opts,
		cb:    cb,
		log: opts.Logger.WithFields(logrus.Fields{
			"candidate_id": id,
			"stage":        int(opts.Stage),
			"poll_id":      h.id,
		}),
	}
	go func() {
		defer close(h.done)
		defer r.release(id, h)
		p.run(ctx)
	}()
	return h, nil
}

func (r *Registry) release(id string, h *Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.loops[id] == h {
		delete(r.loops, id)
	}
}

// Stop stops the active loop of candidateID and reports whether there was one.
func (r *Registry) Stop(candidateID string) bool {
	r.mu.Lock()
	h := r.loops[strings.TrimSpace(candidateID)]
	r.mu.Unlock()
	if h == nil {
		return false
	}
	h.Stop()
	return true
}

func (r *Registry) Active(candidateID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.loops[strings.TrimSpace(candidateID)]
	return ok
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.loops)
}

// StopAll stops every active loop, used on shutdown.
func (r *Registry) StopAll() {
	r.mu.Lock()
	hs := make([]*Handle, 0, len(r.loops))
	for _, h := range r.loops {
		hs = append(hs, h)
	}
	r.mu.Unlock()
	for _, h := range hs {
		h.Stop()
	}
}

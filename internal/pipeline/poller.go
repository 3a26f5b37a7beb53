package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/labkha-cpu/ai-Apply/internal/models"
	"github.com/labkha-cpu/ai-Apply/internal/utils"
)

const (
	DefaultInterval    = 2500 * time.Millisecond
	DefaultTimeout     = 10 * time.Minute
	DefaultMaxAttempts = 200
)

// Fetcher reads the remote profile record. A record that does not exist yet
// must be reported with an error for which utils.IsNotFound is true.
type Fetcher interface {
	FetchProfile(ctx context.Context, candidateID string, include models.Include) (*models.RawProfile, error)
}

type FetchFunc func(ctx context.Context, candidateID string, include models.Include) (*models.RawProfile, error)

func (f FetchFunc) FetchProfile(ctx context.Context, candidateID string, include models.Include) (*models.RawProfile, error) {
	return f(ctx, candidateID, include)
}

type Options struct {
	Stage       Stage
	Interval    time.Duration
	Timeout     time.Duration
	MaxAttempts int
	Include     models.Include

	// Limiter, when set, is shared by every loop to cap the overall fetch rate.
	Limiter *rate.Limiter
	Logger  *logrus.Entry
}

func (o Options) withDefaults() Options {
	if !o.Stage.Valid() {
		o.Stage = Stage2
	}
	if o.Interval <= 0 {
		o.Interval = DefaultInterval
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = DefaultMaxAttempts
	}
	if !o.Include.Valid() {
		o.Include = models.IncludeAll
	}
	if o.Logger == nil {
		o.Logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return o
}

// Update is one successful poll observation.
type Update struct {
	CandidateID string
	PollID      string
	Attempt     int
	Profile     *models.CandidateProfile
	Status      StageStatus
}

// Callbacks run serially on the loop goroutine. Any of them may be nil.
type Callbacks struct {
	OnUpdate func(Update)
	OnDone   func(Outcome)
	OnError  func(err error)
}

// Outcome is the terminal result of a poll loop.
type Outcome struct {
	CandidateID string
	PollID      string
	Profile     *models.CandidateProfile // last record seen, nil if none was fetched
	Status      StageStatus
	Message     string
	TimedOut    bool
	Err         error // nil on COMPLETED
	Attempts    int
	Elapsed     time.Duration
}

// Handle controls one running poll loop.
type Handle struct {
	id          string
	candidateID string

	stopCh   chan struct{}
	done     chan struct{}
	stopOnce sync.Once
	stopped  atomic.Bool
	attempts atomic.Int64

	onStop func()
}

func newHandle(candidateID string, id string) *Handle {
	return &Handle{
		id:          id,
		candidateID: candidateID,
		stopCh:      make(chan struct{}),
		done:        make(chan struct{}),
	}
}

func (h *Handle) ID() string          { return h.id }
func (h *Handle) CandidateID() string { return h.candidateID }
func (h *Handle) Attempts() int       { return int(h.attempts.Load()) }

// Done is closed once the loop has returned and left the registry.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Stop asks the loop to end. It never triggers OnDone and is safe to call
// any number of times, before or after the loop finished. A fetch already in
// flight is allowed to finish; its result is dropped.
func (h *Handle) Stop() {
	h.stopOnce.Do(func() {
		h.stopped.Store(true)
		close(h.stopCh)
		if h.onStop != nil {
			h.onStop()
		}
	})
}

func (h *Handle) Stopped() bool { return h.stopped.Load() }

type poller struct {
	h     *Handle
	fetch Fetcher
	opts  Options
	cb    Callbacks
	log   *logrus.Entry
}

func (p *poller) run(ctx context.Context) {
	// waits end on Stop or on ctx; the fetch itself only sees ctx
	waitCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-p.h.stopCh:
			cancel()
		case <-waitCtx.Done():
		}
	}()

	ticker := time.NewTicker(p.opts.Interval)
	defer ticker.Stop()
	deadline := time.NewTimer(p.opts.Timeout)
	defer deadline.Stop()

	start := time.Now()
	// limiter waits may not run past the time budget
	limitCtx, cancelLimit := context.WithDeadline(waitCtx, start.Add(p.opts.Timeout))
	defer cancelLimit()

	var last *models.CandidateProfile
	attempts := 0

	for {
		if p.h.Stopped() || ctx.Err() != nil {
			return
		}
		if attempts > 0 && time.Since(start) >= p.opts.Timeout {
			p.finish(p.timedOut(last, attempts, time.Since(start)))
			return
		}
		if p.opts.Limiter != nil {
			if err := p.opts.Limiter.Wait(limitCtx); err != nil {
				if waitCtx.Err() != nil {
					return
				}
				if p.opts.Limiter.Burst() > 0 {
					// next token falls after the deadline
					p.finish(p.timedOut(last, attempts, time.Since(start)))
					return
				}
				p.log.WithError(err).Warn("poll limiter rejected wait, fetching unthrottled")
			}
		}

		attempts++
		p.h.attempts.Store(int64(attempts))
		log := p.log.WithField("attempt", attempts)

		raw, err := p.fetch.FetchProfile(ctx, p.h.candidateID, p.opts.Include)
		if p.h.Stopped() || ctx.Err() != nil {
			log.Debug("poll stopped during fetch, result discarded")
			return
		}

		switch {
		case err == nil:
			prof := Normalize(raw)
			status := Resolve(prof, p.opts.Stage)
			last = prof
			log.WithField("status", status).Debug("poll tick")
			if p.cb.OnUpdate != nil {
				p.cb.OnUpdate(Update{
					CandidateID: p.h.candidateID,
					PollID:      p.h.id,
					Attempt:     attempts,
					Profile:     prof,
					Status:      status,
				})
			}
			if status.IsTerminal() {
				p.finish(p.terminal(prof, status, attempts, time.Since(start)))
				return
			}
		case utils.IsNotFound(err):
			log.Debug("profile not found yet")
		default:
			log.WithError(err).Warn("profile fetch failed")
			if p.cb.OnError != nil {
				p.cb.OnError(err)
			}
		}

		if attempts >= p.opts.MaxAttempts {
			p.finish(p.timedOut(last, attempts, time.Since(start)))
			return
		}

		select {
		case <-waitCtx.Done():
			return
		case <-deadline.C:
			p.finish(p.timedOut(last, attempts, time.Since(start)))
			return
		case <-ticker.C:
		}
	}
}

func (p *poller) finish(out Outcome) {
	// a Stop issued from OnUpdate wins over the terminal result
	if p.h.Stopped() {
		return
	}
	p.log.WithFields(logrus.Fields{
		"status":    out.Status,
		"attempts":  out.Attempts,
		"timed_out": out.TimedOut,
		"elapsed":   out.Elapsed.String(),
	}).Info("poll finished")
	if p.cb.OnDone != nil {
		p.cb.OnDone(out)
	}
}

func (p *poller) terminal(prof *models.CandidateProfile, status StageStatus, attempts int, elapsed time.Duration) Outcome {
	const op = "Poller.Run"

	out := Outcome{
		CandidateID: p.h.candidateID,
		PollID:      p.h.id,
		Profile:     prof,
		Status:      status,
		Attempts:    attempts,
		Elapsed:     elapsed,
	}
	if status == StatusFailed {
		out.Message = FailureMessage(prof, p.opts.Stage)
		var details error
		if d := State(prof, p.opts.Stage).Error.Details; d != "" && d != out.Message {
			details = errors.New(d)
		}
		out.Err = utils.E(utils.CodeBackendFailure, op, out.Message, details)
	}
	return out
}

// TimeoutMessage is the single message used when a loop gives up, whether the
// attempt budget or the time budget ran out first.
func TimeoutMessage(stage Stage, attempts int, elapsed time.Duration) string {
	return fmt.Sprintf("stage %d did not finish: gave up after %d attempts (%s elapsed)",
		int(stage), attempts, elapsed.Round(time.Millisecond))
}

func (p *poller) timedOut(last *models.CandidateProfile, attempts int, elapsed time.Duration) Outcome {
	const op = "Poller.Run"

	msg := TimeoutMessage(p.opts.Stage, attempts, elapsed)
	return Outcome{
		CandidateID: p.h.candidateID,
		PollID:      p.h.id,
		Profile:     last,
		Status:      StatusFailed,
		Message:     msg,
		TimedOut:    true,
		Err:         utils.E(utils.CodeTimeout, op, msg, nil),
		Attempts:    attempts,
		Elapsed:     elapsed,
	}
}

package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"golang.org/x/time/rate"

	"github.com/labkha-cpu/ai-Apply/internal/logger"
	"github.com/labkha-cpu/ai-Apply/internal/models"
	"github.com/labkha-cpu/ai-Apply/internal/utils"
)

type seqFetcher struct {
	mu    sync.Mutex
	calls int
	next  func(n int) (*models.RawProfile, error)
}

func (f *seqFetcher) FetchProfile(_ context.Context, _ string, _ models.Include) (*models.RawProfile, error) {
	f.mu.Lock()
	f.calls++
	n := f.calls
	f.mu.Unlock()
	return f.next(n)
}

func (f *seqFetcher) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type recorder struct {
	mu       sync.Mutex
	updates  []StageStatus
	errs     []error
	outcomes []Outcome
}

func (r *recorder) callbacks() Callbacks {
	return Callbacks{
		OnUpdate: func(u Update) {
			r.mu.Lock()
			r.updates = append(r.updates, u.Status)
			r.mu.Unlock()
		},
		OnDone: func(o Outcome) {
			r.mu.Lock()
			r.outcomes = append(r.outcomes, o)
			r.mu.Unlock()
		},
		OnError: func(err error) {
			r.mu.Lock()
			r.errs = append(r.errs, err)
			r.mu.Unlock()
		},
	}
}

func (r *recorder) snapshot() (updates []StageStatus, errs []error, outcomes []Outcome) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]StageStatus(nil), r.updates...), append([]error(nil), r.errs...), append([]Outcome(nil), r.outcomes...)
}

func processing() *models.RawProfile { return &models.RawProfile{Step2Status: "PROCESSING"} }
func completed() *models.RawProfile  { return &models.RawProfile{Step2Status: "DONE"} }

func fastOptions() Options {
	return Options{Stage: Stage2, Interval: time.Millisecond, Logger: logger.Discard()}
}

func waitDone(t *testing.T, h *Handle) {
	t.Helper()
	select {
	case <-h.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("poll loop did not finish")
	}
}

func TestPollerGivesUpAfterMaxAttempts(t *testing.T) {
	reg := NewRegistry()
	f := &seqFetcher{next: func(int) (*models.RawProfile, error) { return processing(), nil }}
	var rec recorder
	opts := fastOptions()
	opts.MaxAttempts = 3

	h, err := reg.Start(context.Background(), "c-1", f, opts, rec.callbacks())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitDone(t, h)

	updates, errs, outcomes := rec.snapshot()
	if len(outcomes) != 1 {
		t.Fatalf("OnDone called %d times, want 1", len(outcomes))
	}
	out := outcomes[0]
	if out.Status != StatusFailed || !out.TimedOut {
		t.Errorf("outcome = %s timedOut=%v, want FAILED timed out", out.Status, out.TimedOut)
	}
	if out.Attempts != 3 || f.Calls() != 3 {
		t.Errorf("attempts = %d, fetch calls = %d, want 3", out.Attempts, f.Calls())
	}
	if !utils.IsCode(out.Err, utils.CodeTimeout) {
		t.Errorf("Err = %v, want timeout code", out.Err)
	}
	if !strings.Contains(out.Message, "3 attempts") {
		t.Errorf("Message = %q, want it to name the attempt count", out.Message)
	}
	if len(updates) != 3 || len(errs) != 0 {
		t.Errorf("updates = %v, errors = %v", updates, errs)
	}
	if out.Profile == nil {
		t.Error("outcome should carry the last profile seen")
	}

	// Stop after completion is a no-op.
	h.Stop()
	h.Stop()
	if _, _, outcomes = rec.snapshot(); len(outcomes) != 1 {
		t.Errorf("Stop after done triggered OnDone again: %d calls", len(outcomes))
	}
	if reg.Active("c-1") {
		t.Error("finished loop still registered")
	}
}

func TestPollerStopsOnTerminalStatus(t *testing.T) {
	cases := []struct {
		name    string
		last    *models.RawProfile
		status  StageStatus
		code    utils.Code
		message string
	}{
		{"completed", completed(), StatusCompleted, "", ""},
		{"backend failure", &models.RawProfile{Step2Error: json.RawMessage(`{"message":"boom"}`)}, StatusFailed, utils.CodeBackendFailure, "boom"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := &seqFetcher{next: func(n int) (*models.RawProfile, error) {
				if n < 3 {
					return processing(), nil
				}
				return tc.last, nil
			}}
			var rec recorder
			h, err := NewRegistry().Start(context.Background(), "c-1", f, fastOptions(), rec.callbacks())
			if err != nil {
				t.Fatalf("Start: %v", err)
			}
			waitDone(t, h)

			updates, _, outcomes := rec.snapshot()
			if len(outcomes) != 1 {
				t.Fatalf("OnDone called %d times", len(outcomes))
			}
			out := outcomes[0]
			if out.Status != tc.status || out.TimedOut || out.Attempts != 3 {
				t.Errorf("outcome = %+v", out)
			}
			if out.Message != tc.message {
				t.Errorf("Message = %q, want %q", out.Message, tc.message)
			}
			if tc.code == "" && out.Err != nil {
				t.Errorf("Err = %v, want nil", out.Err)
			}
			if tc.code != "" && !utils.IsCode(out.Err, tc.code) {
				t.Errorf("Err = %v, want code %s", out.Err, tc.code)
			}
			want := []StageStatus{StatusProcessing, StatusProcessing, tc.status}
			if len(updates) != len(want) {
				t.Fatalf("updates = %v, want %v", updates, want)
			}
			for i := range want {
				if updates[i] != want[i] {
					t.Errorf("updates[%d] = %s, want %s", i, updates[i], want[i])
				}
			}
		})
	}
}

func TestPollerNotFoundIsTransient(t *testing.T) {
	f := &seqFetcher{next: func(n int) (*models.RawProfile, error) {
		if n <= 2 {
			return nil, utils.E(utils.CodeNotFound, "test", "profile not found", utils.ErrNotFound)
		}
		return completed(), nil
	}}
	var rec recorder
	h, err := NewRegistry().Start(context.Background(), "c-1", f, fastOptions(), rec.callbacks())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitDone(t, h)

	updates, errs, outcomes := rec.snapshot()
	if len(errs) != 0 {
		t.Errorf("not found reported through OnError: %v", errs)
	}
	if len(updates) != 1 {
		t.Errorf("updates = %v, want only the found record", updates)
	}
	if len(outcomes) != 1 || outcomes[0].Status != StatusCompleted || outcomes[0].Attempts != 3 {
		t.Errorf("outcomes = %+v", outcomes)
	}
}

func TestPollerTransportErrorContinues(t *testing.T) {
	f := &seqFetcher{next: func(n int) (*models.RawProfile, error) {
		if n == 1 {
			return nil, errors.New("connection reset")
		}
		return completed(), nil
	}}
	var rec recorder
	h, err := NewRegistry().Start(context.Background(), "c-1", f, fastOptions(), rec.callbacks())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitDone(t, h)

	_, errs, outcomes := rec.snapshot()
	if len(errs) != 1 {
		t.Errorf("OnError called %d times, want 1", len(errs))
	}
	if len(outcomes) != 1 || outcomes[0].Status != StatusCompleted {
		t.Errorf("outcomes = %+v", outcomes)
	}
}

func TestPollerTimeout(t *testing.T) {
	f := &seqFetcher{next: func(int) (*models.RawProfile, error) { return processing(), nil }}
	var rec recorder
	opts := fastOptions()
	opts.Interval = 5 * time.Millisecond
	opts.Timeout = 30 * time.Millisecond
	opts.MaxAttempts = 100000

	h, err := NewRegistry().Start(context.Background(), "c-1", f, opts, rec.callbacks())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitDone(t, h)

	_, _, outcomes := rec.snapshot()
	if len(outcomes) != 1 {
		t.Fatalf("OnDone called %d times", len(outcomes))
	}
	out := outcomes[0]
	if !out.TimedOut || out.Status != StatusFailed || !utils.IsCode(out.Err, utils.CodeTimeout) {
		t.Errorf("outcome = %+v", out)
	}
	if out.Message != TimeoutMessage(Stage2, out.Attempts, out.Elapsed) {
		t.Errorf("time budget and attempt budget must share one message, got %q", out.Message)
	}
}

func TestPollerStopDiscardsInFlightFetch(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	f := FetchFunc(func(context.Context, string, models.Include) (*models.RawProfile, error) {
		once.Do(func() { close(entered) })
		<-release
		return completed(), nil
	})
	var rec recorder
	reg := NewRegistry()
	h, err := reg.Start(context.Background(), "c-1", f, fastOptions(), rec.callbacks())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	select {
	case <-entered:
	case <-time.After(2 * time.Second):
		t.Fatal("fetch never started")
	}
	h.Stop()
	close(release)
	waitDone(t, h)

	updates, _, outcomes := rec.snapshot()
	if len(updates) != 0 || len(outcomes) != 0 {
		t.Errorf("stopped loop delivered results: updates=%v outcomes=%v", updates, outcomes)
	}
}

func TestRegistryRejectsSecondLoop(t *testing.T) {
	release := make(chan struct{})
	blocking := FetchFunc(func(context.Context, string, models.Include) (*models.RawProfile, error) {
		<-release
		return processing(), nil
	})
	reg := NewRegistry()
	first, err := reg.Start(context.Background(), "c-1", blocking, fastOptions(), Callbacks{})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	if _, err := reg.Start(context.Background(), "c-1", blocking, fastOptions(), Callbacks{}); !utils.IsCode(err, utils.CodeConflict) {
		t.Fatalf("second Start err = %v, want conflict", err)
	}
	if _, err := reg.Start(context.Background(), "c-2", FetchFunc(func(context.Context, string, models.Include) (*models.RawProfile, error) {
		return completed(), nil
	}), fastOptions(), Callbacks{}); err != nil {
		t.Fatalf("another candidate must not conflict: %v", err)
	}

	if !reg.Stop("c-1") {
		t.Fatal("Stop reported no active loop")
	}
	if reg.Active("c-1") {
		t.Fatal("stopped loop still holds the candidate")
	}
	var rec recorder
	second, err := reg.Start(context.Background(), "c-1", FetchFunc(func(context.Context, string, models.Include) (*models.RawProfile, error) {
		return completed(), nil
	}), fastOptions(), rec.callbacks())
	if err != nil {
		t.Fatalf("Start after Stop: %v", err)
	}
	close(release)
	waitDone(t, first)
	waitDone(t, second)

	if _, _, outcomes := rec.snapshot(); len(outcomes) != 1 || outcomes[0].PollID != second.ID() {
		t.Errorf("outcomes = %+v", outcomes)
	}
	if reg.Stop("c-1") {
		t.Error("Stop on a finished candidate should report false")
	}
}

func TestRegistryStartValidation(t *testing.T) {
	reg := NewRegistry()
	if _, err := reg.Start(context.Background(), "  ", FetchFunc(nil), fastOptions(), Callbacks{}); !utils.IsCode(err, utils.CodeInvalidArgument) {
		t.Errorf("empty id err = %v", err)
	}
	if _, err := reg.Start(context.Background(), "c-1", nil, fastOptions(), Callbacks{}); !utils.IsCode(err, utils.CodeInvalidArgument) {
		t.Errorf("nil fetcher err = %v", err)
	}
}

func TestPollerStopInterruptsLimiterWait(t *testing.T) {
	f := &seqFetcher{next: func(int) (*models.RawProfile, error) { return processing(), nil }}
	var rec recorder
	opts := fastOptions()
	opts.Limiter = rate.NewLimiter(rate.Every(time.Minute), 1)

	h, err := NewRegistry().Start(context.Background(), "c-1", f, opts, rec.callbacks())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for f.Calls() < 1 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	h.Stop()
	waitDone(t, h)

	if f.Calls() != 1 {
		t.Errorf("fetch calls = %d, want 1 before the limiter blocked", f.Calls())
	}
	if _, _, outcomes := rec.snapshot(); len(outcomes) != 0 {
		t.Errorf("Stop triggered OnDone: %+v", outcomes)
	}
}

func TestPollerTimeoutBoundsLimiterWait(t *testing.T) {
	f := &seqFetcher{next: func(int) (*models.RawProfile, error) { return processing(), nil }}
	var rec recorder
	opts := fastOptions()
	opts.Timeout = 100 * time.Millisecond
	opts.MaxAttempts = 100000
	opts.Limiter = rate.NewLimiter(rate.Every(3*time.Second), 1)

	began := time.Now()
	h, err := NewRegistry().Start(context.Background(), "c-1", f, opts, rec.callbacks())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitDone(t, h)

	if took := time.Since(began); took > time.Second {
		t.Errorf("loop ran %v past a 100ms budget", took)
	}
	if f.Calls() != 1 {
		t.Errorf("fetch calls = %d, want 1", f.Calls())
	}
	_, _, outcomes := rec.snapshot()
	if len(outcomes) != 1 || !outcomes[0].TimedOut || outcomes[0].Attempts != 1 {
		t.Errorf("outcomes = %+v", outcomes)
	}
}

func TestPollerContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	f := &seqFetcher{next: func(int) (*models.RawProfile, error) { return processing(), nil }}
	var rec recorder
	h, err := NewRegistry().Start(ctx, "c-1", f, fastOptions(), rec.callbacks())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	cancel()
	waitDone(t, h)
	if _, _, outcomes := rec.snapshot(); len(outcomes) != 0 {
		t.Errorf("cancelled loop reported an outcome: %+v", outcomes)
	}
}

func TestStopFromOnUpdateSuppressesDone(t *testing.T) {
	reg := NewRegistry()
	f := &seqFetcher{next: func(int) (*models.RawProfile, error) { return completed(), nil }}

	var (
		mu      sync.Mutex
		updates []Update
		done    int
	)
	h, err := reg.Start(context.Background(), "c-1", f, fastOptions(), Callbacks{
		OnUpdate: func(u Update) {
			mu.Lock()
			updates = append(updates, u)
			mu.Unlock()
			reg.Stop(u.CandidateID)
		},
		OnDone: func(Outcome) {
			mu.Lock()
			done++
			mu.Unlock()
		},
	})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitDone(t, h)

	mu.Lock()
	defer mu.Unlock()
	if done != 0 {
		t.Errorf("OnDone called %d times after Stop in OnUpdate", done)
	}
	if len(updates) != 1 {
		t.Fatalf("updates = %d, want 1", len(updates))
	}
	u := updates[0]
	if u.PollID != h.ID() || u.Attempt != 1 || u.Status != StatusCompleted || u.Profile == nil {
		t.Errorf("update = %+v", u)
	}
}

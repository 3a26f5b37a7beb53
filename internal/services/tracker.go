package services

import (
	"context"

	"github.com/labkha-cpu/ai-Apply/internal/models"
	"github.com/labkha-cpu/ai-Apply/internal/pipeline"
)

// loopTracker turns poll loop callbacks into status events. It emits one
// event per status change and one terminal event.
type loopTracker struct {
	ctx   context.Context
	stage pipeline.Stage
	sink  EventSink
	last  pipeline.StageStatus

	onDone func(pipeline.Outcome)
}

func (t *loopTracker) callbacks() pipeline.Callbacks {
	return pipeline.Callbacks{
		OnUpdate: func(u pipeline.Update) {
			// terminal statuses are reported by OnDone
			if u.Status.IsTerminal() || u.Status == t.last {
				return
			}
			t.last = u.Status
			t.sink.Emit(t.ctx, &models.StatusEvent{
				PollID:      u.PollID,
				CandidateID: u.CandidateID,
				Stage:       int(t.stage),
				Status:      string(u.Status),
				Attempt:     u.Attempt,
			})
		},
		OnDone: func(out pipeline.Outcome) {
			t.sink.Emit(t.ctx, &models.StatusEvent{
				PollID:      out.PollID,
				CandidateID: out.CandidateID,
				Stage:       int(t.stage),
				Status:      string(out.Status),
				Message:     out.Message,
				Attempt:     out.Attempts,
				Terminal:    true,
				TimedOut:    out.TimedOut,
			})
			if t.onDone != nil {
				t.onDone(out)
			}
		},
	}
}

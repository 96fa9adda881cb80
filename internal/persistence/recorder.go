package persistence

import (
	"context"
	"time"

	"github.com/petrijr/conveyor/pkg/api"
)

// EventRecorder is an api.Observer that appends every status transition
// to an EventStore. It is how the engine's reporting seam feeds the
// append-only run history without the engine owning persistence.
type EventRecorder struct {
	api.NoopObserver

	Events EventStore
}

// NewEventRecorder wraps an EventStore as an Observer.
func NewEventRecorder(events EventStore) *EventRecorder {
	return &EventRecorder{Events: events}
}

func (r *EventRecorder) OnRunStart(ctx context.Context, run *api.Run) {
	_ = r.Events.AppendEvent(ctx, api.RunEvent{
		RunID:    run.ID,
		Workflow: run.Workflow,
		Type:     api.EventRunStarted,
		At:       time.Now(),
		Detail:   run.Event,
	})
}

func (r *EventRecorder) OnRunFinished(ctx context.Context, run *api.Run) {
	_ = r.Events.AppendEvent(ctx, api.RunEvent{
		RunID:    run.ID,
		Workflow: run.Workflow,
		Type:     api.EventRunFinished,
		At:       time.Now(),
		Detail:   string(run.Status),
	})
}

func (r *EventRecorder) OnInstanceStart(ctx context.Context, run *api.Run, inst *api.JobInstance) {
	_ = r.Events.AppendEvent(ctx, api.RunEvent{
		RunID:    run.ID,
		Workflow: run.Workflow,
		Instance: inst.Key,
		Type:     api.EventInstanceStarted,
		At:       time.Now(),
	})
}

func (r *EventRecorder) OnInstanceFinished(ctx context.Context, run *api.Run, inst *api.JobInstance) {
	detail := string(inst.Status)
	if inst.Err != nil {
		detail += ": " + inst.Err.Error()
	}
	_ = r.Events.AppendEvent(ctx, api.RunEvent{
		RunID:    run.ID,
		Workflow: run.Workflow,
		Instance: inst.Key,
		Type:     api.EventInstanceFinished,
		At:       time.Now(),
		Detail:   detail,
	})
}

func (r *EventRecorder) OnStepCompleted(ctx context.Context, run *api.Run, inst *api.JobInstance, step string, idx int, err error, d time.Duration) {
	detail := "ok"
	if err != nil {
		detail = err.Error()
	}
	_ = r.Events.AppendEvent(ctx, api.RunEvent{
		RunID:    run.ID,
		Workflow: run.Workflow,
		Instance: inst.Key,
		Type:     api.EventStepCompleted,
		At:       time.Now(),
		Step:     step,
		Detail:   detail,
	})
}

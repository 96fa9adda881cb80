package api

import "time"

// RunEventType names a recorded status transition.
type RunEventType string

const (
	EventRunStarted       RunEventType = "run_started"
	EventRunFinished      RunEventType = "run_finished"
	EventInstanceStarted  RunEventType = "instance_started"
	EventInstanceFinished RunEventType = "instance_finished"
	EventStepCompleted    RunEventType = "step_completed"
)

// RunEvent is one entry in a run's append-only history: a status
// transition at run, instance or step granularity.
type RunEvent struct {
	RunID    string
	Workflow string

	// Instance is the instance key for instance/step scoped events,
	// empty for run scoped ones.
	Instance string

	Type RunEventType
	At   time.Time

	// Step names the step for EventStepCompleted.
	Step string

	// Detail carries a short human-readable note: the terminal status,
	// or a failure message.
	Detail string
}

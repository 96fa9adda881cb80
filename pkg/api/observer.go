package api

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"
)

// Observer receives status transitions from the engine for display,
// logging, metrics or storage. The engine emits events; it owns no
// persistence of its own.
//
// Implementations should be fast and non-blocking; heavy work should be
// done asynchronously so as not to delay scheduling.
type Observer interface {
	// OnRunStart is called once when a run leaves PENDING, before any
	// instance is admitted.
	OnRunStart(ctx context.Context, run *Run)

	// OnRunFinished is called once when the run reaches a terminal
	// status; every spawned instance is terminal at that point.
	OnRunFinished(ctx context.Context, run *Run)

	// OnInstanceStart is called when an instance is admitted by the
	// scheduler and transitions to RUNNING.
	OnInstanceStart(ctx context.Context, run *Run, inst *JobInstance)

	// OnInstanceFinished is called when an instance reaches a terminal
	// status, including instances cancelled without executing.
	OnInstanceFinished(ctx context.Context, run *Run, inst *JobInstance)

	// OnStepStart is called before a step executes.
	// stepIndex is the 0-based index into the job's steps.
	OnStepStart(ctx context.Context, run *Run, inst *JobInstance, step string, stepIndex int)

	// OnStepCompleted is called after a step finishes, for both
	// successes and failures (err != nil).
	OnStepCompleted(ctx context.Context, run *Run, inst *JobInstance, step string, stepIndex int, err error, duration time.Duration)
}

// NoopObserver is an Observer that does nothing.
// It is used as the default when no observer is configured.
type NoopObserver struct{}

func (NoopObserver) OnRunStart(ctx context.Context, run *Run)                            {}
func (NoopObserver) OnRunFinished(ctx context.Context, run *Run)                         {}
func (NoopObserver) OnInstanceStart(ctx context.Context, run *Run, inst *JobInstance)    {}
func (NoopObserver) OnInstanceFinished(ctx context.Context, run *Run, inst *JobInstance) {}
func (NoopObserver) OnStepStart(ctx context.Context, run *Run, inst *JobInstance, step string, idx int) {
}
func (NoopObserver) OnStepCompleted(ctx context.Context, run *Run, inst *JobInstance, step string, idx int, err error, d time.Duration) {
}

// CompositeObserver fans out events to multiple observers.
type CompositeObserver struct {
	observers []Observer
}

// NewCompositeObserver creates an Observer that forwards events to each
// non-nil observer in obs.
func NewCompositeObserver(obs ...Observer) Observer {
	filtered := make([]Observer, 0, len(obs))
	for _, o := range obs {
		if o != nil {
			filtered = append(filtered, o)
		}
	}
	if len(filtered) == 0 {
		return NoopObserver{}
	}
	if len(filtered) == 1 {
		return filtered[0]
	}
	return &CompositeObserver{observers: filtered}
}

func (c *CompositeObserver) OnRunStart(ctx context.Context, run *Run) {
	for _, o := range c.observers {
		o.OnRunStart(ctx, run)
	}
}

func (c *CompositeObserver) OnRunFinished(ctx context.Context, run *Run) {
	for _, o := range c.observers {
		o.OnRunFinished(ctx, run)
	}
}

func (c *CompositeObserver) OnInstanceStart(ctx context.Context, run *Run, inst *JobInstance) {
	for _, o := range c.observers {
		o.OnInstanceStart(ctx, run, inst)
	}
}

func (c *CompositeObserver) OnInstanceFinished(ctx context.Context, run *Run, inst *JobInstance) {
	for _, o := range c.observers {
		o.OnInstanceFinished(ctx, run, inst)
	}
}

func (c *CompositeObserver) OnStepStart(ctx context.Context, run *Run, inst *JobInstance, step string, idx int) {
	for _, o := range c.observers {
		o.OnStepStart(ctx, run, inst, step, idx)
	}
}

func (c *CompositeObserver) OnStepCompleted(ctx context.Context, run *Run, inst *JobInstance, step string, idx int, err error, d time.Duration) {
	for _, o := range c.observers {
		o.OnStepCompleted(ctx, run, inst, step, idx, err, d)
	}
}

// LoggingObserver writes structured logs using log/slog.
type LoggingObserver struct {
	Logger *slog.Logger
}

// NewLoggingObserver creates an Observer that logs run / instance / step
// lifecycle events using the provided slog.Logger. If logger is nil,
// slog.Default() is used.
func NewLoggingObserver(logger *slog.Logger) Observer {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingObserver{Logger: logger}
}

func (o *LoggingObserver) OnRunStart(ctx context.Context, run *Run) {
	o.Logger.InfoContext(ctx, "run_start",
		slog.String("workflow", run.Workflow),
		slog.String("run_id", run.ID),
		slog.String("event", run.Event),
		slog.Int("instances", len(run.Instances)),
	)
}

func (o *LoggingObserver) OnRunFinished(ctx context.Context, run *Run) {
	level := slog.LevelInfo
	if run.Status == StatusFailed {
		level = slog.LevelError
	}
	o.Logger.Log(ctx, level, "run_finished",
		slog.String("workflow", run.Workflow),
		slog.String("run_id", run.ID),
		slog.String("status", string(run.Status)),
	)
}

func (o *LoggingObserver) OnInstanceStart(ctx context.Context, run *Run, inst *JobInstance) {
	o.Logger.InfoContext(ctx, "instance_start",
		slog.String("run_id", run.ID),
		slog.String("instance", inst.Key),
	)
}

func (o *LoggingObserver) OnInstanceFinished(ctx context.Context, run *Run, inst *JobInstance) {
	level := slog.LevelInfo
	if inst.Status == StatusFailed {
		level = slog.LevelError
	}
	o.Logger.Log(ctx, level, "instance_finished",
		slog.String("run_id", run.ID),
		slog.String("instance", inst.Key),
		slog.String("status", string(inst.Status)),
		slog.Any("error", inst.Err),
	)
}

func (o *LoggingObserver) OnStepStart(ctx context.Context, run *Run, inst *JobInstance, step string, idx int) {
	o.Logger.DebugContext(ctx, "step_start",
		slog.String("run_id", run.ID),
		slog.String("instance", inst.Key),
		slog.String("step", step),
		slog.Int("step_index", idx),
	)
}

func (o *LoggingObserver) OnStepCompleted(ctx context.Context, run *Run, inst *JobInstance, step string, idx int, err error, d time.Duration) {
	level := slog.LevelDebug
	if err != nil {
		level = slog.LevelError
	}
	o.Logger.Log(ctx, level, "step_completed",
		slog.String("run_id", run.ID),
		slog.String("instance", inst.Key),
		slog.String("step", step),
		slog.Int("step_index", idx),
		slog.Duration("duration", d),
		slog.Any("error", err),
	)
}

// BasicMetrics collects simple counters and aggregate step durations.
// It implements Observer and can be combined with LoggingObserver via
// NewCompositeObserver.
type BasicMetrics struct {
	NoopObserver

	runsStarted        atomic.Int64
	runsSucceeded      atomic.Int64
	runsFailed         atomic.Int64
	instancesFinished  atomic.Int64
	instancesCancelled atomic.Int64
	stepsCompleted     atomic.Int64
	totalStepDuration  atomic.Int64 // nanoseconds
}

// BasicMetricsSnapshot is an immutable snapshot of BasicMetrics.
type BasicMetricsSnapshot struct {
	RunsStarted   int64
	RunsSucceeded int64
	RunsFailed    int64
	ActiveRuns    int64

	InstancesFinished  int64
	InstancesCancelled int64

	StepsCompleted  int64
	AvgStepDuration time.Duration
}

func (m *BasicMetrics) OnRunStart(ctx context.Context, run *Run) {
	m.runsStarted.Add(1)
}

func (m *BasicMetrics) OnRunFinished(ctx context.Context, run *Run) {
	if run.Status == StatusSucceeded {
		m.runsSucceeded.Add(1)
	} else {
		m.runsFailed.Add(1)
	}
}

func (m *BasicMetrics) OnInstanceFinished(ctx context.Context, run *Run, inst *JobInstance) {
	m.instancesFinished.Add(1)
	if inst.Status == StatusCancelled {
		m.instancesCancelled.Add(1)
	}
}

func (m *BasicMetrics) OnStepCompleted(ctx context.Context, run *Run, inst *JobInstance, step string, idx int, err error, d time.Duration) {
	// Only count successful steps for average duration.
	if err == nil {
		m.stepsCompleted.Add(1)
		m.totalStepDuration.Add(d.Nanoseconds())
	}
}

// Snapshot returns a snapshot of the current metrics.
func (m *BasicMetrics) Snapshot() BasicMetricsSnapshot {
	started := m.runsStarted.Load()
	succeeded := m.runsSucceeded.Load()
	failed := m.runsFailed.Load()
	steps := m.stepsCompleted.Load()
	totalNs := m.totalStepDuration.Load()

	var avg time.Duration
	if steps > 0 {
		avg = time.Duration(totalNs / steps)
	}

	return BasicMetricsSnapshot{
		RunsStarted:        started,
		RunsSucceeded:      succeeded,
		RunsFailed:         failed,
		ActiveRuns:         started - succeeded - failed,
		InstancesFinished:  m.instancesFinished.Load(),
		InstancesCancelled: m.instancesCancelled.Load(),
		StepsCompleted:     steps,
		AvgStepDuration:    avg,
	}
}

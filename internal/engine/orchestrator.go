package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/petrijr/conveyor/internal/depgraph"
	"github.com/petrijr/conveyor/internal/matrix"
	"github.com/petrijr/conveyor/pkg/api"
)

// execution is the engine's handle on one in-flight run. It implements
// api.Execution.
//
// All dependency-completion bookkeeping runs on a single scheduling
// goroutine: instance updates arrive over a channel and only that
// goroutine writes run state, so no lock guards the completion table or
// the instances.
type execution struct {
	eng         *engineImpl
	wf          api.Workflow
	graph       *depgraph.Graph
	run         *api.Run
	byJob       map[string][]*api.JobInstance
	concurrency int

	cancel     context.CancelFunc
	cancelOnce sync.Once
	done       chan struct{}
}

var _ api.Execution = (*execution)(nil)

// newExecution expands the workflow into job instances, resolves the
// dependency order and starts the scheduling loop.
func (e *engineImpl) newExecution(ctx context.Context, def api.Workflow, event string, concurrency int) (*execution, error) {
	graph, err := depgraph.Resolve(def.Jobs)
	if err != nil {
		return nil, err
	}

	run := &api.Run{
		ID:       uuid.NewString(),
		Workflow: def.Name,
		Event:    event,
		Status:   api.StatusPending,
	}

	byJob := make(map[string][]*api.JobInstance, len(def.Jobs))
	for _, job := range def.Jobs {
		instances, err := matrix.Expand(job)
		if err != nil {
			return nil, err
		}
		byJob[job.Name] = instances
		run.Instances = append(run.Instances, instances...)
	}

	if err := e.runs.SaveRun(run); err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithCancel(ctx)
	x := &execution{
		eng:         e,
		wf:          def,
		graph:       graph,
		run:         run,
		byJob:       byJob,
		concurrency: concurrency,
		cancel:      cancel,
		done:        make(chan struct{}),
	}

	go x.schedule(runCtx)
	return x, nil
}

func (x *execution) Run() *api.Run { return x.run }

func (x *execution) Cancel() {
	x.cancelOnce.Do(x.cancel)
}

func (x *execution) Wait() *api.Run {
	<-x.done
	return x.run
}

// schedule is the orchestrator's single coordination point. It admits a
// job's instances only once all instances of the job's dependencies are
// terminal, caps concurrently running instances at the configured limit,
// and propagates failure by cancelling dependents without executing them.
func (x *execution) schedule(ctx context.Context) {
	defer close(x.done)
	defer x.cancel()

	run := x.run
	total := len(run.Instances)

	run.Status = api.StatusRunning
	run.StartedAt = time.Now()
	_ = x.eng.runs.UpdateRun(run)
	x.eng.observer.OnRunStart(ctx, run)

	// ready is sized for every instance so enqueueing never blocks the
	// scheduling loop; the worker count enforces the concurrency limit.
	ready := make(chan instanceWork, total)
	updates := make(chan instanceUpdate)

	// Workers execute against a private copy of the instance and report
	// state back over updates. Only the scheduling goroutine writes into
	// run.Instances, so persistence snapshots never observe a worker
	// mid-mutation.
	var workers sync.WaitGroup
	for i := 0; i < x.concurrency; i++ {
		workers.Add(1)
		go func() {
			defer workers.Done()
			for w := range ready {
				local := *w.inst
				x.eng.runInstance(ctx, run, w.job, &local, func() {
					updates <- instanceUpdate{slot: w.inst, state: local}
				})
				updates <- instanceUpdate{slot: w.inst, state: local, terminal: true}
			}
		}()
	}

	admitted := make(map[string]bool, len(x.wf.Jobs)) // job admitted or skipped
	remaining := make(map[string]int, len(x.wf.Jobs)) // non-terminal instances per job
	jobBad := make(map[string]bool, len(x.wf.Jobs))   // some instance failed or cancelled
	jobDone := make(map[string]bool, len(x.wf.Jobs))  // all instances terminal
	for name, instances := range x.byJob {
		remaining[name] = len(instances)
	}

	terminal := 0
	cancelRequested := false

	// skipJob marks every instance of a job cancelled without executing.
	// Propagated skips count as terminal immediately.
	skipJob := func(name string, reason error) {
		admitted[name] = true
		for _, inst := range x.byJob[name] {
			inst.Status = api.StatusCancelled
			inst.Err = reason
			now := time.Now()
			inst.StartedAt = now
			inst.FinishedAt = now
			terminal++
			x.eng.observer.OnInstanceFinished(ctx, run, inst)
		}
		remaining[name] = 0
		jobDone[name] = true
		jobBad[name] = true
		_ = x.eng.runs.UpdateRun(run)
	}

	// admitEligible walks jobs in topological order and admits (or
	// skips) every job whose dependencies are all terminal. Skipping a
	// job marks it bad, so transitive dependents are picked up by the
	// same walk.
	admitEligible := func() {
		for _, name := range x.graph.Order {
			if admitted[name] {
				continue
			}

			depsDone := true
			var badDep string
			for _, dep := range x.graph.Needs(name) {
				if jobBad[dep] && badDep == "" {
					badDep = dep
				}
				if !jobDone[dep] {
					depsDone = false
				}
			}

			switch {
			case badDep != "":
				skipJob(name, fmt.Errorf("dependency %s did not succeed", badDep))
			case cancelRequested:
				skipJob(name, context.Canceled)
			case depsDone:
				admitted[name] = true
				job, _ := x.wf.Job(name)
				for _, inst := range x.byJob[name] {
					ready <- instanceWork{job: job, inst: inst}
				}
			}
		}
	}

	admitEligible()

	cancelCh := ctx.Done()
	for terminal < total {
		select {
		case <-cancelCh:
			cancelCh = nil
			cancelRequested = true
			// Stop admitting; queued and running instances observe
			// the cancelled context themselves.
			admitEligible()

		case u := <-updates:
			*u.slot = u.state
			if !u.terminal {
				// RUNNING transition; persist it but nothing completed.
				_ = x.eng.runs.UpdateRun(run)
				continue
			}

			inst := u.slot
			terminal++
			job := inst.JobName
			remaining[job]--
			if inst.Status != api.StatusSucceeded {
				jobBad[job] = true
			}
			if remaining[job] == 0 {
				jobDone[job] = true
			}
			_ = x.eng.runs.UpdateRun(run)
			x.eng.observer.OnInstanceFinished(ctx, run, inst)
			admitEligible()
		}
	}

	close(ready)
	workers.Wait()

	run.Status = runStatus(run, cancelRequested || ctx.Err() != nil)
	run.FinishedAt = time.Now()
	_ = x.eng.runs.UpdateRun(run)
	x.eng.observer.OnRunFinished(ctx, run)
}

type instanceWork struct {
	job  api.Job
	inst *api.JobInstance
}

// instanceUpdate carries a worker's snapshot of one instance back to the
// scheduling loop. slot is the canonical instance inside the run; state
// is the worker-private copy to apply to it.
type instanceUpdate struct {
	slot     *api.JobInstance
	state    api.JobInstance
	terminal bool
}

// runStatus aggregates the terminal run status: SUCCEEDED iff every
// instance succeeded; CANCELLED when cancellation was requested and cut
// the run short; FAILED otherwise.
func runStatus(run *api.Run, cancelled bool) api.Status {
	allOK := true
	for _, inst := range run.Instances {
		if inst.Status != api.StatusSucceeded {
			allOK = false
			break
		}
	}
	switch {
	case allOK:
		return api.StatusSucceeded
	case cancelled:
		return api.StatusCancelled
	default:
		return api.StatusFailed
	}
}

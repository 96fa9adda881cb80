package conveyor

import (
	"fmt"

	"github.com/petrijr/conveyor/pkg/api"
)

// WorkflowBuilder provides a fluent API for defining workflows in code:
//
//	wf := conveyor.NewWorkflow("ci").
//	    On("push", "pull_request").
//	    Job("build", func(j *conveyor.JobBuilder) {
//	        j.Matrix("os", "linux", "macos")
//	        j.Run("compile", "make build")
//	    }).
//	    Job("test", func(j *conveyor.JobBuilder) {
//	        j.Needs("build")
//	        j.Run("unit", "make test")
//	    })
//
//	if err := wf.Register(engine); err != nil {
//	    log.Fatal(err)
//	}
type WorkflowBuilder struct {
	def api.Workflow
}

// NewWorkflow creates a new workflow builder with the given name.
func NewWorkflow(name string) *WorkflowBuilder {
	if name == "" {
		panic("conveyor: workflow name must not be empty")
	}
	return &WorkflowBuilder{
		def: api.Workflow{
			Name: name,
			Jobs: make([]api.Job, 0),
		},
	}
}

// Name returns the workflow name.
func (b *WorkflowBuilder) Name() string {
	return b.def.Name
}

// Definition returns the underlying Workflow.
// Typically used when interacting with lower-level APIs.
func (b *WorkflowBuilder) Definition() Workflow {
	return b.def
}

// On sets the workflow's trigger events.
func (b *WorkflowBuilder) On(events ...string) *WorkflowBuilder {
	b.def.On = append(b.def.On, events...)
	return b
}

// Job appends a job, configured through the given function.
func (b *WorkflowBuilder) Job(name string, configure func(*JobBuilder)) *WorkflowBuilder {
	if name == "" {
		panic("conveyor: job name must not be empty")
	}
	if configure == nil {
		panic(fmt.Sprintf("conveyor: job %q has nil configure function", name))
	}

	jb := &JobBuilder{job: api.Job{Name: name}}
	configure(jb)
	b.def.Jobs = append(b.def.Jobs, jb.job)
	return b
}

// Register validates and registers the built workflow with the given
// engine.
func (b *WorkflowBuilder) Register(eng Engine) error {
	return eng.RegisterWorkflow(b.def)
}

// MustRegister is like Register but panics on error.
// Useful for initialization in main().
func (b *WorkflowBuilder) MustRegister(eng Engine) {
	if err := b.Register(eng); err != nil {
		panic(fmt.Sprintf("conveyor: register workflow %q: %v", b.def.Name, err))
	}
}

// JobBuilder configures one job inside a WorkflowBuilder.
type JobBuilder struct {
	job api.Job
}

// Needs declares dependencies on other jobs by name.
func (j *JobBuilder) Needs(jobs ...string) *JobBuilder {
	j.job.Needs = append(j.job.Needs, jobs...)
	return j
}

// Matrix adds an expansion axis. Axes multiply: two axes with two and
// three values produce six job instances.
func (j *JobBuilder) Matrix(axis string, values ...string) *JobBuilder {
	if axis == "" {
		panic("conveyor: matrix axis name must not be empty")
	}

	j.job.Matrix = append(j.job.Matrix, api.Axis{Name: axis, Values: values})
	return j
}

// Run appends a command step.
func (j *JobBuilder) Run(name, command string) *JobBuilder {
	if name == "" {
		panic("conveyor: step name must not be empty")
	}

	j.job.Steps = append(j.job.Steps, api.Step{Name: name, Run: command})
	return j
}

// RunWithRetry appends a command step that uses the given retry policy.
func (j *JobBuilder) RunWithRetry(name, command string, retry RetryPolicy) *JobBuilder {
	if name == "" {
		panic("conveyor: step name must not be empty")
	}

	// Make a copy so callers can mutate their RetryPolicy after the call
	// without affecting the stored definition.
	r := retry

	j.job.Steps = append(j.job.Steps, api.Step{Name: name, Run: command, Retry: &r})
	return j
}

// Uses appends an action step referencing name@version with the given
// parameters.
func (j *JobBuilder) Uses(name, action string, with map[string]string) *JobBuilder {
	if name == "" {
		panic("conveyor: step name must not be empty")
	}

	j.job.Steps = append(j.job.Steps, api.Step{Name: name, Uses: action, With: with})
	return j
}

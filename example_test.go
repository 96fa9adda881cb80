package conveyor_test

import (
	"context"
	"fmt"
	"log"

	"github.com/petrijr/conveyor"
	"github.com/petrijr/conveyor/pkg/shellenv"
)

// Example_workflowBuilder demonstrates defining and running a simple
// workflow using the high-level WorkflowBuilder API and an in-memory
// engine.
func Example_workflowBuilder() {
	ctx := context.Background()

	wf := conveyor.NewWorkflow("greeting").
		On("push").
		Job("greet", func(j *conveyor.JobBuilder) {
			j.Run("hello", "echo hello gopher")
		})

	eng := conveyor.NewInMemoryEngine(shellenv.New())

	if err := wf.Register(eng); err != nil {
		log.Fatal(err)
	}

	run, err := eng.Run(ctx, wf.Name(), conveyor.RunOptions{})
	if err != nil {
		log.Fatal(err)
	}

	fmt.Printf("workflow %q finished with status %s\n", run.Workflow, run.Status)
	// Output: workflow "greeting" finished with status SUCCEEDED
}

// Example_matrix demonstrates matrix expansion: one job definition
// fans out into an instance per axis value combination.
func Example_matrix() {
	ctx := context.Background()

	wf := conveyor.NewWorkflow("matrix-build").
		On("push").
		Job("build", func(j *conveyor.JobBuilder) {
			j.Matrix("os", "linux", "macos")
			j.Matrix("mode", "debug", "release")
			j.Run("compile", "echo ${{ matrix.os }}/${{ matrix.mode }}")
		})

	eng := conveyor.NewInMemoryEngine(shellenv.New())

	if err := wf.Register(eng); err != nil {
		log.Fatal(err)
	}

	run, err := eng.Run(ctx, wf.Name(), conveyor.RunOptions{})
	if err != nil {
		log.Fatal(err)
	}

	for _, inst := range run.Instances {
		fmt.Println(inst.Name)
	}
	// Output:
	// build (linux, debug)
	// build (linux, release)
	// build (macos, debug)
	// build (macos, release)
}

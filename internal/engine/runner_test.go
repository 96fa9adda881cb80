package engine

import (
	"context"
	"testing"

	"github.com/petrijr/conveyor/pkg/api"
)

func TestFailFastWithinInstance(t *testing.T) {
	ctx := context.Background()
	env := newFakeEnv()
	eng := NewInMemoryEngine(env)

	mustRegister(t, eng, api.Workflow{
		Name: "ci",
		On:   []string{"push"},
		Jobs: []api.Job{{
			Name: "build",
			Steps: []api.Step{
				{Name: "first", Run: "ok"},
				{Name: "second", Run: "fail:3"},
				{Name: "third", Run: "never"},
			},
		}},
	})

	run, err := eng.Run(ctx, "ci", api.RunOptions{})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	inst, _ := run.Instance("build")
	if inst.Status != api.StatusFailed {
		t.Fatalf("expected FAILED, got %s", inst.Status)
	}
	if len(inst.Steps) != 2 {
		t.Fatalf("expected 2 executed steps, got %d", len(inst.Steps))
	}
	if inst.Steps[1].ExitCode != 3 {
		t.Fatalf("expected exit code 3, got %d", inst.Steps[1].ExitCode)
	}

	failed, ok := inst.FailedStep()
	if !ok || failed.Step != "second" {
		t.Fatalf("FailedStep should name the second step, got %+v ok=%v", failed, ok)
	}

	for _, cmd := range env.Commands() {
		if cmd == "build: never" {
			t.Fatalf("step after the failure must not execute")
		}
	}
}

func TestStepRetrySucceedsAfterTransientFailures(t *testing.T) {
	ctx := context.Background()
	eng := NewInMemoryEngine(newFakeEnv())

	mustRegister(t, eng, api.Workflow{
		Name: "ci",
		On:   []string{"push"},
		Jobs: []api.Job{{
			Name: "test",
			Steps: []api.Step{{
				Name:  "flaky",
				Run:   "flaky:2",
				Retry: &api.RetryPolicy{MaxAttempts: 3},
			}},
		}},
	})

	run, err := eng.Run(ctx, "ci", api.RunOptions{})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	inst, _ := run.Instance("test")
	if inst.Status != api.StatusSucceeded {
		t.Fatalf("expected SUCCEEDED after retries, got %s (err=%v)", inst.Status, inst.Err)
	}
	if inst.Steps[0].Attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", inst.Steps[0].Attempts)
	}
}

func TestStepRetryExhaustionFailsInstance(t *testing.T) {
	ctx := context.Background()
	eng := NewInMemoryEngine(newFakeEnv())

	mustRegister(t, eng, api.Workflow{
		Name: "ci",
		On:   []string{"push"},
		Jobs: []api.Job{{
			Name: "test",
			Steps: []api.Step{{
				Name:  "flaky",
				Run:   "flaky:5",
				Retry: &api.RetryPolicy{MaxAttempts: 2},
			}},
		}},
	})

	run, err := eng.Run(ctx, "ci", api.RunOptions{})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	inst, _ := run.Instance("test")
	if inst.Status != api.StatusFailed {
		t.Fatalf("expected FAILED, got %s", inst.Status)
	}
	if inst.Steps[0].Attempts != 2 {
		t.Fatalf("expected 2 attempts, got %d", inst.Steps[0].Attempts)
	}
}

func TestActionStepRunsThroughEnvironment(t *testing.T) {
	ctx := context.Background()
	env := newFakeEnv()
	eng := NewInMemoryEngine(env)

	mustRegister(t, eng, api.Workflow{
		Name: "ci",
		On:   []string{"push"},
		Jobs: []api.Job{{
			Name: "test",
			Matrix: []api.Axis{
				{Name: "toolchain", Values: []string{"stable"}},
			},
			Steps: []api.Step{
				{Name: "setup", Uses: "setup-toolchain@v1", With: map[string]string{"version": "${{ matrix.toolchain }}"}},
				{Name: "test", Run: "ok"},
			},
		}},
	})

	run, err := eng.Run(ctx, "ci", api.RunOptions{})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if run.Status != api.StatusSucceeded {
		t.Fatalf("expected SUCCEEDED, got %s", run.Status)
	}

	if len(env.actions) != 1 || env.actions[0] != "test/toolchain=stable: setup-toolchain@v1" {
		t.Fatalf("unexpected action invocations: %v", env.actions)
	}
}

func TestMalformedActionReferenceFailsInstance(t *testing.T) {
	ctx := context.Background()
	eng := NewInMemoryEngine(newFakeEnv())

	mustRegister(t, eng, api.Workflow{
		Name: "ci",
		On:   []string{"push"},
		Jobs: []api.Job{{
			Name:  "test",
			Steps: []api.Step{{Name: "setup", Uses: "no-version-here"}},
		}},
	})

	run, err := eng.Run(ctx, "ci", api.RunOptions{})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	inst, _ := run.Instance("test")
	if inst.Status != api.StatusFailed {
		t.Fatalf("expected FAILED, got %s", inst.Status)
	}
}

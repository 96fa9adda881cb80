package matrix

import (
	"errors"
	"testing"

	"github.com/petrijr/conveyor/pkg/api"
)

func TestExpandNoMatrixYieldsSingleInstance(t *testing.T) {
	job := api.Job{Name: "check", Steps: []api.Step{{Run: "true"}}}

	instances, err := Expand(job)
	if err != nil {
		t.Fatalf("Expand failed: %v", err)
	}
	if len(instances) != 1 {
		t.Fatalf("expected 1 instance, got %d", len(instances))
	}
	if instances[0].Key != "check" || instances[0].Name != "check" {
		t.Fatalf("unexpected instance identity: key=%q name=%q", instances[0].Key, instances[0].Name)
	}
	if instances[0].Status != api.StatusPending {
		t.Fatalf("expected PENDING, got %s", instances[0].Status)
	}
}

func TestExpandProducesFullProduct(t *testing.T) {
	job := api.Job{
		Name: "test",
		Matrix: []api.Axis{
			{Name: "toolchain", Values: []string{"stable", "1.43.0"}},
			{Name: "os", Values: []string{"linux", "macos", "windows"}},
		},
	}

	instances, err := Expand(job)
	if err != nil {
		t.Fatalf("Expand failed: %v", err)
	}
	if len(instances) != 6 {
		t.Fatalf("expected 2*3=6 instances, got %d", len(instances))
	}

	keys := make(map[string]bool)
	for _, inst := range instances {
		if keys[inst.Key] {
			t.Fatalf("duplicate instance key %q", inst.Key)
		}
		keys[inst.Key] = true
	}

	// First axis varies slowest, declaration order preserved in names.
	if instances[0].Key != "test/toolchain=stable/os=linux" {
		t.Fatalf("unexpected first key: %q", instances[0].Key)
	}
	if instances[0].Name != "test (stable, linux)" {
		t.Fatalf("unexpected first name: %q", instances[0].Name)
	}
	if instances[5].Key != "test/toolchain=1.43.0/os=windows" {
		t.Fatalf("unexpected last key: %q", instances[5].Key)
	}

	if got := instances[3].MatrixValue("toolchain"); got != "1.43.0" {
		t.Fatalf("expected toolchain=1.43.0, got %q", got)
	}
}

func TestExpandEmptyAxisIsInvalid(t *testing.T) {
	job := api.Job{
		Name: "test",
		Matrix: []api.Axis{
			{Name: "toolchain", Values: nil},
		},
	}

	_, err := Expand(job)
	var invalid *api.InvalidMatrixError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected InvalidMatrixError, got %v", err)
	}
	if invalid.Job != "test" || invalid.Axis != "toolchain" {
		t.Fatalf("error does not name the offender: %v", invalid)
	}
}

func TestExpandIsPure(t *testing.T) {
	job := api.Job{
		Name: "test",
		Matrix: []api.Axis{
			{Name: "toolchain", Values: []string{"stable", "1.43.0"}},
		},
	}

	first, err := Expand(job)
	if err != nil {
		t.Fatalf("Expand failed: %v", err)
	}
	second, err := Expand(job)
	if err != nil {
		t.Fatalf("Expand failed: %v", err)
	}

	for i := range first {
		if first[i].Key != second[i].Key || first[i].Name != second[i].Name {
			t.Fatalf("expansion is not deterministic at %d: %q vs %q", i, first[i].Key, second[i].Key)
		}
	}
}

func TestInterpolateBindsMatrixValues(t *testing.T) {
	job := api.Job{
		Name: "test",
		Matrix: []api.Axis{
			{Name: "toolchain", Values: []string{"1.43.0"}},
		},
	}
	instances, err := Expand(job)
	if err != nil {
		t.Fatalf("Expand failed: %v", err)
	}

	step := api.Step{
		Name: "setup",
		Uses: "setup-toolchain@v1",
		With: map[string]string{"version": "${{ matrix.toolchain }}"},
	}
	bound := Interpolate(step, instances[0])

	if bound.With["version"] != "1.43.0" {
		t.Fatalf("expected interpolated version, got %q", bound.With["version"])
	}
	// The original step must be untouched.
	if step.With["version"] != "${{ matrix.toolchain }}" {
		t.Fatalf("Interpolate mutated the input step: %q", step.With["version"])
	}
}

func TestInterpolateCommandText(t *testing.T) {
	inst := &api.JobInstance{Values: map[string]string{"os": "linux"}}
	step := api.Step{Run: "echo building for ${{matrix.os}}"}

	bound := Interpolate(step, inst)
	if bound.Run != "echo building for linux" {
		t.Fatalf("unexpected command: %q", bound.Run)
	}
}

// Package matrix expands a job's matrix axes into concrete job instances.
//
// Expansion is a pure function of the job definition: no clocks, no IDs,
// no side effects. This keeps instance naming deterministic and lets the
// scheduler be tested without executing anything.
package matrix

import (
	"strings"

	"github.com/petrijr/conveyor/pkg/api"
)

// Expand produces the ordered set of job instances for one job: the full
// cartesian product of its matrix axes, each instance bound to one value
// per axis. Axis declaration order is preserved both in iteration order
// (the last axis varies fastest) and in instance naming.
//
// A job with no matrix expands to exactly one instance. An axis with an
// empty value list yields *api.InvalidMatrixError.
func Expand(job api.Job) ([]*api.JobInstance, error) {
	for _, axis := range job.Matrix {
		if len(axis.Values) == 0 {
			return nil, &api.InvalidMatrixError{Job: job.Name, Axis: axis.Name}
		}
	}

	if len(job.Matrix) == 0 {
		return []*api.JobInstance{newInstance(job, nil)}, nil
	}

	combos := cartesian(job.Matrix)
	instances := make([]*api.JobInstance, 0, len(combos))
	for _, combo := range combos {
		instances = append(instances, newInstance(job, combo))
	}
	return instances, nil
}

// cartesian enumerates the product of the axis value lists. The returned
// combinations are ordered with the first axis varying slowest.
func cartesian(axes []api.Axis) [][]string {
	combos := [][]string{nil}
	for _, axis := range axes {
		next := make([][]string, 0, len(combos)*len(axis.Values))
		for _, combo := range combos {
			for _, v := range axis.Values {
				extended := make([]string, len(combo), len(combo)+1)
				copy(extended, combo)
				next = append(next, append(extended, v))
			}
		}
		combos = next
	}
	return combos
}

func newInstance(job api.Job, combo []string) *api.JobInstance {
	inst := &api.JobInstance{
		Key:     job.Name,
		Name:    job.Name,
		JobName: job.Name,
		Status:  api.StatusPending,
	}

	if len(combo) == 0 {
		return inst
	}

	inst.Values = make(map[string]string, len(combo))
	keyParts := make([]string, 0, len(combo))
	for i, axis := range job.Matrix {
		inst.Axes = append(inst.Axes, axis.Name)
		inst.Values[axis.Name] = combo[i]
		keyParts = append(keyParts, axis.Name+"="+combo[i])
	}

	inst.Key = job.Name + "/" + strings.Join(keyParts, "/")
	inst.Name = job.Name + " (" + strings.Join(combo, ", ") + ")"
	return inst
}

// Interpolate resolves "${{ matrix.<axis> }}" placeholders in a step's
// command and parameter mapping against the instance's bound values,
// returning a copy of the step. Steps without placeholders are returned
// unchanged.
func Interpolate(step api.Step, inst *api.JobInstance) api.Step {
	if len(inst.Values) == 0 {
		return step
	}

	pairs := make([]string, 0, len(inst.Values)*4)
	for axis, value := range inst.Values {
		pairs = append(pairs, "${{ matrix."+axis+" }}", value)
		pairs = append(pairs, "${{matrix."+axis+"}}", value)
	}
	r := strings.NewReplacer(pairs...)

	step.Run = r.Replace(step.Run)
	if len(step.With) > 0 {
		with := make(map[string]string, len(step.With))
		for k, v := range step.With {
			with[k] = r.Replace(v)
		}
		step.With = with
	}
	return step
}

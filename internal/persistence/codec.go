package persistence

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/petrijr/conveyor/pkg/api"
)

// Stored form of a run's instances. Instance errors are flattened to
// strings so outcomes survive serialization; everything the engine
// persists is concrete and JSON-friendly.

type storedInstance struct {
	Key        string            `json:"key"`
	Name       string            `json:"name"`
	JobName    string            `json:"job"`
	Axes       []string          `json:"axes,omitempty"`
	Values     map[string]string `json:"values,omitempty"`
	Status     api.Status        `json:"status"`
	Steps      []api.StepOutcome `json:"steps,omitempty"`
	Err        string            `json:"error,omitempty"`
	StartedAt  time.Time         `json:"started_at,omitzero"`
	FinishedAt time.Time         `json:"finished_at,omitzero"`
}

// EncodeInstances serializes a run's instances for storage.
func EncodeInstances(instances []*api.JobInstance) ([]byte, error) {
	stored := make([]storedInstance, 0, len(instances))
	for _, inst := range instances {
		si := storedInstance{
			Key:        inst.Key,
			Name:       inst.Name,
			JobName:    inst.JobName,
			Axes:       inst.Axes,
			Values:     inst.Values,
			Status:     inst.Status,
			Steps:      inst.Steps,
			StartedAt:  inst.StartedAt,
			FinishedAt: inst.FinishedAt,
		}
		if inst.Err != nil {
			si.Err = inst.Err.Error()
		}
		stored = append(stored, si)
	}
	return json.Marshal(stored)
}

// DecodeInstances is the inverse of EncodeInstances.
func DecodeInstances(data []byte) ([]*api.JobInstance, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var stored []storedInstance
	if err := json.Unmarshal(data, &stored); err != nil {
		return nil, err
	}
	instances := make([]*api.JobInstance, 0, len(stored))
	for _, si := range stored {
		inst := &api.JobInstance{
			Key:        si.Key,
			Name:       si.Name,
			JobName:    si.JobName,
			Axes:       si.Axes,
			Values:     si.Values,
			Status:     si.Status,
			Steps:      si.Steps,
			StartedAt:  si.StartedAt,
			FinishedAt: si.FinishedAt,
		}
		if si.Err != "" {
			inst.Err = errors.New(si.Err)
		}
		instances = append(instances, inst)
	}
	return instances, nil
}

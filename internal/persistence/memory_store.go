package persistence

import (
	"sync"

	"github.com/petrijr/conveyor/pkg/api"
)

// InMemoryStore is a simple, goroutine-safe implementation of
// WorkflowStore and RunStore backed by maps.
//
// Runs are stored as snapshots: the engine keeps mutating its own run
// value between UpdateRun calls, so readers must never share memory with
// it.
type InMemoryStore struct {
	mu        sync.RWMutex
	workflows map[string]api.Workflow
	runs      map[string]*api.Run
	order     []string
}

// NewInMemoryStore creates a new InMemoryStore.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		workflows: make(map[string]api.Workflow),
		runs:      make(map[string]*api.Run),
	}
}

// Ensure InMemoryStore implements the interfaces.
var _ WorkflowStore = (*InMemoryStore)(nil)

var _ RunStore = (*InMemoryStore)(nil)

func (s *InMemoryStore) SaveWorkflow(def api.Workflow) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.workflows[def.Name] = def
	return nil
}

func (s *InMemoryStore) GetWorkflow(name string) (api.Workflow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	def, ok := s.workflows[name]
	if !ok {
		return api.Workflow{}, ErrWorkflowNotFound
	}

	return def, nil
}

func (s *InMemoryStore) ListWorkflows() ([]api.Workflow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]api.Workflow, 0, len(s.workflows))
	for _, def := range s.workflows {
		out = append(out, def)
	}
	return out, nil
}

func (s *InMemoryStore) SaveRun(run *api.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.runs[run.ID]; !ok {
		s.order = append(s.order, run.ID)
	}
	s.runs[run.ID] = snapshotRun(run)
	return nil
}

func (s *InMemoryStore) UpdateRun(run *api.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.runs[run.ID]; !ok {
		return ErrRunNotFound
	}

	s.runs[run.ID] = snapshotRun(run)
	return nil
}

func (s *InMemoryStore) GetRun(id string) (*api.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, ok := s.runs[id]
	if !ok {
		return nil, ErrRunNotFound
	}

	return snapshotRun(run), nil
}

func (s *InMemoryStore) ListRuns(filter RunFilter) ([]*api.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*api.Run
	for _, id := range s.order {
		run := s.runs[id]
		if filter.Workflow != "" && run.Workflow != filter.Workflow {
			continue
		}
		if filter.Status != "" && run.Status != filter.Status {
			continue
		}
		result = append(result, snapshotRun(run))
	}

	return result, nil
}

func snapshotRun(run *api.Run) *api.Run {
	copied := *run
	copied.Instances = make([]*api.JobInstance, 0, len(run.Instances))
	for _, inst := range run.Instances {
		ic := *inst
		ic.Steps = append([]api.StepOutcome(nil), inst.Steps...)
		copied.Instances = append(copied.Instances, &ic)
	}
	return &copied
}

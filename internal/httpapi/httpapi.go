// Package httpapi exposes run state over HTTP for dashboards and
// scripting. It is read-only: runs are started through the engine, the
// API only reports on them.
package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/petrijr/conveyor/internal/persistence"
	"github.com/petrijr/conveyor/pkg/api"
)

// Server serves the run inspection API.
type Server struct {
	engine api.Engine
	events persistence.EventStore
	logger *slog.Logger
}

// NewServer creates a Server. events may be nil; the events endpoint
// then reports 404 for every run.
func NewServer(engine api.Engine, events persistence.EventStore, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if events == nil {
		events = persistence.NoopEventStore{}
	}
	return &Server{engine: engine, events: events, logger: logger}
}

// Handler builds the route tree.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Route("/runs", func(r chi.Router) {
		r.Get("/", s.handleListRuns)
		r.Get("/{id}", s.handleGetRun)
		r.Get("/{id}/events", s.handleRunEvents)
	})

	return r
}

type runSummary struct {
	ID         string    `json:"id"`
	Workflow   string    `json:"workflow"`
	Event      string    `json:"event"`
	Status     string    `json:"status"`
	Instances  int       `json:"instances"`
	StartedAt  time.Time `json:"started_at,omitzero"`
	FinishedAt time.Time `json:"finished_at,omitzero"`
}

type instanceDetail struct {
	Key        string            `json:"key"`
	Name       string            `json:"name"`
	Job        string            `json:"job"`
	Values     map[string]string `json:"values,omitempty"`
	Status     string            `json:"status"`
	Steps      []api.StepOutcome `json:"steps,omitempty"`
	Error      string            `json:"error,omitempty"`
	StartedAt  time.Time         `json:"started_at,omitzero"`
	FinishedAt time.Time         `json:"finished_at,omitzero"`
}

type runDetail struct {
	runSummary
	InstanceList []instanceDetail `json:"instance_list"`
}

func summarize(run *api.Run) runSummary {
	return runSummary{
		ID:         run.ID,
		Workflow:   run.Workflow,
		Event:      run.Event,
		Status:     string(run.Status),
		Instances:  len(run.Instances),
		StartedAt:  run.StartedAt,
		FinishedAt: run.FinishedAt,
	}
}

func detail(run *api.Run) runDetail {
	d := runDetail{runSummary: summarize(run)}
	for _, inst := range run.Instances {
		id := instanceDetail{
			Key:        inst.Key,
			Name:       inst.Name,
			Job:        inst.JobName,
			Values:     inst.Values,
			Status:     string(inst.Status),
			Steps:      inst.Steps,
			StartedAt:  inst.StartedAt,
			FinishedAt: inst.FinishedAt,
		}
		if inst.Err != nil {
			id.Error = inst.Err.Error()
		}
		d.InstanceList = append(d.InstanceList, id)
	}
	return d
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	opts := api.RunListOptions{
		Workflow: r.URL.Query().Get("workflow"),
		Status:   api.Status(r.URL.Query().Get("status")),
	}

	runs, err := s.engine.ListRuns(r.Context(), opts)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}

	out := make([]runSummary, 0, len(runs))
	for _, run := range runs {
		out = append(out, summarize(run))
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	run, err := s.engine.GetRun(r.Context(), id)
	if err != nil {
		if errors.Is(err, persistence.ErrRunNotFound) {
			s.writeError(w, http.StatusNotFound, err)
			return
		}
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}

	s.writeJSON(w, http.StatusOK, detail(run))
}

func (s *Server) handleRunEvents(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	// The run must exist even when it has no recorded events.
	if _, err := s.engine.GetRun(r.Context(), id); err != nil {
		if errors.Is(err, persistence.ErrRunNotFound) {
			s.writeError(w, http.StatusNotFound, err)
			return
		}
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}

	events, err := s.events.ListEvents(r.Context(), id)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	if events == nil {
		events = []api.RunEvent{}
	}
	s.writeJSON(w, http.StatusOK, events)
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("write response failed", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, code int, err error) {
	s.writeJSON(w, code, map[string]string{"error": err.Error()})
}

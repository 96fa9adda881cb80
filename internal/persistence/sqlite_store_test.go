package persistence

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/petrijr/conveyor/pkg/api"
)

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("sql.Open failed: %v", err)
	}
	db.SetMaxOpenConns(1)

	t.Cleanup(func() {
		_ = db.Close()
	})

	return db
}

func newTestSQLiteStore(t *testing.T) *SQLiteRunStore {
	t.Helper()

	store, err := NewSQLiteRunStore(newTestDB(t))
	if err != nil {
		t.Fatalf("NewSQLiteRunStore failed: %v", err)
	}
	return store
}

func TestSQLiteRunStore_SaveGetUpdate(t *testing.T) {
	store := newTestSQLiteStore(t)

	run := &api.Run{
		ID:        "run-1",
		Workflow:  "ci",
		Event:     "push",
		Status:    api.StatusRunning,
		StartedAt: time.Now(),
		Instances: []*api.JobInstance{
			{
				Key:     "build/os=linux",
				Name:    "build (linux)",
				JobName: "build",
				Axes:    []string{"os"},
				Values:  map[string]string{"os": "linux"},
				Status:  api.StatusSucceeded,
				Steps: []api.StepOutcome{
					{Step: "compile", ExitCode: 0, Output: "ok\n", Attempts: 1},
				},
			},
			{
				Key:     "build/os=macos",
				Name:    "build (macos)",
				JobName: "build",
				Axes:    []string{"os"},
				Values:  map[string]string{"os": "macos"},
				Status:  api.StatusFailed,
				Err:     errors.New("step compile failed"),
			},
		},
	}

	if err := store.SaveRun(run); err != nil {
		t.Fatalf("SaveRun failed: %v", err)
	}

	got, err := store.GetRun("run-1")
	if err != nil {
		t.Fatalf("GetRun failed: %v", err)
	}
	if got.Workflow != "ci" || got.Event != "push" {
		t.Errorf("round trip lost run fields: %+v", got)
	}
	if len(got.Instances) != 2 {
		t.Fatalf("got %d instances, want 2", len(got.Instances))
	}
	if got.Instances[0].Values["os"] != "linux" {
		t.Errorf("instance values lost: %+v", got.Instances[0])
	}
	if len(got.Instances[0].Steps) != 1 || got.Instances[0].Steps[0].Step != "compile" {
		t.Errorf("step outcomes lost: %+v", got.Instances[0].Steps)
	}
	if got.Instances[1].Err == nil || got.Instances[1].Err.Error() != "step compile failed" {
		t.Errorf("instance error lost: %v", got.Instances[1].Err)
	}

	run.Status = api.StatusFailed
	run.FinishedAt = time.Now()
	if err := store.UpdateRun(run); err != nil {
		t.Fatalf("UpdateRun failed: %v", err)
	}

	got, err = store.GetRun("run-1")
	if err != nil {
		t.Fatalf("GetRun after update failed: %v", err)
	}
	if got.Status != api.StatusFailed {
		t.Errorf("Status = %v, want %v", got.Status, api.StatusFailed)
	}
	if got.FinishedAt.IsZero() {
		t.Error("FinishedAt not persisted")
	}
}

func TestSQLiteRunStore_GetMissing(t *testing.T) {
	store := newTestSQLiteStore(t)

	_, err := store.GetRun("nope")
	if !errors.Is(err, ErrRunNotFound) {
		t.Errorf("GetRun error = %v, want ErrRunNotFound", err)
	}
}

func TestSQLiteRunStore_UpdateMissing(t *testing.T) {
	store := newTestSQLiteStore(t)

	err := store.UpdateRun(&api.Run{ID: "nope", Status: api.StatusFailed})
	if !errors.Is(err, ErrRunNotFound) {
		t.Errorf("UpdateRun error = %v, want ErrRunNotFound", err)
	}
}

func TestSQLiteRunStore_ListFilters(t *testing.T) {
	store := newTestSQLiteStore(t)

	base := time.Now()
	runs := []*api.Run{
		{ID: "r1", Workflow: "ci", Event: "push", Status: api.StatusSucceeded, StartedAt: base},
		{ID: "r2", Workflow: "ci", Event: "pull_request", Status: api.StatusFailed, StartedAt: base.Add(time.Second)},
		{ID: "r3", Workflow: "release", Event: "push", Status: api.StatusSucceeded, StartedAt: base.Add(2 * time.Second)},
	}
	for _, run := range runs {
		if err := store.SaveRun(run); err != nil {
			t.Fatalf("SaveRun(%s) failed: %v", run.ID, err)
		}
	}

	all, err := store.ListRuns(RunFilter{})
	if err != nil {
		t.Fatalf("ListRuns failed: %v", err)
	}
	if len(all) != 3 || all[0].ID != "r1" || all[2].ID != "r3" {
		t.Errorf("unexpected result: %+v", all)
	}

	ci, err := store.ListRuns(RunFilter{Workflow: "ci"})
	if err != nil {
		t.Fatalf("ListRuns(workflow) failed: %v", err)
	}
	if len(ci) != 2 {
		t.Errorf("workflow filter returned %d runs, want 2", len(ci))
	}

	failed, err := store.ListRuns(RunFilter{Workflow: "ci", Status: api.StatusFailed})
	if err != nil {
		t.Fatalf("ListRuns(workflow+status) failed: %v", err)
	}
	if len(failed) != 1 || failed[0].ID != "r2" {
		t.Errorf("combined filter returned %+v", failed)
	}
}

func TestSQLiteEventStore_AppendList(t *testing.T) {
	store, err := NewSQLiteEventStore(newTestDB(t))
	if err != nil {
		t.Fatalf("NewSQLiteEventStore failed: %v", err)
	}
	ctx := context.Background()

	events := []api.RunEvent{
		{RunID: "run-1", Workflow: "ci", Type: api.EventRunStarted},
		{RunID: "run-1", Workflow: "ci", Instance: "build", Type: api.EventInstanceStarted},
		{RunID: "run-1", Workflow: "ci", Instance: "build", Type: api.EventStepCompleted, Step: "compile", Detail: "exit 0"},
		{RunID: "run-2", Workflow: "ci", Type: api.EventRunStarted},
	}
	for _, ev := range events {
		if err := store.AppendEvent(ctx, ev); err != nil {
			t.Fatalf("AppendEvent failed: %v", err)
		}
	}

	got, err := store.ListEvents(ctx, "run-1")
	if err != nil {
		t.Fatalf("ListEvents failed: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d events, want 3", len(got))
	}
	if got[2].Type != api.EventStepCompleted || got[2].Step != "compile" {
		t.Errorf("step event lost fields: %+v", got[2])
	}
	for i, ev := range got {
		if ev.At.IsZero() {
			t.Errorf("event %d has zero timestamp", i)
		}
	}
}

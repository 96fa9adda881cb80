package shellenv

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/petrijr/conveyor/pkg/api"
)

func newSession(t *testing.T, opts ...Option) *Session {
	t.Helper()
	env := New(append([]Option{WithBaseDir(t.TempDir())}, opts...)...)
	run := &api.Run{ID: "run-1"}
	inst := &api.JobInstance{Key: "build/os=linux", JobName: "build", Values: map[string]string{"os": "linux"}}
	s, err := env.Prepare(context.Background(), run, inst)
	if err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s.(*Session)
}

func TestRunCommandCapturesOutput(t *testing.T) {
	s := newSession(t)

	res, err := s.RunCommand(context.Background(), "echo hello")
	if err != nil {
		t.Fatalf("RunCommand() error = %v", err)
	}
	if res.ExitCode != 0 {
		t.Errorf("ExitCode = %d, want 0", res.ExitCode)
	}
	if res.Output != "hello\n" {
		t.Errorf("Output = %q, want %q", res.Output, "hello\n")
	}
	if res.Duration <= 0 {
		t.Error("expected a positive duration")
	}
}

func TestRunCommandReportsExitCodeWithoutError(t *testing.T) {
	s := newSession(t)

	res, err := s.RunCommand(context.Background(), "exit 3")
	if err != nil {
		t.Fatalf("RunCommand() error = %v", err)
	}
	if res.ExitCode != 3 {
		t.Errorf("ExitCode = %d, want 3", res.ExitCode)
	}
}

func TestRunCommandExposesMatrixValues(t *testing.T) {
	s := newSession(t)

	res, err := s.RunCommand(context.Background(), "echo $CONVEYOR_MATRIX_OS")
	if err != nil {
		t.Fatalf("RunCommand() error = %v", err)
	}
	if strings.TrimSpace(res.Output) != "linux" {
		t.Errorf("Output = %q, want matrix value %q", res.Output, "linux")
	}
}

func TestRunCommandRunsInWorkspace(t *testing.T) {
	s := newSession(t)

	res, err := s.RunCommand(context.Background(), "pwd")
	if err != nil {
		t.Fatalf("RunCommand() error = %v", err)
	}
	if strings.TrimSpace(res.Output) != s.Dir() {
		t.Errorf("pwd = %q, want workspace %q", strings.TrimSpace(res.Output), s.Dir())
	}
}

func TestSetupToolchainAction(t *testing.T) {
	s := newSession(t, WithToolchains("1.43.0"))

	ref := api.ActionRef{Name: "setup-toolchain", Version: "v1"}
	if _, err := s.RunAction(context.Background(), ref, map[string]string{"version": "1.43.0"}); err != nil {
		t.Fatalf("RunAction() error = %v", err)
	}

	res, err := s.RunCommand(context.Background(), "echo $CONVEYOR_TOOLCHAIN")
	if err != nil {
		t.Fatalf("RunCommand() error = %v", err)
	}
	if strings.TrimSpace(res.Output) != "1.43.0" {
		t.Errorf("CONVEYOR_TOOLCHAIN = %q, want %q", strings.TrimSpace(res.Output), "1.43.0")
	}
}

func TestSetupToolchainUnavailableVersion(t *testing.T) {
	s := newSession(t)

	ref := api.ActionRef{Name: "setup-toolchain", Version: "v1"}
	_, err := s.RunAction(context.Background(), ref, map[string]string{"version": "0.9.9"})

	var envErr *api.EnvironmentError
	if !errors.As(err, &envErr) {
		t.Fatalf("error = %v, want *api.EnvironmentError", err)
	}
	if !strings.Contains(envErr.Reason, "0.9.9") {
		t.Errorf("Reason = %q, want it to name the version", envErr.Reason)
	}
}

func TestUnknownAction(t *testing.T) {
	s := newSession(t)

	_, err := s.RunAction(context.Background(), api.ActionRef{Name: "deploy", Version: "v9"}, nil)

	var envErr *api.EnvironmentError
	if !errors.As(err, &envErr) {
		t.Fatalf("error = %v, want *api.EnvironmentError", err)
	}
}

func TestCustomAction(t *testing.T) {
	called := false
	s := newSession(t, WithAction("notify", "v1", func(ctx context.Context, s *Session, with map[string]string) (api.ExecResult, error) {
		called = true
		return api.ExecResult{Output: "sent to " + with["channel"] + "\n"}, nil
	}))

	res, err := s.RunAction(context.Background(), api.ActionRef{Name: "notify", Version: "v1"}, map[string]string{"channel": "ci"})
	if err != nil {
		t.Fatalf("RunAction() error = %v", err)
	}
	if !called {
		t.Fatal("custom action was not invoked")
	}
	if res.Output != "sent to ci\n" {
		t.Errorf("Output = %q", res.Output)
	}
}

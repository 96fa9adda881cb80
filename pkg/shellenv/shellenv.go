// Package shellenv is the reference Environment implementation: it runs
// command steps through the system shell and serves a small registry of
// builtin versioned actions. Each job instance gets its own working
// directory under a base path.
package shellenv

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/petrijr/conveyor/pkg/api"
)

// ActionFunc implements one versioned action. It receives the session
// it runs inside and the step's parameter mapping.
type ActionFunc func(ctx context.Context, s *Session, with map[string]string) (api.ExecResult, error)

// Environment executes steps as local shell processes. Safe for
// concurrent use; every Prepare call returns an independent session.
type Environment struct {
	baseDir    string
	shell      string
	toolchains map[string]bool
	actions    map[string]ActionFunc
}

var _ api.Environment = (*Environment)(nil)

// Option configures an Environment.
type Option func(*Environment)

// WithBaseDir sets the directory under which per-instance workspaces are
// created. Defaults to the system temp directory.
func WithBaseDir(dir string) Option {
	return func(e *Environment) { e.baseDir = dir }
}

// WithShell overrides the shell binary used for command steps.
func WithShell(shell string) Option {
	return func(e *Environment) { e.shell = shell }
}

// WithToolchains declares which toolchain versions the setup-toolchain
// action may install. "stable" is always available.
func WithToolchains(versions ...string) Option {
	return func(e *Environment) {
		for _, v := range versions {
			e.toolchains[v] = true
		}
	}
}

// WithAction registers a custom action under name@version.
func WithAction(name, version string, fn ActionFunc) Option {
	return func(e *Environment) {
		e.actions[name+"@"+version] = fn
	}
}

// New creates a shell-backed Environment with the builtin actions
// registered.
func New(opts ...Option) *Environment {
	e := &Environment{
		baseDir:    os.TempDir(),
		shell:      "sh",
		toolchains: map[string]bool{"stable": true},
		actions:    make(map[string]ActionFunc),
	}

	e.actions["checkout@v1"] = checkoutAction
	e.actions["setup-toolchain@v1"] = setupToolchainAction

	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Prepare creates the instance's working directory and returns a session
// bound to it.
func (e *Environment) Prepare(ctx context.Context, run *api.Run, inst *api.JobInstance) (api.Session, error) {
	dir := filepath.Join(e.baseDir, "conveyor", run.ID, sanitize(inst.Key))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, &api.EnvironmentError{Reason: "create workspace", Err: err}
	}
	return &Session{env: e, inst: inst, dir: dir}, nil
}

// Session executes commands and actions inside one instance workspace.
type Session struct {
	env  *Environment
	inst *api.JobInstance
	dir  string

	// toolchain is set by the setup-toolchain action and exported to
	// subsequent command steps.
	toolchain string
}

var _ api.Session = (*Session)(nil)

// Dir returns the session's working directory.
func (s *Session) Dir() string { return s.dir }

// RunCommand runs a literal command through the shell, capturing the
// combined output and wall-clock duration. A non-zero exit status is
// reported in the result, not as an error; only failures to launch the
// process at all are errors.
func (s *Session) RunCommand(ctx context.Context, command string) (api.ExecResult, error) {
	cmd := exec.CommandContext(ctx, s.env.shell, "-c", command)
	cmd.Dir = s.dir
	cmd.Env = append(os.Environ(), "CONVEYOR_INSTANCE="+s.inst.Key)
	if s.toolchain != "" {
		cmd.Env = append(cmd.Env, "CONVEYOR_TOOLCHAIN="+s.toolchain)
	}
	for axis, value := range s.inst.Values {
		cmd.Env = append(cmd.Env, "CONVEYOR_MATRIX_"+strings.ToUpper(axis)+"="+value)
	}

	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	start := time.Now()
	err := cmd.Run()
	res := api.ExecResult{
		Output:   out.String(),
		Duration: time.Since(start),
	}

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
			return res, nil
		}
		// The process never ran (bad shell, cancelled before start).
		res.ExitCode = -1
		return res, err
	}

	return res, nil
}

// RunAction dispatches to a registered action. Unknown actions are an
// environment problem: the instance cannot run as defined here.
func (s *Session) RunAction(ctx context.Context, ref api.ActionRef, with map[string]string) (api.ExecResult, error) {
	fn, ok := s.env.actions[ref.String()]
	if !ok {
		return api.ExecResult{ExitCode: -1}, &api.EnvironmentError{Reason: fmt.Sprintf("unknown action %s", ref)}
	}
	start := time.Now()
	res, err := fn(ctx, s, with)
	if res.Duration == 0 {
		res.Duration = time.Since(start)
	}
	return res, err
}

// Close removes nothing: workspaces are left behind for inspection and
// cleaned up by the owner of the base directory.
func (s *Session) Close() error { return nil }

// checkoutAction stands in for source checkout, which is an external
// collaborator's concern: it only guarantees the workspace exists.
func checkoutAction(ctx context.Context, s *Session, with map[string]string) (api.ExecResult, error) {
	return api.ExecResult{Output: "workspace " + s.dir + "\n"}, nil
}

// setupToolchainAction selects the toolchain for the rest of the
// session. A version outside the environment's installed set is an
// EnvironmentError: the instance fails, siblings are unaffected.
func setupToolchainAction(ctx context.Context, s *Session, with map[string]string) (api.ExecResult, error) {
	version := with["version"]
	if version == "" {
		version = "stable"
	}
	if !s.env.toolchains[version] {
		return api.ExecResult{ExitCode: -1}, &api.EnvironmentError{
			Reason: fmt.Sprintf("toolchain %q unavailable", version),
		}
	}
	s.toolchain = version
	return api.ExecResult{Output: "toolchain " + version + "\n"}, nil
}

func sanitize(key string) string {
	r := strings.NewReplacer("/", "_", "=", "-", " ", "_")
	return r.Replace(key)
}

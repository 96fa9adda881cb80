package api

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// ExecResult is what the environment reports back for one executed
// command or action: exit status, captured output and wall-clock
// duration.
type ExecResult struct {
	ExitCode int
	Output   string
	Duration time.Duration
}

// ActionRef identifies a reusable action with a closed, versioned
// contract, e.g. "setup-toolchain@v1".
type ActionRef struct {
	Name    string
	Version string
}

func (r ActionRef) String() string { return r.Name + "@" + r.Version }

// ParseActionRef parses a "name@version" action reference.
func ParseActionRef(s string) (ActionRef, error) {
	name, version, ok := strings.Cut(s, "@")
	if !ok || name == "" || version == "" {
		return ActionRef{}, fmt.Errorf("invalid action reference %q: want name@version", s)
	}
	return ActionRef{Name: name, Version: version}, nil
}

// Environment is the engine's capability for actually executing work.
// The engine core never prepares toolchains or spawns processes itself;
// it calls through this interface and interprets the results.
//
// Implementations must be safe for concurrent use: the orchestrator
// prepares sessions for many instances at once.
type Environment interface {
	// Prepare sets up an isolated session for one job instance.
	// It returns a *EnvironmentError when preparation is impossible,
	// for example when a requested toolchain is unavailable.
	Prepare(ctx context.Context, run *Run, inst *JobInstance) (Session, error)
}

// Session executes commands and actions for a single job instance.
// Sessions are used by one instance worker at a time and closed when the
// instance reaches a terminal status.
type Session interface {
	// RunCommand executes a literal shell command and reports its
	// outcome. A non-zero exit status is not an error at this level;
	// it is returned in the result and interpreted by the step
	// executor.
	RunCommand(ctx context.Context, command string) (ExecResult, error)

	// RunAction executes a resolved, versioned action with the given
	// parameter mapping.
	RunAction(ctx context.Context, ref ActionRef, with map[string]string) (ExecResult, error)

	Close() error
}

package engine

import (
	"context"
	"strconv"
	"strings"
	"sync"

	"github.com/petrijr/conveyor/pkg/api"
)

// fakeEnv is a scripted Environment for engine tests. Command steps are
// interpreted by their text:
//
//	"ok" / anything else  -> exit 0
//	"fail"                -> exit 1
//	"fail:<n>"            -> exit <n>
//	"flaky:<n>"           -> exit 1 for the first n calls, then exit 0
//	"wait"                -> block until Release or context cancellation
//
// Actions named "boom@v1" fail with an EnvironmentError; any other
// action succeeds and records its parameters.
type fakeEnv struct {
	mu sync.Mutex

	open    int // sessions currently open
	maxOpen int // high-water mark, proxies concurrent RUNNING instances
	flaky   map[string]int

	commands []string // every command that began executing
	actions  []string

	prepareErr func(inst *api.JobInstance) error

	started chan string   // receives instance key when a "wait" begins
	release chan struct{} // closed by Release
}

func newFakeEnv() *fakeEnv {
	return &fakeEnv{
		flaky:   make(map[string]int),
		started: make(chan string, 64),
		release: make(chan struct{}),
	}
}

func (f *fakeEnv) Release() { close(f.release) }

func (f *fakeEnv) MaxOpen() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.maxOpen
}

func (f *fakeEnv) Commands() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.commands...)
}

func (f *fakeEnv) Prepare(ctx context.Context, run *api.Run, inst *api.JobInstance) (api.Session, error) {
	if f.prepareErr != nil {
		if err := f.prepareErr(inst); err != nil {
			return nil, err
		}
	}
	f.mu.Lock()
	f.open++
	if f.open > f.maxOpen {
		f.maxOpen = f.open
	}
	f.mu.Unlock()
	return &fakeSession{env: f, inst: inst}, nil
}

type fakeSession struct {
	env  *fakeEnv
	inst *api.JobInstance
}

func (s *fakeSession) RunCommand(ctx context.Context, command string) (api.ExecResult, error) {
	s.env.mu.Lock()
	s.env.commands = append(s.env.commands, s.inst.Key+": "+command)
	s.env.mu.Unlock()

	switch {
	case command == "wait":
		s.env.started <- s.inst.Key
		select {
		case <-ctx.Done():
			return api.ExecResult{ExitCode: -1}, ctx.Err()
		case <-s.env.release:
			return api.ExecResult{}, nil
		}

	case command == "fail":
		return api.ExecResult{ExitCode: 1, Output: "boom\n"}, nil

	case strings.HasPrefix(command, "fail:"):
		code, _ := strconv.Atoi(strings.TrimPrefix(command, "fail:"))
		return api.ExecResult{ExitCode: code, Output: "boom\n"}, nil

	case strings.HasPrefix(command, "flaky:"):
		n, _ := strconv.Atoi(strings.TrimPrefix(command, "flaky:"))
		key := s.inst.Key + "/" + command
		s.env.mu.Lock()
		s.env.flaky[key]++
		calls := s.env.flaky[key]
		s.env.mu.Unlock()
		if calls <= n {
			return api.ExecResult{ExitCode: 1, Output: "transient\n"}, nil
		}
		return api.ExecResult{Output: "recovered\n"}, nil
	}

	return api.ExecResult{Output: command + "\n"}, nil
}

func (s *fakeSession) RunAction(ctx context.Context, ref api.ActionRef, with map[string]string) (api.ExecResult, error) {
	s.env.mu.Lock()
	s.env.actions = append(s.env.actions, s.inst.Key+": "+ref.String())
	s.env.mu.Unlock()

	if ref.Name == "boom" {
		return api.ExecResult{ExitCode: -1}, &api.EnvironmentError{Reason: "toolchain " + with["version"] + " unavailable"}
	}
	return api.ExecResult{Output: ref.String() + "\n"}, nil
}

func (s *fakeSession) Close() error {
	s.env.mu.Lock()
	s.env.open--
	s.env.mu.Unlock()
	return nil
}

// Command conveyor executes CI workflow definitions and serves run
// state over HTTP.
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	_ "modernc.org/sqlite"

	"github.com/petrijr/conveyor"
	"github.com/petrijr/conveyor/internal/cli"
	"github.com/petrijr/conveyor/internal/httpapi"
	"github.com/petrijr/conveyor/internal/persistence"
	"github.com/petrijr/conveyor/pkg/api"
	"github.com/petrijr/conveyor/pkg/shellenv"
)

func main() {
	code, err := run(os.Stdout, os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
	}
	os.Exit(code)
}

// run holds the real program logic so it stays testable; main only
// translates its result into a process exit.
func run(out io.Writer, args []string) (int, error) {
	cfg, done, err := cli.Parse(args, out)
	if err != nil {
		var exitErr *cli.ExitError
		if errors.As(err, &exitErr) {
			return exitErr.Code, err
		}
		return cli.ExitUsage, err
	}
	if done {
		return cli.ExitOK, nil
	}

	logger := cli.NewLogger(cfg, os.Stderr)

	switch cfg.Command {
	case "run":
		return runWorkflow(out, cfg, logger)
	case "serve":
		return serve(cfg, logger)
	default:
		return cli.ExitUsage, fmt.Errorf("unknown command %q", cfg.Command)
	}
}

func runWorkflow(out io.Writer, cfg *cli.Config, logger *slog.Logger) (int, error) {
	wf, err := conveyor.LoadWorkflow(cfg.DefinitionPath)
	if err != nil {
		return cli.ExitUsage, fmt.Errorf("load %s: %w", cfg.DefinitionPath, err)
	}

	observer := conveyor.NewLoggingObserver(logger)
	env := shellenv.New()

	var eng conveyor.Engine
	if cfg.DBPath != "" {
		db, err := sql.Open("sqlite", "file:"+cfg.DBPath+"?_journal=WAL")
		if err != nil {
			return cli.ExitUsage, fmt.Errorf("open database: %w", err)
		}
		defer db.Close()

		eng, err = conveyor.NewSQLiteEngineWithObserver(db, env, observer)
		if err != nil {
			return cli.ExitUsage, fmt.Errorf("initialize database: %w", err)
		}
	} else {
		eng = conveyor.NewInMemoryEngineWithObserver(env, observer)
	}

	if err := eng.RegisterWorkflow(wf); err != nil {
		return cli.ExitUsage, fmt.Errorf("invalid workflow: %w", err)
	}

	// SIGINT/SIGTERM request cooperative cancellation: running steps
	// are interrupted and the run is reported as cancelled.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	exec, err := eng.Start(ctx, wf.Name, conveyor.RunOptions{
		Event:       cfg.Event,
		Concurrency: cfg.Concurrency,
	})
	if err != nil {
		if errors.Is(err, conveyor.ErrNotTriggered) {
			fmt.Fprintf(out, "workflow %q is not triggered by %q, nothing to do\n", wf.Name, cfg.Event)
			return cli.ExitOK, nil
		}
		return cli.ExitUsage, err
	}

	result := exec.Wait()
	report(out, result)

	switch result.Status {
	case api.StatusSucceeded:
		return cli.ExitOK, nil
	case api.StatusCancelled:
		return cli.ExitInterrupted, nil
	default:
		return cli.ExitRunFailed, nil
	}
}

// report prints a human-readable run summary: one line per instance,
// with failure detail for everything that did not succeed.
func report(out io.Writer, run *api.Run) {
	fmt.Fprintf(out, "\nrun %s: %s (workflow %q, event %q)\n", run.ID, run.Status, run.Workflow, run.Event)

	for _, inst := range run.Instances {
		fmt.Fprintf(out, "  %-10s %s\n", inst.Status, inst.Name)

		if outcome, ok := inst.FailedStep(); ok {
			fmt.Fprintf(out, "    step %q failed (exit %d, %d attempt(s))\n", outcome.Step, outcome.ExitCode, outcome.Attempts)
			if tail := outcome.OutputTail(20); tail != "" {
				for _, line := range strings.Split(strings.TrimRight(tail, "\n"), "\n") {
					fmt.Fprintf(out, "      %s\n", line)
				}
			}
		} else if inst.Err != nil && inst.Status == api.StatusFailed {
			fmt.Fprintf(out, "    %v\n", inst.Err)
		}
	}
}

func serve(cfg *cli.Config, logger *slog.Logger) (int, error) {
	db, err := sql.Open("sqlite", "file:"+cfg.DBPath+"?_journal=WAL")
	if err != nil {
		return cli.ExitUsage, fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	eng, err := conveyor.NewSQLiteEngine(db, shellenv.New())
	if err != nil {
		return cli.ExitUsage, fmt.Errorf("initialize database: %w", err)
	}
	events, err := persistence.NewSQLiteEventStore(db)
	if err != nil {
		return cli.ExitUsage, fmt.Errorf("initialize database: %w", err)
	}

	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           httpapi.NewServer(eng, events, logger).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http api listening", "addr", cfg.Listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return cli.ExitRunFailed, err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown failed", "error", err)
	}
	return cli.ExitOK, nil
}

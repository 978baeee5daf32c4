// Package builder runs resolved build scripts and captures their output
// incrementally so logs can be tailed while the build is still running.
package builder

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"syscall"
	"time"

	"github.com/zulandar/roundhouse/internal/models"
	"gorm.io/gorm"
)

// DefaultFlushInterval is the interval between periodic log flushes.
const DefaultFlushInterval = 2 * time.Second

// Outcome is the terminal result of one script execution.
type Outcome struct {
	Status   string // models.BuildSucceeded, BuildFailed or BuildAborted
	ExitCode int
	Cause    string
}

// Runner executes build scripts with a wall-clock timeout.
type Runner struct {
	db            *gorm.DB
	timeout       time.Duration
	flushInterval time.Duration
}

// New creates a Runner writing output chunks through db.
func New(db *gorm.DB, timeout time.Duration) *Runner {
	return &Runner{db: db, timeout: timeout, flushInterval: DefaultFlushInterval}
}

// Run executes scriptPath inside workdir, streaming combined output to the
// build's log chunks. The returned outcome maps exit 0 to succeeded,
// non-zero to failed, and timeout or ctx cancellation to aborted. Run never
// returns an error for script failure; only the outcome differs.
func (r *Runner) Run(ctx context.Context, buildID uint, scriptPath, workdir string) Outcome {
	runCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	w := newChunkWriter(r.db, buildID)

	cmd := exec.CommandContext(runCtx, scriptPath)
	cmd.Dir = workdir
	cmd.Stdout = w
	cmd.Stderr = w
	cmd.Cancel = func() error {
		return cmd.Process.Signal(syscall.SIGTERM)
	}
	cmd.WaitDelay = 10 * time.Second

	if err := cmd.Start(); err != nil {
		return Outcome{
			Status:   models.BuildFailed,
			ExitCode: -1,
			Cause:    fmt.Sprintf("start build script: %v", err),
		}
	}

	flushCtx, flushCancel := context.WithCancel(context.Background())
	go flushLoop(flushCtx, w, r.flushInterval)

	waitErr := cmd.Wait()
	flushCancel()
	w.Close()

	switch {
	case errors.Is(runCtx.Err(), context.DeadlineExceeded):
		return Outcome{
			Status:   models.BuildAborted,
			ExitCode: -1,
			Cause:    fmt.Sprintf("timed out after %s", r.timeout),
		}
	case errors.Is(ctx.Err(), context.Canceled):
		return Outcome{
			Status:   models.BuildAborted,
			ExitCode: -1,
			Cause:    "aborted",
		}
	case waitErr == nil:
		return Outcome{Status: models.BuildSucceeded}
	default:
		code := -1
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			code = exitErr.ExitCode()
		}
		return Outcome{
			Status:   models.BuildFailed,
			ExitCode: code,
			Cause:    fmt.Sprintf("build script exited with status %d", code),
		}
	}
}

// flushLoop periodically flushes the chunk writer until ctx is cancelled.
func flushLoop(ctx context.Context, w *chunkWriter, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.Flush()
		}
	}
}

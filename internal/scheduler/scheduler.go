// Package scheduler turns accepted webhook triggers into builds, enforcing
// at most one running build per repository with a latest-ref-wins pending
// slot, and a global concurrency bound across repositories.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/zulandar/roundhouse/internal/builder"
	"github.com/zulandar/roundhouse/internal/cierr"
	"github.com/zulandar/roundhouse/internal/models"
	"github.com/zulandar/roundhouse/internal/refmatch"
	"github.com/zulandar/roundhouse/internal/registry"
	"github.com/zulandar/roundhouse/internal/script"
	"github.com/zulandar/roundhouse/internal/sourcer"
	"github.com/zulandar/roundhouse/internal/webhook"
	"gorm.io/gorm"
)

// Sourcer is the clone/ping dependency, satisfied by sourcer.Git.
type Sourcer interface {
	Ping(ctx context.Context, url, identityFile string) error
	Clone(ctx context.Context, spec sourcer.CloneSpec, dir string) error
}

// Runner executes a resolved script, satisfied by builder.Runner.
type Runner interface {
	Run(ctx context.Context, buildID uint, scriptPath, workdir string) Outcome
}

// Outcome mirrors the runner's terminal result.
type Outcome = builder.Outcome

// Options bounds scheduling and execution.
type Options struct {
	BuildDir      string
	Scripts       []string
	MaxParallel   int
	RetryAttempts int
	RetryBackoff  time.Duration
	LogGrace      time.Duration
}

// Trigger outcomes.
const (
	TriggerAccepted = "accepted"
	TriggerSkipped  = "skipped"
	TriggerRejected = "rejected"
)

// Result reports what happened to one webhook trigger.
type Result struct {
	Outcome string
	Reason  string
	BuildID uint
}

// resolveFunc matches script.Resolve, swappable in tests.
type resolveFunc func(workdir, override string, candidates []string) (*script.Resolved, error)

// entry is the per-repository scheduling state: a running flag and a single
// pending slot that newer triggers overwrite.
type entry struct {
	running   bool
	runningID uint
	cancel    context.CancelFunc
	pendingID uint // 0 = no pending trigger
}

// Scheduler owns no repository configuration; it re-reads the registry on
// every trigger and build start so edits apply to the next build.
type Scheduler struct {
	db         *gorm.DB
	reg        *registry.Registry
	src        Sourcer
	run        Runner
	resolve    resolveFunc
	opts       Options
	onComplete func(models.Build)

	mu      sync.Mutex
	entries map[string]*entry
	slots   chan struct{}
	wg      sync.WaitGroup
}

// New creates a Scheduler.
func New(db *gorm.DB, reg *registry.Registry, src Sourcer, run Runner, opts Options) *Scheduler {
	if opts.MaxParallel < 1 {
		opts.MaxParallel = 1
	}
	if opts.RetryAttempts < 1 {
		opts.RetryAttempts = 1
	}
	return &Scheduler{
		db:      db,
		reg:     reg,
		src:     src,
		run:     run,
		resolve: script.Resolve,
		opts:    opts,
		entries: make(map[string]*entry),
		slots:   make(chan struct{}, opts.MaxParallel),
	}
}

// OnComplete registers a callback invoked after every build reaches a
// terminal state. Used for notifications; must not block for long.
func (s *Scheduler) OnComplete(fn func(models.Build)) {
	s.onComplete = fn
}

// Trigger handles one webhook delivery: authenticate, match the ref against
// the whitelist, then enqueue. Auth and validation failures never create a
// Build record.
func (s *Scheduler) Trigger(repoName, ref, signature string, body []byte) Result {
	repo, err := s.reg.GetByName(repoName)
	if errors.Is(err, cierr.ErrNotFound) {
		return Result{Outcome: TriggerRejected, Reason: "unknown repository"}
	}
	if err != nil {
		log.Printf("scheduler: trigger lookup %q: %v", repoName, err)
		return Result{Outcome: TriggerRejected, Reason: "internal error"}
	}

	if err := webhook.Verify(body, signature, repo.Secret); err != nil {
		// Detail stays server-side; the sender learns nothing useful.
		log.Printf("scheduler: trigger for %q: %v", repoName, err)
		return Result{Outcome: TriggerRejected, Reason: "authentication failed"}
	}

	if ref == "" {
		return Result{Outcome: TriggerRejected, Reason: "missing ref"}
	}

	if !refmatch.Match(ref, repo.RefWhitelist) {
		return Result{Outcome: TriggerSkipped, Reason: fmt.Sprintf("ref %q not in whitelist", ref)}
	}

	build := models.Build{
		RepoName: repoName,
		Ref:      ref,
		Status:   models.BuildQueued,
		QueuedAt: time.Now(),
	}
	// The commit SHA is only needed for status reporting; a payload
	// without one is still a valid trigger.
	if push, err := webhook.ParsePush(body); err == nil {
		build.Commit = push.Commit
	}
	if err := s.db.Create(&build).Error; err != nil {
		log.Printf("scheduler: create build for %q: %v", repoName, err)
		return Result{Outcome: TriggerRejected, Reason: "internal error"}
	}

	s.enqueue(repoName, build.ID)
	return Result{Outcome: TriggerAccepted, BuildID: build.ID}
}

// enqueue either starts the build loop for the repository or replaces its
// pending slot, superseding any build already waiting there.
func (s *Scheduler) enqueue(repoName string, buildID uint) {
	s.mu.Lock()
	e, ok := s.entries[repoName]
	if !ok {
		e = &entry{}
		s.entries[repoName] = e
	}

	if e.running {
		superseded := e.pendingID
		e.pendingID = buildID
		s.mu.Unlock()
		if superseded != 0 {
			s.finishBuild(superseded, Outcome{
				Status:   models.BuildAborted,
				ExitCode: -1,
				Cause:    fmt.Sprintf("superseded by build %d", buildID),
			}, false)
		}
		return
	}

	e.running = true
	e.runningID = buildID
	s.mu.Unlock()

	s.wg.Add(1)
	go s.loop(repoName, buildID)
}

// loop processes the repository's builds one at a time until the pending
// slot is empty.
func (s *Scheduler) loop(repoName string, buildID uint) {
	defer s.wg.Done()

	for {
		s.process(repoName, buildID)

		s.mu.Lock()
		e := s.entries[repoName]
		if e.pendingID == 0 {
			e.running = false
			e.runningID = 0
			e.cancel = nil
			s.mu.Unlock()
			return
		}
		buildID = e.pendingID
		e.pendingID = 0
		e.runningID = buildID
		e.cancel = nil
		s.mu.Unlock()
	}
}

// process runs a single build end to end. Errors terminate the build with a
// cause string; they never propagate out of the scheduler.
func (s *Scheduler) process(repoName string, buildID uint) {
	// Global concurrency bound across repositories.
	s.slots <- struct{}{}
	defer func() { <-s.slots }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.mu.Lock()
	if e := s.entries[repoName]; e != nil && e.runningID == buildID {
		e.cancel = cancel
	}
	s.mu.Unlock()

	// A build aborted while waiting for a slot stays aborted.
	var build models.Build
	if err := s.db.First(&build, buildID).Error; err != nil {
		log.Printf("scheduler: load build %d: %v", buildID, err)
		return
	}
	if build.Terminal() {
		return
	}

	// Configuration is re-read here so edits made while the build was
	// queued take effect.
	repo, err := s.reg.GetByName(repoName)
	if err != nil {
		s.finishBuild(buildID, Outcome{
			Status:   models.BuildFailed,
			ExitCode: -1,
			Cause:    "repository vanished from registry",
		}, true)
		return
	}

	now := time.Now()
	if err := s.db.Model(&models.Build{}).Where("id = ?", buildID).
		Updates(map[string]interface{}{
			"status":     models.BuildRunning,
			"started_at": now,
		}).Error; err != nil {
		log.Printf("scheduler: mark build %d running: %v", buildID, err)
		return
	}

	workdir := s.workdir(repoName, buildID)
	outcome := s.execute(ctx, repo, &build, workdir)
	s.finishBuild(buildID, outcome, true)
	s.cleanupLater(workdir)
}

// execute clones, resolves the script, and runs it.
func (s *Scheduler) execute(ctx context.Context, repo *models.Repository, build *models.Build, workdir string) Outcome {
	identity := ""
	if repo.HasKeypair() {
		path, err := s.reg.KeyPath(repo.Name)
		if err != nil {
			return Outcome{Status: models.BuildFailed, ExitCode: -1,
				Cause: fmt.Sprintf("keypair unavailable: %v", err)}
		}
		identity = path
	}

	spec := sourcer.CloneSpec{
		Name:         repo.Name,
		CloneURL:     repo.CloneURL,
		Ref:          build.Ref,
		Commit:       build.Commit,
		IdentityFile: identity,
	}
	if err := s.cloneWithRetry(ctx, spec, workdir); err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			return Outcome{Status: models.BuildAborted, ExitCode: -1, Cause: "aborted"}
		}
		return Outcome{Status: models.BuildFailed, ExitCode: -1, Cause: err.Error()}
	}

	resolved, err := s.resolve(workdir, repo.BuildScript, s.opts.Scripts)
	if err != nil {
		return Outcome{Status: models.BuildFailed, ExitCode: -1, Cause: err.Error()}
	}

	result := s.run.Run(ctx, build.ID, resolved.Path, workdir)
	return Outcome{Status: result.Status, ExitCode: result.ExitCode, Cause: result.Cause}
}

// cloneWithRetry retries network failures with exponential backoff; auth and
// reference failures are terminal on the first attempt.
func (s *Scheduler) cloneWithRetry(ctx context.Context, spec sourcer.CloneSpec, workdir string) error {
	backoff := s.opts.RetryBackoff
	var lastErr error
	for attempt := 1; attempt <= s.opts.RetryAttempts; attempt++ {
		lastErr = s.src.Clone(ctx, spec, workdir)
		if lastErr == nil {
			return nil
		}
		if !errors.Is(lastErr, cierr.ErrNetwork) {
			return lastErr
		}
		if attempt == s.opts.RetryAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return lastErr
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return fmt.Errorf("after %d attempts: %w", s.opts.RetryAttempts, lastErr)
}

// finishBuild writes a terminal state. Terminal states are immutable: an
// already-finished build is left untouched. notify controls whether the
// completion callback fires.
func (s *Scheduler) finishBuild(buildID uint, outcome Outcome, notify bool) {
	now := time.Now()
	result := s.db.Model(&models.Build{}).
		Where("id = ? AND status NOT IN ?", buildID,
			[]string{models.BuildSucceeded, models.BuildFailed, models.BuildAborted}).
		Updates(map[string]interface{}{
			"status":      outcome.Status,
			"exit_code":   outcome.ExitCode,
			"cause":       outcome.Cause,
			"finished_at": now,
		})
	if result.Error != nil {
		log.Printf("scheduler: finish build %d: %v", buildID, result.Error)
		return
	}
	if result.RowsAffected == 0 {
		return
	}
	if notify && s.onComplete != nil {
		var build models.Build
		if err := s.db.First(&build, buildID).Error; err == nil {
			s.onComplete(build)
		}
	}
}

// Wait blocks until all build loops have drained. Tests and shutdown use it.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

package scheduler

import (
	"context"
	"errors"
	"fmt"

	"github.com/zulandar/roundhouse/internal/cierr"
	"github.com/zulandar/roundhouse/internal/models"
	"gorm.io/gorm"
)

// Abort cancels a build. A running build is signalled and transitions to
// aborted; a queued build is finished in place. Aborting an already-terminal
// build is a no-op. Queued triggers for the same repository are unaffected.
func (s *Scheduler) Abort(buildID uint) error {
	var build models.Build
	err := s.db.First(&build, buildID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("scheduler: build %d: %w", buildID, cierr.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("scheduler: load build %d: %w", buildID, err)
	}
	if build.Terminal() {
		return nil
	}

	s.mu.Lock()
	e := s.entries[build.RepoName]
	if e != nil && e.runningID == buildID && e.cancel != nil {
		cancel := e.cancel
		s.mu.Unlock()
		// The run loop observes the cancellation and writes the terminal
		// state itself.
		cancel()
		return nil
	}
	if e != nil && e.pendingID == buildID {
		e.pendingID = 0
	}
	s.mu.Unlock()

	s.finishBuild(buildID, Outcome{
		Status:   models.BuildAborted,
		ExitCode: -1,
		Cause:    "aborted before start",
	}, false)
	return nil
}

// Ping checks clone-URL reachability. Read-only: the registry is consulted
// only for an optional keypair, nothing is mutated.
func (s *Scheduler) Ping(ctx context.Context, url, repoName string) error {
	identity := ""
	if repoName != "" {
		if repo, err := s.reg.GetByName(repoName); err == nil && repo.HasKeypair() {
			if path, err := s.reg.KeyPath(repoName); err == nil {
				identity = path
			}
		}
	}
	return s.src.Ping(ctx, url, identity)
}

// Logs returns the build's output chunks starting at fromSeq, plus whether
// the build has reached a terminal state (the stream is finite once it has).
func (s *Scheduler) Logs(buildID uint, fromSeq int) ([]models.BuildLog, bool, error) {
	var build models.Build
	err := s.db.First(&build, buildID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, fmt.Errorf("scheduler: build %d: %w", buildID, cierr.ErrNotFound)
	}
	if err != nil {
		return nil, false, fmt.Errorf("scheduler: load build %d: %w", buildID, err)
	}

	var chunks []models.BuildLog
	if err := s.db.Where("build_id = ? AND seq >= ?", buildID, fromSeq).
		Order("seq ASC").Find(&chunks).Error; err != nil {
		return nil, false, fmt.Errorf("scheduler: logs for build %d: %w", buildID, err)
	}
	return chunks, build.Terminal(), nil
}

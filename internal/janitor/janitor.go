// Package janitor prunes old build history and leftover working
// directories on a cron schedule.
package janitor

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/zulandar/roundhouse/internal/models"
	"gorm.io/gorm"
)

// Janitor sweeps terminal builds older than the retention window.
type Janitor struct {
	db        *gorm.DB
	buildDir  string
	retention time.Duration
	schedule  string
	cron      *cron.Cron
}

// New creates a Janitor. schedule is a standard 5-field cron expression.
func New(db *gorm.DB, buildDir, schedule string, retention time.Duration) *Janitor {
	return &Janitor{
		db:        db,
		buildDir:  buildDir,
		retention: retention,
		schedule:  schedule,
	}
}

// Start registers the sweep on the cron schedule and begins running it.
func (j *Janitor) Start() error {
	c := cron.New()
	_, err := c.AddFunc(j.schedule, func() {
		n, err := j.Sweep()
		if err != nil {
			log.Printf("janitor: sweep: %v", err)
			return
		}
		if n > 0 {
			log.Printf("janitor: pruned %d builds", n)
		}
	})
	if err != nil {
		return fmt.Errorf("janitor: schedule %q: %w", j.schedule, err)
	}
	c.Start()
	j.cron = c
	return nil
}

// Stop halts the schedule. A sweep already in flight finishes.
func (j *Janitor) Stop() {
	if j.cron != nil {
		j.cron.Stop()
	}
}

// Sweep deletes terminal builds that finished before the retention cutoff,
// along with their log chunks and any leftover working directories. Returns
// the number of builds removed.
func (j *Janitor) Sweep() (int64, error) {
	cutoff := time.Now().Add(-j.retention)

	var old []models.Build
	err := j.db.
		Where("status IN ?", []string{models.BuildSucceeded, models.BuildFailed, models.BuildAborted}).
		Where("finished_at IS NOT NULL AND finished_at < ?", cutoff).
		Find(&old).Error
	if err != nil {
		return 0, fmt.Errorf("janitor: list old builds: %w", err)
	}
	if len(old) == 0 {
		return 0, nil
	}

	ids := make([]uint, 0, len(old))
	for _, b := range old {
		ids = append(ids, b.ID)
	}

	if err := j.db.Where("build_id IN ?", ids).Delete(&models.BuildLog{}).Error; err != nil {
		return 0, fmt.Errorf("janitor: delete logs: %w", err)
	}
	if err := j.db.Where("id IN ?", ids).Delete(&models.Build{}).Error; err != nil {
		return 0, fmt.Errorf("janitor: delete builds: %w", err)
	}

	for _, b := range old {
		dir := filepath.Join(j.buildDir, filepath.FromSlash(b.RepoName), fmt.Sprint(b.ID))
		if err := os.RemoveAll(dir); err != nil {
			log.Printf("janitor: remove workdir %s: %v", dir, err)
		}
	}
	return int64(len(old)), nil
}

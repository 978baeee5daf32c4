package scheduler

import (
	"errors"
	"fmt"

	"github.com/zulandar/roundhouse/internal/cierr"
	"github.com/zulandar/roundhouse/internal/models"
	"gorm.io/gorm"
)

// GetBuild fetches one build.
func (s *Scheduler) GetBuild(buildID uint) (*models.Build, error) {
	var build models.Build
	err := s.db.First(&build, buildID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("scheduler: build %d: %w", buildID, cierr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("scheduler: load build %d: %w", buildID, err)
	}
	return &build, nil
}

// RecentBuilds lists builds newest-first, optionally filtered by repository.
func (s *Scheduler) RecentBuilds(repoName string, limit int) ([]models.Build, error) {
	q := s.db.Order("id DESC").Limit(limit)
	if repoName != "" {
		q = q.Where("repo_name = ?", repoName)
	}
	var builds []models.Build
	if err := q.Find(&builds).Error; err != nil {
		return nil, fmt.Errorf("scheduler: list builds: %w", err)
	}
	return builds, nil
}

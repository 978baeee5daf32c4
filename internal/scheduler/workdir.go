package scheduler

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"
)

// workdir returns the scoped working directory for one build:
// <build_dir>/<owner>/<name>/<build_id>. The leaf is left for git clone to
// create; only the parents are made.
func (s *Scheduler) workdir(repoName string, buildID uint) string {
	dir := filepath.Join(s.opts.BuildDir, filepath.FromSlash(repoName), fmt.Sprint(buildID))
	if err := os.MkdirAll(filepath.Dir(dir), 0o755); err != nil {
		log.Printf("scheduler: create build dir parents for %s: %v", repoName, err)
	}
	return dir
}

// cleanupLater removes the working directory after the log grace period, so
// consumers tailing the final chunks are not cut off.
func (s *Scheduler) cleanupLater(workdir string) {
	if workdir == "" {
		return
	}
	grace := s.opts.LogGrace
	if grace <= 0 {
		removeWorkdir(workdir)
		return
	}
	time.AfterFunc(grace, func() { removeWorkdir(workdir) })
}

func removeWorkdir(dir string) {
	if err := os.RemoveAll(dir); err != nil {
		log.Printf("scheduler: remove workdir %s: %v", dir, err)
	}
}

package models

import "time"

// Build states. Terminal states are immutable once written.
const (
	BuildQueued    = "queued"
	BuildRunning   = "running"
	BuildSucceeded = "succeeded"
	BuildFailed    = "failed"
	BuildAborted   = "aborted"
)

// Build is one scheduled execution for a repository. Transitions are driven
// solely by the scheduler and the runner.
type Build struct {
	ID         uint   `gorm:"primaryKey;autoIncrement"`
	RepoName   string `gorm:"size:128;index;not null"`
	Ref        string `gorm:"size:256;not null"`
	Commit     string `gorm:"size:64"`
	Status     string `gorm:"size:16;index;default:queued"`
	ExitCode   int
	Cause      string `gorm:"type:text"`
	QueuedAt   time.Time
	StartedAt  *time.Time
	FinishedAt *time.Time
}

// Terminal reports whether the build has reached a final state.
func (b *Build) Terminal() bool {
	return TerminalStatus(b.Status)
}

// TerminalStatus reports whether a status string is a final state.
func TerminalStatus(s string) bool {
	return s == BuildSucceeded || s == BuildFailed || s == BuildAborted
}

// BuildLog is one chunk of captured build output. Chunks are ordered by Seq
// per build so log streams can restart from any offset.
type BuildLog struct {
	ID        uint   `gorm:"primaryKey;autoIncrement"`
	BuildID   uint   `gorm:"index:idx_build_seq"`
	Seq       int    `gorm:"index:idx_build_seq"`
	Content   string `gorm:"type:mediumtext"`
	CreatedAt time.Time
}

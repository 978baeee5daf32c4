package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/go-github/v68/github"
	"github.com/zulandar/roundhouse/internal/models"
	"golang.org/x/oauth2"
)

// statusPoster abstracts the go-github method we use, enabling test mocks.
type statusPoster interface {
	CreateStatus(ctx context.Context, owner, repo, ref string, status *github.RepoStatus) (*github.RepoStatus, *github.Response, error)
}

// GitHubStatus reports build results as commit statuses.
type GitHubStatus struct {
	repos statusPoster
}

// NewGitHubStatus creates a commit-status reporter authenticated with token.
func NewGitHubStatus(token string) *GitHubStatus {
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	client := github.NewClient(oauth2.NewClient(context.Background(), ts))
	return &GitHubStatus{repos: client.Repositories}
}

// Name implements Notifier.
func (g *GitHubStatus) Name() string { return "github-status" }

// BuildFinished implements Notifier. Builds without a commit SHA (manual
// triggers, minimal payloads) are skipped silently.
func (g *GitHubStatus) BuildFinished(ctx context.Context, build models.Build) error {
	if build.Commit == "" {
		return nil
	}
	owner, repo, ok := splitRepoName(build.RepoName)
	if !ok {
		return fmt.Errorf("repository name %q is not owner/name", build.RepoName)
	}

	state := statusState(build.Status)
	description := build.Cause
	if description == "" {
		description = "build " + build.Status
	}
	status := &github.RepoStatus{
		State:       github.Ptr(state),
		Context:     github.Ptr("roundhouse"),
		Description: github.Ptr(truncate(description, 140)),
	}
	if _, _, err := g.repos.CreateStatus(ctx, owner, repo, build.Commit, status); err != nil {
		return fmt.Errorf("create status for %s@%s: %w", build.RepoName, build.Commit, err)
	}
	return nil
}

// statusState maps build states onto the GitHub status vocabulary.
func statusState(buildStatus string) string {
	switch buildStatus {
	case models.BuildSucceeded:
		return "success"
	case models.BuildFailed:
		return "failure"
	default:
		return "error"
	}
}

func splitRepoName(name string) (owner, repo string, ok bool) {
	owner, repo, ok = strings.Cut(name, "/")
	if owner == "" || repo == "" {
		return "", "", false
	}
	return owner, repo, ok
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}

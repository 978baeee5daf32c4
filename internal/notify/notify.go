// Package notify delivers build-completion notifications. Delivery is
// best-effort: a failed notifier is logged and never affects the build.
package notify

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/zulandar/roundhouse/internal/config"
	"github.com/zulandar/roundhouse/internal/models"
)

// deliverTimeout bounds one notifier call.
const deliverTimeout = 10 * time.Second

// Notifier delivers one build-completion message.
type Notifier interface {
	Name() string
	BuildFinished(ctx context.Context, build models.Build) error
}

// Fanout dispatches a completed build to every configured notifier.
type Fanout struct {
	notifiers []Notifier
}

// FromConfig builds a Fanout from the notify configuration. Targets with an
// empty token are skipped.
func FromConfig(cfg config.NotifyConfig) (*Fanout, error) {
	var notifiers []Notifier
	if cfg.Slack.Token != "" {
		notifiers = append(notifiers, NewSlack(cfg.Slack.Token, cfg.Slack.Channel))
	}
	if cfg.Discord.Token != "" {
		d, err := NewDiscord(cfg.Discord.Token, cfg.Discord.Channel)
		if err != nil {
			return nil, err
		}
		notifiers = append(notifiers, d)
	}
	if cfg.GitHub.Token != "" {
		notifiers = append(notifiers, NewGitHubStatus(cfg.GitHub.Token))
	}
	return &Fanout{notifiers: notifiers}, nil
}

// BuildFinished fans the build out to all notifiers. Suitable as the
// scheduler's completion callback.
func (f *Fanout) BuildFinished(build models.Build) {
	for _, n := range f.notifiers {
		go func(n Notifier) {
			ctx, cancel := context.WithTimeout(context.Background(), deliverTimeout)
			defer cancel()
			if err := n.BuildFinished(ctx, build); err != nil {
				log.Printf("notify: %s: %v", n.Name(), err)
			}
		}(n)
	}
}

// Summary renders the one-line notification text for a build.
func Summary(build models.Build) string {
	msg := fmt.Sprintf("%s build #%d (%s): %s", build.RepoName, build.ID, build.Ref, build.Status)
	if build.Cause != "" {
		msg += " (" + build.Cause + ")"
	}
	return msg
}

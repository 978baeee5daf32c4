package notify

import (
	"context"
	"fmt"

	slackapi "github.com/slack-go/slack"
	"github.com/zulandar/roundhouse/internal/models"
)

// slackPoster abstracts the Slack API method we use, enabling test mocks.
type slackPoster interface {
	PostMessageContext(ctx context.Context, channelID string, options ...slackapi.MsgOption) (string, string, error)
}

// Slack posts build results to a channel.
type Slack struct {
	client  slackPoster
	channel string
}

// NewSlack creates a Slack notifier.
func NewSlack(token, channel string) *Slack {
	return &Slack{client: slackapi.New(token), channel: channel}
}

// Name implements Notifier.
func (s *Slack) Name() string { return "slack" }

// BuildFinished implements Notifier.
func (s *Slack) BuildFinished(ctx context.Context, build models.Build) error {
	_, _, err := s.client.PostMessageContext(ctx, s.channel,
		slackapi.MsgOptionText(Summary(build), false))
	if err != nil {
		return fmt.Errorf("post to %s: %w", s.channel, err)
	}
	return nil
}

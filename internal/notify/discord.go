package notify

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"
	"github.com/zulandar/roundhouse/internal/models"
)

// discordSender abstracts the discordgo method we use, enabling test mocks.
type discordSender interface {
	ChannelMessageSend(channelID string, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// Discord posts build results to a channel.
type Discord struct {
	session discordSender
	channel string
}

// NewDiscord creates a Discord notifier. The session is REST-only; no
// gateway connection is opened.
func NewDiscord(token, channel string) (*Discord, error) {
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("notify: discord session: %w", err)
	}
	return &Discord{session: session, channel: channel}, nil
}

// Name implements Notifier.
func (d *Discord) Name() string { return "discord" }

// BuildFinished implements Notifier.
func (d *Discord) BuildFinished(ctx context.Context, build models.Build) error {
	_, err := d.session.ChannelMessageSend(d.channel, Summary(build),
		discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("send to %s: %w", d.channel, err)
	}
	return nil
}

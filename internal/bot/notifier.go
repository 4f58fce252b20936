package bot

import (
	"context"

	"github.com/bwmarrin/discordgo"

	"github.com/IbrahimO9/discord-music-bot/internal/errs"
	"github.com/IbrahimO9/discord-music-bot/internal/services/queue"
)

// messenger is the part of *discordgo.Session the notifier talks to
type messenger interface {
	ChannelMessageSend(channelID string, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageDelete(channelID, messageID string, options ...discordgo.RequestOption) error
}

// Notifier posts session updates to a guild's text channel
type Notifier struct {
	msg messenger
}

func NewNotifier(msg messenger) *Notifier {
	return &Notifier{msg: msg}
}

// NowPlaying sends the now playing card with its control buttons
func (n *Notifier) NowPlaying(ctx context.Context, channelID string, track *queue.Track, pending int) (string, error) {
	m, err := n.msg.ChannelMessageSendComplex(channelID, &discordgo.MessageSend{
		Embeds:     []*discordgo.MessageEmbed{nowPlayingEmbed(track, pending)},
		Components: []discordgo.MessageComponent{controlsRow()},
	}, discordgo.WithContext(ctx))
	if err != nil {
		return "", errs.Presentation("sending now playing message", err).WithContext("channel_id", channelID)
	}
	return m.ID, nil
}

func (n *Notifier) DeleteMessage(ctx context.Context, channelID, messageID string) error {
	if err := n.msg.ChannelMessageDelete(channelID, messageID, discordgo.WithContext(ctx)); err != nil {
		return errs.Presentation("deleting message", err).WithContext("message_id", messageID)
	}
	return nil
}

func (n *Notifier) Announce(ctx context.Context, channelID, content string) error {
	if _, err := n.msg.ChannelMessageSend(channelID, content, discordgo.WithContext(ctx)); err != nil {
		return errs.Presentation("sending announcement", err).WithContext("channel_id", channelID)
	}
	return nil
}

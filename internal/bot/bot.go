package bot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/IbrahimO9/discord-music-bot/internal/errs"
	"github.com/IbrahimO9/discord-music-bot/internal/services/playback"
	"github.com/IbrahimO9/discord-music-bot/internal/services/queue"
	"github.com/IbrahimO9/discord-music-bot/internal/services/search"
	"github.com/IbrahimO9/discord-music-bot/pkg/logger"
	"github.com/IbrahimO9/discord-music-bot/pkg/metrics"
)

const playTimeout = time.Minute

const (
	msgJoinVoiceFirst = "❌ You need to join a voice channel first!"
	msgNeedVoice      = "❌ You need to be in a voice channel!"
	msgNoResults      = "❌ No results found!"
	msgQueueEmpty     = "📭 The queue is empty!"
	msgNothingPlaying = "❌ Nothing is playing!"
	msgNotInVoice     = "❌ Bot is not in a voice channel!"
	msgAlreadyPaused  = "⏸️ Already paused!"
	msgNotPaused      = "▶️ Not paused!"
	msgStoppedEarly   = "❌ Playback was stopped before it could start."
	msgGuildOnly      = "❌ I only work in servers, not DMs!"
	msgUnknownCommand = "❌ Unknown command."
)

// Controller is the playback surface the commands drive
type Controller interface {
	Play(ctx context.Context, req playback.PlayRequest) (playback.PlayResult, error)
	Pause(guildID string) error
	Resume(guildID string) error
	Skip(guildID string) (queue.Track, error)
	Stop(ctx context.Context, guildID string) (int, error)
	Snapshot(guildID string) (playback.Snapshot, error)
}

// Options scopes command registration
type Options struct {
	// GuildID registers commands in one guild instead of globally.
	GuildID string
	// RemoveOnClose deletes the registered commands on shutdown.
	RemoveOnClose bool
}

// Bot turns Discord interactions into controller calls
type Bot struct {
	session  *discordgo.Session
	ctrl     Controller
	searcher search.Searcher
	errs     *errs.Handler
	opts     Options
	log      *logger.Logger
	metrics  *metrics.Metrics

	// voiceChannel finds the voice channel a member is connected to.
	voiceChannel func(guildID, userID string) (string, bool)
	appID        string
}

func New(s *discordgo.Session, ctrl Controller, searcher search.Searcher, opts Options, log *logger.Logger, m *metrics.Metrics) *Bot {
	if m == nil {
		m = metrics.NewMetrics()
	}
	b := &Bot{
		session:  s,
		ctrl:     ctrl,
		searcher: searcher,
		opts:     opts,
		log:      log.WithComponent("bot"),
		metrics:  m,
	}
	b.errs = errs.NewHandler(b.log, m)
	b.voiceChannel = b.stateVoiceChannel
	return b
}

// Register installs the gateway handlers. Call before opening the session.
func (b *Bot) Register() {
	b.session.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildVoiceStates
	b.session.AddHandler(b.onReady)
	b.session.AddHandler(b.onInteraction)
}

func (b *Bot) onReady(s *discordgo.Session, r *discordgo.Ready) {
	b.appID = r.User.ID
	b.log.Info("Discord bot ready", logger.Fields{
		"username":    r.User.Username,
		"bot_id":      r.User.ID,
		"guild_count": len(r.Guilds),
	})

	cmds, err := s.ApplicationCommandBulkOverwrite(r.User.ID, b.opts.GuildID, Commands())
	if err != nil {
		b.log.Error("Failed to register commands", err, logger.Fields{"guild_id": b.opts.GuildID})
		return
	}
	b.log.Info("Commands registered", logger.Fields{"count": len(cmds), "guild_id": b.opts.GuildID})
}

// Close removes the registered commands when configured to
func (b *Bot) Close() {
	if !b.opts.RemoveOnClose || b.appID == "" {
		return
	}
	if _, err := b.session.ApplicationCommandBulkOverwrite(b.appID, b.opts.GuildID, []*discordgo.ApplicationCommand{}); err != nil {
		b.log.Warn("Failed to remove commands", logger.Fields{"error": err.Error()})
		return
	}
	b.log.Info("Commands removed")
}

func (b *Bot) stateVoiceChannel(guildID, userID string) (string, bool) {
	vs, err := b.session.State.VoiceState(guildID, userID)
	if err != nil || vs == nil || vs.ChannelID == "" {
		return "", false
	}
	return vs.ChannelID, true
}

// invocation is the caller context of one interaction
type invocation struct {
	GuildID   string
	ChannelID string
	UserID    string
	Username  string
}

func invocationOf(i *discordgo.InteractionCreate) invocation {
	inv := invocation{GuildID: i.GuildID, ChannelID: i.ChannelID}
	switch {
	case i.Member != nil && i.Member.User != nil:
		inv.UserID = i.Member.User.ID
		inv.Username = i.Member.User.Username
		if i.Member.Nick != "" {
			inv.Username = i.Member.Nick
		}
	case i.User != nil:
		inv.UserID = i.User.ID
		inv.Username = i.User.Username
	}
	return inv
}

// play searches for the query and hands the result to the controller.
func (b *Bot) play(ctx context.Context, inv invocation, query string) (string, error) {
	voiceID, ok := b.voiceChannel(inv.GuildID, inv.UserID)
	if !ok {
		return "", errs.Validation(msgJoinVoiceFirst)
	}
	if query == "" {
		return "", errs.Validation(msgNoResults)
	}

	result, err := b.searcher.Search(ctx, query)
	if err != nil {
		if errors.Is(err, search.ErrNoResults) {
			return "", errs.Validation(msgNoResults)
		}
		return "", errs.Resolution("searching", err).WithContext("query", query)
	}

	track := &queue.Track{
		Title:     result.Title,
		SourceURL: result.URL,
		Thumbnail: result.Thumbnail,
		Requester: inv.Username,
		ChannelID: inv.ChannelID,
	}
	res, err := b.ctrl.Play(ctx, playback.PlayRequest{
		GuildID:        inv.GuildID,
		VoiceChannelID: voiceID,
		TextChannelID:  inv.ChannelID,
		Track:          track,
	})
	if err != nil {
		return "", controlError(err)
	}
	return playReply(track.Title, res), nil
}

// control runs one of the transport commands. Slash commands and buttons share it.
func (b *Bot) control(ctx context.Context, inv invocation, action string) (string, error) {
	if _, ok := b.voiceChannel(inv.GuildID, inv.UserID); !ok {
		return "", errs.Validation(msgNeedVoice)
	}

	switch action {
	case cmdPause:
		if err := b.ctrl.Pause(inv.GuildID); err != nil {
			return "", controlError(err)
		}
		return "⏸️ Paused!", nil

	case cmdResume:
		if err := b.ctrl.Resume(inv.GuildID); err != nil {
			return "", controlError(err)
		}
		return "▶️ Resumed!", nil

	case cmdSkip:
		skipped, err := b.ctrl.Skip(inv.GuildID)
		if err != nil {
			return "", controlError(err)
		}
		return fmt.Sprintf("⏭️ Skipped **%s**!", skipped.Title), nil

	case cmdStop:
		dropped, err := b.ctrl.Stop(ctx, inv.GuildID)
		if err != nil {
			if errors.Is(err, playback.ErrNoSession) {
				return "", errs.State(msgNotInVoice, err)
			}
			return "", controlError(err)
		}
		if dropped > 0 {
			return fmt.Sprintf("⏹️ Stopped and disconnected! Cleared %d queued songs.", dropped), nil
		}
		return "⏹️ Stopped and disconnected!", nil
	}
	return "", errs.Validation(msgUnknownCommand)
}

// queueView renders the guild's queue, or an empty notice.
func (b *Bot) queueView(guildID string) (*discordgo.InteractionResponseData, error) {
	snap, err := b.ctrl.Snapshot(guildID)
	if err != nil && !errors.Is(err, playback.ErrNoSession) {
		return nil, errs.Internal("reading queue", err)
	}
	embed := queueEmbed(snap)
	if embed == nil {
		return &discordgo.InteractionResponseData{Content: msgQueueEmpty, Flags: discordgo.MessageFlagsEphemeral}, nil
	}
	return &discordgo.InteractionResponseData{Embeds: []*discordgo.MessageEmbed{embed}}, nil
}

// controlError maps controller sentinels onto user-facing errors.
func controlError(err error) error {
	switch {
	case errors.Is(err, playback.ErrNoSession), errors.Is(err, playback.ErrNothingPlaying):
		return errs.State(msgNothingPlaying, err)
	case errors.Is(err, playback.ErrAlreadyPaused):
		return errs.State(msgAlreadyPaused, err)
	case errors.Is(err, playback.ErrNotPaused):
		return errs.State(msgNotPaused, err)
	case errors.Is(err, playback.ErrSessionClosed):
		return errs.State(msgStoppedEarly, err)
	}
	return err
}

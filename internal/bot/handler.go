package bot

import (
	"context"
	"runtime/debug"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/IbrahimO9/discord-music-bot/pkg/logger"
)

// responder is the part of *discordgo.Session used to answer interactions
type responder interface {
	InteractionRespond(interaction *discordgo.Interaction, resp *discordgo.InteractionResponse, options ...discordgo.RequestOption) error
	InteractionResponseEdit(interaction *discordgo.Interaction, newresp *discordgo.WebhookEdit, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

func (b *Bot) onInteraction(s *discordgo.Session, i *discordgo.InteractionCreate) {
	b.handleInteraction(s, i)
}

func (b *Bot) handleInteraction(r responder, i *discordgo.InteractionCreate) {
	defer func() {
		if rec := recover(); rec != nil {
			b.log.LogPanic(rec, debug.Stack())
			b.metrics.RecordError("panic")
		}
	}()

	if i.GuildID == "" {
		b.respond(r, i, msgGuildOnly, true)
		return
	}

	switch i.Type {
	case discordgo.InteractionApplicationCommand:
		b.handleCommand(r, i)
	case discordgo.InteractionMessageComponent:
		b.handleButton(r, i)
	}
}

func (b *Bot) handleCommand(r responder, i *discordgo.InteractionCreate) {
	data := i.ApplicationCommandData()
	inv := invocationOf(i)
	start := time.Now()
	var err error

	switch data.Name {
	case cmdPlay:
		err = b.runPlay(r, i, inv, stringOption(data.Options, optQuery))

	case cmdQueue:
		var resp *discordgo.InteractionResponseData
		if resp, err = b.queueView(inv.GuildID); err == nil {
			err = r.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
				Type: discordgo.InteractionResponseChannelMessageWithSource,
				Data: resp,
			})
		} else {
			b.respond(r, i, b.errs.Handle(err, b.fields(data.Name, inv)), true)
		}

	case cmdSkip, cmdPause, cmdResume, cmdStop:
		err = b.runControl(r, i, inv, data.Name, false)

	default:
		b.log.Warn("Received unknown command", logger.Fields{"command": data.Name})
		b.respond(r, i, msgUnknownCommand, true)
		return
	}

	b.finish(data.Name, inv, start, err)
}

func (b *Bot) handleButton(r responder, i *discordgo.InteractionCreate) {
	id := i.MessageComponentData().CustomID
	inv := invocationOf(i)
	start := time.Now()

	switch id {
	case buttonPause, buttonResume, buttonSkip, buttonStop:
		err := b.runControl(r, i, inv, id, true)
		b.finish("button_"+id, inv, start, err)
	default:
		b.log.Debug("ignored unknown button", logger.Fields{"custom_id": id})
	}
}

// runPlay defers the reply since searching and joining voice can take a while.
func (b *Bot) runPlay(r responder, i *discordgo.InteractionCreate, inv invocation, query string) error {
	if err := r.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
	}); err != nil {
		b.log.Warn("Failed to defer play reply", logger.Fields{"error": err.Error()})
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), playTimeout)
	defer cancel()

	content, err := b.play(ctx, inv, query)
	if err != nil {
		content = b.errs.Handle(err, b.fields(cmdPlay, inv))
	}
	if content != "" {
		if _, editErr := r.InteractionResponseEdit(i.Interaction, &discordgo.WebhookEdit{Content: &content}); editErr != nil {
			b.log.Warn("Failed to edit play reply", logger.Fields{"error": editErr.Error()})
		}
	}
	return err
}

func (b *Bot) runControl(r responder, i *discordgo.InteractionCreate, inv invocation, action string, ephemeral bool) error {
	ctx, cancel := context.WithTimeout(context.Background(), playTimeout)
	defer cancel()

	content, err := b.control(ctx, inv, action)
	if err != nil {
		content = b.errs.Handle(err, b.fields(action, inv))
		ephemeral = true
	}
	b.respond(r, i, content, ephemeral)
	return err
}

func (b *Bot) respond(r responder, i *discordgo.InteractionCreate, content string, ephemeral bool) {
	if content == "" {
		return
	}
	data := &discordgo.InteractionResponseData{Content: content}
	if ephemeral {
		data.Flags = discordgo.MessageFlagsEphemeral
	}
	err := r.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: data,
	})
	if err != nil {
		b.log.Warn("Failed to respond to interaction", logger.Fields{"error": err.Error()})
	}
}

func (b *Bot) finish(command string, inv invocation, start time.Time, err error) {
	duration := time.Since(start)
	b.metrics.RecordCommandExecution(command, err == nil, duration)
	b.log.LogCommandEvent(command, inv.UserID, inv.GuildID, err == nil, duration, logger.Fields{"channel_id": inv.ChannelID})
}

func (b *Bot) fields(command string, inv invocation) logger.Fields {
	return logger.Fields{
		"command":    command,
		"user_id":    inv.UserID,
		"guild_id":   inv.GuildID,
		"channel_id": inv.ChannelID,
	}
}

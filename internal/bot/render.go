package bot

import (
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/samber/lo"

	"github.com/IbrahimO9/discord-music-bot/internal/services/playback"
	"github.com/IbrahimO9/discord-music-bot/internal/services/queue"
)

const (
	colorNowPlaying = 0x00ff00
	colorQueue      = 0x0099ff

	queuePageSize = 10
)

// Button custom ids. They match the command names they mirror.
const (
	buttonPause  = "pause"
	buttonResume = "resume"
	buttonSkip   = "skip"
	buttonStop   = "stop"
)

func trackLink(t queue.Track) string {
	if t.SourceURL == "" {
		return t.Title
	}
	return fmt.Sprintf("[%s](%s)", t.Title, t.SourceURL)
}

func nowPlayingEmbed(track *queue.Track, pending int) *discordgo.MessageEmbed {
	embed := &discordgo.MessageEmbed{
		Title:       "🎶 Now Playing",
		Description: trackLink(*track),
		Color:       colorNowPlaying,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Requested by", Value: lo.Ternary(track.Requester != "", track.Requester, "unknown"), Inline: true},
			{Name: "In Queue", Value: fmt.Sprintf("%d songs", pending), Inline: true},
		},
	}
	if track.Thumbnail != "" {
		embed.Thumbnail = &discordgo.MessageEmbedThumbnail{URL: track.Thumbnail}
	}
	return embed
}

func controlsRow() discordgo.ActionsRow {
	return discordgo.ActionsRow{
		Components: []discordgo.MessageComponent{
			discordgo.Button{Label: "⏸️ Pause", Style: discordgo.PrimaryButton, CustomID: buttonPause},
			discordgo.Button{Label: "▶️ Resume", Style: discordgo.SuccessButton, CustomID: buttonResume},
			discordgo.Button{Label: "⏭️ Skip", Style: discordgo.SecondaryButton, CustomID: buttonSkip},
			discordgo.Button{Label: "⏹️ Stop", Style: discordgo.DangerButton, CustomID: buttonStop},
		},
	}
}

// queueEmbed lists the first page of pending tracks. It returns nil when
// there is nothing playing and nothing queued.
func queueEmbed(snap playback.Snapshot) *discordgo.MessageEmbed {
	if snap.Current == nil && len(snap.Pending) == 0 {
		return nil
	}

	page := lo.Slice(snap.Pending, 0, queuePageSize)
	lines := lo.Map(page, func(t queue.Track, i int) string {
		return fmt.Sprintf("**%d.** %s - *Requested by %s*", i+1, trackLink(t), t.Requester)
	})
	if len(lines) == 0 {
		lines = []string{"Nothing else queued."}
	}
	if more := len(snap.Pending) - len(page); more > 0 {
		lines = append(lines, fmt.Sprintf("*...and %d more*", more))
	}

	embed := &discordgo.MessageEmbed{
		Title:       "🎵 Music Queue",
		Color:       colorQueue,
		Description: strings.Join(lines, "\n"),
		Footer:      &discordgo.MessageEmbedFooter{Text: fmt.Sprintf("Total songs: %d", len(snap.Pending))},
	}
	if snap.Current != nil {
		status := "▶️ " + trackLink(*snap.Current)
		if snap.Paused {
			status = "⏸️ " + trackLink(*snap.Current)
		}
		embed.Fields = []*discordgo.MessageEmbedField{{Name: "Now Playing", Value: status}}
	}
	return embed
}

func playReply(title string, res playback.PlayResult) string {
	if res.Started {
		return fmt.Sprintf("✅ Playing: **%s**", title)
	}
	return fmt.Sprintf("✅ Added to queue: **%s** (Position: %d)", title, res.Position)
}

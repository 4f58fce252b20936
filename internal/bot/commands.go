package bot

import "github.com/bwmarrin/discordgo"

const (
	cmdPlay   = "play"
	cmdQueue  = "queue"
	cmdSkip   = "skip"
	cmdPause  = "pause"
	cmdResume = "resume"
	cmdStop   = "stop"

	optQuery = "query"
)

// Commands returns the slash command definitions registered on ready
func Commands() []*discordgo.ApplicationCommand {
	return []*discordgo.ApplicationCommand{
		{
			Name:        cmdPlay,
			Description: "Play a song from YouTube",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        optQuery,
					Description: "Song name or URL",
					Required:    true,
				},
			},
		},
		{Name: cmdQueue, Description: "View the current music queue"},
		{Name: cmdSkip, Description: "Skip the current song"},
		{Name: cmdPause, Description: "Pause the current song"},
		{Name: cmdResume, Description: "Resume the paused song"},
		{Name: cmdStop, Description: "Stop playing and disconnect the bot"},
	}
}

func stringOption(opts []*discordgo.ApplicationCommandInteractionDataOption, name string) string {
	for _, o := range opts {
		if o.Name == name && o.Type == discordgo.ApplicationCommandOptionString {
			return o.StringValue()
		}
	}
	return ""
}

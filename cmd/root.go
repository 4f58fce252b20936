package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/IbrahimO9/discord-music-bot/config"
	"github.com/IbrahimO9/discord-music-bot/internal/app"
	"github.com/IbrahimO9/discord-music-bot/pkg/logger"
)

var rootCmd = &cobra.Command{
	Use:     "discord-music-bot",
	Short:   "Discord voice-chat music bot",
	Long:    "Plays YouTube audio in Discord voice channels with a per-guild queue, driven by slash commands and buttons.",
	Version: app.Version,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadConfig()
		if err != nil {
			return err
		}
		if err := app.Run(cfg); err != nil {
			logger.Error("Bot stopped with an error", err)
			return err
		}
		return nil
	},
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/IbrahimO9/discord-music-bot/config"
	"github.com/IbrahimO9/discord-music-bot/internal/app"
	"github.com/IbrahimO9/discord-music-bot/pkg/metrics"
)

var backendFlag string

var resolveCmd = &cobra.Command{
	Use:   "resolve <youtube-url>",
	Short: "Resolve a YouTube URL to a playable audio stream URL",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.ReadConfig()
		if err != nil {
			return err
		}
		if backendFlag != "" {
			cfg.Resolver.Backend = backendFlag
		}

		log, err := app.NewLogger(cfg)
		if err != nil {
			return err
		}
		res, err := app.NewResolver(cfg, log, metrics.NewMetrics())
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Playback.ResolveTimeout)
		defer cancel()

		result, err := res.Resolve(ctx, args[0])
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "backend:  %s\n", result.Backend)
		if result.Stream.MimeType != "" {
			fmt.Fprintf(out, "format:   %s (%d bps)\n", result.Stream.MimeType, result.Stream.Bitrate)
		}
		fmt.Fprintf(out, "expires:  %s\n", result.IssuedAt.Add(cfg.Playback.StreamTTL).Format("15:04:05"))
		fmt.Fprintln(out, result.URL)
		return nil
	},
}

func init() {
	resolveCmd.Flags().StringVarP(&backendFlag, "backend", "b", "", "resolver backend (piped, ytdlp, youtube)")
	rootCmd.AddCommand(resolveCmd)
}

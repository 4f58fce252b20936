package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/IbrahimO9/discord-music-bot/config"
	"github.com/IbrahimO9/discord-music-bot/pkg/dependency"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Check that ffmpeg and the resolver's tools are installed",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.ReadConfig()
		if err != nil {
			return err
		}

		report := dependency.ValidateEnvironment(cmd.Context(), cfg.Resolver.Backend)
		fmt.Fprintln(cmd.OutOrStdout(), report.GenerateReport())
		if !report.IsHealthy() {
			return fmt.Errorf("required dependencies are missing: %v", report.RequiredMissing)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(checkCmd)
}

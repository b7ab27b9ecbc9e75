package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "swasthya-link",
	Short: "Health dashboard backend with wearable OAuth2 connector",
	Long: `swasthya-link serves the health dashboard API, relays emergency alerts
and keeps the wearable provider's OAuth2 token fresh.

Run without a subcommand to start the server.`,
	SilenceUsage: true,
	RunE:         runServe,
}

func main() {
	rootCmd.AddCommand(serveCmd, migrateCmd, wearableCmd, hashPasswordCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/zapabug/madtrips-sub000/cmd/madtrips/commands"
	"github.com/zapabug/madtrips-sub000/logger"
)

var rootCmd = &cobra.Command{
	Use:   "madtrips",
	Short: "madtrips - Nostr social graph engine for trusted travel discovery",
	Long: `madtrips - Social graph acquisition, caching and trust scoring over Nostr.

The engine connects to Nostr relays, assembles follow graphs around a set of
seed identities, scores every identity's relevance, and serves the result
over HTTP and WebSocket for the booking frontend.

Available commands:
  server - Start the graph engine and its HTTP/WebSocket API
  graph  - Build a graph once and print it as JSON
  seeds  - Manage the persisted seed identity registry
  relays - Probe the configured relay endpoints

Examples:
  madtrips server                       # Start the engine
  madtrips graph npub1... npub1...      # One-shot graph build
  madtrips seeds add npub1...           # Register a seed identity
  madtrips relays                       # Show relay connectivity`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		verbosity, _ := cmd.Flags().GetCount("verbose")
		if err := logger.Initialize(false, verbosity); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().CountP("verbose", "v", "Increase output verbosity (repeat for more detail: -v, -vv, -vvv)")
	rootCmd.PersistentFlags().String("config", "", "Path to config file (default: ./madtrips.toml)")

	rootCmd.AddCommand(commands.ServerCmd)
	rootCmd.AddCommand(commands.GraphCmd)
	rootCmd.AddCommand(commands.SeedsCmd)
	rootCmd.AddCommand(commands.RelaysCmd)
	rootCmd.AddCommand(commands.VersionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

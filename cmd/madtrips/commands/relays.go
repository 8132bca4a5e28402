package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/zapabug/madtrips-sub000/logger"
	"github.com/zapabug/madtrips-sub000/relay"
)

// RelaysCmd probes the configured relay endpoints.
var RelaysCmd = &cobra.Command{
	Use:   "relays",
	Short: "Probe the configured relay endpoints",
	Long:  `Attempt a connection to every configured relay endpoint and report which answered.`,
	RunE:  runRelays,
}

var relaysTimeout time.Duration

func init() {
	RelaysCmd.Flags().DurationVar(&relaysTimeout, "timeout", 10*time.Second, "Per-endpoint connection timeout")
}

func runRelays(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	for _, url := range cfg.Relays.AllGroups() {
		ctx, cancel := context.WithTimeout(cmd.Context(), relaysTimeout)
		conn, err := relay.DialWebsocket(ctx, url, logger.Logger)
		cancel()
		if err != nil {
			fmt.Fprintf(out, "%-50s DEAD   %v\n", url, err)
			continue
		}
		conn.Close()
		fmt.Fprintf(out, "%-50s OK\n", url)
	}
	return nil
}

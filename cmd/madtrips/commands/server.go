package commands

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/zapabug/madtrips-sub000/graph"
	"github.com/zapabug/madtrips-sub000/logger"
	"github.com/zapabug/madtrips-sub000/server"
)

// ServerCmd starts the graph engine and its HTTP/WebSocket API.
var ServerCmd = &cobra.Command{
	Use:     "server",
	Aliases: []string{"serve"},
	Short:   "Start the graph engine and its HTTP/WebSocket API",
	Long: `Connect to the configured Nostr relays, open the seed registry, and serve
the social graph API until interrupted. Graph and connectivity changes are
pushed to WebSocket clients on /ws.`,
	RunE: runServer,
}

var serverListen string

func init() {
	ServerCmd.Flags().StringVar(&serverListen, "listen", "", "Listen address (overrides config)")
}

func runServer(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if serverListen != "" {
		cfg.Server.Listen = serverListen
	}

	a, err := newApp(cfg, true)
	if err != nil {
		return err
	}
	defer a.close()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a.start(ctx)

	// Warm the graph before serving when seeds are already registered.
	if seeds, err := a.seeds.PubKeys(ctx); err == nil && len(seeds) > 0 {
		go func() {
			if _, err := a.builder.Build(ctx, seeds, graph.Options{ShowSecondDegree: true}); err != nil {
				logger.Logger.Warnw("Initial graph build failed", "error", err)
			}
		}()
	}

	srv := server.New(cfg.Server, a.builder, a.pool, a.social, a.seeds, a.feed, a.avatars, logger.Logger)
	return srv.Run(ctx)
}

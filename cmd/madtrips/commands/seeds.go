package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zapabug/madtrips-sub000/logger"
	"github.com/zapabug/madtrips-sub000/nostr"
	"github.com/zapabug/madtrips-sub000/store"
)

// SeedsCmd manages the persisted seed identity registry.
var SeedsCmd = &cobra.Command{
	Use:   "seeds",
	Short: "Manage the persisted seed identity registry",
}

var seedsAddCmd = &cobra.Command{
	Use:   "add <npub|hex>",
	Short: "Register a seed identity",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		seeds, cleanup, err := openSeeds(cmd)
		if err != nil {
			return err
		}
		defer cleanup()
		return seeds.Add(cmd.Context(), args[0])
	},
}

var seedsRemoveCmd = &cobra.Command{
	Use:     "remove <npub|hex>",
	Aliases: []string{"rm"},
	Short:   "Remove a seed identity",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		seeds, cleanup, err := openSeeds(cmd)
		if err != nil {
			return err
		}
		defer cleanup()
		return seeds.Remove(cmd.Context(), args[0])
	},
}

var seedsListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List registered seed identities",
	RunE: func(cmd *cobra.Command, args []string) error {
		seeds, cleanup, err := openSeeds(cmd)
		if err != nil {
			return err
		}
		defer cleanup()

		listed, err := seeds.List(cmd.Context())
		if err != nil {
			return err
		}
		for _, seed := range listed {
			npub, err := nostr.EncodeNpub(seed.PubKey)
			if err != nil {
				npub = seed.PubKey
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", npub, seed.AddedAt.Format("2006-01-02 15:04"))
		}
		return nil
	},
}

func init() {
	SeedsCmd.AddCommand(seedsAddCmd)
	SeedsCmd.AddCommand(seedsRemoveCmd)
	SeedsCmd.AddCommand(seedsListCmd)
}

func openSeeds(cmd *cobra.Command) (*store.SeedStore, func(), error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}
	db, err := store.Open(cfg.Database.Path, logger.Logger)
	if err != nil {
		return nil, nil, err
	}
	return store.NewSeedStore(db, logger.Logger), func() { db.Close() }, nil
}

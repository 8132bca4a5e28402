package commands

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zapabug/madtrips-sub000/graph"
)

// GraphCmd builds a graph once and prints it as JSON.
var GraphCmd = &cobra.Command{
	Use:   "graph [seeds...]",
	Short: "Build a social graph once and print it as JSON",
	Long: `Connect to the configured relays, build the graph for the given seed
identities (npub or hex), and print the result. Without arguments the
persisted seed registry is used.`,
	RunE: runGraph,
}

var (
	graphSecondDegree bool
	graphPretty       bool
)

func init() {
	GraphCmd.Flags().BoolVar(&graphSecondDegree, "second-degree", false, "Expand one level beyond the seed set")
	GraphCmd.Flags().BoolVar(&graphPretty, "pretty", false, "Indent the JSON output")
}

func runGraph(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	seeds := args
	withStore := len(seeds) == 0

	a, err := newApp(cfg, withStore)
	if err != nil {
		return err
	}
	defer a.close()

	ctx := cmd.Context()
	if withStore {
		if seeds, err = a.seeds.PubKeys(ctx); err != nil {
			return err
		}
		if len(seeds) == 0 {
			return fmt.Errorf("no seeds given and none registered")
		}
	}

	a.start(ctx)

	g, err := a.builder.Build(ctx, seeds, graph.Options{
		ShowSecondDegree: graphSecondDegree,
		ForceFresh:       true,
	})
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	if graphPretty {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(g)
}

package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/fleetops/kpi-cli/internal/dimcache"
	"github.com/fleetops/kpi-cli/internal/store"
)

var dimensionsCmd = &cobra.Command{
	Use:   "dimensions <regions|weeks>",
	Short: "List filter dimensions (cached per session)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		var out any
		switch args[0] {
		case "regions":
			out, err = dimcache.GetOrFetchAs(ctx, env.Cache, dimcache.KeyRegions, dimcache.TTLRegions,
				func(ctx context.Context) ([]string, error) { return env.Store.Regions(ctx) })
		case "weeks":
			out, err = dimcache.GetOrFetchAs(ctx, env.Cache, dimcache.KeyWeeks, dimcache.TTLWeeks,
				func(ctx context.Context) ([]store.WeekYear, error) { return env.Store.WeeksYears(ctx) })
		default:
			return eris.Errorf("unknown dimension %q, want regions or weeks", args[0])
		}
		if err != nil {
			return eris.Wrap(err, "cmd: dimensions "+args[0])
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	},
}

func init() {
	rootCmd.AddCommand(dimensionsCmd)
}

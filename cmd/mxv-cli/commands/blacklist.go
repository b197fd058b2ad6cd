package commands

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/mxverify/mxverify/verifier/blacklist"
)

type BlacklistSettings struct {
	Source       string
	SnapshotPath string
	Timeout      time.Duration
}

var blacklistSettings = &BlacklistSettings{}

// updateBlacklistCmd represents the update-blacklist command
var updateBlacklistCmd = &cobra.Command{
	Use:   "update-blacklist",
	Short: "Fetch the disposable domain list",
	Long: `Fetches the disposable domain list and writes it to the snapshot
path, so subsequent runs don't need the network. The fetch is forced,
regardless of the snapshot's age.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		store := blacklist.NewStore()

		options := []blacklist.UpdaterOption{
			blacklist.WithSnapshotPath(blacklistSettings.SnapshotPath),
		}

		if blacklistSettings.Source != "" {
			options = append(options, blacklist.WithSourceURL(blacklistSettings.Source))
		}

		updater := blacklist.NewUpdater(store, options...)

		ctx, cancel := context.WithTimeout(cmd.Context(), blacklistSettings.Timeout)
		defer cancel()

		if err := updater.Update(ctx, true); err != nil {
			return err
		}

		cmd.Printf("fetched %d domains into %s\n", store.Len(), blacklistSettings.SnapshotPath)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(updateBlacklistCmd)

	updateBlacklistCmd.Flags().StringVar(&blacklistSettings.Source, "source", "", "List source URL, empty means the default source")
	updateBlacklistCmd.Flags().StringVar(&blacklistSettings.SnapshotPath, "snapshot", "blacklist.snapshot", "Where to write the fetched list")
	updateBlacklistCmd.Flags().DurationVar(&blacklistSettings.Timeout, "timeout", time.Minute, "Maximum duration of the fetch")
}

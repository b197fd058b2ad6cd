package commands

import (
	"bufio"
	"encoding/json"
	"time"

	"github.com/spf13/cobra"
)

type ReportSettings struct {
	OnlyInvalid bool
}

var reportSettings = &ReportSettings{}

// reportCmd represents the report command
var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Summarize check output",
	Long: `Reads the JSON lines a check run produced and summarizes them.
Typical use is piping the two together:

  mxv-cli check --format csv < addresses.csv | mxv-cli report`,
	Run: func(cmd *cobra.Command, args []string) {
		var stats ReportStats
		var start = time.Now()

		scanner := bufio.NewScanner(cmd.InOrStdin())
		encoder := json.NewEncoder(cmd.OutOrStdout())

		for scanner.Scan() {
			line := scanner.Bytes()
			if len(line) == 0 {
				continue
			}

			var result CheckResult
			if err := json.Unmarshal(line, &result); err != nil {
				cmd.PrintErrf("skipping malformed line %s\n", err)
				continue
			}

			switch {
			case result.Valid == nil:
				stats.Unknown++
			case *result.Valid:
				stats.Passed++
			default:
				stats.Rejected++
			}

			if reportSettings.OnlyInvalid && (result.Valid == nil || *result.Valid) {
				continue
			}

			if reportSettings.OnlyInvalid {
				if err := encoder.Encode(result); err != nil {
					cmd.PrintErr(err)
				}
			}
		}

		if err := scanner.Err(); err != nil {
			cmd.PrintErr(err)
		}

		stats.Duration = time.Since(start).Milliseconds()
		if err := encoder.Encode(stats); err != nil {
			cmd.PrintErr(err)
		}
	},
}

func init() {
	rootCmd.AddCommand(reportCmd)

	reportCmd.Flags().BoolVar(&reportSettings.OnlyInvalid, "only-invalid", false, "Only report rejected checks")
}

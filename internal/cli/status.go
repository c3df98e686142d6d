package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/TomasWolaschka/ai-rules/pkg/rulesapi"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show daemon health, queue depth and trigger state",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		var health map[string]string
		if err := getJSON("/healthz", &health); err != nil {
			return err
		}
		fmt.Printf("daemon: %s (%s)\n\n", health["status"], serverURL())

		var stats rulesapi.QueueStatsResponse
		if err := getJSON("/v1/queues/stats", &stats); err != nil {
			return err
		}
		fmt.Println("queues:")
		for _, lane := range []string{"emergency", "generation", "analysis"} {
			s := stats.Lanes[lane]
			fmt.Printf("  %-11s queued=%d active=%d succeeded=%d failed=%d dead=%d\n",
				lane, s.Queued, s.Active, s.Succeeded, s.Failed, s.Dead)
		}

		var triggers rulesapi.ListTriggersResponse
		if err := getJSON("/v1/triggers", &triggers); err != nil {
			return err
		}
		fmt.Println("\ntriggers:")
		for _, t := range triggers.Triggers {
			state := "enabled"
			if !t.Enabled {
				state = "disabled"
			}
			if t.Firing {
				state += ", firing"
			}
			fmt.Printf("  %-20s %-14s (%s) next=%s runs=%d errors=%d skipped=%d\n",
				t.Name, t.Schedule, state, t.NextRun, t.RunCount, t.ErrorCount, t.Skipped)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

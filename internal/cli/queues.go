package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/TomasWolaschka/ai-rules/pkg/rulesapi"
)

var queuesCmd = &cobra.Command{
	Use:   "queues",
	Short: "Inspect job queues and manage dead letters",
}

var queuesStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show per-lane queue statistics",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		var resp rulesapi.QueueStatsResponse
		if err := getJSON("/v1/queues/stats", &resp); err != nil {
			return err
		}
		for _, lane := range []string{"emergency", "generation", "analysis"} {
			s := resp.Lanes[lane]
			fmt.Printf("%-11s queued=%d active=%d succeeded=%d failed=%d dead=%d\n",
				lane, s.Queued, s.Active, s.Succeeded, s.Failed, s.Dead)
		}
		return nil
	},
}

var queuesDeadCmd = &cobra.Command{
	Use:   "dead <lane>",
	Short: "List dead-lettered jobs in a lane",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var resp struct {
			Lane string             `json:"lane"`
			Jobs []rulesapi.DeadJob `json:"jobs"`
		}
		if err := getJSON("/v1/queues/"+args[0]+"/dead", &resp); err != nil {
			return err
		}
		if len(resp.Jobs) == 0 {
			fmt.Printf("no dead-lettered jobs in %s\n", args[0])
			return nil
		}
		for _, j := range resp.Jobs {
			fmt.Printf("%s  %-28s attempts=%d  %s\n", j.JobID, j.RuleType, j.Attempts, j.LastError)
		}
		return nil
	},
}

var queuesRetryDeadCmd = &cobra.Command{
	Use:   "retry-dead <lane>",
	Short: "Requeue every dead-lettered job in a lane",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var resp rulesapi.RetryDeadResponse
		if err := postJSON("/v1/queues/"+args[0]+"/retry-dead", nil, &resp); err != nil {
			return err
		}
		fmt.Printf("requeued %d job(s) from %s\n", resp.Requeued, args[0])
		return nil
	},
}

func init() {
	queuesCmd.AddCommand(queuesStatsCmd)
	queuesCmd.AddCommand(queuesDeadCmd)
	queuesCmd.AddCommand(queuesRetryDeadCmd)
	rootCmd.AddCommand(queuesCmd)
}

package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/TomasWolaschka/ai-rules/pkg/rulesapi"
)

var historyCmd = &cobra.Command{
	Use:   "history <rule-type>",
	Short: "Show the version history of a rule artifact",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var resp rulesapi.HistoryResponse
		if err := getJSON("/v1/artifacts/"+args[0]+"/history", &resp); err != nil {
			return err
		}
		for _, v := range resp.Versions {
			if v.Active {
				fmt.Printf("%-12s active   checksum=%s\n", v.Version, v.Checksum)
				continue
			}
			fmt.Printf("%-12s archived %s reason=%s\n", v.Version, v.ArchivedAt, v.Reason)
		}
		return nil
	},
}

var rollbackCmd = &cobra.Command{
	Use:   "rollback <rule-type> <version>",
	Short: "Restore an archived artifact version as active",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		var resp rulesapi.RollbackResponse
		if err := postJSON("/v1/artifacts/"+args[0]+"/rollback", rulesapi.RollbackRequest{Version: args[1]}, &resp); err != nil {
			return err
		}
		fmt.Printf("%s rolled back to %s (checksum %s)\n", resp.RuleType, resp.Version, resp.Checksum)
		return nil
	},
}

var cleanupDays int

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Delete archived artifacts older than the retention window",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		var resp rulesapi.CleanupResponse
		if err := postJSON("/v1/artifacts/cleanup", rulesapi.CleanupRequest{RetentionDays: cleanupDays}, &resp); err != nil {
			return err
		}
		fmt.Printf("removed %d archived artifact(s)\n", resp.Removed)
		return nil
	},
}

func init() {
	cleanupCmd.Flags().IntVar(&cleanupDays, "days", 0, "retention in days (0 uses the daemon's configured retention)")
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(rollbackCmd)
	rootCmd.AddCommand(cleanupCmd)
}

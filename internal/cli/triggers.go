package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/TomasWolaschka/ai-rules/pkg/rulesapi"
)

var triggersCmd = &cobra.Command{
	Use:   "triggers",
	Short: "Inspect and control scheduled triggers",
}

var triggersListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered triggers",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		var resp rulesapi.ListTriggersResponse
		if err := getJSON("/v1/triggers", &resp); err != nil {
			return err
		}
		for _, t := range resp.Triggers {
			fmt.Printf("%-20s schedule=%q enabled=%t firing=%t last=%s next=%s runs=%d errors=%d skipped=%d\n",
				t.Name, t.Schedule, t.Enabled, t.Firing, orDash(t.LastRun), orDash(t.NextRun), t.RunCount, t.ErrorCount, t.Skipped)
		}
		return nil
	},
}

func triggerActionCmd(action, short string) *cobra.Command {
	return &cobra.Command{
		Use:   action + " <name>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp rulesapi.TriggerActionResponse
			if err := postJSON("/v1/triggers/"+args[0]+"/"+action, nil, &resp); err != nil {
				return err
			}
			fmt.Printf("%s: %s\n", args[0], action+"d")
			return nil
		},
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func init() {
	triggersCmd.AddCommand(triggersListCmd)
	triggersCmd.AddCommand(triggerActionCmd("enable", "Enable a trigger"))
	triggersCmd.AddCommand(triggerActionCmd("disable", "Disable a trigger"))
	triggersCmd.AddCommand(triggerActionCmd("fire", "Fire a trigger immediately"))
	rootCmd.AddCommand(triggersCmd)
}

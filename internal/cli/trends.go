package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/TomasWolaschka/ai-rules/pkg/rulesapi"
)

var trendsCmd = &cobra.Command{
	Use:   "trends",
	Short: "Inspect cached trend scores",
}

var trendsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List cached trend snapshots",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		var resp rulesapi.ListTrendsResponse
		if err := getJSON("/v1/trends", &resp); err != nil {
			return err
		}
		if len(resp.Trends) == 0 {
			fmt.Println("no trend snapshots cached")
			return nil
		}
		for _, t := range resp.Trends {
			flags := make([]string, 0, 2)
			if t.Breaking {
				flags = append(flags, "breaking")
			}
			if !t.Fresh {
				flags = append(flags, "stale")
			}
			suffix := ""
			if len(flags) > 0 {
				suffix = " [" + strings.Join(flags, ",") + "]"
			}
			fmt.Printf("%-14s score=%.2f computed=%s sources=%s%s\n",
				t.Technology, t.Score, t.ComputedAt, strings.Join(t.Sources, ","), suffix)
		}
		return nil
	},
}

var trendsInvalidateCmd = &cobra.Command{
	Use:   "invalidate <technology>",
	Short: "Force the next score for a technology to recompute",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := postJSON("/v1/trends/"+args[0]+"/invalidate", nil, nil); err != nil {
			return err
		}
		fmt.Printf("invalidated trend cache for %s\n", args[0])
		return nil
	},
}

func init() {
	trendsCmd.AddCommand(trendsListCmd)
	trendsCmd.AddCommand(trendsInvalidateCmd)
	rootCmd.AddCommand(trendsCmd)
}

package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/TomasWolaschka/ai-rules/pkg/rulesapi"
)

var (
	updateLane     string
	updatePriority string
	updatePrompt   string
)

var updateCmd = &cobra.Command{
	Use:   "update [technology...]",
	Short: "Submit rule regeneration jobs",
	Long: `Submit regeneration jobs for one or more technologies, or pass --prompt
to let the daemon classify free text into technologies.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 && updatePrompt == "" {
			return fmt.Errorf("provide at least one technology or --prompt")
		}
		requests := make([]rulesapi.SubmitJobRequest, 0, len(args)+1)
		for _, tech := range args {
			requests = append(requests, rulesapi.SubmitJobRequest{
				Technology: tech,
				Lane:       updateLane,
				Priority:   updatePriority,
			})
		}
		if updatePrompt != "" {
			requests = append(requests, rulesapi.SubmitJobRequest{
				Prompt:   updatePrompt,
				Lane:     updateLane,
				Priority: updatePriority,
			})
		}
		for _, req := range requests {
			var resp rulesapi.SubmitJobResponse
			if err := postJSON("/v1/jobs", req, &resp); err != nil {
				return err
			}
			for _, job := range resp.Jobs {
				fmt.Printf("queued %s (%s lane): %s\n", job.RuleType, job.Lane, job.JobID)
			}
		}
		return nil
	},
}

func init() {
	updateCmd.Flags().StringVar(&updateLane, "lane", "generation", "queue lane (emergency|generation|analysis)")
	updateCmd.Flags().StringVar(&updatePriority, "priority", "", "priority hint (low|medium|high)")
	updateCmd.Flags().StringVar(&updatePrompt, "prompt", "", "free text to classify into technologies")
	rootCmd.AddCommand(updateCmd)
}

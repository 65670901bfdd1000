package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var dlqCmd = &cobra.Command{
	Use:   "dlq",
	Short: "Manage the Dead Letter Queue (DLQ)",
	Long:  `Inspect and retry tasks that permanently failed after exhausting their delivery budget.`,
}

var dlqListCmd = &cobra.Command{
	Use:   "list",
	Short: "List dead-lettered tasks",
	Run: func(cmd *cobra.Command, args []string) {
		client := NewTaskClient(viper.GetString("api_url"), viper.GetString("api_key"))

		limit, _ := cmd.Flags().GetInt("limit")
		offset, _ := cmd.Flags().GetInt("offset")

		entries, err := client.ListDLQ(limit, offset)
		if err != nil {
			cmd.Printf("Error fetching DLQ: %s\n", err)
			os.Exit(1)
		}

		if len(entries) == 0 {
			if offset > 0 {
				cmd.Println("No more tasks found in DLQ.")
			} else {
				cmd.Println("No tasks found in DLQ.")
			}
			return
		}

		// Print table
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "TASK ID\tATTEMPTS\tFAILED AT\tERROR")
		for _, e := range entries {
			failedAt := ""
			if e.FailedAt != nil {
				failedAt = e.FailedAt.Format(time.RFC3339)
			}
			// Truncate long error messages for the table view
			errMsg := e.ErrorMessage
			if len(errMsg) > 50 {
				errMsg = errMsg[:47] + "..."
			}

			fmt.Fprintf(w, "%s\t%d\t%s\t%s\n",
				e.TaskID,
				e.Attempts,
				failedAt,
				errMsg,
			)
		}
		w.Flush()
	},
}

var dlqRetryCmd = &cobra.Command{
	Use:   "retry [task_id]",
	Short: "Retry a dead-lettered task",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		taskID := args[0]
		client := NewTaskClient(viper.GetString("api_url"), viper.GetString("api_key"))

		resp, err := client.RetryDLQ(taskID)
		if err != nil {
			cmd.Printf("Error retrying task: %s\n", err)
			os.Exit(1)
		}

		cmd.Printf("✓ Task %s requeued with a fresh delivery budget.\n", resp.TaskID)
	},
}

func init() {
	rootCmd.AddCommand(dlqCmd)
	dlqCmd.AddCommand(dlqListCmd)
	dlqCmd.AddCommand(dlqRetryCmd)

	dlqListCmd.Flags().IntP("limit", "l", 20, "Number of items in the DLQ list")
	dlqListCmd.Flags().IntP("offset", "o", 0, "Offset for pagination")
}

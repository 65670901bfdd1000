package cmd

import (
	"github.com/keinar/Agnox-sub002/pkg/api"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var submitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Submit a test run",
	Long: `Submit a test suite for execution.

The task id is the idempotency key: submitting the same id twice returns
the existing execution instead of starting a second run.

Example:
  agnoxctl submit --task-id "run-42" --image "cypress/included:13" --tests "login,checkout"
  agnoxctl submit --task-id "smoke-1" --image "alpine" --command "sh,-c,./run-smoke.sh" --trigger ci`,
	Run: func(cmd *cobra.Command, args []string) {
		flags := cmd.Flags()
		taskID, _ := flags.GetString("task-id")
		image, _ := flags.GetString("image")
		command, _ := flags.GetStringSlice("command")
		folder, _ := flags.GetString("folder")
		tests, _ := flags.GetStringSlice("tests")
		group, _ := flags.GetString("group")
		batchID, _ := flags.GetString("batch-id")
		trigger, _ := flags.GetString("trigger")
		cycleID, _ := flags.GetString("cycle-id")
		cycleItemID, _ := flags.GetString("cycle-item-id")

		apiURL := viper.GetString("api_url")
		apiKey := viper.GetString("api_key")

		if apiKey == "" {
			cmd.Println("API key not found. Please set it using the --key flag or the AGNOX_API_KEY environment variable")
			return
		}

		if taskID == "" {
			cmd.Println("Error: --task-id is required")
			return
		}

		if image == "" {
			cmd.Println("Error: --image is required")
			return
		}

		client := NewTaskClient(apiURL, apiKey)

		result, err := client.SubmitTask(api.SubmitTaskRequest{
			TaskID:      taskID,
			Image:       image,
			Command:     command,
			Folder:      folder,
			Tests:       tests,
			GroupName:   group,
			BatchID:     batchID,
			Trigger:     trigger,
			CycleID:     cycleID,
			CycleItemID: cycleItemID,
		})
		if err != nil {
			if apiErr, ok := err.(*APIError); ok {
				cmd.Printf("Submit failed (%d): %s\n", apiErr.StatusCode, apiErr.Message)
			} else {
				cmd.Printf("Submit failed: %v\n", err)
			}
			return
		}

		cmd.Printf("✓ Task submitted!\nTask ID: %s\nStatus: %s\nPriority: %d\n",
			result.TaskID, result.Status, result.Priority)
	},
}

func init() {
	flags := submitCmd.Flags()
	flags.StringP("task-id", "t", "", "Unique task id, used as the idempotency key (required)")
	flags.StringP("image", "i", "", "Container image to run the suite in (required)")
	flags.StringSliceP("command", "c", []string{}, "Command to execute (optional, image default otherwise)")
	flags.String("folder", "", "Suite folder inside the repository (optional)")
	flags.StringSlice("tests", []string{}, "Subset of tests to run (optional)")
	flags.String("group", "", "Logical group name (optional)")
	flags.String("batch-id", "", "Batch id shared across related runs (optional)")
	flags.String("trigger", "manual", "Trigger: manual, cron or ci")
	flags.String("cycle-id", "", "Review cycle to sync the result into (optional)")
	flags.String("cycle-item-id", "", "Review cycle item automated by this run (optional)")

	rootCmd.AddCommand(submitCmd)
}

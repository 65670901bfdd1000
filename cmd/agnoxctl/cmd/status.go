package cmd

import (
	"fmt"
	"time"

	"github.com/keinar/Agnox-sub002/pkg/api"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var statusCmd = &cobra.Command{
	Use:   "status [task_id]",
	Short: "Get status of an execution",
	Long:  `Retrieve detailed status information for a test execution, including its current state (PENDING, RUNNING, ANALYZING, PASSED, FAILED, ERROR, UNSTABLE) and timestamps.`,
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		taskID := args[0]

		apiURL := viper.GetString("api_url")
		apiKey := viper.GetString("api_key")

		if apiKey == "" {
			cmd.Println("API key not found. Please set it using the --key flag or the AGNOX_API_KEY environment variable")
			return
		}

		client := NewTaskClient(apiURL, apiKey)
		execution, err := client.GetExecution(taskID)
		if err != nil {
			if apiErr, ok := err.(*APIError); ok {
				cmd.Printf("Request failed (%d): %s\n", apiErr.StatusCode, apiErr.Message)
			} else {
				cmd.Printf("Request failed: %v\n", err)
			}
			return
		}

		printStatus(cmd, *execution)
	},
}

func printStatus(cmd *cobra.Command, execution api.ExecutionResponse) {
	icon := statusIcon(execution.Status)
	cmd.Printf("%s %sExecution Details%s\n", icon, colorBold, colorReset)
	cmd.Println("──────────────────────────────")

	cmd.Printf("%sTask ID:%s     %s\n", colorDim, colorReset, execution.TaskID)
	cmd.Printf("%sStatus:%s      %s\n", colorDim, colorReset, colorizeStatus(execution.Status))
	cmd.Printf("%sImage:%s       %s\n", colorDim, colorReset, execution.Image)
	cmd.Printf("%sTrigger:%s     %s\n", colorDim, colorReset, execution.Trigger)
	if execution.GroupName != "" {
		cmd.Printf("%sGroup:%s       %s\n", colorDim, colorReset, execution.GroupName)
	}

	cmd.Printf("%sStarted:%s     %s\n", colorDim, colorReset, formatTimeWithRelative(execution.StartTime))

	if execution.StartTime != nil && execution.EndTime != nil {
		duration := execution.EndTime.Sub(*execution.StartTime)
		cmd.Printf("%sFinished:%s    %s %s(%s)%s\n", colorDim, colorReset,
			formatTimeWithRelative(execution.EndTime),
			colorCyan, formatDuration(duration), colorReset)
	} else {
		cmd.Printf("%sFinished:%s    %s\n", colorDim, colorReset, formatTimeWithRelative(execution.EndTime))
	}
}

// ANSI color codes
const (
	colorReset  = "\033[0m"
	colorBold   = "\033[1m"
	colorDim    = "\033[2m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
)

func statusIcon(status string) string {
	switch status {
	case "PASSED":
		return colorGreen + "✓" + colorReset
	case "FAILED", "ERROR":
		return colorRed + "✗" + colorReset
	case "UNSTABLE":
		return colorYellow + "~" + colorReset
	case "RUNNING", "ANALYZING":
		return colorYellow + "⏳" + colorReset
	case "PENDING":
		return colorCyan + "◯" + colorReset
	default:
		return "•"
	}
}

func colorizeStatus(status string) string {
	icon := statusIcon(status)
	switch status {
	case "PASSED":
		return icon + " " + colorGreen + status + colorReset
	case "FAILED", "ERROR":
		return icon + " " + colorRed + status + colorReset
	case "UNSTABLE":
		return icon + " " + colorYellow + status + colorReset
	case "RUNNING", "ANALYZING":
		return icon + " " + colorYellow + status + colorReset
	case "PENDING":
		return icon + " " + colorCyan + status + colorReset
	default:
		return status
	}
}

func formatTimeWithRelative(t *time.Time) string {
	if t == nil {
		return "-"
	}
	relative := relativeTime(*t)
	return fmt.Sprintf("%s %s(%s ago)%s", t.Format("Mon, 02 Jan 2006 15:04:05 MST"), colorDim, relative, colorReset)
}

func relativeTime(t time.Time) string {
	duration := time.Since(t)

	if duration < time.Minute {
		return fmt.Sprintf("%ds", int(duration.Seconds()))
	} else if duration < time.Hour {
		return fmt.Sprintf("%dm", int(duration.Minutes()))
	} else if duration < 24*time.Hour {
		return fmt.Sprintf("%dh", int(duration.Hours()))
	} else {
		days := int(duration.Hours() / 24)
		if days == 1 {
			return "1 day"
		}
		return fmt.Sprintf("%d days", days)
	}
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	} else if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	} else if d < time.Hour {
		return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh %dm", int(d.Hours()), int(d.Minutes())%60)
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

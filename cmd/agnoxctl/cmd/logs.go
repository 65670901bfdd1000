package cmd

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var follow bool

var logsCmd = &cobra.Command{
	Use:   "logs [task_id]",
	Short: "Read logs for an execution",
	Long: `Read the execution's output.

While the run is in progress the output comes from the live reconnect
buffer; once the run is terminal it comes from the durable record. With
--follow the command polls until the run finishes, printing only what is
new on each poll.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		taskID := args[0]

		apiURL := viper.GetString("api_url")
		apiKey := viper.GetString("api_key")

		if apiKey == "" {
			cmd.Println("API key not found. Please set it using the --key flag or the AGNOX_API_KEY environment variable")
			return
		}

		// Trap Ctrl+C to exit gracefully
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

		go func() {
			<-sigChan
			os.Exit(0)
		}()

		client := NewTaskClient(apiURL, apiKey)
		printed := 0

		for {
			resp, err := client.GetLogs(taskID)
			if err != nil {
				cmd.Printf("Error fetching logs: %v\n", err)
				if !follow {
					break
				}
				time.Sleep(2 * time.Second) // Retry backoff
				continue
			}

			// The read returns the full content; print only the new tail.
			if len(resp.Content) > printed {
				cmd.Print(resp.Content[printed:])
				printed = len(resp.Content)
			}

			// "record" means the run is terminal; nothing more will come.
			if !follow || resp.Source == "record" {
				break
			}

			time.Sleep(1 * time.Second)
		}
	},
}

func init() {
	rootCmd.AddCommand(logsCmd)
	logsCmd.Flags().BoolVarP(&follow, "follow", "f", false, "Follow log output until the run finishes")
}

package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "agnoxctl",
	Short: "Agnoxctl is a command line tool for interacting with the Agnox platform",
	Long: `agnoxctl is the command-line interface for the Agnox test execution platform.

Agnox runs test suites for multiple organizations in isolated sandboxes. A
submitted task is queued by priority, executed by a worker, and its result
is fanned out to live subscribers, webhooks and review cycles.

Common workflows:

  Submit a test run:
    agnoxctl submit --task-id "run-42" --image "cypress/included:13" --tests "login,checkout"

  Check execution status:
    agnoxctl status <task-id>

  Catch up on logs after a disconnect:
    agnoxctl logs <task-id>

  Inspect and retry dead-lettered tasks:
    agnoxctl dlq list
    agnoxctl dlq retry <task-id>

Configuration:
  Set the API endpoint and credentials via environment variables or a config file:
    AGNOX_API_URL    API endpoint (default: http://localhost:6161)
    AGNOX_API_KEY    Organization API key for authentication`,
}

func Execute() error {
	return rootCmd.Execute()
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Println(err)
			os.Exit(1)
		}

		// Search config in home directory with name ".agnoxctl"
		viper.AddConfigPath(home)
		viper.SetConfigName(".agnoxctl")
		viper.SetConfigType("yaml")
	}

	// Read environment variables that match "AGNOX_VARNAME"
	viper.SetEnvPrefix("AGNOX")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Println("Using config file:", viper.ConfigFileUsed())
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.agnoxctl.yaml)")

	rootCmd.PersistentFlags().String("url", "http://localhost:6161", "Agnox Controller URL")
	viper.BindPFlag("api_url", rootCmd.PersistentFlags().Lookup("url"))

	rootCmd.PersistentFlags().StringP("key", "k", "", "API key for authentication")
	viper.BindPFlag("api_key", rootCmd.PersistentFlags().Lookup("key"))
}

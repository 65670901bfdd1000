package cmd

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/keinar/Agnox-sub002/pkg/api"

	"github.com/spf13/viper"
)

func TestLogsCommand_Success(t *testing.T) {
	resetViper()
	logsCmd.Flags().Set("follow", "false")

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("expected GET method, got %s", r.Method)
		}
		if !strings.Contains(r.URL.Path, "/executions/run-42/logs") {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if r.Header.Get("X-API-Key") != "test-key" {
			t.Errorf("expected API key header, got: %s", r.Header.Get("X-API-Key"))
		}

		json.NewEncoder(w).Encode(api.GetLogsResponse{
			TaskID:  "run-42",
			Source:  "record",
			Content: "Log line 1\nLog line 2\n",
		})
	}))
	defer server.Close()

	viper.Set("api_url", server.URL)
	viper.Set("api_key", "test-key")

	var stdout bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stdout)
	rootCmd.SetArgs([]string{"logs", "run-42"})

	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	output := stdout.String()
	if !strings.Contains(output, "Log line 1") {
		t.Errorf("expected log line 1, got: %s", output)
	}
	if !strings.Contains(output, "Log line 2") {
		t.Errorf("expected log line 2, got: %s", output)
	}
}

func TestLogsCommand_FollowPrintsOnlyTheNewTail(t *testing.T) {
	resetViper()
	logsCmd.Flags().Set("follow", "true")
	defer logsCmd.Flags().Set("follow", "false")

	callCount := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		callCount++
		resp := api.GetLogsResponse{TaskID: "run-42", Source: "buffer", Content: "first\n"}
		if callCount > 1 {
			// Terminal: full content from the durable record ends the loop.
			resp.Source = "record"
			resp.Content = "first\nsecond\n"
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	viper.Set("api_url", server.URL)
	viper.Set("api_key", "test-key")

	var stdout bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stdout)
	rootCmd.SetArgs([]string{"logs", "run-42"})

	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	output := stdout.String()
	if output != "first\nsecond\n" {
		t.Errorf("each line should print exactly once, got: %q", output)
	}
	if callCount < 2 {
		t.Errorf("follow should poll until the run is terminal, calls = %d", callCount)
	}
}

func TestLogsCommand_MissingKey(t *testing.T) {
	resetViper()
	logsCmd.Flags().Set("follow", "false")

	viper.Set("api_url", "http://localhost:6161")
	viper.Set("api_key", "")

	var stdout bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stdout)
	rootCmd.SetArgs([]string{"logs", "run-42"})

	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !strings.Contains(stdout.String(), "API key not found") {
		t.Errorf("expected key error message, got: %s", stdout.String())
	}
}

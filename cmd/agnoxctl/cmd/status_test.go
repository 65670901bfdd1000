package cmd

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/keinar/Agnox-sub002/pkg/api"

	"github.com/spf13/viper"
)

func TestStatusCommand_Success(t *testing.T) {
	resetViper()

	start := time.Now().Add(-2 * time.Minute)
	end := time.Now()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("expected GET method, got %s", r.Method)
		}
		if !strings.HasSuffix(r.URL.Path, "/executions/run-42") {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if r.Header.Get("X-API-Key") != "test-key" {
			t.Errorf("expected API key header, got: %s", r.Header.Get("X-API-Key"))
		}

		json.NewEncoder(w).Encode(api.ExecutionResponse{
			TaskID:    "run-42",
			Status:    "PASSED",
			Image:     "cypress/included:13",
			Trigger:   "ci",
			StartTime: &start,
			EndTime:   &end,
		})
	}))
	defer server.Close()

	viper.Set("api_url", server.URL)
	viper.Set("api_key", "test-key")

	var stdout bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stdout)
	rootCmd.SetArgs([]string{"status", "run-42"})

	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	output := stdout.String()
	if !strings.Contains(output, "run-42") {
		t.Errorf("expected task ID in output, got: %s", output)
	}
	if !strings.Contains(output, "PASSED") {
		t.Errorf("expected status in output, got: %s", output)
	}
	if !strings.Contains(output, "cypress/included:13") {
		t.Errorf("expected image in output, got: %s", output)
	}
}

func TestStatusCommand_NotFound(t *testing.T) {
	resetViper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]string{"error": "Execution not found"})
	}))
	defer server.Close()

	viper.Set("api_url", server.URL)
	viper.Set("api_key", "test-key")

	var stdout bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stdout)
	rootCmd.SetArgs([]string{"status", "ghost"})

	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !strings.Contains(stdout.String(), "Request failed (404)") {
		t.Errorf("expected not-found message, got: %s", stdout.String())
	}
}

func TestStatusCommand_MissingKey(t *testing.T) {
	resetViper()

	viper.Set("api_url", "http://localhost:6161")
	viper.Set("api_key", "")

	var stdout bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stdout)
	rootCmd.SetArgs([]string{"status", "run-42"})

	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !strings.Contains(stdout.String(), "API key not found") {
		t.Errorf("expected key error message, got: %s", stdout.String())
	}
}

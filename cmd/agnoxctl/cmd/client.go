package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/keinar/Agnox-sub002/pkg/api"
)

// TaskClient handles API calls to the Agnox controller.
type TaskClient struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
}

// NewTaskClient creates a new client with the given base URL and API key.
func NewTaskClient(baseURL, apiKey string) *TaskClient {
	return &TaskClient{
		BaseURL: baseURL,
		APIKey:  apiKey,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// APIError represents an error response from the API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error (%d): %s", e.StatusCode, e.Message)
}

// SubmitTask sends POST /tasks to submit a test run.
func (c *TaskClient) SubmitTask(req api.SubmitTaskRequest) (*api.SubmitTaskResponse, error) {
	var result api.SubmitTaskResponse
	if err := c.do(http.MethodPost, "/tasks", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetExecution sends GET /executions/{taskId} to retrieve execution details.
func (c *TaskClient) GetExecution(taskID string) (*api.ExecutionResponse, error) {
	var result api.ExecutionResponse
	if err := c.do(http.MethodGet, "/executions/"+url.PathEscape(taskID), nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetLogs sends GET /executions/{taskId}/logs for the reconnect-recovery
// read: buffered output while running, the durable record once terminal.
func (c *TaskClient) GetLogs(taskID string) (*api.GetLogsResponse, error) {
	var result api.GetLogsResponse
	if err := c.do(http.MethodGet, "/executions/"+url.PathEscape(taskID)+"/logs", nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ListDLQ sends GET /dlq to retrieve dead-lettered tasks.
func (c *TaskClient) ListDLQ(limit, offset int) ([]api.DLQEntryResponse, error) {
	var result []api.DLQEntryResponse
	path := fmt.Sprintf("/dlq?limit=%d&offset=%d", limit, offset)
	if err := c.do(http.MethodGet, path, nil, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// RetryDLQ sends POST /dlq/{taskId}/retry to requeue a dead-lettered task.
func (c *TaskClient) RetryDLQ(taskID string) (*api.RetryDLQResponse, error) {
	var result api.RetryDLQResponse
	if err := c.do(http.MethodPost, "/dlq/"+url.PathEscape(taskID)+"/retry", nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *TaskClient) do(method, path string, payload, result interface{}) error {
	var body io.Reader
	if payload != nil {
		bodyBytes, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(bodyBytes)
	}

	httpReq, err := http.NewRequest(method, c.BaseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Add("X-API-Key", c.APIKey)
	httpReq.Header.Add("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 300 {
		return &APIError{StatusCode: resp.StatusCode, Message: string(respBody)}
	}

	if result != nil {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("failed to parse response: %w", err)
		}
	}

	return nil
}

package orchestrator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/keinar/Agnox-sub002/internal/store"
	"github.com/keinar/Agnox-sub002/pkg/api"
)

// ControllerClient ships log chunks and status events from the worker to
// the controller's internal endpoints, where they feed the live log
// channel. All calls are best-effort from the pipeline's point of view.
type ControllerClient struct {
	baseURL    string
	secret     string
	httpClient *http.Client
}

func NewControllerClient(baseURL, secret string) *ControllerClient {
	return &ControllerClient{
		baseURL: baseURL,
		secret:  secret,
		httpClient: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

// Publish ships a log chunk for the task.
func (c *ControllerClient) Publish(ctx context.Context, taskID, organizationID, chunk string) error {
	body := api.AddLogRequest{
		OrganizationID: organizationID,
		Content:        chunk,
	}
	return c.post(ctx, http.MethodPost, fmt.Sprintf("/internal/executions/%s/logs", url.PathEscape(taskID)), body)
}

// BroadcastStatus ships a status transition for real-time broadcast.
func (c *ControllerClient) BroadcastStatus(ctx context.Context, taskID, organizationID string, status store.Status) error {
	body := api.StatusEventRequest{
		OrganizationID: organizationID,
		Status:         string(status),
	}
	return c.post(ctx, http.MethodPost, fmt.Sprintf("/internal/executions/%s/events", url.PathEscape(taskID)), body)
}

// DropBuffer tears down the task's reconnect buffer.
func (c *ControllerClient) DropBuffer(ctx context.Context, taskID string) error {
	return c.post(ctx, http.MethodDelete, fmt.Sprintf("/internal/executions/%s/buffer", url.PathEscape(taskID)), nil)
}

func (c *ControllerClient) post(ctx context.Context, method, path string, payload interface{}) error {
	var body bytes.Buffer
	if payload != nil {
		if err := json.NewEncoder(&body).Encode(payload); err != nil {
			return err
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, &body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.secret)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted && resp.StatusCode != http.StatusOK {
		return fmt.Errorf("controller returned status %d", resp.StatusCode)
	}

	return nil
}

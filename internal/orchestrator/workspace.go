package orchestrator

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/keinar/Agnox-sub002/internal/store"
)

// reportFile is the result artifact the analysis pass looks for in the
// task workspace.
const reportFile = "report.json"

// Workspace manages per-task working directories under the reports root.
// Every path contains both the organization and the task segment, so two
// tasks (or two tenants) can never share a directory.
type Workspace struct {
	root string
}

func NewWorkspace(root string) *Workspace {
	return &Workspace{root: root}
}

// Prepare creates the task's working directory:
// <root>/{organizationID}/{taskID}. Identifiers that could escape their
// segment are rejected.
func (w *Workspace) Prepare(organizationID, taskID string) (string, error) {
	if !safeSegment(organizationID) || !safeSegment(taskID) {
		return "", fmt.Errorf("unsafe workspace identifier: org=%q task=%q", organizationID, taskID)
	}

	dir := filepath.Join(w.root, organizationID, taskID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create workspace %s: %w", dir, err)
	}

	return dir, nil
}

// Dir returns the task's working directory without creating it.
func (w *Workspace) Dir(organizationID, taskID string) string {
	return filepath.Join(w.root, organizationID, taskID)
}

func safeSegment(s string) bool {
	if s == "" || s == "." || s == ".." {
		return false
	}
	return !strings.ContainsAny(s, "/\\")
}

// testReport is the summary artifact a test image may leave in its
// workspace for the analysis pass.
type testReport struct {
	Total   int `json:"total"`
	Failed  int `json:"failed"`
	Flaky   int `json:"flaky"`
	Skipped int `json:"skipped"`
}

// analyzeReport maps a collected report onto the terminal status
// vocabulary: any failed test fails the run, a clean run with flaky
// retries is UNSTABLE, otherwise PASSED.
func analyzeReport(workdir string) (store.Status, error) {
	data, err := os.ReadFile(filepath.Join(workdir, reportFile))
	if err != nil {
		return "", err
	}

	var report testReport
	if err := json.Unmarshal(data, &report); err != nil {
		return "", fmt.Errorf("unreadable report: %w", err)
	}

	switch {
	case report.Failed > 0:
		return store.StatusFailed, nil
	case report.Flaky > 0:
		return store.StatusUnstable, nil
	default:
		return store.StatusPassed, nil
	}
}

// hasReport reports whether the sandbox left a result artifact to analyze.
func hasReport(workdir string) bool {
	_, err := os.Stat(filepath.Join(workdir, reportFile))
	return err == nil
}

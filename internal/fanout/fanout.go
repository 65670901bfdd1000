// Package fanout propagates execution status transitions to every
// interested party: live subscribers, the organization's webhook, the
// parent review cycle and the reconnect buffer.
package fanout

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/keinar/Agnox-sub002/internal/store"
	"github.com/keinar/Agnox-sub002/pkg/api"

	"github.com/google/uuid"
)

// effectTimeout bounds each detached side effect so a hung webhook or
// broadcast cannot leak goroutines past shutdown.
const effectTimeout = 30 * time.Second

// excerptLimit caps the failure excerpt shipped in notifications.
const excerptLimit = 600

// EventSink receives real-time broadcast and buffer-teardown requests.
type EventSink interface {
	BroadcastStatus(ctx context.Context, taskID, organizationID string, status store.Status) error
	DropBuffer(ctx context.Context, taskID string) error
}

// Notifier delivers a terminal summary to an outbound target.
type Notifier interface {
	Notify(ctx context.Context, webhookURL string, payload api.NotificationPayload) error
}

// OrganizationReader resolves the notification target for a tenant.
type OrganizationReader interface {
	GetOrganizationByID(ctx context.Context, id string) (*store.Organization, error)
}

// CycleSyncer reflects a terminal result into the parent review cycle.
type CycleSyncer interface {
	SyncCycleItem(ctx context.Context, organizationID string, cycleID, itemID uuid.UUID, status store.CycleItemStatus, taskID string) error
}

// Fanout dispatches status transitions. Each effect runs detached from the
// critical path with its own error boundary; a failing webhook or cycle
// sync never blocks or fails the orchestrator, and the whole dispatch is
// safe to run twice with the same terminal payload.
type Fanout struct {
	events   EventSink
	notifier Notifier
	orgs     OrganizationReader
	cycles   CycleSyncer
	logger   *slog.Logger

	wg sync.WaitGroup
}

func New(events EventSink, notifier Notifier, orgs OrganizationReader, cycles CycleSyncer, logger *slog.Logger) *Fanout {
	return &Fanout{
		events:   events,
		notifier: notifier,
		orgs:     orgs,
		cycles:   cycles,
		logger:   logger,
	}
}

// StatusChanged is called synchronously by the orchestrator immediately
// after a status is durably persisted. It returns as soon as the effects
// are launched. The execution is taken by value: the detached effects
// read the snapshot captured here, so the caller is free to keep
// mutating its own record while they run.
func (f *Fanout) StatusChanged(exec store.Execution) {
	log := f.logger.With("task_id", exec.TaskID, "organization_id", exec.OrganizationID, "status", exec.Status)

	f.detach(func(ctx context.Context) {
		if err := f.events.BroadcastStatus(ctx, exec.TaskID, exec.OrganizationID, exec.Status); err != nil {
			log.Warn("status broadcast failed", "error", err)
		}
	})

	if !exec.Status.Terminal() {
		return
	}

	f.detach(func(ctx context.Context) { f.notify(ctx, exec, log) })
	f.detach(func(ctx context.Context) { f.syncCycle(ctx, exec, log) })
	f.detach(func(ctx context.Context) {
		if err := f.events.DropBuffer(ctx, exec.TaskID); err != nil {
			log.Warn("log buffer teardown failed", "error", err)
		}
	})
}

// Drain waits for in-flight effects, bounded by the context. Called on
// worker shutdown so detached notifications are not cut off mid-send.
func (f *Fanout) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		f.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *Fanout) detach(fn func(ctx context.Context)) {
	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), effectTimeout)
		defer cancel()
		fn(ctx)
	}()
}

// notify delivers the terminal summary to the organization's webhook, if
// one is configured. Delivery failure is logged once and never retried
// synchronously.
func (f *Fanout) notify(ctx context.Context, exec store.Execution, log *slog.Logger) {
	org, err := f.orgs.GetOrganizationByID(ctx, exec.OrganizationID)
	if err != nil {
		log.Warn("notification target lookup failed", "error", err)
		return
	}
	if org.WebhookURL == nil || *org.WebhookURL == "" {
		return
	}

	payload := api.NotificationPayload{
		TaskID:    exec.TaskID,
		Status:    string(exec.Status),
		Trigger:   string(exec.Trigger),
		Image:     exec.Image,
		GroupName: exec.GroupName,
	}
	if exec.EndTime != nil {
		payload.EndTime = *exec.EndTime
	}
	if exec.Status != store.StatusPassed {
		payload.Excerpt = tail(exec.Output, excerptLimit)
	}

	if err := f.notifier.Notify(ctx, *org.WebhookURL, payload); err != nil {
		log.Warn("notification delivery failed", "webhook", *org.WebhookURL, "error", err)
	}
}

// syncCycle updates the linked review cycle item, if the execution carries
// a cycle link. Invalid or cross-organization identifiers are rejected by
// the store and logged here; the target cycle is left unmodified.
func (f *Fanout) syncCycle(ctx context.Context, exec store.Execution, log *slog.Logger) {
	if exec.CycleID == nil || exec.CycleItemID == nil {
		return
	}

	status := store.CycleItemStatusFor(exec.Status)
	err := f.cycles.SyncCycleItem(ctx, exec.OrganizationID, *exec.CycleID, *exec.CycleItemID, status, exec.TaskID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			log.Warn("cycle sync rejected: unknown or cross-organization cycle item",
				"cycle_id", exec.CycleID, "cycle_item_id", exec.CycleItemID)
			return
		}
		log.Warn("cycle sync failed", "cycle_id", exec.CycleID, "error", err)
	}
}

// tail returns the last limit bytes of s.
func tail(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[len(s)-limit:]
}

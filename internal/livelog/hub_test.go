package livelog

import (
	"io"
	"log/slog"
	"testing"

	"github.com/keinar/Agnox-sub002/pkg/api"
)

func newTestHub() *Hub {
	return NewHub(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestHub_PublishReachesOwnOrganizationOnly(t *testing.T) {
	h := newTestHub()
	subA := h.Subscribe("org-a")
	subB := h.Subscribe("org-b")

	h.Publish("org-a", api.Event{Type: EventExecutionLog, TaskID: "t1", Payload: "hello"})

	select {
	case ev := <-subA.Events():
		if ev.TaskID != "t1" || ev.Payload != "hello" {
			t.Errorf("unexpected event: %+v", ev)
		}
	default:
		t.Fatalf("subscriber of the owning organization received nothing")
	}

	select {
	case ev := <-subB.Events():
		t.Errorf("event leaked across organizations: %+v", ev)
	default:
	}
}

func TestHub_AllGroupSubscribersReceive(t *testing.T) {
	h := newTestHub()
	s1 := h.Subscribe("org-a")
	s2 := h.Subscribe("org-a")

	h.Publish("org-a", api.Event{Type: EventExecutionUpdated, TaskID: "t1", Payload: "RUNNING"})

	for i, s := range []*Subscriber{s1, s2} {
		select {
		case <-s.Events():
		default:
			t.Errorf("subscriber %d missed the broadcast", i)
		}
	}
}

func TestHub_SlowSubscriberDropsInsteadOfBlocking(t *testing.T) {
	h := newTestHub()
	sub := h.Subscribe("org-a")

	// Fill the backlog past capacity; publishes must return regardless.
	for i := 0; i < subscriberBuffer+10; i++ {
		h.Publish("org-a", api.Event{Type: EventExecutionLog, TaskID: "t1", Payload: "x"})
	}

	if got := len(sub.Events()); got != subscriberBuffer {
		t.Errorf("expected a full backlog of %d, got %d", subscriberBuffer, got)
	}
}

func TestHub_UnsubscribeClosesStream(t *testing.T) {
	h := newTestHub()
	sub := h.Subscribe("org-a")

	h.Unsubscribe(sub)

	if _, open := <-sub.Events(); open {
		t.Errorf("event stream should be closed after unsubscribe")
	}
	if h.SubscriberCount("org-a") != 0 {
		t.Errorf("group should be empty after unsubscribe")
	}

	// Publishing to an empty group is a no-op, and double unsubscribe is safe.
	h.Publish("org-a", api.Event{Type: EventExecutionLog})
	h.Unsubscribe(sub)
}

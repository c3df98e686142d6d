package notify

import (
	"bytes"
	"log"
	"os"
	"strings"
	"testing"
	"time"
)

func TestPublishReachesInterestedSubscribersOnly(t *testing.T) {
	h := NewHub(8)
	defer h.Close()

	_, updates := h.Subscribe(ChannelRuleUpdates)
	_, alerts := h.Subscribe(ChannelEmergencyAlerts)

	h.Publish(Message{Channel: ChannelRuleUpdates, Title: "python rules deployed"})

	select {
	case msg := <-updates:
		if msg.Title != "python rules deployed" {
			t.Fatalf("unexpected message %+v", msg)
		}
		if msg.ID == "" || msg.CreatedAt.IsZero() {
			t.Fatalf("message id/timestamp not filled: %+v", msg)
		}
	case <-time.After(time.Second):
		t.Fatalf("rule-updates subscriber got nothing")
	}
	select {
	case msg := <-alerts:
		t.Fatalf("emergency-alerts subscriber got %+v", msg)
	default:
	}
}

func TestPublishNeverBlocksOnFullInbox(t *testing.T) {
	var logs bytes.Buffer
	log.SetOutput(&logs)
	defer log.SetOutput(os.Stderr)

	h := NewHub(1)
	defer h.Close()
	_, inbox := h.Subscribe(ChannelSystemStatus)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			h.Publish(Message{Channel: ChannelSystemStatus, Title: "status"})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("publish blocked on a slow subscriber")
	}
	// Exactly the buffered message survives.
	if got := len(inbox); got != 1 {
		t.Fatalf("expected 1 buffered message, got %d", got)
	}
	if !strings.Contains(logs.String(), "inbox full") {
		t.Fatalf("dropped messages were not logged: %q", logs.String())
	}
}

func TestUnsubscribeClosesDelivery(t *testing.T) {
	h := NewHub(4)
	defer h.Close()
	id, inbox := h.Subscribe(ChannelGeneral)
	h.Unsubscribe(id)
	if _, open := <-inbox; open {
		t.Fatalf("inbox should be closed after unsubscribe")
	}
	// Publishing after unsubscribe must not panic.
	h.Publish(Message{Channel: ChannelGeneral, Title: "late"})
}

func TestCloseClosesAllSubscribers(t *testing.T) {
	h := NewHub(4)
	_, a := h.Subscribe(ChannelGeneral)
	_, b := h.Subscribe(ChannelTrendAnalysis)
	h.Close()
	if _, open := <-a; open {
		t.Fatalf("subscriber a still open after close")
	}
	if _, open := <-b; open {
		t.Fatalf("subscriber b still open after close")
	}
}

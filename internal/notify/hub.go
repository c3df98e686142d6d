package notify

import (
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/TomasWolaschka/ai-rules/internal/observability"
)

type Channel string

const (
	ChannelGeneral         Channel = "general"
	ChannelRuleUpdates     Channel = "rule-updates"
	ChannelTrendAnalysis   Channel = "trend-analysis"
	ChannelEmergencyAlerts Channel = "emergency-alerts"
	ChannelSystemStatus    Channel = "system-status"
)

const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

type Message struct {
	ID        string            `json:"id"`
	Channel   Channel           `json:"channel"`
	Severity  string            `json:"severity"`
	Title     string            `json:"title"`
	Body      string            `json:"body"`
	Fields    map[string]string `json:"fields,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

type subscriber struct {
	id       string
	channels map[Channel]bool
	inbox    chan Message
}

// Hub is a channel-based broadcast of job outcomes and alerts.
// Publishing never blocks on a slow subscriber: a full inbox drops the
// message and bumps a counter.
type Hub struct {
	mu     sync.RWMutex
	subs   map[string]*subscriber
	buffer int
	closed bool
}

func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = 64
	}
	return &Hub{subs: make(map[string]*subscriber), buffer: buffer}
}

// Subscribe registers interest in a set of channels and returns the
// subscription id plus the delivery channel. The delivery channel is
// closed on Unsubscribe and on hub Close.
func (h *Hub) Subscribe(channels ...Channel) (string, <-chan Message) {
	sub := &subscriber{
		id:       uuid.NewString(),
		channels: make(map[Channel]bool, len(channels)),
		inbox:    make(chan Message, h.buffer),
	}
	for _, ch := range channels {
		sub.channels[ch] = true
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		close(sub.inbox)
		return sub.id, sub.inbox
	}
	h.subs[sub.id] = sub
	observability.Default.SetGauge("hub_subscribers", nil, float64(len(h.subs)))
	return sub.id, sub.inbox
}

func (h *Hub) Unsubscribe(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	sub, ok := h.subs[id]
	if !ok {
		return
	}
	delete(h.subs, id)
	close(sub.inbox)
	observability.Default.SetGauge("hub_subscribers", nil, float64(len(h.subs)))
}

// Publish broadcasts msg to every subscriber interested in its channel.
// Best-effort delivery: subscribers with full inboxes are skipped.
func (h *Hub) Publish(msg Message) {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	if msg.Severity == "" {
		msg.Severity = SeverityInfo
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return
	}
	labels := map[string]string{"channel": string(msg.Channel)}
	observability.Default.IncCounter("hub_published_total", labels, 1)
	for _, sub := range h.subs {
		if !sub.channels[msg.Channel] {
			continue
		}
		select {
		case sub.inbox <- msg:
		default:
			observability.Default.IncCounter("hub_dropped_total", labels, 1)
			log.Printf("notify: dropped message %s on %s, subscriber %s inbox full", msg.ID, msg.Channel, sub.id)
		}
	}
}

// Close shuts delivery down; all subscriber channels are closed.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for id, sub := range h.subs {
		delete(h.subs, id)
		close(sub.inbox)
	}
	observability.Default.SetGauge("hub_subscribers", nil, 0)
}

// Package event provides the in-memory hub that fans out captured-message changes.
package event

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cubbscratchstudios/splat/internal/message"
)

const (
	// DefaultBufferSize is the default per-subscriber channel buffer.
	DefaultBufferSize = 64
	// AllScopes subscribes to events of every guild and direct conversation.
	AllScopes = "*"
	// DirectScope is the scope of messages sent outside a guild.
	DirectScope = "@me"
)

// Type identifies the change a captured message went through.
type Type string

const (
	TypeMessageSend    Type = "message_send"
	TypeMessageUpdate  Type = "message_update"
	TypeMessageDelete  Type = "message_delete"
	TypeMessageFlagged Type = "message_flagged"
)

// Event is published after a store write that changed a record.
type Event struct {
	Type    Type                    `json:"type"`
	Scope   string                  `json:"scope"`
	Message message.CapturedMessage `json:"message"`
	// Previous is the stored record before the write, nil on first capture.
	Previous *message.CapturedMessage `json:"previous,omitempty"`
	At       time.Time                `json:"at"`
}

// ScopeOf returns the hub scope of a message: its guild, or DirectScope.
func ScopeOf(msg message.CapturedMessage) string {
	if guild := strings.TrimSpace(msg.GuildID); guild != "" {
		return guild
	}
	return DirectScope
}

// Publisher publishes events to subscribers.
type Publisher interface {
	Publish(event Event)
}

// Subscriber subscribes to scoped events.
type Subscriber interface {
	Subscribe(scope string, buffer int) (string, <-chan Event, func())
}

// Hub is an in-process pub/sub dispatcher keyed by scope.
type Hub struct {
	mu      sync.RWMutex
	streams map[string]map[string]chan Event
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		streams: map[string]map[string]chan Event{},
	}
}

// Publish broadcasts one event to subscribers of its scope and of AllScopes.
// Slow subscribers miss events instead of blocking the capture path.
func (h *Hub) Publish(event Event) {
	if h == nil {
		return
	}
	scope := strings.TrimSpace(event.Scope)
	if scope == "" {
		scope = ScopeOf(event.Message)
		event.Scope = scope
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, target := range []string{scope, AllScopes} {
		for _, ch := range h.streams[target] {
			select {
			case ch <- event:
			default:
			}
		}
	}
}

// Subscribe registers one subscriber under a scope.
// It returns a stream ID, read-only event channel, and a cancel function.
func (h *Hub) Subscribe(scope string, buffer int) (string, <-chan Event, func()) {
	if h == nil {
		ch := make(chan Event)
		close(ch)
		return "", ch, func() {}
	}
	scope = strings.TrimSpace(scope)
	if scope == "" {
		ch := make(chan Event)
		close(ch)
		return "", ch, func() {}
	}
	if buffer <= 0 {
		buffer = DefaultBufferSize
	}

	streamID := uuid.NewString()
	ch := make(chan Event, buffer)

	h.mu.Lock()
	streams, ok := h.streams[scope]
	if !ok {
		streams = map[string]chan Event{}
		h.streams[scope] = streams
	}
	streams[streamID] = ch
	h.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			streams := h.streams[scope]
			if streams != nil {
				if current, ok := streams[streamID]; ok {
					delete(streams, streamID)
					close(current)
				}
				if len(streams) == 0 {
					delete(h.streams, scope)
				}
			}
			h.mu.Unlock()
		})
	}

	return streamID, ch, cancel
}

// FromChange derives the events of one store write. Writes that newly carry
// a flagged term add a message_flagged event.
func FromChange(change message.Change, at time.Time) []Event {
	if !change.Changed {
		return nil
	}
	after := change.After
	before := change.Before
	base := Event{Scope: ScopeOf(after), Message: after, Previous: before, At: at}

	var events []Event
	switch {
	case before == nil && after.Status != message.StatusDeleted:
		base.Type = TypeMessageSend
		events = append(events, base)
	case after.Status == message.StatusDeleted && (before == nil || before.Status != message.StatusDeleted):
		base.Type = TypeMessageDelete
		events = append(events, base)
	case before.IsPlaceholder():
		// The create behind an earlier tombstone arrived; report the deletion with its content.
		base.Type = TypeMessageDelete
		events = append(events, base)
	case after.Status == message.StatusEdited && !equalContent(*before, after):
		base.Type = TypeMessageUpdate
		events = append(events, base)
	}

	if after.Flagged() && (before == nil || before.FlaggedTerm != after.FlaggedTerm) {
		flagged := base
		flagged.Type = TypeMessageFlagged
		events = append(events, flagged)
	}
	return events
}

func equalContent(a, b message.CapturedMessage) bool {
	if a.Text() != b.Text() || len(a.Attachments) != len(b.Attachments) {
		return false
	}
	for i := range a.Attachments {
		if a.Attachments[i] != b.Attachments[i] {
			return false
		}
	}
	return true
}

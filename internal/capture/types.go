// Package capture turns gateway events into stored message records.
package capture

import (
	"time"

	"github.com/cubbscratchstudios/splat/internal/message"
)

// EventKind is the upstream event category.
type EventKind string

const (
	KindCreate   EventKind = "create"
	KindEdit     EventKind = "edit"
	KindDelete   EventKind = "delete"
	KindReaction EventKind = "reaction"
)

// RawAuthor is the author block of a gateway event.
type RawAuthor struct {
	ID         string `json:"id"`
	Username   string `json:"username"`
	GlobalName string `json:"global_name,omitempty"`
	// Nick is the guild nickname, preferred over the other names when present.
	Nick      string `json:"nick,omitempty"`
	AvatarURL string `json:"avatar_url,omitempty"`
	Bot       bool   `json:"bot,omitempty"`
}

// DisplayName resolves the name shown in the client: nickname, then global name, then username.
func (a RawAuthor) DisplayName() string {
	for _, name := range []string{a.Nick, a.GlobalName, a.Username} {
		if name != "" {
			return name
		}
	}
	return ""
}

// RawEvent is one inbound gateway event, independent of the client library.
type RawEvent struct {
	Kind           EventKind  `json:"kind"`
	GuildID        string     `json:"guild_id,omitempty"`
	ConversationID string     `json:"conversation_id"`
	MessageID      string     `json:"message_id"`
	Author         *RawAuthor `json:"author,omitempty"`
	Content        string     `json:"content"`
	// Segments are extra text blocks rendered after the content, such as embed descriptions.
	Segments []string `json:"segments,omitempty"`
	// Attachments is nil when the event does not report attachments.
	Attachments []message.Attachment `json:"attachments"`
	ReplyTo     string               `json:"reply_to,omitempty"`
	// Timestamp is when the message was created upstream.
	Timestamp time.Time `json:"timestamp,omitempty"`
	EditedAt  time.Time `json:"edited_at,omitempty"`
	// OccurredAt is when the event itself happened; deletes use it as deletion time.
	OccurredAt time.Time `json:"occurred_at,omitempty"`
	Emoji      string    `json:"emoji,omitempty"`
}

// Key returns the message key the event refers to.
func (e RawEvent) Key() message.Key {
	return message.Key{ConversationID: e.ConversationID, MessageID: e.MessageID}
}

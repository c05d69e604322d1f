// Package message holds the captured-message model and its durable store.
package message

import (
	"slices"
	"strings"
	"time"
)

// Status is the lifecycle state of a captured message.
type Status string

const (
	StatusActive  Status = "active"
	StatusEdited  Status = "edited"
	StatusDeleted Status = "deleted"
)

// rank orders statuses so merges never move a record backwards.
func (s Status) rank() int {
	switch s {
	case StatusEdited:
		return 1
	case StatusDeleted:
		return 2
	default:
		return 0
	}
}

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusEdited, StatusDeleted:
		return true
	default:
		return false
	}
}

// Key identifies a message within its conversation scope.
type Key struct {
	ConversationID string `json:"conversation_id"`
	MessageID      string `json:"message_id"`
}

// Valid reports whether both parts of the key are present.
func (k Key) Valid() bool {
	return strings.TrimSpace(k.ConversationID) != "" && strings.TrimSpace(k.MessageID) != ""
}

func (k Key) String() string {
	return k.ConversationID + "/" + k.MessageID
}

// Author is the identity snapshot taken when the message was captured.
// It is a copy, not a live reference: later name or avatar changes do not touch it.
type Author struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	AvatarURL   string `json:"avatar_url,omitempty"`
	Bot         bool   `json:"bot,omitempty"`
}

// IsZero reports whether no identity was recorded.
func (a Author) IsZero() bool {
	return strings.TrimSpace(a.ID) == "" && strings.TrimSpace(a.DisplayName) == ""
}

// CapturedMessage is one platform message as recorded at capture time.
type CapturedMessage struct {
	ConversationID string `json:"conversation_id"`
	MessageID      string `json:"message_id"`
	GuildID        string `json:"guild_id,omitempty"`
	Author         Author `json:"author"`
	// Body holds the ordered text segments and has at least one element once
	// reported. It is nil only on a deletion whose content was never seen.
	Body []string `json:"body"`
	// Attachments may be nil, meaning no event has reported them yet: an edit
	// that did not carry attachments keeps the stored ones, and a stored nil is
	// filled by the first snapshot that has them. A non-nil empty slice clears them.
	Attachments []Attachment `json:"attachments"`
	// ReplyTo is a weak reference to a message id in the same conversation.
	ReplyTo        string    `json:"reply_to,omitempty"`
	Status         Status    `json:"status"`
	FlaggedTerm    string    `json:"flagged_term,omitempty"`
	CapturedAt     time.Time `json:"captured_at,omitempty"`
	LastModifiedAt time.Time `json:"last_modified_at"`
	DeletedAt      time.Time `json:"deleted_at,omitempty"`
}

// trimmed returns k without surrounding white space, the form records are stored under.
func (k Key) trimmed() Key {
	return Key{ConversationID: strings.TrimSpace(k.ConversationID), MessageID: strings.TrimSpace(k.MessageID)}
}

// Key returns the record's composite key.
func (m CapturedMessage) Key() Key {
	return Key{ConversationID: m.ConversationID, MessageID: m.MessageID}
}

// Text joins the body segments with newlines.
func (m CapturedMessage) Text() string {
	return strings.Join(m.Body, "\n")
}

// Flagged reports whether the word filter matched this message.
func (m CapturedMessage) Flagged() bool {
	return m.FlaggedTerm != ""
}

// IsPlaceholder reports whether the record is a tombstone whose content has
// not been seen, i.e. the deletion arrived before its create event.
func (m CapturedMessage) IsPlaceholder() bool {
	return m.Status == StatusDeleted && m.Body == nil
}

// Clone returns a deep copy so callers never share slices with the store.
func (m CapturedMessage) Clone() CapturedMessage {
	m.Body = slices.Clone(m.Body)
	if m.Attachments != nil {
		m.Attachments = slices.Clone(m.Attachments)
	}
	return m
}

// Equal compares two records field by field, timestamps by instant.
func (m CapturedMessage) Equal(o CapturedMessage) bool {
	return m.ConversationID == o.ConversationID &&
		m.MessageID == o.MessageID &&
		m.GuildID == o.GuildID &&
		m.Author == o.Author &&
		(m.Body == nil) == (o.Body == nil) &&
		slices.Equal(m.Body, o.Body) &&
		(m.Attachments == nil) == (o.Attachments == nil) &&
		slices.Equal(m.Attachments, o.Attachments) &&
		m.ReplyTo == o.ReplyTo &&
		m.Status == o.Status &&
		m.FlaggedTerm == o.FlaggedTerm &&
		m.CapturedAt.Equal(o.CapturedAt) &&
		m.LastModifiedAt.Equal(o.LastModifiedAt) &&
		m.DeletedAt.Equal(o.DeletedAt)
}

// Change describes the effect of one store write.
type Change struct {
	Before  *CapturedMessage
	After   CapturedMessage
	Changed bool
}

// Created reports whether the write inserted a new record.
func (c Change) Created() bool {
	return c.Changed && c.Before == nil
}

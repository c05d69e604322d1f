package message

import (
	"slices"
	"time"
)

// Normalize fills the representation invariants of a record: a known status
// and a modification time. Creates and edits always carry a body, and creates
// always carry their attachments; only a deletion may leave content unreported.
func Normalize(m CapturedMessage) CapturedMessage {
	m = m.Clone()
	if !m.Status.Valid() {
		m.Status = StatusActive
	}
	if len(m.Body) == 0 && (m.Body != nil || m.Status != StatusDeleted) {
		m.Body = []string{""}
	}
	if m.Attachments == nil && m.Status == StatusActive {
		m.Attachments = []Attachment{}
	}
	if m.LastModifiedAt.IsZero() {
		m.LastModifiedAt = m.CapturedAt
	}
	if m.Status == StatusDeleted && m.DeletedAt.IsZero() {
		m.DeletedAt = m.LastModifiedAt
	}
	return m
}

// Merge folds an incoming snapshot into the stored record and reports whether
// anything changed. current is nil when no record exists yet.
//
// Content follows the newer LastModifiedAt and ties keep the stored content,
// so redelivery is a no-op. Content the stored record has never seen (a nil
// Body or Attachments) is taken from any snapshot that reports it, whatever
// its age. Status only moves forward. CapturedAt, Author and ReplyTo keep the
// first non-empty value.
func Merge(current *CapturedMessage, incoming CapturedMessage) (CapturedMessage, bool) {
	incoming = Normalize(incoming)
	if current == nil {
		return incoming, true
	}

	next := current.Clone()
	if next.CapturedAt.IsZero() {
		next.CapturedAt = incoming.CapturedAt
	}
	if next.Author.IsZero() {
		next.Author = incoming.Author
	}
	if next.GuildID == "" {
		next.GuildID = incoming.GuildID
	}
	if next.ReplyTo == "" {
		next.ReplyTo = incoming.ReplyTo
	}

	newer := incoming.LastModifiedAt.After(current.LastModifiedAt)
	if incoming.Body != nil && (newer || current.Body == nil) {
		next.Body = slices.Clone(incoming.Body)
		next.FlaggedTerm = incoming.FlaggedTerm
	}
	if incoming.Attachments != nil && (newer || current.Attachments == nil) {
		next.Attachments = slices.Clone(incoming.Attachments)
	}

	if incoming.Status.rank() > next.Status.rank() {
		next.Status = incoming.Status
	}
	next.LastModifiedAt = maxTime(current.LastModifiedAt, incoming.LastModifiedAt)
	if next.Status == StatusDeleted && next.DeletedAt.IsZero() {
		next.DeletedAt = incoming.DeletedAt
		if next.DeletedAt.IsZero() {
			next.DeletedAt = next.LastModifiedAt
		}
	}

	return next, !next.Equal(*current)
}

// Tombstone marks the record deleted at the given time. Deleting an already
// deleted record changes nothing; deleting an unknown key yields a placeholder
// holding only the key and the deletion time, with no content.
func Tombstone(current *CapturedMessage, key Key, at time.Time) (CapturedMessage, bool) {
	if current == nil {
		return CapturedMessage{
			ConversationID: key.ConversationID,
			MessageID:      key.MessageID,
			Status:         StatusDeleted,
			LastModifiedAt: at,
			DeletedAt:      at,
		}, true
	}
	if current.Status == StatusDeleted {
		return current.Clone(), false
	}
	next := current.Clone()
	next.Status = StatusDeleted
	next.DeletedAt = at
	next.LastModifiedAt = maxTime(current.LastModifiedAt, at)
	return next, true
}

func maxTime(a, b time.Time) time.Time {
	if b.After(a) {
		return b
	}
	return a
}

package capture

import (
	"strings"
	"time"

	"github.com/cubbscratchstudios/splat/internal/message"
	"github.com/cubbscratchstudios/splat/internal/wordfilter"
)

// Normalizer converts raw events into CapturedMessage values. It only reads
// its filter and is safe for concurrent use.
type Normalizer struct {
	filter *wordfilter.Filter
	now    func() time.Time
}

func NewNormalizer(filter *wordfilter.Filter) *Normalizer {
	return &Normalizer{
		filter: filter,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Normalize validates raw and builds the record it describes. The word filter
// verdict is stored in FlaggedTerm; the text is not altered beyond dropping
// NUL bytes and invalid UTF-8, which the store cannot hold.
func (n *Normalizer) Normalize(raw RawEvent) (message.CapturedMessage, error) {
	raw.ConversationID = clean(strings.TrimSpace(raw.ConversationID))
	raw.MessageID = clean(strings.TrimSpace(raw.MessageID))
	fail := func(err error) (message.CapturedMessage, error) {
		return message.CapturedMessage{}, &NormalizationError{Kind: raw.Kind, Key: raw.Key(), Err: err}
	}

	var status message.Status
	switch raw.Kind {
	case KindCreate:
		status = message.StatusActive
	case KindEdit:
		status = message.StatusEdited
	case KindDelete:
		status = message.StatusDeleted
	default:
		return fail(ErrUnsupportedEvent)
	}
	if raw.MessageID == "" {
		return fail(ErrMissingMessageID)
	}
	if raw.ConversationID == "" {
		return fail(ErrMissingConversation)
	}

	var author message.Author
	if raw.Author != nil {
		author = message.Author{
			ID:          clean(strings.TrimSpace(raw.Author.ID)),
			DisplayName: clean(strings.TrimSpace(raw.Author.DisplayName())),
			AvatarURL:   clean(strings.TrimSpace(raw.Author.AvatarURL)),
			Bot:         raw.Author.Bot,
		}
	}
	// Gateway delete payloads only carry ids.
	if author.ID == "" && raw.Kind != KindDelete {
		return fail(ErrMissingAuthor)
	}

	now := n.now()
	msg := message.CapturedMessage{
		ConversationID: raw.ConversationID,
		MessageID:      raw.MessageID,
		GuildID:        clean(strings.TrimSpace(raw.GuildID)),
		Author:         author,
		Body:           body(raw),
		Attachments:    attachments(raw),
		ReplyTo:        clean(strings.TrimSpace(raw.ReplyTo)),
		Status:         status,
		CapturedAt:     firstSet(raw.Timestamp),
	}

	switch raw.Kind {
	case KindCreate:
		if msg.CapturedAt.IsZero() {
			msg.CapturedAt = now
		}
		msg.LastModifiedAt = msg.CapturedAt
	case KindEdit:
		msg.LastModifiedAt = firstSet(raw.EditedAt, raw.OccurredAt, now)
	case KindDelete:
		msg.LastModifiedAt = firstSet(raw.OccurredAt, now)
		msg.DeletedAt = msg.LastModifiedAt
	}

	if n.filter != nil && !n.filter.Ignores(msg.Author.ID, msg.ConversationID, msg.GuildID) {
		if verdict := n.filter.Check(msg.Text()); verdict.Flagged {
			msg.FlaggedTerm = verdict.Term
		}
	}
	return msg, nil
}

// body returns the text segments. A deletion that carries no content at all
// leaves the body unreported so a later create can still fill it.
func body(raw RawEvent) []string {
	if raw.Kind == KindDelete && raw.Content == "" && raw.Attachments == nil && !hasText(raw.Segments) {
		return nil
	}
	segments := []string{clean(raw.Content)}
	for _, seg := range raw.Segments {
		if seg = clean(seg); strings.TrimSpace(seg) != "" {
			segments = append(segments, seg)
		}
	}
	return segments
}

func hasText(segments []string) bool {
	for _, seg := range segments {
		if strings.TrimSpace(seg) != "" {
			return true
		}
	}
	return false
}

// clean drops NUL bytes and replaces invalid UTF-8 with U+FFFD.
func clean(s string) string {
	if strings.IndexByte(s, 0) >= 0 {
		s = strings.ReplaceAll(s, "\x00", "")
	}
	return strings.ToValidUTF8(s, "\uFFFD")
}

func attachments(raw RawEvent) []message.Attachment {
	if raw.Attachments == nil {
		if raw.Kind == KindCreate {
			return []message.Attachment{}
		}
		return nil
	}
	out := make([]message.Attachment, 0, len(raw.Attachments))
	for _, att := range raw.Attachments {
		att.ID = clean(att.ID)
		att.URL = clean(att.URL)
		att.Filename = clean(att.Filename)
		att.ContentType = clean(att.ContentType)
		att = message.NormalizeAttachment(att)
		if att.URL == "" {
			continue
		}
		out = append(out, att)
	}
	return out
}

func firstSet(times ...time.Time) time.Time {
	for _, t := range times {
		if !t.IsZero() {
			return t.UTC()
		}
	}
	return time.Time{}
}

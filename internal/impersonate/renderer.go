package impersonate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/cubbscratchstudios/splat/internal/message"
)

const (
	excerptLimit      = 100
	emptyMessageLabel = "[Empty message]"
	unknownAuthor     = "Unknown user"
)

// Renderer builds display payloads. It never fails: missing history only
// removes the reply preview.
type Renderer struct {
	lookup Lookup
	logger *slog.Logger
}

func NewRenderer(log *slog.Logger, lookup Lookup) *Renderer {
	if log == nil {
		log = slog.Default()
	}
	return &Renderer{
		lookup: lookup,
		logger: log.With(slog.String("component", "renderer")),
	}
}

// Render copies the author snapshot, body and attachments of msg and
// resolves its reply reference. Attachment URLs are passed through as stored.
func (r *Renderer) Render(ctx context.Context, msg message.CapturedMessage) RenderedImpersonation {
	out := RenderedImpersonation{
		Source:             msg.Key(),
		DisplayAuthor:      displayAuthor(msg.Author),
		DisplayBody:        msg.Text(),
		DisplayAttachments: slices.Clone(msg.Attachments),
	}
	if out.DisplayAttachments == nil {
		out.DisplayAttachments = []message.Attachment{}
	}
	if msg.ReplyTo != "" {
		out.DisplayReplyPreview = r.preview(ctx, msg.ConversationID, msg.ReplyTo)
	}
	return out
}

func (r *Renderer) preview(ctx context.Context, conversationID, parentID string) *ReplyPreview {
	if r.lookup == nil {
		return nil
	}
	parent, err := r.lookup.Get(ctx, conversationID, parentID)
	if err != nil {
		if !errors.Is(err, message.ErrNotFound) {
			r.logger.Warn("reply lookup failed",
				slog.String("conversation_id", conversationID),
				slog.String("message_id", parentID),
				slog.Any("error", err),
			)
		}
		return nil
	}
	if parent.Status == message.StatusDeleted {
		return nil
	}
	return &ReplyPreview{
		MessageID: parent.MessageID,
		Author:    displayAuthor(parent.Author),
		Excerpt:   excerpt(parent),
	}
}

func displayAuthor(a message.Author) DisplayAuthor {
	name := strings.TrimSpace(a.DisplayName)
	if name == "" {
		name = unknownAuthor
	}
	return DisplayAuthor{Name: name, AvatarURL: a.AvatarURL}
}

func excerpt(m message.CapturedMessage) string {
	text := strings.TrimSpace(strings.Join(strings.Fields(m.Text()), " "))
	if text == "" {
		switch n := len(m.Attachments); {
		case n == 1:
			return fmt.Sprintf("[Attachment: %s]", m.Attachments[0].Filename)
		case n > 1:
			return fmt.Sprintf("[%d attachments]", n)
		default:
			return emptyMessageLabel
		}
	}
	return Truncate(text, excerptLimit)
}

// Truncate shortens s to at most limit runes, marking the cut with "...".
func Truncate(s string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(s) <= limit {
		return s
	}
	if limit <= 3 {
		return string([]rune(s)[:limit])
	}
	return string([]rune(s)[:limit-3]) + "..."
}

// Quote renders the preview as a quoted line for sinks without native previews.
func (p ReplyPreview) Quote() string {
	return fmt.Sprintf("> **%s**: %s", p.Author.Name, p.Excerpt)
}

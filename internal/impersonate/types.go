// Package impersonate re-renders captured messages and re-posts them under
// the original author's name and avatar.
package impersonate

import (
	"context"

	"github.com/cubbscratchstudios/splat/internal/message"
)

// DisplayAuthor is the identity the replica is posted under.
type DisplayAuthor struct {
	Name      string `json:"name"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

// ReplyPreview summarizes the message being replied to.
type ReplyPreview struct {
	MessageID string        `json:"message_id"`
	Author    DisplayAuthor `json:"author"`
	Excerpt   string        `json:"excerpt"`
}

// RenderedImpersonation is the display payload of one replica. It is built
// per request and never stored.
type RenderedImpersonation struct {
	Source              message.Key          `json:"source"`
	DisplayAuthor       DisplayAuthor        `json:"display_author"`
	DisplayBody         string               `json:"display_body"`
	DisplayAttachments  []message.Attachment `json:"display_attachments"`
	DisplayReplyPreview *ReplyPreview        `json:"display_reply_preview,omitempty"`
}

// MessageRef identifies a posted message.
type MessageRef struct {
	ID        string `json:"id"`
	ChannelID string `json:"channel_id,omitempty"`
}

// AttachmentRef identifies a re-uploaded attachment.
type AttachmentRef struct {
	ID  string `json:"id"`
	URL string `json:"url,omitempty"`
}

// Sink is the posting capability of a secondary identity.
type Sink interface {
	Send(ctx context.Context, body string, author DisplayAuthor) (MessageRef, error)
	Upload(ctx context.Context, att message.Attachment, author DisplayAuthor) (AttachmentRef, error)
}

// PreviewSender is implemented by sinks that can render a reply preview
// natively. Other sinks receive the preview as quoted text through Send.
type PreviewSender interface {
	SendPreview(ctx context.Context, preview ReplyPreview, author DisplayAuthor) (MessageRef, error)
}

// Lookup resolves reply references.
type Lookup interface {
	Get(ctx context.Context, conversationID, messageID string) (message.CapturedMessage, error)
}

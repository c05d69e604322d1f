package message

import (
	"path/filepath"
	"strings"
)

// AttachmentType is the coarse media class of an attachment.
type AttachmentType string

const (
	AttachmentImage AttachmentType = "image"
	AttachmentGIF   AttachmentType = "gif"
	AttachmentAudio AttachmentType = "audio"
	AttachmentVideo AttachmentType = "video"
	AttachmentFile  AttachmentType = "file"
)

// Attachment references a file uploaded with the original message.
// URL may expire upstream; it is stored verbatim.
type Attachment struct {
	ID          string         `json:"id,omitempty"`
	URL         string         `json:"url"`
	Filename    string         `json:"filename"`
	ContentType string         `json:"content_type,omitempty"`
	Size        int64          `json:"size,omitempty"`
	Type        AttachmentType `json:"type"`
}

// NormalizeMime lowercases a content type and strips parameters.
func NormalizeMime(raw string) string {
	mime := strings.ToLower(strings.TrimSpace(raw))
	if idx := strings.Index(mime, ";"); idx >= 0 {
		mime = strings.TrimSpace(mime[:idx])
	}
	return mime
}

// InferAttachmentType derives the media class from content type, falling back to the file extension.
func InferAttachmentType(mime, name string) AttachmentType {
	mime = NormalizeMime(mime)
	switch {
	case strings.HasPrefix(mime, "image/gif"):
		return AttachmentGIF
	case strings.HasPrefix(mime, "image/"):
		return AttachmentImage
	case strings.HasPrefix(mime, "audio/"):
		return AttachmentAudio
	case strings.HasPrefix(mime, "video/"):
		return AttachmentVideo
	}

	switch strings.ToLower(filepath.Ext(strings.TrimSpace(name))) {
	case ".gif":
		return AttachmentGIF
	case ".jpg", ".jpeg", ".png", ".webp", ".bmp", ".heic", ".heif":
		return AttachmentImage
	case ".mp3", ".wav", ".ogg", ".m4a", ".aac", ".flac":
		return AttachmentAudio
	case ".mp4", ".mov", ".mkv", ".webm":
		return AttachmentVideo
	default:
		return AttachmentFile
	}
}

// NormalizeAttachment trims fields and fills in the content class.
func NormalizeAttachment(att Attachment) Attachment {
	att.ID = strings.TrimSpace(att.ID)
	att.URL = strings.TrimSpace(att.URL)
	att.Filename = strings.TrimSpace(att.Filename)
	att.ContentType = NormalizeMime(att.ContentType)
	if att.Type == "" || att.Type == AttachmentFile {
		att.Type = InferAttachmentType(att.ContentType, att.Filename)
	}
	return att
}

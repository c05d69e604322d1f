package impersonate

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/cubbscratchstudios/splat/internal/message"
)

// fakeSink records posts. failUploads lists attachment filenames whose upload fails.
type fakeSink struct {
	mu          sync.Mutex
	sent        []string
	uploaded    []string
	failSend    bool
	failUploads map[string]bool
	// cancel is called after the body is sent.
	cancel func()
	// cancelUpload is called inside every upload, which then fails with the context error.
	cancelUpload func()
}

func (s *fakeSink) Send(_ context.Context, body string, author DisplayAuthor) (MessageRef, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failSend {
		return MessageRef{}, errors.New("webhook rejected message")
	}
	s.sent = append(s.sent, author.Name+": "+body)
	if s.cancel != nil {
		s.cancel()
	}
	return MessageRef{ID: fmt.Sprintf("sent-%d", len(s.sent))}, nil
}

func (s *fakeSink) Upload(ctx context.Context, att message.Attachment, _ DisplayAuthor) (AttachmentRef, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancelUpload != nil {
		s.cancelUpload()
		return AttachmentRef{}, ctx.Err()
	}
	if s.failUploads[att.Filename] {
		return AttachmentRef{}, errors.New("attachment url expired")
	}
	s.uploaded = append(s.uploaded, att.Filename)
	return AttachmentRef{ID: "up-" + att.Filename}, nil
}

type previewSink struct {
	fakeSink
	previews []ReplyPreview
}

func (s *previewSink) SendPreview(_ context.Context, preview ReplyPreview, _ DisplayAuthor) (MessageRef, error) {
	s.previews = append(s.previews, preview)
	return MessageRef{ID: "preview"}, nil
}

type errLookup struct{ err error }

func (l errLookup) Get(context.Context, string, string) (message.CapturedMessage, error) {
	return message.CapturedMessage{}, l.err
}

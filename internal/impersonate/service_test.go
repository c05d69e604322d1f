package impersonate

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cubbscratchstudios/splat/internal/message"
)

func newTestService(t *testing.T, sink Sink, msgs ...message.CapturedMessage) (*Service, *[]Target) {
	t.Helper()
	store := newStore(t, msgs...)
	var targets []Target
	provider := SinkProviderFunc(func(_ context.Context, target Target) (Sink, error) {
		targets = append(targets, target)
		return sink, nil
	})
	return NewService(nil, store, NewRenderer(nil, store), NewPoster(nil, nil), provider), &targets
}

func TestRequestImpersonation(t *testing.T) {
	t.Parallel()

	parent := stored("m0", "question")
	msg := stored("m1", "answer")
	msg.ReplyTo = "m0"
	sink := &fakeSink{}
	svc, targets := newTestService(t, sink, parent, msg)

	result, err := svc.RequestImpersonation(context.Background(), "c1", "m1", Target{DisplayName: "Alice (replica)"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeComplete, result.Status)
	assert.NotEmpty(t, result.RequestID)
	require.Len(t, *targets, 1)
	assert.Equal(t, "c1", (*targets)[0].ChannelID)
	assert.Equal(t, "Alice (replica)", result.Rendered.DisplayAuthor.Name)
	assert.Equal(t, "https://cdn.example/m1.png", result.Rendered.DisplayAuthor.AvatarURL)
	assert.Equal(t, []string{"Alice (replica): > **author m0**: question", "Alice (replica): answer"}, sink.sent)
}

func TestRequestImpersonationNotFound(t *testing.T) {
	t.Parallel()

	svc, targets := newTestService(t, &fakeSink{})
	_, err := svc.RequestImpersonation(context.Background(), "c1", "missing", Target{})
	assert.ErrorIs(t, err, message.ErrNotFound)
	assert.Empty(t, *targets)
}

func TestRequestImpersonationSinkErrors(t *testing.T) {
	t.Parallel()

	store := newStore(t, stored("m1", "hi"))
	svc := NewService(nil, store, NewRenderer(nil, store), NewPoster(nil, nil), nil)
	_, err := svc.RequestImpersonation(context.Background(), "c1", "m1", Target{})
	assert.ErrorIs(t, err, ErrNoSink)

	boom := errors.New("missing webhook permission")
	svc = NewService(nil, store, NewRenderer(nil, store), NewPoster(nil, nil), SinkProviderFunc(func(context.Context, Target) (Sink, error) {
		return nil, boom
	}))
	_, err = svc.RequestImpersonation(context.Background(), "c1", "m1", Target{ChannelID: "c9"})
	assert.ErrorIs(t, err, boom)
}

func TestRequestImpersonationPartial(t *testing.T) {
	t.Parallel()

	msg := stored("m1", "with file")
	msg.Attachments = []message.Attachment{{URL: "https://cdn.example/x.png", Filename: "x.png"}}
	svc, _ := newTestService(t, &fakeSink{failUploads: map[string]bool{"x.png": true}}, msg)

	result, err := svc.RequestImpersonation(context.Background(), "c1", "m1", Target{ChannelID: "c2"})
	require.NoError(t, err)
	assert.Equal(t, OutcomePartial, result.Status)
	assert.Equal(t, "c2", result.Target.ChannelID)
}

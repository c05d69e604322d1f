package discord

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cubbscratchstudios/splat/internal/config"
	"github.com/cubbscratchstudios/splat/internal/impersonate"
	"github.com/cubbscratchstudios/splat/internal/message"
)

type executed struct {
	webhookID string
	threadID  string
	params    *discordgo.WebhookParams
	file      []byte
}

type fakeWebhookAPI struct {
	mu       sync.Mutex
	existing []*discordgo.Webhook
	created  int
	listed   int
	calls    []executed
	execErr  error
}

func (f *fakeWebhookAPI) ChannelWebhooks(channelID string, _ ...discordgo.RequestOption) ([]*discordgo.Webhook, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listed++
	return f.existing, nil
}

func (f *fakeWebhookAPI) WebhookCreate(channelID, name, _ string, _ ...discordgo.RequestOption) (*discordgo.Webhook, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created++
	return &discordgo.Webhook{ID: "new-hook", ChannelID: channelID, Name: name, Token: "tok"}, nil
}

func (f *fakeWebhookAPI) WebhookExecute(webhookID, _ string, _ bool, data *discordgo.WebhookParams, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	return f.record(webhookID, "", data)
}

func (f *fakeWebhookAPI) WebhookThreadExecute(webhookID, _ string, _ bool, threadID string, data *discordgo.WebhookParams, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	return f.record(webhookID, threadID, data)
}

func (f *fakeWebhookAPI) record(webhookID, threadID string, data *discordgo.WebhookParams) (*discordgo.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.execErr != nil {
		return nil, f.execErr
	}
	call := executed{webhookID: webhookID, threadID: threadID, params: data}
	msg := &discordgo.Message{ID: "posted", ChannelID: "chan"}
	if len(data.Files) > 0 {
		call.file, _ = io.ReadAll(data.Files[0].Reader)
		msg.Attachments = []*discordgo.MessageAttachment{{ID: "att-new", URL: "https://cdn.example/new"}}
	}
	f.calls = append(f.calls, call)
	return msg, nil
}

func newProvider(api webhookAPI, maxUpload int64) *WebhookProvider {
	return NewWebhookProvider(nil, api, config.DiscordConfig{WebhookName: "Splat", MaxUploadBytes: maxUpload}, nil)
}

var alice = impersonate.DisplayAuthor{Name: "Alice", AvatarURL: "https://cdn.example/alice.png"}

func TestWebhookProviderReusesExisting(t *testing.T) {
	t.Parallel()

	api := &fakeWebhookAPI{existing: []*discordgo.Webhook{
		{ID: "other", Name: "Other", Token: "x"},
		{ID: "no-token", Name: "Splat"},
		{ID: "hook-1", Name: "Splat", Token: "tok", ChannelID: "chan"},
	}}
	p := newProvider(api, 0)

	for range 2 {
		sink, err := p.SinkFor(context.Background(), impersonate.Target{ChannelID: "chan"})
		require.NoError(t, err)
		assert.Equal(t, "hook-1", sink.(*WebhookSink).hook.ID)
	}
	assert.Equal(t, 1, api.listed)
	assert.Zero(t, api.created)
}

func TestWebhookProviderCreatesMissing(t *testing.T) {
	t.Parallel()

	api := &fakeWebhookAPI{}
	p := newProvider(api, 0)
	sink, err := p.SinkFor(context.Background(), impersonate.Target{ChannelID: "chan", ThreadID: "thread"})
	require.NoError(t, err)
	assert.Equal(t, 1, api.created)

	_, err = p.SinkFor(context.Background(), impersonate.Target{})
	assert.Error(t, err)

	ref, err := sink.Send(context.Background(), "hi @everyone", alice)
	require.NoError(t, err)
	assert.Equal(t, "posted", ref.ID)
	require.Len(t, api.calls, 1)
	call := api.calls[0]
	assert.Equal(t, "thread", call.threadID)
	assert.Equal(t, "Alice", call.params.Username)
	assert.Equal(t, alice.AvatarURL, call.params.AvatarURL)
	require.NotNil(t, call.params.AllowedMentions)
	assert.Empty(t, call.params.AllowedMentions.Parse)
}

func TestWebhookSinkTruncates(t *testing.T) {
	t.Parallel()

	api := &fakeWebhookAPI{}
	sink, err := newProvider(api, 0).SinkFor(context.Background(), impersonate.Target{ChannelID: "chan"})
	require.NoError(t, err)

	long := make([]rune, 2500)
	for i := range long {
		long[i] = 'é'
	}
	_, err = sink.Send(context.Background(), string(long), impersonate.DisplayAuthor{Name: string(long[:100])})
	require.NoError(t, err)
	assert.Len(t, []rune(api.calls[0].params.Content), maxContentLength)
	assert.Len(t, []rune(api.calls[0].params.Username), maxUsernameLength)
}

func TestWebhookSinkPreview(t *testing.T) {
	t.Parallel()

	api := &fakeWebhookAPI{}
	sink, err := newProvider(api, 0).SinkFor(context.Background(), impersonate.Target{ChannelID: "chan"})
	require.NoError(t, err)
	ps, ok := sink.(impersonate.PreviewSender)
	require.True(t, ok)

	_, err = ps.SendPreview(context.Background(), impersonate.ReplyPreview{MessageID: "1", Author: impersonate.DisplayAuthor{Name: "Bob"}, Excerpt: "earlier"}, alice)
	require.NoError(t, err)
	require.Len(t, api.calls[0].params.Embeds, 1)
	embed := api.calls[0].params.Embeds[0]
	assert.Equal(t, "earlier", embed.Description)
	assert.Equal(t, "Replying to Bob", embed.Author.Name)
}

func TestWebhookSinkUpload(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte("0123456789"))
	}))
	t.Cleanup(srv.Close)

	tests := []struct {
		name      string
		maxUpload int64
		att       message.Attachment
		wantErr   error
		anyErr    bool
	}{
		{name: "ok", att: message.Attachment{URL: srv.URL + "/cat.png", Filename: "cat.png"}},
		{name: "declared size over cap", maxUpload: 5, att: message.Attachment{URL: srv.URL + "/a", Size: 6}, wantErr: ErrAttachmentTooLarge},
		{name: "body over cap", maxUpload: 5, att: message.Attachment{URL: srv.URL + "/a"}, wantErr: ErrAttachmentTooLarge},
		{name: "expired url", att: message.Attachment{URL: srv.URL + "/missing"}, anyErr: true},
		{name: "no url", att: message.Attachment{}, anyErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			api := &fakeWebhookAPI{}
			p := newProvider(api, tt.maxUpload)
			p.client = srv.Client()
			sink, err := p.SinkFor(context.Background(), impersonate.Target{ChannelID: "chan"})
			require.NoError(t, err)

			ref, err := sink.Upload(context.Background(), tt.att, alice)
			switch {
			case tt.wantErr != nil:
				assert.ErrorIs(t, err, tt.wantErr)
			case tt.anyErr:
				assert.Error(t, err)
			default:
				require.NoError(t, err)
				assert.Equal(t, "att-new", ref.ID)
				require.Len(t, api.calls, 1)
				assert.Equal(t, "0123456789", string(api.calls[0].file))
				assert.Equal(t, "cat.png", api.calls[0].params.Files[0].Name)
			}
		})
	}
}

func TestWebhookSinkForgetsDeletedWebhook(t *testing.T) {
	t.Parallel()

	api := &fakeWebhookAPI{execErr: &discordgo.RESTError{Response: &http.Response{StatusCode: http.StatusNotFound}}}
	p := newProvider(api, 0)
	sink, err := p.SinkFor(context.Background(), impersonate.Target{ChannelID: "chan"})
	require.NoError(t, err)

	_, err = sink.Send(context.Background(), "hi", alice)
	require.Error(t, err)
	var restErr *discordgo.RESTError
	assert.True(t, errors.As(err, &restErr))

	_, err = p.SinkFor(context.Background(), impersonate.Target{ChannelID: "chan"})
	require.NoError(t, err)
	assert.Equal(t, 2, api.created)
}

package discord

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"golang.org/x/time/rate"

	"github.com/cubbscratchstudios/splat/internal/config"
	"github.com/cubbscratchstudios/splat/internal/impersonate"
	"github.com/cubbscratchstudios/splat/internal/message"
)

// ErrAttachmentTooLarge is returned when a re-upload exceeds the configured size cap.
var ErrAttachmentTooLarge = errors.New("attachment exceeds upload limit")

// webhookAPI is the subset of *discordgo.Session used for impersonation.
type webhookAPI interface {
	ChannelWebhooks(channelID string, options ...discordgo.RequestOption) ([]*discordgo.Webhook, error)
	WebhookCreate(channelID, name, avatar string, options ...discordgo.RequestOption) (*discordgo.Webhook, error)
	WebhookExecute(webhookID, token string, wait bool, data *discordgo.WebhookParams, options ...discordgo.RequestOption) (*discordgo.Message, error)
	WebhookThreadExecute(webhookID, token string, wait bool, threadID string, data *discordgo.WebhookParams, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// WebhookProvider finds or creates the impersonation webhook of a channel.
type WebhookProvider struct {
	api            webhookAPI
	name           string
	maxUploadBytes int64
	client         *http.Client
	limits         *limiterPool
	logger         *slog.Logger

	mu       sync.Mutex
	webhooks map[string]*discordgo.Webhook
}

// NewWebhookProvider builds a provider. api is usually the bot session.
func NewWebhookProvider(log *slog.Logger, api webhookAPI, cfg config.DiscordConfig, client *http.Client) *WebhookProvider {
	if log == nil {
		log = slog.Default()
	}
	if client == nil {
		client = &http.Client{Timeout: time.Minute}
	}
	name := strings.TrimSpace(cfg.WebhookName)
	if name == "" {
		name = config.DefaultWebhookName
	}
	return &WebhookProvider{
		api:            api,
		name:           name,
		maxUploadBytes: cfg.MaxUploadBytes,
		client:         client,
		limits:         newLimiterPool(cfg.SendRate, cfg.SendBurst),
		logger:         log.With(slog.String("component", "discord_webhook")),
		webhooks:       map[string]*discordgo.Webhook{},
	}
}

// SinkFor returns a sink posting into target.ChannelID, or its thread.
func (p *WebhookProvider) SinkFor(ctx context.Context, target impersonate.Target) (impersonate.Sink, error) {
	channelID := strings.TrimSpace(target.ChannelID)
	if channelID == "" {
		return nil, errors.New("target channel id is required")
	}
	hook, err := p.webhook(ctx, channelID)
	if err != nil {
		return nil, err
	}
	return &WebhookSink{
		provider: p,
		hook:     hook,
		threadID: strings.TrimSpace(target.ThreadID),
		limiter:  p.limits.get(hook.ID),
	}, nil
}

func (p *WebhookProvider) webhook(ctx context.Context, channelID string) (*discordgo.Webhook, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if hook, ok := p.webhooks[channelID]; ok {
		return hook, nil
	}
	hooks, err := p.api.ChannelWebhooks(channelID, discordgo.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("list webhooks: %w", err)
	}
	for _, hook := range hooks {
		if hook != nil && hook.Name == p.name && hook.Token != "" {
			p.webhooks[channelID] = hook
			return hook, nil
		}
	}
	hook, err := p.api.WebhookCreate(channelID, p.name, "", discordgo.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("create webhook: %w", err)
	}
	p.logger.Info("webhook created", slog.String("channel_id", channelID), slog.String("webhook_id", hook.ID))
	p.webhooks[channelID] = hook
	return hook, nil
}

// forget drops a cached webhook after Discord reports it gone.
func (p *WebhookProvider) forget(hook *discordgo.Webhook) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if cached, ok := p.webhooks[hook.ChannelID]; ok && cached.ID == hook.ID {
		delete(p.webhooks, hook.ChannelID)
	}
}

// WebhookSink posts as an arbitrary display author through one webhook.
type WebhookSink struct {
	provider *WebhookProvider
	hook     *discordgo.Webhook
	threadID string
	limiter  *rate.Limiter
}

// Send posts body as author. Mentions are never resolved.
func (s *WebhookSink) Send(ctx context.Context, body string, author impersonate.DisplayAuthor) (impersonate.MessageRef, error) {
	msg, err := s.execute(ctx, s.params(author, func(p *discordgo.WebhookParams) {
		p.Content = truncate(body, maxContentLength)
	}))
	if err != nil {
		return impersonate.MessageRef{}, err
	}
	return impersonate.MessageRef{ID: msg.ID, ChannelID: msg.ChannelID}, nil
}

// SendPreview posts the reply preview as an embed.
func (s *WebhookSink) SendPreview(ctx context.Context, preview impersonate.ReplyPreview, author impersonate.DisplayAuthor) (impersonate.MessageRef, error) {
	embed := &discordgo.MessageEmbed{
		Type:        discordgo.EmbedTypeRich,
		Description: preview.Excerpt,
		Color:       colorBlurple,
		Author: &discordgo.MessageEmbedAuthor{
			Name:    "Replying to " + preview.Author.Name,
			IconURL: preview.Author.AvatarURL,
		},
	}
	msg, err := s.execute(ctx, s.params(author, func(p *discordgo.WebhookParams) {
		p.Embeds = []*discordgo.MessageEmbed{embed}
	}))
	if err != nil {
		return impersonate.MessageRef{}, err
	}
	return impersonate.MessageRef{ID: msg.ID, ChannelID: msg.ChannelID}, nil
}

// Upload downloads att and re-posts it as a file.
func (s *WebhookSink) Upload(ctx context.Context, att message.Attachment, author impersonate.DisplayAuthor) (impersonate.AttachmentRef, error) {
	data, err := s.provider.download(ctx, att)
	if err != nil {
		return impersonate.AttachmentRef{}, err
	}
	name := att.Filename
	if name == "" {
		name = "attachment"
	}
	msg, err := s.execute(ctx, s.params(author, func(p *discordgo.WebhookParams) {
		p.Files = []*discordgo.File{{Name: name, ContentType: att.ContentType, Reader: bytes.NewReader(data)}}
	}))
	if err != nil {
		return impersonate.AttachmentRef{}, err
	}
	ref := impersonate.AttachmentRef{ID: msg.ID}
	if len(msg.Attachments) > 0 && msg.Attachments[0] != nil {
		ref.ID = msg.Attachments[0].ID
		ref.URL = msg.Attachments[0].URL
	}
	return ref, nil
}

func (s *WebhookSink) params(author impersonate.DisplayAuthor, fill func(*discordgo.WebhookParams)) *discordgo.WebhookParams {
	p := &discordgo.WebhookParams{
		Username:        truncate(author.Name, maxUsernameLength),
		AvatarURL:       author.AvatarURL,
		AllowedMentions: &discordgo.MessageAllowedMentions{},
	}
	fill(p)
	return p
}

func (s *WebhookSink) execute(ctx context.Context, params *discordgo.WebhookParams) (*discordgo.Message, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	api := s.provider.api
	var (
		msg *discordgo.Message
		err error
	)
	if s.threadID != "" {
		msg, err = api.WebhookThreadExecute(s.hook.ID, s.hook.Token, true, s.threadID, params, discordgo.WithContext(ctx))
	} else {
		msg, err = api.WebhookExecute(s.hook.ID, s.hook.Token, true, params, discordgo.WithContext(ctx))
	}
	if err != nil {
		var restErr *discordgo.RESTError
		if errors.As(err, &restErr) && restErr.Response != nil && restErr.Response.StatusCode == http.StatusNotFound {
			s.provider.forget(s.hook)
		}
		return nil, fmt.Errorf("webhook execute: %w", err)
	}
	if msg == nil {
		return nil, errors.New("webhook execute: empty response")
	}
	return msg, nil
}

func (p *WebhookProvider) download(ctx context.Context, att message.Attachment) ([]byte, error) {
	if att.URL == "" {
		return nil, errors.New("attachment has no url")
	}
	if p.maxUploadBytes > 0 && att.Size > p.maxUploadBytes {
		return nil, ErrAttachmentTooLarge
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, att.URL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download attachment: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download attachment: status %d", resp.StatusCode)
	}
	reader := io.Reader(resp.Body)
	if p.maxUploadBytes > 0 {
		reader = io.LimitReader(resp.Body, p.maxUploadBytes+1)
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("download attachment: %w", err)
	}
	if p.maxUploadBytes > 0 && int64(len(data)) > p.maxUploadBytes {
		return nil, ErrAttachmentTooLarge
	}
	return data, nil
}

// limiterPool hands out one send limiter per webhook.
type limiterPool struct {
	mu    sync.Mutex
	m     map[string]*rate.Limiter
	rps   rate.Limit
	burst int
}

func newLimiterPool(rps float64, burst int) *limiterPool {
	limit := rate.Inf
	if rps > 0 {
		limit = rate.Limit(rps)
	}
	if burst <= 0 {
		burst = 1
	}
	return &limiterPool{m: map[string]*rate.Limiter{}, rps: limit, burst: burst}
}

func (p *limiterPool) get(key string) *rate.Limiter {
	p.mu.Lock()
	defer p.mu.Unlock()
	if l, ok := p.m[key]; ok {
		return l
	}
	l := rate.NewLimiter(p.rps, p.burst)
	p.m[key] = l
	return l
}

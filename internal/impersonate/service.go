package impersonate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
)

// ErrNoSink is returned when no posting capability is configured.
var ErrNoSink = errors.New("impersonation sink not configured")

// Target selects where the replica is posted and optionally overrides the identity.
type Target struct {
	ChannelID   string `json:"channel_id"`
	ThreadID    string `json:"thread_id,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
	AvatarURL   string `json:"avatar_url,omitempty"`
}

// SinkProvider resolves the sink for a target channel.
type SinkProvider interface {
	SinkFor(ctx context.Context, target Target) (Sink, error)
}

// SinkProviderFunc adapts a function to SinkProvider.
type SinkProviderFunc func(ctx context.Context, target Target) (Sink, error)

func (f SinkProviderFunc) SinkFor(ctx context.Context, target Target) (Sink, error) {
	return f(ctx, target)
}

// Result is what one impersonation request produced.
type Result struct {
	RequestID string                `json:"request_id"`
	Target    Target                `json:"target"`
	Rendered  RenderedImpersonation `json:"rendered"`
	Outcome   PostOutcome           `json:"outcome"`
	Status    Outcome               `json:"status"`
}

// Service loads a stored message, renders it and posts the replica.
type Service struct {
	lookup   Lookup
	renderer *Renderer
	poster   *Poster
	sinks    SinkProvider
	logger   *slog.Logger
}

func NewService(log *slog.Logger, lookup Lookup, renderer *Renderer, poster *Poster, sinks SinkProvider) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		lookup:   lookup,
		renderer: renderer,
		poster:   poster,
		sinks:    sinks,
		logger:   log.With(slog.String("service", "impersonate")),
	}
}

// RequestImpersonation posts a replica of the stored message to target.
// An unknown message returns message.ErrNotFound; a partially posted replica
// is not an error and is reported through Result.Status.
func (s *Service) RequestImpersonation(ctx context.Context, conversationID, messageID string, target Target) (Result, error) {
	msg, err := s.lookup.Get(ctx, conversationID, messageID)
	if err != nil {
		return Result{}, err
	}
	if s.sinks == nil {
		return Result{}, ErrNoSink
	}
	target.ChannelID = strings.TrimSpace(target.ChannelID)
	if target.ChannelID == "" {
		target.ChannelID = msg.ConversationID
	}
	sink, err := s.sinks.SinkFor(ctx, target)
	if err != nil {
		return Result{}, fmt.Errorf("resolve sink for channel %s: %w", target.ChannelID, err)
	}

	rendered := s.renderer.Render(ctx, msg)
	if name := strings.TrimSpace(target.DisplayName); name != "" {
		rendered.DisplayAuthor.Name = name
	}
	if avatar := strings.TrimSpace(target.AvatarURL); avatar != "" {
		rendered.DisplayAuthor.AvatarURL = avatar
	}

	outcome := s.poster.Post(ctx, rendered, sink)
	result := Result{
		RequestID: uuid.NewString(),
		Target:    target,
		Rendered:  rendered,
		Outcome:   outcome,
		Status:    outcome.Status(),
	}
	s.logger.Info("impersonation posted",
		slog.String("request_id", result.RequestID),
		slog.String("source", msg.Key().String()),
		slog.String("channel_id", target.ChannelID),
		slog.String("status", string(result.Status)),
		slog.Bool("cancelled", outcome.Cancelled),
	)
	return result, nil
}

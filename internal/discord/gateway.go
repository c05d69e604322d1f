package discord

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/cubbscratchstudios/splat/internal/capture"
)

// Capturer accepts raw gateway events.
type Capturer interface {
	Capture(ctx context.Context, raw capture.RawEvent) error
}

// Gateway feeds gateway message events into a Capturer.
type Gateway struct {
	session        *discordgo.Session
	capturer       Capturer
	ignoreWebhooks bool
	logger         *slog.Logger
	now            func() time.Time

	mu      sync.Mutex
	removes []func()
	ctx     context.Context
}

// NewGateway wires the handlers; call Open to connect.
func NewGateway(log *slog.Logger, session *discordgo.Session, capturer Capturer, ignoreWebhooks bool) *Gateway {
	if log == nil {
		log = slog.Default()
	}
	return &Gateway{
		session:        session,
		capturer:       capturer,
		ignoreWebhooks: ignoreWebhooks,
		logger:         log.With(slog.String("component", "discord_gateway")),
		now:            func() time.Time { return time.Now().UTC() },
		ctx:            context.Background(),
	}
}

// Open registers the handlers and connects the websocket.
func (g *Gateway) Open(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.removes != nil {
		return nil
	}
	g.ctx = context.WithoutCancel(ctx)
	g.removes = []func(){
		g.session.AddHandler(func(s *discordgo.Session, m *discordgo.MessageCreate) {
			g.HandleCreate(selfID(s), m.Message)
		}),
		g.session.AddHandler(func(s *discordgo.Session, m *discordgo.MessageUpdate) {
			g.HandleUpdate(selfID(s), m.Message)
		}),
		g.session.AddHandler(func(_ *discordgo.Session, m *discordgo.MessageDelete) {
			g.HandleDelete(m)
		}),
		g.session.AddHandler(func(s *discordgo.Session, r *discordgo.MessageReactionAdd) {
			g.HandleReaction(selfID(s), r)
		}),
	}
	if err := g.session.Open(); err != nil {
		g.removeHandlers()
		return err
	}
	g.logger.Info("discord gateway connected")
	return nil
}

// Close removes the handlers and disconnects.
func (g *Gateway) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.removes == nil {
		return nil
	}
	g.removeHandlers()
	return g.session.Close()
}

func (g *Gateway) removeHandlers() {
	for _, remove := range g.removes {
		remove()
	}
	g.removes = nil
}

// HandleCreate captures a new message unless it came from this bot or a webhook.
func (g *Gateway) HandleCreate(self string, m *discordgo.Message) {
	if g.skip(self, m) {
		return
	}
	g.capture(FromMessage(capture.KindCreate, m, g.now()))
}

// HandleUpdate captures an edit. Updates without an edit timestamp are
// embed unfurls and pin changes, not content edits.
func (g *Gateway) HandleUpdate(self string, m *discordgo.Message) {
	if g.skip(self, m) || m.EditedTimestamp == nil {
		return
	}
	g.capture(FromMessage(capture.KindEdit, m, g.now()))
}

// HandleDelete records a deletion.
func (g *Gateway) HandleDelete(d *discordgo.MessageDelete) {
	if d == nil || d.Message == nil {
		return
	}
	g.capture(FromDelete(d, g.now()))
}

// HandleReaction forwards a reaction; the capture service drops it as unsupported.
func (g *Gateway) HandleReaction(self string, r *discordgo.MessageReactionAdd) {
	if r == nil || r.MessageReaction == nil || r.UserID == self {
		return
	}
	g.capture(FromReaction(r, g.now()))
}

func (g *Gateway) skip(self string, m *discordgo.Message) bool {
	if m == nil {
		return true
	}
	if m.Author != nil && self != "" && m.Author.ID == self {
		return true
	}
	return g.ignoreWebhooks && m.WebhookID != ""
}

func (g *Gateway) capture(raw capture.RawEvent) {
	err := g.capturer.Capture(g.ctx, raw)
	switch {
	case err == nil:
	case capture.IsNormalizationError(err):
		g.logger.Debug("gateway event dropped",
			slog.String("kind", string(raw.Kind)),
			slog.String("key", raw.Key().String()),
			slog.Any("error", err),
		)
	case errors.Is(err, capture.ErrQueueFull), errors.Is(err, capture.ErrStopped):
		g.logger.Warn("gateway event not queued",
			slog.String("kind", string(raw.Kind)),
			slog.String("key", raw.Key().String()),
			slog.Any("error", err),
		)
	default:
		g.logger.Error("gateway capture failed", slog.String("key", raw.Key().String()), slog.Any("error", err))
	}
}

func selfID(s *discordgo.Session) string {
	if s == nil || s.State == nil || s.State.User == nil {
		return ""
	}
	return s.State.User.ID
}

// Package msglog mirrors message events into configured log channels.
package msglog

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/cubbscratchstudios/splat/internal/config"
	"github.com/cubbscratchstudios/splat/internal/message"
	"github.com/cubbscratchstudios/splat/internal/message/event"
)

// Event names as written in the msglog configuration.
const (
	EventSend    = "messageSend"
	EventUpdate  = "messageUpdate"
	EventDelete  = "messageDelete"
	EventFlagged = "messageFlagged"

	eventBefore = "_messageUpdateBefore"
)

const emptyMessage = "[Empty message]"

var titles = map[string]string{
	EventSend:    "Message Sent",
	EventUpdate:  "Message Edited",
	EventDelete:  "Message Deleted",
	EventFlagged: "Message Flagged",
	eventBefore:  "Originally",
}

// Embed colours.
const (
	ColorRed       = 0xE74C3C
	ColorYellow    = 0xFEE75C
	ColorLightGrey = 0x979C9F
	ColorBlurple   = 0x5865F2
	ColorOrange    = 0xE67E22
)

var colors = map[string]int{
	EventSend:    ColorBlurple,
	EventUpdate:  ColorYellow,
	EventDelete:  ColorRed,
	EventFlagged: ColorOrange,
	eventBefore:  ColorLightGrey,
}

// Embed is one rich block of a log entry.
type Embed struct {
	Title         string
	Description   string
	Color         int
	AuthorName    string
	AuthorIconURL string
	AuthorURL     string
	Footer        string
	Timestamp     time.Time
}

// Entry is a message to post in a log channel.
type Entry struct {
	ChannelID string
	Content   string
	Embeds    []Embed
}

// Sink delivers log entries.
type Sink interface {
	SendLog(ctx context.Context, entry Entry) error
}

// GuildNamer resolves guild names for the {guild} template.
type GuildNamer interface {
	GuildName(guildID string) string
}

type route struct {
	channelID string
	monitor   config.MonitorConfig
}

// Logger subscribes to the message event hub and fans matching events out to log channels.
type Logger struct {
	routes []route
	sink   Sink
	sub    event.Subscriber
	names  GuildNamer
	logger *slog.Logger

	mu     sync.Mutex
	cancel func()
	done   chan struct{}
}

// New builds a logger from an already validated configuration.
func New(log *slog.Logger, cfg config.MsgLogConfig, sink Sink, sub event.Subscriber, names GuildNamer) *Logger {
	if log == nil {
		log = slog.Default()
	}
	var routes []route
	for _, ch := range cfg.Channels {
		for _, mon := range ch.Monitors {
			routes = append(routes, route{channelID: strings.TrimSpace(ch.ID), monitor: mon})
		}
	}
	return &Logger{
		routes: routes,
		sink:   sink,
		sub:    sub,
		names:  names,
		logger: log.With(slog.String("service", "msglog")),
	}
}

// Enabled reports whether any monitor is configured.
func (l *Logger) Enabled() bool {
	return len(l.routes) > 0 && l.sink != nil
}

// Start consumes hub events until Stop is called.
func (l *Logger) Start(ctx context.Context) {
	if !l.Enabled() || l.sub == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cancel != nil {
		return
	}
	_, stream, cancelSub := l.sub.Subscribe(event.AllScopes, 0)
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	l.done = make(chan struct{})
	l.cancel = func() {
		cancelSub()
		cancel()
	}
	go func() {
		defer close(l.done)
		for {
			select {
			case <-runCtx.Done():
				return
			case ev, ok := <-stream:
				if !ok {
					return
				}
				l.Handle(runCtx, ev)
			}
		}
	}()
	l.logger.Info("message logger started", slog.Int("monitors", len(l.routes)))
}

// Stop unsubscribes and waits for the consumer to exit.
func (l *Logger) Stop() {
	l.mu.Lock()
	cancel, done := l.cancel, l.done
	l.cancel = nil
	l.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Handle sends the entries of one event. Send failures are logged.
func (l *Logger) Handle(ctx context.Context, ev event.Event) {
	for _, entry := range l.Entries(ev) {
		if err := l.sink.SendLog(ctx, entry); err != nil {
			l.logger.Warn("send log entry failed",
				slog.String("channel_id", entry.ChannelID),
				slog.String("message_id", ev.Message.MessageID),
				slog.Any("error", err),
			)
		}
	}
}

// Entries builds one entry per matching monitor.
func (l *Logger) Entries(ev event.Event) []Entry {
	name := eventName(ev.Type)
	msg := ev.Message
	if name == "" || msg.IsPlaceholder() {
		return nil
	}
	var embeds []Embed
	var entries []Entry
	for _, r := range l.routes {
		if !matches(r.monitor, msg) || !slices.Contains(r.monitor.Events, name) {
			continue
		}
		if embeds == nil {
			embeds = []Embed{buildEmbed(msg, name)}
			if name == EventUpdate && ev.Previous != nil {
				embeds = append(embeds, buildEmbed(*ev.Previous, eventBefore))
			}
		}
		entries = append(entries, Entry{
			ChannelID: r.channelID,
			Content:   l.render(r.monitor.LogMessage, name, msg),
			Embeds:    embeds,
		})
	}
	return entries
}

func eventName(t event.Type) string {
	switch t {
	case event.TypeMessageSend:
		return EventSend
	case event.TypeMessageUpdate:
		return EventUpdate
	case event.TypeMessageDelete:
		return EventDelete
	case event.TypeMessageFlagged:
		return EventFlagged
	default:
		return ""
	}
}

func matches(mon config.MonitorConfig, msg message.CapturedMessage) bool {
	id := strings.TrimSpace(mon.ID)
	switch mon.Type {
	case "channel":
		return id == msg.ConversationID
	case "user":
		return id == msg.Author.ID
	case "guild":
		return id == msg.GuildID
	default:
		return false
	}
}

func buildEmbed(msg message.CapturedMessage, name string) Embed {
	content := msg.Text()
	if strings.TrimSpace(content) == "" {
		content = emptyMessage
	}
	if name == EventFlagged {
		content = fmt.Sprintf("Matched term: `%s`\n\n%s", msg.FlaggedTerm, content)
	}
	return Embed{
		Title:         titles[name],
		Description:   content,
		Color:         colors[name],
		AuthorName:    msg.Author.DisplayName,
		AuthorIconURL: msg.Author.AvatarURL,
		AuthorURL:     JumpURL(msg),
		Footer:        "ID: " + msg.MessageID,
		Timestamp:     msg.CapturedAt,
	}
}

// JumpURL links to the message in the Discord client.
func JumpURL(msg message.CapturedMessage) string {
	guild := msg.GuildID
	if guild == "" {
		guild = "@me"
	}
	return fmt.Sprintf("https://discord.com/channels/%s/%s/%s", guild, msg.ConversationID, msg.MessageID)
}

func (l *Logger) render(tmpl, name string, msg message.CapturedMessage) string {
	if tmpl == "" {
		return ""
	}
	guild := msg.GuildID
	if l.names != nil && guild != "" {
		if resolved := l.names.GuildName(guild); resolved != "" {
			guild = resolved
		}
	}
	return strings.NewReplacer(
		"{event}", titles[name],
		"{channel}", "<#"+msg.ConversationID+">",
		"{user}", "<@"+msg.Author.ID+">",
		"{guild}", guild,
	).Replace(tmpl)
}

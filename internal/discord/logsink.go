package discord

import (
	"context"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/cubbscratchstudios/splat/internal/msglog"
)

const colorBlurple = msglog.ColorBlurple

type messageAPI interface {
	ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// LogSink posts message logger entries as bot messages with embeds.
type LogSink struct {
	api messageAPI
}

// NewLogSink returns a sink posting through api, usually the bot session.
func NewLogSink(api messageAPI) *LogSink {
	return &LogSink{api: api}
}

// SendLog implements msglog.Sink.
func (s *LogSink) SendLog(ctx context.Context, entry msglog.Entry) error {
	send := &discordgo.MessageSend{
		Content:         truncate(entry.Content, maxContentLength),
		AllowedMentions: &discordgo.MessageAllowedMentions{},
	}
	for _, e := range entry.Embeds {
		send.Embeds = append(send.Embeds, toEmbed(e))
	}
	_, err := s.api.ChannelMessageSendComplex(entry.ChannelID, send, discordgo.WithContext(ctx))
	return err
}

// Discord caps embed descriptions at 4096 characters.
const maxEmbedDescription = 4096

func toEmbed(e msglog.Embed) *discordgo.MessageEmbed {
	embed := &discordgo.MessageEmbed{
		Type:        discordgo.EmbedTypeRich,
		Title:       e.Title,
		Description: truncate(e.Description, maxEmbedDescription),
		Color:       e.Color,
	}
	if e.AuthorName != "" {
		embed.Author = &discordgo.MessageEmbedAuthor{Name: e.AuthorName, IconURL: e.AuthorIconURL, URL: e.AuthorURL}
	}
	if e.Footer != "" {
		embed.Footer = &discordgo.MessageEmbedFooter{Text: e.Footer}
	}
	if !e.Timestamp.IsZero() {
		embed.Timestamp = e.Timestamp.UTC().Format(time.RFC3339)
	}
	return embed
}

// StateGuildNames resolves guild names from the session state cache.
type StateGuildNames struct {
	Session *discordgo.Session
}

// GuildName implements msglog.GuildNamer.
func (n StateGuildNames) GuildName(guildID string) string {
	if n.Session == nil || n.Session.State == nil {
		return ""
	}
	guild, err := n.Session.State.Guild(guildID)
	if err != nil || guild == nil {
		return ""
	}
	return guild.Name
}

package discord

import (
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/cubbscratchstudios/splat/internal/capture"
	"github.com/cubbscratchstudios/splat/internal/message"
)

// FromMessage converts a created or edited message.
func FromMessage(kind capture.EventKind, m *discordgo.Message, at time.Time) capture.RawEvent {
	raw := capture.RawEvent{
		Kind:           kind,
		GuildID:        m.GuildID,
		ConversationID: m.ChannelID,
		MessageID:      m.ID,
		Author:         rawAuthor(m),
		Content:        m.Content,
		Segments:       embedSegments(m.Embeds),
		Attachments:    attachments(m.Attachments),
		Timestamp:      m.Timestamp,
		OccurredAt:     at,
	}
	if m.EditedTimestamp != nil {
		raw.EditedAt = *m.EditedTimestamp
	}
	if m.Type == discordgo.MessageTypeReply && m.MessageReference != nil {
		raw.ReplyTo = m.MessageReference.MessageID
	}
	return raw
}

// FromDelete converts a delete. The state cache copy, when present, supplies
// the last known content so a message never seen before still gets a full tombstone.
func FromDelete(d *discordgo.MessageDelete, at time.Time) capture.RawEvent {
	if before := d.BeforeDelete; before != nil && before.Author != nil {
		raw := FromMessage(capture.KindDelete, before, at)
		raw.EditedAt = time.Time{}
		return raw
	}
	return capture.RawEvent{
		Kind:           capture.KindDelete,
		GuildID:        d.GuildID,
		ConversationID: d.ChannelID,
		MessageID:      d.ID,
		OccurredAt:     at,
	}
}

// FromReaction converts a reaction add.
func FromReaction(r *discordgo.MessageReactionAdd, at time.Time) capture.RawEvent {
	raw := capture.RawEvent{
		Kind:           capture.KindReaction,
		GuildID:        r.GuildID,
		ConversationID: r.ChannelID,
		MessageID:      r.MessageID,
		OccurredAt:     at,
		Emoji:          r.Emoji.APIName(),
	}
	if r.UserID != "" {
		raw.Author = &capture.RawAuthor{ID: r.UserID}
	}
	return raw
}

func rawAuthor(m *discordgo.Message) *capture.RawAuthor {
	u := m.Author
	if u == nil {
		return nil
	}
	a := &capture.RawAuthor{
		ID:         u.ID,
		Username:   u.Username,
		GlobalName: u.GlobalName,
		AvatarURL:  u.AvatarURL(avatarSize),
		Bot:        u.Bot,
	}
	if m.Member != nil {
		a.Nick = m.Member.Nick
		if m.Member.Avatar != "" && m.GuildID != "" {
			member := *m.Member
			member.User = u
			member.GuildID = m.GuildID
			a.AvatarURL = member.AvatarURL(avatarSize)
		}
	}
	return a
}

func embedSegments(embeds []*discordgo.MessageEmbed) []string {
	var out []string
	for _, e := range embeds {
		if e == nil || e.Type != discordgo.EmbedTypeRich {
			continue
		}
		if text := strings.TrimSpace(e.Description); text != "" {
			out = append(out, text)
		}
	}
	return out
}

func attachments(in []*discordgo.MessageAttachment) []message.Attachment {
	if in == nil {
		return nil
	}
	out := make([]message.Attachment, 0, len(in))
	for _, a := range in {
		if a == nil {
			continue
		}
		url := a.URL
		if url == "" {
			url = a.ProxyURL
		}
		out = append(out, message.NormalizeAttachment(message.Attachment{
			ID:          a.ID,
			URL:         url,
			Filename:    a.Filename,
			ContentType: a.ContentType,
			Size:        int64(a.Size),
		}))
	}
	return out
}

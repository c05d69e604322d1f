// Package discord connects the capture pipeline to the Discord gateway and
// posts replicas and log entries through webhooks and the bot account.
package discord

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/cubbscratchstudios/splat/internal/config"
)

// Discord limits.
const (
	maxContentLength  = 2000
	maxUsernameLength = 80
	avatarSize        = "256"
	stateMessageCount = 100
)

// Intents requests message content, reactions and direct messages.
const Intents = discordgo.IntentsGuildMessages |
	discordgo.IntentsGuildMessageReactions |
	discordgo.IntentsDirectMessages |
	discordgo.IntentsMessageContent

var errMissingToken = errors.New("discord bot token is required")

// NewSession builds an unopened bot session.
func NewSession(cfg config.DiscordConfig) (*discordgo.Session, error) {
	token := strings.TrimSpace(cfg.BotToken)
	if token == "" {
		return nil, errMissingToken
	}
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, err
	}
	session.Identify.Intents = Intents
	session.State.MaxMessageCount = stateMessageCount
	session.Client = &http.Client{Timeout: 30 * time.Second}
	return session, nil
}

func truncate(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit-3]) + "..."
}

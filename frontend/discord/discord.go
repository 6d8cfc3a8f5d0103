// Package discord implements sentinel.Frontend on top of the Discord
// gateway. The bot answers direct messages and guild messages that mention
// it; everything else on a channel is ignored.
package discord

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/bwmarrin/discordgo"

	sentinel "github.com/key-r-code/drexel-sentinel"
)

// maxMessageLength is Discord's per-message character limit.
const maxMessageLength = 2000

// Bot implements sentinel.Frontend for Discord.
type Bot struct {
	session *discordgo.Session
	logger  *slog.Logger
}

var _ sentinel.Frontend = (*Bot)(nil)

// Option configures a Bot.
type Option func(*Bot)

// WithLogger sets a structured logger for the bot.
func WithLogger(l *slog.Logger) Option {
	return func(b *Bot) { b.logger = l }
}

// NewBot creates a Discord bot with the given token. The gateway connection
// is opened by Poll.
func NewBot(token string, opts ...Option) (*Bot, error) {
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("discord: create session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages |
		discordgo.IntentMessageContent

	b := &Bot{session: session, logger: slog.New(discardHandler{})}
	for _, o := range opts {
		o(b)
	}
	return b, nil
}

type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (d discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discardHandler) WithGroup(string) slog.Handler           { return d }

// Poll opens the gateway connection and returns a channel of incoming
// messages. The channel closes when ctx is cancelled.
func (b *Bot) Poll(ctx context.Context) (<-chan sentinel.IncomingMessage, error) {
	ch := make(chan sentinel.IncomingMessage)

	remove := b.session.AddHandler(func(s *discordgo.Session, m *discordgo.MessageCreate) {
		msg, ok := b.accept(s, m)
		if !ok {
			return
		}
		select {
		case ch <- msg:
		case <-ctx.Done():
		}
	})

	if err := b.session.Open(); err != nil {
		remove()
		return nil, fmt.Errorf("discord: open gateway: %w", err)
	}
	b.logger.Info("discord: gateway connected", "user", b.session.State.User.Username)

	go func() {
		<-ctx.Done()
		remove()
		if err := b.session.Close(); err != nil {
			b.logger.Warn("discord: close gateway", "error", err)
		}
		close(ch)
	}()

	return ch, nil
}

// accept decides whether a gateway message is addressed to the bot and maps
// it to an IncomingMessage with the mention token stripped.
func (b *Bot) accept(s *discordgo.Session, m *discordgo.MessageCreate) (sentinel.IncomingMessage, bool) {
	if m.Author == nil || m.Author.ID == s.State.User.ID || m.Author.Bot {
		return sentinel.IncomingMessage{}, false
	}

	isDM := m.GuildID == ""
	mentioned := false
	for _, u := range m.Mentions {
		if u.ID == s.State.User.ID {
			mentioned = true
			break
		}
	}
	if !isDM && !mentioned {
		return sentinel.IncomingMessage{}, false
	}

	text := stripMention(m.Content, s.State.User.ID)
	if text == "" {
		return sentinel.IncomingMessage{}, false
	}

	return sentinel.IncomingMessage{
		ID:     m.ID,
		ChatID: m.ChannelID,
		UserID: m.Author.ID,
		Text:   text,
	}, true
}

// stripMention removes the bot's mention tokens (<@id> and <@!id>) from the
// message and trims whitespace.
func stripMention(content, botID string) string {
	content = strings.ReplaceAll(content, "<@"+botID+">", "")
	content = strings.ReplaceAll(content, "<@!"+botID+">", "")
	return strings.TrimSpace(content)
}

// Send sends text to a channel, splitting it when it exceeds Discord's
// 2000-character limit. Returns the id of the last message sent.
func (b *Bot) Send(ctx context.Context, chatID string, text string) (string, error) {
	var lastID string
	for _, part := range splitMessage(text) {
		msg, err := b.session.ChannelMessageSend(chatID, part, discordgo.WithContext(ctx))
		if err != nil {
			return "", fmt.Errorf("discord: send message: %w", err)
		}
		lastID = msg.ID
	}
	return lastID, nil
}

// SendTyping shows the typing indicator in a channel.
func (b *Bot) SendTyping(ctx context.Context, chatID string) error {
	return b.session.ChannelTyping(chatID, discordgo.WithContext(ctx))
}

// splitMessage splits text into pieces of at most maxMessageLength
// characters, preferring newline boundaries and then spaces.
func splitMessage(text string) []string {
	if text == "" {
		return []string{""}
	}
	var parts []string
	for len(text) > maxMessageLength {
		cut := strings.LastIndexByte(text[:maxMessageLength], '\n')
		if cut < maxMessageLength/2 {
			cut = strings.LastIndexByte(text[:maxMessageLength], ' ')
		}
		if cut < maxMessageLength/2 {
			cut = maxMessageLength
		}
		parts = append(parts, strings.TrimSpace(text[:cut]))
		text = strings.TrimSpace(text[cut:])
	}
	if text != "" || len(parts) == 0 {
		parts = append(parts, text)
	}
	return parts
}

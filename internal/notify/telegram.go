package notify

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"
	"time"

	tele "gopkg.in/telebot.v3"
)

// DefaultAPIURL is the Telegram Bot API endpoint.
const DefaultAPIURL = "https://api.telegram.org"

// chat addresses a Telegram chat by numeric id or @username.
type chat string

func (c chat) Recipient() string { return string(c) }

// BotOptions configures NewTelegramBot.
type BotOptions struct {
	APIURL      string
	PollTimeout time.Duration
	// Offline skips the getMe handshake, for tests.
	Offline bool
}

// NewTelegramBot creates a long-polling telebot instance.
func NewTelegramBot(token string, opts BotOptions) (*tele.Bot, error) {
	if strings.TrimSpace(token) == "" {
		return nil, errors.New("telegram bot token is required")
	}
	if opts.APIURL == "" {
		opts.APIURL = DefaultAPIURL
	}
	if opts.PollTimeout <= 0 {
		opts.PollTimeout = 10 * time.Second
	}

	bot, err := tele.NewBot(tele.Settings{
		URL:     opts.APIURL,
		Token:   token,
		Poller:  &tele.LongPoller{Timeout: opts.PollTimeout},
		Offline: opts.Offline,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	return bot, nil
}

// TelegramTransport sends HTML messages through the Telegram Bot API.
type TelegramTransport struct {
	bot *tele.Bot
}

// NewTelegramTransport creates a new TelegramTransport
func NewTelegramTransport(bot *tele.Bot) *TelegramTransport {
	return &TelegramTransport{bot: bot}
}

// SendToTarget posts text to a chat or channel, mentioning the user.
func (t *TelegramTransport) SendToTarget(ctx context.Context, target, userID, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := MentionUser(userID) + " New episode alert!\n\n" + text
	if _, err := t.bot.Send(chat(target), msg, tele.ModeHTML); err != nil {
		return fmt.Errorf("send to %s: %w", target, err)
	}
	return nil
}

// SendToUser sends text as a private message.
func (t *TelegramTransport) SendToUser(ctx context.Context, userID, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := t.bot.Send(chat(userID), text, tele.ModeHTML); err != nil {
		return fmt.Errorf("send to user %s: %w", userID, err)
	}
	return nil
}

// MentionUser renders an inline mention of a Telegram user id.
func MentionUser(userID string) string {
	id := html.EscapeString(userID)
	return fmt.Sprintf(`<a href="tg://user?id=%s">%s</a>`, id, id)
}

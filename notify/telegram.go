package notify

import (
	"context"
	"fmt"
	"net/http"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// ParseModeMarkdown selects Telegram's legacy Markdown rendering.
const ParseModeMarkdown = tgbotapi.ModeMarkdown

// SendOptions are per-message rendering hints.
type SendOptions struct {
	ParseMode      string
	DisablePreview bool
}

// Transport delivers one message to one chat.
type Transport interface {
	Send(ctx context.Context, chatID int64, text string, opts SendOptions) error
}

// TelegramTransport sends through the Telegram Bot API.
type TelegramTransport struct {
	bot *tgbotapi.BotAPI
}

// NewTelegramTransport authenticates the bot token (one getMe call). endpoint
// may be empty for the public API; client may be nil.
func NewTelegramTransport(token, endpoint string, client *http.Client) (*TelegramTransport, error) {
	if token == "" {
		return nil, fmt.Errorf("telegram: empty bot token")
	}
	if endpoint == "" {
		endpoint = tgbotapi.APIEndpoint
	}
	if client == nil {
		client = http.DefaultClient
	}
	bot, err := tgbotapi.NewBotAPIWithClient(token, endpoint, client)
	if err != nil {
		return nil, fmt.Errorf("telegram: authenticate bot: %w", err)
	}
	return &TelegramTransport{bot: bot}, nil
}

// Username returns the bot's account name.
func (t *TelegramTransport) Username() string { return t.bot.Self.UserName }

// Send implements Transport. The Bot API client has no context support, so
// cancellation is only honored before the request starts.
func (t *TelegramTransport) Send(ctx context.Context, chatID int64, text string, opts SendOptions) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = opts.ParseMode
	msg.DisableWebPagePreview = opts.DisablePreview
	if _, err := t.bot.Send(msg); err != nil {
		return fmt.Errorf("telegram: send to %d: %w", chatID, err)
	}
	return nil
}

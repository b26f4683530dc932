// Package telegram delivers composed notifications to a Telegram chat.
package telegram

import (
	"context"
	"fmt"
	"log/slog"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/couchcryptid/severe-alert-service/internal/notify"
)

// Sender implements notify.Sender over the Telegram Bot API. Telegram has no
// title/subtitle split, so the message folds all three into one text block.
type Sender struct {
	bot    *tgbotapi.BotAPI
	chatID int64
	logger *slog.Logger
}

// NewSender authenticates the bot and returns a sender bound to one chat.
func NewSender(token string, chatID int64, logger *slog.Logger) (*Sender, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram auth: %w", err)
	}
	logger.Info("telegram sender ready", "bot", bot.Self.UserName, "chat_id", chatID)
	return &Sender{bot: bot, chatID: chatID, logger: logger}, nil
}

func (s *Sender) Send(_ context.Context, msg notify.Message, id string) error {
	text := "*" + escapeMarkdown(msg.Title) + "*"
	if msg.Subtitle != "" {
		text += "\n_" + escapeMarkdown(msg.Subtitle) + "_"
	}
	if msg.Body != "" {
		text += "\n\n" + escapeMarkdown(msg.Body)
	}

	m := tgbotapi.NewMessage(s.chatID, text)
	m.ParseMode = tgbotapi.ModeMarkdown

	if _, err := s.bot.Send(m); err != nil {
		return fmt.Errorf("telegram send %s: %w", id, err)
	}
	return nil
}

// escapeMarkdown neutralizes the characters Telegram's legacy Markdown mode
// treats as formatting. Bulletin text uses them freely.
func escapeMarkdown(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '*', '_', '`', '[':
			out = append(out, '\\')
		}
		out = append(out, s[i])
	}
	return string(out)
}

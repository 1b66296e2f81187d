// Package notify delivers formatted messages to the operations chat.
//
// One fixed chat, two topics: routine summaries (HTML) and
// security/operational warnings (MarkdownV2).
package notify

import (
	"context"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/crmops/chatwatch/pkg/logger"
	"github.com/crmops/chatwatch/pkg/metrics"
)

// Telegram sends messages through the Bot API.
type Telegram struct {
	bot           *tgbotapi.BotAPI
	chatID        int64
	summaryTopic  int
	warningsTopic int
	logger        *logger.Logger
}

// NewTelegram creates the notifier and authenticates the bot token.
func NewTelegram(token string, chatID int64, summaryTopic, warningsTopic int, log *logger.Logger) (*Telegram, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	log.Info("telegram notifier ready", zap.String("bot", bot.Self.UserName))

	return &Telegram{
		bot:           bot,
		chatID:        chatID,
		summaryTopic:  summaryTopic,
		warningsTopic: warningsTopic,
		logger:        log,
	}, nil
}

// SendSummary posts an HTML-formatted message to the summaries topic.
func (t *Telegram) SendSummary(ctx context.Context, html string) error {
	return t.send(ctx, t.summaryTopic, html, tgbotapi.ModeHTML)
}

// SendWarning posts a message to the warnings topic, escaping it for
// MarkdownV2.
func (t *Telegram) SendWarning(ctx context.Context, text string) error {
	return t.send(ctx, t.warningsTopic, EscapeMarkdownV2(text), tgbotapi.ModeMarkdownV2)
}

func (t *Telegram) send(ctx context.Context, topicID int, text, parseMode string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	// message_thread_id predates the library's typed config, so the
	// request is assembled from raw params.
	params := tgbotapi.Params{}
	params.AddNonZero64("chat_id", t.chatID)
	params.AddNonZero("message_thread_id", topicID)
	params["text"] = text
	params["parse_mode"] = parseMode

	if _, err := t.bot.MakeRequest("sendMessage", params); err != nil {
		metrics.RecordExternalFailure("notifier")
		t.logger.Error("telegram delivery failed",
			zap.Int("topic_id", topicID),
			zap.Error(err),
		)
		return fmt.Errorf("telegram delivery failed: %w", err)
	}
	t.logger.Debug("telegram message sent", zap.Int("topic_id", topicID))
	return nil
}

// EscapeMarkdownV2 escapes the characters Telegram treats as markup in
// MarkdownV2 parse mode.
func EscapeMarkdownV2(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		if strings.ContainsRune("_*[]()~`>#+-=|{}.!", r) {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

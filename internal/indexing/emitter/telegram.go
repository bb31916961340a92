package emitter

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	tgbot "github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"golang.org/x/time/rate"

	"github.com/vietddude/fundwatch/internal/core/domain"
)

// telegramRate stays below the per-chat message limit of the bot API.
const telegramRate = 1

type messageSender interface {
	SendMessage(ctx context.Context, params *tgbot.SendMessageParams) (*models.Message, error)
}

// TelegramEmitter posts one message per finding to a chat.
type TelegramEmitter struct {
	bot     messageSender
	chatID  int64
	limiter *rate.Limiter
}

// NewTelegramEmitter creates a bot client for token without polling for updates.
func NewTelegramEmitter(token string, chatID int64) (*TelegramEmitter, error) {
	b, err := tgbot.New(token, tgbot.WithSkipGetMe())
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	return newTelegramEmitter(b, chatID), nil
}

func newTelegramEmitter(b messageSender, chatID int64) *TelegramEmitter {
	return &TelegramEmitter{
		bot:     b,
		chatID:  chatID,
		limiter: rate.NewLimiter(rate.Limit(telegramRate), 3),
	}
}

func (e *TelegramEmitter) Name() string { return "telegram" }

func (e *TelegramEmitter) Emit(ctx context.Context, findings []domain.Finding) error {
	for i := range findings {
		if err := e.limiter.Wait(ctx); err != nil {
			return err
		}
		_, err := e.bot.SendMessage(ctx, &tgbot.SendMessageParams{
			ChatID: e.chatID,
			Text:   FormatFinding(findings[i]),
		})
		if err != nil {
			return fmt.Errorf("send finding %s: %w", findings[i].ID, err)
		}
	}
	return nil
}

func (e *TelegramEmitter) Close() error { return nil }

// FormatFinding renders a finding as a plain-text message.
func FormatFinding(f domain.Finding) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s\n", f.Severity, f.Name)
	b.WriteString(f.Description)
	b.WriteString("\n\n")
	fmt.Fprintf(&b, "alert: %s\n", f.AlertID)
	fmt.Fprintf(&b, "chain: %s  block: %d\n", f.ChainID.Name(), f.BlockNumber)
	fmt.Fprintf(&b, "tx: %s\n", f.TxHash)
	fmt.Fprintf(&b, "anomaly score: %s", strconv.FormatFloat(f.AnomalyScore, 'f', -1, 64))
	if len(f.Contained) > 0 {
		b.WriteString("\ncontained:")
		for _, a := range f.Contained {
			b.WriteString("\n  ")
			b.WriteString(a.String())
		}
	}
	return b.String()
}

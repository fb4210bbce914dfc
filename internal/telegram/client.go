// Package telegram provides a client for sending alerts and serving bot
// commands via the Telegram Bot API.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/rewired-gh/mmradar/internal/logger"
	"github.com/rewired-gh/mmradar/internal/models"
	"github.com/rewired-gh/mmradar/internal/monitor"
)

// Client handles Telegram notifications.
type Client struct {
	bot            *tgbotapi.BotAPI
	chatID         int64
	maxRetries     int
	retryDelayBase time.Duration
}

// NewClient creates a new Telegram client. chatID is the admin chat that
// receives error and recovery notices.
func NewClient(botToken, chatID string, maxRetries int, retryDelayBase time.Duration) (*Client, error) {
	chatIDInt, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid chat ID: %w", err)
	}

	bot, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create Telegram bot: %w", err)
	}

	if maxRetries <= 0 {
		maxRetries = 3
	}
	if retryDelayBase <= 0 {
		retryDelayBase = time.Second
	}

	return &Client{
		bot:            bot,
		chatID:         chatIDInt,
		maxRetries:     maxRetries,
		retryDelayBase: retryDelayBase,
	}, nil
}

// ListenForCommands starts a goroutine that polls for Telegram updates and handles bot commands.
// It returns immediately; the goroutine stops when ctx is cancelled.
func (c *Client) ListenForCommands(ctx context.Context, cmds *Commands) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := c.bot.GetUpdatesChan(u)

	go func() {
		for {
			select {
			case <-ctx.Done():
				c.bot.StopReceivingUpdates()
				return
			case update, ok := <-updates:
				if !ok {
					return
				}
				if update.Message != nil && update.Message.IsCommand() {
					c.handleCommand(ctx, cmds, update.Message)
				}
			}
		}
	}()
}

func (c *Client) handleCommand(ctx context.Context, cmds *Commands, msg *tgbotapi.Message) {
	userID, username := msg.Chat.ID, ""
	if msg.From != nil {
		userID, username = msg.From.ID, msg.From.UserName
	}
	logger.Debug("Command /%s from %d", msg.Command(), userID)

	text := cmds.Reply(ctx, userID, username, msg.Command(), msg.CommandArguments())
	if err := c.sendMarkdownV2(msg.Chat.ID, text); err != nil {
		logger.Warn("Failed to reply to /%s: %v", msg.Command(), err)
	}
}

// sendMarkdownV2 sends a MarkdownV2 message with linear-backoff retry.
func (c *Client) sendMarkdownV2(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdownV2

	var lastErr error
	for i := 0; i < c.maxRetries; i++ {
		if _, err := c.bot.Send(msg); err == nil {
			return nil
		} else {
			lastErr = err
		}
		time.Sleep(c.retryDelayBase * time.Duration(i+1))
	}
	return fmt.Errorf("failed after %d retries: %w", c.maxRetries, lastErr)
}

// SendError sends a monitoring error notification.
// Call this only on the first occurrence of a consecutive error sequence.
func (c *Client) SendError(cycleErr error) error {
	text := fmt.Sprintf("⚠️ *Monitoring error*\n`%s`", escapeMarkdownV2(cycleErr.Error()))
	return c.sendMarkdownV2(c.chatID, text)
}

// SendRecovery sends a recovery notification after consecutive failures.
func (c *Client) SendRecovery(failureCount int) error {
	text := fmt.Sprintf("✅ *Monitoring recovered* after %d consecutive failure\\(s\\)", failureCount)
	return c.sendMarkdownV2(c.chatID, text)
}

// SendAlert delivers an assessment to each subscriber. It returns how many
// chats received it, with the errors of the rest joined.
func (c *Client) SendAlert(chatIDs []int64, a models.RiskAssessment) (int, error) {
	text := FormatAlert(a)
	var errs []error
	delivered := 0
	for _, id := range chatIDs {
		if err := c.sendMarkdownV2(id, text); err != nil {
			errs = append(errs, fmt.Errorf("chat %d: %w", id, err))
			continue
		}
		delivered++
	}
	return delivered, errors.Join(errs...)
}

// FormatAlert formats an assessment into a Telegram MarkdownV2 message.
func FormatAlert(a models.RiskAssessment) string {
	var b strings.Builder

	emoji, label := monitor.AlertHeader(a.Severity)
	fmt.Fprintf(&b, "%s *%s \\- %s*\n\n", emoji, escapeMarkdownV2(label), escapeMarkdownV2(a.Instrument))
	if a.Failed() {
		fmt.Fprintf(&b, "Could not analyze: `%s`\n\n", escapeMarkdownV2(a.Err.Error()))
	} else {
		fmt.Fprintf(&b, "*Risk Score:* %d/100\n\n", a.RiskScore)
	}

	if len(a.Signals) > 0 {
		b.WriteString("*🔍 Signals:*\n")
		for _, s := range a.Signals {
			fmt.Fprintf(&b, "• %s\n", escapeMarkdownV2(s.Message))
		}
		b.WriteString("\n")
	} else if !a.Failed() {
		b.WriteString(escapeMarkdownV2(monitor.NoSignalsSummary) + "\n\n")
	}

	fmt.Fprintf(&b, "*💡 Recommendation:*\n%s\n\n", escapeMarkdownV2(a.Recommendation))
	fmt.Fprintf(&b, "⏰ %s", escapeMarkdownV2(a.Timestamp.Format("15:04:05 02/01/2006")))
	return b.String()
}

// escapeMarkdownV2 escapes special characters for Telegram MarkdownV2.
func escapeMarkdownV2(text string) string {
	var b strings.Builder
	b.Grow(len(text) + len(text)/4) // pre-allocate with room for escapes
	for _, char := range text {
		switch char {
		case '_', '*', '[', ']', '(', ')', '~', '`', '>', '#', '+', '-', '=', '|', '{', '}', '.', '!':
			b.WriteByte('\\')
		}
		b.WriteRune(char)
	}
	return b.String()
}

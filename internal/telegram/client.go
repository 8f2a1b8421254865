// Package telegram announces settlement results and serves administrative
// commands via the Telegram Bot API. Announcements are best-effort: every
// send failure is swallowed after logging, so a notification problem can
// never be mistaken for a settlement problem.
package telegram

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Chukwuemekamusic/matchday-bet-bot-sub001/internal/logger"
	"github.com/Chukwuemekamusic/matchday-bet-bot-sub001/internal/models"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Triggers are the administrative entry points exposed as bot commands.
// They reuse the engine's idempotent cycle paths; there is no parallel
// resolution logic behind the chat interface.
type Triggers struct {
	ForcePoll  func() error
	ForceSweep func() error
	Status     func() (string, error)
}

// Client handles Telegram announcements and admin commands.
type Client struct {
	bot            *tgbotapi.BotAPI
	chatID         int64
	maxRetries     int
	retryDelayBase time.Duration
}

// NewClient creates a Telegram client bound to the admin chat.
func NewClient(botToken, chatID string, maxRetries int, retryDelayBase time.Duration) (*Client, error) {
	bot, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create Telegram bot: %w", err)
	}

	chatIDInt, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid chat ID: %w", err)
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

// ListenForCommands starts a goroutine that polls for updates and handles
// admin commands. It returns immediately; the goroutine stops when ctx is
// cancelled. Commands from chats other than the configured admin chat are
// ignored.
func (c *Client) ListenForCommands(ctx context.Context, triggers Triggers) {
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
				if update.Message == nil || !update.Message.IsCommand() {
					continue
				}
				if update.Message.Chat.ID != c.chatID {
					logger.Warn("Ignoring command %q from unauthorized chat %d",
						update.Message.Command(), update.Message.Chat.ID)
					continue
				}
				c.handleCommand(update.Message, triggers)
			}
		}
	}()
}

func (c *Client) handleCommand(msg *tgbotapi.Message, triggers Triggers) {
	reply := func(text string) {
		m := tgbotapi.NewMessage(msg.Chat.ID, text)
		c.bot.Send(m) //nolint:errcheck
	}

	switch msg.Command() {
	case "ping":
		reply("Pong")
	case "resolve":
		if triggers.ForcePoll == nil {
			return
		}
		if err := triggers.ForcePoll(); err != nil {
			reply(fmt.Sprintf("Poll cycle finished with errors: %v", err))
			return
		}
		reply("Poll cycle complete")
	case "sweep":
		if triggers.ForceSweep == nil {
			return
		}
		if err := triggers.ForceSweep(); err != nil {
			reply(fmt.Sprintf("Stale sweep finished with errors: %v", err))
			return
		}
		reply("Stale sweep complete")
	case "status":
		if triggers.Status == nil {
			return
		}
		text, err := triggers.Status()
		if err != nil {
			reply(fmt.Sprintf("Status unavailable: %v", err))
			return
		}
		reply(text)
	}
}

// sendMarkdownV2 sends a MarkdownV2 message with linear-backoff retry.
func (c *Client) sendMarkdownV2(text string) error {
	msg := tgbotapi.NewMessage(c.chatID, text)
	msg.ParseMode = "MarkdownV2"

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

// NotifyResolved announces settled results. Failures are logged and
// swallowed.
func (c *Client) NotifyResolved(events []*models.Event) {
	if len(events) == 0 {
		return
	}
	if err := c.sendMarkdownV2(formatResolved(events)); err != nil {
		logger.Warn("Failed to announce %d settled result(s): %v", len(events), err)
	}
}

// NotifyCancelled announces voided events. Failures are logged and
// swallowed.
func (c *Client) NotifyCancelled(events []*models.Event) {
	if len(events) == 0 {
		return
	}
	if err := c.sendMarkdownV2(formatCancelled(events)); err != nil {
		logger.Warn("Failed to announce %d cancellation(s): %v", len(events), err)
	}
}

// SendError sends a cycle-failure notification.
// Call this only on the first occurrence of a consecutive error sequence.
func (c *Client) SendError(cycleErr error) error {
	text := fmt.Sprintf("⚠️ *Settlement cycle error*\n`%s`", escapeMarkdownV2(cycleErr.Error()))
	return c.sendMarkdownV2(text)
}

// SendRecovery sends a recovery notification after consecutive failures.
func (c *Client) SendRecovery(failureCount int) error {
	text := fmt.Sprintf("✅ *Settlement recovered* after %d consecutive failure\\(s\\)", failureCount)
	return c.sendMarkdownV2(text)
}

func formatResolved(events []*models.Event) string {
	var b strings.Builder
	b.WriteString("🏁 *Results settled*\n\n")
	for _, ev := range events {
		if ev.HomeScore == nil || ev.AwayScore == nil || ev.Outcome == nil {
			continue
		}
		b.WriteString(fmt.Sprintf("⚽ %s %d\\-%d %s — *%s*\n",
			escapeMarkdownV2(ev.HomeTeam), *ev.HomeScore,
			*ev.AwayScore, escapeMarkdownV2(ev.AwayTeam),
			outcomeLabel(*ev.Outcome)))
	}
	b.WriteString("\nWinning claims are now open\\.")
	return b.String()
}

func formatCancelled(events []*models.Event) string {
	var b strings.Builder
	b.WriteString("🚫 *Fixtures voided*\n\n")
	for _, ev := range events {
		line := escapeMarkdownV2(ev.Fixture())
		if ev.Competition != "" {
			line += fmt.Sprintf(" \\(%s\\)", escapeMarkdownV2(ev.Competition))
		}
		b.WriteString(line + "\n")
	}
	b.WriteString("\nAll stakes on these fixtures are refundable\\.")
	return b.String()
}

func outcomeLabel(o models.Outcome) string {
	switch o {
	case models.OutcomeHome:
		return "HOME WIN"
	case models.OutcomeAway:
		return "AWAY WIN"
	default:
		return "DRAW"
	}
}

// escapeMarkdownV2 escapes special characters for Telegram MarkdownV2.
func escapeMarkdownV2(text string) string {
	var b strings.Builder
	b.Grow(len(text) + len(text)/4)
	for _, char := range text {
		switch char {
		case '_', '*', '[', ']', '(', ')', '~', '`', '>', '#', '+', '-', '=', '|', '{', '}', '.', '!':
			b.WriteByte('\\')
		}
		b.WriteRune(char)
	}
	return b.String()
}

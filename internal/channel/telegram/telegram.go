// Package telegram implements the Telegram chat channel using long polling.
package telegram

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/soyeahso/sprintbot/internal/config"
	"github.com/soyeahso/sprintbot/internal/domain"
	"github.com/soyeahso/sprintbot/internal/logging"
)

// maxMessageRunes is Telegram's limit for a single text message.
const maxMessageRunes = 4096

// sender is the subset of *bot.Bot used to deliver replies.
type sender interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error)
}

// Channel implements domain.Channel for Telegram.
type Channel struct {
	cfg config.TelegramConfig
	log *logging.Logger

	mu      sync.RWMutex
	api     sender
	handler func(msg domain.InboundMessage)
	running bool
	lastErr string
}

// New creates a Telegram channel from configuration.
func New(cfg config.TelegramConfig, log *logging.Logger) *Channel {
	return &Channel{
		cfg: cfg,
		log: log.Sub("telegram"),
	}
}

func (c *Channel) ID() string { return "telegram" }

func (c *Channel) OnMessage(handler func(msg domain.InboundMessage)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handler = handler
}

// Status returns the current runtime status.
func (c *Channel) Status() domain.ChannelStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return domain.ChannelStatus{
		ChannelID: "telegram",
		Connected: c.running && c.api != nil,
		Running:   c.running,
		LastError: c.lastErr,
	}
}

// Start creates the bot and polls for updates until ctx is cancelled.
func (c *Channel) Start(ctx context.Context) error {
	if c.cfg.Token == "" {
		return fmt.Errorf("telegram: bot token not configured")
	}

	b, err := bot.New(c.cfg.Token, bot.WithDefaultHandler(c.onUpdate))
	if err != nil {
		c.mu.Lock()
		c.lastErr = err.Error()
		c.mu.Unlock()
		return fmt.Errorf("telegram: create bot: %w", err)
	}

	c.mu.Lock()
	c.api = b
	c.running = true
	c.lastErr = ""
	c.mu.Unlock()

	c.log.Info().Int("allowed_chats", len(c.cfg.AllowedChats)).Msg("starting Telegram polling")
	b.Start(ctx)

	c.mu.Lock()
	c.running = false
	c.mu.Unlock()
	c.log.Info().Msg("Telegram polling stopped")
	return ctx.Err()
}

// Stop marks the channel stopped. Polling itself ends with the Start context.
func (c *Channel) Stop(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.running = false
	return nil
}

// Send delivers a reply to the chat named by msg.To.
func (c *Channel) Send(ctx context.Context, msg domain.OutboundMessage) error {
	c.mu.RLock()
	api := c.api
	c.mu.RUnlock()

	if api == nil {
		return fmt.Errorf("telegram: not connected")
	}
	chatID, err := strconv.ParseInt(msg.To, 10, 64)
	if err != nil {
		return fmt.Errorf("telegram: invalid chat id %q: %w", msg.To, err)
	}

	for i, chunk := range splitMessage(msg.Body, maxMessageRunes) {
		params := &bot.SendMessageParams{
			ChatID: chatID,
			Text:   chunk,
		}
		if i == 0 && msg.ReplyToID != "" {
			if id, err := strconv.Atoi(msg.ReplyToID); err == nil {
				params.ReplyParameters = &models.ReplyParameters{MessageID: id}
			}
		}
		if _, err := api.SendMessage(ctx, params); err != nil {
			c.mu.Lock()
			c.lastErr = err.Error()
			c.mu.Unlock()
			return fmt.Errorf("telegram: send message: %w", err)
		}
	}

	c.log.Debug().Int64("chat_id", chatID).Int("chars", len(msg.Body)).Msg("sent Telegram message")
	return nil
}

func (c *Channel) onUpdate(_ context.Context, _ *bot.Bot, update *models.Update) {
	msg, ok := c.accept(update)
	if !ok {
		return
	}
	c.mu.RLock()
	handler := c.handler
	c.mu.RUnlock()
	if handler != nil {
		handler(msg)
	}
}

// accept converts a text update into an inbound message, dropping chats
// outside the allow list.
func (c *Channel) accept(update *models.Update) (domain.InboundMessage, bool) {
	if update == nil || update.Message == nil {
		return domain.InboundMessage{}, false
	}
	m := update.Message
	body := strings.TrimSpace(m.Text)
	if body == "" {
		return domain.InboundMessage{}, false
	}
	if len(c.cfg.AllowedChats) > 0 && !slices.Contains(c.cfg.AllowedChats, m.Chat.ID) {
		c.log.Debug().Int64("chat_id", m.Chat.ID).Msg("ignoring message from chat not in allow list")
		return domain.InboundMessage{}, false
	}

	chatType := domain.ChatTypeGroup
	if m.Chat.Type == models.ChatTypePrivate {
		chatType = domain.ChatTypeDM
	}

	from := strconv.FormatInt(m.Chat.ID, 10)
	fromName := from
	if m.From != nil {
		from = strconv.FormatInt(m.From.ID, 10)
		fromName = m.From.Username
		if fromName == "" {
			fromName = strings.TrimSpace(m.From.FirstName + " " + m.From.LastName)
		}
	}

	ts := time.Now()
	if m.Date > 0 {
		ts = time.Unix(int64(m.Date), 0)
	}

	return domain.InboundMessage{
		ID:        strconv.Itoa(m.ID),
		ChannelID: "telegram",
		From:      from,
		FromName:  fromName,
		ChatID:    strconv.FormatInt(m.Chat.ID, 10),
		ChatType:  chatType,
		Body:      body,
		Timestamp: ts,
		ReplyToID: strconv.Itoa(m.ID),
	}, true
}

// splitMessage cuts text into chunks of at most maxRunes runes, preferring
// line breaks.
func splitMessage(text string, maxRunes int) []string {
	if utf8.RuneCountInString(text) <= maxRunes {
		return []string{text}
	}
	var chunks []string
	var cur strings.Builder
	curRunes := 0
	flush := func() {
		if cur.Len() > 0 {
			chunks = append(chunks, cur.String())
			cur.Reset()
			curRunes = 0
		}
	}
	for _, line := range strings.SplitAfter(text, "\n") {
		n := utf8.RuneCountInString(line)
		if curRunes+n > maxRunes {
			flush()
		}
		for n > maxRunes {
			r := []rune(line)
			chunks = append(chunks, string(r[:maxRunes]))
			line = string(r[maxRunes:])
			n -= maxRunes
		}
		cur.WriteString(line)
		curRunes += n
	}
	flush()
	return chunks
}

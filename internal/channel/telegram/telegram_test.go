package telegram

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/soyeahso/sprintbot/internal/config"
	"github.com/soyeahso/sprintbot/internal/domain"
	"github.com/soyeahso/sprintbot/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeSender struct {
	mu     sync.Mutex
	sent   []*bot.SendMessageParams
	failOn int
}

func (f *fakeSender) SendMessage(_ context.Context, params *bot.SendMessageParams) (*models.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, params)
	if f.failOn > 0 && len(f.sent) == f.failOn {
		return nil, errors.New("Bad Request: chat not found")
	}
	return &models.Message{ID: len(f.sent)}, nil
}

func newTestChannel(cfg config.TelegramConfig) *Channel {
	return New(cfg, logging.New(nil, "silent"))
}

func textUpdate(chatID int64, chatType models.ChatType, text string) *models.Update {
	return &models.Update{
		Message: &models.Message{
			ID:   42,
			Date: 1700000000,
			Text: text,
			Chat: models.Chat{ID: chatID, Type: chatType},
			From: &models.User{ID: 7, Username: "alice", FirstName: "Alice"},
		},
	}
}

func TestStatus_NotStarted(t *testing.T) {
	status := newTestChannel(config.TelegramConfig{}).Status()

	assert.Equal(t, "telegram", status.ChannelID)
	assert.False(t, status.Connected)
	assert.False(t, status.Running)
}

func TestStart_RequiresToken(t *testing.T) {
	err := newTestChannel(config.TelegramConfig{}).Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "token")
}

func TestAccept_PrivateChat(t *testing.T) {
	ch := newTestChannel(config.TelegramConfig{})

	msg, ok := ch.accept(textUpdate(1001, models.ChatTypePrivate, "  list teams  "))
	require.True(t, ok)
	assert.Equal(t, "telegram", msg.ChannelID)
	assert.Equal(t, "1001", msg.ChatID)
	assert.Equal(t, "7", msg.From)
	assert.Equal(t, "alice", msg.FromName)
	assert.Equal(t, domain.ChatTypeDM, msg.ChatType)
	assert.Equal(t, "list teams", msg.Body)
	assert.Equal(t, "42", msg.ID)
	assert.Equal(t, int64(1700000000), msg.Timestamp.Unix())
}

func TestAccept_GroupChat(t *testing.T) {
	ch := newTestChannel(config.TelegramConfig{})

	msg, ok := ch.accept(textUpdate(-500, models.ChatTypeSupergroup, "fetch aqua"))
	require.True(t, ok)
	assert.Equal(t, domain.ChatTypeGroup, msg.ChatType)
	assert.Equal(t, "-500", msg.ChatID)
}

func TestAccept_Filters(t *testing.T) {
	ch := newTestChannel(config.TelegramConfig{AllowedChats: []int64{1001}})

	tests := []struct {
		name   string
		update *models.Update
		want   bool
	}{
		{"nil update", nil, false},
		{"no message", &models.Update{}, false},
		{"empty text", textUpdate(1001, models.ChatTypePrivate, "   "), false},
		{"chat not allowed", textUpdate(2002, models.ChatTypePrivate, "help"), false},
		{"allowed chat", textUpdate(1001, models.ChatTypePrivate, "help"), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ok := ch.accept(tt.update)
			assert.Equal(t, tt.want, ok)
		})
	}
}

func TestAccept_FallbackName(t *testing.T) {
	ch := newTestChannel(config.TelegramConfig{})
	u := textUpdate(1001, models.ChatTypePrivate, "help")
	u.Message.From = &models.User{ID: 9, FirstName: "Bob", LastName: "Stone"}

	msg, ok := ch.accept(u)
	require.True(t, ok)
	assert.Equal(t, "Bob Stone", msg.FromName)
}

func TestOnUpdate_DeliversToHandler(t *testing.T) {
	ch := newTestChannel(config.TelegramConfig{})
	var got []domain.InboundMessage
	ch.OnMessage(func(msg domain.InboundMessage) { got = append(got, msg) })

	ch.onUpdate(context.Background(), nil, textUpdate(1001, models.ChatTypePrivate, "help"))
	ch.onUpdate(context.Background(), nil, &models.Update{})

	require.Len(t, got, 1)
	assert.Equal(t, "help", got[0].Body)
}

func TestSend(t *testing.T) {
	ch := newTestChannel(config.TelegramConfig{})
	fake := &fakeSender{}
	ch.api = fake

	err := ch.Send(context.Background(), domain.OutboundMessage{
		ChannelID: "telegram",
		To:        "1001",
		Body:      "Teams/Boards:\naqua: 101",
		ReplyToID: "42",
	})
	require.NoError(t, err)

	require.Len(t, fake.sent, 1)
	assert.Equal(t, int64(1001), fake.sent[0].ChatID)
	assert.Equal(t, "Teams/Boards:\naqua: 101", fake.sent[0].Text)
	require.NotNil(t, fake.sent[0].ReplyParameters)
	assert.Equal(t, 42, fake.sent[0].ReplyParameters.MessageID)
}

func TestSend_Errors(t *testing.T) {
	ch := newTestChannel(config.TelegramConfig{})

	err := ch.Send(context.Background(), domain.OutboundMessage{To: "1001", Body: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not connected")

	ch.api = &fakeSender{}
	err = ch.Send(context.Background(), domain.OutboundMessage{To: "#sprint", Body: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid chat id")

	ch.api = &fakeSender{failOn: 1}
	err = ch.Send(context.Background(), domain.OutboundMessage{To: "1001", Body: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chat not found")
	assert.Contains(t, ch.Status().LastError, "chat not found")
}

func TestSend_LongMessageChunked(t *testing.T) {
	ch := newTestChannel(config.TelegramConfig{})
	fake := &fakeSender{}
	ch.api = fake

	line := strings.Repeat("g", 3000) + "\n"
	err := ch.Send(context.Background(), domain.OutboundMessage{To: "1001", Body: line + line, ReplyToID: "5"})
	require.NoError(t, err)

	require.Len(t, fake.sent, 2)
	assert.NotNil(t, fake.sent[0].ReplyParameters)
	assert.Nil(t, fake.sent[1].ReplyParameters)
}

func TestSplitMessage(t *testing.T) {
	assert.Equal(t, []string{"short"}, splitMessage("short", 10))
	assert.Equal(t, []string{"abc\n", "def"}, splitMessage("abc\ndef", 5))
	assert.Equal(t, []string{"ééé", "éé"}, splitMessage("ééééé", 3))
}

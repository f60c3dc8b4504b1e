package irc

import (
	"context"
	"strings"
	"testing"

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

func testLogger() *logging.Logger {
	return logging.New(nil, "silent")
}

func TestNew(t *testing.T) {
	ch := New(config.IRCConfig{Server: "irc.libera.chat", Nick: "sprintbot", Channels: []string{"#sprint"}}, testLogger())
	assert.Equal(t, "irc", ch.ID())
}

func TestStatus_NotStarted(t *testing.T) {
	status := New(config.IRCConfig{}, testLogger()).Status()

	assert.Equal(t, "irc", status.ChannelID)
	assert.False(t, status.Connected)
	assert.False(t, status.Running)
	assert.Empty(t, status.LastError)
}

func TestDefaultPorts(t *testing.T) {
	assert.Equal(t, 6697, New(config.IRCConfig{UseTLS: true}, testLogger()).port())
	assert.Equal(t, 6667, New(config.IRCConfig{}, testLogger()).port())
	assert.Equal(t, 7000, New(config.IRCConfig{Port: 7000, UseTLS: true}, testLogger()).port())
}

func TestSend_NotConnected(t *testing.T) {
	ch := New(config.IRCConfig{}, testLogger())
	err := ch.Send(context.Background(), domain.OutboundMessage{To: "#sprint", Body: "hi"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not connected")
}

func TestAccept(t *testing.T) {
	tests := []struct {
		name        string
		cfg         config.IRCConfig
		from        string
		target      string
		fromChannel bool
		body        string
		wantOK      bool
		wantBody    string
		wantChat    string
		wantType    domain.ChatType
	}{
		{
			name: "addressed in channel", from: "alice", target: "#sprint", fromChannel: true,
			body: "sprintbot: list teams", wantOK: true, wantBody: "list teams", wantChat: "#sprint", wantType: domain.ChatTypeGroup,
		},
		{
			name: "unaddressed allowed without mentionOnly", from: "alice", target: "#sprint", fromChannel: true,
			body: "fetch Aqua", wantOK: true, wantBody: "fetch Aqua", wantChat: "#sprint", wantType: domain.ChatTypeGroup,
		},
		{
			name: "unaddressed dropped with mentionOnly", cfg: config.IRCConfig{MentionOnly: true},
			from: "alice", target: "#sprint", fromChannel: true, body: "fetch Aqua",
		},
		{
			name: "mention in the middle", cfg: config.IRCConfig{MentionOnly: true},
			from: "alice", target: "#sprint", fromChannel: true, body: "hey SprintBot list teams",
			wantOK: true, wantBody: "hey SprintBot list teams", wantChat: "#sprint", wantType: domain.ChatTypeGroup,
		},
		{
			name: "direct message", cfg: config.IRCConfig{MentionOnly: true}, from: "alice", target: "sprintbot",
			body: "list teams", wantOK: true, wantBody: "list teams", wantChat: "alice", wantType: domain.ChatTypeDM,
		},
		{
			name: "non-owner dropped", cfg: config.IRCConfig{Owner: "bob"}, from: "alice", target: "sprintbot", body: "list teams",
		},
		{
			name: "owner case-insensitive", cfg: config.IRCConfig{Owner: "Alice"}, from: "alice", target: "sprintbot",
			body: "list teams", wantOK: true, wantBody: "list teams", wantChat: "alice", wantType: domain.ChatTypeDM,
		},
		{
			name: "empty after prefix", from: "alice", target: "#sprint", fromChannel: true, body: "sprintbot:   ",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ch := New(tt.cfg, testLogger())
			msg, ok := ch.accept(tt.from, tt.target, tt.fromChannel, "sprintbot", tt.body)
			require.Equal(t, tt.wantOK, ok)
			if !ok {
				return
			}
			assert.Equal(t, tt.wantBody, msg.Body)
			assert.Equal(t, tt.wantChat, msg.ChatID)
			assert.Equal(t, tt.wantType, msg.ChatType)
			assert.Equal(t, "irc", msg.ChannelID)
			assert.NotEmpty(t, msg.ID)
		})
	}
}

func TestDeliverCallsHandler(t *testing.T) {
	ch := New(config.IRCConfig{}, testLogger())
	var got domain.InboundMessage
	ch.OnMessage(func(msg domain.InboundMessage) { got = msg })

	ch.deliver(domain.InboundMessage{ID: "m-1", Body: "list teams"})
	assert.Equal(t, "m-1", got.ID)
}

func TestAddressedBody(t *testing.T) {
	body, ok := addressedBody("SprintBot, fetch Aqua", "sprintbot")
	assert.True(t, ok)
	assert.Equal(t, "fetch Aqua", body)

	body, ok = addressedBody("sprintbotx fetch", "sprintbot")
	assert.True(t, ok)
	assert.Equal(t, "sprintbotx fetch", body)

	_, ok = addressedBody("fetch Aqua", "sprintbot")
	assert.False(t, ok)
}

func TestSplitMessage(t *testing.T) {
	assert.Equal(t, []string{"hello world"}, splitMessage("hello world", 400))

	report := "**Aqua — Sprint-12**\n📅 2024-01-01 → 2024-01-14\n\n📌 **Sprint Goal**\n  • Ship it"
	assert.Equal(t, []string{
		"**Aqua — Sprint-12**",
		"📅 2024-01-01 → 2024-01-14",
		"📌 **Sprint Goal**",
		"  • Ship it",
	}, splitMessage(report, 400))

	long := strings.Repeat("abcdefghij", 3)
	assert.Equal(t, []string{"abcdefghij", "abcdefghij", "abcdefghij"}, splitMessage(long, 10))
}

func TestSplitMessageKeepsRunesWhole(t *testing.T) {
	chunks := splitMessage(strings.Repeat("•", 10), 7)
	for _, c := range chunks {
		assert.True(t, strings.Trim(c, "•") == "", "chunk %q split a rune", c)
	}
	assert.Equal(t, strings.Repeat("•", 10), strings.Join(chunks, ""))
}

package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionKeyString(t *testing.T) {
	tests := []struct {
		name string
		key  SessionKey
		want string
	}{
		{"with sender", SessionKey{ChannelID: "irc", ChatID: "#general", SenderID: "alice"}, "irc:#general:alice"},
		{"without sender", SessionKey{ChannelID: "irc", ChatID: "#general"}, "irc:#general"},
		{"empty fields", SessionKey{}, ":"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.key.String())
		})
	}
}

func TestInboundSessionKey(t *testing.T) {
	group := InboundMessage{ChannelID: "irc", ChatID: "#sprint", From: "alice", ChatType: ChatTypeGroup}
	assert.Equal(t, "irc:#sprint", group.SessionKey(false).String())
	assert.Equal(t, "irc:#sprint:alice", group.SessionKey(true).String())

	dm := InboundMessage{ChannelID: "telegram", ChatID: "42", From: "42", ChatType: ChatTypeDM}
	assert.Equal(t, "telegram:42:42", dm.SessionKey(false).String())
}

func TestInboundMessageJSON_OmitsEmpty(t *testing.T) {
	msg := InboundMessage{
		ID:        "msg-1",
		ChannelID: "irc",
		From:      "alice",
		ChatID:    "#general",
		ChatType:  ChatTypeDM,
		Body:      "list teams",
		Timestamp: time.Now().UTC(),
	}

	data, err := json.Marshal(msg)
	require.NoError(t, err)

	raw := string(data)
	assert.Contains(t, raw, `"chatType":"dm"`)
	assert.NotContains(t, raw, "fromName")
	assert.NotContains(t, raw, "replyToId")
}

func TestSessionJSON(t *testing.T) {
	sess := Session{
		ID:  "s-1",
		Key: SessionKey{ChannelID: "gateway", ChatID: "conn-1"},
		Messages: []Message{
			{Role: "user", Content: "fetch sprint goals for Aqua"},
			{Role: "assistant", Content: "**Aqua — Sprint 12**"},
		},
	}

	data, err := json.Marshal(sess)
	require.NoError(t, err)

	var decoded Session
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, sess.Key, decoded.Key)
	require.Len(t, decoded.Messages, 2)
	assert.Equal(t, "assistant", decoded.Messages[1].Role)
}

package routing

import "github.com/soyeahso/sprintbot/internal/domain"

// Session scopes.
const (
	ScopePerSender = "per-sender"
	ScopeGlobal    = "global"
)

// ResolveSessionKey builds a session key from an inbound message and the configured scope.
//
// Scopes:
//   - "per-sender": separate session per user per chat (default)
//   - "global": single session per chat, shared among all users; DMs stay per user
func ResolveSessionKey(msg domain.InboundMessage, scope string) domain.SessionKey {
	return msg.SessionKey(scope != ScopeGlobal)
}

// Package routing connects messaging channels to the request router.
package routing

import (
	"context"
	"fmt"
	"sync"

	"github.com/soyeahso/sprintbot/internal/agent"
	"github.com/soyeahso/sprintbot/internal/channel"
	"github.com/soyeahso/sprintbot/internal/domain"
	"github.com/soyeahso/sprintbot/internal/logging"
)

// Handler answers one utterance. *agent.Router implements it.
type Handler interface {
	Handle(ctx context.Context, key domain.SessionKey, utterance string) (*agent.Reply, error)
}

// Router routes inbound messages to the handler and replies to channels.
type Router struct {
	channels *channel.Registry
	handler  Handler
	scope    string
	log      *logging.Logger
	inflight sync.WaitGroup
}

// NewRouter creates a message router.
func NewRouter(channels *channel.Registry, handler Handler, scope string, log *logging.Logger) *Router {
	if scope == "" {
		scope = ScopePerSender
	}
	return &Router{
		channels: channels,
		handler:  handler,
		scope:    scope,
		log:      log.Sub("routing"),
	}
}

// HandleInbound answers an inbound message from any channel and sends the
// single reply back through the originating channel.
func (r *Router) HandleInbound(ctx context.Context, msg domain.InboundMessage) {
	r.log.Info().
		Str("channel", msg.ChannelID).
		Str("from", msg.From).
		Str("chatId", msg.ChatID).
		Str("chatType", string(msg.ChatType)).
		Msg("routing inbound message")

	if r.handler == nil {
		r.log.Warn().Msg("no request handler configured, dropping message")
		return
	}

	key := ResolveSessionKey(msg, r.scope)
	reply, err := r.handler.Handle(ctx, key, msg.Body)
	if err != nil {
		r.log.Error().Err(err).
			Str("channel", msg.ChannelID).
			Str("from", msg.From).
			Msg("request failed")
		return
	}

	out := domain.OutboundMessage{
		ChannelID: msg.ChannelID,
		To:        replyTarget(msg),
		Body:      reply.Text,
		ReplyToID: msg.ID,
	}
	if err := r.channels.Send(ctx, out); err != nil {
		r.log.Error().Err(err).
			Str("channel", msg.ChannelID).
			Str("to", out.To).
			Msg("failed to send reply")
		return
	}

	r.log.Info().
		Str("channel", msg.ChannelID).
		Str("to", out.To).
		Str("sessionId", reply.SessionID).
		Str("intent", string(reply.Intent)).
		Dur("duration", reply.Duration).
		Msg("reply sent")
}

// Wire registers HandleInbound as the message handler on all channels.
// Each message is answered on its own goroutine bound to ctx.
func (r *Router) Wire(ctx context.Context) {
	for _, id := range r.channels.List() {
		ch, ok := r.channels.Get(id)
		if !ok {
			continue
		}
		ch.OnMessage(func(msg domain.InboundMessage) {
			r.inflight.Add(1)
			go func() {
				defer r.inflight.Done()
				r.HandleInbound(ctx, msg)
			}()
		})
		r.log.Debug().Str("channel", id).Msg("wired message handler")
	}
}

// Wait blocks until every in-flight inbound message has been answered.
func (r *Router) Wait() { r.inflight.Wait() }

// replyTarget determines where to send the response. Channels set ChatID to
// the peer for direct messages.
func replyTarget(msg domain.InboundMessage) string {
	if msg.ChatID == "" && msg.ChatType == domain.ChatTypeDM {
		return msg.From
	}
	return msg.ChatID
}

// SendTo sends a message to a specific channel.
func (r *Router) SendTo(ctx context.Context, channelID, target, body string) error {
	if _, ok := r.channels.Get(channelID); !ok {
		return fmt.Errorf("channel not found: %s", channelID)
	}
	return r.channels.Send(ctx, domain.OutboundMessage{
		ChannelID: channelID,
		To:        target,
		Body:      body,
	})
}

package gateway

import (
	"context"
	"encoding/json"
	"slices"
	"strings"
	"time"

	"github.com/soyeahso/sprintbot/internal/config"
	"github.com/soyeahso/sprintbot/internal/domain"
	"github.com/soyeahso/sprintbot/internal/scheduler"
	"github.com/soyeahso/sprintbot/internal/version"
)

// chatTimeout bounds one chat.send call, scripts included.
const chatTimeout = 5 * time.Minute

// readableConfigPrefixes lists config paths config.get may read. Credential
// fields live outside these prefixes.
var readableConfigPrefixes = []string{
	"gateway.port",
	"gateway.bind",
	"directory",
	"miro",
	"schedule",
	"session",
	"logging",
}

func isReadableConfigPath(key string) bool {
	for _, prefix := range readableConfigPrefixes {
		if key == prefix || strings.HasPrefix(key, prefix+".") {
			return true
		}
	}
	return false
}

// RequestHandler processes an RPC request frame.
type RequestHandler func(rc *RequestContext)

// RequestContext carries everything a handler needs. Ctx ends when the
// connection or the server shuts down.
type RequestContext struct {
	Ctx    context.Context
	Client *Client
	Frame  Frame
	Server *Server
}

// Respond sends a success response.
func (rc *RequestContext) Respond(payload any) {
	if err := rc.Client.Respond(rc.Frame.ID, payload); err != nil {
		rc.Server.log.Warn().Err(err).Str("method", rc.Frame.Method).Msg("failed to send response")
	}
}

// RespondError sends an error response.
func (rc *RequestContext) RespondError(code, message string) {
	if err := rc.Client.RespondError(rc.Frame.ID, code, message); err != nil {
		rc.Server.log.Warn().Err(err).Str("method", rc.Frame.Method).Msg("failed to send error response")
	}
}

// Params unmarshals the request params into target. Absent params leave
// target untouched.
func (rc *RequestContext) Params(target any) error {
	if len(rc.Frame.Params) == 0 || string(rc.Frame.Params) == "null" {
		return nil
	}
	return json.Unmarshal(rc.Frame.Params, target)
}

func (s *Server) registerRPCHandlers() {
	s.Handle("health", s.rpcHealth)
	s.Handle("status", s.rpcStatus)
	s.Handle("chat.send", s.rpcChatSend)
	s.Handle("teams.list", s.rpcTeamsList)
	s.Handle("channels.status", s.rpcChannelsStatus)
	s.Handle("sessions.list", s.rpcSessionsList)
	s.Handle("config.get", s.rpcConfigGet)
	s.Handle("schedule.list", s.rpcScheduleList)
	s.Handle("schedule.run", s.rpcScheduleRun)
}

func (s *Server) rpcHealth(rc *RequestContext) {
	rc.Respond(HealthResponse{
		Status:  "ok",
		Version: version.Version,
		Clients: s.clients.Count(),
	})
}

func (s *Server) channelStatus() []domain.ChannelStatus {
	if s.channels == nil {
		return []domain.ChannelStatus{}
	}
	return s.channels.Status()
}

func (s *Server) rpcStatus(rc *RequestContext) {
	s.mu.RLock()
	started := s.startedAt
	s.mu.RUnlock()

	resp := StatusResponse{
		Build:         version.Current(),
		UptimeSeconds: int64(time.Since(started).Seconds()),
		Clients:       s.clients.Count(),
		Channels:      s.channelStatus(),
		Methods:       s.Methods(),
	}
	if s.sessions != nil {
		resp.Sessions = len(s.sessions.List())
	}
	rc.Respond(resp)
}

func (s *Server) rpcChatSend(rc *RequestContext) {
	if s.chat == nil {
		rc.RespondError(CodeUnavailable, "no LLM provider configured")
		return
	}

	var p ChatSendParams
	if err := rc.Params(&p); err != nil {
		rc.RespondError(CodeInvalidParams, err.Error())
		return
	}
	p.Message = strings.TrimSpace(p.Message)
	if p.Message == "" {
		rc.RespondError(CodeInvalidParams, "message is required")
		return
	}

	key := domain.SessionKey{
		ChannelID: "gateway",
		ChatID:    p.ChatID,
		SenderID:  rc.Client.Info.ID,
	}
	if key.ChatID == "" {
		key.ChatID = rc.Client.ConnID
	}

	ctx, cancel := context.WithTimeout(rc.Ctx, chatTimeout)
	defer cancel()

	reply, err := s.chat.Handle(ctx, key, p.Message)
	if err != nil {
		rc.RespondError(CodeRequestFailed, err.Error())
		return
	}

	path := make([]string, len(reply.Path))
	for i, node := range reply.Path {
		path[i] = string(node)
	}
	rc.Respond(ChatSendResult{
		Response:   reply.Text,
		SessionID:  reply.SessionID,
		Intent:     string(reply.Intent),
		Path:       path,
		DurationMs: reply.Duration.Milliseconds(),
	})
}

func (s *Server) rpcTeamsList(rc *RequestContext) {
	if s.boards == nil {
		rc.RespondError(CodeUnavailable, "team directory not configured")
		return
	}
	d, err := s.boards()
	if err != nil {
		rc.RespondError(CodeRequestFailed, err.Error())
		return
	}
	teams := make([]TeamEntry, 0, d.Len())
	for _, b := range d.Boards() {
		teams = append(teams, TeamEntry{Team: b.Team, BoardID: b.BoardID})
	}
	rc.Respond(TeamsListResult{Teams: teams})
}

func (s *Server) rpcChannelsStatus(rc *RequestContext) {
	rc.Respond(map[string]any{"channels": s.channelStatus()})
}

func (s *Server) rpcSessionsList(rc *RequestContext) {
	ids := []string{}
	if s.sessions != nil {
		ids = append(ids, s.sessions.List()...)
	}
	rc.Respond(map[string]any{"sessions": ids})
}

type configGetParams struct {
	Key string `json:"key"`
}

func (s *Server) rpcConfigGet(rc *RequestContext) {
	var p configGetParams
	if err := rc.Params(&p); err != nil {
		rc.RespondError(CodeInvalidParams, err.Error())
		return
	}
	if p.Key == "" {
		rc.RespondError(CodeInvalidParams, "key is required")
		return
	}
	if !isReadableConfigPath(p.Key) {
		rc.RespondError(CodeForbidden, "access denied for config path: "+p.Key)
		return
	}
	path, err := config.ParseConfigPath(p.Key)
	if err != nil {
		rc.RespondError(CodeInvalidParams, err.Error())
		return
	}

	s.mu.RLock()
	val, ok := config.GetValueAtPath(s.configRaw, path)
	s.mu.RUnlock()
	if !ok {
		rc.RespondError(CodeNotFound, "key not found: "+p.Key)
		return
	}
	rc.Respond(map[string]any{"key": p.Key, "value": val})
}

func (s *Server) rpcScheduleList(rc *RequestContext) {
	jobs := []scheduler.JobStatus{}
	if s.schedule != nil {
		jobs = append(jobs, s.schedule.Jobs()...)
	}
	rc.Respond(ScheduleListResult{Jobs: jobs})
}

func (s *Server) rpcScheduleRun(rc *RequestContext) {
	if s.schedule == nil {
		rc.RespondError(CodeUnavailable, "scheduler not running")
		return
	}
	var p ScheduleRunParams
	if err := rc.Params(&p); err != nil {
		rc.RespondError(CodeInvalidParams, err.Error())
		return
	}
	if p.Name == "" {
		rc.RespondError(CodeInvalidParams, "name is required")
		return
	}
	if !slices.ContainsFunc(s.schedule.Jobs(), func(j scheduler.JobStatus) bool { return j.Name == p.Name }) {
		rc.RespondError(CodeNotFound, "unknown job: "+p.Name)
		return
	}

	ctx, cancel := context.WithTimeout(rc.Ctx, chatTimeout)
	defer cancel()
	reply, err := s.schedule.RunNow(ctx, p.Name)
	if err != nil {
		rc.RespondError(CodeRequestFailed, err.Error())
		return
	}
	rc.Respond(ScheduleRunResult{Name: p.Name, Intent: string(reply.Intent), Response: reply.Text})
}

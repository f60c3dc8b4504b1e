package gateway

import (
	"encoding/json"

	"github.com/soyeahso/sprintbot/internal/domain"
	"github.com/soyeahso/sprintbot/internal/scheduler"
	"github.com/soyeahso/sprintbot/internal/version"
)

// ProtocolVersion is the WebSocket protocol revision spoken by this server.
const ProtocolVersion = 1

// Frame types for the WebSocket protocol.
const (
	FrameTypeRequest  = "req"
	FrameTypeResponse = "res"
	FrameTypeEvent    = "event"
)

// Error codes carried in ErrorShape.Code.
const (
	CodeProtocol       = "protocol_error"
	CodeInvalidParams  = "invalid_params"
	CodeUnauthorized   = "unauthorized"
	CodeMethodNotFound = "method_not_found"
	CodeUnavailable    = "unavailable"
	CodeForbidden      = "forbidden"
	CodeNotFound       = "not_found"
	CodeRequestFailed  = "request_failed"
)

// Frame is the envelope for every WebSocket message. Type selects which of
// the request, response or event fields are set.
type Frame struct {
	Type string `json:"type"`

	ID     string          `json:"id,omitempty"`
	Method string          `json:"method,omitempty"`
	Params json.RawMessage `json:"params,omitempty"`

	OK      *bool           `json:"ok,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Error   *ErrorShape     `json:"error,omitempty"`

	Event string `json:"event,omitempty"`
	Seq   int64  `json:"seq,omitempty"`
}

// ErrorShape is the error body of a failed response.
type ErrorShape struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ConnectParams are sent by the client in the initial "connect" request.
type ConnectParams struct {
	Protocol int          `json:"protocol"`
	Client   ClientInfo   `json:"client"`
	Auth     *ConnectAuth `json:"auth,omitempty"`
}

// ClientInfo identifies the connecting client.
type ClientInfo struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName,omitempty"`
	Version     string `json:"version,omitempty"`
}

// ConnectAuth carries credentials in the connect request.
type ConnectAuth struct {
	Token    string `json:"token,omitempty"`
	Password string `json:"password,omitempty"`
}

// Hello is the payload of a successful connect response.
type Hello struct {
	Protocol   int        `json:"protocol"`
	Server     ServerInfo `json:"server"`
	Methods    []string   `json:"methods"`
	MaxPayload int64      `json:"maxPayload"`
}

// ServerInfo identifies the gateway server.
type ServerInfo struct {
	Version string `json:"version"`
	Commit  string `json:"commit,omitempty"`
	ConnID  string `json:"connId"`
}

// HealthResponse is returned by health endpoints. The public HTTP endpoint
// only populates Status.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
	Clients int    `json:"clients,omitempty"`
}

// StatusResponse is the payload of the status RPC.
type StatusResponse struct {
	Build         version.Build          `json:"build"`
	UptimeSeconds int64                  `json:"uptimeSeconds"`
	Clients       int                    `json:"clients"`
	Sessions      int                    `json:"sessions"`
	Channels      []domain.ChannelStatus `json:"channels"`
	Methods       []string               `json:"methods"`
}

// ChatSendParams are the params of chat.send. ChatID selects a conversation
// shared across connections; it defaults to the connection id.
type ChatSendParams struct {
	Message string `json:"message"`
	ChatID  string `json:"chatId,omitempty"`
}

// ChatSendResult is the payload of chat.send.
type ChatSendResult struct {
	Response   string   `json:"response"`
	SessionID  string   `json:"sessionId"`
	Intent     string   `json:"intent"`
	Path       []string `json:"path"`
	DurationMs int64    `json:"durationMs"`
}

// TeamEntry is one directory entry in a teams.list response.
type TeamEntry struct {
	Team    string `json:"team"`
	BoardID int    `json:"boardId"`
}

// TeamsListResult is the payload of teams.list.
type TeamsListResult struct {
	Teams []TeamEntry `json:"teams"`
}

// ScheduleListResult is the payload of schedule.list.
type ScheduleListResult struct {
	Jobs []scheduler.JobStatus `json:"jobs"`
}

// ScheduleRunParams are the params of schedule.run.
type ScheduleRunParams struct {
	Name string `json:"name"`
}

// ScheduleRunResult is the payload of schedule.run. The reply has also been
// delivered to the job's channel.
type ScheduleRunResult struct {
	Name     string `json:"name"`
	Intent   string `json:"intent"`
	Response string `json:"response"`
}

// NewRequest creates a request frame.
func NewRequest(id, method string, params any) (Frame, error) {
	raw, err := json.Marshal(params)
	if err != nil {
		return Frame{}, err
	}
	return Frame{Type: FrameTypeRequest, ID: id, Method: method, Params: raw}, nil
}

// NewResponse creates a success response frame.
func NewResponse(id string, payload any) (Frame, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Frame{}, err
	}
	ok := true
	return Frame{Type: FrameTypeResponse, ID: id, OK: &ok, Payload: raw}, nil
}

// NewErrorResponse creates an error response frame.
func NewErrorResponse(id, code, message string) Frame {
	ok := false
	return Frame{
		Type:  FrameTypeResponse,
		ID:    id,
		OK:    &ok,
		Error: &ErrorShape{Code: code, Message: message},
	}
}

// NewEvent creates an event frame.
func NewEvent(event string, payload any, seq int64) (Frame, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Frame{}, err
	}
	return Frame{Type: FrameTypeEvent, Event: event, Payload: raw, Seq: seq}, nil
}

package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/soyeahso/sprintbot/internal/agent"
	"github.com/soyeahso/sprintbot/internal/config"
	"github.com/soyeahso/sprintbot/internal/directory"
	"github.com/soyeahso/sprintbot/internal/domain"
	"github.com/soyeahso/sprintbot/internal/hooks"
	"github.com/soyeahso/sprintbot/internal/logging"
	"github.com/soyeahso/sprintbot/internal/metrics"
	"github.com/soyeahso/sprintbot/internal/scheduler"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testToken = "test-token-123"

type fakeChat struct {
	mu   sync.Mutex
	keys []domain.SessionKey
	err  error
}

func (f *fakeChat) Handle(_ context.Context, key domain.SessionKey, utterance string) (*agent.Reply, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.keys = append(f.keys, key)
	if f.err != nil {
		return nil, f.err
	}
	return &agent.Reply{
		SessionID: "sess-1",
		Intent:    agent.IntentList,
		Text:      "You said: " + utterance,
		Path:      []agent.StateName{agent.StateClassify, agent.StateList, agent.StateRender},
		Duration:  15 * time.Millisecond,
	}, nil
}

type fakeSessions []string

func (f fakeSessions) List() []string { return f }

func gatewayConfig() config.GatewayConfig {
	return config.GatewayConfig{
		Bind: "loopback",
		Auth: config.GatewayAuth{Mode: "token", Token: testToken},
	}
}

func testServer(t *testing.T, opts ...ServerOption) (*Server, *httptest.Server) {
	t.Helper()
	srv := New(gatewayConfig(), logging.New(nil, "silent"), opts...)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return srv, ts
}

func wsURL(ts *httptest.Server) string {
	return "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
}

// dial connects and completes the handshake with the given token.
func dial(t *testing.T, ts *httptest.Server, token string) (*websocket.Conn, Frame) {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(wsURL(ts), nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	var challenge Frame
	require.NoError(t, conn.ReadJSON(&challenge))
	require.Equal(t, "connect.challenge", challenge.Event)

	req, err := NewRequest("auth-req", "connect", ConnectParams{
		Protocol: ProtocolVersion,
		Client:   ClientInfo{ID: "test-client", Version: "1.0.0"},
		Auth:     &ConnectAuth{Token: token},
	})
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(req))

	var resp Frame
	require.NoError(t, conn.ReadJSON(&resp))
	return conn, resp
}

func authenticated(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	conn, resp := dial(t, ts, testToken)
	require.NotNil(t, resp.OK)
	require.True(t, *resp.OK, "handshake should succeed")
	return conn
}

func call(t *testing.T, conn *websocket.Conn, id, method string, params any) Frame {
	t.Helper()
	req, err := NewRequest(id, method, params)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(req))

	var resp Frame
	require.NoError(t, conn.ReadJSON(&resp))
	require.Equal(t, id, resp.ID)
	require.NotNil(t, resp.OK)
	return resp
}

func TestHealthEndpoint(t *testing.T) {
	_, ts := testServer(t)

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))

	var health HealthResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	assert.Equal(t, "ok", health.Status)
	assert.Empty(t, health.Version)
}

func TestMetricsEndpoint(t *testing.T) {
	rec := metrics.New()
	rec.ObserveRequest("list", "gateway", time.Millisecond)
	_, ts := testServer(t, WithMetrics(rec))

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "sprintbot_requests_total")
}

func TestMetricsEndpoint_Disabled(t *testing.T) {
	_, ts := testServer(t)

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestNotFoundEndpoint(t *testing.T) {
	_, ts := testServer(t)

	resp, err := http.Get(ts.URL + "/nonexistent")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHandshake_Success(t *testing.T) {
	srv, ts := testServer(t)
	_, resp := dial(t, ts, testToken)

	require.NotNil(t, resp.OK)
	assert.True(t, *resp.OK)
	assert.Equal(t, "auth-req", resp.ID)

	var hello Hello
	require.NoError(t, json.Unmarshal(resp.Payload, &hello))
	assert.Equal(t, ProtocolVersion, hello.Protocol)
	assert.NotEmpty(t, hello.Server.ConnID)
	assert.Equal(t, srv.Methods(), hello.Methods)
	assert.Equal(t, int64(maxPayloadBytes), hello.MaxPayload)
}

func TestHandshake_WrongToken(t *testing.T) {
	srv, ts := testServer(t)
	_, resp := dial(t, ts, "wrong-token")

	require.NotNil(t, resp.OK)
	assert.False(t, *resp.OK)
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeUnauthorized, resp.Error.Code)
	assert.Equal(t, "token_mismatch", resp.Error.Message)
	assert.Equal(t, 0, srv.clients.Count())
}

func TestHandshake_NotConnect(t *testing.T) {
	_, ts := testServer(t)
	conn, _, err := websocket.DefaultDialer.Dial(wsURL(ts), nil)
	require.NoError(t, err)
	defer conn.Close()

	var challenge Frame
	require.NoError(t, conn.ReadJSON(&challenge))

	req, _ := NewRequest("r1", "health", nil)
	require.NoError(t, conn.WriteJSON(req))

	var resp Frame
	require.NoError(t, conn.ReadJSON(&resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeProtocol, resp.Error.Code)
}

func TestHandshake_RateLimited(t *testing.T) {
	srv, ts := testServer(t)
	for i := 0; i < authRateMaxFails; i++ {
		srv.limiter.recordFailure("127.0.0.1:1")
	}

	_, resp, err := websocket.DefaultDialer.Dial(wsURL(ts), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
}

func TestRPC_Health(t *testing.T) {
	_, ts := testServer(t)
	conn := authenticated(t, ts)

	resp := call(t, conn, "req-2", "health", nil)
	assert.True(t, *resp.OK)

	var health HealthResponse
	require.NoError(t, json.Unmarshal(resp.Payload, &health))
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, 1, health.Clients)
}

func TestRPC_Status(t *testing.T) {
	_, ts := testServer(t, WithSessions(fakeSessions{"a", "b"}))
	conn := authenticated(t, ts)

	resp := call(t, conn, "st", "status", nil)
	require.True(t, *resp.OK)

	var status StatusResponse
	require.NoError(t, json.Unmarshal(resp.Payload, &status))
	assert.Equal(t, 2, status.Sessions)
	assert.Equal(t, 1, status.Clients)
	assert.Empty(t, status.Channels)
	assert.Contains(t, status.Methods, "chat.send")
	assert.NotEmpty(t, status.Build.Go)
}

func TestRPC_UnknownMethod(t *testing.T) {
	_, ts := testServer(t)
	conn := authenticated(t, ts)

	resp := call(t, conn, "req-6", "nonexistent.method", nil)
	assert.False(t, *resp.OK)
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeMethodNotFound, resp.Error.Code)
}

func TestRPC_ChatSend(t *testing.T) {
	chat := &fakeChat{}
	_, ts := testServer(t, WithChat(chat))
	conn := authenticated(t, ts)

	resp := call(t, conn, "chat-1", "chat.send", ChatSendParams{Message: "  list teams "})
	require.True(t, *resp.OK)

	var result ChatSendResult
	require.NoError(t, json.Unmarshal(resp.Payload, &result))
	assert.Equal(t, "You said: list teams", result.Response)
	assert.Equal(t, "sess-1", result.SessionID)
	assert.Equal(t, "list", result.Intent)
	assert.Equal(t, []string{"classify", "list", "render"}, result.Path)
	assert.Equal(t, int64(15), result.DurationMs)

	require.Len(t, chat.keys, 1)
	assert.Equal(t, "gateway", chat.keys[0].ChannelID)
	assert.Equal(t, "test-client", chat.keys[0].SenderID)
	assert.NotEmpty(t, chat.keys[0].ChatID)
}

func TestRPC_ChatSend_SharedChat(t *testing.T) {
	chat := &fakeChat{}
	_, ts := testServer(t, WithChat(chat))
	conn := authenticated(t, ts)

	call(t, conn, "c1", "chat.send", ChatSendParams{Message: "help", ChatID: "standup"})

	require.Len(t, chat.keys, 1)
	assert.Equal(t, "standup", chat.keys[0].ChatID)
}

func TestRPC_ChatSend_Errors(t *testing.T) {
	t.Run("no chat configured", func(t *testing.T) {
		_, ts := testServer(t)
		conn := authenticated(t, ts)

		resp := call(t, conn, "chat-2", "chat.send", ChatSendParams{Message: "Hello"})
		assert.False(t, *resp.OK)
		assert.Equal(t, CodeUnavailable, resp.Error.Code)
	})

	t.Run("empty message", func(t *testing.T) {
		_, ts := testServer(t, WithChat(&fakeChat{}))
		conn := authenticated(t, ts)

		resp := call(t, conn, "chat-3", "chat.send", ChatSendParams{Message: "   "})
		assert.False(t, *resp.OK)
		assert.Equal(t, CodeInvalidParams, resp.Error.Code)
	})

	t.Run("handler error", func(t *testing.T) {
		_, ts := testServer(t, WithChat(&fakeChat{err: context.Canceled}))
		conn := authenticated(t, ts)

		resp := call(t, conn, "chat-4", "chat.send", ChatSendParams{Message: "help"})
		assert.False(t, *resp.OK)
		assert.Equal(t, CodeRequestFailed, resp.Error.Code)
	})

	t.Run("bad params", func(t *testing.T) {
		_, ts := testServer(t, WithChat(&fakeChat{}))
		conn := authenticated(t, ts)

		resp := call(t, conn, "chat-5", "chat.send", []int{1, 2})
		assert.False(t, *resp.OK)
		assert.Equal(t, CodeInvalidParams, resp.Error.Code)
	})
}

func TestRPC_TeamsList(t *testing.T) {
	boards := directory.Static(directory.New(directory.ParseString("# Aqua Team\n350\n# Falcon Team\n492\n")))
	_, ts := testServer(t, WithBoards(boards))
	conn := authenticated(t, ts)

	resp := call(t, conn, "t1", "teams.list", nil)
	require.True(t, *resp.OK)

	var result TeamsListResult
	require.NoError(t, json.Unmarshal(resp.Payload, &result))
	require.Len(t, result.Teams, 2)
	assert.Equal(t, 350, result.Teams[0].BoardID)
	assert.Equal(t, 492, result.Teams[1].BoardID)
}

func TestRPC_TeamsList_Errors(t *testing.T) {
	_, ts := testServer(t)
	conn := authenticated(t, ts)
	resp := call(t, conn, "t1", "teams.list", nil)
	assert.Equal(t, CodeUnavailable, resp.Error.Code)

	failing := func() (*directory.Directory, error) { return nil, errors.New("open board_ids.txt: no such file") }
	_, ts = testServer(t, WithBoards(failing))
	conn = authenticated(t, ts)
	resp = call(t, conn, "t2", "teams.list", nil)
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeRequestFailed, resp.Error.Code)
	assert.Contains(t, resp.Error.Message, "board_ids.txt")
}

func TestRPC_SessionsAndChannels(t *testing.T) {
	_, ts := testServer(t, WithSessions(fakeSessions{"s1"}))
	conn := authenticated(t, ts)

	resp := call(t, conn, "s", "sessions.list", nil)
	assert.JSONEq(t, `{"sessions":["s1"]}`, string(resp.Payload))

	resp = call(t, conn, "c", "channels.status", nil)
	assert.JSONEq(t, `{"channels":[]}`, string(resp.Payload))
}

func TestRPC_ConfigGet(t *testing.T) {
	raw := map[string]any{
		"gateway": map[string]any{"port": 18789, "auth": map[string]any{"token": "secret"}},
		"llm":     map[string]any{"apiKey": "sk-secret"},
	}
	_, ts := testServer(t, WithConfigRaw(raw))
	conn := authenticated(t, ts)

	resp := call(t, conn, "g1", "config.get", configGetParams{Key: "gateway.port"})
	require.True(t, *resp.OK)
	assert.JSONEq(t, `{"key":"gateway.port","value":18789}`, string(resp.Payload))

	tests := []struct {
		key  string
		code string
	}{
		{"llm.apiKey", CodeForbidden},
		{"gateway.auth.token", CodeForbidden},
		{"", CodeInvalidParams},
		{"logging.level", CodeNotFound},
		{"session..scope", CodeInvalidParams},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			resp := call(t, conn, "g-"+tt.key, "config.get", configGetParams{Key: tt.key})
			assert.False(t, *resp.OK)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.code, resp.Error.Code)
		})
	}
}

func TestServerMethods(t *testing.T) {
	srv := New(gatewayConfig(), logging.New(nil, "silent"))
	assert.Equal(t, []string{
		"channels.status", "chat.send", "config.get", "health",
		"schedule.list", "schedule.run", "sessions.list", "status", "teams.list",
	}, srv.Methods())
}

func TestResolveBindAddr(t *testing.T) {
	tests := []struct {
		bind string
		port int
		want string
	}{
		{"loopback", 18789, "127.0.0.1:18789"},
		{"lan", 9999, "0.0.0.0:9999"},
		{"", 8080, "127.0.0.1:8080"},
		{"unknown", 5000, "127.0.0.1:5000"},
	}
	for _, tt := range tests {
		t.Run(tt.bind, func(t *testing.T) {
			assert.Equal(t, tt.want, resolveBindAddr(config.GatewayConfig{Bind: tt.bind, Port: tt.port}))
		})
	}
}

func TestServerStart_EmitsLifecycleHooks(t *testing.T) {
	cfg := gatewayConfig()
	cfg.Port = 0

	hm := hooks.NewManager(logging.New(nil, "silent"))
	var mu sync.Mutex
	var events []string
	record := func(_ context.Context, p hooks.Payload) error {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, p.Event)
		return nil
	}
	hm.On(hooks.EventGatewayStart, "test", record)
	hm.On(hooks.EventGatewayStop, "test", record)

	srv := New(cfg, logging.New(nil, "silent"), WithHooks(hm))
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start(ctx) }()

	require.Eventually(t, func() bool { return srv.Addr() != "" }, 2*time.Second, 10*time.Millisecond)

	resp, err := http.Get("http://" + srv.Addr() + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{hooks.EventGatewayStart, hooks.EventGatewayStop}, events)
}

func TestScheduleRunBroadcast(t *testing.T) {
	hm := hooks.NewManager(logging.New(nil, "silent"))
	srv, ts := testServer(t, WithHooks(hm))
	srv.broadcastScheduleRuns()
	conn := authenticated(t, ts)
	require.Eventually(t, func() bool { return srv.clients.Count() == 1 }, time.Second, 5*time.Millisecond)

	hm.Emit(context.Background(), hooks.EventScheduleRun, map[string]any{"job": "daily-goals"})

	var evt Frame
	require.NoError(t, conn.ReadJSON(&evt))
	assert.Equal(t, FrameTypeEvent, evt.Type)
	assert.Equal(t, "schedule.run", evt.Event)
	assert.Equal(t, int64(1), evt.Seq)
	assert.JSONEq(t, `{"job":"daily-goals"}`, string(evt.Payload))
}

type fakeSchedule struct {
	jobs []scheduler.JobStatus
	ran  []string
	err  error
}

func (f *fakeSchedule) Jobs() []scheduler.JobStatus { return f.jobs }

func (f *fakeSchedule) RunNow(_ context.Context, name string) (*agent.Reply, error) {
	f.ran = append(f.ran, name)
	if f.err != nil {
		return nil, f.err
	}
	return &agent.Reply{Intent: agent.IntentFetch, Text: "Aqua goals"}, nil
}

func TestRPC_ScheduleList(t *testing.T) {
	sched := &fakeSchedule{jobs: []scheduler.JobStatus{{Name: "aqua-goals", Cron: "@daily", Channel: "irc", ChatID: "#sprint"}}}
	_, ts := testServer(t, WithSchedule(sched))
	conn := authenticated(t, ts)

	resp := call(t, conn, "l1", "schedule.list", nil)
	require.True(t, *resp.OK)
	var result ScheduleListResult
	require.NoError(t, json.Unmarshal(resp.Payload, &result))
	require.Len(t, result.Jobs, 1)
	assert.Equal(t, "aqua-goals", result.Jobs[0].Name)
	assert.Equal(t, "#sprint", result.Jobs[0].ChatID)
}

func TestRPC_ScheduleList_NoScheduler(t *testing.T) {
	_, ts := testServer(t)
	conn := authenticated(t, ts)

	resp := call(t, conn, "l2", "schedule.list", nil)
	require.True(t, *resp.OK)
	assert.JSONEq(t, `{"jobs":[]}`, string(resp.Payload))
}

func TestRPC_ScheduleRun(t *testing.T) {
	sched := &fakeSchedule{jobs: []scheduler.JobStatus{{Name: "aqua-goals"}}}
	_, ts := testServer(t, WithSchedule(sched))
	conn := authenticated(t, ts)

	resp := call(t, conn, "r1", "schedule.run", ScheduleRunParams{Name: "aqua-goals"})
	require.True(t, *resp.OK)
	assert.JSONEq(t, `{"name":"aqua-goals","intent":"fetch","response":"Aqua goals"}`, string(resp.Payload))
	assert.Equal(t, []string{"aqua-goals"}, sched.ran)
}

func TestRPC_ScheduleRun_Errors(t *testing.T) {
	_, ts := testServer(t)
	conn := authenticated(t, ts)
	resp := call(t, conn, "e0", "schedule.run", ScheduleRunParams{Name: "x"})
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeUnavailable, resp.Error.Code)

	sched := &fakeSchedule{jobs: []scheduler.JobStatus{{Name: "aqua-goals"}}, err: errors.New("deliver failed")}
	_, ts = testServer(t, WithSchedule(sched))
	conn = authenticated(t, ts)

	tests := []struct {
		name   string
		params any
		code   string
	}{
		{"missing name", ScheduleRunParams{}, CodeInvalidParams},
		{"unknown job", ScheduleRunParams{Name: "zinc"}, CodeNotFound},
		{"run fails", ScheduleRunParams{Name: "aqua-goals"}, CodeRequestFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := call(t, conn, "e-"+tt.name, "schedule.run", tt.params)
			assert.False(t, *resp.OK)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.code, resp.Error.Code)
		})
	}
}

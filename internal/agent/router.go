// Package agent routes one utterance through classification, board
// resolution and the matching sprint action, and renders exactly one reply.
package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/soyeahso/sprintbot/internal/action"
	"github.com/soyeahso/sprintbot/internal/directory"
	"github.com/soyeahso/sprintbot/internal/domain"
	"github.com/soyeahso/sprintbot/internal/hooks"
	"github.com/soyeahso/sprintbot/internal/logging"
	"github.com/soyeahso/sprintbot/internal/metrics"
	"github.com/soyeahso/sprintbot/internal/report"
)

// Fixed reply texts.
const (
	NoBoardsMessage     = "No matching boards found. Try 'list teams'."
	MissingBoardMessage = "Missing Miro board id. Provide it or set MIRO_BOARD_ID."
	TeamsHeader         = "Teams/Boards:"

	HelpText = "Try:\n" +
		"• Fetch sprint goals for all teams\n" +
		"• Fetch sprint goals for Aqua\n" +
		"• Push sprint goals to Miro board uXj...\n" +
		"• List teams\n\n" +
		"Required env vars: JIRA_USERNAME, JIRA_API_TOKEN, MIRO_TOKEN.\n" +
		"Optional for chat: OPENAI_API_KEY or ANTHROPIC_API_KEY."
)

// Actions runs the sprint scripts. *action.Actions implements it.
type Actions interface {
	FetchSprintDetails(ctx context.Context, ids []int) action.Result
	PushGoals(ctx context.Context, boardID, teamFilter string) action.Result
}

// State is private to one request.
type State struct {
	Intent        Intent
	TeamQuery     string
	MiroBoardID   string
	DisplayFilter report.DisplayFilter

	BoardIDs    []int
	FetchStdout string
	FetchStderr string
	PushStdout  string
	PushStderr  string

	Response string
	Path     []StateName
}

// Reply is the single assistant message produced for a request.
type Reply struct {
	SessionID string        `json:"sessionId"`
	Intent    Intent        `json:"intent"`
	Text      string        `json:"text"`
	Path      []StateName   `json:"path"`
	Duration  time.Duration `json:"duration"`
}

// RouterConfig holds the read-only settings of a Router.
type RouterConfig struct {
	// DefaultMiroBoardID is used by push when the utterance names no board.
	DefaultMiroBoardID string
}

// Router drives the request state machine.
type Router struct {
	cfg        RouterConfig
	classifier *Classifier
	boards     directory.Source
	actions    Actions
	outcomes   report.OutcomeResolver
	sessions   SessionStore
	hooks      *hooks.Manager
	metrics    *metrics.Recorder
	log        *logging.Logger
}

// NewRouter creates a router. outcomes may be nil, in which case records
// without inline outcomes show the "Not specified" placeholder.
func NewRouter(
	cfg RouterConfig,
	classifier *Classifier,
	boards directory.Source,
	actions Actions,
	outcomes report.OutcomeResolver,
	sessions SessionStore,
	log *logging.Logger,
) *Router {
	return &Router{
		cfg:        cfg,
		classifier: classifier,
		boards:     boards,
		actions:    actions,
		outcomes:   outcomes,
		sessions:   sessions,
		log:        log.Sub("router"),
	}
}

// SetHooks attaches a hook manager.
func (r *Router) SetHooks(h *hooks.Manager) { r.hooks = h }

// SetMetrics attaches a metrics recorder.
func (r *Router) SetMetrics(m *metrics.Recorder) { r.metrics = m }

// Sessions returns the session store.
func (r *Router) Sessions() SessionStore { return r.sessions }

// Handle runs utterance to the render state and appends the user and
// assistant messages to the session for key. The only error is context
// cancellation; every other failure is reported in the reply text.
func (r *Router) Handle(ctx context.Context, key domain.SessionKey, utterance string) (*Reply, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	start := time.Now()

	sess := r.sessions.GetOrCreate(key)
	r.sessions.Append(sess.ID, domain.Message{Role: "user", Content: utterance, Timestamp: start})
	r.hooks.Emit(ctx, hooks.EventRequestReceived, map[string]any{
		"session":   sess.ID,
		"channel":   key.ChannelID,
		"utterance": utterance,
	})

	st, err := r.Run(ctx, utterance)
	if err != nil {
		return nil, err
	}

	r.sessions.Append(sess.ID, domain.Message{Role: "assistant", Content: st.Response, Timestamp: time.Now()})

	reply := &Reply{
		SessionID: sess.ID,
		Intent:    st.Intent,
		Text:      st.Response,
		Path:      st.Path,
		Duration:  time.Since(start),
	}

	r.metrics.ObserveRequest(string(st.Intent), key.ChannelID, reply.Duration)
	r.hooks.Emit(ctx, hooks.EventReplySent, map[string]any{
		"session":  sess.ID,
		"channel":  key.ChannelID,
		"intent":   string(st.Intent),
		"duration": reply.Duration.String(),
	})
	r.log.Info().
		Str("session", sess.ID).
		Str("channel", key.ChannelID).
		Str("intent", string(st.Intent)).
		Str("path", pathString(st.Path)).
		Dur("duration", reply.Duration).
		Msg("request handled")

	return reply, nil
}

// Run drives the state machine for one utterance without touching sessions.
func (r *Router) Run(ctx context.Context, utterance string) (*State, error) {
	st := &State{Intent: IntentHelp, DisplayFilter: report.FilterAll}
	node := StateClassify
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		st.Path = append(st.Path, node)
		r.step(ctx, node, st, utterance)
		if IsTerminal(node) {
			break
		}
		next, ok := Next(node, st.Intent)
		if !ok {
			return nil, fmt.Errorf("no transition from %s on %s", node, st.Intent)
		}
		node = next
	}
	// A cancelled action comes back as a failed Result; don't report it as output.
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return st, nil
}

func (r *Router) step(ctx context.Context, node StateName, st *State, utterance string) {
	switch node {
	case StateClassify:
		r.classify(ctx, st, utterance)
	case StateResolveBoards:
		r.resolveBoards(st)
	case StateFetch:
		r.fetch(ctx, st)
	case StatePush:
		r.push(ctx, st)
	case StateList:
		r.list(st)
	case StateRender:
		st.Response = Render(st)
	}
}

func (r *Router) classify(ctx context.Context, st *State, utterance string) {
	c := r.classifier.Classify(ctx, utterance)
	st.Intent = c.Intent
	st.TeamQuery = c.TeamQuery
	st.MiroBoardID = c.MiroBoardID
	st.DisplayFilter = c.DisplayFilter

	if c.Degraded {
		r.metrics.IncClassificationFailure()
	}
	if c.Provider != "" {
		r.metrics.AddTokens(c.Provider, c.Usage.InputTokens, c.Usage.OutputTokens)
	}
	r.hooks.Emit(ctx, hooks.EventIntentClassified, map[string]any{
		"intent":        string(c.Intent),
		"teamQuery":     c.TeamQuery,
		"miroBoardId":   c.MiroBoardID,
		"displayFilter": string(c.DisplayFilter),
		"degraded":      c.Degraded,
	})
	r.log.Debug().
		Str("intent", string(c.Intent)).
		Str("teamQuery", c.TeamQuery).
		Str("displayFilter", string(c.DisplayFilter)).
		Bool("degraded", c.Degraded).
		Msg("classified")
}

func (r *Router) directory() (*directory.Directory, error) {
	d, err := r.boards()
	if err != nil {
		return nil, err
	}
	if d == nil {
		d = directory.New(nil)
	}
	return d, nil
}

func (r *Router) resolveBoards(st *State) {
	d, err := r.directory()
	if err != nil {
		r.log.Warn().Err(err).Msg("team directory unavailable")
		d = directory.New(nil)
	}
	st.BoardIDs = d.Resolve(directory.NormalizeQuery(st.TeamQuery))
}

func (r *Router) fetch(ctx context.Context, st *State) {
	if len(st.BoardIDs) == 0 {
		st.FetchStderr = NoBoardsMessage
		return
	}

	res := r.runAction(ctx, "fetch", func() action.Result {
		return r.actions.FetchSprintDetails(ctx, st.BoardIDs)
	})
	st.FetchStdout = report.Summarize(ctx, res.Stdout, st.DisplayFilter, r.outcomes)
	st.FetchStderr = report.StripANSI(res.Stderr)
}

func (r *Router) push(ctx context.Context, st *State) {
	boardID := strings.TrimSpace(st.MiroBoardID)
	if boardID == "" {
		boardID = r.cfg.DefaultMiroBoardID
	}
	if boardID == "" {
		st.PushStderr = MissingBoardMessage
		return
	}

	teamFilter := ""
	if !directory.IsAll(st.TeamQuery) {
		teamFilter = strings.TrimSpace(st.TeamQuery)
	}

	res := r.runAction(ctx, "push", func() action.Result {
		return r.actions.PushGoals(ctx, boardID, teamFilter)
	})
	st.PushStdout = res.Stdout
	st.PushStderr = res.Stderr
}

func (r *Router) list(st *State) {
	d, err := r.directory()
	if err != nil {
		st.FetchStderr = err.Error()
		return
	}
	st.FetchStdout = TeamsListing(d.Boards())
}

func (r *Router) runAction(ctx context.Context, name string, run func() action.Result) action.Result {
	start := time.Now()
	res := run()
	d := time.Since(start)

	r.metrics.ObserveAction(name, res.OK, d)
	r.hooks.Emit(ctx, hooks.EventActionFinished, map[string]any{
		"action":   name,
		"ok":       res.OK,
		"exitCode": res.ExitCode,
		"duration": d.String(),
	})
	ev := r.log.Info()
	if !res.OK {
		ev = r.log.Warn()
	}
	ev.Str("action", name).Int("exitCode", res.ExitCode).Dur("duration", d).Msg("action finished")
	return res
}

// TeamsListing renders directory entries for the list intent.
func TeamsListing(boards []directory.TeamBoard) string {
	lines := make([]string, 0, len(boards)+1)
	lines = append(lines, TeamsHeader)
	for _, b := range boards {
		lines = append(lines, fmt.Sprintf("- %s: %d", b.Team, b.BoardID))
	}
	return strings.Join(lines, "\n")
}

// Render produces the reply text for a finished state.
func Render(st *State) string {
	var msg string
	switch st.Intent {
	case IntentFetch, IntentList:
		msg = strings.TrimSpace(st.FetchStdout + "\n" + st.FetchStderr)
	case IntentPush:
		msg = strings.TrimSpace(st.PushStdout + "\n" + st.PushStderr)
	default:
		return HelpText
	}
	if msg == "" {
		return report.NoOutput
	}
	return msg
}

func pathString(path []StateName) string {
	parts := make([]string, len(path))
	for i, p := range path {
		parts[i] = string(p)
	}
	return strings.Join(parts, ">")
}

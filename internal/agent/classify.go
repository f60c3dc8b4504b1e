package agent

import (
	"context"
	"encoding/json"
	"regexp"
	"strings"

	"github.com/soyeahso/sprintbot/internal/llm"
	"github.com/soyeahso/sprintbot/internal/logging"
	"github.com/soyeahso/sprintbot/internal/report"
)

// classifyInstruction is prepended to every utterance sent to the model.
const classifyInstruction = "Return ONLY JSON. Keys: intent (fetch|push|list|help), team_query (string|null), miro_board_id (string|null), display_filter (all|goals_only|outcomes_only). " +
	"Rules: if user asks to push/post/update to miro -> push. " +
	"If user asks to fetch/show/report sprint goals/details/outcomes -> fetch. " +
	"If user asks to list teams/boards -> list. Otherwise help. " +
	"For display_filter: if user asks for 'only goals' or 'just goals' or 'sprint goals only' -> goals_only. " +
	"If user asks for 'only outcomes' or 'just outcomes' or 'customer outcomes only' -> outcomes_only. " +
	"Otherwise -> all."

// jsonObject spans the first '{' to the last '}' of a response.
var jsonObject = regexp.MustCompile(`\{[\s\S]*\}`)

// Classification is the validated reading of one utterance.
type Classification struct {
	Intent        Intent               `json:"intent"`
	TeamQuery     string               `json:"team_query,omitempty"`
	MiroBoardID   string               `json:"miro_board_id,omitempty"`
	DisplayFilter report.DisplayFilter `json:"display_filter"`

	// Degraded is set when the model output could not be used.
	Degraded bool      `json:"-"`
	Provider string    `json:"-"`
	Usage    llm.Usage `json:"-"`
}

// helpClassification is the result of every failed classification.
func helpClassification() Classification {
	return Classification{Intent: IntentHelp, DisplayFilter: report.FilterAll, Degraded: true}
}

// Classifier turns an utterance into a Classification using a language model.
type Classifier struct {
	client llm.Client
	log    *logging.Logger
}

// NewClassifier creates a classifier over client.
func NewClassifier(client llm.Client, log *logging.Logger) *Classifier {
	return &Classifier{client: client, log: log.Sub("classify")}
}

// Prompt builds the single user turn sent for utterance.
func Prompt(utterance string) string {
	return classifyInstruction + "\nUser: " + utterance
}

// Classify never fails: any model or parse error yields the help intent.
func (c *Classifier) Classify(ctx context.Context, utterance string) Classification {
	resp, err := c.client.Complete(ctx, llm.CompletionRequest{
		Messages:    []llm.Message{{Role: llm.RoleUser, Content: Prompt(utterance)}},
		Temperature: llm.Float(0),
	})
	if err != nil {
		c.log.Warn().Err(err).Str("provider", c.client.Name()).Msg("classification failed, falling back to help")
		return helpClassification()
	}

	cl, ok := ParseClassification(resp.Content)
	if !ok {
		c.log.Warn().Str("response", truncate(resp.Content, 200)).Msg("no usable JSON in model response")
	}
	cl.Provider = c.client.Name()
	cl.Usage = resp.Usage
	return cl
}

// ParseClassification extracts and validates the JSON object in text. ok is
// false when no object could be decoded; the result is then the help
// classification.
func ParseClassification(text string) (Classification, bool) {
	m := jsonObject.FindString(strings.TrimSpace(text))
	if m == "" {
		return helpClassification(), false
	}

	dec := json.NewDecoder(strings.NewReader(m))
	dec.UseNumber()
	var data map[string]any
	if err := dec.Decode(&data); err != nil {
		return helpClassification(), false
	}
	// Trailing text inside the span means it held more than one value.
	if strings.TrimSpace(m[dec.InputOffset():]) != "" {
		return helpClassification(), false
	}

	filter, _ := data["display_filter"].(string)
	intent, _ := data["intent"].(string)

	return Classification{
		Intent:        ParseIntent(intent),
		TeamQuery:     scalarString(data["team_query"]),
		MiroBoardID:   scalarString(data["miro_board_id"]),
		DisplayFilter: report.ParseDisplayFilter(filter),
	}, true
}

// scalarString accepts JSON strings and numbers; null and anything else is "".
func scalarString(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case json.Number:
		return t.String()
	default:
		return ""
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

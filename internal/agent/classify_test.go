package agent

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/soyeahso/sprintbot/internal/llm"
	"github.com/soyeahso/sprintbot/internal/report"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseClassification(t *testing.T) {
	tests := []struct {
		name string
		text string
		want Classification
		ok   bool
	}{
		{
			name: "plain object",
			text: `{"intent":"fetch","team_query":"Aqua","miro_board_id":null,"display_filter":"goals_only"}`,
			want: Classification{Intent: IntentFetch, TeamQuery: "Aqua", DisplayFilter: report.FilterGoalsOnly},
			ok:   true,
		},
		{
			name: "surrounding prose and fences",
			text: "Here you go:\n```json\n{\"intent\": \"push\", \"miro_board_id\": \"uXjVK123=\"}\n```\nDone.",
			want: Classification{Intent: IntentPush, MiroBoardID: "uXjVK123=", DisplayFilter: report.FilterAll},
			ok:   true,
		},
		{
			name: "unknown intent and filter",
			text: `{"intent":"deploy","display_filter":"everything"}`,
			want: Classification{Intent: IntentHelp, DisplayFilter: report.FilterAll},
			ok:   true,
		},
		{
			name: "numeric board id",
			text: `{"intent":"push","miro_board_id":3458764}`,
			want: Classification{Intent: IntentPush, MiroBoardID: "3458764", DisplayFilter: report.FilterAll},
			ok:   true,
		},
		{
			name: "non-string team query ignored",
			text: `{"intent":"fetch","team_query":["Aqua"]}`,
			want: Classification{Intent: IntentFetch, DisplayFilter: report.FilterAll},
			ok:   true,
		},
		{
			name: "no json",
			text: "I can help with sprint goals.",
			want: Classification{Intent: IntentHelp, DisplayFilter: report.FilterAll, Degraded: true},
		},
		{
			name: "malformed json",
			text: `{"intent": fetch}`,
			want: Classification{Intent: IntentHelp, DisplayFilter: report.FilterAll, Degraded: true},
		},
		{
			name: "greedy span covers two objects",
			text: `{"intent":"list"} and {"intent":"fetch"}`,
			want: Classification{Intent: IntentHelp, DisplayFilter: report.FilterAll, Degraded: true},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseClassification(tt.text)
			assert.Equal(t, tt.ok, ok)
			if diff := cmp.Diff(tt.want, got, cmpopts.IgnoreFields(Classification{}, "Usage")); diff != "" {
				t.Errorf("classification mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestClassifierSendsInstruction(t *testing.T) {
	mock := &llm.MockClient{
		ProviderName: "mock",
		CompleteFunc: func(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
			return &llm.CompletionResponse{
				Content: `{"intent":"list"}`,
				Usage:   llm.Usage{InputTokens: 90, OutputTokens: 8},
			}, nil
		},
	}

	c := NewClassifier(mock, silentLog())
	got := c.Classify(context.Background(), "which teams are there?")
	assert.Equal(t, IntentList, got.Intent)
	assert.Equal(t, "mock", got.Provider)
	assert.Equal(t, 90, got.Usage.InputTokens)
	assert.False(t, got.Degraded)

	reqs := mock.Requests()
	require.Len(t, reqs, 1)
	require.Len(t, reqs[0].Messages, 1)
	prompt := reqs[0].Messages[0].Content
	assert.Contains(t, prompt, "Return ONLY JSON.")
	assert.Contains(t, prompt, "\nUser: which teams are there?")
	require.NotNil(t, reqs[0].Temperature)
	assert.Equal(t, 0.0, *reqs[0].Temperature)
}

func TestClassifierDegradesOnError(t *testing.T) {
	mock := &llm.MockClient{
		ProviderName: "mock",
		CompleteFunc: func(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
			return nil, &llm.ProviderError{Provider: "mock", Message: "rate limited", Code: 429}
		},
	}

	got := NewClassifier(mock, silentLog()).Classify(context.Background(), "fetch Aqua")
	assert.Equal(t, IntentHelp, got.Intent)
	assert.Equal(t, report.FilterAll, got.DisplayFilter)
	assert.True(t, got.Degraded)
	assert.Empty(t, got.Provider)
}

func TestClassifierDegradesOnCancelledContext(t *testing.T) {
	mock := &llm.MockClient{
		ProviderName: "mock",
		CompleteFunc: func(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
			return nil, ctx.Err()
		},
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	got := NewClassifier(mock, silentLog()).Classify(ctx, "fetch Aqua")
	assert.Equal(t, IntentHelp, got.Intent)
	assert.True(t, errors.Is(ctx.Err(), context.Canceled))
}

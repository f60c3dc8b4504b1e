package llm

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/soyeahso/sprintbot/internal/logging"
)

// claudeResult is the JSON printed by `claude -p --output-format json`.
type claudeResult struct {
	Type    string `json:"type"`
	IsError bool   `json:"is_error"`
	Result  string `json:"result"`
	Usage   struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// NewClaudeCLIClient wraps the `claude` CLI. An empty command means "claude".
func NewClaudeCLIClient(command string, log *logging.Logger) *CLIClient {
	if command == "" {
		command = "claude"
	}
	return NewCLIClient(CLIConfig{
		Command:        command,
		ProviderName:   "claude-cli",
		BuildArgs:      buildClaudeArgs,
		ParseResponse:  parseClaudeResponse,
		PromptViaStdin: true,
	}, log)
}

func buildClaudeArgs(req CompletionRequest) []string {
	// Headless mode needs --dangerously-skip-permissions; --tools "" keeps the
	// CLI from touching the filesystem or shell.
	args := []string{"-p", "--dangerously-skip-permissions", "--output-format", "json"}
	if req.Model != "" {
		args = append(args, "--model", req.Model)
	}
	if req.System != "" {
		args = append(args, "--system-prompt", req.System)
	}
	return append(args, "--tools", "")
}

// parseClaudeResponse picks the "result" object out of the CLI output, which
// may hold several JSON objects or diagnostic lines around them.
func parseClaudeResponse(data []byte) (*CompletionResponse, error) {
	var best *claudeResult
	for _, line := range bytes.Split(data, []byte("\n")) {
		line = bytes.TrimSpace(line)
		if len(line) == 0 || line[0] != '{' {
			continue
		}
		var r claudeResult
		if err := json.Unmarshal(line, &r); err != nil {
			continue
		}
		if best == nil || r.Type == "result" || r.Result != "" {
			best = &r
		}
	}
	if best == nil {
		return nil, fmt.Errorf("no JSON object in claude output (%d bytes)", len(data))
	}
	if best.IsError {
		return nil, &ProviderError{Provider: "claude-cli", Message: best.Result}
	}

	return &CompletionResponse{
		Content: best.Result,
		Usage: Usage{
			InputTokens:  best.Usage.InputTokens,
			OutputTokens: best.Usage.OutputTokens,
		},
	}, nil
}

package llm

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/ollama/ollama/api"
)

// DefaultOllamaHost is used when no endpoint is configured or it fails to parse.
const DefaultOllamaHost = "http://localhost:11434"

// OllamaClient talks to a local or remote Ollama server.
type OllamaClient struct {
	client *api.Client
	model  string
}

// NewOllamaClient creates a client for host, e.g. "http://localhost:11434".
func NewOllamaClient(host, model string) *OllamaClient {
	if host == "" {
		host = DefaultOllamaHost
	}
	u, err := url.Parse(host)
	if err != nil {
		u, _ = url.Parse(DefaultOllamaHost)
	}
	return &OllamaClient{
		client: api.NewClient(u, http.DefaultClient),
		model:  model,
	}
}

func (c *OllamaClient) Name() string { return "ollama" }

// Complete sends one non-streaming chat request.
func (c *OllamaClient) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	start := time.Now()

	messages := make([]api.Message, 0, len(req.Messages)+1)
	if req.System != "" {
		messages = append(messages, api.Message{Role: RoleSystem, Content: req.System})
	}
	for _, m := range req.Messages {
		messages = append(messages, api.Message{Role: m.Role, Content: m.Content})
	}

	options := map[string]any{"num_predict": maxTokens(req)}
	if req.Temperature != nil {
		options["temperature"] = *req.Temperature
	}

	stream := false
	chatReq := &api.ChatRequest{
		Model:    modelOr(req, c.model),
		Messages: messages,
		Stream:   &stream,
		Options:  options,
	}

	var response api.ChatResponse
	err := c.client.Chat(ctx, chatReq, func(r api.ChatResponse) error {
		response = r
		return nil
	})
	if err != nil {
		var statusErr api.StatusError
		if errors.As(err, &statusErr) {
			return nil, &ProviderError{Provider: c.Name(), Message: statusErr.ErrorMessage, Code: statusErr.StatusCode}
		}
		return nil, &ProviderError{Provider: c.Name(), Message: err.Error()}
	}

	return &CompletionResponse{
		Content:    response.Message.Content,
		StopReason: response.DoneReason,
		Model:      response.Model,
		Duration:   time.Since(start),
		Usage: Usage{
			InputTokens:  response.PromptEvalCount,
			OutputTokens: response.EvalCount,
		},
	}, nil
}

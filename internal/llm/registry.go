package llm

import (
	"fmt"
	"sort"
	"sync"

	"github.com/soyeahso/sprintbot/internal/config"
	"github.com/soyeahso/sprintbot/internal/logging"
)

// ProviderError is returned when an LLM provider fails.
type ProviderError struct {
	Provider string
	Message  string
	Code     int // HTTP-like status code (401, 429, 500, etc.)
}

func (e *ProviderError) Error() string {
	if e.Code > 0 {
		return fmt.Sprintf("%s: %d %s", e.Provider, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Provider, e.Message)
}

// Registry manages LLM provider clients and resolves model references to clients.
type Registry struct {
	mu       sync.RWMutex
	clients  map[string]Client // provider name → client
	aliases  map[string]string // model alias → provider name
	fallback string            // default provider name
	log      *logging.Logger
}

// NewRegistry creates an empty provider registry.
func NewRegistry(log *logging.Logger) *Registry {
	return &Registry{
		clients: make(map[string]Client),
		aliases: make(map[string]string),
		log:     log.Sub("llm.registry"),
	}
}

// Register adds a client under the given provider name.
func (r *Registry) Register(name string, client Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[name] = client
	r.log.Info().Str("provider", name).Msg("registered LLM provider")
}

// Alias maps a model name to a provider.
func (r *Registry) Alias(model, provider string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.aliases[model] = provider
}

// SetFallback sets the provider used when no model/provider match is found.
func (r *Registry) SetFallback(provider string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fallback = provider
}

// Resolve returns the Client for the given model reference.
// Resolution order: exact provider name → alias → fallback.
func (r *Registry) Resolve(model string) (Client, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if c, ok := r.clients[model]; ok {
		return c, nil
	}
	if provider, ok := r.aliases[model]; ok {
		if c, ok := r.clients[provider]; ok {
			return c, nil
		}
	}
	if r.fallback != "" {
		if c, ok := r.clients[r.fallback]; ok {
			return c, nil
		}
	}
	return nil, fmt.Errorf("no LLM provider for model %q", model)
}

// Default returns the fallback client.
func (r *Registry) Default() (Client, error) {
	return r.Resolve("")
}

// List returns all registered provider names, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.clients))
	for n := range r.clients {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// NewClientFromConfig builds the single client described by cfg. Provider
// "auto" at this point means no credentials were found in config or env.
func NewClientFromConfig(cfg config.LLMConfig, log *logging.Logger) (Client, error) {
	needKey := func(env string) error {
		if cfg.APIKey == "" {
			return &config.ConfigError{Message: fmt.Sprintf("llm.provider %q needs an API key (set llm.apiKey or %s)", cfg.Provider, env)}
		}
		return nil
	}

	switch cfg.Provider {
	case "openai":
		if err := needKey("OPENAI_API_KEY"); err != nil {
			return nil, err
		}
		return NewOpenAIClient("openai", cfg.APIKey, cfg.Model, cfg.BaseURL), nil
	case "github":
		if err := needKey("GITHUB_TOKEN"); err != nil {
			return nil, err
		}
		base := cfg.BaseURL
		if base == "" {
			base = config.GitHubModelsURL
		}
		return NewOpenAIClient("github", cfg.APIKey, cfg.Model, base), nil
	case "anthropic":
		if err := needKey("ANTHROPIC_API_KEY"); err != nil {
			return nil, err
		}
		return NewAnthropicClient(cfg.APIKey, cfg.Model), nil
	case "gemini":
		if err := needKey("GEMINI_API_KEY"); err != nil {
			return nil, err
		}
		return NewGeminiClient(cfg.APIKey, cfg.Model), nil
	case "ollama":
		return NewOllamaClient(cfg.BaseURL, cfg.Model), nil
	case "claude-cli":
		client := NewClaudeCLIClient(cfg.Command, log)
		if !CLIExists(client.cfg.Command) {
			return nil, &config.ConfigError{Message: fmt.Sprintf("llm.provider claude-cli: %q not found on PATH", client.cfg.Command)}
		}
		return client, nil
	case "", "auto":
		return nil, &config.ConfigError{Message: "no LLM configured: set OPENAI_API_KEY, ANTHROPIC_API_KEY, GEMINI_API_KEY or GITHUB_TOKEN, or choose llm.provider"}
	default:
		return nil, &config.ConfigError{Message: fmt.Sprintf("unknown llm.provider %q", cfg.Provider)}
	}
}

// NewRegistryFromConfig registers the configured provider as the fallback
// and aliases its model name to it.
func NewRegistryFromConfig(cfg config.LLMConfig, log *logging.Logger) (*Registry, error) {
	client, err := NewClientFromConfig(cfg, log)
	if err != nil {
		return nil, err
	}

	reg := NewRegistry(log)
	reg.Register(client.Name(), client)
	reg.SetFallback(client.Name())
	if cfg.Model != "" {
		reg.Alias(cfg.Model, client.Name())
	}
	return reg, nil
}

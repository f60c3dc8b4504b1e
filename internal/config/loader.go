package config

import (
	"os"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// envVarPattern matches ${VAR_NAME} patterns in strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// GitHubModelsURL is the OpenAI-compatible endpoint for GitHub Models.
const GitHubModelsURL = "https://models.inference.ai.azure.com"

// DefaultModels maps provider names to the model used when none is configured.
var DefaultModels = map[string]string{
	"github":     "gpt-4o-mini",
	"openai":     "gpt-4.1-mini",
	"anthropic":  "claude-3-5-sonnet-latest",
	"gemini":     "gemini-2.0-flash",
	"ollama":     "llama3.1",
	"claude-cli": "sonnet",
}

var providerKeyEnv = map[string]string{
	"github":    "GITHUB_TOKEN",
	"openai":    "OPENAI_API_KEY",
	"anthropic": "ANTHROPIC_API_KEY",
	"gemini":    "GEMINI_API_KEY",
}

var providerModelEnv = map[string]string{
	"github":    "GITHUB_MODEL",
	"openai":    "OPENAI_MODEL",
	"anthropic": "ANTHROPIC_MODEL",
	"gemini":    "GEMINI_MODEL",
	"ollama":    "OLLAMA_MODEL",
}

// expandEnvVars replaces ${VAR} patterns with environment variable values.
// Unset variables are left unchanged.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := match[2 : len(match)-1]
		if val, ok := os.LookupEnv(varName); ok {
			return val
		}
		return match
	})
}

// expandSensitiveFields lets credentials be stored as ${ENV_VAR}.
func expandSensitiveFields(cfg *Config) {
	cfg.LLM.APIKey = expandEnvVars(cfg.LLM.APIKey)
	cfg.Gateway.Auth.Token = expandEnvVars(cfg.Gateway.Auth.Token)
	cfg.Gateway.Auth.Password = expandEnvVars(cfg.Gateway.Auth.Password)
	if cfg.Channels.IRC != nil {
		cfg.Channels.IRC.Password = expandEnvVars(cfg.Channels.IRC.Password)
	}
	if cfg.Channels.Telegram != nil {
		cfg.Channels.Telegram.Token = expandEnvVars(cfg.Channels.Telegram.Token)
	}
}

// Load reads the config file, applies environment overrides, and returns
// a merged Config. Missing files produce defaults only.
func Load(path string) (Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			applyEnvOverrides(&cfg)
			return cfg, nil
		}
		return cfg, err
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, &ConfigError{Message: "failed to parse config: " + err.Error()}
	}

	applyDefaults(&cfg)
	expandSensitiveFields(&cfg)
	applyEnvOverrides(&cfg)
	return cfg, nil
}

// LoadRaw reads the config file into a generic map for path-based access.
func LoadRaw(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]any{}, nil
		}
		return nil, err
	}

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, &ConfigError{Message: "failed to parse config: " + err.Error()}
	}
	if raw == nil {
		raw = map[string]any{}
	}
	return raw, nil
}

// SaveRaw writes a generic map back to a YAML config file.
func SaveRaw(path string, raw map[string]any) error {
	data, err := yaml.Marshal(raw)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// applyDefaults fills zero-value fields left empty by a partial config file.
func applyDefaults(cfg *Config) {
	d := Defaults()
	s := &cfg.Scripts
	if s.Dir == "" {
		s.Dir = d.Scripts.Dir
	}
	if s.Shell == "" {
		s.Shell = d.Scripts.Shell
	}
	if s.Fetch == "" {
		s.Fetch = d.Scripts.Fetch
	}
	if s.FetchAll == "" {
		s.FetchAll = d.Scripts.FetchAll
	}
	if s.Push == "" {
		s.Push = d.Scripts.Push
	}
	if s.Outcomes == "" {
		s.Outcomes = d.Scripts.Outcomes
	}
	if cfg.Directory.BoardIDsFile == "" {
		cfg.Directory.BoardIDsFile = d.Directory.BoardIDsFile
	}
	if cfg.LLM.Provider == "" {
		cfg.LLM.Provider = d.LLM.Provider
	}
	if cfg.Gateway.Port == 0 {
		cfg.Gateway.Port = DefaultGatewayPort
	}
	if cfg.Gateway.Bind == "" {
		cfg.Gateway.Bind = d.Gateway.Bind
	}
	if cfg.Gateway.Auth.Mode == "" {
		cfg.Gateway.Auth.Mode = d.Gateway.Auth.Mode
	}
	if cfg.Session.Scope == "" {
		cfg.Session.Scope = d.Session.Scope
	}
	if cfg.Session.MaxMessages == 0 {
		cfg.Session.MaxMessages = DefaultMaxMessages
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = d.Logging.Level
	}
	if cfg.Logging.Style == "" {
		cfg.Logging.Style = d.Logging.Style
	}
}

// applyEnvOverrides reads SPRINTBOT_* and provider environment variables.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SPRINTBOT_SCRIPTS_DIR"); v != "" {
		cfg.Scripts.Dir = v
	}
	if v := os.Getenv("SPRINTBOT_BOARD_IDS_FILE"); v != "" {
		cfg.Directory.BoardIDsFile = v
	}
	if v := os.Getenv("MIRO_BOARD_ID"); v != "" {
		cfg.Miro.DefaultBoardID = v
	}
	if v := os.Getenv("SPRINTBOT_GATEWAY_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Gateway.Port = port
		}
	}
	if v := os.Getenv("SPRINTBOT_GATEWAY_TOKEN"); v != "" {
		cfg.Gateway.Auth.Token = v
	}
	if v := os.Getenv("SPRINTBOT_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = strings.ToLower(v)
	}
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		if cfg.Channels.Telegram == nil {
			cfg.Channels.Telegram = &TelegramConfig{}
		}
		cfg.Channels.Telegram.Token = v
	}
	applyLLMEnv(&cfg.LLM)
}

// applyLLMEnv picks a provider from whichever credential is present when the
// provider is "auto", then fills key, model and endpoint gaps from the
// environment. GitHub Models wins only when no OpenAI key is set.
func applyLLMEnv(l *LLMConfig) {
	if v := os.Getenv("SPRINTBOT_LLM_PROVIDER"); v != "" {
		l.Provider = strings.ToLower(v)
	}
	if l.Provider == "" || l.Provider == "auto" {
		switch {
		case os.Getenv("GITHUB_TOKEN") != "" && os.Getenv("OPENAI_API_KEY") == "":
			l.Provider = "github"
		case os.Getenv("OPENAI_API_KEY") != "":
			l.Provider = "openai"
		case os.Getenv("ANTHROPIC_API_KEY") != "":
			l.Provider = "anthropic"
		case os.Getenv("GEMINI_API_KEY") != "":
			l.Provider = "gemini"
		default:
			l.Provider = "auto"
			return
		}
	}

	if l.APIKey == "" {
		if env, ok := providerKeyEnv[l.Provider]; ok {
			l.APIKey = os.Getenv(env)
		}
	}
	if l.Model == "" {
		if env, ok := providerModelEnv[l.Provider]; ok {
			l.Model = os.Getenv(env)
		}
	}
	if l.Model == "" {
		l.Model = DefaultModels[l.Provider]
	}

	switch l.Provider {
	case "github":
		if l.BaseURL == "" {
			l.BaseURL = GitHubModelsURL
		}
	case "ollama":
		if l.BaseURL == "" {
			l.BaseURL = os.Getenv("OLLAMA_HOST")
		}
		if l.BaseURL == "" {
			l.BaseURL = "http://localhost:11434"
		}
	}
}

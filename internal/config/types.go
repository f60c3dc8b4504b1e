package config

// Config is the root configuration for sprintbot.
type Config struct {
	Scripts   ScriptsConfig   `yaml:"scripts,omitempty"`
	Directory DirectoryConfig `yaml:"directory,omitempty"`
	Miro      MiroConfig      `yaml:"miro,omitempty"`
	LLM       LLMConfig       `yaml:"llm,omitempty"`
	Gateway   GatewayConfig   `yaml:"gateway,omitempty"`
	Channels  ChannelsConfig  `yaml:"channels,omitempty"`
	Schedule  ScheduleConfig  `yaml:"schedule,omitempty"`
	Session   SessionConfig   `yaml:"session,omitempty"`
	Logging   LoggingConfig   `yaml:"logging,omitempty"`
}

// ScriptsConfig locates the external Jira/Miro shell scripts.
type ScriptsConfig struct {
	Dir      string `yaml:"dir,omitempty"`
	Shell    string `yaml:"shell,omitempty"`
	Fetch    string `yaml:"fetch,omitempty"`
	FetchAll string `yaml:"fetchAll,omitempty"`
	Push     string `yaml:"push,omitempty"`
	Outcomes string `yaml:"outcomes,omitempty"`
}

// DirectoryConfig points at the team/board lookup file.
type DirectoryConfig struct {
	BoardIDsFile string `yaml:"boardIdsFile,omitempty"`
}

// MiroConfig holds Miro defaults.
type MiroConfig struct {
	DefaultBoardID string `yaml:"defaultBoardId,omitempty"`
}

// LLMConfig selects the language model used for intent classification.
type LLMConfig struct {
	Provider string `yaml:"provider,omitempty"` // "auto" | "openai" | "github" | "anthropic" | "gemini" | "ollama" | "claude-cli"
	Model    string `yaml:"model,omitempty"`
	APIKey   string `yaml:"apiKey,omitempty"`
	BaseURL  string `yaml:"baseUrl,omitempty"`
	Command  string `yaml:"command,omitempty"` // binary for claude-cli
}

// GatewayConfig controls the gateway HTTP/WebSocket server.
type GatewayConfig struct {
	Port           int         `yaml:"port,omitempty"`
	Bind           string      `yaml:"bind,omitempty"` // "loopback" | "lan"
	Auth           GatewayAuth `yaml:"auth,omitempty"`
	AllowedOrigins []string    `yaml:"allowedOrigins,omitempty"`
}

// GatewayAuth configures gateway authentication.
type GatewayAuth struct {
	Mode     string `yaml:"mode,omitempty"` // "token" | "password"
	Token    string `yaml:"token,omitempty"`
	Password string `yaml:"password,omitempty"`
}

// ChannelsConfig defines chat channel settings.
type ChannelsConfig struct {
	IRC      *IRCConfig      `yaml:"irc,omitempty"`
	Telegram *TelegramConfig `yaml:"telegram,omitempty"`
}

// IRCConfig defines IRC channel settings.
type IRCConfig struct {
	Server      string   `yaml:"server"`
	Port        int      `yaml:"port,omitempty"`
	Nick        string   `yaml:"nick"`
	Password    string   `yaml:"password,omitempty"`
	Channels    []string `yaml:"channels"`
	UseTLS      bool     `yaml:"useTLS,omitempty"`
	SASL        bool     `yaml:"sasl,omitempty"`
	Owner       string   `yaml:"owner,omitempty"` // only accept messages from this nick when set
	MentionOnly bool     `yaml:"mentionOnly,omitempty"`
}

// TelegramConfig defines Telegram bot settings.
type TelegramConfig struct {
	Token        string  `yaml:"token"`
	AllowedChats []int64 `yaml:"allowedChats,omitempty"`
}

// ScheduleConfig lists recurring report jobs.
type ScheduleConfig struct {
	Jobs []JobConfig `yaml:"jobs,omitempty"`
}

// JobConfig runs one utterance on a cron schedule and delivers the reply.
type JobConfig struct {
	Name      string `yaml:"name"`
	Cron      string `yaml:"cron"`
	Utterance string `yaml:"utterance"`
	Channel   string `yaml:"channel"` // channel id, e.g. "irc" or "telegram"
	ChatID    string `yaml:"chatId"`
}

// SessionConfig defines conversation history behavior.
type SessionConfig struct {
	Scope       string `yaml:"scope,omitempty"` // "per-sender" | "global"
	MaxMessages int    `yaml:"maxMessages,omitempty"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level string `yaml:"level,omitempty"` // "silent" | "fatal" | "error" | "warn" | "info" | "debug" | "trace"
	Style string `yaml:"style,omitempty"` // "pretty" | "json"
}

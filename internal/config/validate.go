package config

import (
	"fmt"
	"slices"
	"strings"
)

// ValidationIssue describes a problem with a config value.
type ValidationIssue struct {
	Path    string
	Message string
}

func (v ValidationIssue) String() string {
	return fmt.Sprintf("%s: %s", v.Path, v.Message)
}

// Providers lists the accepted llm.provider values.
var Providers = []string{"auto", "openai", "github", "anthropic", "gemini", "ollama", "claude-cli"}

// Validate checks a Config for issues. Returns nil if valid.
func Validate(cfg *Config) []ValidationIssue {
	var issues []ValidationIssue
	add := func(path, format string, args ...any) {
		issues = append(issues, ValidationIssue{Path: path, Message: fmt.Sprintf(format, args...)})
	}

	if strings.TrimSpace(cfg.Scripts.Dir) == "" {
		add("scripts.dir", "scripts directory is required")
	}
	if strings.TrimSpace(cfg.Directory.BoardIDsFile) == "" {
		add("directory.boardIdsFile", "board ids file is required")
	}

	if cfg.LLM.Provider != "" && !slices.Contains(Providers, cfg.LLM.Provider) {
		add("llm.provider", "must be one of %v, got %q", Providers, cfg.LLM.Provider)
	}

	if cfg.Gateway.Port < 0 || cfg.Gateway.Port > 65535 {
		add("gateway.port", "port must be 0-65535, got %d", cfg.Gateway.Port)
	}
	validBinds := []string{"loopback", "lan"}
	if cfg.Gateway.Bind != "" && !slices.Contains(validBinds, cfg.Gateway.Bind) {
		add("gateway.bind", "must be one of %v, got %q", validBinds, cfg.Gateway.Bind)
	}
	validAuthModes := []string{"token", "password"}
	if cfg.Gateway.Auth.Mode != "" && !slices.Contains(validAuthModes, cfg.Gateway.Auth.Mode) {
		add("gateway.auth.mode", "must be one of %v, got %q", validAuthModes, cfg.Gateway.Auth.Mode)
	}

	validLogLevels := []string{"silent", "fatal", "error", "warn", "info", "debug", "trace"}
	if cfg.Logging.Level != "" && !slices.Contains(validLogLevels, cfg.Logging.Level) {
		add("logging.level", "must be one of %v, got %q", validLogLevels, cfg.Logging.Level)
	}
	validStyles := []string{"pretty", "json"}
	if cfg.Logging.Style != "" && !slices.Contains(validStyles, cfg.Logging.Style) {
		add("logging.style", "must be one of %v, got %q", validStyles, cfg.Logging.Style)
	}

	validScopes := []string{"per-sender", "global"}
	if cfg.Session.Scope != "" && !slices.Contains(validScopes, cfg.Session.Scope) {
		add("session.scope", "must be one of %v, got %q", validScopes, cfg.Session.Scope)
	}
	if cfg.Session.MaxMessages < 0 {
		add("session.maxMessages", "must not be negative, got %d", cfg.Session.MaxMessages)
	}

	if irc := cfg.Channels.IRC; irc != nil {
		if irc.Server == "" {
			add("channels.irc.server", "server is required")
		}
		if irc.Nick == "" {
			add("channels.irc.nick", "nick is required")
		}
		if irc.Port < 0 || irc.Port > 65535 {
			add("channels.irc.port", "port must be 0-65535, got %d", irc.Port)
		}
		if irc.SASL && irc.Password == "" {
			add("channels.irc.sasl", "SASL requires a password to be set")
		}
	}

	if tg := cfg.Channels.Telegram; tg != nil && tg.Token == "" {
		add("channels.telegram.token", "token is required")
	}

	for i, job := range cfg.Schedule.Jobs {
		prefix := fmt.Sprintf("schedule.jobs[%d]", i)
		if job.Name == "" {
			add(prefix+".name", "name is required")
		}
		if job.Cron == "" {
			add(prefix+".cron", "cron expression is required")
		}
		if strings.TrimSpace(job.Utterance) == "" {
			add(prefix+".utterance", "utterance is required")
		}
		if job.Channel == "" || job.ChatID == "" {
			add(prefix+".channel", "channel and chatId are required")
		}
	}

	return issues
}

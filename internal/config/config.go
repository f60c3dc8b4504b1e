package config

import "fmt"

// ConfigError represents a configuration error.
type ConfigError struct {
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s", e.Message)
}

const (
	DefaultGatewayPort = 18789
	DefaultMaxMessages = 50
)

// Defaults returns a Config with sensible defaults applied.
func Defaults() Config {
	return Config{
		Scripts: ScriptsConfig{
			Dir:      "scripts",
			Shell:    "bash",
			Fetch:    "fetch_sprint_details.sh",
			FetchAll: "fetch_all_team_sprint_details.sh",
			Push:     "push_to_miro_cards.sh",
			Outcomes: "fetch_customer_outcomes.sh",
		},
		Directory: DirectoryConfig{
			BoardIDsFile: "board_ids.txt",
		},
		LLM: LLMConfig{
			Provider: "auto",
		},
		Gateway: GatewayConfig{
			Port: DefaultGatewayPort,
			Bind: "loopback",
			Auth: GatewayAuth{
				Mode: "token",
			},
		},
		Session: SessionConfig{
			Scope:       "per-sender",
			MaxMessages: DefaultMaxMessages,
		},
		Logging: LoggingConfig{
			Level: "info",
			Style: "pretty",
		},
	}
}

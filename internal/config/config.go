// Package config defines the server configuration, its loader, and its
// generated JSON Schema.
package config

import (
	"fmt"

	"github.com/haasonsaas/dragonchat/pkg/models"
)

// Config is the root server configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server" json:"server"`
	Logging  LoggingConfig  `yaml:"logging" json:"logging"`
	Store    StoreConfig    `yaml:"store" json:"store"`
	Provider ProviderConfig `yaml:"provider" json:"provider"`
	Agent    AgentConfig    `yaml:"agent" json:"agent"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Host string `yaml:"host" json:"host"`
	Port int    `yaml:"port" json:"port"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level" json:"level"`
	// Format is "json" or "text".
	Format string `yaml:"format" json:"format"`
	// Output is "stdout" or "stderr".
	Output string `yaml:"output" json:"output"`
}

// StoreConfig configures the knowledge/store database.
type StoreConfig struct {
	// Path is the SQLite database file, or ":memory:".
	Path string `yaml:"path" json:"path"`
}

// ProviderConfig configures the chat model provider.
type ProviderConfig struct {
	// Name selects the provider. Currently "openai".
	Name string `yaml:"name" json:"name"`
	// APIKey authenticates against the provider. Supports ${ENV} expansion.
	APIKey string `yaml:"api_key" json:"api_key"`
	// BaseURL points at an OpenAI-compatible endpoint when set.
	BaseURL string `yaml:"base_url,omitempty" json:"base_url,omitempty"`
	// Model is the default model for turns that name none.
	Model string `yaml:"model,omitempty" json:"model,omitempty"`
}

// AgentConfig configures turn shaping.
type AgentConfig struct {
	// AssistantID is the locally assigned assistant identifier.
	AssistantID string `yaml:"assistant_id" json:"assistant_id"`
	// SystemPrompt overrides the built-in default base prompt.
	SystemPrompt string `yaml:"system_prompt,omitempty" json:"system_prompt,omitempty"`
	// MaxMessages bounds the conversation window.
	MaxMessages int `yaml:"max_messages,omitempty" json:"max_messages,omitempty"`
	// MaxIterations bounds model calls per turn.
	MaxIterations int `yaml:"max_iterations,omitempty" json:"max_iterations,omitempty"`
	// KnowledgeBase enables the knowledge tools and prompt instructions.
	KnowledgeBase bool `yaml:"knowledge_base,omitempty" json:"knowledge_base,omitempty"`
	// Tools are webhook tool configurations applied to every turn, merged
	// with any per-turn configs.
	Tools []models.ToolConfig `yaml:"tools,omitempty" json:"tools,omitempty"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{Host: "127.0.0.1", Port: 8080},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stderr",
		},
		Store:    StoreConfig{Path: "dragonchat.db"},
		Provider: ProviderConfig{Name: "openai"},
		Agent: AgentConfig{
			AssistantID:   "default",
			MaxMessages:   20,
			MaxIterations: 10,
		},
	}
}

// Validate checks cross-field constraints the schema cannot express.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be in 1..65535, got %d", c.Server.Port)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn or error, got %q", c.Logging.Level)
	}
	if c.Provider.Name != "openai" {
		return fmt.Errorf("provider.name must be openai, got %q", c.Provider.Name)
	}
	if c.Store.Path == "" {
		return fmt.Errorf("store.path is required")
	}
	if c.Agent.MaxMessages < 0 {
		return fmt.Errorf("agent.max_messages must be non-negative")
	}
	for i, tool := range c.Agent.Tools {
		if tool.Name == "" {
			return fmt.Errorf("agent.tools[%d]: name is required", i)
		}
		if tool.URL == "" {
			return fmt.Errorf("agent.tools[%d] (%s): url is required", i, tool.Name)
		}
	}
	return nil
}

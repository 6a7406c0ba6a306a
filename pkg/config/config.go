package config

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	envTelegramBotToken  = "TELEGRAM_BOT_TOKEN"
	envTelegramAllowFrom = "TELEGRAM_ALLOW_FROM"
)

const defaultHandlerTimeout = 30 * time.Second

// Config is the root runtime configuration loaded from config.yml.
type Config struct {
	Assistant AssistantConfig        `yaml:"assistant"`
	Channels  ChannelsConfig         `yaml:"channels"`
	TTS       TTSConfig              `yaml:"tts"`
	Status    StatusConfig           `yaml:"status"`
	Skills    map[string]SkillConfig `yaml:"skills,omitempty"`
	Logging   LoggingConfig          `yaml:"logging,omitempty"`
}

// AssistantConfig holds engine-level settings.
type AssistantConfig struct {
	Name                  string `yaml:"name"`
	HandlerTimeoutSeconds int    `yaml:"handler_timeout_seconds"`
	QueueSize             int    `yaml:"queue_size"`
}

// HandlerTimeout returns the per-handler dispatch timeout.
func (c AssistantConfig) HandlerTimeout() time.Duration {
	if c.HandlerTimeoutSeconds <= 0 {
		return defaultHandlerTimeout
	}

	return time.Duration(c.HandlerTimeoutSeconds) * time.Second
}

// LoggingConfig controls structured log output format and verbosity.
type LoggingConfig struct {
	Format    string `yaml:"format,omitempty"`
	Level     string `yaml:"level,omitempty"`
	AddSource bool   `yaml:"add_source,omitempty"`
}

// ChannelsConfig stores front-end adapter settings.
type ChannelsConfig struct {
	Console  ConsoleConfig  `yaml:"console"`
	Telegram TelegramConfig `yaml:"telegram"`
}

// ConsoleConfig configures the stdin/stdout console channel.
type ConsoleConfig struct {
	Enabled bool `yaml:"enabled"`
}

// TelegramConfig configures the Telegram channel integration.
type TelegramConfig struct {
	Enabled   bool     `yaml:"enabled"`
	Token     string   `yaml:"token"`
	AllowFrom []string `yaml:"allow_from"`
}

// TTSConfig configures the speech-synthesis bridge.
type TTSConfig struct {
	Enabled bool     `yaml:"enabled"`
	Command string   `yaml:"command"`
	Args    []string `yaml:"args"`
}

// StatusConfig configures the operator status HTTP endpoint.
type StatusConfig struct {
	Enabled bool   `yaml:"enabled"`
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
}

// SkillConfig is one skill's configuration snapshot: the enabled flag plus
// skill-specific options. The core reads it and never writes back.
type SkillConfig struct {
	Enabled *bool          `yaml:"enabled"`
	Options map[string]any `yaml:",inline"`
}

// IsEnabled reports whether the skill should be loaded. Skills are enabled
// unless the config says otherwise.
func (c SkillConfig) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

// StringOption returns a string-valued skill option, or fallback when the
// option is absent or not a string.
func (c SkillConfig) StringOption(key string, fallback string) string {
	value, ok := c.Options[key]
	if !ok {
		return fallback
	}

	text, ok := value.(string)
	if !ok {
		return fallback
	}

	return text
}

// LoadConfig resolves config.yml, unmarshals it, and applies environment
// overrides.
func LoadConfig() (*Config, error) {
	configPath, err := findConfigPath()
	if err != nil {
		return nil, err
	}

	content, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(content, &cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// SkillFor returns the configuration snapshot for one skill name. Missing
// entries yield a zero snapshot, which reads as enabled with no options.
func (c *Config) SkillFor(name string) SkillConfig {
	if c == nil || c.Skills == nil {
		return SkillConfig{}
	}

	return c.Skills[name]
}

// applyEnvOverrides injects selected env-driven settings on top of file config.
func applyEnvOverrides(cfg *Config) {
	if cfg == nil {
		return
	}

	if token := strings.TrimSpace(os.Getenv(envTelegramBotToken)); token != "" {
		cfg.Channels.Telegram.Token = token
	}

	if rawAllowFrom := strings.TrimSpace(os.Getenv(envTelegramAllowFrom)); rawAllowFrom != "" {
		cfg.Channels.Telegram.AllowFrom = parseCSV(rawAllowFrom)
	}
}

// parseCSV splits comma-separated values and returns a trimmed compact slice.
func parseCSV(input string) []string {
	parts := strings.Split(input, ",")
	clean := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		clean = append(clean, trimmed)
	}

	return slices.Clip(clean)
}

// findConfigPath resolves the active config file location.
//
// Precedence is ARIA_CONFIG first, then cwd-local fallback paths.
func findConfigPath() (string, error) {
	if value := strings.TrimSpace(os.Getenv("ARIA_CONFIG")); value != "" {
		if info, err := os.Stat(value); err == nil && !info.IsDir() {
			return value, nil
		}
		return "", fmt.Errorf("ARIA_CONFIG does not point to a file: %s", value)
	}

	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("get current working directory: %w", err)
	}

	candidates := []string{
		filepath.Join(cwd, "config.yml"),
		filepath.Join(cwd, "config", "config.yml"),
	}

	for _, candidate := range candidates {
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, nil
		}
	}

	return "", fmt.Errorf("config.yml not found (checked %s and %s)", candidates[0], candidates[1])
}

package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/caarlos0/env/v11"
)

// FlexibleStringSlice is a []string that also accepts JSON numbers,
// so allow_from can contain both "123" and 123.
type FlexibleStringSlice []string

func (f *FlexibleStringSlice) UnmarshalJSON(data []byte) error {
	var ss []string
	if err := json.Unmarshal(data, &ss); err == nil {
		*f = ss
		return nil
	}

	var raw []interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	result := make([]string, 0, len(raw))
	for _, v := range raw {
		switch val := v.(type) {
		case string:
			result = append(result, val)
		case float64:
			result = append(result, fmt.Sprintf("%.0f", val))
		default:
			result = append(result, fmt.Sprintf("%v", val))
		}
	}
	*f = result
	return nil
}

type Config struct {
	Agent    AgentConfig    `json:"agent"`
	Provider ProviderConfig `json:"provider"`
	Store    StoreConfig    `json:"store"`
	Gateway  GatewayConfig  `json:"gateway"`
	Channels ChannelsConfig `json:"channels"`
	Checkin  CheckinConfig  `json:"checkin"`
	mu       sync.RWMutex
}

type AgentConfig struct {
	Model                 string  `json:"model" env:"PEIBAN_AGENT_MODEL"`
	Temperature           float64 `json:"temperature" env:"PEIBAN_AGENT_TEMPERATURE"`
	MaxTokens             int     `json:"max_tokens" env:"PEIBAN_AGENT_MAX_TOKENS"`
	HistoryWindow         int     `json:"history_window" env:"PEIBAN_AGENT_HISTORY_WINDOW"`
	DefaultPersona        string  `json:"default_persona" env:"PEIBAN_AGENT_DEFAULT_PERSONA"`
	ClassifierTimeoutSecs int     `json:"classifier_timeout_seconds" env:"PEIBAN_AGENT_CLASSIFIER_TIMEOUT_SECONDS"`
	HandlerTimeoutSecs    int     `json:"handler_timeout_seconds" env:"PEIBAN_AGENT_HANDLER_TIMEOUT_SECONDS"`
}

type ProviderConfig struct {
	APIKey  string `json:"api_key" env:"PEIBAN_PROVIDER_API_KEY"`
	APIBase string `json:"api_base" env:"PEIBAN_PROVIDER_API_BASE"`
	Proxy   string `json:"proxy,omitempty" env:"PEIBAN_PROVIDER_PROXY"`
}

type StoreConfig struct {
	Path string `json:"path" env:"PEIBAN_STORE_PATH"`
}

type GatewayConfig struct {
	Host string `json:"host" env:"PEIBAN_GATEWAY_HOST"`
	Port int    `json:"port" env:"PEIBAN_GATEWAY_PORT"`
}

type ChannelsConfig struct {
	Discord DiscordConfig `json:"discord"`
}

type DiscordConfig struct {
	Token     string              `json:"token" env:"PEIBAN_CHANNELS_DISCORD_TOKEN"`
	AllowFrom FlexibleStringSlice `json:"allow_from" env:"PEIBAN_CHANNELS_DISCORD_ALLOW_FROM"`
}

type CheckinConfig struct {
	Enabled bool   `json:"enabled" env:"PEIBAN_CHECKIN_ENABLED"`
	Cron    string `json:"cron" env:"PEIBAN_CHECKIN_CRON"`
	Channel string `json:"channel" env:"PEIBAN_CHECKIN_CHANNEL"`
	ChatID  string `json:"chat_id" env:"PEIBAN_CHECKIN_CHAT_ID"`
}

func DefaultConfig() *Config {
	return &Config{
		Agent: AgentConfig{
			Model:                 "doubao-pro-32k",
			Temperature:           0.7,
			MaxTokens:             2048,
			HistoryWindow:         20,
			DefaultPersona:        "wan_qing",
			ClassifierTimeoutSecs: 30,
			HandlerTimeoutSecs:    60,
		},
		Provider: ProviderConfig{},
		Store: StoreConfig{
			Path: "~/.peiban/sessions.db",
		},
		Gateway: GatewayConfig{
			Host: "0.0.0.0",
			Port: 18920,
		},
		Channels: ChannelsConfig{
			Discord: DiscordConfig{
				Token:     "",
				AllowFrom: FlexibleStringSlice{},
			},
		},
		Checkin: CheckinConfig{
			Enabled: false,
			Cron:    "0 9 * * *",
		},
	}
}

func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			if err := env.Parse(cfg); err != nil {
				return nil, err
			}
			return cfg, nil
		}
		return nil, err
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func SaveConfig(path string, cfg *Config) error {
	cfg.mu.RLock()
	defer cfg.mu.RUnlock()

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	return os.WriteFile(path, data, 0600)
}

// DefaultConfigPath returns ~/.peiban/config.json.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "config.json"
	}
	return filepath.Join(home, ".peiban", "config.json")
}

func (c *Config) StorePath() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return expandHome(c.Store.Path)
}

func (c *Config) GetAPIKey() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Provider.APIKey
}

func (c *Config) GetAPIBase() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.Provider.APIBase != "" {
		return c.Provider.APIBase
	}
	return "https://ark.cn-beijing.volces.com/api/v3"
}

func expandHome(path string) string {
	if path == "" {
		return path
	}
	if path[0] == '~' {
		home, _ := os.UserHomeDir()
		if len(path) > 1 && path[1] == '/' {
			return home + path[1:]
		}
		return home
	}
	return path
}

package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// ConfigPath is set once at startup and reused by save helpers.
var ConfigPath string

type Config struct {
	DataDir  string `toml:"data_dir"`
	Language string `toml:"language"` // "en", "zh", or "" for auto

	Log           LogConfig      `toml:"log"`
	VisionModel   ModelConfig    `toml:"vision_model"`
	DecisionModel DecisionConfig `toml:"decision_model"`
	Agent         AgentConfig    `toml:"agent"`
	Store         StoreConfig    `toml:"store"`
	API           APIConfig      `toml:"api"`
	Devices       []DeviceConfig `toml:"devices"`
}

type LogConfig struct {
	Level string `toml:"level"`
}

// ModelConfig configures an OpenAI-compatible chat endpoint.
type ModelConfig struct {
	BaseURL          string         `toml:"base_url"`
	APIKey           string         `toml:"api_key"`
	ModelName        string         `toml:"model_name"`
	MaxTokens        int            `toml:"max_tokens"`
	Temperature      float64        `toml:"temperature"`
	TopP             float64        `toml:"top_p"`
	FrequencyPenalty float64        `toml:"frequency_penalty"`
	TimeoutSeconds   int            `toml:"timeout_seconds"`
	ExtraBody        map[string]any `toml:"extra_body"`
}

// DecisionConfig configures the optional planning model.
type DecisionConfig struct {
	Enabled      bool    `toml:"enabled"`
	BaseURL      string  `toml:"base_url"`
	APIKey       string  `toml:"api_key"`
	ModelName    string  `toml:"model_name"`
	MaxTokens    int     `toml:"max_tokens"`
	Temperature  float64 `toml:"temperature"`
	ThinkingMode string  `toml:"thinking_mode"` // "deep" (default) or "fast"
}

type AgentConfig struct {
	MaxSteps     int    `toml:"max_steps"`
	SystemPrompt string `toml:"system_prompt"`
}

type StoreConfig struct {
	Driver string `toml:"driver"` // "sqlite" (default), "postgres", "mongo"
	DSN    string `toml:"dsn"`
}

type APIConfig struct {
	Listen string `toml:"listen"` // optional TCP listen address, e.g. "127.0.0.1:9320"
}

// DeviceConfig describes one controllable device.
type DeviceConfig struct {
	Name    string         `toml:"name"`
	Kind    string         `toml:"kind"` // "adb" or "remote"
	Options map[string]any `toml:"options"`
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := defaults()
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaults() *Config {
	dataDir := ".phone-pilot"
	if home, err := os.UserHomeDir(); err == nil {
		dataDir = filepath.Join(home, ".phone-pilot")
	}
	return &Config{
		DataDir: dataDir,
		Log:     LogConfig{Level: "info"},
		VisionModel: ModelConfig{
			ModelName:      "autoglm-phone",
			APIKey:         "EMPTY",
			MaxTokens:      2048,
			Temperature:    0.01,
			TopP:           0.9,
			TimeoutSeconds: 120,
		},
		DecisionModel: DecisionConfig{
			ModelName:    "ZhipuAI/GLM-4.7",
			MaxTokens:    4096,
			Temperature:  0.7,
			ThinkingMode: "deep",
		},
		Agent: AgentConfig{MaxSteps: 100},
		Store: StoreConfig{Driver: "sqlite"},
	}
}

func (c *Config) validate() error {
	if c.VisionModel.BaseURL == "" {
		return fmt.Errorf("config: vision_model.base_url is required")
	}
	if len(c.Devices) == 0 {
		return fmt.Errorf("config: at least one device must be configured")
	}
	seen := make(map[string]bool)
	for i, d := range c.Devices {
		if d.Kind == "" {
			return fmt.Errorf("config: devices[%d].kind is required", i)
		}
		name := d.Name
		if name == "" {
			return fmt.Errorf("config: devices[%d].name is required", i)
		}
		if seen[name] {
			return fmt.Errorf("config: duplicate device name %q", name)
		}
		seen[name] = true
	}
	if c.DecisionModel.Enabled && c.DecisionModel.BaseURL == "" {
		return fmt.Errorf("config: decision_model.base_url is required when enabled")
	}
	switch c.DecisionModel.ThinkingMode {
	case "", "deep", "fast":
	default:
		return fmt.Errorf("config: decision_model.thinking_mode must be \"deep\" or \"fast\"")
	}
	return nil
}

// SaveLanguage persists a detected language back into the config file.
func SaveLanguage(lang string) error {
	if ConfigPath == "" {
		return fmt.Errorf("config path not set")
	}
	cfg := map[string]any{}
	data, err := os.ReadFile(ConfigPath)
	if err != nil {
		return err
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return err
	}
	cfg["language"] = lang
	return writeTOML(ConfigPath, cfg)
}

func writeTOML(path string, v any) error {
	f, err := os.CreateTemp(filepath.Dir(path), ".config-*.toml")
	if err != nil {
		return err
	}
	enc := toml.NewEncoder(f)
	if err := enc.Encode(v); err != nil {
		f.Close()
		os.Remove(f.Name())
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return err
	}
	return os.Rename(f.Name(), path)
}

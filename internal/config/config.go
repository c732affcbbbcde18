// Package config loads voiceform configuration.
//
// Sources, lowest to highest priority: built-in defaults, the YAML config
// file, environment variables (including .env.local / .env), command line
// flags. Flags are applied by cmd/voiceform after Load returns.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Agent names.
const (
	AgentBarista  = "barista"
	AgentWellness = "wellness"
)

// Defaults.
const (
	DefaultAddr        = ":8080"
	DefaultDataDir     = "."
	DefaultOrdersDir   = "orders"
	DefaultCheckInLog  = "wellness_log.json"
	DefaultModel       = "gpt-4o-mini"
	DefaultVoice       = "alloy"
	DefaultRealtimeURL = "wss://api.openai.com/v1/realtime"
	DefaultShopName    = "Murf's Coffee House"
	DefaultConfigFile  = "voiceform.yaml"
)

// DotEnvFiles are loaded in order. godotenv never overrides variables that
// are already set, so earlier files win.
var DotEnvFiles = []string{".env.local", ".env"}

// Config holds all configuration for the worker and the CLI.
type Config struct {
	Agent    string `yaml:"agent"`
	Addr     string `yaml:"addr"`
	LogLevel string `yaml:"log_level"`
	Debug    bool   `yaml:"debug"`

	DataDir    string `yaml:"data_dir"`
	OrdersDir  string `yaml:"orders_dir"`
	CheckInLog string `yaml:"checkin_log"`
	ShopName   string `yaml:"shop_name"`

	OpenAI  OpenAIConfig  `yaml:"openai"`
	Journal JournalConfig `yaml:"journal"`
}

// OpenAIConfig configures the managed voice runtime and the console runtime.
type OpenAIConfig struct {
	APIKey        string `yaml:"api_key"`
	BaseURL       string `yaml:"base_url"`
	Model         string `yaml:"model"`
	RealtimeURL   string `yaml:"realtime_url"`
	RealtimeModel string `yaml:"realtime_model"`
	Voice         string `yaml:"voice"`
}

// JournalConfig configures the optional Google Docs mirror of check-ins.
type JournalConfig struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	RedirectURL  string `yaml:"redirect_url"`
	DocumentID   string `yaml:"document_id"`
	TokenPath    string `yaml:"token_path"`
}

// Enabled reports whether OAuth credentials are present.
func (j JournalConfig) Enabled() bool {
	return j.ClientID != "" && j.ClientSecret != ""
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Agent:      AgentBarista,
		Addr:       DefaultAddr,
		LogLevel:   "info",
		DataDir:    DefaultDataDir,
		OrdersDir:  DefaultOrdersDir,
		CheckInLog: DefaultCheckInLog,
		ShopName:   DefaultShopName,
		OpenAI: OpenAIConfig{
			Model:       DefaultModel,
			RealtimeURL: DefaultRealtimeURL,
			Voice:       DefaultVoice,
		},
	}
}

// LoadDotEnv loads the DotEnvFiles found in dir. Missing files are skipped.
// It returns the files that were loaded.
func LoadDotEnv(dir string) ([]string, error) {
	var loaded []string
	for _, name := range DotEnvFiles {
		p := filepath.Join(dir, name)
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return loaded, fmt.Errorf("config: load %s: %w", p, err)
		}
		loaded = append(loaded, p)
	}
	return loaded, nil
}

// LoadFile merges the YAML file at path into cfg. A missing file is not an
// error when optional is true.
func LoadFile(cfg *Config, path string, optional bool) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if optional && errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overrides cfg with environment variables.
func (c *Config) ApplyEnv() {
	setString(&c.Agent, "VOICEFORM_AGENT")
	setString(&c.Addr, "VOICEFORM_ADDR")
	setString(&c.LogLevel, "LOG_LEVEL")
	setString(&c.DataDir, "VOICEFORM_DATA_DIR")
	setString(&c.OrdersDir, "VOICEFORM_ORDERS_DIR")
	setString(&c.CheckInLog, "VOICEFORM_CHECKIN_LOG")
	setString(&c.ShopName, "VOICEFORM_SHOP_NAME")

	setString(&c.OpenAI.APIKey, "OPENAI_API_KEY")
	setString(&c.OpenAI.BaseURL, "OPENAI_BASE_URL")
	setString(&c.OpenAI.Model, "OPENAI_MODEL")
	setString(&c.OpenAI.RealtimeURL, "OPENAI_REALTIME_URL")
	setString(&c.OpenAI.RealtimeModel, "OPENAI_REALTIME_MODEL")
	setString(&c.OpenAI.Voice, "OPENAI_VOICE")

	setString(&c.Journal.ClientID, "GOOGLE_CLIENT_ID")
	setString(&c.Journal.ClientSecret, "GOOGLE_CLIENT_SECRET")
	setString(&c.Journal.RedirectURL, "GOOGLE_REDIRECT_URL")
	setString(&c.Journal.DocumentID, "GOOGLE_JOURNAL_DOC_ID")
	setString(&c.Journal.TokenPath, "GOOGLE_TOKEN_PATH")

	if v := os.Getenv("VOICEFORM_DEBUG"); v != "" {
		c.Debug = v != "false" && v != "0"
	}
}

// Load returns defaults overlaid with the YAML file and the environment.
// An empty path means DefaultConfigFile, which may be absent.
func Load(path string) (Config, error) {
	cfg := Default()
	optional := path == ""
	if optional {
		path = DefaultConfigFile
	}
	if err := LoadFile(&cfg, path, optional); err != nil {
		return cfg, err
	}
	cfg.ApplyEnv()
	return cfg, nil
}

// OrdersPath returns the orders directory resolved against DataDir.
func (c Config) OrdersPath() string {
	return resolve(c.DataDir, c.OrdersDir)
}

// CheckInLogPath returns the check-in log path resolved against DataDir.
func (c Config) CheckInLogPath() string {
	return resolve(c.DataDir, c.CheckInLog)
}

// Validate checks that the configuration is usable by a worker.
// The API key is only required when a managed runtime will be dialed.
func (c *Config) Validate(needRuntime bool) error {
	switch c.Agent {
	case AgentBarista, AgentWellness:
	default:
		return &ConfigError{Field: "Agent", Message: fmt.Sprintf("unknown agent %q (want %s or %s)", c.Agent, AgentBarista, AgentWellness)}
	}
	if needRuntime && c.OpenAI.APIKey == "" {
		return &ConfigError{Field: "OpenAI.APIKey", Message: "OPENAI_API_KEY environment variable is required"}
	}
	if c.OrdersDir == "" {
		return &ConfigError{Field: "OrdersDir", Message: "orders directory must not be empty"}
	}
	if c.CheckInLog == "" {
		return &ConfigError{Field: "CheckInLog", Message: "check-in log path must not be empty"}
	}
	return nil
}

// ConfigError represents a configuration validation error.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return "config: " + e.Message
}

func setString(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

func resolve(base, p string) string {
	if filepath.IsAbs(p) || base == "" || base == "." {
		return p
	}
	return filepath.Join(base, p)
}

package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Agent != AgentBarista {
		t.Errorf("Agent = %q, want %q", cfg.Agent, AgentBarista)
	}
	if cfg.OrdersDir != "orders" {
		t.Errorf("OrdersDir = %q, want orders", cfg.OrdersDir)
	}
	if cfg.OpenAI.RealtimeURL != DefaultRealtimeURL {
		t.Errorf("RealtimeURL = %q", cfg.OpenAI.RealtimeURL)
	}
}

func TestLoadFileAndEnvPrecedence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "voiceform.yaml")
	yml := "agent: wellness\naddr: \":9000\"\nshop_name: Test Beans\nopenai:\n  model: from-file\n"
	if err := os.WriteFile(path, []byte(yml), 0644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("OPENAI_MODEL", "from-env")
	t.Setenv("OPENAI_API_KEY", "sk-test")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Agent != AgentWellness {
		t.Errorf("Agent = %q, want wellness", cfg.Agent)
	}
	if cfg.Addr != ":9000" {
		t.Errorf("Addr = %q, want :9000", cfg.Addr)
	}
	if cfg.ShopName != "Test Beans" {
		t.Errorf("ShopName = %q", cfg.ShopName)
	}
	if cfg.OpenAI.Model != "from-env" {
		t.Errorf("env should override file, got %q", cfg.OpenAI.Model)
	}
	if cfg.OpenAI.Voice != DefaultVoice {
		t.Errorf("unset values keep defaults, got voice %q", cfg.OpenAI.Voice)
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil {
		t.Fatal("expected error for missing explicit config file")
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, ".env.local"), []byte("VOICEFORM_TEST_DOTENV=local\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("VOICEFORM_TEST_DOTENV=base\n"), 0644); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Unsetenv("VOICEFORM_TEST_DOTENV") })

	loaded, err := LoadDotEnv(dir)
	if err != nil {
		t.Fatalf("LoadDotEnv: %v", err)
	}
	if len(loaded) != 2 {
		t.Errorf("loaded %d files, want 2", len(loaded))
	}
	if got := os.Getenv("VOICEFORM_TEST_DOTENV"); got != "local" {
		t.Errorf(".env.local should win, got %q", got)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name        string
		mutate      func(*Config)
		needRuntime bool
		wantErr     bool
	}{
		{name: "defaults without runtime", mutate: func(*Config) {}},
		{name: "runtime needs key", mutate: func(*Config) {}, needRuntime: true, wantErr: true},
		{name: "runtime with key", mutate: func(c *Config) { c.OpenAI.APIKey = "k" }, needRuntime: true},
		{name: "unknown agent", mutate: func(c *Config) { c.Agent = "pizza" }, wantErr: true},
		{name: "empty orders dir", mutate: func(c *Config) { c.OrdersDir = "" }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate(tt.needRuntime)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				var ce *ConfigError
				if !errors.As(err, &ce) {
					t.Errorf("expected *ConfigError, got %T", err)
				}
			}
		})
	}
}

func TestResolvedPaths(t *testing.T) {
	cfg := Default()
	cfg.DataDir = "/var/lib/voiceform"

	if got := cfg.OrdersPath(); got != "/var/lib/voiceform/orders" {
		t.Errorf("OrdersPath = %q", got)
	}
	cfg.CheckInLog = "/tmp/log.json"
	if got := cfg.CheckInLogPath(); got != "/tmp/log.json" {
		t.Errorf("absolute paths are kept, got %q", got)
	}
}

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func setMinimalValidConfigEnv(t *testing.T) {
	t.Helper()
	t.Setenv("GMAIL_CREDENTIALS_PATH", "/tmp/credentials.json")
	t.Setenv("GMAIL_TOKEN_PATH", "/tmp/token.json")
	t.Setenv("ANTHROPIC_API_KEY", "sk-ant-test")
	t.Setenv("SLACK_BOT_TOKEN", "xoxb-test")
	t.Setenv("ALERT_CHANNEL_ID", "C12345")
}

func TestLoadConfigFromEnvWithDefaults(t *testing.T) {
	t.Setenv("CONFIG_PATH", filepath.Join(t.TempDir(), "missing-config.yaml"))
	setMinimalValidConfigEnv(t)

	cfg := LoadConfig()

	if cfg.AnthropicAPIKey != "sk-ant-test" {
		t.Fatalf("unexpected anthropic key: %q", cfg.AnthropicAPIKey)
	}
	if cfg.TenantID != "default" {
		t.Fatalf("unexpected tenant default: %q", cfg.TenantID)
	}
	if cfg.DBPath != "./data/inboxagent.db" {
		t.Fatalf("unexpected db path default: %q", cfg.DBPath)
	}
	if cfg.TickInterval() != 120*time.Second {
		t.Fatalf("unexpected tick interval default: %s", cfg.TickInterval())
	}
	if cfg.TickTimeout() != 300*time.Second {
		t.Fatalf("unexpected tick timeout default: %s", cfg.TickTimeout())
	}
	if cfg.StaleAfter() != 900*time.Second {
		t.Fatalf("unexpected staleness default: %s", cfg.StaleAfter())
	}
	if cfg.MaxItemsPerTick != 10 {
		t.Fatalf("unexpected max items default: %d", cfg.MaxItemsPerTick)
	}
	if cfg.EscalationLabel != "needs-human" {
		t.Fatalf("unexpected label default: %q", cfg.EscalationLabel)
	}
	if cfg.CommerceConfigured() {
		t.Fatal("commerce should be unconfigured without store credentials")
	}
}

func TestLoadConfigYAMLAndEnvOverride(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	content := `
tenant_id: "acme"
gmail_credentials_path: "/etc/agent/credentials.json"
gmail_token_path: "/etc/agent/token.json"
anthropic_api_key: "yaml-anthropic"
slack_bot_token: "yaml-bot"
alert_channel_id: "C-YAML"
store_url: "https://acme.example.com"
store_token: "shptk-yaml"
db_path: "/tmp/yaml.db"
tick_interval_seconds: 60
recency_days: 5
`
	if err := os.WriteFile(cfgPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("CONFIG_PATH", cfgPath)
	t.Setenv("ANTHROPIC_API_KEY", "sk-ant-env")
	t.Setenv("DB_PATH", "/tmp/env.db")
	t.Setenv("TICK_INTERVAL_SECONDS", "90")

	cfg := LoadConfig()

	if cfg.TenantID != "acme" {
		t.Fatalf("unexpected tenant: %q", cfg.TenantID)
	}
	if cfg.AnthropicAPIKey != "sk-ant-env" {
		t.Fatalf("env should override yaml, got %q", cfg.AnthropicAPIKey)
	}
	if cfg.SlackBotToken != "yaml-bot" {
		t.Fatalf("unexpected slack token: %q", cfg.SlackBotToken)
	}
	if cfg.DBPath != "/tmp/env.db" {
		t.Fatalf("unexpected db path: %q", cfg.DBPath)
	}
	if cfg.TickIntervalSecs != 90 {
		t.Fatalf("unexpected tick interval: %d", cfg.TickIntervalSecs)
	}
	if cfg.RecencyDays != 5 {
		t.Fatalf("unexpected recency days: %d", cfg.RecencyDays)
	}
	if !cfg.CommerceConfigured() {
		t.Fatal("commerce should be configured from yaml store credentials")
	}
}

package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	TenantID string `yaml:"tenant_id"`

	GmailCredentialsPath string `yaml:"gmail_credentials_path"`
	GmailTokenPath       string `yaml:"gmail_token_path"`

	AnthropicAPIKey string `yaml:"anthropic_api_key"`
	LLMModel        string `yaml:"llm_model"`
	LLMTimeoutSecs  int    `yaml:"llm_timeout_seconds"`

	SlackBotToken  string `yaml:"slack_bot_token"`
	AlertChannelID string `yaml:"alert_channel_id"`

	StoreURL   string `yaml:"store_url"`
	StoreToken string `yaml:"store_token"`

	DataDir  string `yaml:"data_dir"`
	BrainDir string `yaml:"brain_dir"`
	DBPath   string `yaml:"db_path"`

	TickIntervalSecs int    `yaml:"tick_interval_seconds"`
	TickSchedule     string `yaml:"tick_schedule"`
	TickTimeoutSecs  int    `yaml:"tick_timeout_seconds"`
	RecencyDays      int    `yaml:"recency_days"`
	MaxItemsPerTick  int    `yaml:"max_items_per_tick"`

	HealthAddr         string `yaml:"health_addr"`
	StaleAfterSecs     int    `yaml:"stale_after_seconds"`
	EscalationLabel    string `yaml:"escalation_label"`
	MailboxDeepLinkFmt string `yaml:"mailbox_deep_link_format"`
}

func LoadConfig() Config {
	var cfg Config

	// Load from config.yaml if it exists
	configPath := "config.yaml"
	if envPath := os.Getenv("CONFIG_PATH"); envPath != "" {
		configPath = envPath
	}
	if data, err := os.ReadFile(configPath); err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			log.Fatalf("Error parsing %s: %v", configPath, err)
		}
		log.Printf("Loaded config from %s", configPath)
	}

	// Env vars override YAML values
	envOverride(&cfg.TenantID, "TENANT_ID")
	envOverride(&cfg.GmailCredentialsPath, "GMAIL_CREDENTIALS_PATH")
	envOverride(&cfg.GmailTokenPath, "GMAIL_TOKEN_PATH")
	envOverride(&cfg.AnthropicAPIKey, "ANTHROPIC_API_KEY")
	envOverride(&cfg.LLMModel, "LLM_MODEL")
	envOverrideInt(&cfg.LLMTimeoutSecs, "LLM_TIMEOUT_SECONDS")
	envOverride(&cfg.SlackBotToken, "SLACK_BOT_TOKEN")
	envOverride(&cfg.AlertChannelID, "ALERT_CHANNEL_ID")
	envOverride(&cfg.StoreURL, "STORE_URL")
	envOverride(&cfg.StoreToken, "STORE_TOKEN")
	envOverride(&cfg.DataDir, "DATA_DIR")
	envOverride(&cfg.BrainDir, "BRAIN_DIR")
	envOverride(&cfg.DBPath, "DB_PATH")
	envOverrideInt(&cfg.TickIntervalSecs, "TICK_INTERVAL_SECONDS")
	envOverride(&cfg.TickSchedule, "TICK_SCHEDULE")
	envOverrideInt(&cfg.TickTimeoutSecs, "TICK_TIMEOUT_SECONDS")
	envOverrideInt(&cfg.RecencyDays, "RECENCY_DAYS")
	envOverrideInt(&cfg.MaxItemsPerTick, "MAX_ITEMS_PER_TICK")
	envOverride(&cfg.HealthAddr, "HEALTH_ADDR")
	envOverrideInt(&cfg.StaleAfterSecs, "STALE_AFTER_SECONDS")
	envOverride(&cfg.EscalationLabel, "ESCALATION_LABEL")
	envOverride(&cfg.MailboxDeepLinkFmt, "MAILBOX_DEEP_LINK_FORMAT")

	// Defaults
	if cfg.TenantID == "" {
		cfg.TenantID = "default"
	}
	if cfg.LLMModel == "" {
		cfg.LLMModel = "claude-sonnet-4-5-20250929"
	}
	if cfg.LLMTimeoutSecs == 0 {
		cfg.LLMTimeoutSecs = 120
	}
	if cfg.DataDir == "" {
		cfg.DataDir = "./data"
	}
	if cfg.BrainDir == "" {
		cfg.BrainDir = "./brain"
	}
	if cfg.DBPath == "" {
		cfg.DBPath = cfg.DataDir + "/inboxagent.db"
	}
	if cfg.TickIntervalSecs == 0 {
		cfg.TickIntervalSecs = 120
	}
	if cfg.TickTimeoutSecs == 0 {
		cfg.TickTimeoutSecs = 300
	}
	if cfg.RecencyDays == 0 {
		cfg.RecencyDays = 2
	}
	if cfg.MaxItemsPerTick == 0 {
		cfg.MaxItemsPerTick = 10
	}
	if cfg.HealthAddr == "" {
		cfg.HealthAddr = ":8080"
	}
	if cfg.StaleAfterSecs == 0 {
		cfg.StaleAfterSecs = 900
	}
	if cfg.EscalationLabel == "" {
		cfg.EscalationLabel = "needs-human"
	}
	if cfg.MailboxDeepLinkFmt == "" {
		cfg.MailboxDeepLinkFmt = "https://mail.google.com/mail/u/0/#inbox/%s"
	}

	// Validate required fields
	required := map[string]string{
		"gmail_credentials_path": cfg.GmailCredentialsPath,
		"gmail_token_path":       cfg.GmailTokenPath,
		"anthropic_api_key":      cfg.AnthropicAPIKey,
		"slack_bot_token":        cfg.SlackBotToken,
		"alert_channel_id":       cfg.AlertChannelID,
	}
	for name, val := range required {
		if val == "" {
			log.Fatalf("Required config '%s' is not set (via config.yaml or env var)", name)
		}
	}

	if cfg.TickIntervalSecs < 10 {
		log.Fatalf("invalid tick_interval_seconds '%d': must be >= 10", cfg.TickIntervalSecs)
	}
	if cfg.TickTimeoutSecs < 30 {
		log.Fatalf("invalid tick_timeout_seconds '%d': must be >= 30", cfg.TickTimeoutSecs)
	}
	if cfg.RecencyDays < 1 {
		log.Fatalf("invalid recency_days '%d': must be >= 1", cfg.RecencyDays)
	}
	if cfg.MaxItemsPerTick < 1 {
		log.Fatalf("invalid max_items_per_tick '%d': must be >= 1", cfg.MaxItemsPerTick)
	}

	return cfg
}

func envOverride(field *string, envKey string) {
	if val := os.Getenv(envKey); val != "" {
		*field = val
	}
}

func envOverrideInt(field *int, envKey string) {
	if val := os.Getenv(envKey); val != "" {
		parsed, err := strconv.Atoi(val)
		if err != nil {
			log.Fatalf("invalid %s '%s': %v", envKey, val, err)
		}
		*field = parsed
	}
}

func (c Config) LLMTimeout() time.Duration {
	return time.Duration(c.LLMTimeoutSecs) * time.Second
}

func (c Config) TickInterval() time.Duration {
	return time.Duration(c.TickIntervalSecs) * time.Second
}

func (c Config) TickTimeout() time.Duration {
	return time.Duration(c.TickTimeoutSecs) * time.Second
}

func (c Config) StaleAfter() time.Duration {
	return time.Duration(c.StaleAfterSecs) * time.Second
}

// CommerceConfigured reports whether order lookups can be attempted at all.
// Missing store credentials route commerce threads straight to escalation
// instead of failing the call.
func (c Config) CommerceConfigured() bool {
	return c.StoreURL != "" && c.StoreToken != ""
}

package app

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"inboxagent/internal/agent"
	"inboxagent/internal/alert"
	"inboxagent/internal/brain"
	"inboxagent/internal/commerce"
	"inboxagent/internal/config"
	"inboxagent/internal/escalate"
	"inboxagent/internal/health"
	"inboxagent/internal/inbox"
	"inboxagent/internal/ledger"
	"inboxagent/internal/llm"
)

func Main() {
	cfg := config.LoadConfig()
	log.Printf(
		"Config loaded. Tenant=%s Model=%s TickInterval=%s TickTimeout=%s RecencyDays=%d MaxItems=%d Commerce=%v",
		cfg.TenantID, cfg.LLMModel, cfg.TickInterval(), cfg.TickTimeout(),
		cfg.RecencyDays, cfg.MaxItemsPerTick, cfg.CommerceConfigured(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Misconfiguration below this point is unrecoverable by retrying, so it
	// exits instead of escalating.
	b, err := brain.New(cfg.BrainDir, cfg.DataDir)
	if err != nil {
		log.Fatalf("Failed to open brain dir: %v", err)
	}
	classifyPrompt, err := b.Prompt("classifier.md")
	if err != nil {
		log.Fatalf("Missing classifier prompt: %v", err)
	}
	replyPrompt, err := b.Prompt("reply.md")
	if err != nil {
		log.Fatalf("Missing reply prompt: %v", err)
	}

	db, err := ledger.InitDB(cfg.DBPath)
	if err != nil {
		log.Fatalf("Failed to init ledger database: %v", err)
	}
	if recent, err := ledger.GetRecentRecords(db, cfg.TenantID, time.Now().Add(-24*time.Hour), 200); err == nil {
		log.Printf("Ledger initialized at %s (%d items handled in the last 24h)", cfg.DBPath, len(recent))
	} else {
		log.Printf("Ledger initialized at %s (recent-activity query failed: %v)", cfg.DBPath, err)
	}
	defer db.Close()

	provider, err := inbox.NewGmailProvider(ctx, cfg.GmailCredentialsPath, cfg.GmailTokenPath)
	if err != nil {
		log.Fatalf("Failed to init inbox provider: %v", err)
	}

	llmClient := llm.NewClient(cfg.AnthropicAPIKey, cfg.LLMModel, cfg.LLMTimeout())
	classifier := llm.NewClassifier(llmClient, classifyPrompt)
	replier := llm.NewReplier(llmClient, replyPrompt)

	notifier := alert.NewSlackNotifier(cfg.SlackBotToken, cfg.AlertChannelID)
	terminal := escalate.NewTerminal(provider, notifier, cfg.EscalationLabel, cfg.MailboxDeepLinkFmt)

	var looker agent.OrderLooker
	if cfg.CommerceConfigured() {
		looker = commerce.NewClient(cfg.StoreURL, cfg.StoreToken)
	} else {
		log.Println("Commerce lookups disabled (store_url/store_token not set); commerce threads will escalate")
	}

	switchboard := agent.NewSwitchboard(provider, replier, looker, terminal, b)
	orch := &agent.Orchestrator{
		TenantID:    cfg.TenantID,
		RecencyDays: cfg.RecencyDays,
		MaxItems:    cfg.MaxItemsPerTick,
		TickTimeout: cfg.TickTimeout(),
		Provider:    provider,
		Classifier:  classifier,
		Switchboard: switchboard,
		Terminal:    terminal,
		Memory:      b,
		DB:          db,
	}

	health.Serve(cfg.HealthAddr, orch, cfg.StaleAfter())
	agent.StartScheduler(ctx, orch, cfg.TickInterval(), cfg.TickSchedule)

	log.Println("Starting inbox agent...")
	<-ctx.Done()
	log.Println("Shutting down")
}

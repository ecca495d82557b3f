package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/signoffhq/signoff/api"
	"github.com/signoffhq/signoff/approval"
	"github.com/signoffhq/signoff/config"
	"github.com/signoffhq/signoff/engine"
	"github.com/signoffhq/signoff/events"
	"github.com/signoffhq/signoff/llm"
	"github.com/signoffhq/signoff/policy"
	"github.com/signoffhq/signoff/store"
	"github.com/signoffhq/signoff/tools"
)

func main() {
	cfg := config.Load()

	log.Printf("Starting signoff...")
	log.Printf("HTTP Port: %d", cfg.HTTPPort)
	log.Printf("Database: %s", cfg.DatabaseURL)
	log.Printf("LLM URL: %s (model %s)", cfg.LLMBaseURL, cfg.LLMModel)

	db, err := store.NewSQLiteStore(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to initialize store: %v", err)
	}
	defer db.Close()

	registry, err := tools.NewRegistry(tools.DemoDefinitions()...)
	if err != nil {
		log.Fatalf("Failed to build tool registry: %v", err)
	}

	policyContent := policy.DefaultPolicy
	if cfg.PolicyPath != "" {
		data, err := os.ReadFile(cfg.PolicyPath)
		if err != nil {
			log.Fatalf("Failed to read policy file: %v", err)
		}
		policyContent = string(data)
	}

	ctx := context.Background()
	policyEngine, err := policy.NewEngine(ctx, policyContent)
	if err != nil {
		log.Fatalf("Failed to initialize policy engine: %v", err)
	}

	llmClient := llm.NewClient(cfg.LLMBaseURL, cfg.LLMAPIKey, cfg.LLMTimeout)
	recorder := events.NewRecorder(db)

	// The manager and orchestrator are wired through narrow interfaces here:
	// the orchestrator sees the manager only as a Proposer, the manager
	// reports mutations only through the Notifier.
	manager := approval.NewManager(db, registry, recorder)
	orchestrator := engine.NewOrchestrator(llmClient, registry, policyEngine, manager, cfg.LLMModel, cfg.MaxToolRounds)

	h := api.NewHandler(db, manager, orchestrator, recorder, cfg)

	e := echo.New()
	e.HideBanner = true

	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	h.RegisterRoutes(e)

	go func() {
		addr := fmt.Sprintf(":%d", cfg.HTTPPort)
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	log.Printf("API started on port %d", cfg.HTTPPort)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down signoff...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Printf("Failed to shutdown server gracefully: %v", err)
	}

	log.Println("Signoff stopped")
}

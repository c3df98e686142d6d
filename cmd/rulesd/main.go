package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/TomasWolaschka/ai-rules/internal/api"
	"github.com/TomasWolaschka/ai-rules/internal/bootstrap"
	"github.com/TomasWolaschka/ai-rules/internal/config"
	"github.com/TomasWolaschka/ai-rules/internal/observability"
)

func main() {
	shutdownTrace, err := observability.InitTracingFromEnv("rulesd")
	if err != nil {
		log.Fatalf("init tracing: %v", err)
	}
	defer func() { _ = shutdownTrace(context.Background()) }()

	cfgPath := strings.TrimSpace(os.Getenv("RULES_CONFIG"))
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, nil)
	if err != nil {
		log.Fatalf("bootstrap: %v", err)
	}
	app.Start(ctx)

	server := api.NewServer(cfg, app.Store, app.Queue, app.Scheduler, app.Scorer, app.Classifier)
	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Printf("rulesd listening on :%s", cfg.HTTPPort)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("rulesd failed: %v", err)
	}

	drainCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := app.Shutdown(drainCtx); err != nil {
		log.Printf("drain incomplete: %v", err)
	}
	log.Println("rulesd shutting down")
}

// opnote processes an operative case file through the billing pipeline
// and prints the assembled output as JSON.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/medcode-ai/opnote/pkg/config"
	"github.com/medcode-ai/opnote/pkg/models"
	"github.com/medcode-ai/opnote/pkg/orchestrator"
	"github.com/medcode-ai/opnote/pkg/pipeline"
	"github.com/medcode-ai/opnote/pkg/services"
	"github.com/medcode-ai/opnote/pkg/store"
)

// caseInput is the JSON shape of a case file.
type caseInput struct {
	Meta  models.CaseMeta  `json:"caseMeta"`
	Notes models.CaseNotes `json:"caseNotes"`
}

func main() {
	caseFile := flag.String("case", "", "Path to the case JSON file")
	envFile := flag.String("env", ".env", "Path to the .env file")
	showProgress := flag.Bool("progress", false, "Log progress events")
	flag.Parse()

	if err := godotenv.Load(*envFile); err != nil {
		slog.Warn("Could not load .env file, continuing with existing environment",
			"path", *envFile, "error", err)
	}

	if *caseFile == "" {
		fmt.Fprintln(os.Stderr, "usage: opnote -case <case.json>")
		os.Exit(2)
	}
	if err := run(*caseFile, *showProgress); err != nil {
		slog.Error("Case processing failed", "error", err)
		os.Exit(1)
	}
}

func run(caseFile string, showProgress bool) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	raw, err := os.ReadFile(caseFile)
	if err != nil {
		return fmt.Errorf("read case file: %w", err)
	}
	var input caseInput
	if err := json.Unmarshal(raw, &input); err != nil {
		return fmt.Errorf("parse case file: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	registry := services.NewRegistry()
	if err := registry.Initialize(ctx, services.RegistryConfig{
		AIModel:      cfg.AIModelConfig(),
		Jurisdiction: cfg.Jurisdiction,
		CacheTTL:     cfg.CacheTTL,
		Metrics:      prometheus.DefaultRegisterer,
	}); err != nil {
		return fmt.Errorf("initialize services: %w", err)
	}

	artifacts, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer artifacts.Close()

	var progress orchestrator.ProgressFunc
	if showProgress {
		progress = func(ev orchestrator.ProgressEvent) {
			slog.Info("Progress", "step", ev.Step, "agent", string(ev.Agent), "progress", ev.Progress)
		}
	}

	p := pipeline.New(registry, progress)
	result := p.ProcessCase(ctx, input.Notes, input.Meta, &pipeline.ProcessingOptions{
		ErrorPolicy: cfg.ErrorPolicy,
		TimeoutMs:   int(cfg.GlobalTimeout.Milliseconds()),
		RetryPolicy: &pipeline.RetryPolicyOptions{MaxRetries: cfg.MaxRetries},
	})

	if result.Data != nil {
		if err := artifacts.Save(ctx, *result.Data); err != nil {
			slog.Warn("Could not persist case output", "caseId", result.Data.CaseID, "error", err)
		}
	}

	encoded, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	fmt.Println(string(encoded))

	if !result.Success {
		return fmt.Errorf("processing did not succeed: %s", result.Error)
	}
	return nil
}

func openStore(ctx context.Context, cfg *config.Config) (store.ArtifactStore, error) {
	if cfg.DatabaseURL == "" {
		slog.Info("No database configured, using in-memory artifact store")
		return store.NewMemoryStore(), nil
	}
	pg, err := store.NewPostgresStore(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("open artifact store: %w", err)
	}
	return pg, nil
}

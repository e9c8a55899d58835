// Command clinigraph runs one patient intake through the pipeline and
// prints the result as JSON.
//
// Usage:
//
//	clinigraph -patient P123 "Chest pain and shortness of breath for 30 minutes"
//	cat intake.txt | clinigraph -patient P123
//
// Configuration comes from environment variables, optionally overlaid by
// a YAML file passed with -config.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/clinigraph/clinigraph/internal/agents"
	"github.com/clinigraph/clinigraph/internal/config"
	"github.com/clinigraph/clinigraph/internal/gateway"
	"github.com/clinigraph/clinigraph/internal/pipeline"
	"github.com/clinigraph/clinigraph/pkg/stategraph/checkpoint"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "clinigraph:", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		patientID  = flag.String("patient", "", "patient identifier (required)")
		configPath = flag.String("config", "", "optional YAML config overlay")
	)
	flag.Parse()

	if *patientID == "" {
		return fmt.Errorf("-patient is required")
	}

	rawText, err := intakeText(flag.Args())
	if err != nil {
		return err
	}

	cfg := config.Load()
	if *configPath != "" {
		cfg, err = cfg.ApplyFile(*configPath)
		if err != nil {
			return err
		}
	}

	logger, cleanup := config.SetupLogger(cfg)
	defer cleanup()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	generator, err := gateway.NewGenerator(cfg.GeneratorConfig(logger))
	if err != nil {
		return fmt.Errorf("creating generator: %w", err)
	}
	embedder, err := gateway.NewEmbedder(cfg.EmbedderConfig())
	if err != nil {
		return fmt.Errorf("creating embedder: %w", err)
	}
	cases, err := gateway.NewQdrantStore(ctx, cfg.QdrantConfig())
	if err != nil {
		return fmt.Errorf("connecting to case store: %w", err)
	}

	opts := []pipeline.Option{
		pipeline.WithLogger(logger),
		pipeline.WithTracing(cfg.Tracing),
	}
	if cfg.CheckpointPath != "" {
		store, err := checkpoint.NewSQLiteStore(cfg.CheckpointPath)
		if err != nil {
			return fmt.Errorf("opening checkpoint store: %w", err)
		}
		defer store.Close()
		opts = append(opts, pipeline.WithCheckpoints(store))
	}

	p, err := pipeline.New(agents.NewStages(generator, embedder, cases), opts...)
	if err != nil {
		return err
	}

	res := p.Process(ctx, *patientID, rawText)

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(res); err != nil {
		return fmt.Errorf("encoding result: %w", err)
	}

	if res.Err != nil {
		return fmt.Errorf("run %s failed at %s: %w", res.RunID, res.FailedStage, res.Err)
	}
	return nil
}

// intakeText takes the intake from the remaining args, or stdin when
// none are given.
func intakeText(args []string) (string, error) {
	if len(args) > 0 {
		return strings.Join(args, " "), nil
	}
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", fmt.Errorf("reading intake from stdin: %w", err)
	}
	text := strings.TrimSpace(string(data))
	if text == "" {
		return "", fmt.Errorf("no intake text: pass it as arguments or on stdin")
	}
	return text, nil
}

// Command seed loads reference insurance plans from a JSON file,
// embeds each plan's text and upserts it into the comparison index so
// that signed documents can be compared against the plan corpus.
//
// Usage:
//
//	seed -plans plans.json
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"

	"carelane/internal/config"
	"carelane/internal/domain/models/contract"
	"carelane/internal/repository/postgres"
	"carelane/internal/service/comparison"

	"github.com/joho/godotenv"
)

type planEntry struct {
	ID       string            `json:"id"`
	Name     string            `json:"name"`
	Text     string            `json:"text"`
	Metadata map[string]string `json:"metadata"`
}

func main() {
	plansFile := flag.String("plans", "plans.json", "path to the reference plans JSON file")
	flag.Parse()

	_ = godotenv.Load()
	cfg := config.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	raw, err := os.ReadFile(*plansFile)
	if err != nil {
		log.Fatalf("Failed to read plans file: %v", err)
	}
	var plans []planEntry
	if err := json.Unmarshal(raw, &plans); err != nil {
		log.Fatalf("Failed to parse plans file: %v", err)
	}

	ctx := context.Background()

	pool, err := postgres.CreateConnectionPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to create connection pool: %v", err)
	}
	defer pool.Close()

	tables := postgres.NewTableNames(cfg.TablePrefix)
	if err := postgres.EnsureSchema(ctx, pool, tables); err != nil {
		log.Fatalf("Failed to ensure schema: %v", err)
	}

	comparisonRepo := postgres.NewComparisonRepository(&postgres.RepositoryConfig{
		Pool:   pool,
		Tables: tables,
		Logger: logger,
	})
	index := comparison.NewIndexService(comparisonRepo, logger)

	var embedder comparison.Embedder
	switch cfg.EmbedProvider {
	case "cohere":
		embedder, err = comparison.NewCohereEmbedder(cfg.CohereAPIKey, cfg.EmbedModel)
		if err != nil {
			log.Fatalf("Failed to create embedder: %v", err)
		}
	default:
		embedder = comparison.NewLocalEmbedder(cfg.EmbedDim)
	}

	// All plans land in one transaction: a failed embed or write leaves
	// the index untouched.
	txManager := postgres.NewTransactionManager(pool)
	err = txManager.ExecTx(ctx, func(txCtx context.Context) error {
		for _, plan := range plans {
			if plan.ID == "" || plan.Text == "" {
				return fmt.Errorf("plan entry missing id or text: %+v", plan)
			}
			vector, err := embedder.Embed(txCtx, plan.Text)
			if err != nil {
				return fmt.Errorf("embed plan %s: %w", plan.ID, err)
			}
			metadata := map[string]string{"name": plan.Name}
			for k, v := range plan.Metadata {
				metadata[k] = v
			}
			id := contract.PlanRecordID(plan.ID)
			if err := index.Upsert(txCtx, id, contract.RecordKindPlan, vector, metadata); err != nil {
				return fmt.Errorf("index plan %s: %w", plan.ID, err)
			}
			logger.Info("plan indexed", "record_id", id, "name", plan.Name)
		}
		return nil
	})
	if err != nil {
		log.Fatalf("Seed failed: %v", err)
	}

	logger.Info("seed complete", "plans", len(plans))
}

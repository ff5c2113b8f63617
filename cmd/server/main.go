package main

import (
	"context"
	"io"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"carelane/internal/config"
	"carelane/internal/handler"
	"carelane/internal/middleware"
	"carelane/internal/repository/postgres"
	"carelane/internal/service/comparison"
	"carelane/internal/service/generation"
	"carelane/internal/service/render"
	"carelane/internal/service/signature"
	"carelane/internal/service/workflow"

	"github.com/joho/godotenv"
	"github.com/rs/cors"
)

func main() {
	// Load .env file (silently ignore if it doesn't exist - for production)
	_ = godotenv.Load()

	cfg := config.Load()

	// Setup structured logging
	logLevel := slog.LevelInfo
	if cfg.Environment == "dev" {
		logLevel = slog.LevelDebug
	}
	var logOut io.Writer = os.Stdout
	if cfg.LogDir != "" {
		logFile, err := config.SetupLogFile(cfg.LogDir, cfg.LogMaxFiles)
		if err != nil {
			log.Fatalf("Failed to setup log file: %v", err)
		}
		defer logFile.Close()
		logOut = io.MultiWriter(os.Stdout, logFile)
	}
	logger := slog.New(slog.NewJSONHandler(logOut, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("server starting",
		"environment", cfg.Environment,
		"port", cfg.Port,
		"table_prefix", cfg.TablePrefix,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Database
	pool, err := postgres.CreateConnectionPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to create connection pool: %v", err)
	}
	defer pool.Close()

	tables := postgres.NewTableNames(cfg.TablePrefix)
	if err := postgres.EnsureSchema(ctx, pool, tables); err != nil {
		log.Fatalf("Failed to ensure schema: %v", err)
	}
	logger.Info("database connected")

	repoConfig := &postgres.RepositoryConfig{
		Pool:   pool,
		Tables: tables,
		Logger: logger,
	}
	docRepo := postgres.NewDocumentRepository(repoConfig)
	comparisonRepo := postgres.NewComparisonRepository(repoConfig)

	// Generation adapter
	registry, err := generation.NewRegistry()
	if err != nil {
		log.Fatalf("Failed to load template registry: %v", err)
	}
	var provider generation.Provider
	switch cfg.GenerationProvider {
	case "static":
		provider = generation.NewStaticProvider()
		logger.Warn("using static generation provider (development only)")
	default:
		provider, err = generation.NewAnthropicProvider(cfg.AnthropicAPIKey, cfg.GenerationModel)
		if err != nil {
			log.Fatalf("Failed to create generation provider: %v", err)
		}
	}
	generator := generation.NewService(registry, provider, logger)

	// Render adapter
	blobs, err := render.NewFileBlobStore(cfg.BlobDir)
	if err != nil {
		log.Fatalf("Failed to create blob store: %v", err)
	}
	renderer := render.NewPDFRenderer(blobs, logger)

	// Signature adapter
	signatures, err := signature.NewClient(signature.Config{
		BaseURL:        cfg.SignatureBaseURL,
		AuthServer:     cfg.SignatureAuthServer,
		ClientID:       cfg.SignatureClientID,
		UserID:         cfg.SignatureUserID,
		AccountID:      cfg.SignatureAccountID,
		PrivateKeyFile: cfg.SignaturePrivateKeyFile,
		ReturnURL:      cfg.SignatureReturnURL,
	}, blobs, logger)
	if err != nil {
		log.Fatalf("Failed to create signature client: %v", err)
	}

	// Comparison index adapter
	var embedder comparison.Embedder
	switch cfg.EmbedProvider {
	case "cohere":
		embedder, err = comparison.NewCohereEmbedder(cfg.CohereAPIKey, cfg.EmbedModel)
		if err != nil {
			log.Fatalf("Failed to create embedder: %v", err)
		}
	default:
		embedder = comparison.NewLocalEmbedder(cfg.EmbedDim)
		logger.Warn("using local hashed embedder (development only)")
	}
	index := comparison.NewIndexService(comparisonRepo, logger)

	// Workflow orchestrator
	orchestrator := workflow.NewService(
		docRepo,
		registry,
		generator,
		renderer,
		signatures,
		index,
		embedder,
		workflow.Config{
			GenerationMaxAttempts: cfg.GenerationMaxAttempts,
			EnvelopeMaxAttempts:   cfg.EnvelopeMaxAttempts,
			ConflictMaxAttempts:   cfg.ConflictMaxAttempts,
			RetryBaseDelay:        cfg.RetryBaseDelay,
			RetryMaxDelay:         cfg.RetryMaxDelay,
		},
		logger,
	)

	// Background status polling for documents awaiting signature
	poller := workflow.NewPoller(orchestrator, cfg.PollInterval, cfg.PollConcurrency, cfg.PollBatchSize, logger)
	go poller.Run(ctx)

	// Optional bearer auth for the administrative API
	var verifier *middleware.JWTVerifier
	if cfg.AuthJWKSURL != "" {
		verifier, err = middleware.NewJWTVerifier(cfg.AuthJWKSURL, logger)
		if err != nil {
			log.Fatalf("Failed to create JWT verifier: %v", err)
		}
	} else {
		logger.Warn("AUTH_JWKS_URL not set: administrative API is unauthenticated")
	}

	// Handlers
	docHandler := handler.NewDocumentHandler(orchestrator, logger)
	comparisonHandler := handler.NewComparisonHandler(orchestrator, logger)
	webhookHandler := handler.NewWebhookHandler(orchestrator, cfg.WebhookSecret, logger)

	logger.Info("services initialized")

	// Create HTTP router (Go 1.22+ enhanced patterns)
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", docHandler.HealthCheck)

	// Document routes
	mux.HandleFunc("POST /api/documents", docHandler.CreateDocument)
	mux.HandleFunc("GET /api/documents/{id}", docHandler.GetDocument)
	mux.HandleFunc("GET /api/documents/{id}/signing-url", docHandler.GetSigningURL)
	mux.HandleFunc("POST /api/documents/{id}/fail", docHandler.FailDocument)
	mux.HandleFunc("POST /api/documents/{id}/index", docHandler.IndexDocument)

	// Comparison routes
	mux.HandleFunc("POST /api/compare", comparisonHandler.Compare)
	mux.HandleFunc("POST /api/reindex", comparisonHandler.Reindex)

	// Signature provider callbacks (HMAC-verified, no bearer auth)
	mux.HandleFunc("POST /webhooks/signature", webhookHandler.HandleStatus)

	// Build middleware chain
	var root http.Handler = mux
	root = middleware.Auth(verifier, "/health")(root)
	root = middleware.Recovery(logger)(root)

	// CORS - Must be before auth to handle OPTIONS pre-flight requests
	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   strings.Split(cfg.CORSOrigins, ","),
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Origin", "Content-Type", "Accept", "Authorization"},
		AllowCredentials: true,
	})
	root = corsHandler.Handler(root)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      root,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	logger.Info("server listening", "port", cfg.Port)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("Failed to start server: %v", err)
	}
}

// Command server boots the full backend: config, database, every domain
// service, and the HTTP API, with graceful shutdown on SIGINT/SIGTERM.
// Bootstrap order (config -> db -> services -> api) follows the teacher's
// cmd/tarsy/main.go.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/aihub-platform/backend/pkg/api"
	"github.com/aihub-platform/backend/pkg/audit"
	"github.com/aihub-platform/backend/pkg/auth"
	"github.com/aihub-platform/backend/pkg/chat"
	"github.com/aihub-platform/backend/pkg/config"
	"github.com/aihub-platform/backend/pkg/database"
	"github.com/aihub-platform/backend/pkg/embedding"
	"github.com/aihub-platform/backend/pkg/ingestion"
	"github.com/aihub-platform/backend/pkg/llmstream"
	"github.com/aihub-platform/backend/pkg/models"
	"github.com/aihub-platform/backend/pkg/pipeline"
	"github.com/aihub-platform/backend/pkg/quota"
	"github.com/aihub-platform/backend/pkg/rag"
	"github.com/aihub-platform/backend/pkg/vault"
	"github.com/aihub-platform/backend/pkg/vectorstore"
)

func main() {
	configDir := flag.String("config-dir", getEnv("CONFIG_DIR", "."), "directory containing the .env file")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(*configDir)
	if err != nil {
		log.Fatalf("loading configuration: %v", err)
	}

	logger := newLogger(cfg)
	slog.SetDefault(logger)

	if cfg.Production {
		gin.SetMode(gin.ReleaseMode)
	}

	dbClient, err := database.NewClient(ctx, database.Config{
		URL:          cfg.DatabaseURL,
		MaxOpenConns: int32(cfg.DBMaxOpenConns),
		MaxIdleConns: int32(cfg.DBMaxIdleConns),
	})
	if err != nil {
		log.Fatalf("connecting to database: %v", err)
	}
	defer dbClient.Close()
	logger.Info("connected to database")

	rdb, err := newRedisClient(cfg.RedisURL)
	if err != nil {
		log.Fatalf("connecting to redis: %v", err)
	}
	defer rdb.Close()

	vaultStore := vault.NewStore(dbClient.Pool, cfg.SecretKey)
	if err := seedBootstrapProviderKey(ctx, vaultStore, cfg); err != nil {
		logger.Warn("failed to seed bootstrap provider key", "error", err)
	}

	quotaSvc := quota.New(dbClient.Pool)

	sessions, err := auth.NewSessionManager(cfg.SecretKey, auth.DefaultSessionExpiry)
	if err != nil {
		log.Fatalf("initializing session manager: %v", err)
	}
	loginLimiter := auth.NewLoginRateLimiter(rdb)
	rateLimiter := auth.NewRateLimiter(rdb)
	apiKeys := auth.NewAPIKeyStore(dbClient.Pool)

	auditWriter := audit.NewWriter(dbClient.Pool, logger)
	auditWriter.Start(ctx)
	defer auditWriter.Close()

	httpClient := &http.Client{Timeout: 2 * time.Minute}
	providerKeyFunc := func(ctx context.Context) (string, error) {
		return vaultStore.GetActive(ctx, models.ProviderOpenRouter)
	}

	embeddingClient := embedding.New(httpClient, "https://openrouter.ai/api/v1", cfg.EmbeddingModelID, providerKeyFunc)
	vectorStore := vectorstore.New(dbClient.Pool)
	composer := rag.New(embeddingClient, vectorStore)

	pricer := llmstream.NewCachedPricer(fetchOpenRouterPricing(httpClient))
	streamer := llmstream.New(httpClient, "https://openrouter.ai/api/v1", providerKeyFunc, pricer)

	orchestrator := chat.New(dbClient.Pool, quotaSvc, composer, streamer)

	ingestionStore := ingestion.NewStore(dbClient.Pool)
	processor := pipeline.NewProcessor(embeddingClient, vectorStore)
	blobStore := pipeline.NewDiskBlobStore()
	reaperInterval := time.Duration(cfg.IngestionReaperIntervalSeconds) * time.Second
	reaper := ingestion.NewReaper(ingestionStore, blobStore, processor, reaperInterval)
	go reaper.Run(ctx)

	server := api.New(cfg).
		SetDatabase(dbClient).
		SetVault(vaultStore).
		SetQuota(quotaSvc).
		SetSessions(sessions).
		SetLoginLimiter(loginLimiter).
		SetRateLimiter(rateLimiter).
		SetAPIKeys(apiKeys).
		SetAudit(auditWriter).
		SetFiles(ingestionStore).
		SetVectorStore(vectorStore).
		SetOrchestrator(orchestrator)

	if err := server.ValidateWiring(); err != nil {
		log.Fatalf("server wiring incomplete: %v", err)
	}

	logger.Info("starting server", "addr", cfg.ListenAddr())
	if err := server.Start(ctx); err != nil {
		log.Fatalf("server exited with error: %v", err)
	}

	reaper.Stop()
	logger.Info("shutdown complete")
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func newLogger(cfg *config.Config) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.LogFormat == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

func newRedisClient(rawURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	return redis.NewClient(opts), nil
}

// seedBootstrapProviderKey encrypts cfg.ProviderAPIKey into the vault on
// first boot, if no provider keys exist yet (spec §6's bootstrap env var).
func seedBootstrapProviderKey(ctx context.Context, store *vault.Store, cfg *config.Config) error {
	if cfg.ProviderAPIKey == "" {
		return nil
	}
	existing, err := store.List(ctx, nil)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		return nil
	}
	_, err = store.Create(ctx, models.ProviderOpenRouter, "bootstrap", cfg.ProviderAPIKey, true)
	return err
}

// fetchOpenRouterPricing returns a CachedPricer fetch function backed by
// OpenRouter's public model list, converting its per-token pricing strings
// to the per-million-token figures llmstream.Cost expects.
func fetchOpenRouterPricing(client *http.Client) func(ctx context.Context, model string) (float64, float64, error) {
	return func(ctx context.Context, model string) (float64, float64, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, "https://openrouter.ai/api/v1/models", nil)
		if err != nil {
			return 0, 0, err
		}
		resp, err := client.Do(req)
		if err != nil {
			return 0, 0, err
		}
		defer resp.Body.Close()
		if resp.StatusCode/100 != 2 {
			return 0, 0, fmt.Errorf("openrouter models request failed: %s", resp.Status)
		}

		var body struct {
			Data []struct {
				ID      string `json:"id"`
				Pricing struct {
					Prompt     string `json:"prompt"`
					Completion string `json:"completion"`
				} `json:"pricing"`
			} `json:"data"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			return 0, 0, err
		}

		for _, m := range body.Data {
			if m.ID != model {
				continue
			}
			prompt, err := strconv.ParseFloat(m.Pricing.Prompt, 64)
			if err != nil {
				return 0, 0, err
			}
			completion, err := strconv.ParseFloat(m.Pricing.Completion, 64)
			if err != nil {
				return 0, 0, err
			}
			return prompt * 1e6, completion * 1e6, nil
		}
		return 0, 0, fmt.Errorf("model %q not found in pricing table", model)
	}
}

package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/redis/go-redis/v9"

	"careline-agent/internal/handler"
	"careline-agent/internal/integrations/messaging"
	"careline-agent/internal/integrations/openai"
	"careline-agent/internal/integrations/paramstore"
	"careline-agent/internal/intent"
	"careline-agent/internal/repository"
	"careline-agent/internal/scheduler"
	"careline-agent/internal/telemetry"
	"careline-agent/internal/usecase"
)

func main() {
	ctx := context.Background()

	// ---- Configuration (read only here) ----
	paramPrefix := mustEnv("PARAM_PREFIX")
	webhookToken := mustEnv("WEBHOOK_TOKEN")
	messagingBaseURL := mustEnv("MESSAGING_BASE_URL")
	messagingToken := mustEnv("MESSAGING_TOKEN")
	supportIdentities := splitList(os.Getenv("SUPPORT_IDENTITIES"))
	storeDriver := repository.StoreType(envStr("STORE_DRIVER", string(repository.StoreTypeMemory)))
	httpAddr := envStr("HTTP_ADDR", ":8080")
	telemetryPath := envStr("TELEMETRY_DB_PATH", "careline-events.db")
	intentsDir := os.Getenv("INTENTS_DIR")
	sweepInterval := envDur("FOLLOWUP_SWEEP_INTERVAL", time.Hour)
	sweepConcurrency := envInt("FOLLOWUP_CONCURRENCY", 4)

	// ---- Intent catalog ----
	catalog, err := loadCatalog(intentsDir)
	if err != nil {
		slog.Error("failed to load intent catalog", "err", err)
		os.Exit(1)
	}

	// ---- Conversation store ----
	store, err := newStore(ctx, storeDriver)
	if err != nil {
		slog.Error("failed to create conversation store", "driver", storeDriver, "err", err)
		os.Exit(1)
	}
	defer func() { _ = store.Close() }()

	// ---- Clients ----
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		slog.Error("failed to load AWS config", "err", err)
		os.Exit(1)
	}
	ssmClient, err := paramstore.New(awsssm.NewFromConfig(cfg))
	if err != nil {
		slog.Error("failed to create SSM client", "err", err)
		os.Exit(1)
	}
	openaiClient, err := openai.NewClient(ssmClient, paramPrefix)
	if err != nil {
		slog.Error("failed to create OpenAI client", "err", err)
		os.Exit(1)
	}
	deliverer, err := messaging.NewClient(messagingBaseURL, messagingToken)
	if err != nil {
		slog.Error("failed to create messaging client", "err", err)
		os.Exit(1)
	}
	recorder, err := telemetry.NewSQLiteRecorder(telemetryPath)
	if err != nil {
		slog.Error("failed to open telemetry database", "path", telemetryPath, "err", err)
		os.Exit(1)
	}
	defer func() { _ = recorder.Close() }()

	// ---- Pipeline ----
	resolver, err := intent.NewResolver(catalog, openaiClient)
	if err != nil {
		slog.Error("failed to create intent resolver", "err", err)
		os.Exit(1)
	}
	orchestrator, err := usecase.NewOrchestrator(
		store, resolver, openaiClient, openaiClient, deliverer, recorder, catalog, supportIdentities)
	if err != nil {
		slog.Error("failed to create orchestrator", "err", err)
		os.Exit(1)
	}

	// ---- Follow-up scheduler ----
	sched, err := scheduler.NewScheduler(store, orchestrator,
		scheduler.WithInterval(sweepInterval),
		scheduler.WithConcurrency(sweepConcurrency))
	if err != nil {
		slog.Error("failed to create scheduler", "err", err)
		os.Exit(1)
	}

	// ---- HTTP server ----
	h, err := handler.New(orchestrator, webhookToken)
	if err != nil {
		slog.Error("failed to create handler", "err", err)
		os.Exit(1)
	}
	server := &http.Server{
		Addr:              httpAddr,
		Handler:           h.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	runCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := sched.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("scheduler stopped", "err", err)
		}
	}()
	go func() {
		slog.Info("listening", "addr", httpAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server failed", "err", err)
			stop()
		}
	}()

	<-runCtx.Done()
	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("http shutdown failed", "err", err)
	}
}

func loadCatalog(dir string) (*intent.Catalog, error) {
	if dir == "" {
		return intent.DefaultCatalog()
	}
	return intent.LoadCatalog(dir)
}

func newStore(ctx context.Context, driver repository.StoreType) (repository.Store, error) {
	switch driver {
	case repository.StoreTypeMemory:
		return repository.NewStore(repository.StoreTypeMemory)

	case repository.StoreTypeRedis:
		opt, err := redis.ParseURL(mustEnv("REDIS_URL"))
		if err != nil {
			return nil, err
		}
		client := redis.NewClient(opt)
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, err
		}
		return repository.NewStore(repository.StoreTypeRedis, repository.WithRedisClient(client))

	case repository.StoreTypeDynamoDB:
		cfg, err := config.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, err
		}
		return repository.NewStore(repository.StoreTypeDynamoDB,
			repository.WithDynamoDB(awsdynamodb.NewFromConfig(cfg), mustEnv("STATE_TABLE")))

	default:
		return nil, repository.ErrInvalidStoreType
	}
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func mustEnv(key string) string {
	v := os.Getenv(key)
	if v == "" {
		slog.Error("required environment variable is not set", "key", key)
		os.Exit(1)
	}
	return v
}

func envStr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envDur(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

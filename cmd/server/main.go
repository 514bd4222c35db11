package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"bankledger/pkg/accountcache"
	"bankledger/pkg/api"
	"bankledger/pkg/ledger"
	"bankledger/pkg/ledger/memory"
	"bankledger/pkg/ledger/postgres"
	"bankledger/pkg/logging"
	promMetrics "bankledger/pkg/metrics/prometheus"
	"bankledger/pkg/resilience"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

func main() {
	logger, err := logging.NewLoggerFromEnv()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()
	logging.SetGlobal(logger)

	logger.Info("starting bankledger server")

	collector := promMetrics.NewCollector("bankledger")
	prometheus.MustRegister(collector)

	// Storage: PostgreSQL when DB_URL is set, otherwise an in-memory store
	// seeded with demo data.
	var store ledger.Store
	if dsn := os.Getenv("DB_URL"); dsn != "" {
		pg, err := postgres.NewStoreFromDSN(dsn)
		if err != nil {
			logger.Fatal("Failed to connect to PostgreSQL", zap.Error(err))
		}
		store = pg
		logger.Info("storage initialized", zap.String("backend", "postgres"))
	} else {
		store = memory.NewStore()
		if err := ledger.SeedDemo(context.Background(), store); err != nil {
			logger.Fatal("Failed to seed demo data", zap.Error(err))
		}
		logger.Info("storage initialized", zap.String("backend", "memory"))
	}
	defer store.Close()

	resilienceConfig := resilience.DefaultConfig()
	resilienceConfig.Name = "ledger-store"
	resilienceConfig.Logger = logger
	resilienceConfig.Metrics = collector
	guarded := resilience.NewStore(store, resilienceConfig)

	// Account lookups go through the bloom filter and snapshot cache; Redis
	// when configured, process-local memory otherwise.
	var cache accountcache.Cache
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		redisConfig := accountcache.DefaultRedisConfig()
		redisConfig.Addr = addr
		redisConfig.Password = os.Getenv("REDIS_PASSWORD")
		redisCache, err := accountcache.NewRedis(redisConfig)
		if err != nil {
			logger.Fatal("Failed to connect to Redis", zap.Error(err))
		}
		cache = redisCache
		logger.Info("account cache initialized", zap.String("backend", "redis"))
	} else {
		cache = accountcache.NewMemory(accountcache.MemoryConfig{})
		logger.Info("account cache initialized", zap.String("backend", "memory"))
	}

	lookupConfig := accountcache.DefaultLookupConfig()
	lookupConfig.Logger = logger
	lookupConfig.Metrics = collector
	lookup, err := accountcache.NewLookup(context.Background(), guarded, cache, lookupConfig)
	if err != nil {
		logger.Fatal("Failed to initialize account lookup", zap.Error(err))
	}
	defer lookup.Close()

	serviceConfig := ledger.DefaultConfig()
	serviceConfig.Resolver = lookup
	serviceConfig.Logger = logger
	serviceConfig.Metrics = collector
	service := ledger.NewService(guarded, serviceConfig)

	serverConfig := api.DefaultServerConfig()
	serverConfig.Address = ":" + getEnv("PORT", "8080")
	serverConfig.Logger = logger
	server := api.NewServer(service, serverConfig)
	server.Start()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Stop(ctx); err != nil {
		logger.Error("Server shutdown error", zap.Error(err))
	}
	logger.Info("server stopped")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

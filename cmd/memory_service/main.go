package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/DrJLabs/Forgetful-sub001/internal/api"
	"github.com/DrJLabs/Forgetful-sub001/internal/config"
	"github.com/DrJLabs/Forgetful-sub001/internal/database/kafka"
	"github.com/DrJLabs/Forgetful-sub001/internal/database/milvus"
	"github.com/DrJLabs/Forgetful-sub001/internal/database/minio"
	"github.com/DrJLabs/Forgetful-sub001/internal/database/mongo"
	"github.com/DrJLabs/Forgetful-sub001/internal/database/mysql"
	"github.com/DrJLabs/Forgetful-sub001/internal/database/neo4j"
	"github.com/DrJLabs/Forgetful-sub001/internal/database/redis"
	"github.com/DrJLabs/Forgetful-sub001/internal/discovery/etcd"
	"github.com/DrJLabs/Forgetful-sub001/internal/embedding"
	"github.com/DrJLabs/Forgetful-sub001/internal/identity"
	"github.com/DrJLabs/Forgetful-sub001/internal/llm"
	"github.com/DrJLabs/Forgetful-sub001/internal/mcp_bridge"
	"github.com/DrJLabs/Forgetful-sub001/internal/memory/archive"
	"github.com/DrJLabs/Forgetful-sub001/internal/memory/consumer"
	"github.com/DrJLabs/Forgetful-sub001/internal/memory/engine"
	"github.com/DrJLabs/Forgetful-sub001/internal/memory/extractor"
	"github.com/DrJLabs/Forgetful-sub001/internal/memory/history"
	"github.com/DrJLabs/Forgetful-sub001/internal/memory/store"
	"github.com/DrJLabs/Forgetful-sub001/internal/models"
	"github.com/DrJLabs/Forgetful-sub001/pkg/circuitbreaker"
	"github.com/DrJLabs/Forgetful-sub001/pkg/logger"
	"github.com/DrJLabs/Forgetful-sub001/pkg/ratelimiter"
)

func main() {
	// Load configuration
	configPath := "config.yaml"
	if len(os.Args) > 1 {
		configPath = os.Args[1]
	}
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}
	if cfg.API.JwtSecret == "" {
		log.Fatalf("api.jwtSecret must be set")
	}

	// Initialize logger
	level, err := logrus.ParseLevel(cfg.Logger.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.Init(level)
	appLogger := logger.New("memory_service", "", "")

	// Initialize database clients
	ctx := context.Background()
	milvusClient, err := milvus.GetClient(ctx, &cfg.Databases.Milvus)
	if err != nil {
		appLogger.Fatal(err.Error())
	}
	defer milvusClient.Close()
	if err := milvusClient.EnsureCollection(ctx); err != nil {
		appLogger.Fatal(err.Error())
	}

	neo4jClient, err := neo4j.GetClient(ctx, &cfg.Databases.Neo4j)
	if err != nil {
		appLogger.Fatal(err.Error())
	}
	defer neo4jClient.Close(ctx)
	if err := neo4jClient.EnsureSchema(ctx); err != nil {
		appLogger.Fatal(err.Error())
	}

	if _, err := mongo.GetClient(&cfg.Databases.MongoDB); err != nil {
		appLogger.Fatal(err.Error())
	}
	if err := mongo.EnsureHistoryIndexes(ctx, &cfg.Databases.MongoDB); err != nil {
		appLogger.Fatal(err.Error())
	}
	historyColl, err := mongo.HistoryCollection(&cfg.Databases.MongoDB)
	if err != nil {
		appLogger.Fatal(err.Error())
	}

	db, err := mysql.GetDB(&cfg.Databases.MySQL)
	if err != nil {
		appLogger.Fatal(err.Error())
	}

	// Initialize LLM and embedding clients
	llmClient, err := llm.NewClient(cfg.LLM)
	if err != nil {
		appLogger.Fatal(err.Error())
	}
	if cfg.Memory.CircuitBreaker.Enabled {
		cb := circuitbreaker.New(
			cfg.Memory.CircuitBreaker.FailureThreshold,
			cfg.Memory.CircuitBreaker.SuccessThreshold,
			config.ParseDurationOr(cfg.Memory.CircuitBreaker.Timeout, 30*time.Second),
		)
		llmClient = llm.WithBreaker(llmClient, cb)
		appLogger.Info("LLM circuit breaker enabled")
	}

	embedder, err := embedding.NewEmdModel(cfg.Embedding)
	if err != nil {
		appLogger.Fatal(err.Error())
	}

	// Assemble the memory engine (stores -> extractors -> engine)
	factStore := store.NewMilvusFactStore(milvusClient)
	graphStore := store.NewNeo4jGraphStore(neo4jClient)
	recorder := history.NewMongoRecorder(historyColl)

	eng := engine.New(engine.Params{
		Extractor:  extractor.NewLLMFactExtractor(llmClient),
		Classifier: extractor.NewLLMClassifier(llmClient),
		Relations:  extractor.NewLLMRelationExtractor(llmClient),
		Embedder:   embedder,
		Facts:      factStore,
		Graph:      graphStore,
		Recorder:   recorder,
		Config:     cfg.Memory,
		Log:        appLogger,
	})

	// Identity: session resolver, app registry and token service
	resolver := identity.NewResolver(cfg.Identity, appLogger)
	registry, err := identity.NewRegistry(db)
	if err != nil {
		appLogger.Fatal(err.Error())
	}
	if err := registry.SeedResolver(resolver); err != nil {
		appLogger.WithError(models.ErrorInfo{Message: err.Error()}).Warn("failed to seed resolver from app registry")
	}
	tokens := identity.NewTokenService(cfg.API.JwtSecret, cfg.API.TokenTTL)

	limiter, err := buildRateLimiter(&cfg.API.RateLimiter, &cfg.Databases.Redis)
	if err != nil {
		appLogger.Fatal(err.Error())
	}

	checks := map[string]api.HealthCheck{
		"vector":   milvusClient.HealthCheck,
		"graph":    neo4jClient.HealthCheck,
		"history":  mongo.HealthCheck,
		"registry": mysql.HealthCheck,
	}

	// Start the asynchronous ingestion consumer
	var turnConsumer *consumer.TurnConsumer
	var kafkaClient *kafka.KafkaClient
	consumerCtx, consumerCancel := context.WithCancel(context.Background())
	defer consumerCancel()
	if cfg.Consumer.Enabled {
		kafkaClient, err = kafka.GetClient(&cfg.Databases.Kafka)
		if err != nil {
			appLogger.Fatal(err.Error())
		}
		checks["queue"] = kafkaClient.HealthCheck

		var archiver archive.Archiver = archive.NopArchiver{}
		if cfg.Consumer.Archive {
			minioClient, err := minio.GetClient(&cfg.Databases.MinIO)
			if err != nil {
				appLogger.Fatal(err.Error())
			}
			if err := minio.EnsureBucket(ctx, &cfg.Databases.MinIO); err != nil {
				appLogger.Fatal(err.Error())
			}
			archiver = archive.NewMinioArchiver(minioClient, cfg.Databases.MinIO.Bucket, appLogger)
		}

		turnConsumer = consumer.NewTurnConsumer(kafkaClient, eng, resolver, archiver, appLogger)
		turnConsumer.Start(consumerCtx)
		appLogger.Info("turn ingestion consumer started")
	}

	// Setup HTTP server
	gin.SetMode(gin.ReleaseMode)
	handler := api.NewHandler(eng, resolver, registry, tokens, checks, appLogger)
	router := api.SetupRouter(handler, tokens, limiter, appLogger)

	srv := &http.Server{
		Addr:    cfg.API.Address,
		Handler: router,
	}
	go func() {
		appLogger.Info("Starting HTTP server on " + srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.WithError(models.ErrorInfo{Message: err.Error()}).Fatal("HTTP server failed to start")
		}
	}()

	// Start the MCP bridge
	var bridge *mcp_bridge.Bridge
	if cfg.MCP.Enabled {
		bridge = mcp_bridge.New(eng, resolver, cfg.MCP.ClientName, appLogger)
		go func() {
			if err := bridge.ServeSSE(cfg.MCP.Address); err != nil && !errors.Is(err, http.ErrServerClosed) {
				appLogger.WithError(models.ErrorInfo{Message: err.Error()}).Fatal("MCP bridge failed to start")
			}
		}()
	}

	// Announce the service to etcd
	var discovery *etcd.Registry
	var discoveryStop chan<- struct{}
	if cfg.Discovery.Enabled {
		discovery, err = etcd.NewRegistry(&cfg.Databases.Etcd)
		if err != nil {
			appLogger.Fatal(err.Error())
		}
		advertiseAddr := cfg.Discovery.AdvertiseAddr
		if advertiseAddr == "" {
			advertiseAddr = cfg.API.Address
		}
		discoveryStop, err = discovery.Register(cfg.Discovery.ServiceName, advertiseAddr, cfg.Discovery.TTL)
		if err != nil {
			appLogger.Fatal(err.Error())
		}
		appLogger.Info("service registered with etcd as " + cfg.Discovery.ServiceName)
	}

	appLogger.Info("Memory service started")

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	appLogger.Info("Shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.WithError(models.ErrorInfo{Message: err.Error()}).Error("HTTP server forced to shutdown")
	}
	if bridge != nil {
		if err := bridge.Shutdown(shutdownCtx); err != nil {
			appLogger.WithError(models.ErrorInfo{Message: err.Error()}).Error("Error stopping MCP bridge")
		}
	}
	if turnConsumer != nil {
		consumerCancel()
		if err := turnConsumer.Close(); err != nil {
			appLogger.WithError(models.ErrorInfo{Message: err.Error()}).Error("Error closing ingestion consumer")
		}
		if err := kafkaClient.Close(); err != nil {
			appLogger.WithError(models.ErrorInfo{Message: err.Error()}).Error("Error closing Kafka client")
		}
	}
	if discoveryStop != nil {
		close(discoveryStop)
	}
	if discovery != nil {
		if err := discovery.Close(); err != nil {
			appLogger.WithError(models.ErrorInfo{Message: err.Error()}).Error("Error closing etcd client")
		}
	}
	if err := mongo.Close(context.Background()); err != nil {
		appLogger.WithError(models.ErrorInfo{Message: err.Error()}).Error("Error disconnecting from MongoDB")
	}
	if err := mysql.Close(); err != nil {
		appLogger.WithError(models.ErrorInfo{Message: err.Error()}).Error("Error closing MySQL connection")
	}

	appLogger.Info("Memory service stopped")
}

// buildRateLimiter constructs the limiter the API configuration asks for.
// A nil limiter disables rate limiting entirely.
func buildRateLimiter(cfg *config.RateLimiterConfig, redisCfg *config.RedisConfig) (ratelimiter.RateLimiter, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	switch cfg.Algorithm {
	case "redisSlidingWindow":
		client, err := redis.GetClient(redisCfg)
		if err != nil {
			return nil, err
		}
		window := config.ParseDurationOr(cfg.Window, time.Minute)
		return ratelimiter.NewRedisSlidingWindow(client, cfg.Limit, window), nil
	default:
		rate := cfg.Rate
		if rate <= 0 {
			rate = 10
		}
		capacity := cfg.Capacity
		if capacity <= 0 {
			capacity = 20
		}
		return ratelimiter.NewTokenBucket(rate, capacity), nil
	}
}

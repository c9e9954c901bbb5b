package main

import (
	"context"
	"log"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/kenmurphy/anthropic-mastery/config"
	"github.com/kenmurphy/anthropic-mastery/internal/api/handlers"
	"github.com/kenmurphy/anthropic-mastery/internal/api/middleware"
	"github.com/kenmurphy/anthropic-mastery/internal/api/routes"
	"github.com/kenmurphy/anthropic-mastery/internal/cache"
	"github.com/kenmurphy/anthropic-mastery/internal/logger"
	"github.com/kenmurphy/anthropic-mastery/internal/providers/embedding"
	"github.com/kenmurphy/anthropic-mastery/internal/providers/llm"
	mongorepo "github.com/kenmurphy/anthropic-mastery/internal/repositories/mongo"
	pgrepo "github.com/kenmurphy/anthropic-mastery/internal/repositories/postgres"
	"github.com/kenmurphy/anthropic-mastery/internal/services"
	"github.com/kenmurphy/anthropic-mastery/internal/workers"
)

func main() {
	_ = godotenv.Load()

	l := logger.New()

	// Init MongoDB (conversations + messages)
	if err := config.InitMongo(); err != nil {
		log.Fatalf("MongoDB init error: %v", err)
	}
	if err := config.EnsureMongoIndexes(); err != nil {
		log.Fatalf("MongoDB index error: %v", err)
	}
	l.Info("MongoDB connected")

	// Init PostgreSQL (clusters + clustering runs)
	if err := config.InitPostgres(); err != nil {
		log.Fatalf("PostgreSQL init error: %v", err)
	}
	if err := config.MigratePostgres(); err != nil {
		log.Fatalf("PostgreSQL migration error: %v", err)
	}
	l.Info("PostgreSQL connected")

	// Init Redis (cluster read cache)
	if err := config.InitRedis(); err != nil {
		log.Fatalf("Redis init error: %v", err)
	}
	l.Info("Redis connected")

	ctx := context.Background()

	gemini, err := llm.NewVertexGemini(ctx,
		os.Getenv("GCP_PROJECT_ID"),
		os.Getenv("GCP_LOCATION"),
		os.Getenv("GEMINI_MODEL"),
	)
	if err != nil {
		log.Fatalf("Vertex Gemini init error: %v", err)
	}
	defer gemini.Close()

	db := config.MongoDatabase()
	messageRepo := mongorepo.NewMessageRepo(db)
	conversationRepo := mongorepo.NewConversationRepo(db)
	clusterRepo := pgrepo.NewClusterRepo(config.PostgresDB)
	runRepo := pgrepo.NewRunRepo(config.PostgresDB)

	env := config.LoadClusteringEnv()

	analysisSvc := services.NewAnalysisService(messageRepo, gemini, embedding.NewHashEmbedder(), l)
	clusteringSvc := services.NewClusteringService(
		conversationRepo,
		clusterRepo,
		runRepo,
		analysisSvc,
		gemini,
		cache.NewRedisCache(config.RedisClient),
		services.ClusteringConfig{
			AutoK:  env.AutoK,
			FixedK: env.FixedK,
			MinK:   env.MinK,
			MaxK:   env.MaxK,
		},
		l,
	)

	// Single worker instance owns all clustering scheduling. The in-process
	// lock only serializes runs within this process; run one instance per
	// deployment or add an external lock.
	worker := workers.NewClusteringWorker(
		messageRepo,
		runRepo,
		analysisSvc,
		clusteringSvc,
		workers.ClusteringWorkerConfig{
			Enabled:              env.Enabled,
			MessageThreshold:     env.MessageThreshold,
			TimeThresholdMinutes: env.TimeThresholdMinutes,
		},
		l,
	)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger(l))

	conversationSvc := services.NewConversationService(conversationRepo, messageRepo, worker)

	routes.RegisterRoutes(r, routes.Deps{
		Conversation: handlers.NewConversationHandler(conversationSvc),
		Cluster:      handlers.NewClusterHandler(clusteringSvc),
		Clustering:   handlers.NewClusteringHandler(worker, analysisSvc),
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	if err := r.Run(":" + port); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

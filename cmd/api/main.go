package main

import (
	"log"
	"os"
	"strings"

	"reorder/internal/client"
	"reorder/internal/database"
	"reorder/internal/engine"
	"reorder/internal/handler"
	"reorder/internal/locker"
	"reorder/internal/middleware"
	"reorder/internal/notifier"
	"reorder/internal/repository"
	"reorder/internal/service"
	"reorder/internal/websocket"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// @title           Recurring Order Engine API
// @version         1.0
// @description     Management API for recurring purchase orders and their executions.
// @host            localhost:8080
// @BasePath        /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	if err := godotenv.Load("configs/.env"); err != nil {
		log.Println("No configs/.env file found or error loading it")
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Str("component", "api").Logger()

	db, err := database.NewConnection(databaseDSN())
	if err != nil {
		log.Fatalf("Database connection failed: %v", err)
	}
	log.Println("Connected to PostgreSQL successfully.")

	// Per-order execution lease: redis-backed when available, in-process otherwise
	var locks engine.Locker
	if addr := os.Getenv("REDIS_ADDRESS"); addr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: addr})
		locks = locker.NewRedisLocker(rdb)
		log.Printf("Using redis execution locks at %s", addr)
	} else {
		locks = locker.NewMemoryLocker()
		log.Println("REDIS_ADDRESS not set; using in-process execution locks")
	}

	// Notification transport: kafka topic when configured, log sink otherwise
	var sink engine.NotificationSink
	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		topic := os.Getenv("KAFKA_NOTIFICATION_TOPIC")
		if topic == "" {
			topic = "notification-intents"
		}
		sink = notifier.NewKafkaSink(strings.Split(brokers, ","), topic, logger)
		log.Printf("Publishing notification intents to kafka topic %q", topic)
	} else {
		sink = notifier.NewLogSink(logger)
		log.Println("KAFKA_BROKERS not set; logging notification intents")
	}

	// External collaborators
	pricing := client.NewPricingClient(envOr("PRICING_SERVICE_URL", "http://localhost:8081"), logger)
	inventory := client.NewInventoryClient(envOr("INVENTORY_SERVICE_URL", "http://localhost:8082"), logger)
	placement := client.NewPlacementClient(envOr("ORDER_SERVICE_URL", "http://localhost:8083"), logger)

	// Set up WebSocket Hub
	wsHub := websocket.NewHub()
	go wsHub.Run()

	// Set up dependencies (Repository -> Engine -> Service -> Handler)
	txManager := repository.NewTransactionManager(db)
	orderRepo := repository.NewRecurringOrderRepository(db)
	execRepo := repository.NewExecutionRepository(db)
	store := repository.NewEngineStore(orderRepo, execRepo, txManager)

	resolver := engine.NewResolver(pricing, inventory, logger)
	dispatcher := engine.NewDispatcher()
	pipeline := engine.NewPipeline(store, resolver, placement, dispatcher, sink, locks, logger)
	retries := engine.NewRetryManager(store, logger)

	orderService := service.NewRecurringOrderService(orderRepo)
	executionService := service.NewExecutionService(orderRepo, execRepo, txManager, pipeline, retries, dispatcher, sink, wsHub, logger)

	orderHandler := handler.NewRecurringOrderHandler(orderService, executionService)
	executionHandler := handler.NewExecutionHandler(executionService)

	// Set up Gin Router
	router := gin.Default()

	// CORS configuration
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = []string{"http://localhost:5173", "http://127.0.0.1:5173"}
	corsConfig.AllowCredentials = true
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization", "Accept"}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	router.Use(cors.New(corsConfig))

	// Swagger route
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// Health check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "OK"})
	})

	// WebSocket endpoint for live execution updates
	router.GET("/ws", func(c *gin.Context) {
		websocket.ServeWs(wsHub, c, middleware.GetJWTSecret())
	})

	// Register API Routes
	orderHandler.RegisterRoutes(router.Group(""))
	executionHandler.RegisterRoutes(router.Group(""))

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	log.Printf("Server listening on :%s", port)
	if err := router.Run(":" + port); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}

func databaseDSN() string {
	dbHost := envOr("DB_HOST", "localhost")
	dbPort := envOr("DB_PORT", "5432")
	dbUser := envOr("DB_USER", "postgres")
	dbPassword := envOr("DB_PASSWORD", "postgres")
	dbName := envOr("DB_NAME", "postgres")
	dbSslMode := envOr("DB_SSLMODE", "disable")

	return "postgres://" + dbUser + ":" + dbPassword + "@" + dbHost + ":" + dbPort + "/" + dbName + "?sslmode=" + dbSslMode
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

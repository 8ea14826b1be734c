package main

import (
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/kiidfreak/Triomar-Spares-sub000/cache"
	"github.com/kiidfreak/Triomar-Spares-sub000/config"
	"github.com/kiidfreak/Triomar-Spares-sub000/database"
	"github.com/kiidfreak/Triomar-Spares-sub000/gateway"
	"github.com/kiidfreak/Triomar-Spares-sub000/handlers"
	"github.com/kiidfreak/Triomar-Spares-sub000/kafka"
	"github.com/kiidfreak/Triomar-Spares-sub000/middleware"

	"github.com/IBM/sarama"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	// Initialize logger
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load configuration", zap.Error(err))
	}

	// Initialize database
	db, err := database.InitDB(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize database", zap.Error(err))
	}
	defer db.Close()

	// Redis is optional; the catalog falls back to the database when
	// it is unreachable.
	var rdb *redis.Client
	if r, err := cache.InitRedis(cfg, logger); err != nil {
		logger.Warn("Redis unavailable, product cache disabled", zap.Error(err))
	} else {
		rdb = r
		defer rdb.Close()
	}

	// Kafka producer for best-effort domain events
	var producer sarama.SyncProducer
	if cfg.KafkaEnabled {
		p, err := kafka.InitProducer(cfg.KafkaBroker, logger)
		if err != nil {
			logger.Fatal("Failed to initialize Kafka producer", zap.Error(err))
		}
		producer = p
		defer producer.Close()
	}

	// Initialize OpenTelemetry
	shutdown, err := middleware.InitTracing("storefront")
	if err != nil {
		logger.Fatal("Failed to initialize tracing", zap.Error(err))
	}
	defer shutdown()

	// Payment gateway client
	gw := gateway.NewClient(cfg, logger)

	authHandler := handlers.NewAuthHandler(db, []byte(cfg.JWTSecret), logger)
	productHandler := handlers.NewProductHandler(db, rdb, logger)
	orderHandler := handlers.NewOrderHandler(db, producer, cfg, logger)
	paymentHandler := handlers.NewPaymentHandler(db, gw, producer, cfg, logger)
	adminHandler := handlers.NewAdminHandler(db, rdb, logger)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.LoggerMiddleware(logger))
	router.Use(middleware.MetricsMiddleware())

	router.GET("/health", handlers.HealthCheck)
	router.GET("/metrics", middleware.PrometheusHandler())

	router.POST("/auth/register", authHandler.Register)
	router.POST("/auth/login", authHandler.Login)

	router.GET("/products", productHandler.ListProducts)
	router.GET("/products/:id", productHandler.GetProduct)

	authed := router.Group("/", middleware.AuthRequired([]byte(cfg.JWTSecret)))
	{
		authed.POST("/orders", orderHandler.Checkout)
		authed.GET("/orders", orderHandler.ListOrders)
		authed.GET("/orders/:id", orderHandler.GetOrder)
		authed.POST("/orders/:id/cancel", orderHandler.CancelOrder)

		authed.POST("/payments/:method", paymentHandler.InitiatePayment)
		authed.GET("/payments/:method", paymentHandler.CheckPaymentStatus)
	}

	admin := router.Group("/admin", middleware.AuthRequired([]byte(cfg.JWTSecret)), middleware.AdminRequired())
	{
		admin.POST("/products", adminHandler.CreateProduct)
		admin.PUT("/products/:id", adminHandler.UpdateProduct)
		admin.DELETE("/products/:id", adminHandler.DeleteProduct)
		admin.GET("/orders", adminHandler.ListAllOrders)
		admin.POST("/orders/:id/advance", adminHandler.AdvanceOrderStatus)
		admin.GET("/orders/:id/payment-logs", adminHandler.GetPaymentLogs)
	}

	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: router,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start REST server", zap.Error(err))
		}
	}()

	logger.Info("Storefront started", zap.String("addr", cfg.HTTPAddr))

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")
	logger.Info("Server exited")
}

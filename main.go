package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/sourcemarket/sourcemarket-api/config"
	"github.com/sourcemarket/sourcemarket-api/controllers"
	"github.com/sourcemarket/sourcemarket-api/jobs"
	"github.com/sourcemarket/sourcemarket-api/logger"
	"github.com/sourcemarket/sourcemarket-api/middleware"
	"github.com/sourcemarket/sourcemarket-api/models"
	"github.com/sourcemarket/sourcemarket-api/realtime"
	"github.com/sourcemarket/sourcemarket-api/services"
)

const shutdownTimeout = 15 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	if err := logger.Init(logger.Options{
		Level:    cfg.LogLevel,
		Format:   cfg.LogFormat,
		Output:   cfg.LogOutput,
		FilePath: cfg.LogFile,
	}); err != nil {
		logger.Error("failed to initialize logger", "error", err)
		os.Exit(1)
	}
	logger.Info("starting SourceMarket API server", "env", cfg.GoEnv)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	// Connect to database
	if err := config.ConnectDatabase(); err != nil {
		fatal("failed to connect to database", err)
	}

	db := config.GetDB()
	if err := models.AutoMigrate(db); err != nil {
		fatal("failed to migrate database", err)
	}
	if err := models.SeedServices(db); err != nil {
		fatal("failed to seed service catalog", err)
	}
	logger.Info("database migration completed")

	broker, err := newBroker(cfg)
	if err != nil {
		fatal("failed to connect to Redis", err)
	}
	defer broker.Close()

	snapshots, err := services.InitSnapshotStore(context.Background())
	if err != nil {
		fatal("failed to initialize snapshot store", err)
	}

	services.Init(services.Dependencies{
		DB:        db,
		Broker:    broker,
		Email:     services.InitEmailService(cfg),
		Snapshots: snapshots,
		UserInfo:  services.NewAuth0Service(cfg),
	})

	scheduler, err := jobs.Start(jobs.Options{ReconcileInterval: cfg.ReconcileInterval})
	if err != nil {
		fatal("failed to start background jobs", err)
	}

	authenticate, err := middleware.EnsureValidToken(cfg)
	if err != nil {
		fatal("failed to set up JWT validation", err)
	}

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           setupRouter(authenticate, cfg.CORSAllowedOrigins),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("server is running", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fatal("failed to start server", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("server shutdown failed", "error", err)
	}
	if err := scheduler.Stop(); err != nil {
		logger.Error("failed to stop background jobs", "error", err)
	}
	services.StopNotifications()
	logger.Info("server stopped")
}

func fatal(msg string, err error) {
	logger.Error(msg, "error", err)
	os.Exit(1)
}

// newBroker uses Redis pub/sub when REDIS_ADDR is set so every instance
// sees every change; otherwise events stay in-process
func newBroker(cfg *config.Config) (realtime.Broker, error) {
	if cfg.RedisAddr == "" {
		logger.Info("REDIS_ADDR not set, using in-memory event broker")
		return realtime.NewMemoryBroker(), nil
	}

	client, err := realtime.NewRedisClient(realtime.RedisOptions{
		Addrs:    strings.Split(cfg.RedisAddr, ","),
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err != nil {
		return nil, err
	}
	logger.Info("using Redis event broker", "addr", cfg.RedisAddr)
	return realtime.NewRedisBroker(client), nil
}

// setupRouter builds the HTTP handler. authenticate validates bearer tokens
// on every non-public route.
func setupRouter(authenticate gin.HandlerFunc, allowedOrigins []string) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), middleware.RequestLogger())

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = allowedOrigins
	corsConfig.AllowHeaders = append(corsConfig.AllowHeaders, "Authorization", middleware.RequestIDHeader)
	corsConfig.ExposeHeaders = []string{middleware.RequestIDHeader}
	if len(allowedOrigins) == 0 {
		corsConfig.AllowAllOrigins = true
	}
	router.Use(cors.New(corsConfig))

	api := router.Group("/api")
	{
		// Health check endpoint
		api.GET("/health", healthCheck)

		// Database status endpoint
		api.GET("/database/status", databaseStatus)
	}
	controllers.RegisterRoutes(api, authenticate)

	return router
}

// healthCheck handles the health check endpoint
func healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "SourceMarket API is running",
	})
}

// databaseStatus checks database connectivity and returns table information
func databaseStatus(c *gin.Context) {
	db := config.GetDB()
	if db == nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "DATABASE_ERROR",
				"message": "Database is not initialized",
			},
		})
		return
	}

	// Get the underlying SQL database to check connection
	sqlDB, err := db.DB()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "DATABASE_ERROR",
				"message": "Failed to get database instance",
			},
		})
		return
	}

	// Ping the database to verify connection
	if err := sqlDB.PingContext(c.Request.Context()); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "DATABASE_CONNECTION_ERROR",
				"message": "Database connection failed",
			},
		})
		return
	}

	tables, err := db.WithContext(c.Request.Context()).Migrator().GetTables()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "DATABASE_QUERY_ERROR",
				"message": "Failed to query tables",
			},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Database connected",
		"tables":  tables,
	})
}

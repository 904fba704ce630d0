package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"push-gateway/internal/api/routes"
	"push-gateway/internal/bus"
	"push-gateway/internal/config"
	"push-gateway/internal/database"
	"push-gateway/internal/ingest"
	"push-gateway/internal/presence"
	"push-gateway/internal/websocket"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}

	slog.Info("Starting push gateway")

	// Initialize Redis connection
	redisClient, err := database.NewRedisConnection(cfg.Redis)
	if err != nil {
		slog.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	defer redisClient.Close()

	// Initialize MySQL connection
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		cfg.Database.User, cfg.Database.Password,
		cfg.Database.Host, cfg.Database.Port, cfg.Database.DBName)
	db, err := database.NewMySQLConnection(dsn)
	if err != nil {
		slog.Error("Failed to connect to MySQL", "error", err)
		os.Exit(1)
	}
	store := database.NewGormStore(db)

	eventBus := bus.NewRedisBus(redisClient)
	tracker := presence.NewRedisPresence(redisClient)
	voice := presence.NewRedisVoice(redisClient)

	// Initialize WebSocket hub
	hub := websocket.NewHub(store, eventBus, tracker, voice, slog.Default())
	go hub.Run()

	// Initialize Kafka ingest bridge
	ingestCtx, stopIngest := context.WithCancel(context.Background())
	consumer, err := ingest.NewConsumer(cfg.Kafka, eventBus, slog.Default())
	if err != nil {
		slog.Error("Failed to create Kafka consumer", "error", err)
		os.Exit(1)
	}
	go func() {
		if err := consumer.Run(ingestCtx); err != nil && ingestCtx.Err() == nil {
			slog.Error("Kafka ingest stopped", "error", err)
		}
	}()

	// Initialize router
	router := routes.NewRouter(hub, cfg.JWT.Secret)
	router.SetupRoutes()

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:      router.GetEngine(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		slog.Info("Server starting", "address", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("Server shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	stopIngest()
	if err := consumer.Close(); err != nil {
		slog.Error("Kafka consumer close failed", "error", err)
	}
	hub.Stop()

	if err := server.Shutdown(ctx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
	}

	slog.Info("Server stopped")
}

package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	"github.com/ndiakov/auth-service/internal/api"
	"github.com/ndiakov/auth-service/internal/config"
	"github.com/ndiakov/auth-service/internal/handler"
	"github.com/ndiakov/auth-service/internal/infrastructure/auth"
	"github.com/ndiakov/auth-service/internal/infrastructure/kafka"
	"github.com/ndiakov/auth-service/internal/infrastructure/redis"
	"github.com/ndiakov/auth-service/internal/observability"
	core "github.com/ndiakov/auth-service/internal/repository/postgres"
	service "github.com/ndiakov/auth-service/internal/services"
)

func main() {
	// Логи, метрики, трейсы
	shutdown, metricsHandler := observability.Setup("auth-service")
	defer shutdown(context.Background())

	cfg := config.Load()

	// Подключаемся к Postgres
	db, err := sql.Open("postgres", cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("Failed to connect to Postgres: %v", err)
	}
	defer db.Close()

	// Инициализируем зависимости
	credRepo := core.NewPostgresCredentialRepository(db)
	auditRepo := core.NewPostgresAuditRepository(db)
	redisClient := redis.NewClient(cfg.RedisAddr)
	defer redisClient.Close()
	producer := kafka.NewProducer(cfg.KafkaBrokers)
	defer producer.Close()

	tokens := auth.NewTokenService(cfg.AccessSecret, cfg.RefreshSecret, cfg.AccessTTL, cfg.RefreshTTL)
	svc := service.NewAuthService(credRepo, tokens, redisClient, producer)

	// Аудит-консьюмер
	consumerCtx, stopConsumer := context.WithCancel(context.Background())
	auditConsumer := kafka.NewConsumer(cfg.KafkaBrokers, "auth-events", "auth-service-audit", auditRepo)
	go auditConsumer.Consume(consumerCtx)
	defer auditConsumer.Close()
	defer stopConsumer()

	// Роутер
	h := handler.NewHandler(svc, cfg.RefreshTTL)
	router := api.SetupRouter(h, tokens, metricsHandler)

	server := &http.Server{
		Addr:    ":" + cfg.AppPort,
		Handler: router,
	}
	go func() {
		log.Printf("Starting server on :%s", cfg.AppPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Graceful shutdown
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server shutdown failed: %v", err)
	}
	log.Println("Server stopped")
}

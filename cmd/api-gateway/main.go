// Package main API Gateway 服务入口
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/kursovik/kursovik-ai-api/internal/application/usage"
	"github.com/kursovik/kursovik-ai-api/internal/application/work"
	"github.com/kursovik/kursovik-ai-api/internal/config"
	"github.com/kursovik/kursovik-ai-api/internal/domain/entity"
	"github.com/kursovik/kursovik-ai-api/internal/domain/service"
	einocb "github.com/kursovik/kursovik-ai-api/internal/infrastructure/eino/callback"
	"github.com/kursovik/kursovik-ai-api/internal/infrastructure/messaging"
	"github.com/kursovik/kursovik-ai-api/internal/infrastructure/persistence/redis"
	"github.com/kursovik/kursovik-ai-api/internal/infrastructure/persistence/sqlite"
	"github.com/kursovik/kursovik-ai-api/internal/interfaces/http/handler"
	"github.com/kursovik/kursovik-ai-api/internal/interfaces/http/router"
	"github.com/kursovik/kursovik-ai-api/pkg/logger"
	"github.com/kursovik/kursovik-ai-api/pkg/tracer"
	"github.com/kursovik/kursovik-ai-api/pkg/utils"
)

// Version 版本信息，构建时注入
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	// 加载 .env 文件（如果存在）
	_ = godotenv.Load()

	// 加载配置
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 初始化日志
	logger.Init(
		cfg.Observability.Logging.Level,
		cfg.Observability.Logging.Format,
	)

	ctx := context.Background()
	log := logger.FromContext(ctx)
	log.Info("starting api-gateway",
		"version", Version,
		"build_time", BuildTime,
		"env", cfg.App.Env,
	)

	// 初始化追踪
	shutdown, err := tracer.Init(ctx, tracer.Config{
		ServiceName: cfg.App.Name,
		Endpoint:    cfg.Observability.Tracing.Endpoint,
		SampleRate:  cfg.Observability.Tracing.SampleRate,
		Enabled:     cfg.Observability.Tracing.Enabled,
	})
	if err != nil {
		log.Error("failed to init tracer", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := shutdown(ctx); err != nil {
			log.Error("failed to shutdown tracer", "error", err)
		}
	}()

	// SQLite
	dbClient, err := sqlite.NewClient(&cfg.Database.SQLite)
	if err != nil {
		logger.Fatal(ctx, "failed to init sqlite", err)
	}
	defer func() { _ = dbClient.Close() }()

	if err := dbClient.AutoMigrate(&entity.Order{}, &entity.LLMUsageEvent{}); err != nil {
		logger.Fatal(ctx, "failed to migrate schema", err)
	}

	// Redis
	redisClient, err := redis.NewClient(&cfg.Cache.Redis)
	if err != nil {
		logger.Fatal(ctx, "failed to init redis", err)
	}
	defer func() { _ = redisClient.Close() }()

	// 仓储
	orderRepo := sqlite.NewOrderRepository(dbClient)
	usageRepo := sqlite.NewLLMUsageEventRepository(dbClient)
	txManager := sqlite.NewTxManager(dbClient)

	// Eino 全局 callbacks：指标/追踪/用量落库。
	// 网关自身不跑生成，但保持初始化让两个进程的行为一致。
	einocb.Init(usage.NewRecorder(usageRepo))

	// 消息与进度
	producer := messaging.NewProducer(redisClient.Redis(), int64(cfg.Messaging.RedisStream.MaxLen))
	progressStore := redis.NewProgressStore(redisClient)
	rateLimiter := redis.NewRateLimiter(redisClient)
	statsCache := redis.NewCache(redisClient)

	// 计价
	pricing := service.NewPriceCalculator(cfg.Billing.BasePrice, cfg.Billing.ModelMultipliers)

	// JWT
	jwtManager := utils.NewJWTManager(cfg.Security.JWT.Secret, cfg.Security.JWT.Issuer)

	// 处理器
	handlers := router.Handlers{
		Health:  handler.NewHealthHandler(dbClient, redisClient),
		Order:   handler.NewOrderHandler(orderRepo, txManager, producer, progressStore, pricing, cfg),
		Plan:    handler.NewPlanHandler(work.NewPagesParams(&cfg.Generation)),
		Price:   handler.NewPriceHandler(pricing, cfg),
		Samples: handler.NewSamplesHandler(cfg),
		Admin:   handler.NewAdminHandler(orderRepo, producer, jwtManager, statsCache, cfg),
	}

	r := router.New(cfg, handlers, rateLimiter)

	// 创建 HTTP 服务器
	addr := fmt.Sprintf("%s:%d", cfg.Server.HTTP.Host, cfg.Server.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r.Engine(),
		ReadTimeout:  cfg.Server.HTTP.ReadTimeout,
		WriteTimeout: cfg.Server.HTTP.WriteTimeout,
		IdleTimeout:  cfg.Server.HTTP.IdleTimeout,
	}

	// 启动服务器
	go func() {
		log.Info("http server starting", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("http server error", "error", err)
			os.Exit(1)
		}
	}()

	// 等待中断信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server...")

	// 优雅关闭
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", "error", err)
	}

	log.Info("server exited")
}

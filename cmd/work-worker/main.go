// Package main 文档生成执行器入口（work-worker）
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
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kursovik/kursovik-ai-api/internal/application/usage"
	"github.com/kursovik/kursovik-ai-api/internal/application/work"
	"github.com/kursovik/kursovik-ai-api/internal/application/work/content"
	"github.com/kursovik/kursovik-ai-api/internal/config"
	"github.com/kursovik/kursovik-ai-api/internal/domain/entity"
	"github.com/kursovik/kursovik-ai-api/internal/domain/service"
	"github.com/kursovik/kursovik-ai-api/internal/infrastructure/converter"
	einocb "github.com/kursovik/kursovik-ai-api/internal/infrastructure/eino/callback"
	"github.com/kursovik/kursovik-ai-api/internal/infrastructure/llm"
	"github.com/kursovik/kursovik-ai-api/internal/infrastructure/messaging"
	"github.com/kursovik/kursovik-ai-api/internal/infrastructure/notify"
	"github.com/kursovik/kursovik-ai-api/internal/infrastructure/persistence/redis"
	"github.com/kursovik/kursovik-ai-api/internal/infrastructure/persistence/sqlite"
	"github.com/kursovik/kursovik-ai-api/internal/workflow/chain"
	workflowprompt "github.com/kursovik/kursovik-ai-api/internal/workflow/prompt"
	"github.com/kursovik/kursovik-ai-api/pkg/logger"
	"github.com/kursovik/kursovik-ai-api/pkg/tracer"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Init(cfg.Observability.Logging.Level, cfg.Observability.Logging.Format)
	ctx := context.Background()

	shutdown, err := tracer.Init(ctx, tracer.Config{
		ServiceName: "work-worker",
		Endpoint:    cfg.Observability.Tracing.Endpoint,
		SampleRate:  cfg.Observability.Tracing.SampleRate,
		Enabled:     cfg.Observability.Tracing.Enabled,
	})
	if err != nil {
		logger.Fatal(ctx, "failed to init tracer", err)
	}
	defer func() { _ = shutdown(ctx) }()

	dbClient, err := sqlite.NewClient(&cfg.Database.SQLite)
	if err != nil {
		logger.Fatal(ctx, "failed to init sqlite", err)
	}
	defer func() { _ = dbClient.Close() }()

	if err := dbClient.AutoMigrate(&entity.Order{}, &entity.LLMUsageEvent{}); err != nil {
		logger.Fatal(ctx, "failed to migrate schema", err)
	}

	redisClient, err := redis.NewClient(&cfg.Cache.Redis)
	if err != nil {
		logger.Fatal(ctx, "failed to init redis", err)
	}
	defer func() { _ = redisClient.Close() }()

	orderRepo := sqlite.NewOrderRepository(dbClient)
	usageRepo := sqlite.NewLLMUsageEventRepository(dbClient)

	// Eino 全局 callbacks：LLM 指标、追踪和按订单的用量落库
	einocb.Init(usage.NewRecorder(usageRepo))

	// 生成链路
	factory := llm.NewEinoFactory(cfg)
	assistant := chain.NewAssistantChain(factory)
	registry := workflowprompt.NewRegistry()
	contentGen := content.NewGenerator(assistant, registry, work.NewContentOptions(cfg))

	conv := converter.NewConverter(&cfg.Converter)
	progressStore := redis.NewProgressStore(redisClient)
	notifier := notify.NewWebhookNotifier(&cfg.Notify)

	workGen := work.NewWorkGenerator(contentGen, conv, orderRepo, progressStore, notifier, work.NewConfig(cfg))

	consumer := messaging.NewConsumer(redisClient.Redis(), messaging.ConsumerConfig{
		Stream:        messaging.StreamWorkGen,
		Group:         messaging.ConsumerGroupWorkWorker,
		ConsumerName:  hostnameConsumerName(),
		BlockTimeout:  cfg.Messaging.RedisStream.BlockTimeout,
		ClaimInterval: cfg.Messaging.RedisStream.ClaimInterval,
		RetryLimit:    cfg.Messaging.RedisStream.RetryLimit,
		Backoff: messaging.BackoffConfig{
			Initial:    cfg.Messaging.RedisStream.RetryBackoff.Initial,
			Max:        cfg.Messaging.RedisStream.RetryBackoff.Max,
			Multiplier: cfg.Messaging.RedisStream.RetryBackoff.Multiplier,
		},
	})

	consumer.RegisterHandler(messaging.MessageTypeWorkGen, func(msgCtx context.Context, msg *messaging.Message) error {
		var job messaging.WorkGenJobMessage
		if err := msg.UnmarshalPayload(&job); err != nil {
			return fmt.Errorf("unmarshal work gen payload: %w", err)
		}

		order, err := orderRepo.GetByID(msgCtx, job.OrderID)
		if err != nil {
			return err
		}
		if order == nil {
			return fmt.Errorf("order not found: %s", job.OrderID)
		}

		// 重复投递（包括崩溃后的重认领）跳过已完成的订单；
		// 失败订单重跑，Generate 自己会重置状态。
		if order.Status == entity.OrderStatusCompleted {
			logger.Info(msgCtx, "order already completed, skipping", "order_id", order.ID)
			return nil
		}

		msgCtx = service.WithOrder(msgCtx, order.ID)
		return workGen.Generate(msgCtx, order)
	})

	if err := consumer.Start(ctx); err != nil {
		logger.Fatal(ctx, "failed to start consumer", err)
	}

	// DLQ 水位监控
	go consumer.MonitorDLQ(ctx, 100)

	// 独立的指标端口，网关的 /metrics 属于 HTTP 进程
	var metricsSrv *http.Server
	if cfg.Observability.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle(cfg.Observability.Metrics.Path, promhttp.Handler())
		metricsSrv = &http.Server{
			Addr:    fmt.Sprintf(":%d", cfg.Observability.Metrics.Port),
			Handler: mux,
		}
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error(ctx, "metrics server error", err)
			}
		}()
	}

	log := logger.FromContext(ctx)
	log.Info("work-worker started", "stream", messaging.StreamWorkGen, "group", messaging.ConsumerGroupWorkWorker)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("work-worker shutting down")
	consumer.Stop()

	if metricsSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsSrv.Shutdown(shutdownCtx)
	}
}

func hostnameConsumerName() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "worker"
	}
	return fmt.Sprintf("%s-%d", host, os.Getpid())
}

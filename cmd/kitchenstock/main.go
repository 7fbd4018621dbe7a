package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"

	"github.com/kitchenstock/kitchenstock/cmd/kitchenstock/cli"
	"github.com/kitchenstock/kitchenstock/internal/app"
	"github.com/kitchenstock/kitchenstock/internal/balance"
	"github.com/kitchenstock/kitchenstock/internal/closeday"
	"github.com/kitchenstock/kitchenstock/internal/ingredient"
	"github.com/kitchenstock/kitchenstock/internal/observability"
	"github.com/kitchenstock/kitchenstock/internal/platform/cache"
	"github.com/kitchenstock/kitchenstock/internal/platform/db"
	"github.com/kitchenstock/kitchenstock/internal/settings"
	"github.com/kitchenstock/kitchenstock/internal/stock"
	"github.com/kitchenstock/kitchenstock/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := app.NewLogger(cfg, "kitchenstock")

	clock, err := cfg.Clock()
	if err != nil {
		logger.Error("load business clock", slog.Any("error", err))
		os.Exit(1)
	}

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()
	services := app.NewServices(cfg, pool, redisClient, clock, metrics.Jobs(), logger)

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
	jobClient, err := jobs.NewClient(redisOpts)
	if err != nil {
		logger.Error("init job client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()

	if len(os.Args) > 1 {
		code := cli.Run(ctx, os.Args[1:], cli.Deps{
			CloseDay: services.CloseDay,
			Enqueuer: jobClient,
			Clock:    clock,
		})
		_ = jobClient.Close()
		_ = redisClient.Close()
		pool.Close()
		os.Exit(code)
	}

	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:  logger,
		Config:  cfg,
		Clock:   clock,
		Metrics: metrics,
		Health: map[string]app.Pinger{
			"postgres": pool,
			"redis":    cache.Pinger{Client: redisClient},
		},
		StockInHandler:    stock.NewHandler(stock.DirectionIn, services.Stock, clock, logger),
		StockOutHandler:   stock.NewHandler(stock.DirectionOut, services.Stock, clock, logger),
		CloseDayHandler:   closeday.NewHandler(services.CloseDay, jobClient, clock, logger),
		BalanceHandler:    balance.NewHandler(services.Balance, clock, logger),
		IngredientHandler: ingredient.NewHandler(services.Ingredients, logger),
		SettingsHandler:   settings.NewHandler(services.Settings, logger),
		JobHandler:        jobs.NewHandler(inspector, logger),
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("http server listening", slog.String("addr", cfg.AppAddr), slog.String("timezone", clock.Location().String()))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}

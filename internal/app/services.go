package app

import (
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/kitchenstock/kitchenstock/internal/balance"
	"github.com/kitchenstock/kitchenstock/internal/closeday"
	"github.com/kitchenstock/kitchenstock/internal/ingredient"
	jobmetrics "github.com/kitchenstock/kitchenstock/internal/jobs"
	"github.com/kitchenstock/kitchenstock/internal/settings"
	"github.com/kitchenstock/kitchenstock/internal/shared"
	"github.com/kitchenstock/kitchenstock/internal/snapshot"
	"github.com/kitchenstock/kitchenstock/internal/stock"
)

// Services holds the domain services shared by the API and the worker.
type Services struct {
	Clock       *shared.BusinessClock
	Ingredients *ingredient.Repository
	Settings    *settings.Service
	Stock       *stock.Service
	CloseDay    *closeday.Service
	Balance     *balance.Service
	Cache       *balance.Cache
}

// NewServices wires repositories and services over the pool and Redis client.
func NewServices(cfg *Config, pool *pgxpool.Pool, redisClient *redis.Client, clock *shared.BusinessClock, metrics *jobmetrics.Metrics, logger *slog.Logger) *Services {
	reportCache := balance.NewCache(redisClient, cfg.ReportCacheTTL)
	ingredients := ingredient.NewRepository(pool)
	stockRepo := stock.NewRepository(pool)

	settingsService := settings.NewService(settings.NewRepository(pool), settings.Config{
		DefaultCron:      cfg.CloseDayCron,
		DefaultThreshold: cfg.DefaultLowStockThreshold(),
		Timezone:         clock.Location().String(),
	}, reportCache, logger)

	return &Services{
		Clock:       clock,
		Ingredients: ingredients,
		Settings:    settingsService,
		Stock:       stock.NewService(stockRepo, ingredients, clock, logger),
		CloseDay: closeday.NewService(closeday.NewRepository(pool), clock, closeday.Config{
			Timeout: cfg.CloseDayTimeout,
			Cache:   reportCache,
			Metrics: metrics,
			Logger:  logger,
		}),
		Balance: balance.NewService(snapshot.NewStore(pool), stockRepo, ingredients, settingsService, reportCache, clock, logger),
		Cache:   reportCache,
	}
}

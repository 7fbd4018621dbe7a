package settings

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/robfig/cron/v3"
	"github.com/shopspring/decimal"

	"github.com/kitchenstock/kitchenstock/internal/platform/httpx"
)

// Store abstracts key/value persistence.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
}

// Invalidator drops cached reports that depend on settings.
type Invalidator interface {
	Bump(ctx context.Context) error
}

// Config supplies the fallbacks used when a key has never been set.
type Config struct {
	DefaultCron      string
	DefaultThreshold decimal.Decimal
	Timezone         string
}

// Service resolves settings with fallbacks.
type Service struct {
	store  Store
	cfg    Config
	cache  Invalidator
	logger *slog.Logger
}

// NewService builds Service.
func NewService(store Store, cfg Config, cache Invalidator, logger *slog.Logger) *Service {
	if cfg.DefaultCron == "" {
		cfg.DefaultCron = DefaultCloseDayCron
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, cfg: cfg, cache: cache, logger: logger.With(slog.String("component", "settings"))}
}

// All returns every setting resolved against its fallback.
func (s *Service) All(ctx context.Context) Settings {
	schedule := s.CloseDaySchedule(ctx)
	return Settings{
		LowStockThreshold: s.LowStockThreshold(ctx),
		CloseDayCron:      schedule.Cron,
		CloseDayTimezone:  schedule.Timezone,
	}
}

// LowStockThreshold returns the stored fallback threshold or the configured default.
func (s *Service) LowStockThreshold(ctx context.Context) decimal.Decimal {
	raw, ok := s.get(ctx, KeyLowStockThreshold)
	if !ok {
		return s.cfg.DefaultThreshold
	}
	value, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil || value.IsNegative() {
		s.logger.Warn("ignoring malformed threshold setting", slog.String("value", raw))
		return s.cfg.DefaultThreshold
	}
	return value
}

// SetLowStockThreshold stores a new fallback threshold.
func (s *Service) SetLowStockThreshold(ctx context.Context, value decimal.Decimal) (decimal.Decimal, error) {
	if value.IsNegative() {
		return decimal.Zero, ErrInvalidThreshold
	}
	if err := s.store.Set(ctx, KeyLowStockThreshold, value.String()); err != nil {
		return decimal.Zero, err
	}
	s.bump(ctx)
	return value, nil
}

// CloseDaySchedule returns the stored cron, always bound to the business timezone.
func (s *Service) CloseDaySchedule(ctx context.Context) Schedule {
	expr, ok := s.get(ctx, KeyCloseDayCron)
	if !ok || ValidateCron(expr) != nil {
		if ok {
			s.logger.Warn("ignoring malformed close-day cron", slog.String("value", expr))
		}
		expr = s.cfg.DefaultCron
	}
	return Schedule{Cron: expr, Timezone: s.cfg.Timezone}
}

// SetCloseDaySchedule stores a new cron expression. A timezone may be passed
// for compatibility but must equal the business timezone.
func (s *Service) SetCloseDaySchedule(ctx context.Context, expr, timezone string) (Schedule, error) {
	expr = strings.TrimSpace(expr)
	if err := ValidateCron(expr); err != nil {
		return Schedule{}, err
	}
	if timezone != "" && timezone != s.cfg.Timezone {
		return Schedule{}, ErrTimezoneFixed
	}
	if err := s.store.Set(ctx, KeyCloseDayCron, expr); err != nil {
		return Schedule{}, err
	}
	if err := s.store.Set(ctx, KeyCloseDayTimezone, s.cfg.Timezone); err != nil {
		return Schedule{}, err
	}
	s.logger.Info("close-day schedule updated", slog.String("cron", expr), slog.String("timezone", s.cfg.Timezone))
	return Schedule{Cron: expr, Timezone: s.cfg.Timezone}, nil
}

// ValidateCron accepts standard five-field expressions and descriptors such as @daily.
func ValidateCron(expr string) error {
	if expr == "" {
		return httpx.NewError(httpx.ErrValidation, "settings: cron expression is required")
	}
	if strings.Contains(expr, "TZ=") {
		return ErrTimezoneFixed
	}
	if _, err := cron.ParseStandard(expr); err != nil {
		return httpx.NewError(httpx.ErrValidation, fmt.Sprintf("settings: invalid cron expression %q: %v", expr, err))
	}
	return nil
}

func (s *Service) get(ctx context.Context, key string) (string, bool) {
	raw, ok, err := s.store.Get(ctx, key)
	if err != nil {
		s.logger.Warn("settings lookup failed, using default", slog.String("key", key), slog.Any("error", err))
		return "", false
	}
	if !ok || strings.TrimSpace(raw) == "" {
		return "", false
	}
	return raw, true
}

func (s *Service) bump(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Bump(ctx); err != nil {
		s.logger.Warn("report cache bump failed", slog.Any("error", err))
	}
}

package settings

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/kitchenstock/kitchenstock/internal/platform/httpx"
)

type settingsService interface {
	All(ctx context.Context) Settings
	SetLowStockThreshold(ctx context.Context, value decimal.Decimal) (decimal.Decimal, error)
	SetCloseDaySchedule(ctx context.Context, expr, timezone string) (Schedule, error)
}

// Handler exposes the admin settings endpoints.
type Handler struct {
	service  settingsService
	validate *validator.Validate
	logger   *slog.Logger
}

// NewHandler constructs a settings handler.
func NewHandler(service settingsService, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{service: service, validate: validator.New(), logger: logger}
}

// MountRoutes attaches settings routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.getAll)
	r.Patch("/low-stock-threshold", h.updateLowStockThreshold)
	r.Patch("/close-day", h.updateCloseDay)
}

type thresholdRequest struct {
	Value *decimal.Decimal `json:"value" validate:"required"`
}

type closeDayRequest struct {
	Cron     string `json:"cron" validate:"required,max=120"`
	Timezone string `json:"timezone" validate:"omitempty,max=64"`
}

func (h *Handler) getAll(w http.ResponseWriter, r *http.Request) {
	httpx.JSON(w, http.StatusOK, h.service.All(r.Context()))
}

func (h *Handler) updateLowStockThreshold(w http.ResponseWriter, r *http.Request) {
	var req thresholdRequest
	if err := httpx.DecodeAndValidate(r, h.validate, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	value, err := h.service.SetLowStockThreshold(r.Context(), *req.Value)
	if err != nil {
		h.fail(w, "update low stock threshold", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{KeyLowStockThreshold: value})
}

func (h *Handler) updateCloseDay(w http.ResponseWriter, r *http.Request) {
	var req closeDayRequest
	if err := httpx.DecodeAndValidate(r, h.validate, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	schedule, err := h.service.SetCloseDaySchedule(r.Context(), req.Cron, req.Timezone)
	if err != nil {
		h.fail(w, "update close-day schedule", err)
		return
	}
	httpx.JSON(w, http.StatusOK, schedule)
}

func (h *Handler) fail(w http.ResponseWriter, msg string, err error) {
	if !httpx.IsClientError(err) {
		h.logger.Error(msg, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

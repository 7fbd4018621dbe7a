package closeday

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/kitchenstock/kitchenstock/internal/platform/httpx"
	"github.com/kitchenstock/kitchenstock/internal/shared"
	"github.com/kitchenstock/kitchenstock/internal/stock"
)

type closeService interface {
	CloseDay(ctx context.Context, input Input) (Result, error)
	Status(ctx context.Context, date time.Time) (Status, error)
}

// Enqueuer queues a close on the background worker.
type Enqueuer interface {
	EnqueueCloseDay(ctx context.Context, date time.Time, dirs []stock.Direction, actorID int64) (string, error)
}

// Handler exposes manual close-day endpoints.
type Handler struct {
	service  closeService
	enqueuer Enqueuer
	clock    *shared.BusinessClock
	validate *validator.Validate
	logger   *slog.Logger
}

// NewHandler constructs a close-day handler. enqueuer may be nil, in which
// case async requests run inline.
func NewHandler(service closeService, enqueuer Enqueuer, clock *shared.BusinessClock, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{service: service, enqueuer: enqueuer, clock: clock, validate: validator.New(), logger: logger}
}

// MountRoutes attaches /inventory/close-day routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/", h.closeBoth)
	r.Get("/{date}", h.status)
}

// CloseDirection returns the handler for POST /stock-{in,out}/close-day.
func (h *Handler) CloseDirection(dir stock.Direction) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.close(w, r, []stock.Direction{dir})
	}
}

type closeRequest struct {
	Date  string `json:"date" validate:"required"`
	Async bool   `json:"async"`
}

func (h *Handler) closeBoth(w http.ResponseWriter, r *http.Request) {
	h.close(w, r, stock.AllDirections())
}

func (h *Handler) close(w http.ResponseWriter, r *http.Request, dirs []stock.Direction) {
	var req closeRequest
	if err := httpx.DecodeAndValidate(r, h.validate, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	clock := shared.ClockOr(r.Context(), h.clock)
	date, err := clock.ParseDate(req.Date)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if date.After(clock.Today()) {
		httpx.RespondError(w, shared.ErrFutureDate)
		return
	}
	actor := shared.ActorFromContext(r.Context())

	if req.Async && h.enqueuer != nil {
		taskID, err := h.enqueuer.EnqueueCloseDay(r.Context(), date, dirs, actor)
		if err != nil {
			h.fail(w, "enqueue close-day", err)
			return
		}
		httpx.JSON(w, http.StatusAccepted, map[string]any{"queued": true, "taskId": taskID, "date": req.Date})
		return
	}

	result, err := h.service.CloseDay(r.Context(), Input{Date: date, Directions: dirs, Source: SourceManual, ActorID: actor})
	if err != nil {
		h.fail(w, "close-day", err)
		return
	}
	httpx.JSON(w, http.StatusOK, newResultResponse(result))
}

func (h *Handler) status(w http.ResponseWriter, r *http.Request) {
	date, err := shared.ClockOr(r.Context(), h.clock).ParseDate(chi.URLParam(r, "date"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	status, err := h.service.Status(r.Context(), date)
	if err != nil {
		h.fail(w, "close-day status", err)
		return
	}
	resp := statusResponse{Date: shared.FormatDate(status.Date), Closed: status.Closed}
	if run := status.Run; run != nil {
		resp.RunCount = run.RunCount
		resp.LastSource = run.LastSource
		resp.FirstClosedAt = &run.FirstClosedAt
		resp.LastClosedAt = &run.LastClosedAt
		resp.Counts = map[stock.Direction]countsResponse{
			stock.DirectionIn:  {Headers: run.HeadersIn, Items: run.ItemsIn, Snapshots: run.SnapshotsIn},
			stock.DirectionOut: {Headers: run.HeadersOut, Items: run.ItemsOut, Snapshots: run.SnapshotsOut},
		}
	}
	httpx.JSON(w, http.StatusOK, resp)
}

func (h *Handler) fail(w http.ResponseWriter, msg string, err error) {
	if !httpx.IsClientError(err) {
		h.logger.Error(msg, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

type directionResponse struct {
	Direction       stock.Direction `json:"direction"`
	Headers         int             `json:"headers"`
	Items           int             `json:"items"`
	Snapshots       int             `json:"snapshots"`
	Pruned          int64           `json:"pruned"`
	ReplacedHistory int64           `json:"replacedHistory"`
	Quantity        decimal.Decimal `json:"quantity"`
}

type resultResponse struct {
	Success    bool                `json:"success"`
	Date       string              `json:"date"`
	Run        int                 `json:"run"`
	ClosedAt   time.Time           `json:"closedAt"`
	Directions []directionResponse `json:"directions"`
}

type countsResponse struct {
	Headers   int `json:"headers"`
	Items     int `json:"items"`
	Snapshots int `json:"snapshots"`
}

type statusResponse struct {
	Date          string                             `json:"date"`
	Closed        bool                               `json:"closed"`
	RunCount      int                                `json:"runCount,omitempty"`
	LastSource    Source                             `json:"lastSource,omitempty"`
	FirstClosedAt *time.Time                         `json:"firstClosedAt,omitempty"`
	LastClosedAt  *time.Time                         `json:"lastClosedAt,omitempty"`
	Counts        map[stock.Direction]countsResponse `json:"counts,omitempty"`
}

func newResultResponse(r Result) resultResponse {
	resp := resultResponse{
		Success:  r.Success,
		Date:     shared.FormatDate(r.Date),
		Run:      r.Run,
		ClosedAt: r.ClosedAt,
	}
	for _, dr := range r.Directions {
		resp.Directions = append(resp.Directions, directionResponse{
			Direction:       dr.Direction,
			Headers:         dr.Headers,
			Items:           dr.Items,
			Snapshots:       dr.Snapshots,
			Pruned:          dr.Pruned,
			ReplacedHistory: dr.ReplacedHistory,
			Quantity:        dr.Quantity,
		})
	}
	return resp
}

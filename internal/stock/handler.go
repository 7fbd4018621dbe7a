package stock

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/kitchenstock/kitchenstock/internal/platform/httpx"
	"github.com/kitchenstock/kitchenstock/internal/shared"
)

type ledgerService interface {
	CreateDaily(ctx context.Context, dir Direction, input CreateDailyInput) (DailyHeader, error)
	GetDaily(ctx context.Context, dir Direction, publicID uuid.UUID) (DailyHeader, error)
	ListToday(ctx context.Context, dir Direction) ([]DailyHeader, error)
	ListHistory(ctx context.Context, dir Direction, from, to time.Time) ([]DailyHeader, error)
	UpdateDaily(ctx context.Context, dir Direction, publicID uuid.UUID, input UpdateDailyInput) (DailyHeader, error)
	DeleteDaily(ctx context.Context, dir Direction, publicID uuid.UUID) error
	AddItem(ctx context.Context, dir Direction, dailyID uuid.UUID, input AddItemInput) (DailyItem, error)
	UpdateItem(ctx context.Context, dir Direction, itemID uuid.UUID, input UpdateItemInput) (DailyItem, error)
	RemoveItem(ctx context.Context, dir Direction, itemID uuid.UUID) error
	ListArchived(ctx context.Context, dir Direction, from, to time.Time) ([]HistoryHeader, error)
	GetArchived(ctx context.Context, dir Direction, publicID uuid.UUID) (HistoryHeader, error)
}

// Handler exposes one direction's ledger endpoints.
type Handler struct {
	dir      Direction
	service  ledgerService
	clock    *shared.BusinessClock
	validate *validator.Validate
	logger   *slog.Logger
}

// NewHandler constructs a ledger handler bound to dir.
func NewHandler(dir Direction, service ledgerService, clock *shared.BusinessClock, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		dir:      dir,
		service:  service,
		clock:    clock,
		validate: validator.New(),
		logger:   logger.With(slog.String("direction", dir.String())),
	}
}

// MountRoutes attaches the daily and history routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/dailies", func(r chi.Router) {
		r.Post("/", h.createDaily)
		r.Get("/today", h.listToday)
		r.Get("/history", h.listHistory)
		r.Patch("/items/{itemID}", h.updateItem)
		r.Delete("/items/{itemID}", h.removeItem)
		r.Get("/{dailyID}", h.getDaily)
		r.Patch("/{dailyID}", h.updateDaily)
		r.Delete("/{dailyID}", h.deleteDaily)
		r.Post("/{dailyID}/items", h.addItem)
	})
	r.Get("/histories", h.listArchived)
	r.Get("/histories/{historyID}", h.getArchived)
}

type itemRequest struct {
	IngredientPublicID string          `json:"ingredientPublicId" validate:"required,uuid"`
	Quantity           decimal.Decimal `json:"quantity"`
	Note               string          `json:"note" validate:"max=1000"`
}

type createDailyRequest struct {
	StockDate string        `json:"stockDate" validate:"omitempty,datetime=2006-01-02"`
	Note      string        `json:"note" validate:"max=1000"`
	Items     []itemRequest `json:"items" validate:"omitempty,max=500,dive"`
}

type updateDailyRequest struct {
	Note *string `json:"note" validate:"omitempty,max=1000"`
}

type updateItemRequest struct {
	Quantity *decimal.Decimal `json:"quantity"`
	Note     *string          `json:"note" validate:"omitempty,max=1000"`
}

func (req itemRequest) toInput() NewItemInput {
	return NewItemInput{
		IngredientPublicID: uuid.MustParse(req.IngredientPublicID),
		Quantity:           req.Quantity,
		Note:               req.Note,
	}
}

func (h *Handler) clockFor(r *http.Request) *shared.BusinessClock {
	return shared.ClockOr(r.Context(), h.clock)
}

func (h *Handler) createDaily(w http.ResponseWriter, r *http.Request) {
	var req createDailyRequest
	if err := httpx.DecodeAndValidate(r, h.validate, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	input := CreateDailyInput{Note: req.Note, ActorID: shared.ActorFromContext(r.Context())}
	if req.StockDate != "" {
		date, err := h.clockFor(r).ParseDate(req.StockDate)
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		input.StockDate = &date
	}
	for _, item := range req.Items {
		input.Items = append(input.Items, item.toInput())
	}
	daily, err := h.service.CreateDaily(r.Context(), h.dir, input)
	if err != nil {
		h.fail(w, "create daily", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, newDailyResponse(daily))
}

func (h *Handler) listToday(w http.ResponseWriter, r *http.Request) {
	dailies, err := h.service.ListToday(r.Context(), h.dir)
	if err != nil {
		h.fail(w, "list today", err)
		return
	}
	httpx.JSON(w, http.StatusOK, newDailyResponses(dailies))
}

func (h *Handler) listHistory(w http.ResponseWriter, r *http.Request) {
	from, to, err := h.parseRange(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	dailies, err := h.service.ListHistory(r.Context(), h.dir, from, to)
	if err != nil {
		h.fail(w, "list daily history", err)
		return
	}
	httpx.JSON(w, http.StatusOK, newDailyResponses(dailies))
}

func (h *Handler) getDaily(w http.ResponseWriter, r *http.Request) {
	id, err := parsePublicID(chi.URLParam(r, "dailyID"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	daily, err := h.service.GetDaily(r.Context(), h.dir, id)
	if err != nil {
		h.fail(w, "get daily", err)
		return
	}
	httpx.JSON(w, http.StatusOK, newDailyResponse(daily))
}

func (h *Handler) updateDaily(w http.ResponseWriter, r *http.Request) {
	id, err := parsePublicID(chi.URLParam(r, "dailyID"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req updateDailyRequest
	if err := httpx.DecodeAndValidate(r, h.validate, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	daily, err := h.service.UpdateDaily(r.Context(), h.dir, id, UpdateDailyInput{
		Note:    req.Note,
		ActorID: shared.ActorFromContext(r.Context()),
	})
	if err != nil {
		h.fail(w, "update daily", err)
		return
	}
	httpx.JSON(w, http.StatusOK, newDailyResponse(daily))
}

func (h *Handler) deleteDaily(w http.ResponseWriter, r *http.Request) {
	id, err := parsePublicID(chi.URLParam(r, "dailyID"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.DeleteDaily(r.Context(), h.dir, id); err != nil {
		h.fail(w, "delete daily", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) addItem(w http.ResponseWriter, r *http.Request) {
	id, err := parsePublicID(chi.URLParam(r, "dailyID"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req itemRequest
	if err := httpx.DecodeAndValidate(r, h.validate, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	item, err := h.service.AddItem(r.Context(), h.dir, id, AddItemInput{
		NewItemInput: req.toInput(),
		ActorID:      shared.ActorFromContext(r.Context()),
	})
	if err != nil {
		h.fail(w, "add item", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, newItemResponse(item))
}

func (h *Handler) updateItem(w http.ResponseWriter, r *http.Request) {
	id, err := parsePublicID(chi.URLParam(r, "itemID"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req updateItemRequest
	if err := httpx.DecodeAndValidate(r, h.validate, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	item, err := h.service.UpdateItem(r.Context(), h.dir, id, UpdateItemInput{
		Quantity: req.Quantity,
		Note:     req.Note,
		ActorID:  shared.ActorFromContext(r.Context()),
	})
	if err != nil {
		h.fail(w, "update item", err)
		return
	}
	httpx.JSON(w, http.StatusOK, newItemResponse(item))
}

func (h *Handler) removeItem(w http.ResponseWriter, r *http.Request) {
	id, err := parsePublicID(chi.URLParam(r, "itemID"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.RemoveItem(r.Context(), h.dir, id); err != nil {
		h.fail(w, "remove item", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listArchived(w http.ResponseWriter, r *http.Request) {
	from, to, err := h.parseRange(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	histories, err := h.service.ListArchived(r.Context(), h.dir, from, to)
	if err != nil {
		h.fail(w, "list histories", err)
		return
	}
	out := make([]historyResponse, 0, len(histories))
	for _, hist := range histories {
		out = append(out, newHistoryResponse(hist))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) getArchived(w http.ResponseWriter, r *http.Request) {
	id, err := parsePublicID(chi.URLParam(r, "historyID"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	hist, err := h.service.GetArchived(r.Context(), h.dir, id)
	if err != nil {
		h.fail(w, "get history", err)
		return
	}
	httpx.JSON(w, http.StatusOK, newHistoryResponse(hist))
}

func (h *Handler) parseRange(r *http.Request) (time.Time, time.Time, error) {
	clock := h.clockFor(r)
	var from, to time.Time
	var err error
	if v := r.URL.Query().Get("from"); v != "" {
		if from, err = clock.ParseDate(v); err != nil {
			return time.Time{}, time.Time{}, err
		}
	}
	if v := r.URL.Query().Get("to"); v != "" {
		if to, err = clock.ParseDate(v); err != nil {
			return time.Time{}, time.Time{}, err
		}
	}
	return from, to, nil
}

func (h *Handler) fail(w http.ResponseWriter, msg string, err error) {
	if !httpx.IsClientError(err) {
		h.logger.Error(msg, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

func parsePublicID(value string) (uuid.UUID, error) {
	id, err := uuid.Parse(value)
	if err != nil {
		return uuid.Nil, httpx.NewError(httpx.ErrValidation, "invalid public id")
	}
	return id, nil
}

type itemResponse struct {
	PublicID           uuid.UUID       `json:"publicId"`
	StockDate          string          `json:"stockDate"`
	IngredientPublicID uuid.UUID       `json:"ingredientPublicId"`
	Quantity           decimal.Decimal `json:"quantity"`
	Note               string          `json:"note"`
	CreatedByUserID    int64           `json:"createdByUserId"`
	CreatedAt          time.Time       `json:"createdAt"`
	UpdatedByUserID    *int64          `json:"updatedByUserId,omitempty"`
	UpdatedAt          *time.Time      `json:"updatedAt,omitempty"`
}

type dailyResponse struct {
	PublicID        uuid.UUID      `json:"publicId"`
	Direction       Direction      `json:"direction"`
	StockDate       string         `json:"stockDate"`
	Note            string         `json:"note"`
	CreatedByUserID int64          `json:"createdByUserId"`
	CreatedAt       time.Time      `json:"createdAt"`
	UpdatedByUserID *int64         `json:"updatedByUserId,omitempty"`
	UpdatedAt       *time.Time     `json:"updatedAt,omitempty"`
	ItemCount       int            `json:"itemCount"`
	Items           []itemResponse `json:"items,omitempty"`
}

type historyResponse struct {
	PublicID        uuid.UUID      `json:"publicId"`
	Direction       Direction      `json:"direction"`
	StockDate       string         `json:"stockDate"`
	Note            string         `json:"note"`
	CreatedByUserID int64          `json:"createdByUserId"`
	CreatedAt       time.Time      `json:"createdAt"`
	UpdatedByUserID *int64         `json:"updatedByUserId,omitempty"`
	UpdatedAt       *time.Time     `json:"updatedAt,omitempty"`
	ArchivedAt      time.Time      `json:"archivedAt"`
	ItemCount       int            `json:"itemCount"`
	Items           []itemResponse `json:"items,omitempty"`
}

func newItemResponse(it DailyItem) itemResponse {
	return itemResponse{
		PublicID:           it.PublicID,
		StockDate:          shared.FormatDate(it.StockDate),
		IngredientPublicID: it.IngredientPublicID,
		Quantity:           it.Quantity,
		Note:               it.Note,
		CreatedByUserID:    it.CreatedByUserID,
		CreatedAt:          it.CreatedAt,
		UpdatedByUserID:    it.UpdatedByUserID,
		UpdatedAt:          it.UpdatedAt,
	}
}

func newDailyResponse(d DailyHeader) dailyResponse {
	resp := dailyResponse{
		PublicID:        d.PublicID,
		Direction:       d.Direction,
		StockDate:       shared.FormatDate(d.StockDate),
		Note:            d.Note,
		CreatedByUserID: d.CreatedByUserID,
		CreatedAt:       d.CreatedAt,
		UpdatedByUserID: d.UpdatedByUserID,
		UpdatedAt:       d.UpdatedAt,
		ItemCount:       d.ItemCount,
	}
	for _, it := range d.Items {
		resp.Items = append(resp.Items, newItemResponse(it))
	}
	return resp
}

func newDailyResponses(dailies []DailyHeader) []dailyResponse {
	out := make([]dailyResponse, 0, len(dailies))
	for _, d := range dailies {
		out = append(out, newDailyResponse(d))
	}
	return out
}

func newHistoryResponse(hh HistoryHeader) historyResponse {
	resp := historyResponse{
		PublicID:        hh.PublicID,
		Direction:       hh.Direction,
		StockDate:       shared.FormatDate(hh.StockDate),
		Note:            hh.Note,
		CreatedByUserID: hh.CreatedByUserID,
		CreatedAt:       hh.CreatedAt,
		UpdatedByUserID: hh.UpdatedByUserID,
		UpdatedAt:       hh.UpdatedAt,
		ArchivedAt:      hh.ArchivedAt,
		ItemCount:       hh.ItemCount,
	}
	for _, it := range hh.Items {
		resp.Items = append(resp.Items, itemResponse{
			PublicID:           it.PublicID,
			StockDate:          shared.FormatDate(it.StockDate),
			IngredientPublicID: it.IngredientPublicID,
			Quantity:           it.Quantity,
			Note:               it.Note,
			CreatedByUserID:    it.CreatedByUserID,
			CreatedAt:          it.CreatedAt,
			UpdatedByUserID:    it.UpdatedByUserID,
			UpdatedAt:          it.UpdatedAt,
		})
	}
	return resp
}

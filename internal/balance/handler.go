package balance

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/kitchenstock/kitchenstock/internal/platform/httpx"
	"github.com/kitchenstock/kitchenstock/internal/shared"
	"github.com/kitchenstock/kitchenstock/internal/stock"
	"github.com/kitchenstock/kitchenstock/report"
)

type reader interface {
	EndingBalance(ctx context.Context, publicID uuid.UUID, date time.Time) (Balance, error)
	EndingByDate(ctx context.Context, date time.Time, category string) ([]Balance, error)
	Ledger(ctx context.Context, publicID uuid.UUID, from, to time.Time) (Ledger, error)
	StockAlerts(ctx context.Context, date time.Time, threshold *decimal.Decimal, category string) (Alerts, error)
	TopMovers(ctx context.Context, dir stock.Direction, from, to time.Time, limit int) ([]Mover, error)
	MovementSummary(ctx context.Context, from, to time.Time) (Summary, error)
}

// Handler exposes balance and report endpoints.
type Handler struct {
	service reader
	clock   *shared.BusinessClock
	logger  *slog.Logger
}

// NewHandler constructs a report handler.
func NewHandler(service reader, clock *shared.BusinessClock, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{service: service, clock: clock, logger: logger.With(slog.String("component", "reports"))}
}

// MountRoutes attaches the /reports routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/ending", h.endingByDate)
	r.Get("/ledger/{ingredientID}", h.ledger)
	r.Get("/top-movers", h.topMovers)
	r.Get("/top-out", h.topOut)
	r.Get("/movement-summary", h.movementSummary)
	r.Get("/stock-alerts", h.stockAlerts)
}

// Ending serves a single ingredient's ending balance.
func (h *Handler) Ending(w http.ResponseWriter, r *http.Request) {
	id, err := parsePublicID(r.URL.Query().Get("ingredientPublicId"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	date, err := h.date(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	bal, err := h.service.EndingBalance(r.Context(), id, date)
	if err != nil {
		h.fail(w, "ending balance", err)
		return
	}
	httpx.JSON(w, http.StatusOK, newBalanceResponse(bal))
}

func (h *Handler) endingByDate(w http.ResponseWriter, r *http.Request) {
	date, err := h.date(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	balances, err := h.service.EndingByDate(r.Context(), date, r.URL.Query().Get("category"))
	if err != nil {
		h.fail(w, "ending by date", err)
		return
	}
	if h.export(w, r, "ending-"+shared.FormatDate(orToday(h.clockFor(r), date)), endingSheet(balances)) {
		return
	}
	out := make([]balanceResponse, 0, len(balances))
	for _, b := range balances {
		out = append(out, newBalanceResponse(b))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) ledger(w http.ResponseWriter, r *http.Request) {
	id, err := parsePublicID(chi.URLParam(r, "ingredientID"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	from, to, err := h.parseRange(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	ledger, err := h.service.Ledger(r.Context(), id, from, to)
	if err != nil {
		h.fail(w, "ledger", err)
		return
	}
	if h.export(w, r, "ledger-"+ledger.Ingredient.Code, ledgerSheet(ledger)) {
		return
	}
	httpx.JSON(w, http.StatusOK, newLedgerResponse(ledger))
}

func (h *Handler) topMovers(w http.ResponseWriter, r *http.Request) {
	dir, err := stock.ParseDirection(r.URL.Query().Get("direction"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	h.serveMovers(w, r, dir)
}

func (h *Handler) topOut(w http.ResponseWriter, r *http.Request) {
	h.serveMovers(w, r, stock.DirectionOut)
}

func (h *Handler) serveMovers(w http.ResponseWriter, r *http.Request, dir stock.Direction) {
	from, to, err := h.parseRange(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		if limit, err = strconv.Atoi(v); err != nil || limit < 0 {
			httpx.RespondError(w, httpx.NewError(httpx.ErrValidation, "limit must be a non-negative integer"))
			return
		}
	}
	movers, err := h.service.TopMovers(r.Context(), dir, from, to, limit)
	if err != nil {
		h.fail(w, "top movers", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"direction": dir, "items": movers})
}

func (h *Handler) movementSummary(w http.ResponseWriter, r *http.Request) {
	from, to, err := h.parseRange(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	summary, err := h.service.MovementSummary(r.Context(), from, to)
	if err != nil {
		h.fail(w, "movement summary", err)
		return
	}
	if h.export(w, r, "movement-summary", summarySheet(summary)) {
		return
	}
	httpx.JSON(w, http.StatusOK, newSummaryResponse(summary))
}

func (h *Handler) stockAlerts(w http.ResponseWriter, r *http.Request) {
	date, err := h.date(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var threshold *decimal.Decimal
	if v := r.URL.Query().Get("threshold"); v != "" {
		parsed, err := decimal.NewFromString(v)
		if err != nil || parsed.IsNegative() {
			httpx.RespondError(w, httpx.NewError(httpx.ErrValidation, "threshold must be a non-negative number"))
			return
		}
		threshold = &parsed
	}
	alerts, err := h.service.StockAlerts(r.Context(), date, threshold, r.URL.Query().Get("category"))
	if err != nil {
		h.fail(w, "stock alerts", err)
		return
	}
	httpx.JSON(w, http.StatusOK, newAlertsResponse(alerts))
}

// export writes sheet when format asks for a file and reports whether it did.
func (h *Handler) export(w http.ResponseWriter, r *http.Request, name string, sheet report.Sheet) bool {
	format := strings.ToLower(r.URL.Query().Get("format"))
	var (
		body        []byte
		contentType string
		ext         string
	)
	switch format {
	case "", "json":
		return false
	case "xlsx":
		raw, err := report.Workbook(sheet)
		if err != nil {
			h.fail(w, "render xlsx", err)
			return true
		}
		body, contentType, ext = raw, report.XLSXContentType, "xlsx"
	case "csv":
		var buf bytes.Buffer
		if err := report.WriteCSV(&buf, sheet); err != nil {
			h.fail(w, "render csv", err)
			return true
		}
		body, contentType, ext = buf.Bytes(), report.CSVContentType, "csv"
	default:
		httpx.RespondError(w, httpx.NewError(httpx.ErrValidation, "format must be json, xlsx or csv"))
		return true
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s.%s", name, ext))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
	return true
}

func (h *Handler) clockFor(r *http.Request) *shared.BusinessClock {
	return shared.ClockOr(r.Context(), h.clock)
}

func (h *Handler) date(r *http.Request) (time.Time, error) {
	v := r.URL.Query().Get("date")
	if v == "" {
		return time.Time{}, nil
	}
	return h.clockFor(r).ParseDate(v)
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

func orToday(clock *shared.BusinessClock, date time.Time) time.Time {
	if date.IsZero() {
		return clock.Today()
	}
	return date
}

func parsePublicID(value string) (uuid.UUID, error) {
	id, err := uuid.Parse(value)
	if err != nil {
		return uuid.Nil, httpx.NewError(httpx.ErrValidation, "invalid ingredient public id")
	}
	return id, nil
}

package app

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/kitchenstock/kitchenstock/internal/closeday"
	"github.com/kitchenstock/kitchenstock/internal/observability"
	"github.com/kitchenstock/kitchenstock/internal/shared"
	"github.com/kitchenstock/kitchenstock/internal/stock"
	_ "github.com/kitchenstock/kitchenstock/internal/testing/guard"
	"github.com/kitchenstock/kitchenstock/internal/testing/memstore"
)

type pingFunc func(context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func testRouter(t *testing.T, health map[string]Pinger) (http.Handler, *memstore.Store, *shared.BusinessClock) {
	t.Helper()
	require.True(t, InTestMode())
	loc, err := time.LoadLocation("Asia/Ho_Chi_Minh")
	require.NoError(t, err)
	now := time.Date(2024, 1, 6, 9, 0, 0, 0, loc)
	clock := shared.NewBusinessClock(loc).WithNow(func() time.Time { return now })
	store := memstore.New()

	stockSvc := stock.NewService(store, store, clock, nil)
	closeSvc := closeday.NewService(store, clock, closeday.Config{Timeout: time.Minute})
	closeH := closeday.NewHandler(closeSvc, nil, clock, nil)

	router := NewRouter(RouterParams{
		Config:          &Config{AppEnv: "development"},
		Clock:           clock,
		Metrics:         observability.NewMetrics(),
		Health:          health,
		StockInHandler:  stock.NewHandler(stock.DirectionIn, stockSvc, clock, nil),
		StockOutHandler: stock.NewHandler(stock.DirectionOut, stockSvc, clock, nil),
		CloseDayHandler: closeH,
	})
	return router, store, clock
}

func TestRouterHealthz(t *testing.T) {
	router, _, _ := testRouter(t, map[string]Pinger{"postgres": pingFunc(func(context.Context) error { return nil })})
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.JSONEq(t, `{"status":"ok","postgres":"ok"}`, rr.Body.String())
	require.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))

	router, _, _ = testRouter(t, map[string]Pinger{"redis": pingFunc(func(context.Context) error { return errors.New("refused") })})
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
	require.Contains(t, rr.Body.String(), "refused")
}

func TestRouterMountsDirectionalClose(t *testing.T) {
	router, store, clock := testRouter(t, nil)
	salt := store.AddIngredient("SALT", "Muối", "SPICE", nil)
	store.SeedDaily(stock.DirectionOut, clock.Yesterday(), memstore.SeedItem{IngredientID: salt.ID, Quantity: decimal.RequireFromString("2")})

	req := httptest.NewRequest(http.MethodPost, "/stock-out/close-day", strings.NewReader(`{"date":"2024-01-05"}`))
	req.Header.Set(ActorHeader, "42")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	require.Equal(t, 1, store.SnapshotCount(stock.DirectionOut, clock.Yesterday()))
	require.Equal(t, 0, store.SnapshotCount(stock.DirectionIn, clock.Yesterday()))

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/inventory/close-day/2024-01-05", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), `"closed":true`)
}

func TestRouterRejectsBadActor(t *testing.T) {
	router, _, _ := testRouter(t, nil)
	req := httptest.NewRequest(http.MethodGet, "/stock-in/dailies/today", nil)
	req.Header.Set(ActorHeader, "abc")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestRouterServesMetrics(t *testing.T) {
	router, _, _ := testRouter(t, nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/stock-in/dailies/today", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), "kitchenstock_http_requests_total")
}

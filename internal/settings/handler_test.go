package settings

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func newTestRouter(svc *Service) http.Handler {
	r := chi.NewRouter()
	r.Route("/admin/settings", NewHandler(svc, nil).MountRoutes)
	return r
}

func TestHandlerUpdatesThreshold(t *testing.T) {
	store := newMemoryStore()
	router := newTestRouter(newTestService(store, nil))

	req := httptest.NewRequest(http.MethodPatch, "/admin/settings/low-stock-threshold", strings.NewReader(`{"value": 4.5}`))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "4.5", store.values[KeyLowStockThreshold])

	req = httptest.NewRequest(http.MethodPatch, "/admin/settings/low-stock-threshold", strings.NewReader(`{}`))
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestHandlerRejectsInvalidCron(t *testing.T) {
	router := newTestRouter(newTestService(newMemoryStore(), nil))

	req := httptest.NewRequest(http.MethodPatch, "/admin/settings/close-day", strings.NewReader(`{"cron":"every day"}`))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Contains(t, rr.Body.String(), "invalid cron expression")
}

func TestHandlerGetAll(t *testing.T) {
	store := newMemoryStore()
	store.values[KeyLowStockThreshold] = "9"
	router := newTestRouter(newTestService(store, nil))

	req := httptest.NewRequest(http.MethodGet, "/admin/settings/", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	var body struct {
		Threshold decimal.Decimal `json:"default_low_stock_threshold"`
		Cron      string          `json:"close_day_cron"`
		Timezone  string          `json:"close_day_timezone"`
	}
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&body))
	require.Equal(t, "9", body.Threshold.String())
	require.Equal(t, DefaultCloseDayCron, body.Cron)
	require.Equal(t, "Asia/Ho_Chi_Minh", body.Timezone)
}

package balance

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/kitchenstock/kitchenstock/report"
)

func newTestRouter(f fixture) http.Handler {
	h := NewHandler(f.svc, f.clock, nil)
	r := chi.NewRouter()
	r.Get("/inventory/ending", h.Ending)
	r.Route("/reports", h.MountRoutes)
	return r
}

func get(t *testing.T, router http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
	return rr
}

func TestHandlerEndingBalance(t *testing.T) {
	f := newFixture(t, nil)
	salt := seedSalt(t, f)
	router := newTestRouter(f)

	rr := get(t, router, "/inventory/ending?ingredientPublicId="+salt.PublicID.String()+"&date=2024-01-04")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var resp struct {
		Date   string `json:"date"`
		Ending string `json:"ending"`
		Live   bool   `json:"live"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Equal(t, "2024-01-04", resp.Date)
	require.Equal(t, "12", resp.Ending)
	require.False(t, resp.Live)

	rr = get(t, router, "/inventory/ending?ingredientPublicId="+salt.PublicID.String())
	require.Equal(t, http.StatusOK, rr.Code)
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Equal(t, "13", resp.Ending)
	require.True(t, resp.Live)
}

func TestHandlerRejectsBadQueries(t *testing.T) {
	f := newFixture(t, nil)
	salt := seedSalt(t, f)
	router := newTestRouter(f)

	cases := map[string]struct {
		path string
		code int
	}{
		"missing ingredient": {"/inventory/ending", http.StatusBadRequest},
		"unknown ingredient": {"/inventory/ending?ingredientPublicId=7f1c2a8e-7c4e-4a55-9d7e-1b2f1a0c9e11", http.StatusNotFound},
		"bad date":           {"/inventory/ending?ingredientPublicId=" + salt.PublicID.String() + "&date=05/01/2024", http.StatusBadRequest},
		"future date":        {"/reports/ending?date=2024-01-06", http.StatusBadRequest},
		"inverted range":     {"/reports/movement-summary?from=2024-01-05&to=2024-01-01", http.StatusBadRequest},
		"bad direction":      {"/reports/top-movers?direction=up", http.StatusBadRequest},
		"bad limit":          {"/reports/top-out?limit=-1", http.StatusBadRequest},
		"bad threshold":      {"/reports/stock-alerts?threshold=abc", http.StatusBadRequest},
		"bad format":         {"/reports/ending?format=pdf", http.StatusBadRequest},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			rr := get(t, router, tc.path)
			require.Equal(t, tc.code, rr.Code, rr.Body.String())
		})
	}
}

func TestHandlerLedgerExportsXLSX(t *testing.T) {
	f := newFixture(t, nil)
	salt := seedSalt(t, f)
	router := newTestRouter(f)

	rr := get(t, router, "/reports/ledger/"+salt.PublicID.String()+"?from=2024-01-03&to=2024-01-05&format=xlsx")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	require.Equal(t, report.XLSXContentType, rr.Header().Get("Content-Type"))
	require.Contains(t, rr.Header().Get("Content-Disposition"), "ledger-SALT.xlsx")

	book, err := excelize.OpenReader(bytes.NewReader(rr.Body.Bytes()))
	require.NoError(t, err)
	defer func() { _ = book.Close() }()
	rows, err := book.GetRows("Ledger")
	require.NoError(t, err)
	require.Len(t, rows, 5)
	require.Equal(t, []string{"2024-01-05", "2", "1", "13"}, rows[4])
}

func TestHandlerReportsJSON(t *testing.T) {
	f := newFixture(t, nil)
	seedSalt(t, f)
	router := newTestRouter(f)

	rr := get(t, router, "/reports/top-out?from=2024-01-01&to=2024-01-05")
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), `"direction":"out"`)
	require.Contains(t, rr.Body.String(), `"quantity":"4"`)

	rr = get(t, router, "/reports/movement-summary?from=2024-01-03&to=2024-01-05")
	require.Equal(t, http.StatusOK, rr.Code)
	var summary struct {
		TotalIn string `json:"totalIn"`
		Days    []struct {
			Date string `json:"date"`
		} `json:"days"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &summary))
	require.Equal(t, "17", summary.TotalIn)
	require.Equal(t, "2024-01-03", summary.Days[0].Date)

	rr = get(t, router, "/reports/stock-alerts?threshold=20")
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), `"code":"SALT"`)

	rr = get(t, router, "/reports/ending?format=csv")
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, report.CSVContentType, rr.Header().Get("Content-Type"))
	require.Contains(t, rr.Body.String(), "SALT,Muối,SPICE,2024-01-05,17,4,13")
}

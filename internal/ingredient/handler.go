package ingredient

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/kitchenstock/kitchenstock/internal/platform/httpx"
)

type searcher interface {
	Search(ctx context.Context, query string, limit int) ([]SearchResult, error)
}

// Handler serves ingredient directory lookups.
type Handler struct {
	repo   searcher
	logger *slog.Logger
}

// NewHandler constructs the directory handler.
func NewHandler(repo searcher, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{repo: repo, logger: logger}
}

// MountRoutes attaches /ingredients routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/search", h.search)
}

func (h *Handler) search(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			httpx.RespondError(w, httpx.NewError(httpx.ErrValidation, "limit must be a non-negative integer"))
			return
		}
		limit = n
	}
	results, err := h.repo.Search(r.Context(), r.URL.Query().Get("q"), limit)
	if err != nil {
		h.logger.Error("search ingredients", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, results)
}

package stock

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/kitchenstock/kitchenstock/internal/ingredient"
	"github.com/kitchenstock/kitchenstock/internal/shared"
)

// historyWindowDays is the default look-back for archived lists.
const historyWindowDays = 30

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetDaily(ctx context.Context, dir Direction, publicID uuid.UUID) (DailyHeader, error)
	ListDailies(ctx context.Context, dir Direction, from, to time.Time) ([]DailyHeader, error)
	GetArchived(ctx context.Context, dir Direction, publicID uuid.UUID) (HistoryHeader, error)
	ListArchived(ctx context.Context, dir Direction, from, to time.Time) ([]HistoryHeader, error)
}

// TxRepository exposes transactional operations used by service.
type TxRepository interface {
	InsertDaily(ctx context.Context, dir Direction, h DailyHeader) (DailyHeader, error)
	InsertItem(ctx context.Context, dir Direction, it DailyItem) (DailyItem, error)
	LoadDailyForUpdate(ctx context.Context, dir Direction, publicID uuid.UUID) (DailyHeader, error)
	UpdateDaily(ctx context.Context, dir Direction, h DailyHeader) error
	DeleteDaily(ctx context.Context, dir Direction, id int64) error
	LoadItemForUpdate(ctx context.Context, dir Direction, publicID uuid.UUID) (DailyItem, error)
	UpdateItem(ctx context.Context, dir Direction, it DailyItem) error
	DeleteItem(ctx context.Context, dir Direction, id int64) error
}

// IngredientLookup resolves ingredient public ids.
type IngredientLookup interface {
	GetByPublicID(ctx context.Context, publicID uuid.UUID) (ingredient.Ingredient, error)
}

// Service coordinates the daily ledgers and their history.
type Service struct {
	repo        RepositoryPort
	ingredients IngredientLookup
	clock       *shared.BusinessClock
	logger      *slog.Logger
}

// NewService builds Service.
func NewService(repo RepositoryPort, ingredients IngredientLookup, clock *shared.BusinessClock, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, ingredients: ingredients, clock: clock, logger: logger.With(slog.String("component", "stock"))}
}

func (s *Service) clockFor(ctx context.Context) *shared.BusinessClock {
	return shared.ClockOr(ctx, s.clock)
}

// CreateDaily opens a header for today, optionally with its first items.
func (s *Service) CreateDaily(ctx context.Context, dir Direction, input CreateDailyInput) (DailyHeader, error) {
	clock := s.clockFor(ctx)
	date := clock.Today()
	if input.StockDate != nil {
		if !clock.IsToday(*input.StockDate) {
			return DailyHeader{}, ErrNotToday
		}
	}
	resolved, err := s.resolveItems(ctx, input.Items)
	if err != nil {
		return DailyHeader{}, err
	}

	now := clock.Now()
	var created DailyHeader
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		h, err := tx.InsertDaily(ctx, dir, DailyHeader{
			PublicID:        uuid.New(),
			StockDate:       date,
			Note:            input.Note,
			CreatedByUserID: input.ActorID,
			CreatedAt:       now,
		})
		if err != nil {
			return err
		}
		for _, item := range resolved {
			item.DailyID = h.ID
			item.StockDate = date
			item.CreatedByUserID = input.ActorID
			item.CreatedAt = now
			saved, err := tx.InsertItem(ctx, dir, item)
			if err != nil {
				return err
			}
			h.Items = append(h.Items, saved)
		}
		h.ItemCount = len(h.Items)
		created = h
		return nil
	})
	if err != nil {
		return DailyHeader{}, err
	}
	s.logger.InfoContext(ctx, "daily opened",
		slog.String("direction", dir.String()),
		slog.String("daily", created.PublicID.String()),
		slog.Int("items", created.ItemCount))
	return created, nil
}

func (s *Service) resolveItems(ctx context.Context, inputs []NewItemInput) ([]DailyItem, error) {
	items := make([]DailyItem, 0, len(inputs))
	for _, in := range inputs {
		item, err := s.resolveItem(ctx, in)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

func (s *Service) resolveItem(ctx context.Context, in NewItemInput) (DailyItem, error) {
	if !in.Quantity.IsPositive() {
		return DailyItem{}, ErrInvalidQuantity
	}
	ing, err := s.ingredients.GetByPublicID(ctx, in.IngredientPublicID)
	if err != nil {
		return DailyItem{}, err
	}
	return DailyItem{
		PublicID:           uuid.New(),
		IngredientID:       ing.ID,
		IngredientPublicID: ing.PublicID,
		Quantity:           in.Quantity,
		Note:               in.Note,
	}, nil
}

// GetDaily returns a header with its items.
func (s *Service) GetDaily(ctx context.Context, dir Direction, publicID uuid.UUID) (DailyHeader, error) {
	return s.repo.GetDaily(ctx, dir, publicID)
}

// ListToday returns today's open headers, newest first.
func (s *Service) ListToday(ctx context.Context, dir Direction) ([]DailyHeader, error) {
	today := s.clockFor(ctx).Today()
	return s.repo.ListDailies(ctx, dir, today, today)
}

// ListHistory returns live headers in [from, to]. Zero bounds default to
// the thirty days ending yesterday.
func (s *Service) ListHistory(ctx context.Context, dir Direction, from, to time.Time) ([]DailyHeader, error) {
	from, to, err := s.window(ctx, from, to)
	if err != nil {
		return nil, err
	}
	return s.repo.ListDailies(ctx, dir, from, to)
}

func (s *Service) window(ctx context.Context, from, to time.Time) (time.Time, time.Time, error) {
	clock := s.clockFor(ctx)
	if to.IsZero() {
		to = clock.Yesterday()
	}
	if from.IsZero() {
		from = to.AddDate(0, 0, -historyWindowDays)
	}
	if from.After(to) {
		return time.Time{}, time.Time{}, ErrInvalidRange
	}
	return from, to, nil
}

// UpdateDaily edits today's header note.
func (s *Service) UpdateDaily(ctx context.Context, dir Direction, publicID uuid.UUID, input UpdateDailyInput) (DailyHeader, error) {
	clock := s.clockFor(ctx)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		h, err := tx.LoadDailyForUpdate(ctx, dir, publicID)
		if err != nil {
			return err
		}
		if !clock.IsToday(h.StockDate) {
			return ErrNotToday
		}
		if input.Note == nil {
			return nil
		}
		now := clock.Now()
		actor := input.ActorID
		h.Note = *input.Note
		h.UpdatedByUserID = &actor
		h.UpdatedAt = &now
		return tx.UpdateDaily(ctx, dir, h)
	})
	if err != nil {
		return DailyHeader{}, err
	}
	return s.repo.GetDaily(ctx, dir, publicID)
}

// DeleteDaily removes today's header and all its items.
func (s *Service) DeleteDaily(ctx context.Context, dir Direction, publicID uuid.UUID) error {
	clock := s.clockFor(ctx)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		h, err := tx.LoadDailyForUpdate(ctx, dir, publicID)
		if err != nil {
			return err
		}
		if !clock.IsToday(h.StockDate) {
			return ErrNotToday
		}
		return tx.DeleteDaily(ctx, dir, h.ID)
	})
	if err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "daily deleted",
		slog.String("direction", dir.String()),
		slog.String("daily", publicID.String()))
	return nil
}

// AddItem attaches an item to today's header.
func (s *Service) AddItem(ctx context.Context, dir Direction, dailyID uuid.UUID, input AddItemInput) (DailyItem, error) {
	clock := s.clockFor(ctx)
	item, err := s.resolveItem(ctx, input.NewItemInput)
	if err != nil {
		return DailyItem{}, err
	}
	var saved DailyItem
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		h, err := tx.LoadDailyForUpdate(ctx, dir, dailyID)
		if err != nil {
			return err
		}
		if !clock.IsToday(h.StockDate) {
			return ErrNotToday
		}
		item.DailyID = h.ID
		item.StockDate = h.StockDate
		item.CreatedByUserID = input.ActorID
		item.CreatedAt = clock.Now()
		saved, err = tx.InsertItem(ctx, dir, item)
		return err
	})
	if err != nil {
		return DailyItem{}, err
	}
	return saved, nil
}

// UpdateItem changes today's item quantity or note.
func (s *Service) UpdateItem(ctx context.Context, dir Direction, itemID uuid.UUID, input UpdateItemInput) (DailyItem, error) {
	if input.Quantity != nil && !input.Quantity.IsPositive() {
		return DailyItem{}, ErrInvalidQuantity
	}
	clock := s.clockFor(ctx)
	var updated DailyItem
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		it, err := tx.LoadItemForUpdate(ctx, dir, itemID)
		if err != nil {
			return err
		}
		if !clock.IsToday(it.StockDate) {
			return ErrNotToday
		}
		if input.Quantity != nil {
			it.Quantity = *input.Quantity
		}
		if input.Note != nil {
			it.Note = *input.Note
		}
		now := clock.Now()
		actor := input.ActorID
		it.UpdatedByUserID = &actor
		it.UpdatedAt = &now
		if err := tx.UpdateItem(ctx, dir, it); err != nil {
			return err
		}
		updated = it
		return nil
	})
	if err != nil {
		return DailyItem{}, err
	}
	return updated, nil
}

// RemoveItem deletes one of today's items.
func (s *Service) RemoveItem(ctx context.Context, dir Direction, itemID uuid.UUID) error {
	clock := s.clockFor(ctx)
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		it, err := tx.LoadItemForUpdate(ctx, dir, itemID)
		if err != nil {
			return err
		}
		if !clock.IsToday(it.StockDate) {
			return ErrNotToday
		}
		return tx.DeleteItem(ctx, dir, it.ID)
	})
}

// ListArchived returns history headers in [from, to] with the same
// defaults as ListHistory.
func (s *Service) ListArchived(ctx context.Context, dir Direction, from, to time.Time) ([]HistoryHeader, error) {
	from, to, err := s.window(ctx, from, to)
	if err != nil {
		return nil, err
	}
	return s.repo.ListArchived(ctx, dir, from, to)
}

// GetArchived returns a history header with its items.
func (s *Service) GetArchived(ctx context.Context, dir Direction, publicID uuid.UUID) (HistoryHeader, error) {
	return s.repo.GetArchived(ctx, dir, publicID)
}

package ingredient

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFoldStripsVietnameseDiacritics(t *testing.T) {
	require.Equal(t, "duong cat", Fold("Đường Cát"))
	require.Equal(t, "nuoc mam", Fold("  NƯỚC MẮM "))
	require.Equal(t, "salt", Fold("SALT"))
}

func TestRankOrdersByMatchQuality(t *testing.T) {
	candidates := []Ingredient{
		{ID: 1, Code: "SUGAR", Name: "Đường cát trắng"},
		{ID: 2, Code: "SALT", Name: "Muối hạt"},
		{ID: 3, Code: "SA-01", Name: "Sả cây"},
		{ID: 4, Code: "FISH", Name: "Nước mắm"},
		{ID: 5, Code: "SAUCE", Name: "Tương ớt"},
	}

	results := Rank(candidates, "sa", 10)
	ids := make([]int64, 0, len(results))
	for _, r := range results {
		ids = append(ids, r.ID)
	}
	// code prefix hits share a rank and keep id order.
	require.Equal(t, []int64{2, 3, 5}, ids)

	results = Rank(candidates, "salt", 10)
	require.Len(t, results, 1)
	require.Equal(t, 0, results[0].Rank)

	results = Rank(candidates, "mam", 10)
	require.Len(t, results, 1)
	require.Equal(t, int64(4), results[0].ID)
	require.Equal(t, 3, results[0].Rank)
}

func TestRankHonoursLimitAndEmptyQuery(t *testing.T) {
	candidates := []Ingredient{
		{ID: 1, Code: "A1", Name: "alpha"},
		{ID: 2, Code: "A2", Name: "alpine"},
		{ID: 3, Code: "A3", Name: "almond"},
	}
	require.Len(t, Rank(candidates, "a", 2), 2)
	require.Empty(t, Rank(candidates, "   ", 2))
}

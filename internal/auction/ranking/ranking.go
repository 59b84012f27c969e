// Package ranking orders bid candidates for settlement.
package ranking

import (
	"sort"

	"github.com/glamlot/glamlot/internal/auction/domain"
)

// Rank returns the bids ordered highest amount first, with the earlier
// submission winning equal amounts and the snowflake ID as a final
// deterministic tie-break. The input slice is not modified. An empty
// result is a valid outcome, not an error.
func Rank(bids []domain.Bid) []domain.Bid {
	ranked := make([]domain.Bid, len(bids))
	copy(ranked, bids)
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Amount != ranked[j].Amount {
			return ranked[i].Amount > ranked[j].Amount
		}
		if !ranked[i].CreatedAt.Equal(ranked[j].CreatedAt) {
			return ranked[i].CreatedAt.Before(ranked[j].CreatedAt)
		}
		return ranked[i].ID < ranked[j].ID
	})
	return ranked
}

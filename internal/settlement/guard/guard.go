// Package guard holds the pure status checks the settlement engine and
// the admin surface share.
package guard

import (
	"time"

	"github.com/glamlot/glamlot/internal/auction/domain"
)

// CanSettle reports whether the engine may act on the auction: its end
// time has passed and it is not in a terminal state. Terminal statuses
// never regress, so a completed or cancelled auction is always skipped.
func CanSettle(a *domain.Auction, now time.Time) bool {
	if a == nil {
		return false
	}
	if a.Status.Terminal() {
		return false
	}
	return !a.EndsAt.After(now)
}

// CanRemediate reports whether the winner notification can be re-sent:
// the auction settled with a winner.
func CanRemediate(a *domain.Auction) bool {
	if a == nil {
		return false
	}
	return a.Status == domain.AuctionStatusCompleted && a.WinningBidID != nil
}

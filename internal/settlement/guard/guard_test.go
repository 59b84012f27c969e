package guard

import (
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glamlot/glamlot/internal/auction/domain"
)

func TestCanSettle(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	tests := []struct {
		name   string
		status domain.AuctionStatus
		endsAt time.Time
		want   bool
	}{
		{"ended past due", domain.AuctionStatusEnded, past, true},
		{"active past due", domain.AuctionStatusActive, past, true},
		{"active still running", domain.AuctionStatusActive, future, false},
		{"completed never resettles", domain.AuctionStatusCompleted, past, false},
		{"cancelled never settles", domain.AuctionStatusCancelled, past, false},
		{"ends exactly now", domain.AuctionStatusEnded, now, true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			a := &domain.Auction{Status: tc.status, EndsAt: tc.endsAt}
			if got := CanSettle(a, now); got != tc.want {
				t.Fatalf("CanSettle = %v, want %v", got, tc.want)
			}
		})
	}

	if CanSettle(nil, now) {
		t.Fatal("nil auction must not settle")
	}
}

func TestCanRemediate(t *testing.T) {
	winner := snowflake.ID(7)

	if !CanRemediate(&domain.Auction{Status: domain.AuctionStatusCompleted, WinningBidID: &winner}) {
		t.Fatal("completed auction with winner should remediate")
	}
	if CanRemediate(&domain.Auction{Status: domain.AuctionStatusCompleted}) {
		t.Fatal("no-winner close must not remediate")
	}
	if CanRemediate(&domain.Auction{Status: domain.AuctionStatusEnded, WinningBidID: &winner}) {
		t.Fatal("unsettled auction must not remediate")
	}
}

package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

var (
	// ErrNotFound is returned when an auction or bid does not exist.
	ErrNotFound = errors.New("auction: not found")
	// ErrStatusConflict is returned when a compare-and-swap update found a
	// different prior status, meaning another invocation got there first.
	ErrStatusConflict = errors.New("auction: status conflict")
)

type Repository interface {
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Auction, error)
	// LoadEndedAuctions returns at most limit auctions whose end time has
	// passed and that are still awaiting settlement, oldest first.
	LoadEndedAuctions(ctx context.Context, db *gorm.DB, now time.Time, limit int) ([]Auction, error)
	// LoadBids returns every bid on the auction, amount descending with
	// earliest submission breaking ties.
	LoadBids(ctx context.Context, db *gorm.DB, auctionID snowflake.ID) ([]Bid, error)
	FindBidByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Bid, error)
	// ApplySettlement writes the settlement fields iff the auction still
	// bears expectedPriorStatus. Returns ErrStatusConflict otherwise.
	ApplySettlement(ctx context.Context, db *gorm.DB, auctionID snowflake.ID, fields SettlementFields, expectedPriorStatus AuctionStatus) error
	// SetBidCaptureRef records the processor capture reference on the bid,
	// only if none is present yet.
	SetBidCaptureRef(ctx context.Context, db *gorm.DB, bidID snowflake.ID, captureRef string) error
	MarkBidCaptureFailed(ctx context.Context, db *gorm.DB, bidID snowflake.ID, failedAt time.Time) error
}

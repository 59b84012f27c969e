// Package domain contains persistence models for auctions and bids.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// AuctionStatus represents lifecycle states for an auction.
type AuctionStatus string

const (
	AuctionStatusPending   AuctionStatus = "pending"
	AuctionStatusActive    AuctionStatus = "active"
	AuctionStatusEnded     AuctionStatus = "ended"
	AuctionStatusCompleted AuctionStatus = "completed"
	AuctionStatusCancelled AuctionStatus = "cancelled"
)

// Terminal reports whether the status may never regress to another state.
func (s AuctionStatus) Terminal() bool {
	return s == AuctionStatusCompleted || s == AuctionStatusCancelled
}

// Auction is a time-boxed sale published by a seller. All monetary amounts
// are minor units of Currency. The settlement fields (WinningBidID, the
// split amounts, SettledAt) are written exactly once when the engine drives
// the auction from ended to completed.
type Auction struct {
	ID                 snowflake.ID  `gorm:"primaryKey"`
	SellerID           snowflake.ID  `gorm:"not null;index"`
	Title              string        `gorm:"type:text;not null"`
	StartingPrice      int64         `gorm:"not null"`
	CurrentPrice       int64         `gorm:"not null"`
	Currency           string        `gorm:"type:text;not null"`
	Status             AuctionStatus `gorm:"type:text;not null;index"`
	EndsAt             time.Time     `gorm:"not null;index"`
	WinningBidID       *snowflake.ID `gorm:""`
	ProfitAmount       *int64        `gorm:""`
	PlatformFeeAmount  *int64        `gorm:""`
	SellerPayoutAmount *int64        `gorm:""`
	SettledAt          *time.Time    `gorm:""`
	CreatedAt          time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt          time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Auction) TableName() string { return "auctions" }

// Bid is a buyer's pre-authorized offer on an auction. Immutable once
// created except for CaptureRef / CaptureFailedAt, written at settlement.
// BidderID is nil for guest bidders; BidderContact is always set and is
// the delivery address for the winner notification.
type Bid struct {
	ID               snowflake.ID  `gorm:"primaryKey"`
	AuctionID        snowflake.ID  `gorm:"not null;index"`
	BidderID         *snowflake.ID `gorm:"index"`
	BidderContact    string        `gorm:"type:text;not null"`
	Amount           int64         `gorm:"not null"`
	Currency         string        `gorm:"type:text;not null"`
	AuthorizationRef string        `gorm:"type:text;not null"`
	CaptureRef       *string       `gorm:"type:text"`
	CaptureFailedAt  *time.Time    `gorm:""`
	CreatedAt        time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Bid) TableName() string { return "bids" }

// SettlementFields is the atomic write applied when an auction completes.
// A nil WinningBidID records a no-winner close; the split amounts are then
// nil as well.
type SettlementFields struct {
	Status             AuctionStatus
	WinningBidID       *snowflake.ID
	ProfitAmount       *int64
	PlatformFeeAmount  *int64
	SellerPayoutAmount *int64
	SettledAt          time.Time
}

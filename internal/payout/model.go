package payout

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// PayoutStatus tracks disbursement; settlement only ever creates pending
// payouts, disbursement is driven externally.
type PayoutStatus string

const (
	PayoutStatusPending PayoutStatus = "pending"
	PayoutStatusPaid    PayoutStatus = "paid"
)

// Payout records what the seller is owed for one settled auction. At most
// one row exists per auction, enforced by a unique constraint on
// auction_id. GrossAmount == FeeAmount + NetAmount.
type Payout struct {
	ID           snowflake.ID `gorm:"primaryKey"`
	AuctionID    snowflake.ID `gorm:"not null;uniqueIndex"`
	SellerID     snowflake.ID `gorm:"not null;index"`
	GrossAmount  int64        `gorm:"not null"`
	FeeAmount    int64        `gorm:"not null"`
	NetAmount    int64        `gorm:"not null"`
	Currency     string       `gorm:"type:text;not null"`
	Status       PayoutStatus `gorm:"type:text;not null"`
	CreatedAt    time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt    time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Payout) TableName() string { return "payouts" }

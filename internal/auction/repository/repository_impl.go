package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glamlot/glamlot/internal/auction/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Auction, error) {
	var item domain.Auction
	err := db.WithContext(ctx).Raw(
		`SELECT id, seller_id, title, starting_price, current_price, currency,
			status, ends_at, winning_bid_id, profit_amount, platform_fee_amount,
			seller_payout_amount, settled_at, created_at, updated_at
		 FROM auctions
		 WHERE id = ?
		 LIMIT 1`,
		id,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, domain.ErrNotFound
	}
	return &item, nil
}

func (r *repo) LoadEndedAuctions(ctx context.Context, db *gorm.DB, now time.Time, limit int) ([]domain.Auction, error) {
	var items []domain.Auction
	err := db.WithContext(ctx).Raw(
		`SELECT id, seller_id, title, starting_price, current_price, currency,
			status, ends_at, winning_bid_id, profit_amount, platform_fee_amount,
			seller_payout_amount, settled_at, created_at, updated_at
		 FROM auctions
		 WHERE status IN (?, ?) AND ends_at <= ?
		 ORDER BY ends_at ASC
		 LIMIT ?`,
		domain.AuctionStatusActive,
		domain.AuctionStatusEnded,
		now,
		limit,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) LoadBids(ctx context.Context, db *gorm.DB, auctionID snowflake.ID) ([]domain.Bid, error) {
	var items []domain.Bid
	err := db.WithContext(ctx).Raw(
		`SELECT id, auction_id, bidder_id, bidder_contact, amount, currency,
			authorization_ref, capture_ref, capture_failed_at, created_at
		 FROM bids
		 WHERE auction_id = ?
		 ORDER BY amount DESC, created_at ASC, id ASC`,
		auctionID,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) FindBidByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Bid, error) {
	var item domain.Bid
	err := db.WithContext(ctx).Raw(
		`SELECT id, auction_id, bidder_id, bidder_contact, amount, currency,
			authorization_ref, capture_ref, capture_failed_at, created_at
		 FROM bids
		 WHERE id = ?
		 LIMIT 1`,
		id,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, domain.ErrNotFound
	}
	return &item, nil
}

func (r *repo) ApplySettlement(ctx context.Context, db *gorm.DB, auctionID snowflake.ID, fields domain.SettlementFields, expectedPriorStatus domain.AuctionStatus) error {
	res := db.WithContext(ctx).Exec(
		`UPDATE auctions
		 SET status = ?,
			winning_bid_id = ?,
			profit_amount = ?,
			platform_fee_amount = ?,
			seller_payout_amount = ?,
			settled_at = ?,
			updated_at = ?
		 WHERE id = ? AND status = ?`,
		fields.Status,
		fields.WinningBidID,
		fields.ProfitAmount,
		fields.PlatformFeeAmount,
		fields.SellerPayoutAmount,
		fields.SettledAt,
		fields.SettledAt,
		auctionID,
		expectedPriorStatus,
	)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrStatusConflict
	}
	return nil
}

func (r *repo) SetBidCaptureRef(ctx context.Context, db *gorm.DB, bidID snowflake.ID, captureRef string) error {
	return db.WithContext(ctx).Exec(
		`UPDATE bids
		 SET capture_ref = ?
		 WHERE id = ? AND capture_ref IS NULL`,
		captureRef,
		bidID,
	).Error
}

func (r *repo) MarkBidCaptureFailed(ctx context.Context, db *gorm.DB, bidID snowflake.ID, failedAt time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE bids
		 SET capture_failed_at = ?
		 WHERE id = ?`,
		failedAt,
		bidID,
	).Error
}

package payout

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	// Upsert inserts the payout, doing nothing when a payout for the
	// auction already exists. Returns true when this call created the row.
	Upsert(ctx context.Context, db *gorm.DB, payout *Payout) (bool, error)
	FindByAuctionID(ctx context.Context, db *gorm.DB, auctionID snowflake.ID) (*Payout, error)
}

type repo struct{}

func Provide() Repository {
	return &repo{}
}

func (r *repo) Upsert(ctx context.Context, db *gorm.DB, payout *Payout) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`INSERT INTO payouts (
			id, auction_id, seller_id, gross_amount, fee_amount, net_amount,
			currency, status, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (auction_id) DO NOTHING`,
		payout.ID,
		payout.AuctionID,
		payout.SellerID,
		payout.GrossAmount,
		payout.FeeAmount,
		payout.NetAmount,
		payout.Currency,
		payout.Status,
		payout.CreatedAt,
		payout.UpdatedAt,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) FindByAuctionID(ctx context.Context, db *gorm.DB, auctionID snowflake.ID) (*Payout, error) {
	var item Payout
	err := db.WithContext(ctx).Raw(
		`SELECT id, auction_id, seller_id, gross_amount, fee_amount, net_amount,
			currency, status, created_at, updated_at
		 FROM payouts
		 WHERE auction_id = ?
		 LIMIT 1`,
		auctionID,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

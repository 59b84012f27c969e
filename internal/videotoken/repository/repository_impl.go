package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glamlot/glamlot/internal/videotoken/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) FindActive(ctx context.Context, db *gorm.DB, auctionID, bidID snowflake.ID) (*domain.Token, error) {
	var item domain.Token
	err := db.WithContext(ctx).Raw(
		`SELECT id, auction_id, bid_id, secret, expires_at, retakes_left,
			uploaded_at, deleted_at, created_at, updated_at
		 FROM video_tokens
		 WHERE auction_id = ? AND bid_id = ? AND deleted_at IS NULL
		 LIMIT 1`,
		auctionID,
		bidID,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, domain.ErrNotFound
	}
	return &item, nil
}

// InsertIfAbsent guards against concurrent issuance: the anti-join makes
// the insert a no-op when an active token already exists, so two racing
// callers converge on the same row without relying on a partial unique
// index being available on every dialect.
func (r *repo) InsertIfAbsent(ctx context.Context, db *gorm.DB, token *domain.Token) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`INSERT INTO video_tokens (
			id, auction_id, bid_id, secret, expires_at, retakes_left,
			uploaded_at, deleted_at, created_at, updated_at
		)
		SELECT ?, ?, ?, ?, ?, ?, NULL, NULL, ?, ?
		WHERE NOT EXISTS (
			SELECT 1 FROM video_tokens
			WHERE auction_id = ? AND bid_id = ? AND deleted_at IS NULL
		)`,
		token.ID,
		token.AuctionID,
		token.BidID,
		token.Secret,
		token.ExpiresAt,
		token.RetakesLeft,
		token.CreatedAt,
		token.UpdatedAt,
		token.AuctionID,
		token.BidID,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) ExtendExpiry(ctx context.Context, db *gorm.DB, id snowflake.ID, expiresAt, now time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE video_tokens
		 SET expires_at = ?, updated_at = ?
		 WHERE id = ? AND deleted_at IS NULL AND uploaded_at IS NULL`,
		expiresAt,
		now,
		id,
	).Error
}

func (r *repo) ConsumeRetake(ctx context.Context, db *gorm.DB, id snowflake.ID, now time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE video_tokens
		 SET retakes_left = retakes_left - 1, updated_at = ?
		 WHERE id = ? AND deleted_at IS NULL AND uploaded_at IS NULL
			AND retakes_left > 0`,
		now,
		id,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) MarkUploaded(ctx context.Context, db *gorm.DB, id snowflake.ID, uploadedAt time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE video_tokens
		 SET uploaded_at = ?, updated_at = ?
		 WHERE id = ? AND deleted_at IS NULL AND uploaded_at IS NULL`,
		uploadedAt,
		uploadedAt,
		id,
	).Error
}

func (r *repo) SoftDelete(ctx context.Context, db *gorm.DB, id snowflake.ID, deletedAt time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE video_tokens
		 SET deleted_at = ?, updated_at = ?
		 WHERE id = ? AND deleted_at IS NULL`,
		deletedAt,
		deletedAt,
		id,
	).Error
}

// Package domain contains the video recording token model and contracts.
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

var (
	// ErrNotFound is returned when no active token exists for the pair.
	ErrNotFound = errors.New("videotoken: not found")
	// ErrAlreadyUploaded is returned when a retake is requested after the
	// recording was uploaded. Upload is a one-way transition.
	ErrAlreadyUploaded = errors.New("videotoken: already uploaded")
	// ErrNoRetakesLeft is returned when the retake allowance is exhausted.
	ErrNoRetakesLeft = errors.New("videotoken: no retakes left")
)

// Token grants the auction winner a time-limited, bounded number of video
// recording attempts. At most one non-deleted row exists per
// (auction, bid) pair.
type Token struct {
	ID          snowflake.ID `gorm:"primaryKey"`
	AuctionID   snowflake.ID `gorm:"not null;index"`
	BidID       snowflake.ID `gorm:"not null"`
	Secret      string       `gorm:"type:text;not null"`
	ExpiresAt   time.Time    `gorm:"not null"`
	RetakesLeft int          `gorm:"not null"`
	UploadedAt  *time.Time   `gorm:""`
	DeletedAt   *time.Time   `gorm:"index"`
	CreatedAt   time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt   time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Token) TableName() string { return "video_tokens" }

// Uploaded reports whether the recording has been uploaded, which makes
// the token terminal.
func (t *Token) Uploaded() bool { return t.UploadedAt != nil }

// Expired reports whether the token's expiry has passed.
func (t *Token) Expired(now time.Time) bool { return !t.ExpiresAt.After(now) }

type Repository interface {
	// FindActive returns the non-deleted token for the pair, or
	// ErrNotFound.
	FindActive(ctx context.Context, db *gorm.DB, auctionID, bidID snowflake.ID) (*Token, error)
	// InsertIfAbsent inserts the token unless an active one already exists
	// for the pair. Returns true when this call created the row.
	InsertIfAbsent(ctx context.Context, db *gorm.DB, token *Token) (bool, error)
	// ExtendExpiry pushes the expiry of an active, not-yet-uploaded token.
	ExtendExpiry(ctx context.Context, db *gorm.DB, id snowflake.ID, expiresAt, now time.Time) error
	// ConsumeRetake decrements the allowance iff retakes remain and the
	// recording is not uploaded. Returns true when a retake was consumed.
	ConsumeRetake(ctx context.Context, db *gorm.DB, id snowflake.ID, now time.Time) (bool, error)
	// MarkUploaded is the one-way transition into the terminal state.
	MarkUploaded(ctx context.Context, db *gorm.DB, id snowflake.ID, uploadedAt time.Time) error
	// SoftDelete retires a consumed token.
	SoftDelete(ctx context.Context, db *gorm.DB, id snowflake.ID, deletedAt time.Time) error
}

// Service issues and manages recording tokens.
type Service interface {
	// IssueOrReuse returns the active token for the pair, minting one when
	// none exists and extending the expiry of an expired, not-yet-uploaded
	// one. Safe to call concurrently; never creates a duplicate.
	IssueOrReuse(ctx context.Context, auctionID, bidID snowflake.ID) (*Token, error)
	ConsumeRetake(ctx context.Context, auctionID, bidID snowflake.ID) (*Token, error)
	MarkUploaded(ctx context.Context, auctionID, bidID snowflake.ID) error
}

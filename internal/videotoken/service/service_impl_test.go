package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glamlot/glamlot/internal/clock"
	"github.com/glamlot/glamlot/internal/config"
	"github.com/glamlot/glamlot/internal/videotoken/domain"
	"github.com/glamlot/glamlot/internal/videotoken/repository"
	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var testDBSeq int

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	testDBSeq++
	dsn := fmt.Sprintf("file:videotoken_%d?mode=memory&cache=shared", testDBSeq)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.Exec(`CREATE TABLE video_tokens (
		id BIGINT PRIMARY KEY,
		auction_id BIGINT NOT NULL,
		bid_id BIGINT NOT NULL,
		secret TEXT NOT NULL,
		expires_at TIMESTAMP NOT NULL,
		retakes_left INTEGER NOT NULL,
		uploaded_at TIMESTAMP,
		deleted_at TIMESTAMP,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`).Error; err != nil {
		t.Fatalf("create schema: %v", err)
	}
	return db
}

func newTestService(t *testing.T, db *gorm.DB, clk clock.Clock) *Service {
	t.Helper()
	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("snowflake node: %v", err)
	}
	svc := NewService(ServiceParam{
		DB:     db,
		Log:    zap.NewNop(),
		GenID:  node,
		Clock:  clk,
		Repo:   repository.Provide(),
		Holder: config.NewStaticMarketplaceConfigHolder(config.DefaultMarketplaceConfig()),
	})
	return svc.(*Service)
}

func TestIssueOrReuseMintsOnce(t *testing.T) {
	db := newTestDB(t)
	clk := clock.NewFakeClock(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))
	svc := newTestService(t, db, clk)
	ctx := context.Background()

	auctionID := snowflake.ID(100)
	bidID := snowflake.ID(200)

	first, err := svc.IssueOrReuse(ctx, auctionID, bidID)
	if err != nil {
		t.Fatalf("first issue: %v", err)
	}
	if first.Secret == "" {
		t.Fatal("empty secret")
	}
	if first.RetakesLeft != 1 {
		t.Fatalf("retakes = %d, want 1", first.RetakesLeft)
	}
	wantExpiry := clk.Now().Add(24 * time.Hour)
	if !first.ExpiresAt.Equal(wantExpiry) {
		t.Fatalf("expires_at = %v, want %v", first.ExpiresAt, wantExpiry)
	}

	second, err := svc.IssueOrReuse(ctx, auctionID, bidID)
	if err != nil {
		t.Fatalf("second issue: %v", err)
	}
	if second.ID != first.ID || second.Secret != first.Secret {
		t.Fatal("second issue minted a new token instead of reusing")
	}

	var count int64
	db.Raw(`SELECT COUNT(*) FROM video_tokens WHERE auction_id = ?`, auctionID).Scan(&count)
	if count != 1 {
		t.Fatalf("token rows = %d, want 1", count)
	}
}

func TestIssueOrReuseExtendsExpiredToken(t *testing.T) {
	db := newTestDB(t)
	clk := clock.NewFakeClock(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))
	svc := newTestService(t, db, clk)
	ctx := context.Background()

	first, err := svc.IssueOrReuse(ctx, 100, 200)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	clk.Advance(30 * time.Hour)

	reused, err := svc.IssueOrReuse(ctx, 100, 200)
	if err != nil {
		t.Fatalf("reissue: %v", err)
	}
	if reused.Secret != first.Secret {
		t.Fatal("extension must keep the same secret")
	}
	wantExpiry := clk.Now().Add(24 * time.Hour)
	if !reused.ExpiresAt.Equal(wantExpiry) {
		t.Fatalf("expires_at = %v, want %v", reused.ExpiresAt, wantExpiry)
	}
}

func TestIssueOrReuseDoesNotExtendUploadedToken(t *testing.T) {
	db := newTestDB(t)
	clk := clock.NewFakeClock(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))
	svc := newTestService(t, db, clk)
	ctx := context.Background()

	first, err := svc.IssueOrReuse(ctx, 100, 200)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if err := svc.MarkUploaded(ctx, 100, 200); err != nil {
		t.Fatalf("mark uploaded: %v", err)
	}

	clk.Advance(30 * time.Hour)

	reused, err := svc.IssueOrReuse(ctx, 100, 200)
	if err != nil {
		t.Fatalf("reissue: %v", err)
	}
	if !reused.ExpiresAt.Equal(first.ExpiresAt) {
		t.Fatal("uploaded token must not get a fresh expiry")
	}
}

func TestConsumeRetake(t *testing.T) {
	db := newTestDB(t)
	clk := clock.NewFakeClock(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))
	svc := newTestService(t, db, clk)
	ctx := context.Background()

	if _, err := svc.IssueOrReuse(ctx, 100, 200); err != nil {
		t.Fatalf("issue: %v", err)
	}

	token, err := svc.ConsumeRetake(ctx, 100, 200)
	if err != nil {
		t.Fatalf("consume: %v", err)
	}
	if token.RetakesLeft != 0 {
		t.Fatalf("retakes = %d, want 0", token.RetakesLeft)
	}

	if _, err := svc.ConsumeRetake(ctx, 100, 200); !errors.Is(err, domain.ErrNoRetakesLeft) {
		t.Fatalf("err = %v, want ErrNoRetakesLeft", err)
	}
}

func TestConsumeRetakeAfterUpload(t *testing.T) {
	db := newTestDB(t)
	clk := clock.NewFakeClock(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))
	svc := newTestService(t, db, clk)
	ctx := context.Background()

	if _, err := svc.IssueOrReuse(ctx, 100, 200); err != nil {
		t.Fatalf("issue: %v", err)
	}
	if err := svc.MarkUploaded(ctx, 100, 200); err != nil {
		t.Fatalf("mark uploaded: %v", err)
	}

	if _, err := svc.ConsumeRetake(ctx, 100, 200); !errors.Is(err, domain.ErrAlreadyUploaded) {
		t.Fatalf("err = %v, want ErrAlreadyUploaded", err)
	}
}

func TestMarkUploadedIsIdempotent(t *testing.T) {
	db := newTestDB(t)
	clk := clock.NewFakeClock(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))
	svc := newTestService(t, db, clk)
	ctx := context.Background()

	if _, err := svc.IssueOrReuse(ctx, 100, 200); err != nil {
		t.Fatalf("issue: %v", err)
	}
	if err := svc.MarkUploaded(ctx, 100, 200); err != nil {
		t.Fatalf("first upload: %v", err)
	}
	if err := svc.MarkUploaded(ctx, 100, 200); err != nil {
		t.Fatalf("second upload: %v", err)
	}
}

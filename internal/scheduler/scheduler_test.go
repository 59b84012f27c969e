package scheduler

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	auctionrepo "github.com/glamlot/glamlot/internal/auction/repository"
	auditrepo "github.com/glamlot/glamlot/internal/audit/repository"
	auditservice "github.com/glamlot/glamlot/internal/audit/service"
	"github.com/glamlot/glamlot/internal/clock"
	"github.com/glamlot/glamlot/internal/config"
	"github.com/glamlot/glamlot/internal/notification"
	"github.com/glamlot/glamlot/internal/payout"
	"github.com/glamlot/glamlot/internal/providers/email"
	"github.com/glamlot/glamlot/internal/settlement"
	videorepo "github.com/glamlot/glamlot/internal/videotoken/repository"
	videoservice "github.com/glamlot/glamlot/internal/videotoken/service"
	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type recordingProcessor struct {
	captures int
}

func (p *recordingProcessor) Authorize(ctx context.Context, payer string, amount int64, currency string) (string, error) {
	return "auth", nil
}

func (p *recordingProcessor) Capture(ctx context.Context, authorizationRef string, amount int64) (string, error) {
	p.captures++
	return fmt.Sprintf("cap_%d", p.captures), nil
}

func (p *recordingProcessor) Cancel(ctx context.Context, authorizationRef string) error {
	return nil
}

var schedDBSeq int

func newSchedulerFixture(t *testing.T) (*Scheduler, *gorm.DB, *clock.FakeClock, *snowflake.Node) {
	t.Helper()
	schedDBSeq++
	dsn := fmt.Sprintf("file:scheduler_%d?mode=memory&cache=shared", schedDBSeq)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	for _, schema := range []string{
		`CREATE TABLE auctions (
			id BIGINT PRIMARY KEY, seller_id BIGINT NOT NULL, title TEXT NOT NULL,
			starting_price BIGINT NOT NULL, current_price BIGINT NOT NULL, currency TEXT NOT NULL,
			status TEXT NOT NULL, ends_at TIMESTAMP NOT NULL, winning_bid_id BIGINT,
			profit_amount BIGINT, platform_fee_amount BIGINT, seller_payout_amount BIGINT,
			settled_at TIMESTAMP, created_at TIMESTAMP NOT NULL, updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE bids (
			id BIGINT PRIMARY KEY, auction_id BIGINT NOT NULL, bidder_id BIGINT,
			bidder_contact TEXT NOT NULL, amount BIGINT NOT NULL, currency TEXT NOT NULL,
			authorization_ref TEXT NOT NULL, capture_ref TEXT, capture_failed_at TIMESTAMP,
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE payouts (
			id BIGINT PRIMARY KEY, auction_id BIGINT NOT NULL UNIQUE, seller_id BIGINT NOT NULL,
			gross_amount BIGINT NOT NULL, fee_amount BIGINT NOT NULL, net_amount BIGINT NOT NULL,
			currency TEXT NOT NULL, status TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL, updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE video_tokens (
			id BIGINT PRIMARY KEY, auction_id BIGINT NOT NULL, bid_id BIGINT NOT NULL,
			secret TEXT NOT NULL, expires_at TIMESTAMP NOT NULL, retakes_left INTEGER NOT NULL,
			uploaded_at TIMESTAMP, deleted_at TIMESTAMP,
			created_at TIMESTAMP NOT NULL, updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE audit_logs (
			id BIGINT PRIMARY KEY, actor_type TEXT NOT NULL, actor_id TEXT,
			action TEXT NOT NULL, target_type TEXT NOT NULL, target_id TEXT,
			metadata TEXT, created_at TIMESTAMP NOT NULL
		)`,
	} {
		if err := db.Exec(schema).Error; err != nil {
			t.Fatalf("create schema: %v", err)
		}
	}

	clk := clock.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	node, err := snowflake.NewNode(2)
	if err != nil {
		t.Fatalf("snowflake node: %v", err)
	}
	log := zap.NewNop()
	holder := config.NewStaticMarketplaceConfigHolder(config.DefaultMarketplaceConfig())

	engine := settlement.NewEngine(settlement.EngineParams{
		DB:     db,
		Log:    log,
		GenID:  node,
		Clock:  clk,
		Holder: holder,
		Repo:   auctionrepo.Provide(),
		Payouts: payout.Provide(),
		Tokens: videoservice.NewService(videoservice.ServiceParam{
			DB: db, Log: log, GenID: node, Clock: clk,
			Repo: videorepo.Provide(), Holder: holder,
		}),
		Proc:   &recordingProcessor{},
		Notify: notification.New(notification.Param{Provider: &email.NoOpProvider{}, Log: log}),
		Audit: auditservice.NewService(auditservice.Params{
			DB: db, Log: log, GenID: node, Clock: clk, Repo: auditrepo.Provide(),
		}),
	})

	sched, err := New(Params{
		Log:    log,
		Engine: engine,
		GenID:  node,
		Clock:  clk,
	})
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}
	return sched, db, clk, node
}

func TestRunOnceSettlesEndedAuctions(t *testing.T) {
	sched, db, clk, node := newSchedulerFixture(t)

	auctionID := node.Generate()
	now := clk.Now()
	if err := db.Exec(
		`INSERT INTO auctions (id, seller_id, title, starting_price, current_price, currency,
			status, ends_at, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		auctionID, node.Generate(), "Hair styling session", 10000, 10000, "SAR",
		"ended", now.Add(-time.Hour), now.Add(-24*time.Hour), now.Add(-time.Hour),
	).Error; err != nil {
		t.Fatalf("seed auction: %v", err)
	}
	if err := db.Exec(
		`INSERT INTO bids (id, auction_id, bidder_contact, amount, currency, authorization_ref, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		node.Generate(), auctionID, "winner@example.com", 15000, "SAR", "auth_win", now.Add(-2*time.Hour),
	).Error; err != nil {
		t.Fatalf("seed bid: %v", err)
	}

	if err := sched.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}

	var status string
	db.Raw(`SELECT status FROM auctions WHERE id = ?`, auctionID).Scan(&status)
	if status != "completed" {
		t.Fatalf("status = %s, want completed", status)
	}
}

func TestRunOnceWithNothingToDo(t *testing.T) {
	sched, _, _, _ := newSchedulerFixture(t)
	if err := sched.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once on empty table: %v", err)
	}
}

func TestConfigDefaults(t *testing.T) {
	cfg := Config{}.withDefaults()
	if cfg.RunInterval != time.Minute || cfg.BatchSize != 50 || cfg.JobTimeout != 30*time.Second {
		t.Fatalf("defaults = %+v", cfg)
	}
}

package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	auctiondomain "github.com/glamlot/glamlot/internal/auction/domain"
	auctionrepo "github.com/glamlot/glamlot/internal/auction/repository"
	auditrepo "github.com/glamlot/glamlot/internal/audit/repository"
	auditservice "github.com/glamlot/glamlot/internal/audit/service"
	"github.com/glamlot/glamlot/internal/clock"
	"github.com/glamlot/glamlot/internal/config"
	"github.com/glamlot/glamlot/internal/notification"
	"github.com/glamlot/glamlot/internal/payout"
	"github.com/glamlot/glamlot/internal/settlement"
	videorepo "github.com/glamlot/glamlot/internal/videotoken/repository"
	videoservice "github.com/glamlot/glamlot/internal/videotoken/service"
	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const testAdminToken = "test-admin-token"

type recordingProcessor struct {
	captures  []string
	cancelled []string
}

func (p *recordingProcessor) Authorize(ctx context.Context, payer string, amount int64, currency string) (string, error) {
	return "auth_" + payer, nil
}

func (p *recordingProcessor) Capture(ctx context.Context, authorizationRef string, amount int64) (string, error) {
	p.captures = append(p.captures, authorizationRef)
	return "cap_" + authorizationRef, nil
}

func (p *recordingProcessor) Cancel(ctx context.Context, authorizationRef string) error {
	p.cancelled = append(p.cancelled, authorizationRef)
	return nil
}

type recordingEmail struct {
	sent []string
}

func (e *recordingEmail) Send(ctx context.Context, to []string, subject string, htmlBody string) error {
	e.sent = append(e.sent, to[0])
	return nil
}

var serverDBSeq int

func newServerTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	serverDBSeq++
	dsn := fmt.Sprintf("file:server_%d?mode=memory&cache=shared", serverDBSeq)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	schemas := []string{
		`CREATE TABLE auctions (
			id BIGINT PRIMARY KEY,
			seller_id BIGINT NOT NULL,
			title TEXT NOT NULL,
			starting_price BIGINT NOT NULL,
			current_price BIGINT NOT NULL,
			currency TEXT NOT NULL,
			status TEXT NOT NULL,
			ends_at TIMESTAMP NOT NULL,
			winning_bid_id BIGINT,
			profit_amount BIGINT,
			platform_fee_amount BIGINT,
			seller_payout_amount BIGINT,
			settled_at TIMESTAMP,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE bids (
			id BIGINT PRIMARY KEY,
			auction_id BIGINT NOT NULL,
			bidder_id BIGINT,
			bidder_contact TEXT NOT NULL,
			amount BIGINT NOT NULL,
			currency TEXT NOT NULL,
			authorization_ref TEXT NOT NULL,
			capture_ref TEXT,
			capture_failed_at TIMESTAMP,
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE payouts (
			id BIGINT PRIMARY KEY,
			auction_id BIGINT NOT NULL UNIQUE,
			seller_id BIGINT NOT NULL,
			gross_amount BIGINT NOT NULL,
			fee_amount BIGINT NOT NULL,
			net_amount BIGINT NOT NULL,
			currency TEXT NOT NULL,
			status TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE video_tokens (
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
		)`,
		`CREATE TABLE audit_logs (
			id BIGINT PRIMARY KEY,
			actor_type TEXT NOT NULL,
			actor_id TEXT,
			action TEXT NOT NULL,
			target_type TEXT NOT NULL,
			target_id TEXT,
			metadata TEXT,
			created_at TIMESTAMP NOT NULL
		)`,
	}
	for _, schema := range schemas {
		if err := db.Exec(schema).Error; err != nil {
			t.Fatalf("create schema: %v", err)
		}
	}
	return db
}

type serverFixture struct {
	srv   *Server
	db    *gorm.DB
	clock *clock.FakeClock
	node  *snowflake.Node
	email *recordingEmail
}

func newServerFixture(t *testing.T) *serverFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := newServerTestDB(t)
	clk := clock.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("snowflake node: %v", err)
	}
	holder := config.NewStaticMarketplaceConfigHolder(config.DefaultMarketplaceConfig())
	log := zap.NewNop()
	mail := &recordingEmail{}

	tokens := videoservice.NewService(videoservice.ServiceParam{
		DB:     db,
		Log:    log,
		GenID:  node,
		Clock:  clk,
		Repo:   videorepo.Provide(),
		Holder: holder,
	})
	audit := auditservice.NewService(auditservice.Params{
		DB:    db,
		Log:   log,
		GenID: node,
		Clock: clk,
		Repo:  auditrepo.Provide(),
	})
	engine := settlement.NewEngine(settlement.EngineParams{
		DB:      db,
		Log:     log,
		GenID:   node,
		Clock:   clk,
		Holder:  holder,
		Repo:    auctionrepo.Provide(),
		Payouts: payout.Provide(),
		Tokens:  tokens,
		Proc:    &recordingProcessor{},
		Notify:  notification.New(notification.Param{Provider: mail, Log: log}),
		Audit:   audit,
	})

	router := gin.New()
	router.Use(ErrorHandlingMiddleware())
	srv := &Server{
		engine:      router,
		cfg:         config.Config{AdminAPIToken: testAdminToken},
		db:          db,
		log:         log,
		genID:       node,
		settler:     engine,
		auctionRepo: auctionrepo.Provide(),
		payouts:     payout.Provide(),
		auditSvc:    audit,
	}
	srv.registerAdminRoutes()

	return &serverFixture{srv: srv, db: db, clock: clk, node: node, email: mail}
}

func (f *serverFixture) seedAuction(t *testing.T, startingPrice int64, status auctiondomain.AuctionStatus) snowflake.ID {
	t.Helper()
	id := f.node.Generate()
	now := f.clock.Now()
	err := f.db.Exec(
		`INSERT INTO auctions (id, seller_id, title, starting_price, current_price, currency,
			status, ends_at, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, f.node.Generate(), "Evening hair styling", startingPrice, startingPrice, "SAR",
		status, now.Add(-time.Hour), now.Add(-24*time.Hour), now.Add(-time.Hour),
	).Error
	if err != nil {
		t.Fatalf("seed auction: %v", err)
	}
	return id
}

func (f *serverFixture) seedBid(t *testing.T, auctionID snowflake.ID, amount int64, authRef string) snowflake.ID {
	t.Helper()
	id := f.node.Generate()
	err := f.db.Exec(
		`INSERT INTO bids (id, auction_id, bidder_contact, amount, currency, authorization_ref, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, auctionID, "bidder@example.com", amount, "SAR", authRef, f.clock.Now().Add(-2*time.Hour),
	).Error
	if err != nil {
		t.Fatalf("seed bid: %v", err)
	}
	return id
}

func (f *serverFixture) do(method, path, token string, body []byte) *httptest.ResponseRecorder {
	var reader *bytes.Buffer
	if body == nil {
		reader = bytes.NewBuffer(nil)
	} else {
		reader = bytes.NewBuffer(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp := httptest.NewRecorder()
	f.srv.engine.ServeHTTP(resp, req)
	return resp
}

func TestAdminAuthRejectsMissingAndWrongToken(t *testing.T) {
	f := newServerFixture(t)
	auctionID := f.seedAuction(t, 10000, auctiondomain.AuctionStatusEnded)
	path := fmt.Sprintf("/admin/auctions/%s", auctionID)

	if resp := f.do(http.MethodGet, path, "", nil); resp.Code != http.StatusUnauthorized {
		t.Fatalf("no token: status = %d, want 401", resp.Code)
	}
	if resp := f.do(http.MethodGet, path, "wrong-token", nil); resp.Code != http.StatusUnauthorized {
		t.Fatalf("wrong token: status = %d, want 401", resp.Code)
	}
	if resp := f.do(http.MethodGet, path, testAdminToken, nil); resp.Code != http.StatusOK {
		t.Fatalf("valid token: status = %d, want 200, body %s", resp.Code, resp.Body.String())
	}
}

func TestAdminSurfaceClosedWithoutConfiguredToken(t *testing.T) {
	f := newServerFixture(t)
	f.srv.cfg.AdminAPIToken = ""

	resp := f.do(http.MethodPost, "/admin/settlements/run", testAdminToken, nil)
	if resp.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", resp.Code)
	}
}

func TestRunSettlementsEndpoint(t *testing.T) {
	f := newServerFixture(t)
	auctionID := f.seedAuction(t, 10000, auctiondomain.AuctionStatusEnded)
	f.seedBid(t, auctionID, 15000, "auth_a")

	resp := f.do(http.MethodPost, "/admin/settlements/run", testAdminToken, nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", resp.Code, resp.Body.String())
	}

	var report settlement.Report
	if err := json.Unmarshal(resp.Body.Bytes(), &report); err != nil {
		t.Fatalf("unmarshal report: %v", err)
	}
	if report.TotalProcessed != 1 || report.ClosedCount != 1 {
		t.Fatalf("report = %+v, want 1 processed 1 closed", report)
	}
	if len(f.email.sent) != 1 {
		t.Fatalf("winner emails = %d, want 1", len(f.email.sent))
	}

	auction, err := auctionrepo.Provide().FindByID(context.Background(), f.db, auctionID)
	if err != nil {
		t.Fatalf("load auction: %v", err)
	}
	if auction.Status != auctiondomain.AuctionStatusCompleted {
		t.Fatalf("status = %s, want completed", auction.Status)
	}
}

func TestRunSettlementsRejectsBadBatchSize(t *testing.T) {
	f := newServerFixture(t)

	resp := f.do(http.MethodPost, "/admin/settlements/run", testAdminToken, []byte(`{"batch_size":-1}`))
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.Code)
	}
}

func TestGetAuctionSettlementSnapshot(t *testing.T) {
	f := newServerFixture(t)
	auctionID := f.seedAuction(t, 10000, auctiondomain.AuctionStatusEnded)
	f.seedBid(t, auctionID, 15000, "auth_a")

	if resp := f.do(http.MethodPost, "/admin/settlements/run", testAdminToken, nil); resp.Code != http.StatusOK {
		t.Fatalf("settle: status = %d", resp.Code)
	}

	resp := f.do(http.MethodGet, fmt.Sprintf("/admin/auctions/%s", auctionID), testAdminToken, nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", resp.Code, resp.Body.String())
	}

	var body struct {
		Auction auctionView `json:"auction"`
		Bids    []bidView   `json:"bids"`
		Payout  *payoutView `json:"payout"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if body.Auction.Status != auctiondomain.AuctionStatusCompleted {
		t.Fatalf("auction status = %s, want completed", body.Auction.Status)
	}
	if len(body.Bids) != 1 || !body.Bids[0].Captured {
		t.Fatalf("bids = %+v, want one captured bid", body.Bids)
	}
	if body.Payout == nil {
		t.Fatal("expected payout in snapshot")
	}
	if body.Payout.GrossAmount != 15000 || body.Payout.FeeAmount != 1250 || body.Payout.NetAmount != 13750 {
		t.Fatalf("payout = %+v, want 15000/1250/13750", body.Payout)
	}
}

func TestGetAuctionSettlementNotFound(t *testing.T) {
	f := newServerFixture(t)

	resp := f.do(http.MethodGet, "/admin/auctions/123456789", testAdminToken, nil)
	if resp.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.Code)
	}
}

func TestResendWinnerNotification(t *testing.T) {
	f := newServerFixture(t)
	auctionID := f.seedAuction(t, 10000, auctiondomain.AuctionStatusEnded)
	f.seedBid(t, auctionID, 15000, "auth_a")

	// Not settled yet: nothing to resend.
	resp := f.do(http.MethodPost, fmt.Sprintf("/admin/auctions/%s/resend-winner", auctionID), testAdminToken, nil)
	if resp.Code != http.StatusConflict {
		t.Fatalf("unsettled: status = %d, want 409", resp.Code)
	}

	if resp := f.do(http.MethodPost, "/admin/settlements/run", testAdminToken, nil); resp.Code != http.StatusOK {
		t.Fatalf("settle: status = %d", resp.Code)
	}

	resp = f.do(http.MethodPost, fmt.Sprintf("/admin/auctions/%s/resend-winner", auctionID), testAdminToken, nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("resend: status = %d, body %s", resp.Code, resp.Body.String())
	}

	var body struct {
		BidID          snowflake.ID `json:"bid_id"`
		TokenExpiresAt time.Time    `json:"token_expires_at"`
		RetakesLeft    int          `json:"retakes_left"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if body.BidID == 0 {
		t.Fatal("expected bid_id in resend response")
	}
	if got := resp.Body.String(); bytes.Contains([]byte(got), []byte("secret")) {
		t.Fatalf("resend response leaks token secret: %s", got)
	}

	// One email from settling plus one from the resend.
	if len(f.email.sent) != 2 {
		t.Fatalf("emails = %d, want 2", len(f.email.sent))
	}
}

func TestListAuditLogsAfterSettlement(t *testing.T) {
	f := newServerFixture(t)
	auctionID := f.seedAuction(t, 10000, auctiondomain.AuctionStatusEnded)
	f.seedBid(t, auctionID, 15000, "auth_a")

	if resp := f.do(http.MethodPost, "/admin/settlements/run", testAdminToken, nil); resp.Code != http.StatusOK {
		t.Fatalf("settle: status = %d", resp.Code)
	}

	resp := f.do(http.MethodGet, "/admin/audit-logs?action=settlement.completed", testAdminToken, nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", resp.Code, resp.Body.String())
	}

	var body struct {
		Data []json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(body.Data) != 1 {
		t.Fatalf("audit logs = %d, want 1", len(body.Data))
	}
}

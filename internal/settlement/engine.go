// Package settlement drives ended auctions to their terminal state:
// rank the bids, capture payment with fallback through lower candidates,
// release every other authorization, split the proceeds, issue the
// winner's recording token and fire the winner notification.
package settlement

import (
	"context"
	"errors"
	"fmt"

	"github.com/bwmarrin/snowflake"
	auctiondomain "github.com/glamlot/glamlot/internal/auction/domain"
	"github.com/glamlot/glamlot/internal/auction/ranking"
	auditdomain "github.com/glamlot/glamlot/internal/audit/domain"
	"github.com/glamlot/glamlot/internal/clock"
	"github.com/glamlot/glamlot/internal/config"
	"github.com/glamlot/glamlot/internal/notification"
	"github.com/glamlot/glamlot/internal/observability/metrics"
	"github.com/glamlot/glamlot/internal/payout"
	"github.com/glamlot/glamlot/internal/providers/processor"
	"github.com/glamlot/glamlot/internal/settlement/guard"
	videodomain "github.com/glamlot/glamlot/internal/videotoken/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Outcome classifies how one auction fared in a settlement run.
type Outcome string

const (
	OutcomeWinner   Outcome = "winner"
	OutcomeNoWinner Outcome = "no_winner"
	// OutcomeSkipped means another invocation settled the auction first,
	// or its status made it ineligible. Success by another actor.
	OutcomeSkipped Outcome = "skipped"
	OutcomeError   Outcome = "error"
)

// AuctionResult is the per-auction outcome reported to the caller.
type AuctionResult struct {
	AuctionID      snowflake.ID  `json:"auction_id"`
	Outcome        Outcome       `json:"outcome"`
	WinningBidID   *snowflake.ID `json:"winning_bid_id,omitempty"`
	CapturedAmount int64         `json:"captured_amount,omitempty"`
	Err            error         `json:"-"`
}

// AuctionError surfaces a failed auction in the aggregate report.
type AuctionError struct {
	AuctionID snowflake.ID `json:"auction_id"`
	Error     string       `json:"error"`
}

// Report aggregates one settlement batch. One auction's failure never
// aborts the rest; it lands in Errors instead.
type Report struct {
	ClosedCount    int             `json:"closed_count"`
	TotalProcessed int             `json:"total_processed"`
	Results        []AuctionResult `json:"results"`
	Errors         []AuctionError  `json:"errors"`
}

type Engine struct {
	db  *gorm.DB
	log *zap.Logger

	genID   *snowflake.Node
	clock   clock.Clock
	holder  *config.MarketplaceConfigHolder
	repo    auctiondomain.Repository
	payouts payout.Repository
	tokens  videodomain.Service
	proc    processor.Processor
	notify  notification.Trigger
	audit   auditdomain.Service
}

type EngineParams struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Clock   clock.Clock
	Holder  *config.MarketplaceConfigHolder
	Repo    auctiondomain.Repository
	Payouts payout.Repository
	Tokens  videodomain.Service
	Proc    processor.Processor
	Notify  notification.Trigger
	Audit   auditdomain.Service
}

func NewEngine(p EngineParams) *Engine {
	return &Engine{
		db:  p.DB,
		log: p.Log.Named("settlement.engine"),

		genID:   p.GenID,
		clock:   p.Clock,
		holder:  p.Holder,
		repo:    p.Repo,
		payouts: p.Payouts,
		tokens:  p.Tokens,
		proc:    p.Proc,
		notify:  p.Notify,
		audit:   p.Audit,
	}
}

var Module = fx.Module("settlement",
	fx.Provide(NewEngine),
)

// Run settles one batch of ended auctions sequentially. Safe to invoke
// while another run is in flight: every write along the way is
// conditional, so overlapping runs converge instead of double-charging.
func (e *Engine) Run(ctx context.Context, batchSize int) (Report, error) {
	now := e.clock.Now()
	auctions, err := e.repo.LoadEndedAuctions(ctx, e.db, now, batchSize)
	if err != nil {
		return Report{}, fmt.Errorf("load ended auctions: %w", err)
	}

	report := Report{TotalProcessed: len(auctions)}
	for i := range auctions {
		result := e.SettleAuction(ctx, &auctions[i])
		report.Results = append(report.Results, result)
		switch result.Outcome {
		case OutcomeWinner, OutcomeNoWinner:
			report.ClosedCount++
		case OutcomeError:
			report.Errors = append(report.Errors, AuctionError{
				AuctionID: result.AuctionID,
				Error:     result.Err.Error(),
			})
		}
		metrics.Settlement().IncAuctionSettled(string(result.Outcome))
	}
	return report, nil
}

// SettleAuction drives a single auction to its terminal state. Errors are
// recorded in the result, never propagated, so a bad auction cannot take
// the batch down with it.
func (e *Engine) SettleAuction(ctx context.Context, auction *auctiondomain.Auction) AuctionResult {
	log := e.log.With(zap.String("auction_id", auction.ID.String()))

	if !guard.CanSettle(auction, e.clock.Now()) {
		log.Debug("auction not eligible for settlement", zap.String("status", string(auction.Status)))
		return AuctionResult{AuctionID: auction.ID, Outcome: OutcomeSkipped}
	}

	bids, err := e.repo.LoadBids(ctx, e.db, auction.ID)
	if err != nil {
		return e.failed(auction.ID, fmt.Errorf("load bids: %w", err))
	}
	ranked := ranking.Rank(bids)

	capture, err := e.settlePayment(ctx, log, auction, ranked)
	if err != nil {
		return e.failed(auction.ID, err)
	}

	if capture == nil {
		return e.closeNoWinner(ctx, log, auction)
	}
	return e.closeWithWinner(ctx, log, auction, capture)
}

func (e *Engine) failed(auctionID snowflake.ID, err error) AuctionResult {
	e.log.Error("auction settlement failed",
		zap.String("auction_id", auctionID.String()),
		zap.Error(err),
	)
	return AuctionResult{AuctionID: auctionID, Outcome: OutcomeError, Err: err}
}

// captureResult identifies the winning bid and what was actually charged,
// which can be less than the top bid after fallback.
type captureResult struct {
	Bid    *auctiondomain.Bid
	Amount int64
	Ref    string
}

// settlePayment walks the ranked candidates until one captures, then
// releases every other outstanding authorization. Exactly one of
// {capture succeeded, all cancelled} holds on return. A nil result with a
// nil error means no candidate captured.
func (e *Engine) settlePayment(ctx context.Context, log *zap.Logger, auction *auctiondomain.Auction, ranked []auctiondomain.Bid) (*captureResult, error) {
	// Re-run short circuit: a bid already bearing a capture reference is
	// the winner from a previous invocation that died before finishing.
	// Never capture twice.
	for i := range ranked {
		if ranked[i].CaptureRef != nil {
			log.Info("capture reference already present, skipping capture",
				zap.String("bid_id", ranked[i].ID.String()),
			)
			result := &captureResult{Bid: &ranked[i], Amount: ranked[i].Amount, Ref: *ranked[i].CaptureRef}
			e.cancelOthers(ctx, log, ranked, ranked[i].ID)
			return result, nil
		}
	}
	if auction.WinningBidID != nil {
		// A recorded winner whose bid carries no capture reference is a
		// broken invariant; refuse to guess.
		return nil, fmt.Errorf("auction %s has winning bid %s with no capture reference", auction.ID, auction.WinningBidID)
	}

	var winner *captureResult
	for i := range ranked {
		candidate := &ranked[i]
		if candidate.CaptureFailedAt != nil {
			// Failed on an earlier run; the fallback walk resumes below it.
			continue
		}

		ref, err := e.proc.Capture(ctx, candidate.AuthorizationRef, candidate.Amount)
		if err != nil {
			metrics.Settlement().IncCaptureAttempt(false)
			log.Warn("capture failed, falling back to next candidate",
				zap.String("bid_id", candidate.ID.String()),
				zap.Int64("amount", candidate.Amount),
				zap.Error(err),
			)
			if markErr := e.repo.MarkBidCaptureFailed(ctx, e.db, candidate.ID, e.clock.Now()); markErr != nil {
				log.Warn("failed to record capture failure", zap.Error(markErr))
			}
			e.auditLog(ctx, auditdomain.ActionSettlementCaptureFailed, auction.ID, map[string]any{
				"bid_id": candidate.ID.String(),
				"reason": err.Error(),
			})
			if i < len(ranked)-1 {
				metrics.Settlement().IncCaptureFallback()
			}
			continue
		}

		metrics.Settlement().IncCaptureAttempt(true)
		if err := e.repo.SetBidCaptureRef(ctx, e.db, candidate.ID, ref); err != nil {
			// The charge went through; losing the reference would invite a
			// double capture on the next run.
			return nil, fmt.Errorf("record capture reference for bid %s: %w", candidate.ID, err)
		}
		winner = &captureResult{Bid: candidate, Amount: candidate.Amount, Ref: ref}
		break
	}

	if winner != nil {
		e.cancelOthers(ctx, log, ranked, winner.Bid.ID)
	} else {
		e.cancelOthers(ctx, log, ranked, 0)
	}
	return winner, nil
}

// cancelOthers releases every authorization except the winner's. An open
// authorization is reserved customer money; win or lose it must not
// survive settlement. Cancellation failures are logged and counted, they
// are retryable against the processor and never block settlement.
func (e *Engine) cancelOthers(ctx context.Context, log *zap.Logger, ranked []auctiondomain.Bid, winnerBidID snowflake.ID) {
	for i := range ranked {
		bid := &ranked[i]
		if bid.ID == winnerBidID || bid.CaptureRef != nil {
			continue
		}
		if err := e.proc.Cancel(ctx, bid.AuthorizationRef); err != nil {
			metrics.Settlement().IncAuthorizationVoid(false)
			log.Warn("failed to cancel authorization",
				zap.String("bid_id", bid.ID.String()),
				zap.Error(err),
			)
			continue
		}
		metrics.Settlement().IncAuthorizationVoid(true)
	}
}

func (e *Engine) closeNoWinner(ctx context.Context, log *zap.Logger, auction *auctiondomain.Auction) AuctionResult {
	fields := auctiondomain.SettlementFields{
		Status:    auctiondomain.AuctionStatusCompleted,
		SettledAt: e.clock.Now(),
	}
	err := e.repo.ApplySettlement(ctx, e.db, auction.ID, fields, auction.Status)
	if errors.Is(err, auctiondomain.ErrStatusConflict) {
		log.Info("auction already settled by another invocation")
		return AuctionResult{AuctionID: auction.ID, Outcome: OutcomeSkipped}
	}
	if err != nil {
		return e.failed(auction.ID, fmt.Errorf("close without winner: %w", err))
	}

	log.Info("auction closed without winner")
	e.auditLog(ctx, auditdomain.ActionSettlementNoWinner, auction.ID, nil)
	return AuctionResult{AuctionID: auction.ID, Outcome: OutcomeNoWinner}
}

func (e *Engine) closeWithWinner(ctx context.Context, log *zap.Logger, auction *auctiondomain.Auction, capture *captureResult) AuctionResult {
	cfg := e.holder.Get()
	split := payout.ComputeSplit(capture.Amount, auction.StartingPrice, cfg.FeeRate)
	now := e.clock.Now()
	winningBidID := capture.Bid.ID

	fields := auctiondomain.SettlementFields{
		Status:             auctiondomain.AuctionStatusCompleted,
		WinningBidID:       &winningBidID,
		ProfitAmount:       &split.Profit,
		PlatformFeeAmount:  &split.PlatformFee,
		SellerPayoutAmount: &split.SellerPayout,
		SettledAt:          now,
	}
	err := e.repo.ApplySettlement(ctx, e.db, auction.ID, fields, auction.Status)
	if errors.Is(err, auctiondomain.ErrStatusConflict) {
		log.Info("auction already settled by another invocation")
		return AuctionResult{AuctionID: auction.ID, Outcome: OutcomeSkipped}
	}
	if err != nil {
		// The capture reference is on the bid; the next run short-circuits
		// straight back here without re-charging.
		return e.failed(auction.ID, fmt.Errorf("persist settlement: %w", err))
	}

	created, err := e.payouts.Upsert(ctx, e.db, &payout.Payout{
		ID:          e.genID.Generate(),
		AuctionID:   auction.ID,
		SellerID:    auction.SellerID,
		GrossAmount: capture.Amount,
		FeeAmount:   split.PlatformFee,
		NetAmount:   split.SellerPayout,
		Currency:    auction.Currency,
		Status:      payout.PayoutStatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	if err != nil {
		return e.failed(auction.ID, fmt.Errorf("upsert payout: %w", err))
	}
	if !created {
		log.Info("payout already recorded for auction")
	}

	token, err := e.tokens.IssueOrReuse(ctx, auction.ID, winningBidID)
	if err != nil {
		return e.failed(auction.ID, fmt.Errorf("issue video token: %w", err))
	}

	// Best effort from here down; settlement already succeeded.
	e.sendWinnerNotification(ctx, auction, capture.Bid, capture.Amount, token)
	e.auditLog(ctx, auditdomain.ActionSettlementCompleted, auction.ID, map[string]any{
		"winning_bid_id": winningBidID.String(),
		"gross_amount":   capture.Amount,
		"platform_fee":   split.PlatformFee,
		"seller_payout":  split.SellerPayout,
	})

	log.Info("auction settled",
		zap.String("winning_bid_id", winningBidID.String()),
		zap.Int64("captured_amount", capture.Amount),
		zap.Int64("platform_fee", split.PlatformFee),
		zap.Int64("seller_payout", split.SellerPayout),
	)
	return AuctionResult{
		AuctionID:      auction.ID,
		Outcome:        OutcomeWinner,
		WinningBidID:   &winningBidID,
		CapturedAmount: capture.Amount,
	}
}

func (e *Engine) sendWinnerNotification(ctx context.Context, auction *auctiondomain.Auction, bid *auctiondomain.Bid, amount int64, token *videodomain.Token) {
	// Errors are logged and metered inside the trigger.
	_ = e.notify.NotifyWinner(ctx, notification.WinnerMessage{
		AuctionID:      auction.ID,
		AuctionTitle:   auction.Title,
		BidID:          bid.ID,
		WinnerContact:  bid.BidderContact,
		Amount:         amount,
		Currency:       auction.Currency,
		RecordingToken: token.Secret,
		TokenExpiresAt: token.ExpiresAt,
	})
}

func (e *Engine) auditLog(ctx context.Context, action string, auctionID snowflake.ID, metadata map[string]any) {
	targetID := auctionID.String()
	if err := e.audit.AuditLog(ctx, string(auditdomain.ActorTypeSystem), nil, action, "auction", &targetID, metadata); err != nil {
		e.log.Warn("audit write failed", zap.String("action", action), zap.Error(err))
	}
}

package settlement

import (
	"context"
	"errors"
	"fmt"

	"github.com/bwmarrin/snowflake"
	auctiondomain "github.com/glamlot/glamlot/internal/auction/domain"
	auditdomain "github.com/glamlot/glamlot/internal/audit/domain"
	"github.com/glamlot/glamlot/internal/notification"
	"github.com/glamlot/glamlot/internal/settlement/guard"
	videodomain "github.com/glamlot/glamlot/internal/videotoken/domain"
	"go.uber.org/zap"
)

// ErrNotRemediable is returned when the auction has not settled with a
// winner, so there is nothing to resend.
var ErrNotRemediable = errors.New("settlement: auction not remediable")

// Remediate re-issues (or reuses) the winner's recording token and
// re-sends the winner email for an already-settled auction, without
// re-running settlement. Calling it twice returns the same token.
func (e *Engine) Remediate(ctx context.Context, auctionID snowflake.ID) (*videodomain.Token, error) {
	auction, err := e.repo.FindByID(ctx, e.db, auctionID)
	if err != nil {
		return nil, err
	}
	if !guard.CanRemediate(auction) {
		return nil, ErrNotRemediable
	}

	bid, err := e.repo.FindBidByID(ctx, e.db, *auction.WinningBidID)
	if err != nil {
		if errors.Is(err, auctiondomain.ErrNotFound) {
			return nil, fmt.Errorf("auction %s winning bid %s missing: %w", auction.ID, auction.WinningBidID, err)
		}
		return nil, err
	}

	token, err := e.tokens.IssueOrReuse(ctx, auction.ID, bid.ID)
	if err != nil {
		return nil, fmt.Errorf("issue video token: %w", err)
	}

	amount := bid.Amount
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

	e.auditLog(ctx, auditdomain.ActionRemediationResend, auction.ID, map[string]any{
		"bid_id": bid.ID.String(),
		"secret": token.Secret,
	})

	e.log.Info("winner notification re-sent",
		zap.String("auction_id", auction.ID.String()),
		zap.String("bid_id", bid.ID.String()),
	)
	return token, nil
}

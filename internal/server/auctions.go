package server

import (
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	auctiondomain "github.com/glamlot/glamlot/internal/auction/domain"
)

type auctionView struct {
	ID                 snowflake.ID                `json:"id"`
	SellerID           snowflake.ID                `json:"seller_id"`
	Title              string                      `json:"title"`
	StartingPrice      int64                       `json:"starting_price"`
	CurrentPrice       int64                       `json:"current_price"`
	Currency           string                      `json:"currency"`
	Status             auctiondomain.AuctionStatus `json:"status"`
	EndsAt             time.Time                   `json:"ends_at"`
	WinningBidID       *snowflake.ID               `json:"winning_bid_id,omitempty"`
	ProfitAmount       *int64                      `json:"profit_amount,omitempty"`
	PlatformFeeAmount  *int64                      `json:"platform_fee_amount,omitempty"`
	SellerPayoutAmount *int64                      `json:"seller_payout_amount,omitempty"`
	SettledAt          *time.Time                  `json:"settled_at,omitempty"`
}

type bidView struct {
	ID              snowflake.ID  `json:"id"`
	BidderID        *snowflake.ID `json:"bidder_id,omitempty"`
	Amount          int64         `json:"amount"`
	Currency        string        `json:"currency"`
	Captured        bool          `json:"captured"`
	CaptureFailedAt *time.Time    `json:"capture_failed_at,omitempty"`
	CreatedAt       time.Time     `json:"created_at"`
}

type payoutView struct {
	GrossAmount int64  `json:"gross_amount"`
	FeeAmount   int64  `json:"fee_amount"`
	NetAmount   int64  `json:"net_amount"`
	Status      string `json:"status"`
}

// GetAuctionSettlement returns the operator view of one auction: its
// settlement state, every bid's capture state and the payout row if the
// auction completed with a winner. Authorization and capture references
// stay out of the response.
func (s *Server) GetAuctionSettlement(c *gin.Context) {
	auctionID, err := snowflake.ParseString(trimParam(c, "id"))
	if err != nil {
		AbortWithError(c, newValidationError("id", "invalid_id", "invalid auction id"))
		return
	}

	auction, err := s.auctionRepo.FindByID(c.Request.Context(), s.db, auctionID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	bids, err := s.auctionRepo.LoadBids(c.Request.Context(), s.db, auctionID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	bidViews := make([]bidView, 0, len(bids))
	for _, b := range bids {
		bidViews = append(bidViews, bidView{
			ID:              b.ID,
			BidderID:        b.BidderID,
			Amount:          b.Amount,
			Currency:        b.Currency,
			Captured:        b.CaptureRef != nil,
			CaptureFailedAt: b.CaptureFailedAt,
			CreatedAt:       b.CreatedAt,
		})
	}

	resp := gin.H{
		"auction": auctionView{
			ID:                 auction.ID,
			SellerID:           auction.SellerID,
			Title:              auction.Title,
			StartingPrice:      auction.StartingPrice,
			CurrentPrice:       auction.CurrentPrice,
			Currency:           auction.Currency,
			Status:             auction.Status,
			EndsAt:             auction.EndsAt,
			WinningBidID:       auction.WinningBidID,
			ProfitAmount:       auction.ProfitAmount,
			PlatformFeeAmount:  auction.PlatformFeeAmount,
			SellerPayoutAmount: auction.SellerPayoutAmount,
			SettledAt:          auction.SettledAt,
		},
		"bids": bidViews,
	}

	if pay, err := s.payouts.FindByAuctionID(c.Request.Context(), s.db, auctionID); err != nil {
		AbortWithError(c, err)
		return
	} else if pay != nil {
		resp["payout"] = payoutView{
			GrossAmount: pay.GrossAmount,
			FeeAmount:   pay.FeeAmount,
			NetAmount:   pay.NetAmount,
			Status:      string(pay.Status),
		}
	}

	c.JSON(http.StatusOK, resp)
}

// ResendWinnerNotification re-issues the winner's recording token and
// re-sends the winner email for a settled auction. The token secret only
// travels in the email, never in this response.
func (s *Server) ResendWinnerNotification(c *gin.Context) {
	auctionID, err := snowflake.ParseString(trimParam(c, "id"))
	if err != nil {
		AbortWithError(c, newValidationError("id", "invalid_id", "invalid auction id"))
		return
	}

	token, err := s.settler.Remediate(c.Request.Context(), auctionID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"auction_id":       auctionID,
		"bid_id":           token.BidID,
		"token_expires_at": token.ExpiresAt,
		"retakes_left":     token.RetakesLeft,
	})
}

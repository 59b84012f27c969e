// Package payout computes and records the platform/seller split for a
// settled auction.
package payout

import "math"

// Split is the financial outcome of one captured auction, in minor units.
// Gross is the amount actually captured, which can be lower than the top
// bid when settlement fell back to a lower candidate.
type Split struct {
	Profit       int64
	PlatformFee  int64
	SellerPayout int64
}

// ComputeSplit derives the split from the captured amount and the
// auction's starting price. The fee is levied on profit over the starting
// price, not on the full capture, so the seller always receives at least
// min(captured, starting price). The fee is rounded half away from zero;
// the payout absorbs the remainder so captured == fee + payout holds
// exactly.
func ComputeSplit(capturedAmount, startingPrice int64, feeRate float64) Split {
	profit := capturedAmount - startingPrice
	if profit < 0 {
		profit = 0
	}
	fee := roundHalfAwayFromZero(float64(profit) * feeRate)
	return Split{
		Profit:       profit,
		PlatformFee:  fee,
		SellerPayout: capturedAmount - fee,
	}
}

func roundHalfAwayFromZero(v float64) int64 {
	return int64(math.Round(v))
}

package payout

import "testing"

func TestComputeSplit(t *testing.T) {
	tests := []struct {
		name     string
		captured int64
		starting int64
		feeRate  float64
		want     Split
	}{
		{
			name:     "fee on profit over starting price",
			captured: 15000,
			starting: 10000,
			feeRate:  0.25,
			want:     Split{Profit: 5000, PlatformFee: 1250, SellerPayout: 13750},
		},
		{
			name:     "capture at starting price",
			captured: 10000,
			starting: 10000,
			feeRate:  0.25,
			want:     Split{Profit: 0, PlatformFee: 0, SellerPayout: 10000},
		},
		{
			name:     "capture below starting price passes through",
			captured: 8000,
			starting: 10000,
			feeRate:  0.25,
			want:     Split{Profit: 0, PlatformFee: 0, SellerPayout: 8000},
		},
		{
			name:     "fee rounds half away from zero",
			captured: 10003,
			starting: 10000,
			feeRate:  0.25,
			want:     Split{Profit: 3, PlatformFee: 1, SellerPayout: 10002},
		},
		{
			name:     "zero fee rate",
			captured: 15000,
			starting: 10000,
			feeRate:  0,
			want:     Split{Profit: 5000, PlatformFee: 0, SellerPayout: 15000},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := ComputeSplit(tc.captured, tc.starting, tc.feeRate)
			if got != tc.want {
				t.Fatalf("ComputeSplit(%d, %d, %v) = %+v, want %+v", tc.captured, tc.starting, tc.feeRate, got, tc.want)
			}
			if tc.captured != got.PlatformFee+got.SellerPayout {
				t.Fatalf("captured %d != fee %d + payout %d", tc.captured, got.PlatformFee, got.SellerPayout)
			}
		})
	}
}

func TestComputeSplitSellerFloor(t *testing.T) {
	// The seller always receives at least min(captured, starting price).
	for _, captured := range []int64{5000, 10000, 12345, 100000} {
		got := ComputeSplit(captured, 10000, 0.25)
		floor := captured
		if floor > 10000 {
			floor = 10000
		}
		if got.SellerPayout < floor {
			t.Fatalf("payout %d below floor %d for captured %d", got.SellerPayout, floor, captured)
		}
	}
}

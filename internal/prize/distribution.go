package prize

import (
	"github.com/shopspring/decimal"

	"github.com/tradeclash/contest-engine/internal/models"
	"github.com/tradeclash/contest-engine/internal/utils"
)

// PayableRanks is the number of ranks that receive a prize.
const PayableRanks = 10

// percentages is the fixed descending payout table, rank 1 first.
// It sums to 100; per-rank amounts are floored independently, so the
// distributed total can fall short of the pool. That remainder is
// retained by the house and never distributed further.
var percentages = [PayableRanks]int64{40, 20, 10, 8, 7, 5, 4, 3, 2, 1}

var hundred = decimal.NewFromInt(100)

// Distribute computes the prize table for a pool. The result is
// deterministic for identical inputs, which settlement audit and replay
// rely on.
func Distribute(pool decimal.Decimal) ([]models.PrizeEntry, error) {
	if pool.IsNegative() {
		return nil, utils.NewConfigurationErrorf("prize pool must be non-negative, got %s", pool)
	}

	entries := make([]models.PrizeEntry, 0, PayableRanks)
	for i, pct := range percentages {
		amount := pool.Mul(decimal.NewFromInt(pct)).Div(hundred).Floor()
		entries = append(entries, models.PrizeEntry{
			Rank:       i + 1,
			Percentage: pct,
			Amount:     amount,
		})
	}
	return entries, nil
}

// GetUserPrize returns the prize amount for a rank, or zero when the
// rank falls outside the payable range. Ranks below 1 or above 10 are a
// normal case, not an error.
func GetUserPrize(rank int, pool decimal.Decimal) decimal.Decimal {
	if rank < 1 || rank > PayableRanks || pool.IsNegative() {
		return decimal.Zero
	}
	return pool.Mul(decimal.NewFromInt(percentages[rank-1])).Div(hundred).Floor()
}

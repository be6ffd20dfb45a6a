package contest

import "github.com/shopspring/decimal"

// PayoutPrecision is the number of decimal places a payout is truncated
// to (lamports).
const PayoutPrecision = 9

var (
	DefaultWinFraction  = decimal.RequireFromString("0.8")
	DefaultHouseFeeRate = decimal.RequireFromString("0.02")
)

type Prize struct {
	Pool        decimal.Decimal
	WinnerCount int
}

type Payout struct {
	PerWinner decimal.Decimal
	Total     decimal.Decimal
	Dust      decimal.Decimal
}

// PrizeEngine applies the win-rate policy and the house fee. 80% of
// entrants win every round; that is a fixed business rule.
type PrizeEngine struct {
	WinFraction  decimal.Decimal
	HouseFeeRate decimal.Decimal
}

func NewPrizeEngine() PrizeEngine {
	return PrizeEngine{
		WinFraction:  DefaultWinFraction,
		HouseFeeRate: DefaultHouseFeeRate,
	}
}

func (e PrizeEngine) WinnerCount(participants int) int {
	if participants <= 0 {
		return 0
	}
	return int(decimal.NewFromInt(int64(participants)).Mul(e.WinFraction).Floor().IntPart())
}

func (e PrizeEngine) Compute(participants int, entryFee decimal.Decimal) Prize {
	if participants <= 0 {
		return Prize{Pool: decimal.Zero}
	}
	keep := decimal.NewFromInt(1).Sub(e.HouseFeeRate)
	return Prize{
		Pool:        decimal.NewFromInt(int64(participants)).Mul(entryFee).Mul(keep),
		WinnerCount: e.WinnerCount(participants),
	}
}

// Split divides the pool between winners, truncating each share so the
// total never exceeds the pool. The remainder stays with the house as dust.
func (e PrizeEngine) Split(prize Prize) (Payout, bool) {
	if prize.WinnerCount <= 0 {
		return Payout{}, false
	}

	n := decimal.NewFromInt(int64(prize.WinnerCount))
	per, dust := prize.Pool.QuoRem(n, PayoutPrecision)
	return Payout{
		PerWinner: per,
		Total:     per.Mul(n),
		Dust:      dust,
	}, true
}

// Package stats derives aggregate figures from a set of purchase records.
//
// Amounts are summed with decimal.Decimal so that large token amounts and
// fixed point costs add up exactly. Values that do not parse contribute zero.
package stats

import (
	"time"

	"github.com/S3MTFoundationv0/s3mt.xyz/internal/model"
	"github.com/shopspring/decimal"
)

// recentWindow is the window counted by Stats.Last24h.
const recentWindow = 24 * time.Hour

// averagePlaces is the number of decimal places of Stats.AveragePurchase.
const averagePlaces = 2

// Compute aggregates records as of now.
//
// Unresolved records count towards TotalTransactions and Last24h only.
func Compute(records []model.PurchaseRecord, now time.Time) model.Stats {
	totalTokens := decimal.Zero
	totalUSDC := decimal.Zero
	totalSOL := decimal.Zero
	purchases := 0
	recent := 0
	cutoff := now.Add(-recentWindow).Unix()

	for _, r := range records {
		if r.BlockTime != nil && *r.BlockTime >= cutoff {
			recent++
		}

		if !r.Resolved() {
			continue
		}
		purchases++
		totalTokens = totalTokens.Add(parseOrZero(r.TokenAmount))

		switch r.Currency {
		case model.CurrencyUSDC:
			totalUSDC = totalUSDC.Add(parseOrZero(r.Cost))
		case model.CurrencySOL:
			totalSOL = totalSOL.Add(parseOrZero(r.Cost))
		}
	}

	average := decimal.Zero
	if purchases > 0 {
		average = totalTokens.DivRound(decimal.NewFromInt(int64(purchases)), averagePlaces)
	}

	return model.Stats{
		TotalTransactions: len(records),
		TotalPurchases:    purchases,
		TotalTokens:       totalTokens.String(),
		TotalUSDC:         totalUSDC.String(),
		TotalSOL:          totalSOL.String(),
		AveragePurchase:   average.String(),
		Last24h:           recent,
	}
}

func parseOrZero(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

package stats

import (
	"testing"
	"time"

	"github.com/S3MTFoundationv0/s3mt.xyz/internal/model"
	"github.com/stretchr/testify/assert"
)

func ptr[T any](v T) *T { return &v }

func resolved(tokens, cost string, currency model.Currency, blockTime *int64) model.PurchaseRecord {
	return model.PurchaseRecord{
		Signature:   "sig",
		BlockTime:   blockTime,
		Buyer:       ptr("buyer"),
		TokenAmount: tokens,
		Cost:        cost,
		Currency:    currency,
	}
}

func unresolved(blockTime *int64) model.PurchaseRecord {
	return model.PurchaseRecord{
		Signature:   "sig",
		BlockTime:   blockTime,
		TokenAmount: model.NotAvailable,
		Cost:        model.NotAvailable,
		Currency:    model.CurrencyNone,
	}
}

func Test_Compute_Empty(t *testing.T) {
	for _, records := range [][]model.PurchaseRecord{nil, {}} {
		s := Compute(records, time.Now())

		assert.Equal(t, 0, s.TotalTransactions)
		assert.Equal(t, 0, s.TotalPurchases)
		assert.Equal(t, "0", s.TotalTokens)
		assert.Equal(t, "0", s.TotalUSDC)
		assert.Equal(t, "0", s.TotalSOL)
		assert.Equal(t, "0", s.AveragePurchase)
		assert.Equal(t, 0, s.Last24h)
	}
}

func Test_Compute(t *testing.T) {
	now := time.Unix(1_700_100_000, 0)
	recent := ptr(now.Add(-time.Hour).Unix())
	old := ptr(now.Add(-48 * time.Hour).Unix())
	edge := ptr(now.Add(-24 * time.Hour).Unix())

	tests := []struct {
		name        string
		records     []model.PurchaseRecord
		expected    model.Stats
		description string
	}{
		{
			name: "mixed currencies",
			records: []model.PurchaseRecord{
				resolved("1000", "2.500000", model.CurrencyUSDC, recent),
				resolved("3000", "0.100000000", model.CurrencySOL, old),
				resolved("500", "1.250000", model.CurrencyUSDC, nil),
			},
			expected: model.Stats{
				TotalTransactions: 3,
				TotalPurchases:    3,
				TotalTokens:       "4500",
				TotalUSDC:         "3.75",
				TotalSOL:          "0.1",
				AveragePurchase:   "1500",
				Last24h:           1,
			},
			description: "Should sum per currency and count only recent block times",
		},
		{
			name: "unresolved records excluded from sums",
			records: []model.PurchaseRecord{
				resolved("10", "1.000000", model.CurrencyUSDC, recent),
				unresolved(recent),
				unresolved(nil),
			},
			expected: model.Stats{
				TotalTransactions: 3,
				TotalPurchases:    1,
				TotalTokens:       "10",
				TotalUSDC:         "1",
				TotalSOL:          "0",
				AveragePurchase:   "10",
				Last24h:           2,
			},
			description: "Unresolved records still count as transactions and in the 24h window",
		},
		{
			name: "unparsable values contribute zero",
			records: []model.PurchaseRecord{
				resolved("abc", "x", model.CurrencyUSDC, nil),
				resolved("7", "0.000000001", model.CurrencySOL, nil),
			},
			expected: model.Stats{
				TotalTransactions: 2,
				TotalPurchases:    2,
				TotalTokens:       "7",
				TotalUSDC:         "0",
				TotalSOL:          "0.000000001",
				AveragePurchase:   "3.5",
				Last24h:           0,
			},
			description: "Should not fail on malformed numbers",
		},
		{
			name: "amounts beyond uint64",
			records: []model.PurchaseRecord{
				resolved("18446744073709551615", "1.000000", model.CurrencyUSDC, nil),
				resolved("18446744073709551615", "1.000000", model.CurrencyUSDC, nil),
			},
			expected: model.Stats{
				TotalTransactions: 2,
				TotalPurchases:    2,
				TotalTokens:       "36893488147419103230",
				TotalUSDC:         "2",
				TotalSOL:          "0",
				AveragePurchase:   "18446744073709551615",
				Last24h:           0,
			},
			description: "Sums must be exact",
		},
		{
			name:    "window boundary is inclusive",
			records: []model.PurchaseRecord{unresolved(edge)},
			expected: model.Stats{
				TotalTransactions: 1,
				TotalTokens:       "0",
				TotalUSDC:         "0",
				TotalSOL:          "0",
				AveragePurchase:   "0",
				Last24h:           1,
			},
			description: "A record exactly 24h old is still counted",
		},
		{
			name: "average rounds to two places",
			records: []model.PurchaseRecord{
				resolved("1", "1.000000", model.CurrencyUSDC, nil),
				resolved("1", "1.000000", model.CurrencyUSDC, nil),
				resolved("0", "1.000000", model.CurrencyUSDC, nil),
			},
			expected: model.Stats{
				TotalTransactions: 3,
				TotalPurchases:    3,
				TotalTokens:       "2",
				TotalUSDC:         "3",
				TotalSOL:          "0",
				AveragePurchase:   "0.67",
				Last24h:           0,
			},
			description: "2/3 rounds half up",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Compute(tt.records, now), tt.description)
		})
	}
}

func Benchmark_Compute(b *testing.B) {
	now := time.Now()
	records := make([]model.PurchaseRecord, 2000)
	for i := range records {
		records[i] = resolved("123456789", "12.345678", model.CurrencyUSDC, ptr(now.Unix()))
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		Compute(records, now)
	}
}

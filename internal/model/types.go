// Package model defines core data types for the presale history service.
//
// This package contains the structures shared by the reconstructor, the stats
// computation, the dispatcher and the HTTP surface. Token amounts and costs are
// carried as decimal strings so that on-chain u64 values never pass through a
// float.
package model

import (
	"time"
)

// NotAvailable is the sentinel used for amounts and currency of records that
// could not be resolved to a purchase.
const NotAvailable = "N/A"

// Currency identifies what a buyer paid with.
type Currency string

const (
	// CurrencyUSDC marks a purchase_usdc instruction (6 decimals).
	CurrencyUSDC Currency = "USDC"

	// CurrencySOL marks a purchase_sol instruction (9 decimals).
	CurrencySOL Currency = "SOL"

	// CurrencyNone marks an unresolved record.
	CurrencyNone Currency = NotAvailable
)

// PurchaseRecord is a single reconstructed presale transaction.
//
// A record is either fully resolved (Currency is USDC or SOL and both
// TokenAmount and Cost are numeric) or unresolved (all three are NotAvailable).
// Buyer may be set on an unresolved record when the program instruction was
// decoded but was not a purchase.
type PurchaseRecord struct {
	Signature   string   `json:"signature"`
	BlockTime   *int64   `json:"blockTime"`
	Buyer       *string  `json:"buyer"`
	TokenAmount string   `json:"tokenAmount"`
	Cost        string   `json:"cost"`
	Currency    Currency `json:"currency"`
}

// Resolved reports whether the record carries purchase amounts.
func (r PurchaseRecord) Resolved() bool {
	return r.Currency != CurrencyNone && r.Currency != ""
}

// Stats holds aggregate statistics over the current record set.
//
// All amount fields are decimal strings; an empty record set yields "0" for
// each of them and zero for the counters.
type Stats struct {
	TotalTransactions int    `json:"totalTransactions"` // All records, resolved or not
	TotalPurchases    int    `json:"totalPurchases"`    // Fully resolved records
	TotalTokens       string `json:"totalTokens"`       // Sum of token amounts
	TotalUSDC         string `json:"totalUsdc"`         // Sum of USDC costs
	TotalSOL          string `json:"totalSol"`          // Sum of SOL costs
	AveragePurchase   string `json:"averagePurchase"`   // TotalTokens / TotalPurchases
	Last24h           int    `json:"last24h"`           // Records with blockTime in the last 24 hours
}

// Snapshot is the state published after every fetch cycle.
type Snapshot struct {
	CycleID      string           `json:"cycleId"`
	Records      []PurchaseRecord `json:"records"`
	Stats        Stats            `json:"stats"`
	ErrorMessage string           `json:"errorMessage,omitempty"`
	UpdatedAt    time.Time        `json:"updatedAt"`
}

// PresaleConfig mirrors the on-chain Config account of the presale program.
type PresaleConfig struct {
	Address  string `json:"address"`
	Admin    string `json:"admin"`
	Treasury string `json:"treasury"`
	USDCMint string `json:"usdcMint"`
	Paused   bool   `json:"paused"`
}

// Package chain adapts the Solana JSON-RPC API to the narrow set of calls the
// history reconstructor needs: signature listing, batched transaction fetch,
// address lookup table resolution and raw account reads.
package chain

import (
	"github.com/gagliardetto/solana-go"
)

// SignatureInfo is one entry of a getSignaturesForAddress page.
type SignatureInfo struct {
	Signature solana.Signature
	BlockTime *int64 // Unix seconds, nil when the node has no block time
	Slot      uint64
}

// Transaction is the part of a fetched transaction the reconstructor reads.
type Transaction struct {
	Slot uint64

	// Versioned is true for v0 messages, which may reference lookup tables.
	Versioned bool

	// AccountKeys holds the static account keys of the message.
	AccountKeys []solana.PublicKey

	// Instructions are the top level compiled instructions of the message.
	Instructions []solana.CompiledInstruction

	// LookupTables lists the address lookup table accounts referenced by a
	// versioned message, in message order.
	LookupTables []solana.PublicKey

	// HasMeta is false when the node returned no transaction metadata.
	HasMeta bool
}

package chain

import (
	"context"
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
	addresslookuptable "github.com/gagliardetto/solana-go/programs/address-lookup-table"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/gagliardetto/solana-go/rpc/jsonrpc"
	"github.com/rs/zerolog/log"
)

// ErrAccountNotFound is returned by AccountData when the account does not exist.
var ErrAccountNotFound = errors.New("account not found")

// SolanaClient implements the reconstructor's RPC needs on top of solana-go.
// All reads use the finalized commitment.
type SolanaClient struct {
	rpc *rpc.Client
}

// NewSolanaClient creates a client for the given JSON-RPC endpoint.
func NewSolanaClient(endpoint string) *SolanaClient {
	return &SolanaClient{rpc: rpc.New(endpoint)}
}

// SignaturesForAddress returns one page of signatures for address, newest first.
// A zero before signature starts from the most recent transaction.
func (c *SolanaClient) SignaturesForAddress(ctx context.Context, address solana.PublicKey, before solana.Signature, limit int) ([]SignatureInfo, error) {
	opts := &rpc.GetSignaturesForAddressOpts{
		Limit:      &limit,
		Before:     before,
		Commitment: rpc.CommitmentFinalized,
	}

	out, err := c.rpc.GetSignaturesForAddressWithOpts(ctx, address, opts)
	if err != nil {
		return nil, fmt.Errorf("getSignaturesForAddress: %w", err)
	}

	infos := make([]SignatureInfo, 0, len(out))
	for _, s := range out {
		if s == nil {
			continue
		}
		info := SignatureInfo{Signature: s.Signature, Slot: s.Slot}
		if s.BlockTime != nil {
			bt := int64(*s.BlockTime)
			info.BlockTime = &bt
		}
		infos = append(infos, info)
	}
	return infos, nil
}

// Transactions fetches the given signatures with a single JSON-RPC batch request.
//
// The result has the same length and order as signatures. Entries for which the
// node returned no transaction are nil. An error entry in the batch response
// fails the whole call.
func (c *SolanaClient) Transactions(ctx context.Context, signatures []solana.Signature) ([]*Transaction, error) {
	if len(signatures) == 0 {
		return nil, nil
	}

	reqs := make(jsonrpc.RPCRequests, len(signatures))
	for i, sig := range signatures {
		reqs[i] = &jsonrpc.RPCRequest{
			JSONRPC: "2.0",
			ID:      i,
			Method:  "getTransaction",
			Params: []interface{}{
				sig.String(),
				map[string]interface{}{
					"encoding":                       solana.EncodingBase64,
					"commitment":                     rpc.CommitmentFinalized,
					"maxSupportedTransactionVersion": 0,
				},
			},
		}
	}

	resps, err := c.rpc.RPCCallBatch(ctx, reqs)
	if err != nil {
		return nil, fmt.Errorf("getTransaction batch: %w", err)
	}

	byID := make(map[string]*jsonrpc.RPCResponse, len(resps))
	for _, resp := range resps {
		if resp != nil {
			byID[fmt.Sprint(resp.ID)] = resp
		}
	}

	txs := make([]*Transaction, len(signatures))
	for i, sig := range signatures {
		resp, ok := byID[fmt.Sprint(i)]
		if !ok {
			log.Debug().Str("signature", sig.String()).Msg("no response for signature in batch")
			continue
		}
		if resp.Error != nil {
			return nil, fmt.Errorf("getTransaction %s: %w", sig, resp.Error)
		}

		var result *rpc.GetTransactionResult
		if err := resp.GetObject(&result); err != nil {
			return nil, fmt.Errorf("decode getTransaction %s: %w", sig, err)
		}
		if result == nil || result.Transaction == nil {
			continue
		}

		tx, err := result.Transaction.GetTransaction()
		if err != nil {
			return nil, fmt.Errorf("decode transaction %s: %w", sig, err)
		}

		converted := toTransaction(tx)
		converted.Slot = result.Slot
		converted.HasMeta = result.Meta != nil
		txs[i] = converted
	}

	return txs, nil
}

// LookupTable returns every address stored in an address lookup table.
func (c *SolanaClient) LookupTable(ctx context.Context, table solana.PublicKey) ([]solana.PublicKey, error) {
	state, err := addresslookuptable.GetAddressLookupTable(ctx, c.rpc, table)
	if err != nil {
		return nil, fmt.Errorf("lookup table %s: %w", table, err)
	}
	return state.Addresses, nil
}

// AccountData returns the raw data of an account.
func (c *SolanaClient) AccountData(ctx context.Context, address solana.PublicKey) ([]byte, error) {
	out, err := c.rpc.GetAccountInfoWithOpts(ctx, address, &rpc.GetAccountInfoOpts{
		Commitment: rpc.CommitmentFinalized,
	})
	if err != nil {
		if errors.Is(err, rpc.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrAccountNotFound, address)
		}
		return nil, fmt.Errorf("getAccountInfo %s: %w", address, err)
	}
	if out == nil || out.Value == nil || out.Value.Data == nil {
		return nil, fmt.Errorf("%w: %s", ErrAccountNotFound, address)
	}
	return out.Value.Data.GetBinary(), nil
}

func toTransaction(tx *solana.Transaction) *Transaction {
	msg := tx.Message

	out := &Transaction{
		Versioned:    msg.IsVersioned(),
		AccountKeys:  msg.AccountKeys,
		Instructions: msg.Instructions,
	}
	if out.Versioned {
		for _, lookup := range msg.AddressTableLookups {
			out.LookupTables = append(out.LookupTables, lookup.AccountKey)
		}
	}
	return out
}

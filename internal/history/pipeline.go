package history

import (
	"context"
	"fmt"

	"github.com/S3MTFoundationv0/s3mt.xyz/internal/chain"
	"github.com/gagliardetto/solana-go"
	"github.com/rs/zerolog"
)

// collectSignatures pages through the program's signatures, newest first.
//
// Paging stops on an empty page, on a page shorter than the page size, or once
// more than MaxSignatures have been collected.
func (r *Reconstructor) collectSignatures(ctx context.Context, logger zerolog.Logger) ([]chain.SignatureInfo, error) {
	var (
		all    []chain.SignatureInfo
		before solana.Signature
	)

	for {
		page, err := r.rpc.SignaturesForAddress(ctx, r.cfg.ProgramID, before, r.cfg.PageSize)
		if err != nil {
			return nil, err
		}
		if len(page) == 0 {
			break
		}

		all = append(all, page...)
		before = page[len(page)-1].Signature

		if len(page) < r.cfg.PageSize {
			break
		}
		if len(all) > r.cfg.MaxSignatures {
			logger.Warn().
				Int("collected", len(all)).
				Int("max", r.cfg.MaxSignatures).
				Msg("signature cap reached, history is partial")
			break
		}
	}

	logger.Debug().Int("signatures", len(all)).Msg("signatures collected")
	return all, nil
}

// fetchTransactions fetches transactions batch by batch, pausing BatchDelay
// between batches. The first failing batch aborts the whole fetch.
func (r *Reconstructor) fetchTransactions(ctx context.Context, logger zerolog.Logger, infos []chain.SignatureInfo) ([]*chain.Transaction, error) {
	txs := make([]*chain.Transaction, 0, len(infos))

	for start := 0; start < len(infos); start += r.cfg.BatchSize {
		end := min(start+r.cfg.BatchSize, len(infos))

		if start > 0 && r.cfg.BatchDelay > 0 {
			r.sleep(r.cfg.BatchDelay)
		}

		sigs := make([]solana.Signature, 0, end-start)
		for _, info := range infos[start:end] {
			sigs = append(sigs, info.Signature)
		}

		batch, err := r.rpc.Transactions(ctx, sigs)
		if err != nil {
			return nil, fmt.Errorf("batch %d-%d: %w", start, end, err)
		}
		if len(batch) != len(sigs) {
			return nil, fmt.Errorf("batch %d-%d: got %d transactions for %d signatures", start, end, len(batch), len(sigs))
		}

		logger.Debug().Int("from", start).Int("to", end).Msg("transaction batch fetched")
		txs = append(txs, batch...)
	}

	return txs, nil
}

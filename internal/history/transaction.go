package history

import (
	"context"
	"math/big"
	"strconv"

	"github.com/S3MTFoundationv0/s3mt.xyz/internal/chain"
	"github.com/S3MTFoundationv0/s3mt.xyz/internal/model"
	"github.com/S3MTFoundationv0/s3mt.xyz/internal/program"
	"github.com/gagliardetto/solana-go"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const (
	usdcDecimals = 6
	solDecimals  = 9
)

var (
	usdcDivisor = decimal.New(1, usdcDecimals)
	solDivisor  = decimal.NewFromBigInt(new(big.Int).SetUint64(solana.LAMPORTS_PER_SOL), 0)
)

// instruction is a compiled instruction with indices widened to int.
type instruction struct {
	programIDIndex int
	accounts       []int
	data           []byte
}

// buildRecord turns one fetched transaction into a purchase record.
//
// Anything short of a decoded purchase yields an unresolved record; decode
// failures are logged and never abort the cycle.
func (r *Reconstructor) buildRecord(ctx context.Context, logger zerolog.Logger, info chain.SignatureInfo, tx *chain.Transaction) model.PurchaseRecord {
	rec := model.PurchaseRecord{
		Signature:   info.Signature.String(),
		BlockTime:   info.BlockTime,
		TokenAmount: model.NotAvailable,
		Cost:        model.NotAvailable,
		Currency:    model.CurrencyNone,
	}

	keys := r.resolveAccountKeys(ctx, logger, tx)
	ix, ok := findInstruction(keys, normalizeInstructions(tx.Instructions), r.cfg.ProgramID)
	if !ok {
		return rec
	}

	decoded, err := r.decode(ix.data)
	if err != nil {
		logger.Warn().Err(err).Str("signature", rec.Signature).Msg("failed to decode presale instruction")
		return rec
	}

	if len(ix.accounts) > 0 && ix.accounts[0] < len(keys) {
		buyer := keys[ix.accounts[0]].String()
		rec.Buyer = &buyer
	}

	switch args := decoded.Args.(type) {
	case program.PurchaseUSDCArgs:
		rec.TokenAmount = strconv.FormatUint(args.S3MTAmount, 10)
		rec.Cost = formatAmount(args.USDCAmount, usdcDivisor, usdcDecimals)
		rec.Currency = model.CurrencyUSDC
	case program.PurchaseSOLArgs:
		rec.TokenAmount = strconv.FormatUint(args.S3MTAmount, 10)
		rec.Cost = formatAmount(args.SOLAmount, solDivisor, solDecimals)
		rec.Currency = model.CurrencySOL
	default:
		logger.Debug().Str("signature", rec.Signature).Str("instruction", decoded.Name).Msg("not a purchase instruction")
	}

	return rec
}

// resolveAccountKeys returns the full account key list of the transaction.
//
// Versioned messages get the addresses of each lookup table appended after the
// static keys, in lookup order. The message's writable and readonly indexes
// are not applied, so keys past the static ones follow table order rather
// than runtime resolution. A table that fails to resolve is skipped.
func (r *Reconstructor) resolveAccountKeys(ctx context.Context, logger zerolog.Logger, tx *chain.Transaction) []solana.PublicKey {
	keys := make([]solana.PublicKey, len(tx.AccountKeys))
	copy(keys, tx.AccountKeys)

	if !tx.Versioned {
		return keys
	}

	for _, table := range tx.LookupTables {
		addresses, err := r.rpc.LookupTable(ctx, table)
		if err != nil {
			logger.Debug().Err(err).Str("table", table.String()).Msg("lookup table resolution failed, skipping")
			continue
		}
		keys = append(keys, addresses...)
	}
	return keys
}

func normalizeInstructions(compiled []solana.CompiledInstruction) []instruction {
	out := make([]instruction, 0, len(compiled))
	for _, ci := range compiled {
		accounts := make([]int, len(ci.Accounts))
		for i, a := range ci.Accounts {
			accounts[i] = int(a)
		}
		out = append(out, instruction{
			programIDIndex: int(ci.ProgramIDIndex),
			accounts:       accounts,
			data:           ci.Data,
		})
	}
	return out
}

// findInstruction returns the first instruction invoking programID.
func findInstruction(keys []solana.PublicKey, instrs []instruction, programID solana.PublicKey) (instruction, bool) {
	for _, ix := range instrs {
		if ix.programIDIndex < len(keys) && keys[ix.programIDIndex].Equals(programID) {
			return ix, true
		}
	}
	return instruction{}, false
}

// formatAmount divides a raw on-chain amount and renders it with a fixed
// number of decimals.
func formatAmount(raw uint64, divisor decimal.Decimal, places int32) string {
	amount := decimal.NewFromBigInt(new(big.Int).SetUint64(raw), 0)
	return amount.Div(divisor).StringFixed(places)
}

// Package history reconstructs the purchase history of the presale program
// from on-chain data.
//
// A Reconstructor lists the program's transaction signatures, fetches the
// transactions in rate limited batches, locates the presale instruction in
// each one and turns it into a model.PurchaseRecord. The resulting record set
// replaces the previous one wholesale at the end of every successful cycle.
//
// Thread Safety:
//   - Fetch is gated by an atomic flag; a call made while a cycle runs is a no-op
//   - Records, IsLoading, ErrorMessage and Stats may be called from any goroutine
//   - At most one auto-refresh loop runs per Reconstructor
package history

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/S3MTFoundationv0/s3mt.xyz/internal/chain"
	"github.com/S3MTFoundationv0/s3mt.xyz/internal/model"
	"github.com/S3MTFoundationv0/s3mt.xyz/internal/program"
	"github.com/S3MTFoundationv0/s3mt.xyz/internal/stats"
	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	// DefaultPageSize is the number of signatures requested per page.
	DefaultPageSize = 100

	// DefaultMaxSignatures bounds signature enumeration. Histories longer than
	// this are truncated.
	DefaultMaxSignatures = 2000

	// DefaultBatchSize is the number of transactions fetched per RPC batch.
	// Public providers cap batches at 100 requests.
	DefaultBatchSize = 50

	// DefaultBatchDelay is the pause between two transaction batches.
	DefaultBatchDelay = 500 * time.Millisecond

	// DefaultRefreshInterval is the auto-refresh period.
	DefaultRefreshInterval = 60 * time.Second
)

// NoTransactionsMessage is reported when the program has no signatures at all.
const NoTransactionsMessage = "No transactions found."

// ChainReader is the subset of the Solana RPC API the reconstructor uses.
type ChainReader interface {
	// SignaturesForAddress returns up to limit signatures older than before,
	// newest first. A zero before starts from the latest transaction.
	SignaturesForAddress(ctx context.Context, address solana.PublicKey, before solana.Signature, limit int) ([]chain.SignatureInfo, error)

	// Transactions fetches transactions by signature. The result is aligned with
	// signatures; missing transactions are nil.
	Transactions(ctx context.Context, signatures []solana.Signature) ([]*chain.Transaction, error)

	// LookupTable returns the addresses stored in an address lookup table.
	LookupTable(ctx context.Context, table solana.PublicKey) ([]solana.PublicKey, error)
}

// DecodeFunc decodes raw instruction data of the target program.
type DecodeFunc func(data []byte) (*program.Instruction, error)

// Config holds the reconstructor settings. Zero values are replaced by defaults,
// except BatchDelay where zero disables the pause between batches.
type Config struct {
	ProgramID       solana.PublicKey
	PageSize        int
	MaxSignatures   int
	BatchSize       int
	BatchDelay      time.Duration
	RefreshInterval time.Duration
}

func (c *Config) applyDefaults() {
	if c.PageSize <= 0 {
		c.PageSize = DefaultPageSize
	}
	if c.MaxSignatures <= 0 {
		c.MaxSignatures = DefaultMaxSignatures
	}
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.BatchDelay < 0 {
		c.BatchDelay = DefaultBatchDelay
	}
	if c.RefreshInterval <= 0 {
		c.RefreshInterval = DefaultRefreshInterval
	}
}

// Reconstructor owns the current record set and the fetch cycle that rebuilds it.
type Reconstructor struct {
	cfg    Config
	rpc    ChainReader
	decode DecodeFunc

	mu           sync.RWMutex
	records      []model.PurchaseRecord
	errorMessage string

	loading atomic.Bool
	updates chan model.Snapshot

	refreshMu sync.Mutex
	refresh   *refreshHandle

	now   func() time.Time
	sleep func(time.Duration)
}

// NewReconstructor creates a Reconstructor reading from rpc.
// The program id is required.
func NewReconstructor(cfg Config, rpc ChainReader) (*Reconstructor, error) {
	if rpc == nil {
		return nil, errors.New("rpc client is required")
	}
	if cfg.ProgramID.IsZero() {
		return nil, errors.New("program id is required")
	}
	cfg.applyDefaults()

	return &Reconstructor{
		cfg:     cfg,
		rpc:     rpc,
		decode:  program.Decode,
		records: []model.PurchaseRecord{},
		updates: make(chan model.Snapshot, 1),
		now:     time.Now,
		sleep:   time.Sleep,
	}, nil
}

// Records returns a copy of the current record set, newest first.
func (r *Reconstructor) Records() []model.PurchaseRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]model.PurchaseRecord, len(r.records))
	copy(out, r.records)
	return out
}

// IsLoading reports whether a fetch cycle is in progress.
func (r *Reconstructor) IsLoading() bool {
	return r.loading.Load()
}

// ErrorMessage returns the message of the last cycle, empty after a successful one.
func (r *Reconstructor) ErrorMessage() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.errorMessage
}

// Stats computes aggregate statistics over the current record set.
func (r *Reconstructor) Stats() model.Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return stats.Compute(r.records, r.now())
}

// Updates delivers a snapshot after every completed fetch cycle. Only the
// latest undelivered snapshot is kept.
func (r *Reconstructor) Updates() <-chan model.Snapshot {
	return r.updates
}

// Fetch runs one reconstruction cycle.
//
// If a cycle is already running the call returns immediately. Failures are
// never returned: a failed cycle keeps the previous record set and exposes the
// error through ErrorMessage.
func (r *Reconstructor) Fetch(ctx context.Context) {
	if !r.loading.CompareAndSwap(false, true) {
		log.Debug().Str("component", "history").Msg("fetch already in progress, skipping")
		return
	}
	defer r.loading.Store(false)

	cycleID := uuid.NewString()
	logger := log.With().
		Str("component", "history").
		Str("cycle", cycleID).
		Logger()

	started := time.Now()
	records, err := r.reconstruct(ctx, logger)

	r.mu.Lock()
	switch {
	case err != nil:
		r.errorMessage = err.Error()
		logger.Error().Err(err).Msg("fetch cycle failed, keeping previous records")
	case records == nil:
		r.records = []model.PurchaseRecord{}
		r.errorMessage = NoTransactionsMessage
		logger.Info().Msg("no transactions found for program")
	default:
		r.records = records
		r.errorMessage = ""
		logger.Info().
			Int("records", len(records)).
			Dur("took", time.Since(started)).
			Msg("fetch cycle completed")
	}
	snapshot := model.Snapshot{
		CycleID:      cycleID,
		Records:      append([]model.PurchaseRecord(nil), r.records...),
		Stats:        stats.Compute(r.records, r.now()),
		ErrorMessage: r.errorMessage,
		UpdatedAt:    r.now(),
	}
	r.mu.Unlock()

	r.publish(snapshot)
}

// reconstruct lists, fetches and decodes the program's transactions.
// A nil slice with a nil error means the program has no signatures.
func (r *Reconstructor) reconstruct(ctx context.Context, logger zerolog.Logger) ([]model.PurchaseRecord, error) {
	infos, err := r.collectSignatures(ctx, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to list signatures: %w", err)
	}
	if len(infos) == 0 {
		return nil, nil
	}

	txs, err := r.fetchTransactions(ctx, logger, infos)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch transactions: %w", err)
	}

	records := make([]model.PurchaseRecord, 0, len(infos))
	for i, tx := range txs {
		if tx == nil || !tx.HasMeta {
			logger.Debug().Str("signature", infos[i].Signature.String()).Msg("transaction payload missing, skipping")
			continue
		}
		records = append(records, r.buildRecord(ctx, logger, infos[i], tx))
	}
	return records, nil
}

// publish hands the snapshot to Updates, replacing an undelivered one.
func (r *Reconstructor) publish(s model.Snapshot) {
	for {
		select {
		case r.updates <- s:
			return
		default:
		}
		select {
		case <-r.updates:
		default:
		}
	}
}

package service

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/S3MTFoundationv0/s3mt.xyz/internal/model"
	"github.com/rs/zerolog/log"
)

// HistorySource defines the component that produces history snapshots.
type HistorySource interface {
	// StartAutoRefresh runs a fetch immediately and then on every interval.
	StartAutoRefresh(ctx context.Context)

	// StopAutoRefresh stops the refresh loop started by StartAutoRefresh.
	StopAutoRefresh()

	// Updates returns the channel snapshots are published on.
	Updates() <-chan model.Snapshot
}

// SubscriptionManager defines the interface for managing client subscriptions
// and distributing snapshots to multiple subscribers.
type SubscriptionManager interface {
	// Subscribe creates a new subscription narrowed to the given buyers.
	Subscribe(buyers []string) (*Subscriber, error)

	// Unsubscribe removes a subscriber and cleans up associated resources.
	Unsubscribe(sub *Subscriber) error

	// StartDispatching begins the snapshot distribution process.
	StartDispatching(ctx context.Context, ch <-chan model.Snapshot) error
}

// SendFunc delivers one snapshot to a streaming client.
type SendFunc func(model.Snapshot) error

// HistoryService orchestrates the history streaming system.
//
// The service coordinates between:
//   - HistorySource: Reconstructs purchase history on a timer
//   - SubscriptionManager: Manages subscriber lifecycle and distribution
//   - Streaming clients: Receive snapshots through Stream
type HistoryService struct {
	subscriptionManager SubscriptionManager // Handles client subscription lifecycle
	source              HistorySource       // Provides snapshots
	started             atomic.Bool         // Atomic flag tracking service state
	cancel              context.CancelFunc  // Function to cancel service context
}

// NewHistoryService creates a new HistoryService in a stopped state.
func NewHistoryService(manager SubscriptionManager, source HistorySource) *HistoryService {
	return &HistoryService{
		subscriptionManager: manager,
		source:              source,
	}
}

// Start begins dispatching snapshots and starts the auto-refresh loop.
func (hs *HistoryService) Start(ctx context.Context) error {
	if !hs.started.CompareAndSwap(false, true) {
		return errors.New("history service has already started")
	}

	ctx, cancel := context.WithCancel(ctx)

	if err := hs.subscriptionManager.StartDispatching(ctx, hs.source.Updates()); err != nil {
		cancel()
		hs.started.Store(false)
		return fmt.Errorf("failed to start dispatching: %w", err)
	}

	hs.source.StartAutoRefresh(ctx)

	hs.cancel = cancel
	log.Info().Msg("HistoryService started")
	return nil
}

// Stop stops the refresh loop and the dispatcher.
func (hs *HistoryService) Stop() error {
	if !hs.started.CompareAndSwap(true, false) {
		return errors.New("service not started")
	}

	hs.source.StopAutoRefresh()
	if hs.cancel != nil {
		hs.cancel()
		hs.cancel = nil
	}

	log.Info().Msg("HistoryService stopped")
	return nil
}

// Stream subscribes a client to snapshots for the given buyers and calls send
// for each one until ctx is done, the subscription closes or send fails.
func (hs *HistoryService) Stream(ctx context.Context, buyers []string, send SendFunc) error {
	if !hs.started.Load() {
		return errors.New("history service not started")
	}
	if send == nil {
		return errors.New("send function cannot be nil")
	}

	sub, err := hs.subscriptionManager.Subscribe(buyers)
	if err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}

	defer func() {
		if err := hs.subscriptionManager.Unsubscribe(sub); err != nil {
			log.Error().Err(err).Strs("buyers", buyers).Msg("failed to unsubscribe")
		}
	}()

	log.Info().Strs("buyers", buyers).Int64("subscriber", sub.ID()).Msg("new client subscription")

	for {
		select {
		case <-ctx.Done():
			log.Info().Int64("subscriber", sub.ID()).Msg("client disconnected")
			return nil
		case snapshot, ok := <-sub.C():
			if !ok {
				log.Info().Int64("subscriber", sub.ID()).Msg("subscription channel closed")
				return nil
			}

			if err := send(snapshot); err != nil {
				log.Error().Err(err).Int64("subscriber", sub.ID()).Msg("failed to send snapshot to client")
				return fmt.Errorf("failed to send snapshot: %w", err)
			}
		}
	}
}

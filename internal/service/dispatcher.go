// Package service provides the components that sit between the history
// reconstructor and its consumers.
//
// The dispatcher fans every history snapshot out to websocket subscribers and
// notifiers, optionally narrowed to a set of buyer wallets, while handling slow
// clients gracefully.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/S3MTFoundationv0/s3mt.xyz/internal/model"
	"github.com/S3MTFoundationv0/s3mt.xyz/internal/stats"
	"github.com/S3MTFoundationv0/s3mt.xyz/internal/utils"
	"github.com/rs/zerolog/log"
)

// defaultSubscriberBuffer is the number of snapshots buffered per subscriber.
const defaultSubscriberBuffer = 4

// Subscriber represents a client subscription to history snapshots.
//
// Each subscriber owns a buffered channel and an optional set of buyer
// addresses. With an empty set the subscriber receives every record.
type Subscriber struct {
	id     int64               // unique identifier for the subscriber
	ch     chan model.Snapshot // buffered channel for snapshot delivery
	buyers map[string]struct{} // buyer filter, empty means all
	gone   atomic.Bool         // set by Unsubscribe
}

// ID returns the subscriber identifier.
func (s *Subscriber) ID() int64 {
	return s.id
}

// C returns the channel snapshots are delivered on. It is closed when the
// subscriber is removed or the dispatcher stops.
func (s *Subscriber) C() <-chan model.Snapshot {
	return s.ch
}

// filter narrows a snapshot to the subscriber's buyers and recomputes stats
// for the narrowed set.
func (s *Subscriber) filter(snapshot model.Snapshot) model.Snapshot {
	if len(s.buyers) == 0 {
		return snapshot
	}

	records := make([]model.PurchaseRecord, 0)
	for _, r := range snapshot.Records {
		if r.Buyer == nil {
			continue
		}
		if _, ok := s.buyers[*r.Buyer]; ok {
			records = append(records, r)
		}
	}

	snapshot.Records = records
	snapshot.Stats = stats.Compute(records, snapshot.UpdatedAt)
	return snapshot
}

// DispatcherConfig holds configuration parameters for the Dispatcher.
type DispatcherConfig struct {
	MaxBuyersAllowed int // Maximum buyer addresses per subscription
	BufferSize       int // Snapshots buffered per subscriber, defaults to 4
}

// Dispatcher distributes history snapshots to subscribers.
//
// A single goroutine owns the subscribers map and the latest snapshot;
// subscription changes and snapshots reach it through channels, so no mutex
// is needed. New subscribers immediately receive the latest snapshot.
type Dispatcher struct {
	cfg              DispatcherConfig
	subscribers      map[int64]*Subscriber
	latest           *model.Snapshot
	subscriptionCh   chan *Subscriber
	unsubscriptionCh chan *Subscriber
	started          atomic.Bool
	stopped          atomic.Bool
	nextID           atomic.Int64
}

// NewDispatcher creates a new Dispatcher instance with the provided configuration.
func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = defaultSubscriberBuffer
	}
	return &Dispatcher{
		cfg:              cfg,
		subscribers:      make(map[int64]*Subscriber),
		subscriptionCh:   make(chan *Subscriber, 10),
		unsubscriptionCh: make(chan *Subscriber, 10),
	}
}

// Subscribe registers a subscriber for the given buyers; no buyers means all records.
func (b *Dispatcher) Subscribe(buyers []string) (*Subscriber, error) {
	if !b.started.Load() {
		return nil, errors.New("dispatcher not started")
	}
	if b.stopped.Load() {
		return nil, errors.New("dispatcher stopped")
	}

	if err := utils.ValidateAddresses(buyers, b.cfg.MaxBuyersAllowed); err != nil {
		return nil, err
	}

	set := make(map[string]struct{}, len(buyers))
	for _, addr := range buyers {
		set[addr] = struct{}{}
	}

	sub := &Subscriber{
		id:     b.nextID.Add(1),
		ch:     make(chan model.Snapshot, b.cfg.BufferSize),
		buyers: set,
	}

	select {
	case b.subscriptionCh <- sub:
	default:
		return nil, fmt.Errorf("subscription channel is full")
	}

	return sub, nil
}

func (b *Dispatcher) subscribe(sub *Subscriber) {
	// Unsubscribed before the registration was processed.
	if sub.gone.Load() {
		close(sub.ch)
		return
	}
	b.subscribers[sub.id] = sub
	if b.latest != nil {
		sub.ch <- sub.filter(*b.latest)
	}
}

// Unsubscribe removes a subscriber from the dispatcher.
func (b *Dispatcher) Unsubscribe(sub *Subscriber) error {
	sub.gone.Store(true)
	select {
	case b.unsubscriptionCh <- sub:
		return nil
	default:
		return fmt.Errorf("unsubscription channel is full")
	}
}

func (b *Dispatcher) unsubscribe(sub *Subscriber) {
	if _, ok := b.subscribers[sub.id]; ok {
		delete(b.subscribers, sub.id)
		close(sub.ch)
	}
}

// StartDispatching starts the goroutine that owns the subscribers and forwards
// every snapshot read from snapshotCh. It stops when ctx is cancelled or
// snapshotCh is closed, closing all subscriber channels.
func (b *Dispatcher) StartDispatching(ctx context.Context, snapshotCh <-chan model.Snapshot) error {
	if !b.started.CompareAndSwap(false, true) {
		return errors.New("dispatcher already started")
	}

	go func() {
		defer func() {
			b.stopped.Store(true)
			for _, sub := range b.subscribers {
				close(sub.ch)
			}
			b.subscribers = make(map[int64]*Subscriber)
			// Subscriptions queued but never registered.
			for {
				select {
				case sub := <-b.subscriptionCh:
					close(sub.ch)
				default:
					return
				}
			}
		}()

		for {
			select {
			case <-ctx.Done():
				log.Info().Msg("dispatcher stopped")
				return
			case sub := <-b.subscriptionCh:
				b.subscribe(sub)
			case sub := <-b.unsubscriptionCh:
				b.unsubscribe(sub)
			case snapshot, ok := <-snapshotCh:
				if !ok {
					log.Info().Msg("snapshot channel closed, dispatcher stopped")
					return
				}
				b.dispatch(snapshot)
			}
		}
	}()
	return nil
}

// dispatch delivers a snapshot to every subscriber. A subscriber whose buffer
// is full loses its oldest buffered snapshot.
func (b *Dispatcher) dispatch(snapshot model.Snapshot) {
	b.latest = &snapshot
	for _, sub := range b.subscribers {
		s := sub.filter(snapshot)
		select {
		case sub.ch <- s:
		default:
			log.Info().Int64("subscriber", sub.id).Msg("subscriber is too slow, dropping oldest buffered snapshot")
			select {
			case <-sub.ch:
			default:
			}
			select {
			case sub.ch <- s:
			default:
			}
		}
	}
}

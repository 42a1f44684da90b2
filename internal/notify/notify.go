// Package notify publishes a compact event for every history snapshot to
// external brokers.
//
// Publishers exist for Redis pub/sub and Kafka. A Forwarder reads snapshots
// from a channel and fans each one out to every configured publisher; a failed
// publish is logged and never stops the loop.
package notify

import (
	"context"
	"errors"
	"time"

	"github.com/S3MTFoundationv0/s3mt.xyz/internal/model"
	"github.com/rs/zerolog/log"
)

// defaultPublishTimeout bounds a single publish call.
const defaultPublishTimeout = 5 * time.Second

// Event is the message published for each snapshot. Records are left out;
// consumers fetch them from the HTTP API when they need them.
type Event struct {
	CycleID      string      `json:"cycleId"`
	ProgramID    string      `json:"programId"`
	UpdatedAt    time.Time   `json:"updatedAt"`
	RecordCount  int         `json:"recordCount"`
	Stats        model.Stats `json:"stats"`
	ErrorMessage string      `json:"errorMessage,omitempty"`
}

// NewEvent summarises a snapshot.
func NewEvent(programID string, s model.Snapshot) Event {
	return Event{
		CycleID:      s.CycleID,
		ProgramID:    programID,
		UpdatedAt:    s.UpdatedAt,
		RecordCount:  len(s.Records),
		Stats:        s.Stats,
		ErrorMessage: s.ErrorMessage,
	}
}

// Publisher delivers events to one destination.
type Publisher interface {
	Name() string
	Publish(ctx context.Context, e Event) error
	Close() error
}

// Forwarder fans snapshots out to publishers.
type Forwarder struct {
	programID  string
	publishers []Publisher
	timeout    time.Duration
}

// NewForwarder creates a Forwarder for the given publishers.
func NewForwarder(programID string, publishers ...Publisher) *Forwarder {
	return &Forwarder{
		programID:  programID,
		publishers: publishers,
		timeout:    defaultPublishTimeout,
	}
}

// Run publishes every snapshot read from ch until ctx is done or ch is closed.
func (f *Forwarder) Run(ctx context.Context, ch <-chan model.Snapshot) {
	logger := log.With().Str("component", "notify").Logger()
	logger.Info().Int("publishers", len(f.publishers)).Msg("forwarder started")
	defer logger.Info().Msg("forwarder stopped")

	for {
		select {
		case <-ctx.Done():
			return
		case s, ok := <-ch:
			if !ok {
				return
			}
			f.forward(ctx, NewEvent(f.programID, s))
		}
	}
}

func (f *Forwarder) forward(ctx context.Context, e Event) {
	for _, p := range f.publishers {
		pctx, cancel := context.WithTimeout(ctx, f.timeout)
		err := p.Publish(pctx, e)
		cancel()
		if err != nil {
			log.Error().Err(err).
				Str("component", "notify").
				Str("publisher", p.Name()).
				Str("cycle", e.CycleID).
				Msg("failed to publish snapshot event")
			continue
		}
		log.Debug().
			Str("component", "notify").
			Str("publisher", p.Name()).
			Str("cycle", e.CycleID).
			Msg("snapshot event published")
	}
}

// Close closes every publisher and joins their errors.
func (f *Forwarder) Close() error {
	var errs []error
	for _, p := range f.publishers {
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

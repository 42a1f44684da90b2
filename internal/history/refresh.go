package history

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// StartAutoRefresh fetches immediately and then every RefreshInterval until
// StopAutoRefresh is called or ctx is cancelled. Calling it while a refresh
// loop is already running does nothing.
func (r *Reconstructor) StartAutoRefresh(ctx context.Context) {
	r.refreshMu.Lock()
	defer r.refreshMu.Unlock()

	if r.refresh != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	h := &refreshHandle{cancel: cancel}
	r.refresh = h

	go r.refreshLoop(ctx, h)
	log.Info().Dur("interval", r.cfg.RefreshInterval).Msg("auto-refresh started")
}

// StopAutoRefresh stops the refresh loop. A cycle already in flight runs to
// completion. Calling it when no loop runs does nothing.
func (r *Reconstructor) StopAutoRefresh() {
	r.refreshMu.Lock()
	defer r.refreshMu.Unlock()

	if r.refresh == nil {
		return
	}
	r.refresh.cancel()
	r.refresh = nil
	log.Info().Msg("auto-refresh stopped")
}

// AutoRefreshing reports whether a refresh loop is active.
func (r *Reconstructor) AutoRefreshing() bool {
	r.refreshMu.Lock()
	defer r.refreshMu.Unlock()
	return r.refresh != nil
}

// refreshHandle identifies one refresh loop.
type refreshHandle struct {
	cancel context.CancelFunc
}

func (r *Reconstructor) refreshLoop(ctx context.Context, h *refreshHandle) {
	ticker := time.NewTicker(r.cfg.RefreshInterval)
	defer ticker.Stop()
	defer r.clearRefresh(h)

	// cycles are not cancellable once started
	fetchCtx := context.WithoutCancel(ctx)

	r.Fetch(fetchCtx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if ctx.Err() != nil {
				return
			}
			r.Fetch(fetchCtx)
		}
	}
}

// clearRefresh forgets h if it is still the active loop, so that a loop ended
// by its parent context can be started again.
func (r *Reconstructor) clearRefresh(h *refreshHandle) {
	r.refreshMu.Lock()
	defer r.refreshMu.Unlock()
	if r.refresh == h {
		r.refresh = nil
	}
}

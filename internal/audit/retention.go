package audit

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// RetentionWorker periodically prunes entries older than a configured
// retention window from a Sink, the same ticker-driven background
// cleanup shape used elsewhere in this codebase for bounded state.
type RetentionWorker struct {
	sink     Sink
	interval time.Duration
	maxAge   time.Duration

	ticker *time.Ticker
	done   chan struct{}
}

// NewRetentionWorker constructs a worker that prunes sink every interval,
// removing entries older than maxAge. maxAge <= 0 disables pruning: the
// worker is still constructed so callers don't need a nil check, but
// Start is a no-op.
func NewRetentionWorker(sink Sink, interval, maxAge time.Duration) *RetentionWorker {
	return &RetentionWorker{
		sink:     sink,
		interval: interval,
		maxAge:   maxAge,
		done:     make(chan struct{}),
	}
}

// Start begins the background pruning loop. Safe to call even when
// maxAge <= 0; it simply does nothing in that case.
func (w *RetentionWorker) Start(ctx context.Context) {
	if w.maxAge <= 0 {
		return
	}

	w.ticker = time.NewTicker(w.interval)

	go func() {
		for {
			select {
			case <-ctx.Done():
				w.ticker.Stop()
				return
			case <-w.done:
				w.ticker.Stop()
				return
			case <-w.ticker.C:
				w.pruneOnce(ctx)
			}
		}
	}()

	log.Info().
		Dur("interval", w.interval).
		Dur("max_age", w.maxAge).
		Msg("audit retention worker started")
}

// Stop shuts down the pruning loop.
func (w *RetentionWorker) Stop() {
	if w.maxAge <= 0 {
		return
	}
	close(w.done)
}

func (w *RetentionWorker) pruneOnce(ctx context.Context) {
	deleted, err := w.sink.Prune(ctx, w.maxAge)
	if err != nil {
		log.Error().Err(err).Msg("audit retention prune failed")
		return
	}
	if deleted > 0 {
		log.Info().Int64("deleted", deleted).Msg("audit retention prune completed")
	}
}

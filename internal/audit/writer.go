package audit

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Writer provides async, bounded, drop-oldest-on-full buffering in front
// of a Sink, matching the "best-effort, non-blocking audit" requirement:
// a slow or unavailable sink must never make Decide block.
type Writer struct {
	sink Sink

	buffer    []*Entry
	bufferMu  sync.Mutex
	bufferMax int

	flushInterval time.Duration
	flushChan     chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	written  int64
	dropped  int64
	flushes  int64
	metricMu sync.Mutex
}

// WriterConfig configures the Writer's buffering behavior.
type WriterConfig struct {
	BufferSize    int
	FlushInterval time.Duration
}

// NewWriter creates a new async audit writer in front of sink.
func NewWriter(sink Sink, cfg WriterConfig) *Writer {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 100
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Writer{
		sink:          sink,
		buffer:        make([]*Entry, 0, cfg.BufferSize),
		bufferMax:     cfg.BufferSize,
		flushInterval: cfg.FlushInterval,
		flushChan:     make(chan struct{}, 1),
		ctx:           ctx,
		cancel:        cancel,
	}
}

// Start begins the background flush loop.
func (w *Writer) Start() {
	w.wg.Add(1)
	go w.flushLoop()
	log.Info().
		Int("buffer_size", w.bufferMax).
		Dur("flush_interval", w.flushInterval).
		Msg("audit writer started")
}

// Write enqueues entry. If the buffer is full the oldest entry is
// dropped to make room; Write never blocks on the sink.
func (w *Writer) Write(entry *Entry) {
	w.bufferMu.Lock()
	defer w.bufferMu.Unlock()

	if len(w.buffer) >= w.bufferMax {
		select {
		case w.flushChan <- struct{}{}:
		default:
		}

		if len(w.buffer) >= w.bufferMax {
			w.buffer = w.buffer[1:]
			w.metricMu.Lock()
			w.dropped++
			w.metricMu.Unlock()
		}
	}

	w.buffer = append(w.buffer, entry)
}

func (w *Writer) flushLoop() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			w.flush()
			return
		case <-ticker.C:
			w.flush()
		case <-w.flushChan:
			w.flush()
		}
	}
}

func (w *Writer) flush() {
	w.bufferMu.Lock()
	if len(w.buffer) == 0 {
		w.bufferMu.Unlock()
		return
	}
	entries := w.buffer
	w.buffer = make([]*Entry, 0, w.bufferMax)
	w.bufferMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := w.sink.InsertBatch(ctx, entries); err != nil {
		log.Error().Err(err).Int("count", len(entries)).Msg("failed to flush audit entries")
		w.metricMu.Lock()
		w.dropped += int64(len(entries))
		w.metricMu.Unlock()
		return
	}

	w.metricMu.Lock()
	w.written += int64(len(entries))
	w.flushes++
	w.metricMu.Unlock()

	log.Debug().Int("count", len(entries)).Msg("flushed audit entries")
}

// Flush forces an immediate flush of the buffer.
func (w *Writer) Flush() {
	w.flush()
}

// Stop stops the writer and flushes remaining entries.
func (w *Writer) Stop() {
	log.Info().Msg("stopping audit writer")
	w.cancel()
	w.wg.Wait()

	stats := w.Stats()
	log.Info().
		Int64("written", stats.Written).
		Int64("dropped", stats.Dropped).
		Int64("flushes", stats.Flushes).
		Msg("audit writer stopped")
}

// WriterStats reports writer-level counters.
type WriterStats struct {
	Written    int64
	Dropped    int64
	Flushes    int64
	BufferSize int
}

// Stats returns current writer statistics.
func (w *Writer) Stats() WriterStats {
	w.metricMu.Lock()
	defer w.metricMu.Unlock()

	w.bufferMu.Lock()
	bufferSize := len(w.buffer)
	w.bufferMu.Unlock()

	return WriterStats{
		Written:    w.written,
		Dropped:    w.dropped,
		Flushes:    w.flushes,
		BufferSize: bufferSize,
	}
}

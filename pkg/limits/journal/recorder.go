package journal

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// RecorderConfig contains configuration for the journal Recorder.
type RecorderConfig struct {
	// AsyncBuffer is the size of the async write channel buffer.
	// Default: 1000
	AsyncBuffer int

	// WriteTimeout is the timeout for writing one entry to storage.
	// Default: 5 seconds
	WriteTimeout time.Duration
}

// DefaultRecorderConfig returns the default recorder configuration.
func DefaultRecorderConfig() *RecorderConfig {
	return &RecorderConfig{
		AsyncBuffer:  1000,
		WriteTimeout: 5 * time.Second,
	}
}

// Recorder writes journal entries asynchronously.
// Record never blocks: when the buffer is full the entry is dropped and
// counted.
type Recorder struct {
	store   Store
	config  *RecorderConfig
	entries chan *Entry
	done    chan struct{}
	wg      sync.WaitGroup
	logger  *slog.Logger

	mu     sync.RWMutex
	closed bool

	written atomic.Int64
	dropped atomic.Int64
	failed  atomic.Int64
}

// NewRecorder creates a Recorder writing to store and starts its worker.
func NewRecorder(store Store, config *RecorderConfig) *Recorder {
	if config == nil {
		config = DefaultRecorderConfig()
	}
	if config.AsyncBuffer <= 0 {
		config.AsyncBuffer = 1000
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = 5 * time.Second
	}

	r := &Recorder{
		store:   store,
		config:  config,
		entries: make(chan *Entry, config.AsyncBuffer),
		done:    make(chan struct{}),
		logger:  slog.Default().With("component", "journal.recorder"),
	}

	r.wg.Add(1)
	go r.worker()

	return r
}

// Record enqueues entry. It returns false if the entry was dropped because
// the buffer is full or the recorder is closed.
func (r *Recorder) Record(entry *Entry) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		r.dropped.Add(1)
		return false
	}

	select {
	case r.entries <- entry:
		return true
	default:
		r.dropped.Add(1)
		return false
	}
}

// Stats returns the number of written, dropped and failed entries.
func (r *Recorder) Stats() (written, dropped, failed int64) {
	return r.written.Load(), r.dropped.Load(), r.failed.Load()
}

// Store returns the underlying store.
func (r *Recorder) Store() Store {
	return r.store
}

// Close stops accepting entries and waits for buffered ones to be written.
// It does not close the store.
func (r *Recorder) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	close(r.done)
	r.mu.Unlock()

	r.wg.Wait()

	written, dropped, failed := r.Stats()
	r.logger.Info("journal recorder stopped",
		"written", written,
		"dropped", dropped,
		"failed", failed,
	)
	return nil
}

// worker drains the entry channel until Close.
func (r *Recorder) worker() {
	defer r.wg.Done()

	for {
		select {
		case entry := <-r.entries:
			r.write(entry)

		case <-r.done:
			for {
				select {
				case entry := <-r.entries:
					r.write(entry)
				default:
					return
				}
			}
		}
	}
}

// write stores a single entry with the configured timeout.
func (r *Recorder) write(entry *Entry) {
	ctx, cancel := context.WithTimeout(context.Background(), r.config.WriteTimeout)
	defer cancel()

	if err := r.store.Append(ctx, entry); err != nil {
		r.failed.Add(1)
		r.logger.Error("failed to append journal entry",
			"entry_id", entry.ID,
			"policy", entry.Policy,
			"error", err,
		)
		return
	}
	r.written.Add(1)
}

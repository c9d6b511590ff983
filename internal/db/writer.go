package db

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/epalmerini/snoop/internal/decode"
)

const defaultBufferSize = 1000

// AsyncWriter persists captured messages off the hot path. Save never blocks;
// when the buffer is full the message is dropped and counted.
type AsyncWriter struct {
	store     Store
	sessionID int64
	logger    *slog.Logger
	now       func() time.Time

	ch     chan *MessageRecord
	wg     sync.WaitGroup
	mu     sync.RWMutex
	closed bool

	dropped atomic.Int64
	failed  atomic.Int64
}

func NewAsyncWriter(store Store, sessionID int64, logger *slog.Logger) *AsyncWriter {
	return newAsyncWriter(store, sessionID, logger, defaultBufferSize)
}

func newAsyncWriter(store Store, sessionID int64, logger *slog.Logger, size int) *AsyncWriter {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	w := &AsyncWriter{
		store:     store,
		sessionID: sessionID,
		logger:    logger.With("component", "capture", "session_id", sessionID),
		now:       time.Now,
		ch:        make(chan *MessageRecord, size),
	}
	w.wg.Add(1)
	go w.run()
	return w
}

// Save queues a message. It returns false if the writer is closed or the
// buffer is full.
func (w *AsyncWriter) Save(msg decode.Message) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		return false
	}

	rec := &MessageRecord{SessionID: w.sessionID, CapturedAt: w.now(), Message: msg}
	select {
	case w.ch <- rec:
		return true
	default:
		w.dropped.Add(1)
		return false
	}
}

// Dropped is the number of messages refused because the buffer was full.
func (w *AsyncWriter) Dropped() int64 {
	return w.dropped.Load()
}

// Failed is the number of messages the store refused.
func (w *AsyncWriter) Failed() int64 {
	return w.failed.Load()
}

func (w *AsyncWriter) run() {
	defer w.wg.Done()
	for rec := range w.ch {
		if _, err := w.store.InsertMessage(context.Background(), rec); err != nil {
			w.failed.Add(1)
			w.logger.Warn("capture insert failed", "message_id", rec.Message.MessageID, "error", err)
		}
	}
}

// Close stops accepting messages and waits until the buffer is written.
func (w *AsyncWriter) Close() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	close(w.ch)
	w.mu.Unlock()

	w.wg.Wait()
	if n := w.dropped.Load(); n > 0 {
		w.logger.Warn("captures dropped, buffer full", "count", n)
	}
}

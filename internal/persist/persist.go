// Package persist writes accepted edits to the store off the broadcast
// path. Writes are fire-and-forget: a failure is logged and dropped,
// never retried synchronously, and never unwinds in-memory state.
package persist

import (
	"sync"
	"time"

	"github.com/pairpad/pairpad/internal/logging"
)

// Saver is the slice of the store the writer needs.
type Saver interface {
	Save(id, code string) error
	AppendSnapshot(roomID, code string, ts time.Time) error
}

type write struct {
	roomID string
	code   string
	ts     time.Time
}

type Writer struct {
	store Saver
	queue chan write

	mu      sync.RWMutex
	stopped bool
	wg      sync.WaitGroup
}

func New(store Saver, queueSize int) *Writer {
	if queueSize <= 0 {
		queueSize = 256
	}
	return &Writer{
		store: store,
		queue: make(chan write, queueSize),
	}
}

func (w *Writer) Start() {
	w.wg.Add(1)
	go w.run()
	logging.Info().Int("queue", cap(w.queue)).Msg("persistence writer started")
}

// Stop drains pending writes and waits for the worker to exit.
func (w *Writer) Stop() {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return
	}
	w.stopped = true
	close(w.queue)
	w.mu.Unlock()

	w.wg.Wait()
	logging.Info().Msg("persistence writer stopped")
}

// Enqueue submits an edit for durable storage. Never blocks: when the
// queue is full the write is shed with a warning. Last-write-wins makes
// a stale intermediate write safe to drop; the next accepted edit
// carries the newer code.
func (w *Writer) Enqueue(roomID, code string, ts time.Time) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.stopped {
		return
	}

	select {
	case w.queue <- write{roomID: roomID, code: code, ts: ts}:
	default:
		logging.Warn().Str("room", roomID).Msg("persistence queue full, dropping write")
	}
}

func (w *Writer) run() {
	defer w.wg.Done()

	for item := range w.queue {
		if err := w.store.Save(item.roomID, item.code); err != nil {
			logging.Error().Err(err).Str("room", item.roomID).Msg("failed to save room code")
		}
		if err := w.store.AppendSnapshot(item.roomID, item.code, item.ts); err != nil {
			logging.Error().Err(err).Str("room", item.roomID).Msg("failed to append snapshot")
		}
	}
}

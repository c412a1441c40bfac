package logger

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
)

// Closer flushes buffered records before shutdown.
type Closer interface {
	Close()
}

type nopCloser struct{}

func (nopCloser) Close() {}

// asyncCore is the queue shared by a root AsyncHandler and every handler
// derived from it. One worker pool serves the whole logger tree.
type asyncCore struct {
	ch      chan slog.Record
	wg      sync.WaitGroup
	dropped atomic.Int64
}

// AsyncHandler decouples log production from formatting: records are queued
// on a bounded channel and written by background workers. A full queue drops
// the record and counts it rather than blocking the caller.
type AsyncHandler struct {
	inner slog.Handler
	core  *asyncCore
}

// NewAsyncHandler starts a pool of workers draining a queue of the given
// capacity into inner.
func NewAsyncHandler(inner slog.Handler, capacity, workers int) *AsyncHandler {
	h := &AsyncHandler{
		inner: inner,
		core:  &asyncCore{ch: make(chan slog.Record, capacity)},
	}
	for range workers {
		h.core.wg.Add(1)
		go h.drain()
	}
	return h
}

func (h *AsyncHandler) drain() {
	defer h.core.wg.Done()
	for rec := range h.core.ch {
		_ = h.inner.Handle(context.Background(), rec)
	}
}

// Enabled defers to the destination handler's level filter.
func (h *AsyncHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

// Handle queues the record, dropping it when the queue is full.
func (h *AsyncHandler) Handle(_ context.Context, rec slog.Record) error {
	select {
	case h.core.ch <- rec:
	default:
		h.core.dropped.Add(1)
	}
	return nil
}

// WithAttrs derives a handler over the same queue.
func (h *AsyncHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &AsyncHandler{inner: h.inner.WithAttrs(attrs), core: h.core}
}

// WithGroup derives a handler over the same queue.
func (h *AsyncHandler) WithGroup(name string) slog.Handler {
	return &AsyncHandler{inner: h.inner.WithGroup(name), core: h.core}
}

// DroppedCount reports how many records were discarded on queue overflow.
func (h *AsyncHandler) DroppedCount() int64 {
	return h.core.dropped.Load()
}

// Close stops intake and blocks until every queued record is written.
func (h *AsyncHandler) Close() {
	close(h.core.ch)
	h.core.wg.Wait()
}

// boreaslite.go: MPSC ring buffer dispatching Class-File Events from the
// watcher to the rest of the pipeline.
//
// Adapted directly from argus's BoreasLite ring buffer: the wire element is
// re-keyed from FileChangeEvent's path-and-flags layout to bytehot's
// ClassFileEvent (class name instead of raw path), the three
// optimization-strategy batch sizes and their spin/yield/sleep schedules
// are kept verbatim.
//
// Copyright (c) 2025 ByteHot
// SPDX-License-Identifier: MPL-2.0

package bytehot

import (
	"runtime"
	"sync/atomic"
	"time"
)

// OptimizationStrategy controls how the event ring batches and spins while
// waiting for new Class-File Events (spec §5 — watcher never drops events,
// so this only tunes latency vs CPU use, never correctness).
type OptimizationStrategy int

const (
	// OptimizationAuto chooses a strategy from current buffer occupancy.
	OptimizationAuto OptimizationStrategy = iota
	// OptimizationSingleEvent is tuned for 1-2 watched classes changing rarely.
	OptimizationSingleEvent
	// OptimizationSmallBatch is tuned for a handful of concurrently changing classes.
	OptimizationSmallBatch
	// OptimizationLargeBatch is tuned for large recompilation bursts (e.g. a full rebuild).
	OptimizationLargeBatch
)

// EventRing is an MPSC ring buffer carrying ClassFileEvent from its
// producers (the watcher's watch loop, which serves every watched root)
// to a single consumer that drives the rest of the pipeline.
type EventRing struct {
	buffer   []ClassFileEvent
	capacity int64
	mask     int64

	writerCursor atomic.Int64
	readerCursor atomic.Int64
	_            [48]byte

	availableBuffer []atomic.Int64

	processor func(*ClassFileEvent)

	strategy  OptimizationStrategy
	batchSize int64

	running atomic.Bool

	processed atomic.Int64
	dropped   atomic.Int64
}

// NewEventRing creates a ring buffer of the given capacity dispatching to
// processor. A capacity that is not a positive power of two is replaced
// by 64.
func NewEventRing(capacity int64, strategy OptimizationStrategy, processor func(*ClassFileEvent)) *EventRing {
	if capacity <= 0 || (capacity&(capacity-1)) != 0 {
		capacity = 64
	}

	var batchSize int64
	switch strategy {
	case OptimizationSingleEvent:
		batchSize = 1
	case OptimizationSmallBatch:
		batchSize = 4
	case OptimizationLargeBatch:
		batchSize = 16
	default:
		batchSize = 4
	}

	r := &EventRing{
		buffer:          make([]ClassFileEvent, capacity),
		capacity:        capacity,
		mask:            capacity - 1,
		availableBuffer: make([]atomic.Int64, capacity),
		processor:       processor,
		strategy:        strategy,
		batchSize:       batchSize,
	}

	for i := range r.availableBuffer {
		r.availableBuffer[i].Store(-1)
	}

	r.running.Store(true)
	return r
}

// AdaptStrategy switches batch size when operating in OptimizationAuto,
// based on the number of classes currently watched.
func (r *EventRing) AdaptStrategy(watchedClasses int) {
	if r.strategy != OptimizationAuto {
		return
	}
	switch {
	case watchedClasses <= 3:
		r.batchSize = 1
	case watchedClasses <= 50:
		r.batchSize = 4
	default:
		r.batchSize = 16
	}
}

// Write enqueues a Class-File Event. Per spec §9, the watcher blocks
// (back-pressure) rather than dropping when the ring is full; Write
// reports false in that case so the caller can retry/block.
func (r *EventRing) Write(event *ClassFileEvent) bool {
	if !r.running.Load() {
		r.dropped.Add(1)
		return false
	}

	sequence := r.writerCursor.Add(1) - 1
	if sequence >= r.readerCursor.Load()+r.capacity {
		r.writerCursor.Add(-1)
		return false
	}

	slot := &r.buffer[sequence&r.mask]
	*slot = *event
	r.availableBuffer[sequence&r.mask].Store(sequence)
	return true
}

// WriteBlocking retries Write until it succeeds or the ring stops running,
// implementing the back-pressure contract of spec §9.
func (r *EventRing) WriteBlocking(event *ClassFileEvent) bool {
	for r.running.Load() {
		if r.Write(event) {
			return true
		}
		runtime.Gosched()
	}
	return false
}

// ProcessBatch drains as many contiguous available events as the current
// strategy allows, returning the count processed.
func (r *EventRing) ProcessBatch() int {
	current := r.readerCursor.Load()
	writerPos := r.writerCursor.Load()
	if current >= writerPos {
		return 0
	}

	maxProcess := minInt64(r.batchSize, writerPos-current)
	if r.strategy == OptimizationAuto {
		switch occupancy := writerPos - current; {
		case occupancy <= 3:
			maxProcess = minInt64(3, occupancy)
		case occupancy <= 16:
			maxProcess = minInt64(4, occupancy)
		default:
			maxProcess = minInt64(16, occupancy)
		}
	}

	available := current - 1
	for seq := current; seq < current+maxProcess; seq++ {
		if r.availableBuffer[seq&r.mask].Load() == seq {
			available = seq
		} else {
			break
		}
	}
	if available < current {
		return 0
	}

	processed := int(available - current + 1)
	for seq := current; seq <= available; seq++ {
		idx := seq & r.mask
		r.processor(&r.buffer[idx])
		r.availableBuffer[idx].Store(-1)
	}

	r.readerCursor.Store(available + 1)
	r.processed.Add(int64(processed))
	return processed
}

// RunProcessor runs the single-consumer loop: spin, yield, then sleep in
// escalating phases while idle, same schedule as argus's BoreasLite.
func (r *EventRing) RunProcessor() {
	spins := 0
	for r.running.Load() {
		if r.ProcessBatch() > 0 {
			spins = 0
			continue
		}
		spins++
		switch {
		case spins < 2000:
			continue
		case spins < 8000:
			if spins&7 == 0 {
				runtime.Gosched()
			}
		default:
			time.Sleep(100 * time.Microsecond)
			spins = 0
		}
	}

	drainAttempts := 0
	for r.ProcessBatch() > 0 && drainAttempts < 1000 {
		drainAttempts++
	}
}

// Stop halts the processor loop; RunProcessor performs one final drain
// before returning.
func (r *EventRing) Stop() {
	r.running.Store(false)
}

// Stats reports ring buffer occupancy and throughput counters.
func (r *EventRing) Stats() map[string]int64 {
	writerPos := r.writerCursor.Load()
	readerPos := r.readerCursor.Load()
	return map[string]int64{
		"writer_position": writerPos,
		"reader_position": readerPos,
		"buffer_size":     r.capacity,
		"items_buffered":  writerPos - readerPos,
		"items_processed": r.processed.Load(),
		"items_dropped":   r.dropped.Load(),
		"running":         boolToInt64(r.running.Load()),
	}
}

func minInt64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}

func boolToInt64(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

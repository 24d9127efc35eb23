// Copyright (c) 2025 ByteHot
// SPDX-License-Identifier: MPL-2.0
package bytehot

import (
	"sync"
	"testing"
	"time"
)

func TestEventRingDeliversInOrder(t *testing.T) {
	var mu sync.Mutex
	var received []string

	ring := NewEventRing(8, OptimizationSingleEvent, func(e *ClassFileEvent) {
		mu.Lock()
		received = append(received, e.ClassName)
		mu.Unlock()
	})

	go ring.RunProcessor()
	defer ring.Stop()

	for i := 0; i < 5; i++ {
		className := []string{"A", "B", "C", "D", "E"}[i]
		if !ring.WriteBlocking(&ClassFileEvent{ClassName: className}) {
			t.Fatalf("expected WriteBlocking to succeed for %s", className)
		}
	}

	deadline := time.After(2 * time.Second)
	for {
		mu.Lock()
		n := len(received)
		mu.Unlock()
		if n == 5 {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for delivery, got %d/5", n)
		default:
			time.Sleep(time.Millisecond)
		}
	}

	mu.Lock()
	defer mu.Unlock()
	want := []string{"A", "B", "C", "D", "E"}
	for i, name := range want {
		if received[i] != name {
			t.Fatalf("expected order %v, got %v", want, received)
		}
	}
}

func TestEventRingFallsBackToDefaultCapacity(t *testing.T) {
	ring := NewEventRing(5, OptimizationAuto, func(*ClassFileEvent) {})
	if ring.capacity != 64 {
		t.Fatalf("expected non-power-of-two capacity to fall back to 64, got %d", ring.capacity)
	}
}

func TestEventRingStopHaltsProcessor(t *testing.T) {
	ring := NewEventRing(8, OptimizationSingleEvent, func(*ClassFileEvent) {})
	ring.Stop()
	if ring.Write(&ClassFileEvent{ClassName: "A"}) {
		t.Fatal("expected Write to fail once the ring is stopped")
	}
}

func TestEventRingStatsReflectThroughput(t *testing.T) {
	ring := NewEventRing(8, OptimizationSingleEvent, func(*ClassFileEvent) {})
	ring.Write(&ClassFileEvent{ClassName: "A"})
	ring.ProcessBatch()

	stats := ring.Stats()
	if stats["items_processed"] != 1 {
		t.Fatalf("expected 1 processed item, got %d", stats["items_processed"])
	}
}

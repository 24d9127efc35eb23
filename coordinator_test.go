// Copyright (c) 2025 ByteHot
// SPDX-License-Identifier: MPL-2.0
package bytehot

import (
	"encoding/json"
	"sync"
	"testing"
	"time"
)

type fakeLookup struct {
	mu      sync.Mutex
	loaded  map[string]ClassIdentity
}

func newFakeLookup() *fakeLookup {
	return &fakeLookup{loaded: make(map[string]ClassIdentity)}
}

func (f *fakeLookup) register(className string, identity ClassIdentity) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loaded[className] = identity
}

func (f *fakeLookup) FindLoadedClass(className string) (ClassIdentity, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	identity, ok := f.loaded[className]
	return identity, ok
}

type fakeRedefine struct {
	mu       sync.Mutex
	attempts int
	outcomes []RedefinitionOutcome // consumed in order; last one repeats
}

func (f *fakeRedefine) Redefine(identity ClassIdentity, newBytes []byte) RedefinitionOutcome {
	f.mu.Lock()
	defer f.mu.Unlock()
	idx := f.attempts
	if idx >= len(f.outcomes) {
		idx = len(f.outcomes) - 1
	}
	f.attempts++
	return f.outcomes[idx]
}

func (f *fakeRedefine) attemptCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.attempts
}

func newTestCoordinator(t *testing.T, redefine RedefinitionPort, lookup ClassLookupPort) (*Coordinator, *EventStore) {
	t.Helper()
	store := newTestStore(t)
	registry := NewInstanceRegistry()
	cfg := Config{TransientRetryBound: 3}.WithDefaults()
	coordinator := NewCoordinator(cfg, store, redefine, lookup, registry, nil)
	return coordinator, store
}

func waitForKind(t *testing.T, store *EventStore, aggregateType, aggregateID string, kind EventKind, timeout time.Duration) VersionedEvent {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		events, err := store.LoadAggregate(aggregateType, aggregateID)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		for _, e := range events {
			if e.Kind == kind {
				return e
			}
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for event kind %s", kind)
	return VersionedEvent{}
}

func TestCoordinatorSubmitSucceedsAndReconciles(t *testing.T) {
	lookup := newFakeLookup()
	identity := NewClassIdentity()
	lookup.register("com.example.Widget", identity)

	redefine := &fakeRedefine{outcomes: []RedefinitionOutcome{{Succeeded: true}}}
	coordinator, store := newTestCoordinator(t, redefine, lookup)

	coordinator.Submit(RedefinitionRequest{ClassName: "com.example.Widget", Bytecode: []byte("v2")})

	waitForKind(t, store, AggregateHotSwap, "com.example.Widget", KindClassRedefinitionSucceeded, 2*time.Second)
	waitForKind(t, store, AggregateHotSwap, "com.example.Widget", KindInstancesUpdated, 2*time.Second)
}

func TestCoordinatorSubmitUnknownClassFails(t *testing.T) {
	lookup := newFakeLookup()
	redefine := &fakeRedefine{outcomes: []RedefinitionOutcome{{Succeeded: true}}}
	coordinator, store := newTestCoordinator(t, redefine, lookup)

	coordinator.Submit(RedefinitionRequest{ClassName: "com.example.Unknown", Bytecode: []byte("v2")})

	failed := waitForKind(t, store, AggregateHotSwap, "com.example.Unknown", KindClassRedefinitionFailed, 2*time.Second)
	// Payloads loaded from disk are generic JSON values; decode into the
	// concrete payload type the same way internal/cli's decodePayload does.
	raw, err := json.Marshal(failed.Payload)
	if err != nil {
		t.Fatalf("failed to re-encode payload: %v", err)
	}
	var payload ClassRedefinitionFailedPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		t.Fatalf("expected ClassRedefinitionFailedPayload, got %T: %v", failed.Payload, err)
	}
	if payload.Kind != FailureClassNotLoaded {
		t.Fatalf("expected class-not-loaded, got %s", payload.Kind)
	}

	if redefine.attemptCount() != 0 {
		t.Fatalf("expected the redefinition port never to be called for an unloaded class")
	}
}

func TestCoordinatorRetriesTransientFailureThenSucceeds(t *testing.T) {
	lookup := newFakeLookup()
	identity := NewClassIdentity()
	lookup.register("com.example.Widget", identity)

	redefine := &fakeRedefine{outcomes: []RedefinitionOutcome{
		{Succeeded: false, Kind: FailureTransientIO, Diagnostic: "disk busy"},
		{Succeeded: false, Kind: FailureTransientIO, Diagnostic: "disk busy"},
		{Succeeded: true},
	}}
	coordinator, store := newTestCoordinator(t, redefine, lookup)

	coordinator.Submit(RedefinitionRequest{ClassName: "com.example.Widget", Bytecode: []byte("v2")})

	waitForKind(t, store, AggregateHotSwap, "com.example.Widget", KindClassRedefinitionSucceeded, 2*time.Second)
	if redefine.attemptCount() != 3 {
		t.Fatalf("expected 3 attempts (2 transient failures + 1 success), got %d", redefine.attemptCount())
	}
}

func TestCoordinatorDoesNotRetryTerminalFailures(t *testing.T) {
	lookup := newFakeLookup()
	identity := NewClassIdentity()
	lookup.register("com.example.Widget", identity)

	redefine := &fakeRedefine{outcomes: []RedefinitionOutcome{
		{Succeeded: false, Kind: FailureRuntimeRejected, Diagnostic: "bad bytecode"},
	}}
	coordinator, store := newTestCoordinator(t, redefine, lookup)

	coordinator.Submit(RedefinitionRequest{ClassName: "com.example.Widget", Bytecode: []byte("v2")})

	waitForKind(t, store, AggregateHotSwap, "com.example.Widget", KindClassRedefinitionFailed, 2*time.Second)
	if redefine.attemptCount() != 1 {
		t.Fatalf("expected exactly 1 attempt for a terminal failure, got %d", redefine.attemptCount())
	}
}

func TestCoordinatorRecordsBugSnapshotOnFailure(t *testing.T) {
	lookup := newFakeLookup()
	identity := NewClassIdentity()
	lookup.register("com.example.Widget", identity)

	redefine := &fakeRedefine{outcomes: []RedefinitionOutcome{
		{Succeeded: false, Kind: FailureRuntimeRejected, Diagnostic: "bad bytecode"},
	}}
	coordinator, store := newTestCoordinator(t, redefine, lookup)

	coordinator.Submit(RedefinitionRequest{ClassName: "com.example.Widget", Bytecode: []byte("v2")})
	waitForKind(t, store, AggregateHotSwap, "com.example.Widget", KindClassRedefinitionFailed, 2*time.Second)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		bugs, err := store.LoadByType(KindBugSnapshotRecorded)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(bugs) == 1 {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("timed out waiting for a bug snapshot to be recorded")
}

func TestCoordinatorCoalescesRequestsSubmittedWhileBusy(t *testing.T) {
	lookup := newFakeLookup()
	identity := NewClassIdentity()
	lookup.register("com.example.Widget", identity)

	block := make(chan struct{})
	redefine := &blockingRedefine{unblock: block, outcome: RedefinitionOutcome{Succeeded: true}}
	coordinator, store := newTestCoordinator(t, redefine, lookup)

	coordinator.Submit(RedefinitionRequest{ClassName: "com.example.Widget", Bytecode: []byte("v1")})
	// Give drive() a moment to move the class to StateRedefining before
	// submitting the coalesced request.
	time.Sleep(20 * time.Millisecond)
	coordinator.Submit(RedefinitionRequest{ClassName: "com.example.Widget", Bytecode: []byte("v2")})
	coordinator.Submit(RedefinitionRequest{ClassName: "com.example.Widget", Bytecode: []byte("v3")})

	close(block)

	waitForKind(t, store, AggregateHotSwap, "com.example.Widget", KindInstancesUpdated, 2*time.Second)

	cs := coordinator.stateFor("com.example.Widget")
	cs.lock()
	coalesced := cs.coalesced
	cs.unlock()
	if coalesced == 0 {
		t.Fatal("expected at least one coalesced submission to be recorded")
	}
}

type blockingRedefine struct {
	unblock <-chan struct{}
	outcome RedefinitionOutcome
}

func (b *blockingRedefine) Redefine(identity ClassIdentity, newBytes []byte) RedefinitionOutcome {
	<-b.unblock
	return b.outcome
}

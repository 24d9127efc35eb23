// coordinator.go: Redefinition Coordinator (C4).
//
// Per-class state machine guarded by a per-class mutex, modeled after
// the Instance Registry's own per-identity bucketing (spec §5). The
// only component allowed to hold a per-class lock and invoke the
// runtime redefinition port. Retries of transient-io failures go
// through cenkalti/backoff/v5's generic Retry, configured to the
// spec's literal 50ms/100ms/200ms schedule bounded to three attempts.
//
// Copyright (c) 2025 ByteHot
// SPDX-License-Identifier: MPL-2.0

package bytehot

import (
	"context"
	"sync"
	"time"

	"github.com/agilira/go-timecache"
	"github.com/cenkalti/backoff/v5"
)

// CoordinatorState is one state of the per-class redefinition state
// machine (spec §4.4).
type CoordinatorState int

const (
	StateIdle CoordinatorState = iota
	StatePending
	StateRedefining
	StateReconciling
	StateFailed
)

func (s CoordinatorState) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateRedefining:
		return "redefining"
	case StateReconciling:
		return "reconciling"
	case StateFailed:
		return "failed"
	default:
		return "idle"
	}
}

// classState is the per-class mutable state: current machine state plus
// a single-slot "latest pending bytecode" mailbox. Submitting while
// PENDING/REDEFINING/RECONCILING replaces the slot rather than queueing,
// so only the most recent bytecode ever survives coalescing.
type classState struct {
	mu        sync.Mutex
	state     CoordinatorState
	identity  ClassIdentity
	pending   *RedefinitionRequest
	coalesced int
}

func newClassState() *classState {
	return &classState{}
}

func (cs *classState) lock()   { cs.mu.Lock() }
func (cs *classState) unlock() { cs.mu.Unlock() }

// Coordinator is the Redefinition Coordinator (C4).
type Coordinator struct {
	config     Config
	store      *EventStore
	redefine   RedefinitionPort
	lookup     ClassLookupPort
	registry   *InstanceRegistry
	diagnostic DiagnosticSink

	classesMu sync.RWMutex
	classes   map[string]*classState

	// sem bounds how many redefinition-port calls may be in flight across
	// all classes at once (config.MaxConcurrentRedefinitions); each
	// class's own mutex already prevents concurrent redefinitions within
	// that class, so sem only gates cross-class fan-out.
	sem chan struct{}
}

// NewCoordinator constructs a Coordinator. Every class is reconciled
// with config.UpdatePolicy; there is no per-class policy override (hooks
// registered on the registry only supply what that policy invokes).
func NewCoordinator(config Config, store *EventStore, redefine RedefinitionPort, lookup ClassLookupPort, registry *InstanceRegistry, diagnostic DiagnosticSink) *Coordinator {
	cfg := config.WithDefaults()
	return &Coordinator{
		config:     cfg,
		store:      store,
		redefine:   redefine,
		lookup:     lookup,
		registry:   registry,
		diagnostic: diagnostic,
		classes:    make(map[string]*classState),
		sem:        make(chan struct{}, cfg.MaxConcurrentRedefinitions),
	}
}

func (c *Coordinator) stateFor(className string) *classState {
	c.classesMu.RLock()
	cs, ok := c.classes[className]
	c.classesMu.RUnlock()
	if ok {
		return cs
	}

	c.classesMu.Lock()
	defer c.classesMu.Unlock()
	if cs, ok := c.classes[className]; ok {
		return cs
	}
	cs = newClassState()
	c.classes[className] = cs
	return cs
}

// Submit is the entry point invoked with a BytecodeValidated change: it
// enqueues a redefinition request for req.ClassName, coalescing with any
// request already pending for that class (spec §4.4 Concurrency
// contract).
func (c *Coordinator) Submit(req RedefinitionRequest) {
	cs := c.stateFor(req.ClassName)

	cs.lock()
	switch cs.state {
	case StateIdle:
		cs.state = StatePending
		cs.pending = &req
		cs.unlock()
		c.emitHotSwapRequested(req)
		go c.drive(req.ClassName, cs)
	default:
		if cs.pending != nil {
			cs.coalesced++
			c.reportDiagnostic(req.ClassName, "redefinition request coalesced")
		}
		cs.pending = &req
		cs.unlock()
	}
}

// drive runs the state machine for className until its mailbox is
// empty, i.e. until a PENDING->REDEFINING->(RECONCILING|FAILED)->IDLE
// cycle completes with nothing left coalesced behind it.
func (c *Coordinator) drive(className string, cs *classState) {
	for {
		cs.lock()
		req := cs.pending
		cs.pending = nil
		cs.state = StateRedefining
		cs.unlock()

		if req == nil {
			cs.lock()
			cs.state = StateIdle
			cs.unlock()
			return
		}

		identity, ok := c.lookup.FindLoadedClass(className)
		var outcome RedefinitionOutcome
		if !ok {
			outcome = RedefinitionOutcome{
				ClassName:  className,
				Kind:       FailureClassNotLoaded,
				Diagnostic: "class not loaded in running process",
				Timestamp:  timecache.CachedTime(),
			}
		} else {
			cs.lock()
			cs.identity = identity
			cs.unlock()

			c.sem <- struct{}{}
			outcome = c.attemptRedefinition(identity, req)
			<-c.sem
		}

		if outcome.Succeeded {
			c.emitSucceeded(className)
			cs.lock()
			cs.state = StateReconciling
			cs.unlock()

			result := c.registry.Reconcile(identity, c.config.UpdatePolicy)
			c.emitInstancesUpdated(className, result)
		} else {
			event := c.emitFailed(className, outcome)
			if _, err := RecordBugSnapshot(c.store, event, outcome.Diagnostic, captureEnvironment()); err != nil {
				c.reportDiagnostic(className, "failed to record bug snapshot: "+err.Error())
			}
			cs.lock()
			cs.state = StateFailed
			cs.unlock()
		}

		cs.lock()
		if cs.pending == nil {
			cs.state = StateIdle
			cs.unlock()
			return
		}
		cs.state = StatePending
		cs.unlock()
	}
}

// attemptRedefinition calls the runtime redefinition port, retrying
// transient-io failures with exponential backoff per spec §4.4
// (50ms, 100ms, 200ms, bounded to three attempts); all other failure
// kinds are terminal on the first attempt.
func (c *Coordinator) attemptRedefinition(identity ClassIdentity, req *RedefinitionRequest) RedefinitionOutcome {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 50 * time.Millisecond
	policy.Multiplier = 2
	policy.MaxInterval = 200 * time.Millisecond
	policy.RandomizationFactor = 0

	operation := func() (RedefinitionOutcome, error) {
		outcome := c.redefine.Redefine(identity, req.Bytecode)
		if outcome.Succeeded || !outcome.Kind.Retryable() {
			return outcome, nil
		}
		return outcome, errTransient
	}

	maxTries := uint(c.config.TransientRetryBound)
	if maxTries == 0 {
		maxTries = 1
	}

	outcome, err := backoff.Retry(context.Background(), operation,
		backoff.WithBackOff(policy),
		backoff.WithMaxTries(maxTries),
	)
	if err != nil {
		// Exhausted retries on a transient-io failure: return the last
		// observed outcome rather than a synthetic one.
		return outcome
	}
	return outcome
}

// errTransient signals to backoff.Retry that the operation should be
// retried; the actual failure detail travels in the returned outcome.
var errTransient = &transientError{}

type transientError struct{}

func (*transientError) Error() string { return "transient redefinition failure" }

func (c *Coordinator) emitHotSwapRequested(req RedefinitionRequest) {
	payload := HotSwapRequestedPayload{ClassName: req.ClassName, Hash: req.Hash, CorrelationID: req.CorrelationID}
	event := NewEvent(AggregateHotSwap, req.ClassName, KindHotSwapRequested, payload)
	_, _ = c.store.Append(event)
}

func (c *Coordinator) emitSucceeded(className string) {
	payload := ClassRedefinitionSucceededPayload{ClassName: className, Timestamp: timecache.CachedTime()}
	event := NewEvent(AggregateHotSwap, className, KindClassRedefinitionSucceeded, payload)
	_, _ = c.store.Append(event)
}

func (c *Coordinator) emitFailed(className string, outcome RedefinitionOutcome) VersionedEvent {
	payload := ClassRedefinitionFailedPayload{ClassName: className, Kind: outcome.Kind, Diagnostic: outcome.Diagnostic}
	event := NewEvent(AggregateHotSwap, className, KindClassRedefinitionFailed, payload)
	stamped, err := c.store.Append(event)
	if err != nil {
		return event
	}
	return stamped
}

func (c *Coordinator) emitInstancesUpdated(className string, result ReconcileResult) {
	payload := InstancesUpdatedPayload{ClassName: className, Updated: result.Updated, Skipped: result.Skipped, Failed: result.Failed}
	event := NewEvent(AggregateHotSwap, className, KindInstancesUpdated, payload)
	_, _ = c.store.Append(event)
}

func (c *Coordinator) reportDiagnostic(className, message string) {
	if c.diagnostic == nil {
		return
	}
	c.diagnostic(DiagnosticPayload{ClassName: className, Code: ErrCodeRedefinitionInFlight, Message: message})
}

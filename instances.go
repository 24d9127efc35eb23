// instances.go: Instance Tracker & Updater (C5).
//
// The source language's native weak references are modeled with the
// stdlib `weak` package (Go 1.24+) per spec §9's explicit design note —
// the idiomatic Go answer, not a stdlib-avoidance shortcut. Bucketing
// is keyed by ClassIdentity with one mutex per bucket, the same
// fine-grained-locking posture argus applies to its own registries.
//
// Copyright (c) 2025 ByteHot
// SPDX-License-Identifier: MPL-2.0

package bytehot

import (
	"context"
	"reflect"
	"sync"
	"sync/atomic"
	"time"
	"weak"

	"github.com/agilira/go-errors"
)

// weakRef erases the type parameter of weak.Pointer[T] so instances of
// different concrete types can share one bucket.
type weakRef interface {
	// value returns the strong instance and true if it has not been
	// reclaimed by the garbage collector.
	value() (any, bool)
}

type typedWeakRef[T any] struct {
	ptr weak.Pointer[T]
}

func (w typedWeakRef[T]) value() (any, bool) {
	if strong := w.ptr.Value(); strong != nil {
		return strong, true
	}
	return nil, false
}

type instanceBucket struct {
	mu   sync.Mutex
	refs map[uintptr]weakRef
}

// InstanceRegistry is the single globally-shared mutable structure of
// spec §5, storing weak references to tracked instances keyed by the
// strong identity of their class.
type InstanceRegistry struct {
	mu      sync.Mutex
	buckets map[ClassIdentity]*instanceBucket

	hookMu        sync.Mutex
	reinitHooks   map[ClassIdentity]RefreshHookPort
	refreshHooks  map[ClassIdentity]RefreshHookPort

	// hookTimeoutNanos is the configured framework-refresh/reinitialize
	// hook deadline (spec §5), zero meaning no timeout. Stored as an
	// atomic so SetHookTimeout can be called without taking hookMu.
	hookTimeoutNanos atomic.Int64
}

// NewInstanceRegistry constructs an empty registry with no hook timeout.
func NewInstanceRegistry() *InstanceRegistry {
	return &InstanceRegistry{
		buckets:      make(map[ClassIdentity]*instanceBucket),
		reinitHooks:  make(map[ClassIdentity]RefreshHookPort),
		refreshHooks: make(map[ClassIdentity]RefreshHookPort),
	}
}

// SetHookTimeout configures the deadline applied to every subsequent
// reinitialize/framework-refresh hook invocation (spec §5's
// RedefinitionTimeout). d <= 0 disables the timeout.
func (r *InstanceRegistry) SetHookTimeout(d time.Duration) {
	r.hookTimeoutNanos.Store(int64(d))
}

func (r *InstanceRegistry) bucketFor(identity ClassIdentity) *instanceBucket {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.buckets[identity]
	if !ok {
		b = &instanceBucket{refs: make(map[uintptr]weakRef)}
		r.buckets[identity] = b
	}
	return b
}

// Track registers instance as a weak reference under identity. Tracking
// is idempotent: tracking the same pointer twice is a no-op. Identity
// comparison uses reference equality, not value equality (spec §4.5).
func Track[T any](r *InstanceRegistry, identity ClassIdentity, instance *T) {
	if instance == nil {
		return
	}
	key := reflect.ValueOf(instance).Pointer()

	b := r.bucketFor(identity)
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.refs[key]; ok {
		return
	}
	b.refs[key] = typedWeakRef[T]{ptr: weak.Make(instance)}
}

// TrackAll registers every instance in instances under identity.
func TrackAll[T any](r *InstanceRegistry, identity ClassIdentity, instances []*T) {
	for _, instance := range instances {
		Track(r, identity, instance)
	}
}

// RegisterReinitializeHook installs the hook invoked by PolicyReinitialize
// for identity.
func (r *InstanceRegistry) RegisterReinitializeHook(identity ClassIdentity, hook RefreshHookPort) {
	r.hookMu.Lock()
	defer r.hookMu.Unlock()
	r.reinitHooks[identity] = hook
}

// RegisterRefreshHook installs the framework-assisted refresh hook
// invoked by PolicyFrameworkRefresh for identity.
func (r *InstanceRegistry) RegisterRefreshHook(identity ClassIdentity, hook RefreshHookPort) {
	r.hookMu.Lock()
	defer r.hookMu.Unlock()
	r.refreshHooks[identity] = hook
}

// ReconcileResult summarizes one reconciliation pass over a class's
// tracked instances (spec §4.5).
type ReconcileResult struct {
	Updated int
	Skipped int
	Failed  int
}

// Reconcile applies policy to every live instance tracked under
// identity, dropping reclaimed references as it goes, and returns the
// updated/skipped/failed counts for the InstancesUpdated event. This is
// only ever called after C4 has persisted a ClassRedefinitionSucceeded
// for identity, and it completes before the next redefinition for that
// class may begin (spec §4.5 Ordering).
func (r *InstanceRegistry) Reconcile(identity ClassIdentity, policy UpdatePolicy) ReconcileResult {
	b := r.bucketFor(identity)

	b.mu.Lock()
	defer b.mu.Unlock()

	var result ReconcileResult
	for key, ref := range b.refs {
		instance, alive := ref.value()
		if !alive {
			delete(b.refs, key)
			result.Skipped++
			continue
		}

		if r.applyPolicy(identity, policy, instance) {
			result.Updated++
		} else {
			result.Failed++
		}
	}
	return result
}

func (r *InstanceRegistry) applyPolicy(identity ClassIdentity, policy UpdatePolicy, instance any) bool {
	switch policy {
	case PolicyReinitialize:
		r.hookMu.Lock()
		hook := r.reinitHooks[identity]
		r.hookMu.Unlock()
		if hook == nil {
			return true // no reinitialization registered: method bodies alone suffice
		}
		return r.invokeHook(identity, hook, instance) == nil

	case PolicyFrameworkRefresh:
		r.hookMu.Lock()
		hook := r.refreshHooks[identity]
		r.hookMu.Unlock()
		if hook == nil {
			return false
		}
		return r.invokeHook(identity, hook, instance) == nil

	default: // PolicyNoOp
		return true
	}
}

// invokeHook runs hook under the registry's configured timeout (spec
// §5). A hook that has not returned by the deadline counts as failed
// with ErrCodeHookTimeout; the goroutine racing it is leaked until the
// hook itself eventually returns, same as a blocked native call would be.
func (r *InstanceRegistry) invokeHook(identity ClassIdentity, hook RefreshHookPort, instance any) error {
	timeout := time.Duration(r.hookTimeoutNanos.Load())
	if timeout <= 0 {
		return hook.Refresh(context.Background(), identity, instance)
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- hook.Refresh(ctx, identity, instance)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return errors.New(ErrCodeHookTimeout, "framework-refresh hook timed out").
			WithContext("identity", uint64(identity))
	}
}

// Count returns the number of instances currently tracked under
// identity, including reclaimed-but-not-yet-swept ones. Exposed for
// tests and diagnostics.
func (r *InstanceRegistry) Count(identity ClassIdentity) int {
	b := r.bucketFor(identity)
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.refs)
}

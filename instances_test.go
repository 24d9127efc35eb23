// Copyright (c) 2025 ByteHot
// SPDX-License-Identifier: MPL-2.0
package bytehot

import (
	"context"
	"errors"
	"runtime"
	"testing"
	"time"
)

type widget struct {
	Count int
}

func TestTrackIsIdempotent(t *testing.T) {
	registry := NewInstanceRegistry()
	identity := NewClassIdentity()
	w := &widget{Count: 1}

	Track(registry, identity, w)
	Track(registry, identity, w)

	if got := registry.Count(identity); got != 1 {
		t.Fatalf("expected 1 tracked instance, got %d", got)
	}
}

func TestTrackAll(t *testing.T) {
	registry := NewInstanceRegistry()
	identity := NewClassIdentity()
	instances := []*widget{{Count: 1}, {Count: 2}, {Count: 3}}

	TrackAll(registry, identity, instances)

	if got := registry.Count(identity); got != 3 {
		t.Fatalf("expected 3 tracked instances, got %d", got)
	}
}

func TestReconcileNoOpPolicyUpdatesAllLiveInstances(t *testing.T) {
	registry := NewInstanceRegistry()
	identity := NewClassIdentity()
	w := &widget{Count: 1}
	Track(registry, identity, w)

	result := registry.Reconcile(identity, PolicyNoOp)
	if result.Updated != 1 || result.Skipped != 0 || result.Failed != 0 {
		t.Fatalf("unexpected reconcile result: %+v", result)
	}
	runtime.KeepAlive(w)
}

func TestReconcileDropsReclaimedReferences(t *testing.T) {
	registry := NewInstanceRegistry()
	identity := NewClassIdentity()

	func() {
		w := &widget{Count: 1}
		Track(registry, identity, w)
	}()

	// Force a collection so the weak reference above has a chance to clear;
	// Reconcile must treat a cleared reference as reclaimed, not alive.
	runtime.GC()
	runtime.GC()

	result := registry.Reconcile(identity, PolicyNoOp)
	if result.Updated+result.Skipped != 1 {
		t.Fatalf("expected exactly one instance accounted for, got %+v", result)
	}
}

func TestReconcileReinitializePolicyWithoutHookSucceeds(t *testing.T) {
	registry := NewInstanceRegistry()
	identity := NewClassIdentity()
	w := &widget{Count: 1}
	Track(registry, identity, w)

	result := registry.Reconcile(identity, PolicyReinitialize)
	if result.Updated != 1 || result.Failed != 0 {
		t.Fatalf("expected reinitialize with no hook to succeed, got %+v", result)
	}
	runtime.KeepAlive(w)
}

func TestReconcileReinitializePolicyHonorsHook(t *testing.T) {
	registry := NewInstanceRegistry()
	identity := NewClassIdentity()
	w := &widget{Count: 1}
	Track(registry, identity, w)

	calls := 0
	registry.RegisterReinitializeHook(identity, RefreshHookFunc(func(ctx context.Context, id ClassIdentity, instance any) error {
		calls++
		if _, ok := instance.(*widget); !ok {
			t.Fatalf("expected *widget, got %T", instance)
		}
		return nil
	}))

	result := registry.Reconcile(identity, PolicyReinitialize)
	if calls != 1 || result.Updated != 1 {
		t.Fatalf("expected hook invoked once and instance updated, got calls=%d result=%+v", calls, result)
	}
	runtime.KeepAlive(w)
}

func TestReconcileFrameworkRefreshPolicyWithoutHookFails(t *testing.T) {
	registry := NewInstanceRegistry()
	identity := NewClassIdentity()
	w := &widget{Count: 1}
	Track(registry, identity, w)

	result := registry.Reconcile(identity, PolicyFrameworkRefresh)
	if result.Failed != 1 || result.Updated != 0 {
		t.Fatalf("expected framework-refresh with no hook to fail, got %+v", result)
	}
	runtime.KeepAlive(w)
}

func TestReconcileFrameworkRefreshPolicyPropagatesHookError(t *testing.T) {
	registry := NewInstanceRegistry()
	identity := NewClassIdentity()
	w := &widget{Count: 1}
	Track(registry, identity, w)

	registry.RegisterRefreshHook(identity, RefreshHookFunc(func(ctx context.Context, id ClassIdentity, instance any) error {
		return errors.New("refresh failed")
	}))

	result := registry.Reconcile(identity, PolicyFrameworkRefresh)
	if result.Failed != 1 {
		t.Fatalf("expected hook failure to count as Failed, got %+v", result)
	}
	runtime.KeepAlive(w)
}

func TestReconcileFrameworkRefreshPolicyTimesOutOnBlockingHook(t *testing.T) {
	registry := NewInstanceRegistry()
	registry.SetHookTimeout(20 * time.Millisecond)
	identity := NewClassIdentity()
	w := &widget{Count: 1}
	Track(registry, identity, w)

	registry.RegisterRefreshHook(identity, RefreshHookFunc(func(ctx context.Context, id ClassIdentity, instance any) error {
		<-ctx.Done()
		return ctx.Err()
	}))

	result := registry.Reconcile(identity, PolicyFrameworkRefresh)
	if result.Failed != 1 || result.Updated != 0 {
		t.Fatalf("expected a blocked hook to time out and count as Failed, got %+v", result)
	}
	runtime.KeepAlive(w)
}

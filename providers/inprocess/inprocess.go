// Package inprocess provides the production-seam implementations of
// bytehot's RedefinitionPort and ClassLookupPort for a single
// in-process host runtime bridge (spec §6).
//
// Grounded on argus's own callback-registration idiom (ErrorHandler):
// a thin registry the host process populates at startup, with a narrow
// interface in front of it so the core never depends on the concrete
// runtime bridge.
//
// Copyright (c) 2025 ByteHot
// SPDX-License-Identifier: MPL-2.0
package inprocess

import (
	"sync"

	"github.com/agilira/go-timecache"
	"github.com/bytehot/bytehot"
)

// RedefineFunc is the host runtime's native class-redefinition call.
type RedefineFunc func(identity bytehot.ClassIdentity, newBytes []byte) error

// ClassRegistry is the production ClassLookupPort and RedefinitionPort
// implementation: a host process registers its loaded classes and a
// redefinition callback once at startup, and the core consults it on
// every hot-swap.
type ClassRegistry struct {
	mu       sync.RWMutex
	loaded   map[string]bytehot.ClassIdentity
	redefine RedefineFunc
}

// NewClassRegistry constructs an empty registry. redefine is the host
// runtime's native redefinition call; it is invoked at most once per
// retry attempt by the Coordinator.
func NewClassRegistry(redefine RedefineFunc) *ClassRegistry {
	return &ClassRegistry{
		loaded:   make(map[string]bytehot.ClassIdentity),
		redefine: redefine,
	}
}

// RegisterLoaded records that qualifiedName is currently loaded under
// identity. Called by host-runtime instrumentation whenever a class is
// loaded or unloaded (passing the zero ClassIdentity removes it).
func (r *ClassRegistry) RegisterLoaded(qualifiedName string, identity bytehot.ClassIdentity) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if identity.IsZero() {
		delete(r.loaded, qualifiedName)
		return
	}
	r.loaded[qualifiedName] = identity
}

// FindLoadedClass implements bytehot.ClassLookupPort.
func (r *ClassRegistry) FindLoadedClass(qualifiedName string) (bytehot.ClassIdentity, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	identity, ok := r.loaded[qualifiedName]
	return identity, ok
}

// Redefine implements bytehot.RedefinitionPort, translating the host
// runtime's error into the §4.4 failure-kind taxonomy. A nil redefine
// callback is treated as redefinition-unsupported, never as success.
func (r *ClassRegistry) Redefine(identity bytehot.ClassIdentity, newBytes []byte) bytehot.RedefinitionOutcome {
	if r.redefine == nil {
		return bytehot.RedefinitionOutcome{
			Kind:       bytehot.FailureRedefinitionUnsupported,
			Diagnostic: "no runtime redefinition bridge registered",
			Timestamp:  timecache.CachedTime(),
		}
	}

	if err := r.redefine(identity, newBytes); err != nil {
		return bytehot.RedefinitionOutcome{
			Kind:       classifyRedefineError(err),
			Diagnostic: err.Error(),
			Timestamp:  timecache.CachedTime(),
		}
	}

	return bytehot.RedefinitionOutcome{Succeeded: true, Timestamp: timecache.CachedTime()}
}

// classifyRedefineError maps a host-runtime bridge error to a failure
// kind. A RedefineError carries an explicit kind; any other error is
// treated as transient-io, the only kind the Coordinator retries.
func classifyRedefineError(err error) bytehot.RedefinitionFailureKind {
	if re, ok := err.(*RedefineError); ok {
		return re.Kind
	}
	return bytehot.FailureTransientIO
}

// RedefineError lets a host-runtime bridge report a specific failure
// kind instead of falling back to the transient-io default.
type RedefineError struct {
	Kind    bytehot.RedefinitionFailureKind
	Message string
}

func (e *RedefineError) Error() string { return e.Message }

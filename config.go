// config.go: the configuration surface consumed by the core (spec §6).
//
// Grounded on argus's config.go (WithDefaults cascade) and its Config
// struct shape; field set replaced with spec §6's options table.
//
// Copyright (c) 2025 ByteHot
// SPDX-License-Identifier: MPL-2.0

package bytehot

import "time"

// UpdatePolicy selects the reconciliation strategy C5 applies to live
// instances after a successful redefinition (spec §4.5).
type UpdatePolicy int

const (
	// PolicyNoOp is the default: the new method bodies transparently apply.
	PolicyNoOp UpdatePolicy = iota
	// PolicyReinitialize re-runs initialization logic preserving field values.
	PolicyReinitialize
	// PolicyFrameworkRefresh delegates to a registered per-class hook.
	PolicyFrameworkRefresh
)

func (p UpdatePolicy) String() string {
	switch p {
	case PolicyReinitialize:
		return "reinitialize"
	case PolicyFrameworkRefresh:
		return "framework-refresh"
	default:
		return "no-op"
	}
}

// WatchRoot is one configured watch directory.
type WatchRoot struct {
	Path      string
	Recursive bool
}

// Config is the configuration surface of spec §6, supplied by out-of-scope
// host glue (config-file parsing, CLI flags, ...); the core only ever sees
// this struct.
type Config struct {
	// WatchRoots are the directories watched for compiled-class artifacts.
	WatchRoots []WatchRoot

	// EventStoreRoot is the filesystem root the event store appends under.
	EventStoreRoot string

	// MaxConcurrentRedefinitions bounds how many classes may be
	// REDEFINING at once (independent classes redefine in parallel).
	MaxConcurrentRedefinitions int

	// RedefinitionTimeout bounds every reinitialize/framework-refresh
	// instance hook invoked by C5 after a successful redefinition; the
	// runtime redefinition call itself carries no per-call timeout (spec
	// §5). Zero means no timeout.
	RedefinitionTimeout time.Duration

	// UpdatePolicy selects the default reconciliation strategy.
	UpdatePolicy UpdatePolicy

	// TransientRetryBound caps the total number of redefinition attempts
	// (the first call included) when failures are transient-io.
	TransientRetryBound int

	// SizeStabilizationAttempts bounds the watcher's zero-size retry loop.
	SizeStabilizationAttempts int

	// SizeStabilizationDelay is the sleep between stabilization attempts.
	SizeStabilizationDelay time.Duration

	// StopDrainDeadline bounds how long Stop() waits for in-flight events
	// to drain before joining worker pools (spec §5).
	StopDrainDeadline time.Duration
}

// WithDefaults returns a copy of c with spec §6's documented defaults
// applied to any zero-valued field.
func (c Config) WithDefaults() Config {
	cfg := c

	if cfg.MaxConcurrentRedefinitions <= 0 {
		cfg.MaxConcurrentRedefinitions = 5
	}
	if cfg.TransientRetryBound <= 0 {
		cfg.TransientRetryBound = 3
	}
	if cfg.SizeStabilizationAttempts <= 0 {
		cfg.SizeStabilizationAttempts = 5
	}
	if cfg.SizeStabilizationDelay <= 0 {
		cfg.SizeStabilizationDelay = 10 * time.Millisecond
	}
	if cfg.StopDrainDeadline <= 0 {
		cfg.StopDrainDeadline = 30 * time.Second
	}

	return cfg
}

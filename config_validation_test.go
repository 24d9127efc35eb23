// Copyright (c) 2025 ByteHot
// SPDX-License-Identifier: MPL-2.0
package bytehot

import (
	"errors"
	"testing"
)

func TestConfigValidate(t *testing.T) {
	valid := Config{
		WatchRoots:     []WatchRoot{{Path: "/tmp/classes"}},
		EventStoreRoot: "/tmp/events",
	}

	tests := []struct {
		name    string
		mutate  func(c Config) Config
		wantErr error
	}{
		{"valid", func(c Config) Config { return c }, nil},
		{"no watch roots", func(c Config) Config { c.WatchRoots = nil; return c }, ErrNoWatchRoots},
		{"empty watch root path", func(c Config) Config { c.WatchRoots = []WatchRoot{{Path: ""}}; return c }, ErrEmptyWatchRootPath},
		{"empty event store root", func(c Config) Config { c.EventStoreRoot = ""; return c }, ErrInvalidEventStoreRoot},
		{"negative max concurrent", func(c Config) Config { c.MaxConcurrentRedefinitions = -1; return c }, ErrInvalidMaxConcurrent},
		{"negative transient retry", func(c Config) Config { c.TransientRetryBound = -1; return c }, ErrInvalidTransientRetry},
		{"negative stabilization attempts", func(c Config) Config { c.SizeStabilizationAttempts = -1; return c }, ErrInvalidStabilizationTries},
		{"negative stabilization delay", func(c Config) Config { c.SizeStabilizationDelay = -1; return c }, ErrInvalidStabilizationDelay},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.mutate(valid).Validate()
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestConfigWithDefaults(t *testing.T) {
	cfg := Config{}.WithDefaults()

	if cfg.MaxConcurrentRedefinitions != 5 {
		t.Errorf("expected default MaxConcurrentRedefinitions=5, got %d", cfg.MaxConcurrentRedefinitions)
	}
	if cfg.TransientRetryBound != 3 {
		t.Errorf("expected default TransientRetryBound=3, got %d", cfg.TransientRetryBound)
	}
	if cfg.SizeStabilizationAttempts != 5 {
		t.Errorf("expected default SizeStabilizationAttempts=5, got %d", cfg.SizeStabilizationAttempts)
	}
	if cfg.SizeStabilizationDelay <= 0 {
		t.Errorf("expected a positive default SizeStabilizationDelay, got %v", cfg.SizeStabilizationDelay)
	}
	if cfg.StopDrainDeadline <= 0 {
		t.Errorf("expected a positive default StopDrainDeadline, got %v", cfg.StopDrainDeadline)
	}
}

func TestConfigWithDefaultsPreservesExplicitValues(t *testing.T) {
	cfg := Config{MaxConcurrentRedefinitions: 10}.WithDefaults()
	if cfg.MaxConcurrentRedefinitions != 10 {
		t.Errorf("expected explicit MaxConcurrentRedefinitions to survive WithDefaults, got %d", cfg.MaxConcurrentRedefinitions)
	}
}

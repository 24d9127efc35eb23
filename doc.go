// Package bytehot implements a runtime class-redefinition pipeline for a
// managed bytecode execution environment.
//
// A developer recompiles a class, bytehot detects the resulting artifact
// on disk, extracts its metadata, decides whether the change is safe to
// apply to the running process, drives the runtime's redefinition
// facility, and reconciles already-live instances of the class with the
// new definition. Every step is persisted as a versioned, causally
// chained event so the whole run can be replayed or bundled into a bug
// snapshot.
//
// The pipeline is six components wired strictly left to right:
// Watcher -> Analyzer -> Validator -> Coordinator -> InstanceRegistry,
// with the EventStore recording everything in between. Package-level
// entry point is Pipeline; everything else is reachable through it or
// through the providers/ package for host-runtime integration.
//
// Copyright (c) 2025 ByteHot
// SPDX-License-Identifier: MPL-2.0
package bytehot

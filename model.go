// model.go: core data types shared across the pipeline (spec §3).
//
// Copyright (c) 2025 ByteHot
// SPDX-License-Identifier: MPL-2.0

package bytehot

import (
	"path/filepath"
	"strings"
	"time"
)

// ClassNameFromPath derives the qualified class name from an artifact path
// by stripping the watch root and the ".class" suffix and translating path
// separators to dots.
func ClassNameFromPath(root, path string) string {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		rel = path
	}
	rel = strings.TrimSuffix(rel, classFileSuffix)
	rel = filepath.ToSlash(rel)
	return strings.ReplaceAll(rel, "/", ".")
}

const classFileSuffix = ".class"

// FileEventKind distinguishes the three Class-File Event cases.
type FileEventKind uint8

const (
	FileCreated FileEventKind = iota + 1
	FileModified
	FileDeleted
)

func (k FileEventKind) String() string {
	switch k {
	case FileCreated:
		return "created"
	case FileModified:
		return "modified"
	case FileDeleted:
		return "deleted"
	default:
		return "unknown"
	}
}

// ClassFileEvent is the normalized artifact-change notification emitted by
// the watcher (C1). Size is strictly positive for Created/Modified and
// absent (zero) for Deleted.
type ClassFileEvent struct {
	Kind      FileEventKind
	Path      string
	ClassName string
	Size      int64
	Captured  time.Time
}

// ClassField is one declared field of a class.
type ClassField struct {
	Name       string
	Descriptor string
	Modifiers  uint16
}

// ClassMethod is one declared method of a class.
type ClassMethod struct {
	Name       string
	Descriptor string
	Modifiers  uint16
}

// ClassMetadata is the immutable extraction result of the Bytecode Analyzer
// (C2) for one artifact.
type ClassMetadata struct {
	ClassName  string
	Superclass string
	Interfaces []string // unordered set, stored in artifact order; compared order-independently
	Fields     []ClassField
	Methods    []ClassMethod
	Hash       string // hex-encoded SHA-256 over the artifact bytes
}

// IncompatibilityReason enumerates the structured reasons a change is
// rejected by the Compatibility Validator (C3).
type IncompatibilityReason string

const (
	ReasonFieldAdded              IncompatibilityReason = "field-added"
	ReasonFieldRemoved            IncompatibilityReason = "field-removed"
	ReasonFieldTypeChanged        IncompatibilityReason = "field-type-changed"
	ReasonHierarchyChanged        IncompatibilityReason = "hierarchy-changed"
	ReasonInterfaceSetChanged     IncompatibilityReason = "interface-set-changed"
	ReasonMethodSignatureChanged  IncompatibilityReason = "method-signature-changed"
	ReasonMethodAddedOrRemoved    IncompatibilityReason = "method-added-or-removed-public"
)

// CompatibilityVerdict is the sum-type result of the Compatibility
// Validator (C3). Exactly one of Compatible/Incompatible holds: when
// Incompatible is true, Reason and Detail explain why.
type CompatibilityVerdict struct {
	Incompatible bool
	Description  string // human-readable change summary, set when Compatible
	Reason       IncompatibilityReason
	Detail       string // e.g. offending field/method name
}

// Compatible builds a Compatible verdict.
func Compatible(description string) CompatibilityVerdict {
	return CompatibilityVerdict{Description: description}
}

// Incompatible builds an Incompatible verdict with a structured reason.
func Incompatible(reason IncompatibilityReason, detail string) CompatibilityVerdict {
	return CompatibilityVerdict{Incompatible: true, Reason: reason, Detail: detail}
}

// RedefinitionRequest is the C3->C4 handoff: a validated change ready to be
// applied to the running process.
type RedefinitionRequest struct {
	ClassName     string
	Bytecode      []byte
	Hash          string
	CorrelationID string
}

// RedefinitionFailureKind enumerates §4.4's terminal and retryable failure
// kinds for the runtime redefinition call.
type RedefinitionFailureKind string

const (
	FailureRuntimeRejected         RedefinitionFailureKind = "runtime-rejected"
	FailureClassNotLoaded          RedefinitionFailureKind = "class-not-loaded"
	FailureRedefinitionUnsupported RedefinitionFailureKind = "redefinition-unsupported"
	FailureTransientIO             RedefinitionFailureKind = "transient-io"
)

// Retryable reports whether §4.4 specifies retry-with-backoff for this
// failure kind. Only transient-io is retried.
func (k RedefinitionFailureKind) Retryable() bool {
	return k == FailureTransientIO
}

// RedefinitionOutcome is the result of one runtime redefinition attempt.
type RedefinitionOutcome struct {
	Succeeded  bool
	ClassName  string
	Timestamp  time.Time
	Kind       RedefinitionFailureKind // set when !Succeeded
	Diagnostic string                  // set when !Succeeded
}

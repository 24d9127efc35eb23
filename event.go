// event.go: the versioned-event envelope and the closed set of event kinds.
//
// Grounded on audit.go's AuditEvent/AuditLevel envelope shape, generalized
// from a flat audit record into an aggregate-versioned envelope wrapping a
// tagged-union payload, per spec §3/§9 ("model as a tagged sum/variant with
// exhaustive matching, not as a base-class hierarchy").
//
// Copyright (c) 2025 ByteHot
// SPDX-License-Identifier: MPL-2.0

package bytehot

import (
	"time"

	"github.com/agilira/go-timecache"
	"github.com/google/uuid"
)

// EventKind is the closed set of event variants the pipeline can emit.
type EventKind string

const (
	KindClassFileCreated          EventKind = "ClassFileCreated"
	KindClassFileModified         EventKind = "ClassFileModified"
	KindClassFileDeleted          EventKind = "ClassFileDeleted"
	KindClassMetadataExtracted    EventKind = "ClassMetadataExtracted"
	KindBytecodeAnalysisFailed    EventKind = "BytecodeAnalysisFailed"
	KindBytecodeValidated         EventKind = "BytecodeValidated"
	KindBytecodeRejected          EventKind = "BytecodeRejected"
	KindHotSwapRequested          EventKind = "HotSwapRequested"
	KindClassRedefinitionSucceeded EventKind = "ClassRedefinitionSucceeded"
	KindClassRedefinitionFailed   EventKind = "ClassRedefinitionFailed"
	KindInstancesUpdated          EventKind = "InstancesUpdated"
	KindBugSnapshotRecorded       EventKind = "BugSnapshotRecorded"
	KindDiagnostic                EventKind = "Diagnostic"
)

// SchemaVersion is the current envelope schema version, carried on every
// event for future migration (spec §3).
const SchemaVersion = 1

// VersionedEvent is the envelope wrapping any payload variant. The
// constructing component sets the aggregate type and id (NewEvent); the
// aggregate version and previous-id are stamped by the EventStore at
// append time.
type VersionedEvent struct {
	EventID         string    `json:"eventId"`
	AggregateType   string    `json:"aggregateType"`
	AggregateID     string    `json:"aggregateId"`
	AggregateVersion uint64   `json:"aggregateVersion"`
	Timestamp       time.Time `json:"timestamp"`
	PreviousEventID string    `json:"previousEventId,omitempty"`
	SchemaVersion   int       `json:"schemaVersion"`
	Kind            EventKind `json:"kind"`
	Payload         any       `json:"payload"`
}

// NewEvent constructs an unstamped VersionedEvent for the given aggregate;
// the EventStore fills in AggregateVersion/PreviousEventID on Append.
func NewEvent(aggregateType, aggregateID string, kind EventKind, payload any) VersionedEvent {
	return VersionedEvent{
		EventID:       uuid.NewString(),
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		Timestamp:     timecache.CachedTime(),
		SchemaVersion: SchemaVersion,
		Kind:          kind,
		Payload:       payload,
	}
}

// Aggregate type tags: "hotswap" for per-class pipeline events, "bugs"
// for bug snapshots.
const (
	AggregateHotSwap = "hotswap"
	AggregateBugs    = "bugs"
)

// Payload variants. Each carries exactly the fields spec §9 attributes to
// its event kind.

type ClassFileCreatedPayload struct {
	ClassName string `json:"className"`
	Path      string `json:"path"`
	Size      int64  `json:"size"`
}

type ClassFileModifiedPayload struct {
	ClassName string `json:"className"`
	Path      string `json:"path"`
	Size      int64  `json:"size"`
}

type ClassFileDeletedPayload struct {
	ClassName string `json:"className"`
	Path      string `json:"path"`
}

type ClassMetadataExtractedPayload struct {
	ClassName string `json:"className"`
	Hash      string `json:"hash"`
}

type BytecodeAnalysisFailedPayload struct {
	ClassName string `json:"className"`
	Path      string `json:"path"`
	Reason    string `json:"reason"`
}

type BytecodeValidatedPayload struct {
	ClassName   string `json:"className"`
	Description string `json:"description"`
}

type BytecodeRejectedPayload struct {
	ClassName string                `json:"className"`
	Reason    IncompatibilityReason `json:"reason"`
	Detail    string                `json:"detail,omitempty"`
}

type HotSwapRequestedPayload struct {
	ClassName     string `json:"className"`
	Hash          string `json:"hash"`
	CorrelationID string `json:"correlationId"`
}

type ClassRedefinitionSucceededPayload struct {
	ClassName string    `json:"className"`
	Timestamp time.Time `json:"timestamp"`
}

type ClassRedefinitionFailedPayload struct {
	ClassName  string                  `json:"className"`
	Kind       RedefinitionFailureKind `json:"kind"`
	Diagnostic string                  `json:"diagnostic"`
}

type InstancesUpdatedPayload struct {
	ClassName string `json:"className"`
	Updated   int    `json:"updated"`
	Skipped   int    `json:"skipped"`
	Failed    int    `json:"failed"`
}

type BugSnapshotPayload struct {
	FailingEventID string           `json:"failingEventId"`
	AggregateType  string           `json:"aggregateType"`
	AggregateID    string           `json:"aggregateId"`
	History        []VersionedEvent `json:"history"`
	Environment    map[string]string `json:"environment"`
	Diagnostic     string           `json:"diagnostic"`
	Checksum       string           `json:"checksum"`
}

// DiagnosticPayload covers every non-fatal, logged-and-continue condition
// across C1-C5 (spec §7): size-unstable, notification-dropped,
// path-unreadable, coalesced redefinitions, deletion notices, etc.
type DiagnosticPayload struct {
	ClassName string `json:"className,omitempty"`
	Code      string `json:"code"`
	Message   string `json:"message"`
}

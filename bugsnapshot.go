// bugsnapshot.go: Bug Snapshot assembly (spec §4.6).
//
// On any unhandled failure bubbling up from C1-C5, the offending event
// plus the full aggregate history is bundled and appended to the
// dedicated "bugs" aggregate, keyed by the failing event's own id so
// every snapshot is independently addressable.
//
// Copyright (c) 2025 ByteHot
// SPDX-License-Identifier: MPL-2.0

package bytehot

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"os"
	"runtime"
	"strconv"
)

// RecordBugSnapshot loads the full causal history for (aggregateType,
// aggregateID), bundles it with the failing event and environment
// metadata into a BugSnapshotPayload, and appends it to the "bugs"
// aggregate keyed by the failing event's id.
func RecordBugSnapshot(store *EventStore, failing VersionedEvent, diagnostic string, environment map[string]string) (VersionedEvent, error) {
	history, err := store.LoadAggregate(failing.AggregateType, failing.AggregateID)
	if err != nil {
		return VersionedEvent{}, err
	}

	payload := BugSnapshotPayload{
		FailingEventID: failing.EventID,
		AggregateType:  failing.AggregateType,
		AggregateID:    failing.AggregateID,
		History:        history,
		Environment:    environment,
		Diagnostic:     diagnostic,
	}
	payload.Checksum = checksumSnapshot(payload)

	event := NewEvent(AggregateBugs, failing.EventID, KindBugSnapshotRecorded, payload)
	return store.Append(event)
}

// captureEnvironment gathers the minimal in-process descriptor worth
// attaching to a bug snapshot: the host OS/architecture, the process id
// and the live goroutine count at the moment of failure. None of this
// requires reaching outside the process, so it is always cheap to call.
func captureEnvironment() map[string]string {
	return map[string]string{
		"os":         runtime.GOOS,
		"arch":       runtime.GOARCH,
		"go_version": runtime.Version(),
		"pid":        strconv.Itoa(os.Getpid()),
		"goroutines": strconv.Itoa(runtime.NumGoroutine()),
	}
}

// checksumSnapshot hashes the snapshot's content (every payload field
// except Checksum)
// so a replayed snapshot can be verified to match the one originally
// recorded, independent of the Checksum field itself.
func checksumSnapshot(payload BugSnapshotPayload) string {
	payload.Checksum = ""
	data, err := json.Marshal(payload)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

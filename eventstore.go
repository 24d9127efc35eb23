// eventstore.go: Event Store & Aggregate Versioning (C6).
//
// Grounded on argus's audit_backend.go JSONL path (write-then-rename,
// one file per entry) generalized from a flat append-only audit log
// into per-aggregate-directory, per-aggregate-versioned causal chains,
// per spec §4.6/§9. The optional SQLite side index
// (eventstore_index.go) is adapted from the same file's sqliteAuditBackend.
//
// Copyright (c) 2025 ByteHot
// SPDX-License-Identifier: MPL-2.0

package bytehot

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/agilira/go-errors"
)

// aggregateState serializes appends for one aggregate and tracks the
// millisecond-sequence counter needed to keep filenames causally
// sortable when multiple events land in the same millisecond.
type aggregateState struct {
	mu          sync.Mutex
	lastMillis  string
	seq         int
	lastEventID string
	version     uint64
	loaded      bool
}

// EventStore is the append-only, per-aggregate-versioned persistent log
// of spec §4.6. Events are stored one-file-per-event under
// <root>/<aggregateType>/<aggregateID>/, with write-to-temp-then-rename
// atomicity. A per-aggregate lock serializes appends and guards version
// assignment end-to-end, per spec §9.
type EventStore struct {
	root string

	mu     sync.Mutex
	states map[string]*aggregateState

	index *versionIndex // optional fast-path; nil is a valid, fully-correct state
}

// NewEventStore constructs an EventStore rooted at root. If indexPath is
// non-empty, a SQLite version index is opened alongside it; if opening
// fails, the store degrades to directory enumeration rather than
// refusing to start (JSONL files remain the single source of truth
// regardless, per spec §4.6).
func NewEventStore(root, indexPath string) (*EventStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, errors.Wrap(err, ErrCodeAppendFailed, "failed to create event store root").WithContext("root", root)
	}

	store := &EventStore{
		root:   root,
		states: make(map[string]*aggregateState),
	}

	if indexPath != "" {
		idx, err := openVersionIndex(indexPath)
		if err == nil {
			store.index = idx
		}
	}

	return store, nil
}

func aggregateKey(aggregateType, aggregateID string) string {
	return aggregateType + "/" + aggregateID
}

func (s *EventStore) stateFor(aggregateType, aggregateID string) *aggregateState {
	key := aggregateKey(aggregateType, aggregateID)

	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.states[key]
	if !ok {
		st = &aggregateState{}
		s.states[key] = st
	}
	return st
}

// Append assigns the next aggregate version and previous-event pointer
// to event, writes it durably, and returns the stamped copy. Append for
// the same aggregate is serialized; independent aggregates append in
// parallel (spec §4.6/§5).
func (s *EventStore) Append(event VersionedEvent) (VersionedEvent, error) {
	st := s.stateFor(event.AggregateType, event.AggregateID)

	st.mu.Lock()
	defer st.mu.Unlock()

	if !st.loaded {
		version, lastID, err := s.resolveCurrentState(event.AggregateType, event.AggregateID)
		if err != nil {
			return VersionedEvent{}, err
		}
		st.version = version
		st.lastEventID = lastID
		st.loaded = true
	}

	event.AggregateVersion = st.version + 1
	event.PreviousEventID = st.lastEventID

	dir := filepath.Join(s.root, event.AggregateType, event.AggregateID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return VersionedEvent{}, errors.Wrap(err, ErrCodeAppendFailed, "failed to create aggregate directory").WithContext("dir", dir)
	}

	name := s.filenameFor(st, time.Now(), event.Kind)
	payload, err := json.Marshal(event)
	if err != nil {
		return VersionedEvent{}, errors.Wrap(err, ErrCodeAppendFailed, "failed to encode event")
	}

	finalPath := filepath.Join(dir, name)
	tempPath := finalPath + ".tmp"
	if err := os.WriteFile(tempPath, payload, 0o644); err != nil {
		return VersionedEvent{}, errors.Wrap(err, ErrCodeAppendFailed, "failed to write event").WithContext("path", finalPath)
	}
	if err := os.Rename(tempPath, finalPath); err != nil {
		_ = os.Remove(tempPath)
		return VersionedEvent{}, errors.Wrap(err, ErrCodeAppendFailed, "failed to finalize event").WithContext("path", finalPath)
	}

	st.version = event.AggregateVersion
	st.lastEventID = event.EventID

	if s.index != nil {
		s.index.set(event.AggregateType, event.AggregateID, st.version, st.lastEventID)
	}

	return event, nil
}

// filenameFor builds the YYYYMMDDHHmmssSSS<seq3>-<Kind>.json filename,
// incrementing seq within the same millisecond for the same aggregate.
// It stamps with an exact time.Now() rather than the event's own
// (potentially cached) Timestamp field, so causal filename ordering is
// never affected by timestamp-cache staleness — the same split argus
// draws between cached reads and exact write-path timestamps.
func (s *EventStore) filenameFor(st *aggregateState, now time.Time, kind EventKind) string {
	millis := now.Format("20060102150405") + fmt.Sprintf("%03d", now.Nanosecond()/int(time.Millisecond))

	if millis == st.lastMillis {
		st.seq++
	} else {
		st.lastMillis = millis
		st.seq = 1
	}

	return fmt.Sprintf("%s%03d-%s.json", millis, st.seq, kind)
}

// resolveCurrentState finds the current version and last event id for
// an aggregate not yet cached in memory, preferring the version index
// and falling back to directory enumeration.
func (s *EventStore) resolveCurrentState(aggregateType, aggregateID string) (uint64, string, error) {
	if s.index != nil {
		if version, lastID, ok := s.index.get(aggregateType, aggregateID); ok {
			return version, lastID, nil
		}
	}

	events, err := s.LoadAggregate(aggregateType, aggregateID)
	if err != nil {
		return 0, "", err
	}
	if len(events) == 0 {
		return 0, "", nil
	}
	last := events[len(events)-1]
	return last.AggregateVersion, last.EventID, nil
}

// LoadAggregate returns every event for (aggregateType, aggregateID) in
// causal order.
func (s *EventStore) LoadAggregate(aggregateType, aggregateID string) ([]VersionedEvent, error) {
	dir := filepath.Join(s.root, aggregateType, aggregateID)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrap(err, ErrCodeStoreUnhealthy, "failed to enumerate aggregate directory").WithContext("dir", dir)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || strings.HasSuffix(entry.Name(), ".tmp") {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names) // filename sort = causal order, per spec §4.6

	events := make([]VersionedEvent, 0, len(names))
	for _, name := range names {
		event, err := s.readEvent(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	return events, nil
}

// LoadAggregateSince returns events for (aggregateType, aggregateID)
// strictly after version.
func (s *EventStore) LoadAggregateSince(aggregateType, aggregateID string, version uint64) ([]VersionedEvent, error) {
	events, err := s.LoadAggregate(aggregateType, aggregateID)
	if err != nil {
		return nil, err
	}
	out := events[:0:0]
	for _, e := range events {
		if e.AggregateVersion > version {
			out = append(out, e)
		}
	}
	return out, nil
}

// LoadByType returns every persisted event of the given kind across all
// aggregates, ordered by timestamp then sequence.
func (s *EventStore) LoadByType(kind EventKind) ([]VersionedEvent, error) {
	all, err := s.loadAll()
	if err != nil {
		return nil, err
	}
	out := all[:0:0]
	for _, e := range all {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out, nil
}

// LoadBetween returns every persisted event with timestamp in [t0, t1],
// ordered by timestamp then sequence.
func (s *EventStore) LoadBetween(t0, t1 time.Time) ([]VersionedEvent, error) {
	all, err := s.loadAll()
	if err != nil {
		return nil, err
	}
	out := all[:0:0]
	for _, e := range all {
		if (e.Timestamp.Equal(t0) || e.Timestamp.After(t0)) && (e.Timestamp.Equal(t1) || e.Timestamp.Before(t1)) {
			out = append(out, e)
		}
	}
	return out, nil
}

// namedEvent pairs a loaded event with the filename it was read from, so
// loadAll can tiebreak on the filename-embedded sequence number rather
// than a random field.
type namedEvent struct {
	name  string
	event VersionedEvent
}

func (s *EventStore) loadAll() ([]VersionedEvent, error) {
	aggregateTypes, err := os.ReadDir(s.root)
	if err != nil {
		return nil, errors.Wrap(err, ErrCodeStoreUnhealthy, "failed to enumerate event store root")
	}

	var all []namedEvent
	for _, at := range aggregateTypes {
		if !at.IsDir() {
			continue
		}
		typeDir := filepath.Join(s.root, at.Name())
		ids, err := os.ReadDir(typeDir)
		if err != nil {
			return nil, errors.Wrap(err, ErrCodeStoreUnhealthy, "failed to enumerate aggregate type directory").WithContext("dir", typeDir)
		}
		for _, id := range ids {
			if !id.IsDir() {
				continue
			}
			dir := filepath.Join(typeDir, id.Name())
			entries, err := os.ReadDir(dir)
			if err != nil {
				return nil, errors.Wrap(err, ErrCodeStoreUnhealthy, "failed to enumerate aggregate directory").WithContext("dir", dir)
			}
			for _, entry := range entries {
				if entry.IsDir() || strings.HasSuffix(entry.Name(), ".tmp") {
					continue
				}
				event, err := s.readEvent(filepath.Join(dir, entry.Name()))
				if err != nil {
					return nil, err
				}
				all = append(all, namedEvent{name: entry.Name(), event: event})
			}
		}
	}

	// Timestamp comes from timecache.CachedTime(), a deliberately coarse
	// clock (spec §9), so events appended microseconds apart can share a
	// timestamp; tiebreak on the millisecond stamp and then the
	// per-millisecond sequence embedded in the filename (filenameFor)
	// rather than a random field, preserving append order exactly as the
	// filename scheme promises.
	sort.Slice(all, func(i, j int) bool {
		if all[i].event.Timestamp.Equal(all[j].event.Timestamp) {
			ni, nj := all[i].name, all[j].name
			if len(ni) >= 17 && len(nj) >= 17 && ni[:17] != nj[:17] {
				return ni[:17] < nj[:17]
			}
			return filenameSequence(ni) < filenameSequence(nj)
		}
		return all[i].event.Timestamp.Before(all[j].event.Timestamp)
	})

	events := make([]VersionedEvent, len(all))
	for i, n := range all {
		events[i] = n.event
	}
	return events, nil
}

// filenameSequence extracts the zero-padded per-millisecond sequence
// number a filenameFor-produced name embeds (17-digit millisecond
// timestamp immediately followed by a 3-digit sequence).
func filenameSequence(name string) int {
	if len(name) < 20 {
		return 0
	}
	seq, err := strconv.Atoi(name[17:20])
	if err != nil {
		return 0
	}
	return seq
}

func (s *EventStore) readEvent(path string) (VersionedEvent, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return VersionedEvent{}, errors.Wrap(err, ErrCodeStoreUnhealthy, "failed to read event file").WithContext("path", path)
	}
	var event VersionedEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return VersionedEvent{}, errors.Wrap(err, ErrCodeStoreUnhealthy, "failed to decode event file").WithContext("path", path)
	}
	return event, nil
}

// CurrentVersion returns the highest version observed for the aggregate.
func (s *EventStore) CurrentVersion(aggregateType, aggregateID string) (uint64, error) {
	st := s.stateFor(aggregateType, aggregateID)

	st.mu.Lock()
	defer st.mu.Unlock()
	if st.loaded {
		return st.version, nil
	}

	version, lastID, err := s.resolveCurrentState(aggregateType, aggregateID)
	if err != nil {
		return 0, err
	}
	st.version = version
	st.lastEventID = lastID
	st.loaded = true
	return version, nil
}

// Health reports true iff the store root is writable and, when a
// version index is configured, the index itself is reachable.
func (s *EventStore) Health() bool {
	probe := filepath.Join(s.root, ".health-probe")
	if err := os.WriteFile(probe, []byte(strconv.FormatInt(time.Now().UnixNano(), 10)), 0o644); err != nil {
		return false
	}
	_ = os.Remove(probe)

	if s.index != nil {
		return s.index.health()
	}
	return true
}

// Close releases the version index, if one is configured.
func (s *EventStore) Close() error {
	if s.index != nil {
		return s.index.close()
	}
	return nil
}
